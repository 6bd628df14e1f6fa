// Package levelx provides the driver-facing contracts, return-code
// vocabulary, and cache primitives shared by the NOR and NAND flash
// translation layer engines in levelx/nor and levelx/nand.
//
// The package itself never touches a block device; it only defines the
// vocabulary (errors, diagnostics, caches, the open-instance registry) that
// both engines build on.
package levelx
