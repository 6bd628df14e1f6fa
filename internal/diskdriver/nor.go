// Package diskdriver implements levelx driver shims over a plain OS file,
// so the cmd/ tools have something to point the engines at beyond the
// in-memory fixture each engine package keeps for its own tests. Per
// SPEC_FULL.md §1, driver shims are explicitly outside the core; this
// package is CLI-facing glue, not part of either engine.
package diskdriver

import (
	"os"

	"github.com/eclipse-threadx/levelx-go"
	"github.com/eclipse-threadx/levelx-go/nor"
)

// NORFile is a nor.Driver backed by a plain file, one byte of the file per
// byte of simulated device.
type NORFile struct {
	f             *os.File
	blockByteSize uint32
}

// CreateNORFile creates path sized for geom, all-ones (freshly erased).
func CreateNORFile(path string, geom nor.Geometry) (*NORFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}

	size := int64(geom.BlockByteSize()) * int64(geom.TotalBlocks)
	if err := fillAllOnes(f, size); err != nil {
		f.Close()
		return nil, err
	}

	return &NORFile{f: f, blockByteSize: geom.BlockByteSize()}, nil
}

// OpenNORFile opens an existing disk-image file.
func OpenNORFile(path string, geom nor.Geometry) (*NORFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	return &NORFile{f: f, blockByteSize: geom.BlockByteSize()}, nil
}

func fillAllOnes(f *os.File, size int64) error {
	buf := make([]byte, 64*1024)
	for i := range buf {
		buf[i] = 0xff
	}

	for written := int64(0); written < size; {
		n := int64(len(buf))
		if size-written < n {
			n = size - written
		}

		if _, err := f.WriteAt(buf[:n], written); err != nil {
			return err
		}

		written += n
	}

	return nil
}

// Close closes the backing file.
func (d *NORFile) Close() error {
	return d.f.Close()
}

// Read implements nor.Driver.
func (d *NORFile) Read(byteAddr uint32, dest []byte) error {
	_, err := d.f.ReadAt(dest, int64(byteAddr))
	return err
}

// Write implements nor.Driver, refusing any 0->1 transition the way real
// NOR media would.
func (d *NORFile) Write(byteAddr uint32, source []byte) error {
	existing := make([]byte, len(source))
	if _, err := d.f.ReadAt(existing, int64(byteAddr)); err != nil {
		return err
	}

	for i, b := range source {
		if existing[i]&b != b {
			return levelx.ErrInvalidWrite
		}
	}

	_, err := d.f.WriteAt(source, int64(byteAddr))
	return err
}

// BlockErase implements nor.Driver by writing all-ones across the block's
// byte range. eraseCount is accepted for interface symmetry with real
// media but not separately recorded; the engine persists it in the block
// header word it writes immediately after.
func (d *NORFile) BlockErase(block uint32, eraseCount uint32) error {
	off := int64(block) * int64(d.blockByteSize)

	buf := make([]byte, d.blockByteSize)
	for i := range buf {
		buf[i] = 0xff
	}

	_, err := d.f.WriteAt(buf, off)
	return err
}

// BlockErasedVerify implements nor.Driver.
func (d *NORFile) BlockErasedVerify(block uint32) (bool, error) {
	off := int64(block) * int64(d.blockByteSize)

	buf := make([]byte, d.blockByteSize)
	if _, err := d.f.ReadAt(buf, off); err != nil {
		return false, err
	}

	for _, b := range buf {
		if b != 0xff {
			return false, nil
		}
	}

	return true, nil
}
