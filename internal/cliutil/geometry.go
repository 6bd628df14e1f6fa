// Package cliutil holds the small pieces of geometry-construction logic
// shared by the three cmd/levelx-* tools, so each tool's main.go stays a
// thin flag-parsing-plus-call-into-the-engine front end in the teacher's
// style rather than re-deriving this arithmetic three times.
package cliutil

import (
	"github.com/eclipse-threadx/levelx-go/nand"
	"github.com/eclipse-threadx/levelx-go/nor"
)

// NORGeometry builds a nor.Geometry from the flat flag values every
// levelx-* tool accepts for the NOR engine.
func NORGeometry(blocks, wordsPerBlock, sectorWords uint32) nor.Geometry {
	return nor.Geometry{
		TotalBlocks:   blocks,
		WordsPerBlock: wordsPerBlock,
		SectorWords:   sectorWords,
	}
}

// NANDGeometry builds a nand.Geometry from the flat flag values every
// levelx-* tool accepts for the NAND engine.
func NANDGeometry(blocks, pagesPerBlock, pageWords uint32) nand.Geometry {
	return nand.Geometry{
		TotalBlocks:   blocks,
		PagesPerBlock: pagesPerBlock,
		PageWords:     pageWords,
	}
}
