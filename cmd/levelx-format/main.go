package main

import (
	"fmt"
	"os"

	"github.com/dsoprea/go-logging"
	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"

	"github.com/eclipse-threadx/levelx-go/internal/cliutil"
	"github.com/eclipse-threadx/levelx-go/internal/diskdriver"
	"github.com/eclipse-threadx/levelx-go/nand"
	"github.com/eclipse-threadx/levelx-go/nor"
)

type rootParameters struct {
	Filepath      string `short:"f" long:"filepath" description:"Disk-image file-path to create" required:"true"`
	Engine        string `short:"e" long:"engine" description:"Engine: nor or nand" default:"nor"`
	Blocks        uint32 `short:"b" long:"blocks" description:"Total blocks" default:"16"`
	WordsPerBlock uint32 `long:"words-per-block" description:"NOR words per block" default:"256"`
	SectorWords   uint32 `long:"sector-words" description:"NOR sector size, in words" default:"16"`
	PagesPerBlock uint32 `long:"pages-per-block" description:"NAND pages per block" default:"64"`
	PageWords     uint32 `long:"page-words" description:"NAND page size, in words" default:"128"`
}

var rootArguments = new(rootParameters)

func main() {
	defer func() {
		if state := recover(); state != nil {
			err := log.Wrap(state.(error))
			log.PrintError(err)
			os.Exit(-1)
		}
	}()

	p := flags.NewParser(rootArguments, flags.Default)

	_, err := p.Parse()
	if err != nil {
		os.Exit(1)
	}

	switch rootArguments.Engine {
	case "nor":
		formatNOR()
	case "nand":
		formatNAND()
	default:
		fmt.Printf("unknown engine %q, want \"nor\" or \"nand\"\n", rootArguments.Engine)
		os.Exit(2)
	}
}

func formatNOR() {
	geom := cliutil.NORGeometry(rootArguments.Blocks, rootArguments.WordsPerBlock, rootArguments.SectorWords)

	drv, err := diskdriver.CreateNORFile(rootArguments.Filepath, geom)
	log.PanicIf(err)

	defer drv.Close()

	err = nor.Format(rootArguments.Filepath, drv, nor.FormatConfig{Geometry: geom})
	log.PanicIf(err)

	total := uint64(geom.BlockByteSize()) * uint64(geom.TotalBlocks)
	fmt.Printf("Formatted NOR device: %s blocks across %s.\n", humanize.Comma(int64(geom.TotalBlocks)), humanize.Bytes(total))
}

func formatNAND() {
	geom := cliutil.NANDGeometry(rootArguments.Blocks, rootArguments.PagesPerBlock, rootArguments.PageWords)

	drv, err := diskdriver.CreateNANDFile(rootArguments.Filepath, geom)
	log.PanicIf(err)

	defer drv.Close()

	err = nand.Format(rootArguments.Filepath, drv, nand.FormatConfig{Geometry: geom})
	log.PanicIf(err)

	total := uint64(geom.BlockByteSize()) * uint64(geom.TotalBlocks)
	fmt.Printf("Formatted NAND device: %s blocks across %s.\n", humanize.Comma(int64(geom.TotalBlocks)), humanize.Bytes(total))
}
