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
	Filepath      string `short:"f" long:"filepath" description:"Disk-image file-path to check" required:"true"`
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
		fsckNOR()
	case "nand":
		fsckNAND()
	default:
		fmt.Printf("unknown engine %q, want \"nor\" or \"nand\"\n", rootArguments.Engine)
		os.Exit(2)
	}
}

func fsckNOR() {
	geom := cliutil.NORGeometry(rootArguments.Blocks, rootArguments.WordsPerBlock, rootArguments.SectorWords)

	drv, err := diskdriver.OpenNORFile(rootArguments.Filepath, geom)
	log.PanicIf(err)

	defer drv.Close()

	f, err := nor.Open(rootArguments.Filepath, drv, geom)
	log.PanicIf(err)

	defer f.Close()

	s := f.Stats()

	fmt.Printf("Engine:                   NOR\n")
	fmt.Printf("Total blocks:             %s\n", humanize.Comma(int64(s.TotalBlocks)))
	fmt.Printf("Live sectors:             %s\n", humanize.Comma(int64(s.LiveSectors)))
	fmt.Printf("Free physical sectors:    %s\n", humanize.Comma(int64(s.FreePhysicalSectors)))
	fmt.Printf("Obsolete physical sectors: %s\n", humanize.Comma(int64(s.ObsoletePhysicalSectors)))
	fmt.Printf("Erase count spread:       %d - %d\n", s.MinEraseCount, s.MaxEraseCount)
}

func fsckNAND() {
	geom := cliutil.NANDGeometry(rootArguments.Blocks, rootArguments.PagesPerBlock, rootArguments.PageWords)

	drv, err := diskdriver.OpenNANDFile(rootArguments.Filepath, geom)
	log.PanicIf(err)

	defer drv.Close()

	f, err := nand.Open(rootArguments.Filepath, drv, geom)
	log.PanicIf(err)

	defer f.Close()

	s := f.Stats()

	fmt.Printf("Engine:                NAND\n")
	fmt.Printf("Total blocks:          %s\n", humanize.Comma(int64(s.TotalBlocks)))
	fmt.Printf("Bad blocks:            %s\n", humanize.Comma(int64(s.BadBlocks)))
	fmt.Printf("Live sectors:          %s\n", humanize.Comma(int64(s.LiveSectors)))
	fmt.Printf("Free physical pages:   %s\n", humanize.Comma(int64(s.FreePhysicalPages)))
	fmt.Printf("Obsolete pages:        %s\n", humanize.Comma(int64(s.ObsoletePages)))
	fmt.Printf("Erase count spread:    %d - %d\n", s.MinEraseCount, s.MaxEraseCount)
}
