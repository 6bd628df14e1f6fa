package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dsoprea/go-logging"
	"github.com/jessevdk/go-flags"

	"github.com/eclipse-threadx/levelx-go/internal/cliutil"
	"github.com/eclipse-threadx/levelx-go/internal/diskdriver"
	"github.com/eclipse-threadx/levelx-go/nand"
	"github.com/eclipse-threadx/levelx-go/nor"
)

type rootParameters struct {
	Filepath       string `short:"f" long:"filepath" description:"Disk-image file-path" required:"true"`
	Engine         string `short:"e" long:"engine" description:"Engine: nor or nand" default:"nor"`
	Blocks         uint32 `short:"b" long:"blocks" description:"Total blocks" default:"16"`
	WordsPerBlock  uint32 `long:"words-per-block" description:"NOR words per block" default:"256"`
	SectorWords    uint32 `long:"sector-words" description:"NOR sector size, in words" default:"16"`
	PagesPerBlock  uint32 `long:"pages-per-block" description:"NAND pages per block" default:"64"`
	PageWords      uint32 `long:"page-words" description:"NAND page size, in words" default:"128"`
	LogicalSector  uint32 `short:"l" long:"logical-sector" description:"Logical sector number" required:"true"`
	Write          bool   `short:"w" long:"write" description:"Write stdin into the sector instead of reading it"`
	OutputFilepath string `short:"o" long:"output-filepath" description:"File-path to write sector contents to ('-' for STDOUT)" default:"-"`
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
		catNOR()
	case "nand":
		catNAND()
	default:
		fmt.Printf("unknown engine %q, want \"nor\" or \"nand\"\n", rootArguments.Engine)
		os.Exit(2)
	}
}

func catNOR() {
	geom := cliutil.NORGeometry(rootArguments.Blocks, rootArguments.WordsPerBlock, rootArguments.SectorWords)

	drv, err := diskdriver.OpenNORFile(rootArguments.Filepath, geom)
	log.PanicIf(err)

	defer drv.Close()

	f, err := nor.Open(rootArguments.Filepath, drv, geom)
	log.PanicIf(err)

	defer f.Close()

	if rootArguments.Write {
		buf := make([]byte, geom.SectorWords*4)

		_, err := io.ReadFull(os.Stdin, buf)
		log.PanicIf(err)

		err = f.SectorWrite(rootArguments.LogicalSector, buf)
		log.PanicIf(err)

		return
	}

	buf := make([]byte, geom.SectorWords*4)

	err = f.SectorRead(rootArguments.LogicalSector, buf)
	log.PanicIf(err)

	writeOutput(buf)
}

func catNAND() {
	geom := cliutil.NANDGeometry(rootArguments.Blocks, rootArguments.PagesPerBlock, rootArguments.PageWords)

	drv, err := diskdriver.OpenNANDFile(rootArguments.Filepath, geom)
	log.PanicIf(err)

	defer drv.Close()

	f, err := nand.Open(rootArguments.Filepath, drv, geom)
	log.PanicIf(err)

	defer f.Close()

	if rootArguments.Write {
		buf := make([]byte, geom.PageWords*4)

		_, err := io.ReadFull(os.Stdin, buf)
		log.PanicIf(err)

		err = f.SectorWrite(rootArguments.LogicalSector, buf)
		log.PanicIf(err)

		return
	}

	buf := make([]byte, geom.PageWords*4)

	err = f.SectorRead(rootArguments.LogicalSector, buf)
	log.PanicIf(err)

	writeOutput(buf)
}

func writeOutput(buf []byte) {
	if rootArguments.OutputFilepath == "-" {
		os.Stdout.Write(buf)
		return
	}

	g, err := os.Create(rootArguments.OutputFilepath)
	log.PanicIf(err)

	defer g.Close()

	_, err = g.Write(buf)
	log.PanicIf(err)

	fmt.Printf("(%d) bytes written.\n", len(buf))
}
