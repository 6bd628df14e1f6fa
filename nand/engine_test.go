package nand

import (
	"bytes"
	"testing"

	"github.com/dsoprea/go-logging"

	"github.com/eclipse-threadx/levelx-go"
)

const (
	testTotalBlocks   = 16
	testPagesPerBlock = 8
	testPageWords     = 4
)

func testGeometry() Geometry {
	return Geometry{
		TotalBlocks:   testTotalBlocks,
		PagesPerBlock: testPagesPerBlock,
		PageWords:     testPageWords,
	}
}

func newFormattedFlash(t *testing.T) (*Flash, *MemoryDriver) {
	t.Helper()

	geom := testGeometry()
	drv := NewMemoryDriver(geom.TotalBlocks, geom.PagesPerBlock, geom.pageBytes())

	err := Format("test", drv, FormatConfig{Geometry: geom})
	log.PanicIf(err)

	f, err := Open("test", drv, geom, WithRegistry(levelx.NewRegistry()))
	log.PanicIf(err)

	return f, drv
}

func payloadOf(t *testing.T, f *Flash, text string) []byte {
	t.Helper()

	buf := make([]byte, f.geom.pageBytes())
	copy(buf, text)
	return buf
}

func TestFlash_WriteThenRead(t *testing.T) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			log.PrintError(errRaw.(error))
			t.Fatalf("test failed")
		}
	}()

	f, _ := newFormattedFlash(t)

	payload := payloadOf(t, f, "A")

	err := f.SectorWrite(0, payload)
	log.PanicIf(err)

	out := make([]byte, f.geom.pageBytes())
	err = f.SectorRead(0, out)
	log.PanicIf(err)

	if !bytes.Equal(out, payload) {
		t.Fatalf("read did not return last write: %v != %v", out, payload)
	}
}

func TestFlash_ReadAfterRelease(t *testing.T) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			log.PrintError(errRaw.(error))
			t.Fatalf("test failed")
		}
	}()

	f, _ := newFormattedFlash(t)

	err := f.SectorWrite(0, payloadOf(t, f, "A"))
	log.PanicIf(err)

	err = f.SectorRelease(0)
	log.PanicIf(err)

	out := make([]byte, f.geom.pageBytes())
	err = f.SectorRead(0, out)
	if err == nil {
		t.Fatalf("expected SectorNotFound after release")
	}
}

func TestFlash_RewriteResolvesToLatest(t *testing.T) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			log.PrintError(errRaw.(error))
			t.Fatalf("test failed")
		}
	}()

	f, _ := newFormattedFlash(t)

	err := f.SectorWrite(0, payloadOf(t, f, "A"))
	log.PanicIf(err)

	err = f.SectorWrite(0, payloadOf(t, f, "B"))
	log.PanicIf(err)

	out := make([]byte, f.geom.pageBytes())
	err = f.SectorRead(0, out)
	log.PanicIf(err)

	if !bytes.Equal(out, payloadOf(t, f, "B")) {
		t.Fatalf("expected latest write to win, got %v", out)
	}

	if len(f.liveMap) != 1 {
		t.Fatalf("expected exactly one live mapping, found %d", len(f.liveMap))
	}
}

// TestFlash_BadBlockMigration exercises §8 scenario 4: a program failure
// on the block a logical sector's rewrite lands in marks that block BAD
// and migrates the sector's previously-committed copy to a new block;
// subsequent reads of that logical sector must succeed from its new
// location, and no later allocation may land in the BAD block.
func TestFlash_BadBlockMigration(t *testing.T) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			log.PrintError(errRaw.(error))
			t.Fatalf("test failed")
		}
	}()

	f, drv := newFormattedFlash(t)

	err := f.SectorWrite(0, payloadOf(t, f, "A"))
	log.PanicIf(err)

	currentBeforeFailure := f.currentBlock
	drv.FailBlocks[currentBeforeFailure] = true

	err = f.SectorWrite(0, payloadOf(t, f, "B"))
	if err == nil {
		t.Fatalf("expected the program failure to surface as an error")
	}

	if !f.bad[currentBeforeFailure] {
		t.Fatalf("expected block %d to be marked BAD", currentBeforeFailure)
	}

	if f.hasCurrentBlock && f.currentBlock == currentBeforeFailure {
		t.Fatalf("engine must not keep allocating from a BAD block")
	}

	out := make([]byte, f.geom.pageBytes())
	err = f.SectorRead(0, out)
	log.PanicIf(err)

	if !bytes.Equal(out, payloadOf(t, f, "A")) {
		t.Fatalf("expected migrated logical 0 to still read its last committed payload, got %v", out)
	}

	err = f.SectorWrite(0, payloadOf(t, f, "B"))
	log.PanicIf(err)

	err = f.SectorRead(0, out)
	log.PanicIf(err)

	if !bytes.Equal(out, payloadOf(t, f, "B")) {
		t.Fatalf("expected rewrite after migration to succeed and read back, got %v", out)
	}

	for logical, addr := range f.liveMap {
		if addr.block == currentBeforeFailure {
			t.Fatalf("logical %d still mapped into BAD block %d", logical, currentBeforeFailure)
		}
	}
}
