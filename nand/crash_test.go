package nand

import (
	"bytes"
	"testing"

	"github.com/dsoprea/go-logging"

	"github.com/eclipse-threadx/levelx-go"
)

// TestFlash_CrashBetweenCommitAndOldRelease exercises §8 scenario 2:
// write logical 0 <- "A", write logical 0 <- "B", power-cycle between
// committing the new page and releasing the old one, reopen, and confirm
// the read returns "B" with exactly one live page for logical 0.
func TestFlash_CrashBetweenCommitAndOldRelease(t *testing.T) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			log.PrintError(errRaw.(error))
			t.Fatalf("test failed")
		}
	}()

	geom := testGeometry()
	drv := NewMemoryDriver(geom.TotalBlocks, geom.PagesPerBlock, geom.pageBytes())

	err := Format("test", drv, FormatConfig{Geometry: geom})
	log.PanicIf(err)

	f, err := Open("test", drv, geom, WithRegistry(levelx.NewRegistry()))
	log.PanicIf(err)

	err = f.SectorWrite(0, payloadOf(t, f, "A"))
	log.PanicIf(err)

	// The rewrite's page program and commit (2 more writes) should
	// succeed, but the third -- releasing the old page -- must not.
	drv.CrashAfterWrite = drv.WriteCount() + 2

	_ = f.SectorWrite(0, payloadOf(t, f, "B")) // expected to fail partway

	drv.CrashAfterWrite = 0

	f2, err := Open("test", drv, geom, WithRegistry(levelx.NewRegistry()))
	log.PanicIf(err)

	out := make([]byte, f2.geom.pageBytes())
	err = f2.SectorRead(0, out)
	log.PanicIf(err)

	if !bytes.Equal(out, payloadOf(t, f2, "B")) {
		t.Fatalf("expected recovered read to return \"B\", got %q", out)
	}

	live := 0
	for block := uint32(0); block < geom.TotalBlocks; block++ {
		for page := uint32(1); page < geom.PagesPerBlock; page++ {
			payload := make([]byte, geom.pageBytes())
			spare := make([]byte, pageSpareBytes)
			err := drv.PageRead(block, page, payload, spare)
			log.PanicIf(err)

			s, err := unpackSpare(spare)
			log.PanicIf(err)

			if s.Status.isValid() && !s.Status.isSuperceded() && s.Logical == 0 {
				live++
			}
		}
	}

	if live != 1 {
		t.Fatalf("expected exactly one live page for logical 0 after recovery, found %d", live)
	}
}
