package nor

import (
	"bytes"
	"testing"

	"github.com/dsoprea/go-logging"

	"github.com/eclipse-threadx/levelx-go"
)

// TestFlash_CrashBetweenCommitAndOldRelease exercises §8 scenario 2:
// write logical 0 <- "A", write logical 0 <- "B", power-cycle after
// clearing SUPERCEDED on the new entry and before clearing VALID on the
// old entry, reopen, and confirm the read returns "B" with exactly one
// live mapping.
func TestFlash_CrashBetweenCommitAndOldRelease(t *testing.T) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			log.PrintError(errRaw.(error))
			t.Fatalf("test failed")
		}
	}()

	geom := testGeometry()
	drv := NewMemoryDriver(geom.TotalBlocks, geom.bytesPerBlock())

	err := Format("test", drv, FormatConfig{Geometry: geom})
	log.PanicIf(err)

	f, err := Open("test", drv, geom, WithRegistry(levelx.NewRegistry()))
	log.PanicIf(err)

	err = f.SectorWrite(0, payloadOf(t, f, "A"))
	log.PanicIf(err)

	// The write that just completed committed the new entry and cleared
	// the old one if any; the next write's payload, tentative entry, and
	// commit (3 more writes) should succeed, but the fourth — clearing
	// VALID on the old entry — must not.
	drv.CrashAfterWrite = drv.WriteCount() + 3

	_ = f.SectorWrite(0, payloadOf(t, f, "B")) // expected to fail partway

	drv.CrashAfterWrite = 0

	f2, err := Open("test", drv, geom, WithRegistry(levelx.NewRegistry()))
	log.PanicIf(err)

	out := make([]byte, f2.geom.sectorPayloadBytes())
	err = f2.SectorRead(0, out)
	log.PanicIf(err)

	if !bytes.Equal(out, payloadOf(t, f2, "B")) {
		t.Fatalf("expected recovered read to return \"B\", got %q", out)
	}

	live := 0
	for block := uint32(0); block < geom.TotalBlocks; block++ {
		count := geom.physicalSectorsPerBlock()
		for sector := uint32(0); sector < count; sector++ {
			raw := make([]byte, mappingBytes)
			err := drv.Read(geom.mappingEntryOffset(block, sector), raw)
			log.PanicIf(err)

			entry := mappingEntry(decodeWord(raw))
			if entry.isValid() && !entry.isSuperceded() && entry.logical() == 0 {
				live++
			}
		}
	}

	if live != 1 {
		t.Fatalf("expected exactly one live mapping entry for logical 0 after recovery, found %d", live)
	}
}
