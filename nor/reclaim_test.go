package nor

import (
	"bytes"
	"testing"

	"github.com/dsoprea/go-logging"

	"github.com/eclipse-threadx/levelx-go"
)

// smallGeometry gives four physical sectors per block, small enough to
// drive a block to exhaustion and back in a handful of calls.
func smallGeometry(totalBlocks uint32) Geometry {
	return Geometry{
		TotalBlocks:   totalBlocks,
		WordsPerBlock: 14,
		SectorWords:   2,
	}
}

func newSmallFlash(t *testing.T, totalBlocks uint32, opts ...Option) (*Flash, *MemoryDriver) {
	t.Helper()

	geom := smallGeometry(totalBlocks)
	drv := NewMemoryDriver(geom.TotalBlocks, geom.bytesPerBlock())

	err := Format("test", drv, FormatConfig{Geometry: geom})
	log.PanicIf(err)

	allOpts := append([]Option{WithRegistry(levelx.NewRegistry())}, opts...)

	f, err := Open("test", drv, geom, allOpts...)
	log.PanicIf(err)

	return f, drv
}

// TestFlash_ReclaimRecoversGarbage exercises §8 scenario 3: fill two
// blocks, release part of one of them to create garbage, then write one
// more sector while the device is otherwise full. The write must force a
// reclaim pass that erases the garbage block and succeeds, and data that
// survived reclaim must still read back correctly.
func TestFlash_ReclaimRecoversGarbage(t *testing.T) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			log.PrintError(errRaw.(error))
			t.Fatalf("test failed")
		}
	}()

	f, _ := newSmallFlash(t, 3) // 4 sectors/block, 12 physical sectors total

	payloads := make([][]byte, 8)
	for i := range payloads {
		payloads[i] = payloadOf(t, f, string(rune('A'+i)))
		err := f.SectorWrite(uint32(i), payloads[i])
		log.PanicIf(err)
	}

	// logical 0 and 1 live in block 0 alongside 2 and 3; release them to
	// leave block 0 half garbage, half live.
	err := f.SectorRelease(0)
	log.PanicIf(err)

	err = f.SectorRelease(1)
	log.PanicIf(err)

	eraseBefore := f.eraseCounts[0]

	err = f.SectorWrite(8, payloadOf(t, f, "I"))
	log.PanicIf(err)

	if f.eraseCounts[0] != eraseBefore+1 {
		t.Fatalf("expected block 0 to be reclaimed (erase count %d -> %d)", eraseBefore, f.eraseCounts[0])
	}

	out := make([]byte, f.geom.sectorPayloadBytes())

	for _, logical := range []uint32{0, 1} {
		err := f.SectorRead(logical, out)
		if err == nil {
			t.Fatalf("expected logical %d to remain released after reclaim", logical)
		}
	}

	for _, logical := range []uint32{2, 3, 8} {
		err := f.SectorRead(logical, out)
		log.PanicIf(err)

		if !bytes.Equal(out, payloadOf(t, f, string(rune('A'+logical)))) {
			t.Fatalf("logical %d did not survive reclaim with its original content", logical)
		}
	}
}

// TestFlash_WearLevelSpreadBounded exercises §8 scenario 5: repeatedly
// rewriting a single logical sector far past the device's physical
// capacity must spread erases across blocks rather than hammering one.
func TestFlash_WearLevelSpreadBounded(t *testing.T) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			log.PrintError(errRaw.(error))
			t.Fatalf("test failed")
		}
	}()

	f, _ := newSmallFlash(t, 4, WithWearLevelThreshold(2))

	for i := 0; i < 40; i++ {
		err := f.SectorWrite(0, payloadOf(t, f, "X"))
		log.PanicIf(err)
	}

	minErase, maxErase := f.eraseCounts[0], f.eraseCounts[0]
	for _, count := range f.eraseCounts {
		if count < minErase {
			minErase = count
		}

		if count > maxErase {
			maxErase = count
		}
	}

	if maxErase-minErase > 6 {
		t.Fatalf("erase count spread too wide: min=%d max=%d", minErase, maxErase)
	}
}

// TestFlash_ExtendedCacheInvalidatedByReclaim exercises §8 scenario 6: the
// extended payload cache must not serve stale data for a block that
// reclaim has since erased and reused.
func TestFlash_ExtendedCacheInvalidatedByReclaim(t *testing.T) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			log.PrintError(errRaw.(error))
			t.Fatalf("test failed")
		}
	}()

	f, _ := newSmallFlash(t, 3)

	err := f.ExtendedCacheEnable(64)
	log.PanicIf(err)

	for i := 0; i < 8; i++ {
		err := f.SectorWrite(uint32(i), payloadOf(t, f, string(rune('A'+i))))
		log.PanicIf(err)
	}

	out := make([]byte, f.geom.sectorPayloadBytes())
	err = f.SectorRead(0, out) // warm the extended cache for block 0's sector
	log.PanicIf(err)

	err = f.SectorRelease(0)
	log.PanicIf(err)

	err = f.SectorRelease(1)
	log.PanicIf(err)

	err = f.SectorWrite(8, payloadOf(t, f, "I")) // forces block 0 to be reclaimed and erased
	log.PanicIf(err)

	err = f.SectorRead(0, out)
	if err == nil {
		t.Fatalf("expected released logical 0 to read as not found, not a stale cached value")
	}
}
