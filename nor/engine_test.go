package nor

import (
	"bytes"
	"testing"

	"github.com/dsoprea/go-logging"

	"github.com/eclipse-threadx/levelx-go"
)

const (
	testTotalBlocks   = 16
	testWordsPerBlock = 256
	testSectorWords   = 4
)

func testGeometry() Geometry {
	return Geometry{
		TotalBlocks:   testTotalBlocks,
		WordsPerBlock: testWordsPerBlock,
		SectorWords:   testSectorWords,
	}
}

func newFormattedFlash(t *testing.T) (*Flash, *MemoryDriver) {
	t.Helper()

	geom := testGeometry()
	drv := NewMemoryDriver(geom.TotalBlocks, geom.bytesPerBlock())

	err := Format("test", drv, FormatConfig{Geometry: geom})
	log.PanicIf(err)

	f, err := Open("test", drv, geom, WithRegistry(levelx.NewRegistry()))
	log.PanicIf(err)

	return f, drv
}

func payloadOf(t *testing.T, f *Flash, text string) []byte {
	t.Helper()

	buf := make([]byte, f.geom.sectorPayloadBytes())
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

	out := make([]byte, f.geom.sectorPayloadBytes())
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

	out := make([]byte, f.geom.sectorPayloadBytes())
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

	out := make([]byte, f.geom.sectorPayloadBytes())
	err = f.SectorRead(0, out)
	log.PanicIf(err)

	if !bytes.Equal(out, payloadOf(t, f, "B")) {
		t.Fatalf("expected latest write to win, got %v", out)
	}

	live := 0
	for range f.liveMap {
		live++
	}

	if live != 1 {
		t.Fatalf("expected exactly one live mapping, found %d", live)
	}
}
