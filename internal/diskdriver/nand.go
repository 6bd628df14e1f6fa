package diskdriver

import (
	"os"

	"github.com/eclipse-threadx/levelx-go"
	"github.com/eclipse-threadx/levelx-go/nand"
)

// NANDFile is a nand.Driver backed by a plain file, laid out in a
// block/page/spare stride taken from nand.Geometry's exported byte-offset
// accessors rather than duplicating that arithmetic here.
type NANDFile struct {
	f    *os.File
	geom nand.Geometry
}

// CreateNANDFile creates path sized for geom, all-ones (freshly erased).
func CreateNANDFile(path string, geom nand.Geometry) (*NANDFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}

	size := int64(geom.BlockByteSize()) * int64(geom.TotalBlocks)
	if err := fillAllOnes(f, size); err != nil {
		f.Close()
		return nil, err
	}

	return &NANDFile{f: f, geom: geom}, nil
}

// OpenNANDFile opens an existing disk-image file.
func OpenNANDFile(path string, geom nand.Geometry) (*NANDFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	return &NANDFile{f: f, geom: geom}, nil
}

// Close closes the backing file.
func (d *NANDFile) Close() error {
	return d.f.Close()
}

// PageRead implements nand.Driver.
func (d *NANDFile) PageRead(block, page uint32, payload, spare []byte) error {
	if _, err := d.f.ReadAt(payload, int64(d.geom.PageByteOffset(block, page))); err != nil {
		return err
	}

	_, err := d.f.ReadAt(spare, int64(d.geom.SpareByteOffset(block, page)))
	return err
}

// PageWrite implements nand.Driver, refusing any 0->1 transition in
// either the payload or the spare area.
func (d *NANDFile) PageWrite(block, page uint32, payload, spare []byte) error {
	if err := d.writeOnly1to0(d.geom.PageByteOffset(block, page), payload); err != nil {
		return err
	}

	return d.writeOnly1to0(d.geom.SpareByteOffset(block, page), spare)
}

func (d *NANDFile) writeOnly1to0(offset uint32, next []byte) error {
	existing := make([]byte, len(next))
	if _, err := d.f.ReadAt(existing, int64(offset)); err != nil {
		return err
	}

	for i, b := range next {
		if existing[i]&b != b {
			return levelx.ErrInvalidWrite
		}
	}

	_, err := d.f.WriteAt(next, int64(offset))
	return err
}

// PageCopy implements nand.Driver by copying payload and spare directly.
func (d *NANDFile) PageCopy(srcBlock, srcPage, destBlock, destPage uint32) error {
	payload := make([]byte, d.geom.PagePayloadByteSize())
	spare := make([]byte, d.geom.PageSpareByteSize())

	if err := d.PageRead(srcBlock, srcPage, payload, spare); err != nil {
		return err
	}

	return d.PageWrite(destBlock, destPage, payload, spare)
}

// BlockErase implements nand.Driver by writing all-ones across the
// block's byte range.
func (d *NANDFile) BlockErase(block uint32, eraseCount uint32) error {
	off := int64(d.geom.BlockByteSize()) * int64(block)

	buf := make([]byte, d.geom.BlockByteSize())
	for i := range buf {
		buf[i] = 0xff
	}

	_, err := d.f.WriteAt(buf, off)
	return err
}

// BlockErasedVerify implements nand.Driver.
func (d *NANDFile) BlockErasedVerify(block uint32) (bool, error) {
	off := int64(d.geom.BlockByteSize()) * int64(block)

	buf := make([]byte, d.geom.BlockByteSize())
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
