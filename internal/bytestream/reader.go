// Package bytestream provides a bounded, seekable little-endian primitive
// decoder over a interfaces.ByteSource (spec §4.B "Byte-stream reader").
// Every on-disk structure in packages ntfsboot and fve is parsed by
// reading a fixed-size slice through a Reader and decoding fields off the
// front of it, the way dsoprea/go-exfat's parseN/io.ReadFull reads a
// structure-sized chunk before unpacking it.
package bytestream

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/deploymenttheory/go-bde/internal/interfaces"
)

// Reader decodes little-endian primitives from a length-bounded window of
// a ByteSource, starting at a fixed base offset. It never ranges outside
// the window it was constructed with.
type Reader struct {
	source interfaces.ByteSource
	base   uint64
	length uint64
	pos    uint64
}

// NewReader returns a Reader over source[base : base+length).
func NewReader(source interfaces.ByteSource, base, length uint64) *Reader {
	return &Reader{source: source, base: base, length: length}
}

// Len returns the number of unread bytes remaining in the window.
func (r *Reader) Len() uint64 {
	return r.length - r.pos
}

// Pos returns the current read position relative to the window's base.
func (r *Reader) Pos() uint64 {
	return r.pos
}

// Seek repositions the reader to an offset relative to the window's base.
func (r *Reader) Seek(offset uint64) error {
	if offset > r.length {
		return errors.Errorf("bytestream: seek offset %d beyond window length %d", offset, r.length)
	}
	r.pos = offset
	return nil
}

// Bytes reads the next n bytes and advances the position.
func (r *Reader) Bytes(n uint64) ([]byte, error) {
	if n > r.Len() {
		return nil, errors.Wrapf(io.ErrUnexpectedEOF, "bytestream: need %d bytes, only %d remain in window", n, r.Len())
	}
	buf := make([]byte, n)
	read, err := r.source.ReadAt(r.base+r.pos, buf)
	if err != nil && !(err == io.EOF && uint64(read) == n) {
		return nil, errors.Wrapf(err, "bytestream: read %d bytes at offset %d", n, r.base+r.pos)
	}
	r.pos += n
	return buf, nil
}

// U8 reads a single byte.
func (r *Reader) U8() (uint8, error) {
	b, err := r.Bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// U16 reads a little-endian uint16.
func (r *Reader) U16() (uint16, error) {
	b, err := r.Bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// U32 reads a little-endian uint32.
func (r *Reader) U32() (uint32, error) {
	b, err := r.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// U64 reads a little-endian uint64.
func (r *Reader) U64() (uint64, error) {
	b, err := r.Bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// GUIDBytes reads a 16-byte Microsoft mixed-endian GUID. Conversion to
// uuid.UUID happens in the caller via types.GUIDFromWindowsBytes, since
// this package does not depend on package types.
func (r *Reader) GUIDBytes() ([16]byte, error) {
	b, err := r.Bytes(16)
	if err != nil {
		return [16]byte{}, err
	}
	var out [16]byte
	copy(out[:], b)
	return out, nil
}

// ReadAllAt reads exactly length bytes at offset from source, without
// going through a Reader window. Used by callers that need one fixed-size
// chunk (a candidate metadata block, a boot sector) before handing it to a
// Reader for field-by-field decoding.
func ReadAllAt(source interfaces.ByteSource, offset, length uint64) ([]byte, error) {
	buf := make([]byte, length)
	n, err := source.ReadAt(offset, buf)
	if err != nil && !(err == io.EOF && uint64(n) == length) {
		return nil, errors.Wrapf(err, "bytestream: read %d bytes at offset %d", length, offset)
	}
	return buf, nil
}
