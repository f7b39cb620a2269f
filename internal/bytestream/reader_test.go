package bytestream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderPrimitives(t *testing.T) {
	data := []byte{
		0x01,
		0x02, 0x03,
		0x04, 0x05, 0x06, 0x07,
		0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f,
	}
	source := FromBytes(data)
	r := NewReader(source, 0, uint64(len(data)))

	u8, err := r.U8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x01), u8)

	u16, err := r.U16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0302), u16)

	u32, err := r.U32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x07060504), u32)

	u64, err := r.U64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0f0e0d0c0b0a0908), u64)

	assert.Equal(t, uint64(0), r.Len())
}

func TestReaderWindowBounded(t *testing.T) {
	data := make([]byte, 32)
	source := FromBytes(data)
	r := NewReader(source, 8, 4)

	_, err := r.Bytes(4)
	require.NoError(t, err)

	_, err = r.Bytes(1)
	assert.Error(t, err, "reads past the window length must fail even though the source has more data")
}

func TestReaderSeek(t *testing.T) {
	data := []byte{0xaa, 0xbb, 0xcc, 0xdd}
	r := NewReader(FromBytes(data), 0, uint64(len(data)))

	require.NoError(t, r.Seek(2))
	b, err := r.U8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0xcc), b)

	assert.Error(t, r.Seek(5))
}

func TestGUIDRoundTrip(t *testing.T) {
	data := []byte{
		0x01, 0x02, 0x03, 0x04,
		0x05, 0x06,
		0x07, 0x08,
		0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10,
	}
	r := NewReader(FromBytes(data), 0, uint64(len(data)))
	got, err := r.GUIDBytes()
	require.NoError(t, err)
	assert.Equal(t, [16]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}, got)
}
