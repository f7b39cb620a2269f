package sectorcrypt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSector() []byte {
	sector := make([]byte, 512)
	for i := range sector {
		sector[i] = byte(i * 31)
	}
	return sector
}

func TestDiffuserA_RoundTrip(t *testing.T) {
	original := sampleSector()
	decrypted, err := DiffuserADecrypt(original)
	require.NoError(t, err)
	restored, err := DiffuserAEncrypt(decrypted)
	require.NoError(t, err)
	assert.Equal(t, original, restored, "Diffuser A followed by its inverse must be identity")
}

func TestDiffuserB_RoundTrip(t *testing.T) {
	original := sampleSector()
	decrypted, err := DiffuserBDecrypt(original)
	require.NoError(t, err)
	restored, err := DiffuserBEncrypt(decrypted)
	require.NoError(t, err)
	assert.Equal(t, original, restored, "Diffuser B followed by its inverse must be identity")
}

func TestDiffuser_RejectsUnalignedLength(t *testing.T) {
	_, err := DiffuserADecrypt(make([]byte, 511))
	assert.Error(t, err)
}
