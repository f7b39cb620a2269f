package virtvol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bde/internal/types"
)

func TestBuildRegions_VistaHasPlaintextShadow(t *testing.T) {
	header := types.BlockHeader{
		Size:                        80,
		Version:                     types.MetadataVersionVista,
		EncryptedVolumeSize:         1 << 20,
		NumberOfVolumeHeaderSectors: 1,
		Offsets:                     [3]uint64{0x4000, 0x8000, 0xC000},
		BackupNTFSSectorOffset:      200, // sector number
	}
	const sectorSize = 512

	regions, err := BuildRegions(header, sectorSize, header.EncryptedVolumeSize)
	require.NoError(t, err)

	rm, err := NewRegionMap(regions, header.EncryptedVolumeSize)
	require.NoError(t, err)

	shadow, ok := rm.Lookup(0)
	require.True(t, ok)
	assert.Equal(t, types.RegionPlaintextShadow, shadow.Kind)
	assert.Equal(t, uint64(200*sectorSize), shadow.RelocatedOffset)

	for _, off := range header.Offsets {
		r, ok := rm.Lookup(off)
		require.True(t, ok)
		assert.Equal(t, types.RegionMetadataBlock, r.Kind)
	}
}

func TestBuildRegions_Win7PlusHeaderSpanIsUnencryptedInPlace(t *testing.T) {
	header := types.BlockHeader{
		Size:                        80,
		Version:                     types.MetadataVersionWin7Plus,
		EncryptedVolumeSize:         1 << 20,
		NumberOfVolumeHeaderSectors: 1,
		Offsets:                     [3]uint64{0x4000, 0x8000, 0xC000},
	}
	const sectorSize = 512

	regions, err := BuildRegions(header, sectorSize, header.EncryptedVolumeSize)
	require.NoError(t, err)

	rm, err := NewRegionMap(regions, header.EncryptedVolumeSize)
	require.NoError(t, err)

	r, ok := rm.Lookup(0)
	require.True(t, ok)
	assert.Equal(t, types.RegionUnencryptedTail, r.Kind)

	encrypted, ok := rm.Lookup(sectorSize)
	require.True(t, ok)
	assert.Equal(t, types.RegionEncrypted, encrypted.Kind)
}

func TestBuildRegions_UnencryptedTailAppendedWhenImageLarger(t *testing.T) {
	header := types.BlockHeader{
		Size:                80,
		Version:             types.MetadataVersionWin7Plus,
		EncryptedVolumeSize: 4096,
		Offsets:             [3]uint64{512, 1024, 1536},
	}
	const totalSize = 8192

	regions, err := BuildRegions(header, 512, totalSize)
	require.NoError(t, err)
	rm, err := NewRegionMap(regions, totalSize)
	require.NoError(t, err)

	tail, ok := rm.Lookup(4096)
	require.True(t, ok)
	assert.Equal(t, types.RegionUnencryptedTail, tail.Kind)
	assert.Equal(t, uint64(totalSize), tail.End)
}

func TestBuildRegions_RejectsEncryptedSizeLargerThanImage(t *testing.T) {
	header := types.BlockHeader{EncryptedVolumeSize: 100}
	_, err := BuildRegions(header, 512, 50)
	assert.Error(t, err)
}
