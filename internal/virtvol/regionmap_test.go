package virtvol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bde/internal/types"
)

func TestNewRegionMap_AcceptsFullCoverage(t *testing.T) {
	regions := []types.Region{
		{Start: 512, End: 4096, Kind: types.RegionEncrypted},
		{Start: 0, End: 512, Kind: types.RegionPlaintextShadow, RelocatedOffset: 1 << 20},
	}
	rm, err := NewRegionMap(regions, 4096)
	require.NoError(t, err)
	assert.Len(t, rm.Regions(), 2)

	r, ok := rm.Lookup(0)
	require.True(t, ok)
	assert.Equal(t, types.RegionPlaintextShadow, r.Kind)

	r, ok = rm.Lookup(600)
	require.True(t, ok)
	assert.Equal(t, types.RegionEncrypted, r.Kind)
}

func TestNewRegionMap_RejectsGap(t *testing.T) {
	regions := []types.Region{
		{Start: 0, End: 512, Kind: types.RegionEncrypted},
		{Start: 1024, End: 2048, Kind: types.RegionEncrypted},
	}
	_, err := NewRegionMap(regions, 2048)
	assert.Error(t, err)
}

func TestNewRegionMap_RejectsShortCoverage(t *testing.T) {
	regions := []types.Region{
		{Start: 0, End: 1024, Kind: types.RegionEncrypted},
	}
	_, err := NewRegionMap(regions, 2048)
	assert.Error(t, err)
}

func TestNewRegionMap_LookupMiss(t *testing.T) {
	regions := []types.Region{{Start: 0, End: 512, Kind: types.RegionEncrypted}}
	rm, err := NewRegionMap(regions, 512)
	require.NoError(t, err)
	_, ok := rm.Lookup(1000)
	assert.False(t, ok)
}
