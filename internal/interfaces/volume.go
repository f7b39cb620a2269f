package interfaces

import "github.com/deploymenttheory/go-bde/internal/types"

// SectorDecrypter decrypts a single encrypted sector at a known logical
// offset (spec §4.F). Implementations receive exactly one sector's worth
// of on-disk ciphertext; straddling an encryption boundary cannot happen
// by construction (sectors are the unit of encryption).
type SectorDecrypter interface {
	DecryptSector(offset uint64, ciphertext []byte) ([]byte, error)
	SectorSize() int
}

// RegionMapper exposes the region map a VirtualVolume reads through (spec
// §3 "Region Map", §4.G).
type RegionMapper interface {
	// Lookup returns the region containing offset.
	Lookup(offset uint64) (types.Region, bool)
	// Regions returns the full ordered region list, for diagnostics and
	// the coverage invariant check (spec §8).
	Regions() []types.Region
}
