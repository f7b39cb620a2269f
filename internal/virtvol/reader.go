package virtvol

import (
	"io"

	"github.com/pkg/errors"

	"github.com/deploymenttheory/go-bde/internal/interfaces"
	"github.com/deploymenttheory/go-bde/internal/types"
)

// VirtualVolume presents a decrypted BDE volume as a linear, randomly
// addressable byte stream (spec §4.G). It owns no cryptographic state of
// its own: decryption is delegated to a SectorDecrypter, and region
// classification to a RegionMapper.
type VirtualVolume struct {
	source     interfaces.ByteSource
	regions    interfaces.RegionMapper
	decrypter  interfaces.SectorDecrypter
	volumeSize uint64
	cache      *sectorCache
}

// NewVirtualVolume builds a read-through engine over source, decrypting
// through decrypter according to regions, with a sector cache of the given
// capacity. A cacheSize of 0 or less disables caching; there is no fallback
// to DefaultCacheSize.
func NewVirtualVolume(source interfaces.ByteSource, regions interfaces.RegionMapper, decrypter interfaces.SectorDecrypter, volumeSize uint64, cacheSize int) *VirtualVolume {
	return &VirtualVolume{
		source:     source,
		regions:    regions,
		decrypter:  decrypter,
		volumeSize: volumeSize,
		cache:      newSectorCache(cacheSize),
	}
}

// ReadRandom reads length bytes starting at the logical offset, clipping to
// [0, volumeSize) (spec §4.G steps 1-2, §8 "Boundary behaviours").
func (v *VirtualVolume) ReadRandom(offset, length uint64) ([]byte, error) {
	if offset >= v.volumeSize || length == 0 {
		return nil, nil
	}
	if offset+length > v.volumeSize {
		length = v.volumeSize - offset
	}

	out := make([]byte, 0, length)
	remaining := length
	cursor := offset

	for remaining > 0 {
		region, ok := v.regions.Lookup(cursor)
		if !ok {
			return nil, errors.Errorf("virtvol: offset %d is not covered by any region", cursor)
		}

		chunkEnd := region.End
		if chunkEnd > cursor+remaining {
			chunkEnd = cursor + remaining
		}
		chunk, err := v.readRegionSpan(region, cursor, chunkEnd-cursor)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)

		advanced := chunkEnd - cursor
		cursor = chunkEnd
		remaining -= advanced
	}

	return out, nil
}

// readRegionSpan reads [start, start+length) from within a single region,
// decrypting sector-by-sector through the cache when the region is
// encrypted (spec §4.G step 2-3), or serving plaintext-shadow bytes from
// their relocated offset (spec §4.G "NTFS shadow").
func (v *VirtualVolume) readRegionSpan(region types.Region, start, length uint64) ([]byte, error) {
	switch region.Kind {
	case types.RegionPlaintextShadow:
		relocatedStart := region.RelocatedOffset + (start - region.Start)
		buf := make([]byte, length)
		if _, err := readFull(v.source, relocatedStart, buf); err != nil {
			return nil, errors.Wrap(err, "virtvol: reading plaintext-shadow span")
		}
		return buf, nil

	case types.RegionUnencryptedTail, types.RegionMetadataBlock:
		// FVE metadata blocks are never part of the encrypted payload in
		// either metadata version (they must be readable before any key is
		// unwrapped), so they are served as raw on-disk bytes, same as an
		// unencrypted tail.
		buf := make([]byte, length)
		if _, err := readFull(v.source, start, buf); err != nil {
			return nil, errors.Wrap(err, "virtvol: reading unencrypted span")
		}
		return buf, nil

	case types.RegionEncrypted:
		return v.readEncryptedSpan(start, length)

	default:
		return nil, errors.Errorf("virtvol: unknown region kind %s", region.Kind)
	}
}

// readEncryptedSpan reads and decrypts, sector by sector, through the
// cache.
func (v *VirtualVolume) readEncryptedSpan(start, length uint64) ([]byte, error) {
	sectorSize := uint64(v.decrypter.SectorSize())
	out := make([]byte, 0, length)

	cursor := start
	end := start + length
	for cursor < end {
		sectorOffset := (cursor / sectorSize) * sectorSize
		plain, ok := v.cache.get(sectorOffset)
		if !ok {
			ciphertext := make([]byte, sectorSize)
			if _, err := readFull(v.source, sectorOffset, ciphertext); err != nil {
				return nil, errors.Wrap(err, "virtvol: reading encrypted sector")
			}
			decoded, err := v.decrypter.DecryptSector(sectorOffset, ciphertext)
			if err != nil {
				return nil, errors.Wrap(err, "virtvol: decrypting sector")
			}
			plain = decoded
			v.cache.put(sectorOffset, plain)
		}

		sectorRelStart := cursor - sectorOffset
		sectorRelEnd := sectorSize
		if sectorOffset+sectorSize > end {
			sectorRelEnd = end - sectorOffset
		}
		out = append(out, plain[sectorRelStart:sectorRelEnd]...)
		cursor = sectorOffset + sectorRelEnd
	}

	return out, nil
}

func readFull(source interfaces.ByteSource, offset uint64, buf []byte) (int, error) {
	n, err := source.ReadAt(offset, buf)
	if err != nil && err != io.EOF {
		return n, err
	}
	if n < len(buf) {
		return n, errors.Errorf("virtvol: short read at offset %d: got %d of %d bytes", offset, n, len(buf))
	}
	return n, nil
}
