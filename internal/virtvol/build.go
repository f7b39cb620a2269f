package virtvol

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/deploymenttheory/go-bde/internal/types"
)

// BuildRegions derives the region map from a selected FVE block header and
// the volume's true on-disk size (spec §3 "Region Map", §4.G "NTFS
// shadow"): the three metadata block copies are always carved out as
// RegionMetadataBlock. The NTFS boot region is never actually encrypted —
// discovery itself depends on reading it in the clear before any key is
// available (ntfsboot.DiscoverFVEOffsets) — so it is always carved out of
// the encrypted range too: on Vista it is relocated and served as
// RegionPlaintextShadow, while on Windows 7+ it is read in place. Everything
// else within [0, EncryptedVolumeSize) not otherwise claimed is
// RegionEncrypted; anything beyond EncryptedVolumeSize up to the image's
// true size is RegionUnencryptedTail (spec §4.F "Edge cases").
func BuildRegions(header types.BlockHeader, sectorSize, totalSize uint64) ([]types.Region, error) {
	if header.EncryptedVolumeSize > totalSize {
		return nil, errors.Errorf("virtvol: encrypted volume size %d exceeds image size %d", header.EncryptedVolumeSize, totalSize)
	}

	var carved []types.Region
	for _, offset := range header.Offsets {
		carved = append(carved, types.Region{
			Start: offset,
			End:   offset + uint64(header.Size),
			Kind:  types.RegionMetadataBlock,
		})
	}

	headerSpan := uint64(header.NumberOfVolumeHeaderSectors) * sectorSize
	if headerSpan > 0 {
		if header.Version == types.MetadataVersionVista {
			carved = append(carved, types.Region{
				Start:           0,
				End:             headerSpan,
				Kind:            types.RegionPlaintextShadow,
				RelocatedOffset: header.BackupNTFSSectorOffset * sectorSize,
			})
		} else {
			carved = append(carved, types.Region{
				Start: 0,
				End:   headerSpan,
				Kind:  types.RegionUnencryptedTail,
			})
		}
	}

	sort.Slice(carved, func(i, j int) bool { return carved[i].Start < carved[j].Start })

	var regions []types.Region
	var cursor uint64
	for _, r := range carved {
		if r.Start > cursor {
			regions = append(regions, types.Region{Start: cursor, End: r.Start, Kind: types.RegionEncrypted})
		}
		if r.End > cursor {
			regions = append(regions, r)
			cursor = r.End
		}
	}
	if cursor < header.EncryptedVolumeSize {
		regions = append(regions, types.Region{Start: cursor, End: header.EncryptedVolumeSize, Kind: types.RegionEncrypted})
		cursor = header.EncryptedVolumeSize
	}
	if cursor < totalSize {
		regions = append(regions, types.Region{Start: cursor, End: totalSize, Kind: types.RegionUnencryptedTail})
	}

	return regions, nil
}
