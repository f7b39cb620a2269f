package types

// RegionKind tags a span of the region map (spec §3 "Region Map").
type RegionKind int

const (
	// RegionEncrypted is served by decrypting the underlying sector(s).
	RegionEncrypted RegionKind = iota
	// RegionPlaintextShadow is served from a relocated plaintext copy
	// elsewhere on the volume rather than the bytes at this offset.
	RegionPlaintextShadow
	// RegionMetadataBlock is one of the three FVE metadata block copies.
	// It is never part of the encrypted payload in either metadata
	// version and is always served as raw on-disk bytes.
	RegionMetadataBlock
	// RegionUnencryptedTail covers bytes outside any encrypted range,
	// returned as-is (spec §4.F "Edge cases").
	RegionUnencryptedTail
)

func (k RegionKind) String() string {
	switch k {
	case RegionEncrypted:
		return "encrypted"
	case RegionPlaintextShadow:
		return "plaintext_shadow"
	case RegionMetadataBlock:
		return "metadata_block"
	case RegionUnencryptedTail:
		return "unencrypted_tail"
	default:
		return "unknown"
	}
}

// Region is one non-overlapping span of the volume's logical address space.
type Region struct {
	Start uint64
	End   uint64 // exclusive
	Kind  RegionKind
	// RelocatedOffset is set only for RegionPlaintextShadow: the on-disk
	// offset the caller's logical read should actually be served from
	// (spec §4.G "NTFS shadow").
	RelocatedOffset uint64
}

// Len returns the region's length in bytes.
func (r Region) Len() uint64 {
	return r.End - r.Start
}

// Contains reports whether offset falls within [Start, End).
func (r Region) Contains(offset uint64) bool {
	return offset >= r.Start && offset < r.End
}
