package interfaces

import (
	"github.com/deploymenttheory/go-bde/internal/types"
	"github.com/google/uuid"
)

// MetadataReader exposes the reconciled view of a volume's FVE metadata
// (spec §4.D) that the rest of the core builds on: geometry, the selected
// block header, and the list of top-level dataset entries to walk for key
// protectors.
type MetadataReader interface {
	// BlockHeader returns the header of whichever of the three candidate
	// blocks was selected (spec §4.D "Validation" tie-break rule).
	BlockHeader() types.BlockHeader

	// MetadataHeader returns the header following the selected block.
	MetadataHeader() types.MetadataHeader

	// Entries returns the top-level decoded entries of the selected
	// block's dataset (spec §4.D "Dataset walk").
	Entries() []types.Entry

	// ValidBlockCount returns how many of the three candidate blocks
	// passed validation (spec §8 scenario 5 "number_of_key_protectors
	// consistent").
	ValidBlockCount() int

	// SelectedBlockOffset returns the on-disk offset of the block chosen
	// as authoritative.
	SelectedBlockOffset() uint64
}

// KeyProtectorInfo summarizes one VMK entry for callers that enumerate
// protectors without attempting to unlock (spec §6
// "key_protector(volume, index) -> KeyProtectorInfo").
type KeyProtectorInfo struct {
	ID             uuid.UUID
	ProtectionType types.ProtectionType
	LastModified   types.FILETIME
	// Salt is populated only for password/recovery-password protectors;
	// nil otherwise. Never the derived or wrapped key material itself.
	Salt []byte
}
