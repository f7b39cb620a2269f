package fve

import (
	"github.com/pkg/errors"

	"github.com/deploymenttheory/go-bde/internal/interfaces"
	"github.com/deploymenttheory/go-bde/internal/types"
)

// ParseBEK decodes a .BEK startup-key file: a single flat FVE-style
// dataset (no block/metadata header, unlike a full FVE metadata block)
// containing one external_key entry (spec §6 "on-disk formats").
func ParseBEK(data []byte, logger interfaces.Logger) (ExternalKey, error) {
	entries, err := WalkEntries(data, logger)
	if err != nil {
		return ExternalKey{}, errors.Wrap(err, "fve: .BEK dataset")
	}

	entry, ok := FindByType2(entries, types.ValueTypeExternalKey)
	if !ok {
		return ExternalKey{}, errors.New("fve: .BEK file has no external_key entry")
	}
	return DecodeExternalKey(entry, logger)
}
