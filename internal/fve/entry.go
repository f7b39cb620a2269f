package fve

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/deploymenttheory/go-bde/internal/interfaces"
	"github.com/deploymenttheory/go-bde/internal/types"
)

// knownEntryTypes and knownValueTypes gate the forward-compatibility
// diagnostic (spec §7): anything outside these sets is still decoded and
// kept (its payload is opaque to us) but is reported via Logger rather
// than silently accepted, so a caller auditing a newer BDE format variant
// can tell what was skipped.
var knownEntryTypes = map[types.EntryType]bool{
	types.EntryTypeProperty:                true,
	types.EntryTypeVolumeMasterKey:         true,
	types.EntryTypeFullVolumeEncryptionKey: true,
	types.EntryTypeValidation:              true,
	types.EntryTypeStartupKey:              true,
	types.EntryTypeDriveLabel:              true,
	types.EntryTypeAutoUnlock:              true,
	types.EntryTypeVolumeHeaderBlock:       true,
	types.EntryTypeDescription:             true,
}

var knownValueTypes = map[types.ValueType]bool{
	types.ValueTypeErased:             true,
	types.ValueTypeKey:                true,
	types.ValueTypeUnicodeString:      true,
	types.ValueTypeStretchKey:         true,
	types.ValueTypeUseKey:             true,
	types.ValueTypeAESCCMEncryptedKey: true,
	types.ValueTypeTPMEncodedKey:      true,
	types.ValueTypeValidationInfo:     true,
	types.ValueTypeVolumeMasterKey:    true,
	types.ValueTypeExternalKey:        true,
	types.ValueTypeUpdate:             true,
	types.ValueTypeVolumeHeaderBlock:  true,
}

// WalkEntries decodes a flat sequence of tagged entries from data,
// following deploymenttheory-go-apfs's keybag_reader.go entry-walk loop
// (fixed header, variable payload, walked until the byte budget is
// exhausted). It is used both for a block's top-level
// dataset and, recursively, for the sub-entries nested inside a VMK entry
// or a .BEK external-key entry (spec §4.D "Nested entries inside a VMK
// entry follow the same header format and are recursively walked").
//
// Walking stops when consumed bytes reach len(data) or a zero-size entry
// is encountered (spec §4.D "Errors surfaced: TruncatedEntry" for the
// latter, treated here as the walk's natural end rather than a hard
// error). The number of bytes consumed is not reported to the caller.
func WalkEntries(data []byte, logger interfaces.Logger) ([]types.Entry, error) {
	if logger == nil {
		logger = interfaces.NopLogger{}
	}

	var entries []types.Entry
	offset := 0
	for offset+types.MinEntrySize <= len(data) {
		size := binary.LittleEndian.Uint16(data[offset : offset+2])
		if size == 0 {
			break
		}
		if size < types.MinEntrySize {
			return entries, errors.Errorf("fve: entry at offset %d has size %d, below the minimum of %d", offset, size, types.MinEntrySize)
		}
		if offset+int(size) > len(data) {
			return entries, errors.Errorf("fve: entry at offset %d declares size %d, which overruns the %d-byte dataset", offset, size, len(data))
		}

		entryType := types.EntryType(binary.LittleEndian.Uint16(data[offset+2 : offset+4]))
		valueType := types.ValueType(binary.LittleEndian.Uint16(data[offset+4 : offset+6]))
		version := binary.LittleEndian.Uint16(data[offset+6 : offset+8])

		if !knownEntryTypes[entryType] {
			logger.Warnf("fve: unknown entry type 0x%04x at offset %d, keeping payload opaque", uint16(entryType), offset)
		}
		if !knownValueTypes[valueType] {
			logger.Warnf("fve: unknown value type 0x%04x at offset %d, keeping payload opaque", uint16(valueType), offset)
		}

		entries = append(entries, types.Entry{
			EntryHeader: types.EntryHeader{
				Size:      size,
				Type:      entryType,
				ValueType: valueType,
				Version:   version,
			},
			Payload: data[offset+types.MinEntrySize : offset+int(size)],
		})

		offset += int(size)
	}

	return entries, nil
}

// FindByType returns the first entry of the given type, if any.
func FindByType(entries []types.Entry, t types.EntryType) (types.Entry, bool) {
	for _, e := range entries {
		if e.Type == t {
			return e, true
		}
	}
	return types.Entry{}, false
}

// FindAllByType returns every entry of the given type, in dataset order.
func FindAllByType(entries []types.Entry, t types.EntryType) []types.Entry {
	var out []types.Entry
	for _, e := range entries {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
