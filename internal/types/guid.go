// Package types defines the on-disk structures of the BitLocker Drive
// Encryption (BDE) full-volume-encryption format: FVE metadata blocks,
// metadata entries, key protectors, and the NTFS/BitLocker boot sectors
// that reference them.
package types

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"
)

// GUIDFromWindowsBytes decodes a 16-byte on-disk GUID in Microsoft's
// mixed-endian layout (the first three fields are little-endian, the last
// two are big-endian byte strings) into a standard RFC 4122 uuid.UUID.
func GUIDFromWindowsBytes(b [16]byte) uuid.UUID {
	var out uuid.UUID
	binary.BigEndian.PutUint32(out[0:4], binary.LittleEndian.Uint32(b[0:4]))
	binary.BigEndian.PutUint16(out[4:6], binary.LittleEndian.Uint16(b[4:6]))
	binary.BigEndian.PutUint16(out[6:8], binary.LittleEndian.Uint16(b[6:8]))
	copy(out[8:16], b[8:16])
	return out
}

// PutGUIDWindowsBytes encodes a uuid.UUID back into the mixed-endian layout
// described in GUIDFromWindowsBytes. Provided for round-trip tests; this
// read-only system never writes a GUID to a volume.
func PutGUIDWindowsBytes(id uuid.UUID) [16]byte {
	var out [16]byte
	binary.LittleEndian.PutUint32(out[0:4], binary.BigEndian.Uint32(id[0:4]))
	binary.LittleEndian.PutUint16(out[4:6], binary.BigEndian.Uint16(id[4:6]))
	binary.LittleEndian.PutUint16(out[6:8], binary.BigEndian.Uint16(id[6:8]))
	copy(out[8:16], id[8:16])
	return out
}

// filetimeEpochOffset is the number of 100ns ticks between the Windows
// FILETIME epoch (1601-01-01) and the Unix epoch (1970-01-01).
const filetimeEpochOffset = 116444736000000000

// FILETIME is a Windows FILETIME value: 100ns ticks since 1601-01-01 UTC.
type FILETIME uint64

// Time converts a FILETIME to a time.Time in UTC.
func (f FILETIME) Time() time.Time {
	ticks := int64(f) - filetimeEpochOffset
	return time.Unix(ticks/10000000, (ticks%10000000)*100).UTC()
}

// FILETIMEFromTime converts a time.Time into a FILETIME. Provided for
// tests constructing synthetic metadata headers.
func FILETIMEFromTime(t time.Time) FILETIME {
	unixTicks := t.UTC().UnixNano() / 100
	return FILETIME(unixTicks + filetimeEpochOffset)
}
