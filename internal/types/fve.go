package types

import "github.com/google/uuid"

// BlockSignature is the 8-byte magic that opens every FVE metadata block.
var BlockSignature = [8]byte{'-', 'F', 'V', 'E', '-', 'F', 'S', '-'}

// EncryptionMethod identifies the sector cipher a volume was encrypted
// with (spec §3 "Encryption Method").
type EncryptionMethod uint32

const (
	EncryptionMethodNone             EncryptionMethod = 0x0000
	EncryptionMethodAES128CBCDiffuser EncryptionMethod = 0x8000
	EncryptionMethodAES256CBCDiffuser EncryptionMethod = 0x8001
	EncryptionMethodAES128CBC        EncryptionMethod = 0x8002
	EncryptionMethodAES256CBC        EncryptionMethod = 0x8003
	EncryptionMethodAES128XTS        EncryptionMethod = 0x8004
	EncryptionMethodAES256XTS        EncryptionMethod = 0x8005
)

// HasDiffuser reports whether the method applies the Elephant diffuser.
func (m EncryptionMethod) HasDiffuser() bool {
	return m == EncryptionMethodAES128CBCDiffuser || m == EncryptionMethodAES256CBCDiffuser
}

// IsXTS reports whether the method is an AES-XTS variant.
func (m EncryptionMethod) IsXTS() bool {
	return m == EncryptionMethodAES128XTS || m == EncryptionMethodAES256XTS
}

func (m EncryptionMethod) String() string {
	switch m {
	case EncryptionMethodNone:
		return "none"
	case EncryptionMethodAES128CBCDiffuser:
		return "aes_128_cbc_diffuser"
	case EncryptionMethodAES256CBCDiffuser:
		return "aes_256_cbc_diffuser"
	case EncryptionMethodAES128CBC:
		return "aes_128_cbc"
	case EncryptionMethodAES256CBC:
		return "aes_256_cbc"
	case EncryptionMethodAES128XTS:
		return "aes_128_xts"
	case EncryptionMethodAES256XTS:
		return "aes_256_xts"
	default:
		return "unknown"
	}
}

// MetadataVersion distinguishes the Vista (1) from Windows 7+ (2) FVE
// metadata header layout (spec §4.D "Discovery").
type MetadataVersion uint16

const (
	MetadataVersionVista MetadataVersion = 1
	MetadataVersionWin7Plus MetadataVersion = 2
)

// BlockHeader is the fixed-size header at the start of each of the three
// FVE metadata block copies (spec §3 "FVE Metadata Block Header").
type BlockHeader struct {
	Signature          [8]byte
	Size               uint16
	Version            MetadataVersion
	EncryptedVolumeSize uint64
	NumberOfVolumeHeaderSectors uint16
	// Offsets of the three metadata copies, as recorded inside this block.
	// All three blocks must agree on these three values (spec §3 invariant).
	Offsets [3]uint64
	// Offset of the first sector of the backup NTFS region, used when
	// relocating the plaintext boot sectors (spec §4.G "NTFS shadow").
	BackupNTFSSectorOffset uint64
	EncryptionMethod EncryptionMethod
	VolumeIdentifier uuid.UUID
}

// MetadataHeader follows the BlockHeader inside each block and precedes the
// entry dataset (spec §3 "FVE Metadata Header").
type MetadataHeader struct {
	Size             uint32
	Version          uint32
	NextNonceCounter uint32
	// CreationTime is the volume's last-modification FILETIME at the time
	// this metadata copy was written. It is not consulted by the block
	// tie-break (spec §4.D); it is reported by Volume.CreationTime.
	CreationTime FILETIME
	DatasetSize  uint32
}

// EntryType is the `type` field of a metadata entry header (spec §3
// "Metadata Entry").
type EntryType uint16

const (
	EntryTypeProperty                EntryType = 0x0000
	EntryTypeVolumeMasterKey         EntryType = 0x0002
	EntryTypeFullVolumeEncryptionKey EntryType = 0x0003
	EntryTypeValidation              EntryType = 0x0004
	EntryTypeStartupKey              EntryType = 0x0006
	EntryTypeDriveLabel              EntryType = 0x0007
	EntryTypeAutoUnlock              EntryType = 0x0008
	EntryTypeVolumeHeaderBlock       EntryType = 0x0009
	EntryTypeDescription             EntryType = 0x000b
)

// ValueType is the `value_type` field of a metadata entry header (spec §3).
type ValueType uint16

const (
	ValueTypeErased             ValueType = 0x0000
	ValueTypeKey                ValueType = 0x0001
	ValueTypeUnicodeString      ValueType = 0x0002
	ValueTypeStretchKey         ValueType = 0x0003
	ValueTypeUseKey             ValueType = 0x0004
	ValueTypeAESCCMEncryptedKey ValueType = 0x0005
	ValueTypeTPMEncodedKey      ValueType = 0x0006
	ValueTypeValidationInfo     ValueType = 0x0007
	ValueTypeVolumeMasterKey    ValueType = 0x0008
	ValueTypeExternalKey        ValueType = 0x0009
	ValueTypeUpdate             ValueType = 0x000a
	ValueTypeVolumeHeaderBlock  ValueType = 0x000f
)

// ProtectionType is the VMK protection-type tag (spec §3 "Volume Master
// Key (VMK)").
type ProtectionType uint16

const (
	ProtectionTypeClearKey                ProtectionType = 0x0000
	ProtectionTypeTPM                     ProtectionType = 0x0100
	ProtectionTypeStartupKey              ProtectionType = 0x0200
	ProtectionTypeTPMAndPIN               ProtectionType = 0x0400
	ProtectionTypeRecoveryPassword        ProtectionType = 0x0800
	ProtectionTypePassword                ProtectionType = 0x2000
	ProtectionTypeTPMAndStartupKey        ProtectionType = 0x0300
	ProtectionTypeTPMAndPINAndStartupKey  ProtectionType = 0x0500
)

func (p ProtectionType) String() string {
	switch p {
	case ProtectionTypeClearKey:
		return "clear_key"
	case ProtectionTypeTPM:
		return "tpm"
	case ProtectionTypeStartupKey:
		return "startup_key"
	case ProtectionTypeTPMAndPIN:
		return "tpm_and_pin"
	case ProtectionTypeRecoveryPassword:
		return "recovery_password"
	case ProtectionTypePassword:
		return "password"
	case ProtectionTypeTPMAndStartupKey:
		return "tpm_and_startup_key"
	case ProtectionTypeTPMAndPINAndStartupKey:
		return "tpm_and_pin_and_startup_key"
	default:
		return "unknown"
	}
}

// EntryHeader is the fixed 8-byte header preceding every metadata entry's
// payload (spec §4.D "Dataset walk").
type EntryHeader struct {
	Size      uint16
	Type      EntryType
	ValueType ValueType
	Version   uint16
}

// MinEntrySize is the smallest legal entry: an 8-byte header with an empty
// payload (spec §8 invariant "entry.size >= 8").
const MinEntrySize = 8

// Entry is a fully decoded, tagged metadata entry. Payload holds the raw
// bytes after the 8-byte header; typed accessors for specific value types
// live in package fve, which decodes Payload on demand rather than eagerly
// for every entry (most entries are never inspected).
type Entry struct {
	EntryHeader
	Payload []byte
}
