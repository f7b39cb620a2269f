package bde

import (
	"context"
	"encoding/hex"
	"io"
	"os"
	"time"

	log "github.com/dsoprea/go-logging"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/deploymenttheory/go-bde/internal/bytestream"
	"github.com/deploymenttheory/go-bde/internal/crypto"
	"github.com/deploymenttheory/go-bde/internal/fve"
	"github.com/deploymenttheory/go-bde/internal/interfaces"
	"github.com/deploymenttheory/go-bde/internal/ntfsboot"
	"github.com/deploymenttheory/go-bde/internal/sectorcrypt"
	"github.com/deploymenttheory/go-bde/internal/types"
	"github.com/deploymenttheory/go-bde/internal/unwrap"
	"github.com/deploymenttheory/go-bde/internal/virtvol"
)

// State is one node of the unlock state machine (spec §4.H).
type State int

const (
	StateClosed State = iota
	StateOpened
	StateUnlocked
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpened:
		return "opened"
	case StateUnlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// defaultSectorSize is used when a boot sector's own BytesPerSector field
// is absent or zero (spec §4.F assumes the conventional 512-byte sector).
const defaultSectorSize = 512

// Volume is the top-level facade (spec §3 "Volume", §4.H): it owns the
// byte source, the reconciled FVE metadata, the unwrapped FVEK once
// unlocked, and the region map/virtual volume built from them.
type Volume struct {
	source interfaces.ByteSource
	owned  io.Closer // non-nil when Open (not OpenBytes) opened the source

	crypto interfaces.CryptoProvider
	logger interfaces.Logger
	config *Config

	state State

	selection  fve.Selection
	metaReader *fve.Reader

	cred     unwrap.Credential
	hasCred  bool
	fvek     []byte
	vv       *virtvol.VirtualVolume
	sectSize int
}

// Open opens path as a regular file and parses its FVE metadata,
// transitioning Closed -> Opened (spec §6 "open(source) -> Volume").
func Open(path string) (*Volume, error) {
	f, openErr := bytestream.FromFile(path)
	if openErr != nil {
		return nil, newError(IoError, "opening volume image", openErr)
	}

	v, err := openSource(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	v.owned = f
	return v, nil
}

// OpenBytes opens an in-memory image fragment, the ByteSource consumer
// spec §6 names alongside a plain file (spec §6 "Consumed from
// collaborators: Byte source").
func OpenBytes(data []byte) (*Volume, error) {
	return openSource(bytestream.FromBytes(data))
}

func openSource(source interfaces.ByteSource) (*Volume, error) {
	config, err := LoadConfig()
	if err != nil {
		return nil, newError(IoError, "loading configuration", err)
	}

	discovery, err := ntfsboot.DiscoverFVEOffsets(source, 0)
	if err != nil {
		return nil, newError(MetadataCorrupt, "discovering FVE metadata block offsets", err)
	}

	logger := interfaces.NopLogger{}
	selection, err := fve.DiscoverAndSelect(source, discovery.Offsets, logger)
	if err != nil {
		return nil, newError(MetadataCorrupt, "reconciling FVE metadata block copies", err)
	}

	return &Volume{
		source:    source,
		crypto:    crypto.NewDefault(),
		logger:    logger,
		config:    config,
		state:     StateOpened,
		selection: selection,
		metaReader: fve.NewReader(selection),
	}, nil
}

// SetRecoveryPassword stores a 48-digit recovery password credential for
// the next Unlock call (spec §6 "set_recovery_password").
func (v *Volume) SetRecoveryPassword(asciiDigits string) error {
	cred, err := unwrap.NewRecoveryPasswordCredential(asciiDigits)
	if err != nil {
		return newError(InvalidCredential, "parsing recovery password", err)
	}
	v.cred, v.hasCred = cred, true
	return nil
}

// SetPassword stores a UTF-8 user password credential (spec §6
// "set_password").
func (v *Volume) SetPassword(utf8 string) error {
	cred, err := unwrap.NewUserPasswordCredential(utf8)
	if err != nil {
		return newError(InvalidCredential, "encoding password", err)
	}
	v.cred, v.hasCred = cred, true
	return nil
}

// SetStartupKeyPath reads and parses a .BEK startup-key file from disk and
// stores the resulting credential (spec §6 "set_startup_key_path").
func (v *Volume) SetStartupKeyPath(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return newError(IoError, "reading .BEK startup-key file", err)
	}
	ek, err := fve.ParseBEK(data, v.logger)
	if err != nil {
		return newError(InvalidCredential, "parsing .BEK startup-key file", err)
	}
	v.cred, v.hasCred = unwrap.NewStartupKeyCredential(ek.ID, ek.Key), true
	return nil
}

// SetKeys supplies the FVEK directly as hex, bypassing VMK discovery. For
// diffuser cipher modes, tweakHex carries the second half of the key
// material; pass "" when the volume's method has no diffuser (spec §6
// "set_keys(volume, fvek_hex[, tweak_hex])").
func (v *Volume) SetKeys(fvekHex, tweakHex string) error {
	fvek, err := hex.DecodeString(fvekHex)
	if err != nil {
		return newError(InvalidCredential, "decoding fvek_hex", err)
	}
	if tweakHex != "" {
		tweak, err := hex.DecodeString(tweakHex)
		if err != nil {
			return newError(InvalidCredential, "decoding tweak_hex", err)
		}
		fvek = append(fvek, tweak...)
	}
	v.cred, v.hasCred = unwrap.NewRawFVEKCredential(fvek), true
	return nil
}

// SetClearKey requests unlock via a clear_key protector, which needs no
// caller-supplied secret.
func (v *Volume) SetClearKey() {
	v.cred, v.hasCred = unwrap.NewClearKeyCredential(), true
}

// Unlock runs the key-protector unwrap chain against the stored
// credential and, on success, assembles the region map and transitions
// Opened -> Unlocked (spec §4.H). ctx bounds the stretch-key loop's abort
// latency (spec §5).
func (v *Volume) Unlock(ctx context.Context) error {
	if v.state == StateUnlocked {
		return nil
	}
	if !v.hasCred {
		return newError(InvalidCredential, "no credential has been set", nil)
	}

	fvek, err := unwrap.UnwrapFVEK(ctx, v.crypto, v.metaReader, v.cred, v.logger, v.config.StretchAbortPollInterval)
	if err != nil {
		if ctx.Err() != nil {
			return newError(Aborted, "unlock aborted", ctx.Err())
		}
		return newError(UnlockFailed, "unwrapping full volume encryption key", err)
	}

	header := v.metaReader.BlockHeader()
	sectorSize := v.detectSectorSize()

	engine, err := sectorcrypt.NewEngine(v.crypto, header.EncryptionMethod, fvek, sectorSize)
	if err != nil {
		return newError(UnsupportedEncryptionMethod, "building sector decryption engine", err)
	}

	totalSize, err := v.source.Size()
	if err != nil {
		return newError(IoError, "measuring volume image size", err)
	}

	regions, err := virtvol.BuildRegions(header, uint64(sectorSize), totalSize)
	if err != nil {
		return newError(MetadataCorrupt, "building region map", err)
	}
	regionMap, err := virtvol.NewRegionMap(regions, totalSize)
	if err != nil {
		return newError(MetadataCorrupt, "validating region map coverage", err)
	}

	v.fvek = fvek
	v.sectSize = sectorSize
	v.vv = virtvol.NewVirtualVolume(v.source, regionMap, engine, totalSize, v.config.CacheSize)
	v.state = StateUnlocked
	return nil
}

// detectSectorSize re-parses the volume's own boot sector (already known
// to carry a valid FVE offset triple from discovery) for its
// BytesPerSector field, falling back to the conventional 512 if it is
// absent or zero.
func (v *Volume) detectSectorSize() int {
	raw, err := bytestream.ReadAllAt(v.source, 0, types.BootSectorSize)
	if err != nil {
		return defaultSectorSize
	}
	if v.metaReader.BlockHeader().Version == types.MetadataVersionVista {
		bs, err := ntfsboot.ParseBitLockerBootSector(raw)
		if err == nil && bs.BytesPerSector != 0 {
			return int(bs.BytesPerSector)
		}
		return defaultSectorSize
	}
	bs, err := ntfsboot.ParseNTFSBootSector(raw)
	if err == nil && bs.BytesPerSector != 0 {
		return int(bs.BytesPerSector)
	}
	return defaultSectorSize
}

// IsLocked reports whether the volume has not (yet) been unlocked (spec §6
// "is_locked").
func (v *Volume) IsLocked() bool {
	return v.state != StateUnlocked
}

// VolumeSize returns the encrypted-volume size recorded in the selected
// FVE block header (spec §6 "volume_size").
func (v *Volume) VolumeSize() uint64 {
	return v.metaReader.BlockHeader().EncryptedVolumeSize
}

// EncryptionMethod returns the volume's configured cipher mode (spec §6
// "encryption_method").
func (v *Volume) EncryptionMethod() types.EncryptionMethod {
	return v.metaReader.BlockHeader().EncryptionMethod
}

// VolumeIdentifier returns the volume's GUID (spec §6 "volume_identifier").
func (v *Volume) VolumeIdentifier() uuid.UUID {
	return v.metaReader.BlockHeader().VolumeIdentifier
}

// CreationTime returns the selected metadata copy's recorded
// last-modification time (spec §6 "creation_time").
func (v *Volume) CreationTime() time.Time {
	return v.metaReader.MetadataHeader().CreationTime.Time()
}

// NumberOfKeyProtectors returns how many volume_master_key entries the
// selected metadata carries (spec §6 "number_of_key_protectors").
func (v *Volume) NumberOfKeyProtectors() int {
	return len(fve.FindAllByType(v.metaReader.Entries(), types.EntryTypeVolumeMasterKey))
}

// KeyProtector summarizes the index-th volume_master_key entry (spec §6
// "key_protector(volume, index) -> KeyProtectorInfo"). index is validated
// with a panic-and-recover guard, the idiom the teacher's exfat tree walker
// uses to turn an internal invariant violation into a clean error instead
// of letting a slice-index panic escape to the caller.
func (v *Volume) KeyProtector(index int) (info interfaces.KeyProtectorInfo, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = newError(OutOfRange, "key protector index out of range", log.Wrap(errRaw.(error)))
		}
	}()

	vmkEntries := fve.FindAllByType(v.metaReader.Entries(), types.EntryTypeVolumeMasterKey)
	if index < 0 || index >= len(vmkEntries) {
		log.PanicIf(errIndexOutOfRange)
	}

	vmk, decodeErr := fve.DecodeVMK(vmkEntries[index], v.logger)
	if decodeErr != nil {
		return interfaces.KeyProtectorInfo{}, newError(MetadataCorrupt, "decoding key protector entry", decodeErr)
	}

	result := interfaces.KeyProtectorInfo{
		ID:             vmk.ID,
		ProtectionType: vmk.ProtectionType,
		LastModified:   vmk.LastModified,
	}
	if stretchEntry, ok := fve.FindByType2(vmk.SubEntries, types.ValueTypeStretchKey); ok {
		if sk, err := fve.DecodeStretchKey(stretchEntry.Payload, v.logger); err == nil {
			result.Salt = append([]byte{}, sk.Salt[:]...)
		}
	}
	return result, nil
}

// ReadAt reads length bytes of decrypted plaintext starting at the
// logical offset; permitted only once Unlocked (spec §6 "read_at",
// §4.H "read(...) is permitted only in Unlocked").
func (v *Volume) ReadAt(offset, length uint64) ([]byte, error) {
	if v.state != StateUnlocked {
		return nil, newError(NotUnlocked, "volume is not unlocked", nil)
	}
	data, err := v.vv.ReadRandom(offset, length)
	if err != nil {
		return nil, newError(IoError, "reading decrypted volume bytes", err)
	}
	return data, nil
}

// Diagnostics summarizes the reconciled metadata state for human
// inspection (spec §8 scenario "number_of_key_protectors consistent").
type Diagnostics struct {
	ValidBlockCount      int
	SelectedBlockOffset  uint64
	HumanReadableSize    string
	NumberOfKeyProtectors int
}

// Diagnostics reports block-validation and size information in both exact
// and human-readable form.
func (v *Volume) Diagnostics() Diagnostics {
	return Diagnostics{
		ValidBlockCount:       v.metaReader.ValidBlockCount(),
		SelectedBlockOffset:   v.metaReader.SelectedBlockOffset(),
		HumanReadableSize:     humanize.Bytes(v.VolumeSize()),
		NumberOfKeyProtectors: v.NumberOfKeyProtectors(),
	}
}

// Close zeroizes all recovered key material and releases the byte source
// if Volume itself opened it (spec §5 "Key material is zeroised on close",
// §4.H "Unlocked -> Closed").
func (v *Volume) Close() error {
	for i := range v.fvek {
		v.fvek[i] = 0
	}
	v.fvek = nil
	zeroBytes(v.cred.RawFVEK)
	zeroBytes(v.cred.StretchInput)
	zeroBytes(v.cred.ExternalKeyBytes)
	v.cred = unwrap.Credential{}
	v.hasCred = false
	v.vv = nil
	v.state = StateClosed

	if v.owned != nil {
		return v.owned.Close()
	}
	return nil
}

var errIndexOutOfRange = newError(OutOfRange, "index out of range", nil)

// zeroBytes scrubs b in place; a nil or empty slice is a no-op.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
