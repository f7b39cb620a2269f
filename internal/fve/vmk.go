package fve

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/deploymenttheory/go-bde/internal/interfaces"
	"github.com/deploymenttheory/go-bde/internal/types"
)

// AESCCMEncryptedKey is the decoded payload of a value_type=aes_ccm_encrypted_key
// entry: a 12-byte nonce, a 16-byte authentication tag, and the wrapped
// ciphertext (spec §4.E "AES-CCM unwrap").
type AESCCMEncryptedKey struct {
	Nonce      [12]byte
	MAC        [16]byte
	Ciphertext []byte
}

// DecodeAESCCMEncryptedKey parses a value_type=aes_ccm_encrypted_key entry
// payload.
func DecodeAESCCMEncryptedKey(payload []byte) (AESCCMEncryptedKey, error) {
	var k AESCCMEncryptedKey
	if len(payload) < 28 {
		return k, errors.Errorf("fve: aes_ccm_encrypted_key payload too short: %d bytes", len(payload))
	}
	copy(k.Nonce[:], payload[0:12])
	copy(k.MAC[:], payload[12:28])
	k.Ciphertext = payload[28:]
	return k, nil
}

// StretchKey is the decoded payload of a value_type=stretch_key entry: a
// 16-byte salt and the nested aes_ccm_encrypted_key entry it protects
// (spec §3 "Sub-entries supply the wrap material: a stretch_key (salt +
// intermediate aes_ccm_encrypted_key) for password-based protectors").
type StretchKey struct {
	Salt    [16]byte
	Wrapped AESCCMEncryptedKey
}

// DecodeStretchKey parses a value_type=stretch_key entry payload: a fixed
// 16-byte salt followed by one nested entry, itself
// value_type=aes_ccm_encrypted_key.
func DecodeStretchKey(payload []byte, logger interfaces.Logger) (StretchKey, error) {
	var sk StretchKey
	if len(payload) < 16 {
		return sk, errors.Errorf("fve: stretch_key payload too short: %d bytes", len(payload))
	}
	copy(sk.Salt[:], payload[:16])

	nested, err := WalkEntries(payload[16:], logger)
	if err != nil {
		return sk, errors.Wrap(err, "fve: stretch_key nested entry")
	}
	wrappedEntry, ok := FindByType2(nested, types.ValueTypeAESCCMEncryptedKey)
	if !ok {
		return sk, errors.New("fve: stretch_key has no nested aes_ccm_encrypted_key entry")
	}
	sk.Wrapped, err = DecodeAESCCMEncryptedKey(wrappedEntry.Payload)
	return sk, err
}

// FindByType2 returns the first entry whose ValueType matches v.
func FindByType2(entries []types.Entry, v types.ValueType) (types.Entry, bool) {
	for _, e := range entries {
		if e.ValueType == v {
			return e, true
		}
	}
	return types.Entry{}, false
}

// VMK is a decoded volume_master_key entry (spec §3 "Volume Master Key
// (VMK)"): its identifier, last-modification time, protection-type tag,
// and the raw sub-entries a protector-specific unwrap consumes.
type VMK struct {
	ID             uuid.UUID
	LastModified   types.FILETIME
	ProtectionType types.ProtectionType
	SubEntries     []types.Entry
}

// vmkPrefixSize is the fixed part of a VMK entry's payload preceding its
// nested sub-entry dataset: GUID(16) + FILETIME(8) + ProtectionType(2) +
// padding(2).
const vmkPrefixSize = 28

// DecodeVMK parses a value_type=volume_master_key entry.
func DecodeVMK(entry types.Entry, logger interfaces.Logger) (VMK, error) {
	var vmk VMK
	payload := entry.Payload
	if len(payload) < vmkPrefixSize {
		return vmk, errors.Errorf("fve: volume_master_key payload too short: %d bytes", len(payload))
	}

	var guidBytes [16]byte
	copy(guidBytes[:], payload[0:16])
	vmk.ID = types.GUIDFromWindowsBytes(guidBytes)
	vmk.LastModified = types.FILETIME(leUint64(payload[16:24]))
	vmk.ProtectionType = types.ProtectionType(leUint16(payload[24:26]))

	subEntries, err := WalkEntries(payload[vmkPrefixSize:], logger)
	if err != nil {
		return vmk, errors.Wrap(err, "fve: volume_master_key sub-entries")
	}
	vmk.SubEntries = subEntries
	return vmk, nil
}

// ExternalKey is the decoded payload of a .BEK startup-key file's
// external_key entry: the identifier that must match a VMK's identifier,
// and the raw key bytes to use as the unwrap key (spec §6 ".BEK startup-key
// file").
type ExternalKey struct {
	ID  uuid.UUID
	Key []byte
}

// externalKeyPrefixSize is the GUID preceding the nested key entry.
const externalKeyPrefixSize = 16

// DecodeExternalKey parses a value_type=external_key entry payload: a GUID
// followed by one nested value_type=key entry.
func DecodeExternalKey(entry types.Entry, logger interfaces.Logger) (ExternalKey, error) {
	var ek ExternalKey
	payload := entry.Payload
	if len(payload) < externalKeyPrefixSize {
		return ek, errors.Errorf("fve: external_key payload too short: %d bytes", len(payload))
	}

	var guidBytes [16]byte
	copy(guidBytes[:], payload[0:16])
	ek.ID = types.GUIDFromWindowsBytes(guidBytes)

	nested, err := WalkEntries(payload[externalKeyPrefixSize:], logger)
	if err != nil {
		return ek, errors.Wrap(err, "fve: external_key nested entry")
	}
	keyEntry, ok := FindByType2(nested, types.ValueTypeKey)
	if !ok {
		return ek, errors.New("fve: external_key has no nested key entry")
	}
	ek.Key = keyEntry.Payload
	return ek, nil
}

func leUint16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
