// Package unwrap implements the credential kinds, the stretch-key KDF, and
// the VMK-to-FVEK tree walk described in spec §4.E.
package unwrap

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/text/encoding/unicode"

	"github.com/deploymenttheory/go-bde/internal/types"
)

// CredentialKind identifies which of the five credential shapes a caller
// supplied (spec §4.E "Credential kinds").
type CredentialKind int

const (
	CredentialClearKey CredentialKind = iota
	CredentialRecoveryPassword
	CredentialUserPassword
	CredentialStartupKey
	CredentialRawFVEK
)

// protectionType reports the VMK protection-type tag a credential of this
// kind can unwrap.
func (k CredentialKind) protectionType() types.ProtectionType {
	switch k {
	case CredentialClearKey:
		return types.ProtectionTypeClearKey
	case CredentialRecoveryPassword:
		return types.ProtectionTypeRecoveryPassword
	case CredentialUserPassword:
		return types.ProtectionTypePassword
	case CredentialStartupKey:
		return types.ProtectionTypeStartupKey
	default:
		return types.ProtectionTypeClearKey
	}
}

// Credential is a caller-supplied unlock secret, already normalized into the
// byte material its matching VMK protector's unwrap path consumes.
type Credential struct {
	Kind CredentialKind

	// StretchInput is the byte string fed to the stretch-key KDF for
	// recovery-password and user-password credentials (spec §4.E).
	StretchInput []byte

	// ExternalKeyID and ExternalKeyBytes are set for startup-key
	// credentials: the identifier must match a VMK's external_key
	// sub-entry, and the bytes are the unwrap key directly (spec §6
	// ".BEK startup-key file").
	ExternalKeyID    uuid.UUID
	ExternalKeyBytes []byte

	// RawFVEK bypasses the VMK chain entirely: the caller already knows
	// the volume's full volume encryption key (spec §4.E "raw FVEK").
	RawFVEK []byte
}

// NewRecoveryPasswordCredential parses a 48-digit BitLocker recovery
// password (eight 6-digit groups, each divisible by 11 with the last digit
// the mod-11 checksum) and returns the credential it produces.
func NewRecoveryPasswordCredential(password string) (Credential, error) {
	groups := strings.FieldsFunc(password, func(r rune) bool { return r == '-' || r == ' ' })
	if len(groups) != 8 {
		return Credential{}, errors.Errorf("unwrap: recovery password must have 8 groups, got %d", len(groups))
	}

	values := make([]uint16, 8)
	for i, g := range groups {
		n, err := strconv.ParseUint(g, 10, 32)
		if err != nil || len(g) != 6 {
			return Credential{}, errors.Errorf("unwrap: recovery password group %d (%q) is not a 6-digit number", i, g)
		}
		if n%11 != 0 {
			return Credential{}, errors.Errorf("unwrap: recovery password group %d (%q) fails its checksum", i, g)
		}
		if n/11 > 65535 {
			return Credential{}, errors.Errorf("unwrap: recovery password group %d (%q) does not fit in 16 bits once divided by 11", i, g)
		}
		values[i] = uint16(n / 11)
	}

	stretchInput := make([]byte, 16)
	for i, v := range values {
		stretchInput[i*2] = byte(v)
		stretchInput[i*2+1] = byte(v >> 8)
	}

	return Credential{Kind: CredentialRecoveryPassword, StretchInput: stretchInput}, nil
}

// FormatRecoveryPassword renders a 16-byte stretch-key input as the 8-group,
// mod-11-checksummed digit string users are shown at encryption time — the
// inverse of NewRecoveryPasswordCredential.
func FormatRecoveryPassword(stretchInput []byte) (string, error) {
	if len(stretchInput) != 16 {
		return "", errors.Errorf("unwrap: recovery password stretch input must be 16 bytes, got %d", len(stretchInput))
	}
	groups := make([]string, 8)
	for i := 0; i < 8; i++ {
		v := uint16(stretchInput[i*2]) | uint16(stretchInput[i*2+1])<<8
		groups[i] = strconv.FormatUint(uint64(v)*11, 10)
		for len(groups[i]) < 6 {
			groups[i] = "0" + groups[i]
		}
	}
	return strings.Join(groups, "-"), nil
}

// NewUserPasswordCredential encodes a user-supplied password as UTF-16LE,
// the byte form the stretch-key KDF consumes for password protectors (spec
// §4.E).
func NewUserPasswordCredential(password string) (Credential, error) {
	encoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	encoded, err := encoder.String(password)
	if err != nil {
		return Credential{}, errors.Wrap(err, "unwrap: UTF-16LE-encoding password")
	}
	return Credential{Kind: CredentialUserPassword, StretchInput: []byte(encoded)}, nil
}

// NewStartupKeyCredential wraps an already-decoded .BEK external key (spec
// §6 ".BEK startup-key file", internal/fve.ParseBEK).
func NewStartupKeyCredential(id uuid.UUID, key []byte) Credential {
	return Credential{Kind: CredentialStartupKey, ExternalKeyID: id, ExternalKeyBytes: key}
}

// NewRawFVEKCredential supplies the full volume encryption key directly,
// skipping VMK discovery.
func NewRawFVEKCredential(fvek []byte) Credential {
	return Credential{Kind: CredentialRawFVEK, RawFVEK: fvek}
}

// NewClearKeyCredential requests unlock via a clear_key protector, which
// needs no caller-supplied secret at all.
func NewClearKeyCredential() Credential {
	return Credential{Kind: CredentialClearKey}
}
