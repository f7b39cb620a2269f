package unwrap

import (
	"context"

	"github.com/pkg/errors"

	"github.com/deploymenttheory/go-bde/internal/fve"
	"github.com/deploymenttheory/go-bde/internal/interfaces"
	"github.com/deploymenttheory/go-bde/internal/types"
)

// ErrNoMatchingProtector is returned when no VMK entry's protection type
// matches the supplied credential.
var ErrNoMatchingProtector = errors.New("unwrap: no VMK protector matches the supplied credential")

// UnwrapFVEK walks the metadata's volume_master_key entries looking for one
// whose protection type matches cred, unwraps that VMK with cred, then
// unwraps the volume's full_volume_encryption_key entry with the recovered
// VMK (spec §4.E "VMK tree walk").
//
// VMKs whose protection type does not match cred are skipped with a
// diagnostic rather than treated as an error (spec §4.E "skip-with-diagnostic
// on protector-kind mismatch"): a volume normally carries several VMK
// entries, one per enrolled protector, and only one needs to match.
//
// abortPollInterval is forwarded to StretchKey for password-based
// protectors; a non-positive value falls back to DefaultAbortPollInterval.
func UnwrapFVEK(ctx context.Context, crypto interfaces.CryptoProvider, reader interfaces.MetadataReader, cred Credential, logger interfaces.Logger, abortPollInterval int) ([]byte, error) {
	if logger == nil {
		logger = interfaces.NopLogger{}
	}

	if cred.Kind == CredentialRawFVEK {
		return cred.RawFVEK, nil
	}

	entries := reader.Entries()
	vmkEntries := fve.FindAllByType(entries, types.EntryTypeVolumeMasterKey)

	var vmkKey []byte
	for _, e := range vmkEntries {
		vmk, err := fve.DecodeVMK(e, logger)
		if err != nil {
			logger.Warnf("unwrap: skipping unparseable VMK entry: %v", err)
			continue
		}
		if vmk.ProtectionType != cred.Kind.protectionType() {
			logger.Warnf("unwrap: VMK %s has protection type %s, does not match credential kind", vmk.ID, vmk.ProtectionType)
			continue
		}

		key, err := unwrapVMK(ctx, crypto, vmk, cred, logger, abortPollInterval)
		if err != nil {
			logger.Warnf("unwrap: VMK %s matched credential kind but failed to unwrap: %v", vmk.ID, err)
			continue
		}
		vmkKey = key
		break
	}
	if vmkKey == nil {
		return nil, ErrNoMatchingProtector
	}

	fvekEntry, ok := fve.FindByType(entries, types.EntryTypeFullVolumeEncryptionKey)
	if !ok {
		return nil, errors.New("unwrap: metadata has no full_volume_encryption_key entry")
	}
	wrapped, err := fve.DecodeAESCCMEncryptedKey(fvekEntry.Payload)
	if err != nil {
		return nil, errors.Wrap(err, "unwrap: decoding full_volume_encryption_key entry")
	}
	fvekPlaintext, err := crypto.AESCCMDecryptVerify(vmkKey, wrapped.Nonce[:], wrapped.Ciphertext, wrapped.MAC[:])
	if err != nil {
		return nil, errors.Wrap(err, "unwrap: unwrapping FVEK with recovered VMK key")
	}
	fvek, err := extractKeyEntry(fvekPlaintext, logger)
	if err != nil {
		return nil, errors.Wrap(err, "unwrap: decoding full_volume_encryption_key plaintext")
	}
	return fvek, nil
}

// extractKeyEntry parses AES-CCM-decrypted plaintext as a nested entry
// dataset and returns its key entry's payload (spec §4.E step 2: "Unwrapped
// VMK plaintext is itself a small nested dataset containing a key entry —
// the raw VMK bytes"; step 4 says the same of FVEK plaintext).
func extractKeyEntry(plaintext []byte, logger interfaces.Logger) ([]byte, error) {
	nested, err := fve.WalkEntries(plaintext, logger)
	if err != nil {
		return nil, errors.Wrap(err, "unwrap: walking decrypted key dataset")
	}
	keyEntry, ok := fve.FindByType2(nested, types.ValueTypeKey)
	if !ok {
		return nil, errors.New("unwrap: decrypted key dataset has no nested key entry")
	}
	return keyEntry.Payload, nil
}

// unwrapVMK recovers the VMK's own key material using cred, dispatching on
// protector kind (spec §4.E "Unwrap paths").
func unwrapVMK(ctx context.Context, crypto interfaces.CryptoProvider, vmk fve.VMK, cred Credential, logger interfaces.Logger, abortPollInterval int) ([]byte, error) {
	switch cred.Kind {
	case CredentialClearKey:
		keyEntry, ok := fve.FindByType2(vmk.SubEntries, types.ValueTypeKey)
		if !ok {
			return nil, errors.New("unwrap: clear_key VMK has no nested key entry")
		}
		return keyEntry.Payload, nil

	case CredentialRecoveryPassword, CredentialUserPassword:
		stretchEntry, ok := fve.FindByType2(vmk.SubEntries, types.ValueTypeStretchKey)
		if !ok {
			return nil, errors.New("unwrap: password-protected VMK has no nested stretch_key entry")
		}
		sk, err := fve.DecodeStretchKey(stretchEntry.Payload, logger)
		if err != nil {
			return nil, errors.Wrap(err, "unwrap: decoding stretch_key entry")
		}
		intermediateKey, err := StretchKey(ctx, cred.StretchInput, sk.Salt, abortPollInterval)
		if err != nil {
			return nil, err
		}
		plaintext, err := crypto.AESCCMDecryptVerify(intermediateKey[:], sk.Wrapped.Nonce[:], sk.Wrapped.Ciphertext, sk.Wrapped.MAC[:])
		if err != nil {
			return nil, errors.Wrap(err, "unwrap: unwrapping VMK with stretched password key")
		}
		return extractKeyEntry(plaintext, logger)

	case CredentialStartupKey:
		extEntry, ok := fve.FindByType2(vmk.SubEntries, types.ValueTypeExternalKey)
		if !ok {
			return nil, errors.New("unwrap: startup-key-protected VMK has no nested external_key entry")
		}
		ek, err := fve.DecodeExternalKey(extEntry, logger)
		if err != nil {
			return nil, errors.Wrap(err, "unwrap: decoding external_key entry")
		}
		if ek.ID != cred.ExternalKeyID {
			return nil, errors.Errorf("unwrap: .BEK key id %s does not match VMK's external_key id %s", cred.ExternalKeyID, ek.ID)
		}
		ccmEntry, ok := fve.FindByType2(vmk.SubEntries, types.ValueTypeAESCCMEncryptedKey)
		if !ok {
			return nil, errors.New("unwrap: startup-key-protected VMK has no nested aes_ccm_encrypted_key entry")
		}
		wrapped, err := fve.DecodeAESCCMEncryptedKey(ccmEntry.Payload)
		if err != nil {
			return nil, errors.Wrap(err, "unwrap: decoding aes_ccm_encrypted_key entry")
		}
		plaintext, err := crypto.AESCCMDecryptVerify(cred.ExternalKeyBytes, wrapped.Nonce[:], wrapped.Ciphertext, wrapped.MAC[:])
		if err != nil {
			return nil, errors.Wrap(err, "unwrap: unwrapping VMK with startup key")
		}
		return extractKeyEntry(plaintext, logger)

	default:
		return nil, errors.Errorf("unwrap: unsupported credential kind %d", cred.Kind)
	}
}
