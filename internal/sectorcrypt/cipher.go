package sectorcrypt

import (
	"github.com/pkg/errors"

	"github.com/deploymenttheory/go-bde/internal/interfaces"
	"github.com/deploymenttheory/go-bde/internal/types"
)

// KeyMaterial is the FVEK plaintext split according to its cipher and
// length (spec §4.E "FVEK plaintext contains a key entry whose length
// reveals the cipher"): a cipher key, and — for diffuser methods only — a
// tweak key of equal length used to derive the diffuser sector-key stream.
type KeyMaterial struct {
	CipherKey []byte
	TweakKey  []byte
}

// SplitFVEK interprets raw FVEK bytes according to method: 16 or 32 bytes
// for plain AES-CBC/XTS-128, 32 or 64 bytes (cipher half + equal-length
// tweak half) for the diffuser methods.
func SplitFVEK(method types.EncryptionMethod, raw []byte) (KeyMaterial, error) {
	if method.HasDiffuser() {
		if len(raw)%2 != 0 {
			return KeyMaterial{}, errors.Errorf("sectorcrypt: diffuser FVEK length %d is not evenly splittable", len(raw))
		}
		half := len(raw) / 2
		return KeyMaterial{CipherKey: raw[:half], TweakKey: raw[half:]}, nil
	}
	return KeyMaterial{CipherKey: raw}, nil
}

// DecryptSector decrypts one sector's ciphertext under method, at the given
// byte offset (used for CBC IV / diffuser sector-key derivation) and sector
// number (used for the XTS tweak), per spec §4.F.
func DecryptSector(crypto interfaces.CryptoProvider, method types.EncryptionMethod, key KeyMaterial, offset uint64, sectorNumber uint64, ciphertext []byte) ([]byte, error) {
	switch {
	case method.IsXTS():
		return crypto.AESXTSDecrypt(key.CipherKey, sectorNumber, ciphertext)

	case method.HasDiffuser():
		iv, err := DeriveCBCIV(crypto, key.CipherKey, offset)
		if err != nil {
			return nil, err
		}
		plain, err := crypto.AESCBCDecrypt(key.CipherKey, iv[:], ciphertext)
		if err != nil {
			return nil, err
		}
		return applyDiffuserDecrypt(crypto, key.TweakKey, offset, plain)

	case method == types.EncryptionMethodAES128CBC || method == types.EncryptionMethodAES256CBC:
		iv, err := DeriveCBCIV(crypto, key.CipherKey, offset)
		if err != nil {
			return nil, err
		}
		return crypto.AESCBCDecrypt(key.CipherKey, iv[:], ciphertext)

	default:
		return nil, errors.Errorf("sectorcrypt: unsupported encryption method %s", method)
	}
}

// applyDiffuserDecrypt runs the three post-CBC-decrypt steps in the exact
// order spec §4.F's numbered steps specify: sector-key XOR, then Diffuser B,
// then Diffuser A.
func applyDiffuserDecrypt(crypto interfaces.CryptoProvider, tweakKey []byte, offset uint64, plain []byte) ([]byte, error) {
	sectorKey, err := DeriveSectorKey(crypto, tweakKey, offset, len(plain))
	if err != nil {
		return nil, err
	}
	if len(sectorKey) < len(plain) {
		return nil, errors.Errorf("sectorcrypt: derived sector key shorter than sector (%d < %d)", len(sectorKey), len(plain))
	}

	xored := make([]byte, len(plain))
	for i := range plain {
		xored[i] = plain[i] ^ sectorKey[i]
	}

	afterB, err := DiffuserBDecrypt(xored)
	if err != nil {
		return nil, err
	}
	return DiffuserADecrypt(afterB)
}
