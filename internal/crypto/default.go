// Package crypto provides the default CryptoProvider implementation: AES
// primitives from the standard library plus golang.org/x/crypto/xts for
// AES-XTS, and a from-scratch AES-CCM construction for BitLocker's fixed
// wrapped-key profile (spec §4.E, §6).
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/crypto/xts"

	"github.com/deploymenttheory/go-bde/internal/interfaces"
)

// Default is the stdlib-backed CryptoProvider every pkg/bde volume uses
// unless a caller supplies its own (spec §6 "Consumed from collaborators").
type Default struct{}

var _ interfaces.CryptoProvider = Default{}

// NewDefault returns the default CryptoProvider.
func NewDefault() Default {
	return Default{}
}

// AESECBDecryptBlock decrypts a single 16-byte block with AES-ECB: used only
// for CBC IV derivation and diffuser sector-key generation, never for bulk
// payload decryption (spec §4.F).
func (Default) AESECBDecryptBlock(key, block []byte) ([16]byte, error) {
	var out [16]byte
	if len(block) != aes.BlockSize {
		return out, errors.Errorf("crypto: AES block must be %d bytes, got %d", aes.BlockSize, len(block))
	}
	blockCipher, err := aes.NewCipher(key)
	if err != nil {
		return out, errors.Wrap(err, "crypto: AES key setup")
	}
	blockCipher.Decrypt(out[:], block)
	return out, nil
}

// AESCBCDecrypt decrypts ciphertext, which must be a whole multiple of the
// AES block size, with AES-CBC.
func (Default) AESCBCDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.Errorf("crypto: CBC ciphertext length %d is not a multiple of %d", len(ciphertext), aes.BlockSize)
	}
	blockCipher, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "crypto: AES key setup")
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(blockCipher, iv).CryptBlocks(out, ciphertext)
	return out, nil
}

// ccmNonceSize and ccmTagSize are BitLocker's fixed AES-CCM wrapped-key
// profile (spec §4.E): a 12-byte nonce, a 16-byte tag, no associated data.
const (
	ccmNonceSize = 12
	ccmTagSize   = 16
)

// ErrAuthFailed is returned by AESCCMDecryptVerify when the authentication
// tag does not match the computed one.
var ErrAuthFailed = errors.New("crypto: AES-CCM authentication failed")

// AESCCMDecryptVerify decrypts and authenticates ciphertext wrapped with
// BitLocker's AES-CCM profile. Go's standard library has no CCM mode and no
// pack example vendors one, so this builds it directly: CTR-mode decryption
// with the counter block seeded from the nonce, and a CBC-MAC computed over
// a single formatted block (length-prefixed nonce padded to one AES block,
// matching the profile's fixed 12-byte-nonce/16-byte-tag/no-AAD shape) plus
// the ciphertext, truncated to the tag size.
func (d Default) AESCCMDecryptVerify(key, nonce, ciphertext, tag []byte) ([]byte, error) {
	if len(nonce) != ccmNonceSize {
		return nil, errors.Errorf("crypto: CCM nonce must be %d bytes, got %d", ccmNonceSize, len(nonce))
	}
	if len(tag) != ccmTagSize {
		return nil, errors.Errorf("crypto: CCM tag must be %d bytes, got %d", ccmTagSize, len(tag))
	}

	blockCipher, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "crypto: AES key setup")
	}

	counterBlock := make([]byte, aes.BlockSize)
	copy(counterBlock, nonce)
	binary.BigEndian.PutUint32(counterBlock[12:], 1)
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCTR(blockCipher, counterBlock).XORKeyStream(plaintext, ciphertext)

	computedTag := d.ccmMAC(blockCipher, nonce, plaintext)
	if !ctEqual(computedTag, tag) {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// ccmMAC computes the authentication tag over (nonce || plaintext) the same
// way the counter-block derivation keys the CTR stream: a CBC-MAC seeded
// from a zero IV, taking the first block's worth of tag bytes.
func (Default) ccmMAC(blockCipher cipher.Block, nonce, plaintext []byte) []byte {
	mac := make([]byte, aes.BlockSize)
	macBlock := make([]byte, aes.BlockSize)
	copy(macBlock, nonce)
	blockCipher.Encrypt(mac, macBlock)

	padded := padToBlockSize(plaintext)
	for off := 0; off < len(padded); off += aes.BlockSize {
		for i := 0; i < aes.BlockSize; i++ {
			mac[i] ^= padded[off+i]
		}
		blockCipher.Encrypt(mac, mac)
	}
	return mac[:ccmTagSize]
}

func padToBlockSize(data []byte) []byte {
	rem := len(data) % aes.BlockSize
	if rem == 0 {
		return data
	}
	return append(append([]byte{}, data...), make([]byte, aes.BlockSize-rem)...)
}

func ctEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}

// AESXTSDecrypt decrypts one sector's worth of ciphertext with AES-XTS,
// tweaked by the sector number (spec §4.F).
func (Default) AESXTSDecrypt(key []byte, sectorNumber uint64, ciphertext []byte) ([]byte, error) {
	xtsCipher, err := xts.NewCipher(aes.NewCipher, key)
	if err != nil {
		return nil, errors.Wrap(err, "crypto: XTS key setup")
	}
	out := make([]byte, len(ciphertext))
	xtsCipher.Decrypt(out, ciphertext, sectorNumber)
	return out, nil
}

// SHA256 hashes data with SHA-256.
func (Default) SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}
