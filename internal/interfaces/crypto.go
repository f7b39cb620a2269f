package interfaces

// CryptoProvider supplies the low-level cryptographic primitives BDE
// builds its cipher modes and key unwrap chain from (spec §6 "Consumed
// from collaborators"). The primitives themselves — AES, SHA-256 — are
// treated as pluggable and out of this module's core scope; package
// internal/crypto supplies a default implementation.
type CryptoProvider interface {
	// AESECBDecryptBlock decrypts a single 16-byte block with AES-ECB.
	// Used for CBC-mode IV derivation and diffuser sector-key generation
	// (spec §4.F), never for bulk payload decryption.
	AESECBDecryptBlock(key, block []byte) ([16]byte, error)

	// AESCBCDecrypt decrypts ciphertext of a length that is a multiple of
	// 16 bytes using AES-CBC with the given key and IV.
	AESCBCDecrypt(key, iv, ciphertext []byte) ([]byte, error)

	// AESCCMDecryptVerify decrypts and authenticates ciphertext wrapped
	// with AES-CCM (12-byte nonce, 16-byte tag, no associated data — the
	// profile every BDE wrapped-key entry uses, spec §4.E). Returns
	// ErrAuthFailed if the tag does not verify.
	AESCCMDecryptVerify(key, nonce, ciphertext, tag []byte) ([]byte, error)

	// AESXTSDecrypt decrypts one sector's worth of ciphertext with
	// AES-XTS, keyed by a 512-bit (or 256-bit, for AES-128-XTS) key and
	// tweaked by the sector number (spec §4.F).
	AESXTSDecrypt(key []byte, sectorNumber uint64, ciphertext []byte) ([]byte, error)

	// SHA256 hashes data with SHA-256.
	SHA256(data []byte) [32]byte
}
