// Package sectorcrypt implements per-sector decryption for every BDE cipher
// mode: IV/tweak derivation, the Elephant diffuser, and cipher-mode dispatch
// (spec §4.F).
package sectorcrypt

import (
	"encoding/binary"

	"github.com/deploymenttheory/go-bde/internal/interfaces"
)

// DeriveCBCIV computes the IV for a sector at byte offset O as
// AES-ECB(FVEK, le_u64(O) || 0^8) (spec §4.F "IV derivation").
func DeriveCBCIV(crypto interfaces.CryptoProvider, fvek []byte, offset uint64) ([16]byte, error) {
	var block [16]byte
	binary.LittleEndian.PutUint64(block[0:8], offset)
	return crypto.AESECBDecryptBlock(fvek, block[:])
}

// sectorKeyBlockCount is how many 16-byte ECB blocks make up one 512-byte
// sector's worth of diffuser sector-key stream.
const sectorKeyBlockCount = 32

// DeriveSectorKey computes the diffuser sector-key stream (spec §4.F
// "Diffuser" step 1): successive ECB encryptions of the sector offset with
// a 0x80 marker byte, incrementing the last byte of the block to encrypt
// for each successive 16-byte chunk, until one sector's worth is produced.
func DeriveSectorKey(crypto interfaces.CryptoProvider, tweakKey []byte, offset uint64, sectorSize int) ([]byte, error) {
	blockCount := sectorSize / 16
	if blockCount == 0 {
		blockCount = sectorKeyBlockCount
	}

	out := make([]byte, 0, blockCount*16)
	var seed [16]byte
	binary.LittleEndian.PutUint64(seed[0:8], offset)
	seed[8] = 0x80

	for i := 0; i < blockCount; i++ {
		block := seed
		block[15] += byte(i)
		encrypted, err := crypto.AESECBDecryptBlock(tweakKey, block[:])
		if err != nil {
			return nil, err
		}
		out = append(out, encrypted[:]...)
	}
	return out, nil
}
