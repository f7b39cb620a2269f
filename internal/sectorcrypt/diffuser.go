package sectorcrypt

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// diffuserRounds is how many rounds each diffuser pass applies (spec §4.F
// "five rounds each").
const diffuserRounds = 5

// rotationScheduleA and rotationScheduleB are the per-round-position
// rotation amounts for Diffuser A and Diffuser B respectively (spec §4.F).
var (
	rotationScheduleA = [4]uint32{9, 0, 13, 0}
	rotationScheduleB = [4]uint32{0, 10, 0, 25}
)

func rotl32(v uint32, n uint32) uint32 {
	n &= 31
	if n == 0 {
		return v
	}
	return v<<n | v>>(32-n)
}

// wordsFromSector reinterprets a 512-byte sector as 128 little-endian
// uint32 words, the diffuser's working representation.
func wordsFromSector(sector []byte) ([]uint32, error) {
	if len(sector)%4 != 0 {
		return nil, errors.Errorf("sectorcrypt: sector length %d is not a multiple of 4", len(sector))
	}
	n := len(sector) / 4
	words := make([]uint32, n)
	for i := 0; i < n; i++ {
		words[i] = binary.LittleEndian.Uint32(sector[i*4:])
	}
	return words, nil
}

func sectorFromWords(words []uint32) []byte {
	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

// DiffuserADecrypt applies Diffuser A's decryption pass (forward index
// order): P[i] += P[(i+2) mod n] ^ rotl(P[(i+5) mod n], R_A[i mod 4]), five
// rounds (spec §4.F).
func DiffuserADecrypt(sector []byte) ([]byte, error) {
	words, err := wordsFromSector(sector)
	if err != nil {
		return nil, err
	}
	n := len(words)
	for round := 0; round < diffuserRounds; round++ {
		for i := 0; i < n; i++ {
			words[i] += words[(i+2)%n] ^ rotl32(words[(i+5)%n], rotationScheduleA[i%4])
		}
	}
	return sectorFromWords(words), nil
}

// DiffuserAEncrypt applies Diffuser A's inverse, used only to prove the
// round-trip invariant in tests (spec §8 "Diffuser A followed by its
// inverse is identity"); this library never encrypts in production.
func DiffuserAEncrypt(sector []byte) ([]byte, error) {
	words, err := wordsFromSector(sector)
	if err != nil {
		return nil, err
	}
	n := len(words)
	for round := 0; round < diffuserRounds; round++ {
		for i := n - 1; i >= 0; i-- {
			words[i] -= words[(i+2)%n] ^ rotl32(words[(i+5)%n], rotationScheduleA[i%4])
		}
	}
	return sectorFromWords(words), nil
}

// DiffuserBDecrypt applies Diffuser B's decryption pass (reverse index
// order): P[i] += P[(i+2) mod n] ^ rotl(P[(i+5) mod n], R_B[i mod 4]),
// iterated from the highest index down, five rounds (spec §4.F).
func DiffuserBDecrypt(sector []byte) ([]byte, error) {
	words, err := wordsFromSector(sector)
	if err != nil {
		return nil, err
	}
	n := len(words)
	for round := 0; round < diffuserRounds; round++ {
		for i := n - 1; i >= 0; i-- {
			words[i] += words[(i+2)%n] ^ rotl32(words[(i+5)%n], rotationScheduleB[i%4])
		}
	}
	return sectorFromWords(words), nil
}

// DiffuserBEncrypt applies Diffuser B's inverse, used only by tests.
func DiffuserBEncrypt(sector []byte) ([]byte, error) {
	words, err := wordsFromSector(sector)
	if err != nil {
		return nil, err
	}
	n := len(words)
	for round := 0; round < diffuserRounds; round++ {
		for i := 0; i < n; i++ {
			words[i] -= words[(i+2)%n] ^ rotl32(words[(i+5)%n], rotationScheduleB[i%4])
		}
	}
	return sectorFromWords(words), nil
}
