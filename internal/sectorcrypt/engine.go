package sectorcrypt

import (
	"github.com/pkg/errors"

	"github.com/deploymenttheory/go-bde/internal/interfaces"
	"github.com/deploymenttheory/go-bde/internal/types"
)

// Engine adapts a cipher method, split FVEK key material, and sector size
// into an interfaces.SectorDecrypter, the seam internal/virtvol consumes
// (spec §4.F, §6).
type Engine struct {
	crypto     interfaces.CryptoProvider
	method     types.EncryptionMethod
	key        KeyMaterial
	sectorSize int
}

var _ interfaces.SectorDecrypter = (*Engine)(nil)

// NewEngine builds a sector decryption engine for one volume's encryption
// method and FVEK.
func NewEngine(crypto interfaces.CryptoProvider, method types.EncryptionMethod, fvek []byte, sectorSize int) (*Engine, error) {
	key, err := SplitFVEK(method, fvek)
	if err != nil {
		return nil, err
	}
	return &Engine{crypto: crypto, method: method, key: key, sectorSize: sectorSize}, nil
}

// SectorSize returns the configured sector size in bytes.
func (e *Engine) SectorSize() int { return e.sectorSize }

// DecryptSector decrypts the ciphertext of exactly one sector found at the
// given logical byte offset.
func (e *Engine) DecryptSector(offset uint64, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) != e.sectorSize {
		return nil, errors.Errorf("sectorcrypt: ciphertext length %d does not match sector size %d", len(ciphertext), e.sectorSize)
	}
	sectorNumber := offset / uint64(e.sectorSize)
	return DecryptSector(e.crypto, e.method, e.key, offset, sectorNumber, ciphertext)
}
