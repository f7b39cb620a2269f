package unwrap

import (
	"context"
	"crypto/sha256"
	"encoding/binary"

	"github.com/pkg/errors"
)

// stretchRounds implements spec §4.E/§5: roughly a million-round
// stretch-key KDF.
const stretchRounds = 1 << 20

// DefaultAbortPollInterval is the fallback used when a caller passes a
// non-positive poll interval to StretchKey: the abort check runs every
// this-many rounds rather than only before/after the whole loop, so
// cancellation is noticed promptly. pkg/bde.Config.StretchAbortPollInterval
// overrides this per Volume.
const DefaultAbortPollInterval = 4096

// StretchKey derives a 32-byte intermediate key from a credential's
// stretch-key input and a VMK's stretch_key salt, following the outer
// loop/inner round split the teacher uses for its own iterated-hash KDF
// (spec §4.E "stretch-key derivation").
//
// input is the credential's already-normalized byte form (UTF-16LE for a
// user password, the 16-byte binary-decoded value for a recovery password):
// K0 = SHA-256(SHA-256(input)) seeds a state record of
// {last_sha256, initial_sha256: K0, salt, counter}; each round rehashes the
// whole state record and increments the counter, so recovering any single
// intermediate round's output does not shortcut the remaining rounds.
//
// abortPollInterval controls how many rounds elapse between cancellation
// checks; a non-positive value falls back to DefaultAbortPollInterval.
func StretchKey(ctx context.Context, input []byte, salt [16]byte, abortPollInterval int) ([32]byte, error) {
	if abortPollInterval <= 0 {
		abortPollInterval = DefaultAbortPollInterval
	}

	firstHash := sha256.Sum256(input)
	initial := sha256.Sum256(firstHash[:])

	var last [32]byte // all-zero initial last_sha256

	counter := make([]byte, 8)
	for round := uint64(0); round < stretchRounds; round++ {
		if round%uint64(abortPollInterval) == 0 {
			select {
			case <-ctx.Done():
				return [32]byte{}, errors.Wrap(ctx.Err(), "unwrap: stretch-key derivation aborted")
			default:
			}
		}

		binary.LittleEndian.PutUint64(counter, round)
		h := sha256.New()
		h.Write(last[:])
		h.Write(initial[:])
		h.Write(salt[:])
		h.Write(counter)
		h.Sum(last[:0])
	}

	return last, nil
}
