// Package fve implements the FVE metadata parser (spec §4.D): locating and
// validating the three redundant metadata block copies, decoding their
// headers, and walking the variable-length entry dataset each one carries.
//
// The parse-then-validate split follows
// deploymenttheory-go-apfs/internal/parsers/encryption/media_keybag_reader.go's
// parseMediaKeybag/IsValid shape: decode the bytes into a struct first,
// judge validity in a separate pass.
package fve

import (
	"github.com/pkg/errors"

	"github.com/deploymenttheory/go-bde/internal/bytestream"
	"github.com/deploymenttheory/go-bde/internal/types"
)

// blockHeaderSize is the fixed size, in bytes, of types.BlockHeader as laid
// out on disk (spec §3 "FVE Metadata Block Header").
const blockHeaderSize = 80

// metadataHeaderSize is the fixed size, in bytes, of types.MetadataHeader
// as laid out on disk, immediately following the block header.
const metadataHeaderSize = 32

func parseBlockHeader(r *bytestream.Reader) (types.BlockHeader, error) {
	var h types.BlockHeader

	sig, err := r.Bytes(8)
	if err != nil {
		return h, err
	}
	copy(h.Signature[:], sig)

	if h.Size, err = r.U16(); err != nil {
		return h, err
	}
	version, err := r.U16()
	if err != nil {
		return h, err
	}
	h.Version = types.MetadataVersion(version)

	if h.EncryptedVolumeSize, err = r.U64(); err != nil {
		return h, err
	}
	if h.NumberOfVolumeHeaderSectors, err = r.U16(); err != nil {
		return h, err
	}
	if _, err = r.Bytes(2); err != nil { // alignment padding
		return h, err
	}
	for i := range h.Offsets {
		if h.Offsets[i], err = r.U64(); err != nil {
			return h, err
		}
	}
	if h.BackupNTFSSectorOffset, err = r.U64(); err != nil {
		return h, err
	}
	method, err := r.U32()
	if err != nil {
		return h, err
	}
	h.EncryptionMethod = types.EncryptionMethod(method)
	if _, err = r.Bytes(4); err != nil { // alignment padding
		return h, err
	}
	guidBytes, err := r.GUIDBytes()
	if err != nil {
		return h, err
	}
	h.VolumeIdentifier = types.GUIDFromWindowsBytes(guidBytes)

	return h, nil
}

func parseMetadataHeader(r *bytestream.Reader) (types.MetadataHeader, error) {
	var h types.MetadataHeader
	var err error

	if h.Size, err = r.U32(); err != nil {
		return h, err
	}
	if h.Version, err = r.U32(); err != nil {
		return h, err
	}
	if h.NextNonceCounter, err = r.U32(); err != nil {
		return h, err
	}
	if _, err = r.Bytes(4); err != nil { // alignment padding
		return h, err
	}
	ct, err := r.U64()
	if err != nil {
		return h, err
	}
	h.CreationTime = types.FILETIME(ct)
	if h.DatasetSize, err = r.U32(); err != nil {
		return h, err
	}
	if _, err = r.Bytes(4); err != nil { // alignment padding
		return h, err
	}

	return h, nil
}

// validateBlockHeader checks the invariants spec §3 demands of a
// standalone block header: correct signature and a version we support.
func validateBlockHeader(h types.BlockHeader) error {
	if string(h.Signature[:]) != string(types.BlockSignature[:]) {
		return errors.Errorf("fve: bad block signature %q", h.Signature)
	}
	if h.Version != types.MetadataVersionVista && h.Version != types.MetadataVersionWin7Plus {
		return errors.Errorf("fve: unsupported metadata version %d", h.Version)
	}
	return nil
}
