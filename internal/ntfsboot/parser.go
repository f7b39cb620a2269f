// Package ntfsboot parses the NTFS boot sector (and its Vista-era BitLocker
// substitute) to recover volume geometry and the three FVE metadata block
// offsets (spec §4.C "NTFS boot-sector parser", §4.D "Discovery").
package ntfsboot

import (
	"github.com/pkg/errors"

	"github.com/deploymenttheory/go-bde/internal/bytestream"
	"github.com/deploymenttheory/go-bde/internal/interfaces"
	"github.com/deploymenttheory/go-bde/internal/types"
)

// ParseNTFSBootSector decodes a 512-byte Windows 7+ NTFS boot sector,
// following dsoprea/go-exfat's BootSectorHeader layout-by-doc-comment
// approach for the sibling exFAT format.
func ParseNTFSBootSector(raw []byte) (*types.NTFSBootSector, error) {
	if len(raw) < types.BootSectorSize {
		return nil, errors.Errorf("ntfsboot: boot sector too short: %d bytes", len(raw))
	}
	r := bytestream.NewReader(bytestream.FromBytes(raw), 0, uint64(len(raw)))

	var bs types.NTFSBootSector
	jump, err := r.Bytes(3)
	if err != nil {
		return nil, err
	}
	copy(bs.JumpInstruction[:], jump)

	oem, err := r.Bytes(8)
	if err != nil {
		return nil, err
	}
	copy(bs.OEMID[:], oem)

	if bs.BytesPerSector, err = r.U16(); err != nil {
		return nil, err
	}
	spc, err := r.U8()
	if err != nil {
		return nil, err
	}
	bs.SectorsPerCluster = spc
	if bs.ReservedSectors, err = r.U16(); err != nil {
		return nil, err
	}

	// Skip the fields NTFS leaves zeroed/unused between ReservedSectors and
	// MediaDescriptor (spec's layout comment: always-zero/unused fields).
	if _, err = r.Bytes(5); err != nil {
		return nil, err
	}
	md, err := r.U8()
	if err != nil {
		return nil, err
	}
	bs.MediaDescriptor = md
	if _, err = r.Bytes(2); err != nil {
		return nil, err
	}
	if bs.SectorsPerTrack, err = r.U16(); err != nil {
		return nil, err
	}
	nh, err := r.U32()
	if err != nil {
		return nil, err
	}
	bs.NumberOfHeads = nh
	hs, err := r.U32()
	if err != nil {
		return nil, err
	}
	bs.HiddenSectors = hs
	if _, err = r.Bytes(8); err != nil { // two unused uint32 fields
		return nil, err
	}
	if bs.TotalSectors, err = r.U64(); err != nil {
		return nil, err
	}
	if bs.MFTClusterNumber, err = r.U64(); err != nil {
		return nil, err
	}
	if bs.MFTMirrClusterNumber, err = r.U64(); err != nil {
		return nil, err
	}
	cpmr, err := r.U8()
	if err != nil {
		return nil, err
	}
	bs.ClustersPerMFTRecord = int8(cpmr)
	cpir, err := r.U8()
	if err != nil {
		return nil, err
	}
	bs.ClustersPerIndexRecord = int8(cpir)
	if bs.VolumeSerialNumber, err = r.U64(); err != nil {
		return nil, err
	}

	// The remainder of the sector, down to the trailing boot signature, is
	// boot code on an un-encrypted NTFS volume. On a BDE-encrypted volume
	// its first 24 bytes instead carry the three FVE block offsets
	// (spec §4.D). We read them optimistically; callers validate them by
	// checking for the FVE block signature at the first offset.
	if r.Len() >= 24+2 {
		for i := range bs.FVEMetadataOffsets {
			if bs.FVEMetadataOffsets[i], err = r.U64(); err != nil {
				return nil, err
			}
		}
	}

	return &bs, nil
}

// ParseBitLockerBootSector decodes the Vista-era boot sector BDE
// substitutes for the NTFS boot sector (spec §4.D).
func ParseBitLockerBootSector(raw []byte) (*types.BitLockerBootSector, error) {
	if len(raw) < types.BootSectorSize {
		return nil, errors.Errorf("ntfsboot: boot sector too short: %d bytes", len(raw))
	}
	r := bytestream.NewReader(bytestream.FromBytes(raw), 0, uint64(len(raw)))

	var bs types.BitLockerBootSector
	jump, err := r.Bytes(3)
	if err != nil {
		return nil, err
	}
	copy(bs.JumpInstruction[:], jump)

	sig, err := r.Bytes(8)
	if err != nil {
		return nil, err
	}
	copy(bs.Signature[:], sig)

	if bs.BytesPerSector, err = r.U16(); err != nil {
		return nil, err
	}
	spc, err := r.U8()
	if err != nil {
		return nil, err
	}
	bs.SectorsPerCluster = spc
	if bs.ReservedSectors, err = r.U16(); err != nil {
		return nil, err
	}
	// Fixed gap to the offsets field within the Vista boot sector layout.
	if _, err = r.Bytes(0x48 - r.Pos()); err != nil {
		return nil, err
	}
	for i := range bs.FVEMetadataOffsets {
		if bs.FVEMetadataOffsets[i], err = r.U64(); err != nil {
			return nil, err
		}
	}

	return &bs, nil
}

// DiscoveryResult is the outcome of locating the three FVE metadata block
// offsets from a volume's boot sector.
type DiscoveryResult struct {
	Offsets [3]uint64
	Version types.MetadataVersion
}

// DiscoverFVEOffsets implements spec §4.D "Discovery": try the Windows 7+
// (version 2) NTFS boot-sector layout first; if the block signature at the
// first recovered offset doesn't check out, fall back to the Vista
// (version 1) BitLocker boot sector layout.
func DiscoverFVEOffsets(source interfaces.ByteSource, bootSectorOffset uint64) (DiscoveryResult, error) {
	raw, err := bytestream.ReadAllAt(source, bootSectorOffset, types.BootSectorSize)
	if err != nil {
		return DiscoveryResult{}, err
	}

	ntfs, err := ParseNTFSBootSector(raw)
	if err == nil && string(ntfs.OEMID[:]) == types.NTFSOEMID {
		if blockSignatureMatches(source, ntfs.FVEMetadataOffsets[0]) {
			return DiscoveryResult{Offsets: ntfs.FVEMetadataOffsets, Version: types.MetadataVersionWin7Plus}, nil
		}
	}

	vista, err := ParseBitLockerBootSector(raw)
	if err == nil && string(vista.Signature[:]) == string(types.BlockSignature[:]) {
		if blockSignatureMatches(source, vista.FVEMetadataOffsets[0]) {
			return DiscoveryResult{Offsets: vista.FVEMetadataOffsets, Version: types.MetadataVersionVista}, nil
		}
	}

	return DiscoveryResult{}, errors.New("ntfsboot: neither NTFS nor BitLocker boot sector layout yielded a valid FVE block offset")
}

func blockSignatureMatches(source interfaces.ByteSource, offset uint64) bool {
	sig, err := bytestream.ReadAllAt(source, offset, uint64(len(types.BlockSignature)))
	if err != nil {
		return false
	}
	return string(sig) == string(types.BlockSignature[:])
}
