package fve

import (
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/deploymenttheory/go-bde/internal/bytestream"
	"github.com/deploymenttheory/go-bde/internal/interfaces"
	"github.com/deploymenttheory/go-bde/internal/types"
)

// Block is one fully parsed FVE metadata block copy: its header, metadata
// header, and top-level entry dataset (spec §3, §4.D).
type Block struct {
	Offset     uint64
	Header     types.BlockHeader
	MetaHeader types.MetadataHeader
	Entries    []types.Entry
}

// ParseBlockAt reads and decodes one candidate FVE metadata block starting
// at offset, without judging it against the other two copies.
func ParseBlockAt(source interfaces.ByteSource, offset uint64, logger interfaces.Logger) (*Block, error) {
	headerRaw, err := bytestream.ReadAllAt(source, offset, blockHeaderSize+metadataHeaderSize)
	if err != nil {
		return nil, errors.Wrapf(err, "fve: reading block header at offset %d", offset)
	}
	r := bytestream.NewReader(bytestream.FromBytes(headerRaw), 0, uint64(len(headerRaw)))

	blockHeader, err := parseBlockHeader(r)
	if err != nil {
		return nil, errors.Wrapf(err, "fve: decoding block header at offset %d", offset)
	}
	if err := validateBlockHeader(blockHeader); err != nil {
		return nil, errors.Wrapf(err, "fve: block at offset %d", offset)
	}

	metaHeader, err := parseMetadataHeader(r)
	if err != nil {
		return nil, errors.Wrapf(err, "fve: decoding metadata header at offset %d", offset)
	}

	datasetRaw, err := bytestream.ReadAllAt(source, offset+blockHeaderSize+metadataHeaderSize, uint64(metaHeader.DatasetSize))
	if err != nil {
		return nil, errors.Wrapf(err, "fve: reading dataset at offset %d", offset)
	}

	entries, err := WalkEntries(datasetRaw, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "fve: walking dataset at offset %d", offset)
	}

	return &Block{Offset: offset, Header: blockHeader, MetaHeader: metaHeader, Entries: entries}, nil
}

// Selection is the outcome of reconciling the three candidate FVE metadata
// block copies (spec §4.D "Validation").
type Selection struct {
	Selected   *Block
	ValidCount int
}

// DiscoverAndSelect parses all three candidate block offsets, rejects any
// block with a bad signature/version or whose internally-recorded offset
// triple disagrees with the discovered offsets (spec §3 invariant), and picks
// the authoritative copy among the survivors.
//
// Tie-break: highest internal nonce counter wins; ties go to the earliest
// offset (spec §4.D "Validation"). At least one valid block is required;
// failing that, the per-block rejection reasons are aggregated with
// hashicorp/go-multierror, mirroring dargueta-disko's error-aggregation
// style, and surfaced as a single MetadataCorrupt cause.
func DiscoverAndSelect(source interfaces.ByteSource, offsets [3]uint64, logger interfaces.Logger) (Selection, error) {
	var (
		valid  []*Block
		reject *multierror.Error
	)

	for _, offset := range offsets {
		block, err := ParseBlockAt(source, offset, logger)
		if err != nil {
			reject = multierror.Append(reject, err)
			continue
		}
		if block.Header.Offsets != offsets {
			reject = multierror.Append(reject, errors.Errorf(
				"fve: block at offset %d records offset triple %v, expected %v", offset, block.Header.Offsets, offsets))
			continue
		}
		valid = append(valid, block)
	}

	if len(valid) == 0 {
		return Selection{}, errors.Wrap(reject.ErrorOrNil(), "fve: all three metadata block copies failed validation")
	}

	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].MetaHeader.NextNonceCounter != valid[j].MetaHeader.NextNonceCounter {
			return valid[i].MetaHeader.NextNonceCounter > valid[j].MetaHeader.NextNonceCounter
		}
		return valid[i].Offset < valid[j].Offset
	})

	return Selection{Selected: valid[0], ValidCount: len(valid)}, nil
}
