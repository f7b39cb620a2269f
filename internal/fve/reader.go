package fve

import (
	"github.com/deploymenttheory/go-bde/internal/interfaces"
	"github.com/deploymenttheory/go-bde/internal/types"
)

// Reader adapts a Selection to interfaces.MetadataReader.
type Reader struct {
	selection Selection
}

var _ interfaces.MetadataReader = (*Reader)(nil)

// NewReader wraps an already-reconciled Selection.
func NewReader(selection Selection) *Reader {
	return &Reader{selection: selection}
}

func (r *Reader) BlockHeader() types.BlockHeader       { return r.selection.Selected.Header }
func (r *Reader) MetadataHeader() types.MetadataHeader { return r.selection.Selected.MetaHeader }
func (r *Reader) Entries() []types.Entry               { return r.selection.Selected.Entries }
func (r *Reader) ValidBlockCount() int                 { return r.selection.ValidCount }
func (r *Reader) SelectedBlockOffset() uint64          { return r.selection.Selected.Offset }
