// Package btree provides the meta page structure holding a tree's root
// pointer.
package btree

import "github.com/tksm/pagedb/disk"

// MetaHeaderSize is the size of the meta header: one little-endian
// disk.PageID.
const MetaHeaderSize = 8

// Meta represents a meta page containing B+ tree metadata: the current
// root page id.
type Meta struct {
	page []byte
}

func NewMeta(page []byte) *Meta {
	if len(page) < MetaHeaderSize {
		panic("meta page too small")
	}
	return &Meta{page: page}
}

func (m *Meta) RootPageID() disk.PageID {
	return disk.PageIDFromBytes(m.page[0:8])
}

func (m *Meta) SetRootPageID(pageID disk.PageID) {
	copy(m.page[0:8], pageID.ToBytes())
}
