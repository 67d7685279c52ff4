// Package disk provides the raw fixed-size page I/O primitive the paged
// file layer builds on. It knows nothing about free lists, headers, or
// buffering — just "read page N" and "write page N" against an *os.File.
package disk

import (
	"encoding/binary"
	"io"
	"os"
)

// PageSize is the size of a page in bytes (4KiB, a build-time constant).
const PageSize = 4096

// PageID identifies a page within a file by its 0-based position.
type PageID uint64

// InvalidPageID represents an invalid or uninitialized page ID, and the
// free-list terminator.
const InvalidPageID = PageID(^uint64(0))

func (p PageID) Valid() bool {
	return p != InvalidPageID
}

func (p PageID) ToU64() uint64 {
	return uint64(p)
}

func (p PageID) ToBytes() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(p))
	return b
}

func PageIDFromBytes(b []byte) PageID {
	return PageID(binary.LittleEndian.Uint64(b))
}

// Manager performs page-granular reads and writes against one open file.
// It is the only thing in this module that issues raw OS I/O.
type Manager struct {
	file *os.File
}

// Open opens (creating if necessary) the file at path for page I/O.
func Open(path string) (*Manager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	return &Manager{file: f}, nil
}

// ReadPage fills buf (len(buf) must equal PageSize) with the contents of
// page id. Reading a page beyond the current end of file is an error —
// the pager layer is responsible for only reading pages it has already
// allocated.
func (m *Manager) ReadPage(id PageID, buf []byte) error {
	offset := int64(PageSize) * int64(id.ToU64())
	if _, err := m.file.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	_, err := io.ReadFull(m.file, buf)
	return err
}

// WritePage writes buf (len(buf) must equal PageSize) to page id. Writing
// past the current end of file extends it.
func (m *Manager) WritePage(id PageID, buf []byte) error {
	offset := int64(PageSize) * int64(id.ToU64())
	if _, err := m.file.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	_, err := m.file.Write(buf)
	return err
}

// Sync flushes the underlying file to stable storage.
func (m *Manager) Sync() error {
	return m.file.Sync()
}

// Close closes the underlying file.
func (m *Manager) Close() error {
	return m.file.Close()
}
