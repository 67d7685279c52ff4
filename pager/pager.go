// Package pager implements the Paged File Layer of spec.md 4.3: the
// per-file header page, free-page list, and open-file table sitting on
// top of the buffer pool, exposing the page API benchmark harnesses and
// the B+-tree collaborator call directly.
package pager

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/tksm/pagedb/buffer"
	"github.com/tksm/pagedb/disk"
	"github.com/tksm/pagedb/stats"
)

// headerSize is the fixed layout of page 0: an 8-byte firstFree PageID
// followed by an 8-byte numPages counter, both little-endian. Frozen per
// spec.md 6.
const (
	headerFirstFreeOffset = 0
	headerNumPagesOffset  = 8
	headerSize            = 16
)

var (
	// ErrEndOfFile is returned by GetFirstPage/GetNextPage when the
	// iterator is exhausted.
	ErrEndOfFile = errors.New("end of file")
	// ErrAlreadyPinned is the recoverable page-already-pinned condition
	// of spec.md 7/9, normalized here to always-recoverable: the caller
	// gets back a usable page handle with the pre-existing pin count
	// left untouched (see DESIGN.md's Open Question log).
	ErrAlreadyPinned = errors.New("page already pinned")
	// ErrInvalidPage is returned for operations on a page number that is
	// out of range or currently on the free list.
	ErrInvalidPage = errors.New("invalid page")
)

// Manager owns the shared buffer pool and the small integer FileIDs
// handed out to opened files. Per spec.md 9, nothing here is a hidden
// process-wide singleton — callers construct and hold their own
// Manager.
type Manager struct {
	pool       *buffer.Pool
	disks      map[buffer.FileID]*disk.Manager
	nextFileID buffer.FileID
	stats      *stats.Registry
	log        *zap.SugaredLogger
}

// NewManager builds a Manager with a freshly-sized buffer pool.
func NewManager(capacity int, reg *stats.Registry, log *zap.SugaredLogger) *Manager {
	if reg == nil {
		reg = stats.New()
	}
	m := &Manager{
		disks: map[buffer.FileID]*disk.Manager{},
		stats: reg,
		log:   log,
	}
	m.pool = buffer.NewPool(capacity, m, reg, log)
	return m
}

// ReadPage implements buffer.PageSource.
func (m *Manager) ReadPage(file buffer.FileID, page disk.PageID, buf []byte) error {
	dm, ok := m.disks[file]
	if !ok {
		return fmt.Errorf("pager: unknown file id %d", file)
	}
	return dm.ReadPage(page, buf)
}

// WritePage implements buffer.PageSource.
func (m *Manager) WritePage(file buffer.FileID, page disk.PageID, buf []byte) error {
	dm, ok := m.disks[file]
	if !ok {
		return fmt.Errorf("pager: unknown file id %d", file)
	}
	return dm.WritePage(page, buf)
}

// Pool exposes the underlying buffer pool so callers can tune capacity
// and default policy before opening files.
func (m *Manager) Pool() *buffer.Pool {
	return m.pool
}

// Create makes an empty paged file: a single header page with an empty
// free list and a one-page file.
func (m *Manager) Create(path string) error {
	dm, err := disk.Open(path)
	if err != nil {
		return err
	}
	defer dm.Close()

	header := make([]byte, disk.PageSize)
	copy(header[headerFirstFreeOffset:], disk.InvalidPageID.ToBytes())
	binary.LittleEndian.PutUint64(header[headerNumPagesOffset:], 1)
	if err := dm.WritePage(disk.PageID(0), header); err != nil {
		return err
	}
	return dm.Sync()
}

// Destroy removes a paged file from persistent storage.
func (m *Manager) Destroy(path string) error {
	return os.Remove(path)
}

// File is an open-file entry: spec.md 3's "created by open, destroyed by
// close" handle carrying a cached header page and a replacement policy.
type File struct {
	mgr    *Manager
	id     buffer.FileID
	dm     *disk.Manager
	header *buffer.Page
	policy buffer.Policy
	free   map[disk.PageID]bool
}

// OpenWithPolicy opens path, pinning its header page in memory until
// Close, and overriding the pool's default replacement policy for pages
// fetched through this handle.
func (m *Manager) OpenWithPolicy(path string, policy buffer.Policy) (*File, error) {
	dm, err := disk.Open(path)
	if err != nil {
		return nil, err
	}
	id := m.nextFileID
	m.nextFileID++
	m.disks[id] = dm

	header, err := m.pool.Get(id, disk.PageID(0), policy)
	if err != nil {
		dm.Close()
		delete(m.disks, id)
		return nil, err
	}

	f := &File{mgr: m, id: id, dm: dm, header: header, policy: policy, free: map[disk.PageID]bool{}}
	for pn := f.firstFree(); pn.Valid(); {
		f.free[pn] = true
		next, err := f.readFreeListNext(pn)
		if err != nil {
			return nil, err
		}
		pn = next
	}
	return f, nil
}

// Open opens path using the pool's current default policy.
func (m *Manager) Open(path string) (*File, error) {
	return m.OpenWithPolicy(path, m.pool.DefaultPolicy())
}

// readFreeListNext reads the next-pointer threaded through the first 8
// bytes of free page pn, without disturbing the caller's pin discipline:
// it fetches and immediately unfixes the page itself.
func (f *File) readFreeListNext(pn disk.PageID) (disk.PageID, error) {
	p, err := f.mgr.pool.Get(f.id, pn, f.policy)
	if err != nil {
		return disk.InvalidPageID, err
	}
	next := disk.PageIDFromBytes(p.Bytes()[0:8])
	if err := p.Unfix(false); err != nil {
		return disk.InvalidPageID, err
	}
	return next, nil
}

// SetFilePolicy overrides the per-file replacement policy for subsequent
// misses issued through f.
func (f *File) SetFilePolicy(policy buffer.Policy) {
	f.policy = policy
}

func (f *File) firstFree() disk.PageID {
	return disk.PageIDFromBytes(f.header.Bytes()[headerFirstFreeOffset : headerFirstFreeOffset+8])
}

func (f *File) setFirstFree(id disk.PageID) {
	copy(f.header.Bytes()[headerFirstFreeOffset:headerFirstFreeOffset+8], id.ToBytes())
	f.mgr.pool.MarkDirty(f.id, disk.PageID(0))
}

func (f *File) numPages() uint64 {
	return binary.LittleEndian.Uint64(f.header.Bytes()[headerNumPagesOffset : headerNumPagesOffset+8])
}

func (f *File) setNumPages(n uint64) {
	binary.LittleEndian.PutUint64(f.header.Bytes()[headerNumPagesOffset:headerNumPagesOffset+8], n)
	f.mgr.pool.MarkDirty(f.id, disk.PageID(0))
}

// AllocPage returns a pinned page with undefined contents: the head of
// the free list if non-empty, otherwise a freshly appended page.
func (f *File) AllocPage() (disk.PageID, *buffer.Page, error) {
	if head := f.firstFree(); head.Valid() {
		p, err := f.mgr.pool.Get(f.id, head, f.policy)
		if err != nil {
			return disk.InvalidPageID, nil, err
		}
		next := disk.PageIDFromBytes(p.Bytes()[0:8])
		f.setFirstFree(next)
		delete(f.free, head)
		return head, p, nil
	}

	pn := disk.PageID(f.numPages())
	p, err := f.mgr.pool.Alloc(f.id, pn, f.policy)
	if err != nil {
		return disk.InvalidPageID, nil, err
	}
	f.setNumPages(f.numPages() + 1)
	return pn, p, nil
}

// DisposePage returns an unpinned page to the free list. A subsequent
// GetThisPage on it reports ErrInvalidPage.
func (f *File) DisposePage(pageNumber disk.PageID) error {
	p, err := f.mgr.pool.Get(f.id, pageNumber, f.policy)
	if err != nil {
		return err
	}
	copy(p.Bytes()[0:8], f.firstFree().ToBytes())
	if err := p.Unfix(true); err != nil {
		return err
	}
	f.setFirstFree(pageNumber)
	f.free[pageNumber] = true
	return nil
}

// GetThisPage fetches the specified page. If it is already pinned
// elsewhere, ErrAlreadyPinned is returned alongside a usable page handle
// whose pre-existing pin count is left untouched (spec.md 9 Open
// Question, normalized to always-recoverable — see DESIGN.md).
func (f *File) GetThisPage(pageNumber disk.PageID) (*buffer.Page, error) {
	if f.free[pageNumber] {
		return nil, fmt.Errorf("%w: page %d is on the free list", ErrInvalidPage, pageNumber)
	}
	if cnt, resident := f.mgr.pool.PinCount(f.id, pageNumber); resident && cnt > 0 {
		p, _ := f.mgr.pool.Peek(f.id, pageNumber)
		f.mgr.stats.AddLogicalRead()
		return p, ErrAlreadyPinned
	}
	p, err := f.mgr.pool.Get(f.id, pageNumber, f.policy)
	if err != nil {
		return nil, err
	}
	f.mgr.stats.AddLogicalRead()
	return p, nil
}

// UnfixPage delegates to the buffer pool. A dirty unfix counts as one
// logical write.
func (f *File) UnfixPage(pageNumber disk.PageID, dirty bool) error {
	if err := f.mgr.pool.Unfix(f.id, pageNumber, dirty); err != nil {
		return err
	}
	if dirty {
		f.mgr.stats.AddLogicalWrite()
	}
	return nil
}

// MarkDirty delegates to the buffer pool without unpinning.
func (f *File) MarkDirty(pageNumber disk.PageID) error {
	return f.mgr.pool.MarkDirty(f.id, pageNumber)
}

// PageIterator is the explicit, finite, non-restartable iterator
// GetFirstPage/GetNextPage express per spec.md 9: the caller may unfix
// the yielded page before or after requesting the next one.
type PageIterator struct {
	file    *File
	current disk.PageID
	page    *buffer.Page
	done    bool
}

// PageID returns the page number the iterator currently yields.
func (it *PageIterator) PageID() disk.PageID { return it.current }

// Page returns the pinned page the iterator currently yields.
func (it *PageIterator) Page() *buffer.Page { return it.page }

// UnfixCurrent releases the iterator's current page. It is safe to call
// at most once per yielded page; calling Next before or after is both
// supported.
func (it *PageIterator) UnfixCurrent(dirty bool) error {
	if it.page == nil {
		return nil
	}
	err := it.file.UnfixPage(it.current, dirty)
	it.page = nil
	return err
}

// Next advances to the next user page (id >= 1) not on the free list. It
// returns ErrEndOfFile once exhausted. If the previous page was not
// unfixed, Next unfixes it (clean) before advancing, so callers may call
// Next without calling UnfixCurrent first.
func (it *PageIterator) Next() error {
	if it.page != nil {
		if err := it.UnfixCurrent(false); err != nil {
			return err
		}
	}
	if it.done {
		return ErrEndOfFile
	}
	f := it.file
	for pn := it.current + 1; pn < disk.PageID(f.numPages()); pn++ {
		if f.free[pn] {
			continue
		}
		p, err := f.GetThisPage(pn)
		if err != nil && !errors.Is(err, ErrAlreadyPinned) {
			return err
		}
		it.current = pn
		it.page = p
		return nil
	}
	it.done = true
	it.page = nil
	return ErrEndOfFile
}

// GetFirstPage returns an iterator positioned before the lowest-numbered
// user page. Call Next to fetch it.
func (f *File) GetFirstPage() *PageIterator {
	return &PageIterator{file: f, current: 0}
}

// GetNextPage returns an iterator that will yield pages strictly after
// prev. It is a convenience wrapper equivalent to a fresh iterator
// primed at prev.
func (f *File) GetNextPage(prev disk.PageID) *PageIterator {
	return &PageIterator{file: f, current: prev}
}

// Close flushes and evicts all of f's frames (writing back the header if
// dirty), then releases the underlying OS file. A leaked pin — a page
// fetched and never unfixed — is reported via buffer.ErrPagesLeaked,
// but Close still completes the underlying teardown.
func (f *File) Close() error {
	if err := f.header.Unfix(false); err != nil {
		return err
	}
	flushErr := f.mgr.pool.FlushFile(f.id)

	if err := f.dm.Sync(); err != nil {
		return err
	}
	if err := f.dm.Close(); err != nil {
		return err
	}
	delete(f.mgr.disks, f.id)
	return flushErr
}

var _ io.Closer = (*File)(nil)
