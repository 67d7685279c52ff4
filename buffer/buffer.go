// Package buffer implements the fixed-capacity buffer pool: hash lookup,
// victim selection under LRU and MRU, pin/unpin discipline, the dirty
// flag, and the statistics hooks the pager layer relies on.
package buffer

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tksm/pagedb/disk"
	"github.com/tksm/pagedb/stats"
)

var (
	// ErrBufferExhausted is returned when every frame is pinned and a
	// miss needs a victim.
	ErrBufferExhausted = errors.New("buffer exhausted")
	// ErrNotPinned is returned by Unfix/MarkDirty on a frame that is not
	// currently pinned (double-unfix, or a stale *Page handle).
	ErrNotPinned = errors.New("page not pinned")
	// ErrPagesLeaked is returned by FlushFile when frames belonging to
	// the file being flushed are still pinned.
	ErrPagesLeaked = errors.New("pages leaked: pinned at flush time")
)

// Policy selects which end of the shared usage-order list victim
// selection draws from. It is a tagged variant, not two separate
// implementations — see spec.md 9.
type Policy int

const (
	// LRU evicts the least recently touched unpinned frame.
	LRU Policy = iota
	// MRU evicts the most recently touched unpinned frame.
	MRU
)

func (p Policy) String() string {
	if p == MRU {
		return "mru"
	}
	return "lru"
}

// ParsePolicy parses the --policy {lru|mru} flag value used throughout
// the benchmark CLIs.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "lru", "":
		return LRU, nil
	case "mru":
		return MRU, nil
	default:
		return LRU, fmt.Errorf("buffer: unknown policy %q (want lru or mru)", s)
	}
}

// FileID is the small integer a Pool uses to key frames, assigned by
// whatever owns file semantics (the pager package). The pool itself has
// no notion of paths or open-file tables.
type FileID uint32

// PageSource supplies the physical I/O the pool performs on a miss. The
// pager package implements it so the pool has no compile-time dependency
// on file semantics (spec.md 9: "parameterize by a pool handle").
type PageSource interface {
	ReadPage(file FileID, page disk.PageID, buf []byte) error
	WritePage(file FileID, page disk.PageID, buf []byte) error
}

type pageKey struct {
	file FileID
	page disk.PageID
}

const noFrame = -1

type frame struct {
	key      pageKey
	valid    bool
	pinCount int
	dirty    bool
	buf      [disk.PageSize]byte
	prev     int
	next     int
}

// Page is a pinned handle onto one frame's contents, returned by Get and
// Alloc. It must be released through Pool.Unfix exactly once.
type Page struct {
	pool *Pool
	idx  int
}

func (p *Page) FileID() FileID      { return p.pool.frames[p.idx].key.file }
func (p *Page) PageID() disk.PageID { return p.pool.frames[p.idx].key.page }
func (p *Page) Bytes() []byte       { return p.pool.frames[p.idx].buf[:] }
func (p *Page) IsDirty() bool       { return p.pool.frames[p.idx].dirty }

// Unfix is shorthand for pool.Unfix(page.FileID(), page.PageID(), dirty).
func (p *Page) Unfix(dirty bool) error {
	return p.pool.Unfix(p.FileID(), p.PageID(), dirty)
}

// Pool is the fixed-capacity frame array plus hash index and usage-order
// list described in spec.md 3 and 4.2.
type Pool struct {
	frames        []frame
	index         map[pageKey]int
	free          []int
	head, tail    int
	defaultPolicy Policy
	source        PageSource
	stats         *stats.Registry
	log           *zap.SugaredLogger
}

// NewPool builds a pool of the given capacity. source supplies physical
// I/O, reg receives statistics, log may be nil (a no-op logger is used).
func NewPool(capacity int, source PageSource, reg *stats.Registry, log *zap.SugaredLogger) *Pool {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	p := &Pool{
		index:         make(map[pageKey]int, capacity),
		head:          noFrame,
		tail:          noFrame,
		defaultPolicy: LRU,
		source:        source,
		stats:         reg,
		log:           log,
	}
	p.resize(capacity)
	return p
}

func (p *Pool) resize(n int) {
	p.frames = make([]frame, n)
	p.free = make([]int, n)
	for i := range p.frames {
		p.free[i] = n - 1 - i
	}
	p.head, p.tail = noFrame, noFrame
}

// Size returns the total number of frames.
func (p *Pool) Size() int {
	return len(p.frames)
}

// SetCapacity changes the number of frames. It may only be called while
// the pool is empty.
func (p *Pool) SetCapacity(n int) error {
	if len(p.index) != 0 {
		return errors.New("buffer: SetCapacity requires an empty pool")
	}
	p.resize(n)
	return nil
}

// SetDefaultPolicy changes the replacement policy used for fetches whose
// caller does not override it.
func (p *Pool) SetDefaultPolicy(policy Policy) {
	p.defaultPolicy = policy
}

// DefaultPolicy returns the pool's current default replacement policy.
func (p *Pool) DefaultPolicy() Policy {
	return p.defaultPolicy
}

func (p *Pool) unlink(idx int) {
	f := &p.frames[idx]
	if f.prev != noFrame {
		p.frames[f.prev].next = f.next
	} else {
		p.head = f.next
	}
	if f.next != noFrame {
		p.frames[f.next].prev = f.prev
	} else {
		p.tail = f.prev
	}
	f.prev, f.next = noFrame, noFrame
}

func (p *Pool) pushFront(idx int) {
	f := &p.frames[idx]
	f.prev = noFrame
	f.next = p.head
	if p.head != noFrame {
		p.frames[p.head].prev = idx
	}
	p.head = idx
	if p.tail == noFrame {
		p.tail = idx
	}
}

func (p *Pool) touch(idx int) {
	p.unlink(idx)
	p.pushFront(idx)
}

// selectVictim returns the index of an unpinned frame to reuse, per
// spec.md 4.2's miss protocol: an empty frame if one exists, otherwise
// the frame at the policy-appropriate end of the usage-order list,
// skipping any frame still pinned.
func (p *Pool) selectVictim(policy Policy) (int, bool) {
	if n := len(p.free); n > 0 {
		idx := p.free[n-1]
		p.free = p.free[:n-1]
		return idx, true
	}
	if policy == MRU {
		for idx := p.head; idx != noFrame; idx = p.frames[idx].next {
			if p.frames[idx].pinCount == 0 {
				return idx, true
			}
		}
	} else {
		for idx := p.tail; idx != noFrame; idx = p.frames[idx].prev {
			if p.frames[idx].pinCount == 0 {
				return idx, true
			}
		}
	}
	return 0, false
}

func (p *Pool) evictIfResident(idx int) error {
	f := &p.frames[idx]
	if !f.valid {
		return nil
	}
	if f.dirty {
		if err := p.source.WritePage(f.key.file, f.key.page, f.buf[:]); err != nil {
			return fmt.Errorf("buffer: writeback frame %d: %w", idx, err)
		}
		p.stats.AddPhysicalWrite()
		f.dirty = false
	}
	delete(p.index, f.key)
	p.unlink(idx)
	f.valid = false
	return nil
}

// Get returns a pinned Page for (file, pageNumber), fetching it from the
// source on a miss. policy governs victim selection for this particular
// miss only; it does not change the pool's default.
func (p *Pool) Get(file FileID, pageNumber disk.PageID, policy Policy) (*Page, error) {
	key := pageKey{file: file, page: pageNumber}
	if idx, ok := p.index[key]; ok {
		p.touch(idx)
		p.frames[idx].pinCount++
		p.stats.AddPageFix()
		return &Page{pool: p, idx: idx}, nil
	}
	return p.fetchMiss(file, pageNumber, policy, true)
}

// Alloc behaves like Get but skips the physical read: the caller has
// just extended the file and the frame's contents are undefined until
// initialized.
func (p *Pool) Alloc(file FileID, pageNumber disk.PageID, policy Policy) (*Page, error) {
	return p.fetchMiss(file, pageNumber, policy, false)
}

func (p *Pool) fetchMiss(file FileID, pageNumber disk.PageID, policy Policy, doRead bool) (*Page, error) {
	idx, ok := p.selectVictim(policy)
	if !ok {
		return nil, ErrBufferExhausted
	}
	if err := p.evictIfResident(idx); err != nil {
		return nil, err
	}
	f := &p.frames[idx]
	f.key = pageKey{file: file, page: pageNumber}
	f.dirty = false
	if doRead {
		if err := p.source.ReadPage(file, pageNumber, f.buf[:]); err != nil {
			return nil, fmt.Errorf("buffer: read page %d: %w", pageNumber, err)
		}
		p.stats.AddPhysicalRead()
	} else {
		for i := range f.buf {
			f.buf[i] = 0
		}
	}
	f.valid = true
	f.pinCount = 1
	p.index[f.key] = idx
	p.pushFront(idx)
	p.stats.AddPageFix()
	return &Page{pool: p, idx: idx}, nil
}

// Unfix releases one pin on (file, pageNumber). If dirty is set, the
// frame is marked dirty (idempotent within the frame's current
// residency). Callers that already hold a *Page may use its Unfix
// method instead; both resolve to this by (file, page) key, matching
// the pager layer's page-number-based delegation.
func (p *Pool) Unfix(file FileID, pageNumber disk.PageID, dirty bool) error {
	idx, ok := p.index[pageKey{file: file, page: pageNumber}]
	if !ok {
		return ErrNotPinned
	}
	f := &p.frames[idx]
	if f.pinCount <= 0 {
		return ErrNotPinned
	}
	f.pinCount--
	if dirty && !f.dirty {
		f.dirty = true
		p.stats.AddDirtyMark()
	}
	return nil
}

// MarkDirty sets the dirty flag on a pinned (file, pageNumber) frame
// without unpinning it.
func (p *Pool) MarkDirty(file FileID, pageNumber disk.PageID) error {
	idx, ok := p.index[pageKey{file: file, page: pageNumber}]
	if !ok {
		return ErrNotPinned
	}
	f := &p.frames[idx]
	if f.pinCount <= 0 {
		return ErrNotPinned
	}
	if !f.dirty {
		f.dirty = true
		p.stats.AddDirtyMark()
	}
	return nil
}

// PinCount reports the current pin count of (file, pageNumber), and
// whether that frame is resident at all. A resident frame with pin
// count 0 is simply unpinned, not absent — see spec.md invariant 2.
func (p *Pool) PinCount(file FileID, pageNumber disk.PageID) (count int, resident bool) {
	idx, ok := p.index[pageKey{file: file, page: pageNumber}]
	if !ok {
		return 0, false
	}
	return p.frames[idx].pinCount, true
}

// Peek returns a handle onto an already-resident frame without changing
// its pin count. Used by the pager layer to hand back a usable *Page
// when GetThisPage discovers the page is already pinned (the
// page-already-pinned recoverable condition of spec.md 7).
func (p *Pool) Peek(file FileID, pageNumber disk.PageID) (*Page, bool) {
	idx, ok := p.index[pageKey{file: file, page: pageNumber}]
	if !ok {
		return nil, false
	}
	return &Page{pool: p, idx: idx}, true
}

// FlushFile writes back every dirty frame belonging to file and evicts
// all of that file's frames from the pool. It still evicts everything
// even when it returns ErrPagesLeaked, so a caller like pager.Close can
// surface the leak without wedging the pool.
func (p *Pool) FlushFile(file FileID) error {
	var leaked []disk.PageID
	for idx := range p.frames {
		f := &p.frames[idx]
		if !f.valid || f.key.file != file {
			continue
		}
		if f.pinCount > 0 {
			leaked = append(leaked, f.key.page)
			p.log.Warnf("frame %d for file %d page %d still pinned (count=%d) at flush", idx, file, f.key.page, f.pinCount)
		}
		if f.dirty {
			if err := p.source.WritePage(f.key.file, f.key.page, f.buf[:]); err != nil {
				return fmt.Errorf("buffer: flush writeback page %d: %w", f.key.page, err)
			}
			p.stats.AddPhysicalWrite()
			f.dirty = false
		}
		delete(p.index, f.key)
		p.unlink(idx)
		f.valid = false
		f.pinCount = 0
		p.free = append(p.free, idx)
	}
	if len(leaked) > 0 {
		return fmt.Errorf("%w: file %d pages %v", ErrPagesLeaked, file, leaked)
	}
	return nil
}
