package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tksm/pagedb/disk"
	"github.com/tksm/pagedb/stats"
)

// memSource is an in-memory PageSource used to unit test the pool in
// isolation from the pager layer.
type memSource struct {
	pages map[disk.PageID][disk.PageSize]byte
}

func newMemSource() *memSource {
	return &memSource{pages: map[disk.PageID][disk.PageSize]byte{}}
}

func (m *memSource) ReadPage(_ FileID, page disk.PageID, buf []byte) error {
	p := m.pages[page]
	copy(buf, p[:])
	return nil
}

func (m *memSource) WritePage(_ FileID, page disk.PageID, buf []byte) error {
	var p [disk.PageSize]byte
	copy(p[:], buf)
	m.pages[page] = p
	return nil
}

func TestPoolHitAndMiss(t *testing.T) {
	src := newMemSource()
	reg := stats.New()
	pool := NewPool(1, src, reg, nil)

	hello := make([]byte, disk.PageSize)
	copy(hello, []byte("hello"))

	page1, err := pool.Alloc(0, disk.PageID(0), LRU)
	require.NoError(t, err)
	copy(page1.Bytes(), hello)
	require.NoError(t, page1.Unfix(true))

	fetched, err := pool.Get(0, disk.PageID(0), LRU)
	require.NoError(t, err)
	require.Equal(t, hello, fetched.Bytes())
	require.NoError(t, fetched.Unfix(false))

	world := make([]byte, disk.PageSize)
	copy(world, []byte("world"))
	page2, err := pool.Alloc(0, disk.PageID(1), LRU)
	require.NoError(t, err)
	copy(page2.Bytes(), world)
	require.NoError(t, page2.Unfix(true))

	// page1 was evicted to make room for page2; fetching it again is a
	// miss that must read the previously written-back bytes.
	again, err := pool.Get(0, disk.PageID(0), LRU)
	require.NoError(t, err)
	require.Equal(t, hello, again.Bytes())
	require.NoError(t, again.Unfix(false))
}

func TestPoolBufferExhausted(t *testing.T) {
	src := newMemSource()
	reg := stats.New()
	pool := NewPool(1, src, reg, nil)

	page, err := pool.Alloc(0, disk.PageID(0), LRU)
	require.NoError(t, err)

	_, err = pool.Get(0, disk.PageID(1), LRU)
	require.ErrorIs(t, err, ErrBufferExhausted)

	require.NoError(t, page.Unfix(false))
}

func TestPoolDoubleUnfix(t *testing.T) {
	src := newMemSource()
	reg := stats.New()
	pool := NewPool(1, src, reg, nil)

	page, err := pool.Alloc(0, disk.PageID(0), LRU)
	require.NoError(t, err)
	require.NoError(t, page.Unfix(false))
	require.ErrorIs(t, page.Unfix(false), ErrNotPinned)
}

// TestSequentialRescanLRUvsMRU reproduces spec.md scenario 1: a 3-frame
// pool, six sequential page fetches 0..5, then a second pass over 0..5.
func TestSequentialRescanLRUvsMRU(t *testing.T) {
	src := newMemSource()
	reg := stats.New()
	pool := NewPool(3, src, reg, nil)

	for i := disk.PageID(0); i < 6; i++ {
		p, err := pool.Alloc(0, i, LRU)
		require.NoError(t, err)
		require.NoError(t, p.Unfix(false))
	}

	reg.Reset()
	for i := disk.PageID(0); i < 6; i++ {
		p, err := pool.Get(0, i, LRU)
		require.NoError(t, err)
		require.NoError(t, p.Unfix(false))
	}
	snap := reg.Snapshot()
	require.EqualValues(t, 6, snap.PhysicalReads, "LRU second pass should miss on every page")

	// Rebuild under MRU.
	pool = NewPool(3, src, reg, nil)
	pool.SetDefaultPolicy(MRU)
	for i := disk.PageID(0); i < 6; i++ {
		p, err := pool.Alloc(0, i, MRU)
		require.NoError(t, err)
		require.NoError(t, p.Unfix(false))
	}
	reg.Reset()
	for i := disk.PageID(0); i < 6; i++ {
		p, err := pool.Get(0, i, MRU)
		require.NoError(t, err)
		require.NoError(t, p.Unfix(false))
	}
	snap = reg.Snapshot()
	require.EqualValues(t, 1, snap.PhysicalReads, "MRU second pass should miss only once")
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("lru")
	require.NoError(t, err)
	require.Equal(t, LRU, p)

	p, err = ParsePolicy("")
	require.NoError(t, err)
	require.Equal(t, LRU, p)

	p, err = ParsePolicy("mru")
	require.NoError(t, err)
	require.Equal(t, MRU, p)

	_, err = ParsePolicy("fifo")
	require.Error(t, err)
}
