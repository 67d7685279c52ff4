package pager

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tksm/pagedb/buffer"
	"github.com/tksm/pagedb/disk"
	"github.com/tksm/pagedb/stats"
)

func tempPath(t *testing.T) string {
	t.Helper()
	f, err := os.CreateTemp("", "pager_test_*.db")
	require.NoError(t, err)
	path := f.Name()
	require.NoError(t, f.Close())
	require.NoError(t, os.Remove(path))
	t.Cleanup(func() { os.Remove(path) })
	return path
}

func TestCreateOpenClose(t *testing.T) {
	path := tempPath(t)
	mgr := NewManager(4, stats.New(), nil)

	require.NoError(t, mgr.Create(path))
	f, err := mgr.Open(path)
	require.NoError(t, err)
	require.EqualValues(t, 1, f.numPages())
	require.False(t, f.firstFree().Valid())
	require.NoError(t, f.Close())
}

func TestAllocWriteReadBack(t *testing.T) {
	path := tempPath(t)
	mgr := NewManager(4, stats.New(), nil)
	require.NoError(t, mgr.Create(path))
	f, err := mgr.Open(path)
	require.NoError(t, err)

	pn, p, err := f.AllocPage()
	require.NoError(t, err)
	require.EqualValues(t, 1, pn)
	copy(p.Bytes(), []byte("payload"))
	require.NoError(t, f.UnfixPage(pn, true))
	require.NoError(t, f.Close())

	f2, err := mgr.Open(path)
	require.NoError(t, err)
	got, err := f2.GetThisPage(pn)
	require.NoError(t, err)
	require.Equal(t, "payload", string(got.Bytes()[:7]))
	require.NoError(t, f2.UnfixPage(pn, false))
	require.NoError(t, f2.Close())
}

func TestDisposeThenAllocReusesFreeList(t *testing.T) {
	path := tempPath(t)
	mgr := NewManager(4, stats.New(), nil)
	require.NoError(t, mgr.Create(path))
	f, err := mgr.Open(path)
	require.NoError(t, err)

	pn1, p1, err := f.AllocPage()
	require.NoError(t, err)
	require.NoError(t, f.UnfixPage(pn1, true))
	_ = p1

	pn2, p2, err := f.AllocPage()
	require.NoError(t, err)
	require.NoError(t, f.UnfixPage(pn2, true))
	_ = p2

	require.NoError(t, f.DisposePage(pn1))

	_, err = f.GetThisPage(pn1)
	require.ErrorIs(t, err, ErrInvalidPage)

	pn3, p3, err := f.AllocPage()
	require.NoError(t, err)
	require.Equal(t, pn1, pn3, "alloc after dispose should reuse the free-list head")
	require.NoError(t, f.UnfixPage(pn3, true))
	_ = p3

	require.NoError(t, f.Close())
}

func TestGetThisPageAlreadyPinnedIsRecoverable(t *testing.T) {
	path := tempPath(t)
	mgr := NewManager(4, stats.New(), nil)
	require.NoError(t, mgr.Create(path))
	f, err := mgr.Open(path)
	require.NoError(t, err)

	pn, p1, err := f.AllocPage()
	require.NoError(t, err)
	_ = p1

	p2, err := f.GetThisPage(pn)
	require.ErrorIs(t, err, ErrAlreadyPinned)
	require.NotNil(t, p2)

	cnt, resident := mgr.pool.PinCount(f.id, pn)
	require.True(t, resident)
	require.Equal(t, 1, cnt)

	require.NoError(t, f.UnfixPage(pn, false))
	require.ErrorIs(t, f.UnfixPage(pn, true), buffer.ErrNotPinned)
	require.NoError(t, f.Close())
}

func TestPageIteratorSkipsFreedPages(t *testing.T) {
	path := tempPath(t)
	mgr := NewManager(8, stats.New(), nil)
	require.NoError(t, mgr.Create(path))
	f, err := mgr.Open(path)
	require.NoError(t, err)

	var allocated []disk.PageID
	for i := 0; i < 4; i++ {
		pn, _, err := f.AllocPage()
		require.NoError(t, err)
		require.NoError(t, f.UnfixPage(pn, true))
		allocated = append(allocated, pn)
	}
	require.NoError(t, f.DisposePage(allocated[1]))

	var seen []disk.PageID
	it := f.GetFirstPage()
	for {
		err := it.Next()
		if errors.Is(err, ErrEndOfFile) {
			break
		}
		require.NoError(t, err)
		seen = append(seen, it.PageID())
	}

	require.Equal(t, []disk.PageID{allocated[0], allocated[2], allocated[3]}, seen)
	require.NoError(t, f.Close())
}

func TestCloseReportsLeakedPins(t *testing.T) {
	path := tempPath(t)
	mgr := NewManager(4, stats.New(), nil)
	require.NoError(t, mgr.Create(path))
	f, err := mgr.Open(path)
	require.NoError(t, err)

	pn, _, err := f.AllocPage()
	require.NoError(t, err)
	_ = pn

	err = f.Close()
	require.ErrorIs(t, err, buffer.ErrPagesLeaked)
}
