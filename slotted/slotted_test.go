package slotted

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripInsertGet(t *testing.T) {
	buf := make([]byte, 256)
	p := New(buf)
	p.Init(0)

	records := [][]byte{[]byte("hello"), []byte("world"), []byte("x")}
	ids := make([]int16, len(records))
	for i, r := range records {
		id, err := p.Insert(r)
		require.NoError(t, err)
		ids[i] = id
	}
	for i, id := range ids {
		got, err := p.Get(id)
		require.NoError(t, err)
		require.Equal(t, records[i], got)
	}
}

// TestFixedSizeScenario reproduces spec.md scenario 2: pageSize=4096,
// inserts of 100/200/3000 succeed, 500 fails NoSpace, deleting slot 1
// (length 200) and inserting 150 reuses slot 1 and UsedBytes is 3250.
func TestFixedSizeScenario(t *testing.T) {
	buf := make([]byte, 4096)
	p := New(buf)
	p.Init(0)

	id0, err := p.Insert(make([]byte, 100))
	require.NoError(t, err)
	require.EqualValues(t, 0, id0)

	id1, err := p.Insert(make([]byte, 200))
	require.NoError(t, err)
	require.EqualValues(t, 1, id1)

	id2, err := p.Insert(make([]byte, 3000))
	require.NoError(t, err)
	require.EqualValues(t, 2, id2)

	_, err = p.Insert(make([]byte, 500))
	require.ErrorIs(t, err, ErrNoSpace)

	require.NoError(t, p.Delete(id1))

	reused, err := p.Insert(make([]byte, 150))
	require.NoError(t, err)
	require.Equal(t, id1, reused, "reinsert after delete should reuse the tombstoned slot")

	require.Equal(t, 3, p.NumSlots(), "slot count should not grow on tombstone reuse")
	require.Equal(t, 100+150+3000, p.UsedBytes())
}

func TestTombstoneReuseDoesNotGrowSlotCount(t *testing.T) {
	buf := make([]byte, 256)
	p := New(buf)
	p.Init(0)

	id, err := p.Insert([]byte("abcde"))
	require.NoError(t, err)
	before := p.NumSlots()

	require.NoError(t, p.Delete(id))
	again, err := p.Insert([]byte("fghij"))
	require.NoError(t, err)
	require.Equal(t, id, again)
	require.Equal(t, before, p.NumSlots())
}

func TestCompactionRecoversSpaceAndPreservesSlotIDs(t *testing.T) {
	buf := make([]byte, 128)
	p := New(buf)
	p.Init(0)

	var ids []int16
	for i := 0; i < 4; i++ {
		id, err := p.Insert(make([]byte, 20))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	// Delete alternating slots to fragment the heap, then insert
	// something that only fits after compaction reclaims the gaps.
	require.NoError(t, p.Delete(ids[0]))
	require.NoError(t, p.Delete(ids[2]))

	id, err := p.Insert(make([]byte, 30))
	require.NoError(t, err)
	require.Contains(t, []int16{ids[0], ids[2]}, id, "reuse should prefer the tombstone chain")

	got, err := p.Get(ids[1])
	require.NoError(t, err)
	require.Len(t, got, 20)
	got, err = p.Get(ids[3])
	require.NoError(t, err)
	require.Len(t, got, 20)
}

func TestScanSkipsTombstonesInSlotOrder(t *testing.T) {
	buf := make([]byte, 256)
	p := New(buf)
	p.Init(0)

	id0, _ := p.Insert([]byte("a"))
	id1, _ := p.Insert([]byte("b"))
	id2, _ := p.Insert([]byte("c"))
	require.NoError(t, p.Delete(id1))

	cursor := int16(-1)
	gotID, data, err := p.Scan(&cursor)
	require.NoError(t, err)
	require.Equal(t, id0, gotID)
	require.Equal(t, []byte("a"), data)

	gotID, data, err = p.Scan(&cursor)
	require.NoError(t, err)
	require.Equal(t, id2, gotID)
	require.Equal(t, []byte("c"), data)

	_, _, err = p.Scan(&cursor)
	require.ErrorIs(t, err, ErrEmpty)
}

func TestGetDeletedOrOutOfRangeSlotIsInvalid(t *testing.T) {
	buf := make([]byte, 128)
	p := New(buf)
	p.Init(0)

	id, err := p.Insert([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, p.Delete(id))

	_, err = p.Get(id)
	require.ErrorIs(t, err, ErrInvalidSlot)

	_, err = p.Get(id + 50)
	require.ErrorIs(t, err, ErrInvalidSlot)

	require.True(t, errors.Is(p.Delete(id), ErrInvalidSlot), "double delete must fail")
}

func TestInsertZeroLengthRejected(t *testing.T) {
	buf := make([]byte, 64)
	p := New(buf)
	p.Init(0)

	_, err := p.Insert(nil)
	require.ErrorIs(t, err, ErrZeroLength)
}

func TestFreeSpaceInvariant(t *testing.T) {
	buf := make([]byte, 256)
	p := New(buf)
	p.Init(0)

	for i := 0; i < 5; i++ {
		_, err := p.Insert(make([]byte, 10))
		require.NoError(t, err)
		headerEnd := HeaderSize + p.NumSlots()*SlotSize
		require.GreaterOrEqual(t, int(p.freePtr()), headerEnd)
	}
}
