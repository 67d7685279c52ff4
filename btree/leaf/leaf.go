package leaf

import (
	"github.com/tksm/pagedb/bsearch"
	"github.com/tksm/pagedb/btree/pageslot"
	"github.com/tksm/pagedb/disk"
)

// HeaderSize is the leaf header: PrevPageID and NextPageID, each an
// 8-byte little-endian disk.PageID.
const HeaderSize = 16

// Leaf represents a leaf node in a B+ tree: a sorted run of key/value
// pairs plus sibling links for range scans, stored via a positional
// slot directory (package pageslot) so slot order always equals key
// order.
type Leaf struct {
	header []byte // the 16-byte leaf header, aliasing the node body
	body   *pageslot.Directory
}

// NewLeaf wraps bodyBytes, the node body after the shared node type
// header, as a leaf.
func NewLeaf(bodyBytes []byte) *Leaf {
	if len(bodyBytes) < HeaderSize {
		panic("leaf header must fit")
	}
	return &Leaf{
		header: bodyBytes[:HeaderSize],
		body:   pageslot.New(bodyBytes[HeaderSize:]),
	}
}

func (l *Leaf) PrevPageID() disk.PageID {
	return disk.PageIDFromBytes(l.header[0:8])
}

func (l *Leaf) NextPageID() disk.PageID {
	return disk.PageIDFromBytes(l.header[8:16])
}

func (l *Leaf) SetPrevPageID(id disk.PageID) {
	copy(l.header[0:8], id.ToBytes())
}

func (l *Leaf) SetNextPageID(id disk.PageID) {
	copy(l.header[8:16], id.ToBytes())
}

func (l *Leaf) NumPairs() int {
	return l.body.NumSlots()
}

// SearchSlotID finds key's position via binary search over the sorted
// pairs. A nil error means an exact match at the returned index;
// bsearch.ErrNotFound means the returned index is the insertion point.
func (l *Leaf) SearchSlotID(key []byte) (int, error) {
	return bsearch.BinarySearchBy(l.NumPairs(), func(slotID int) int {
		return compareBytes(l.PairAt(slotID).Key, key)
	})
}

func (l *Leaf) PairAt(slotID int) *Pair {
	return PairFromBytes(l.body.Data(slotID))
}

func (l *Leaf) MaxPairSize() int {
	return l.body.Capacity()/2 - pageslot.PointerSize
}

// Initialize resets the leaf to empty with no sibling links.
func (l *Leaf) Initialize() {
	copy(l.header[0:8], disk.InvalidPageID.ToBytes())
	copy(l.header[8:16], disk.InvalidPageID.ToBytes())
	l.body.Init()
}

func (l *Leaf) Insert(slotID int, key []byte, value []byte) bool {
	pair := &Pair{Key: key, Value: value}
	pairBytes := pair.ToBytes()
	if len(pairBytes) > l.MaxPairSize() {
		return false
	}
	if !l.body.Insert(slotID, len(pairBytes)) {
		return false
	}
	copy(l.body.Data(slotID), pairBytes)
	return true
}

// Update replaces the value stored at slotID by removing the pair and
// reinserting it, with the new value, at the same position. Returns
// false if there is no room for the grown pair.
func (l *Leaf) Update(slotID int, newValue []byte) bool {
	if slotID >= l.NumPairs() {
		return false
	}
	oldPair := l.PairAt(slotID)
	newPair := &Pair{Key: oldPair.Key, Value: newValue}
	newPairBytes := newPair.ToBytes()
	if len(newPairBytes) > l.MaxPairSize() {
		return false
	}
	oldPairBytes := oldPair.ToBytes()

	spaceNeeded := len(newPairBytes) - len(oldPairBytes)
	if spaceNeeded > l.body.FreeSpace() {
		return false
	}

	l.body.Remove(slotID)
	if !l.body.Insert(slotID, len(newPairBytes)) {
		return false
	}
	copy(l.body.Data(slotID), newPairBytes)
	return true
}

func (l *Leaf) IsHalfFull() bool {
	return 2*l.body.FreeSpace() < l.body.Capacity()
}

// SplitInsert transfers the lower half of l's pairs into newLeaf (after
// inserting newKey/newValue in sorted position across the two halves)
// and returns the first key of l, the value to promote into the parent.
func (l *Leaf) SplitInsert(newLeaf *Leaf, newKey []byte, newValue []byte) []byte {
	newLeaf.Initialize()
	for {
		if newLeaf.IsHalfFull() {
			index, _ := l.SearchSlotID(newKey)
			if !l.Insert(index, newKey, newValue) {
				panic("old leaf must have space")
			}
			break
		}
		if compareBytes(l.PairAt(0).Key, newKey) < 0 {
			l.Transfer(newLeaf)
		} else {
			if !newLeaf.Insert(newLeaf.NumPairs(), newKey, newValue) {
				panic("new leaf must have space")
			}
			for !newLeaf.IsHalfFull() {
				l.Transfer(newLeaf)
			}
			break
		}
	}
	return l.PairAt(0).Key
}

// Transfer moves l's lowest-keyed pair onto the end of dest.
func (l *Leaf) Transfer(dest *Leaf) {
	nextIndex := dest.NumPairs()
	data := l.body.Data(0)
	if !dest.body.Insert(nextIndex, len(data)) {
		panic("no space in dest leaf")
	}
	copy(dest.body.Data(nextIndex), data)
	l.body.Remove(0)
}

func compareBytes(a, b []byte) int {
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	for i := 0; i < minLen; i++ {
		if a[i] < b[i] {
			return -1
		}
		if a[i] > b[i] {
			return 1
		}
	}
	if len(a) < len(b) {
		return -1
	}
	if len(a) > len(b) {
		return 1
	}
	return 0
}
