package branch

import (
	"github.com/tksm/pagedb/bsearch"
	"github.com/tksm/pagedb/btree/pageslot"
	"github.com/tksm/pagedb/disk"
)

// HeaderSize is the branch header: the rightmost child PageID, 8 bytes
// little-endian.
const HeaderSize = 8

// Branch represents a branch (internal) node in a B+ tree. Each of its
// pairs is a key paired with the page id of the child subtree holding
// keys less than it; RightChild holds the subtree for keys greater than
// every stored key. Pairs are kept in sorted key order via a positional
// slot directory (package pageslot), exactly like leaf.Leaf.
type Branch struct {
	header []byte // the 8-byte RightChild field, aliasing the node body
	body   *pageslot.Directory
}

func NewBranch(bodyBytes []byte) *Branch {
	if len(bodyBytes) < HeaderSize {
		panic("branch header must fit")
	}
	return &Branch{
		header: bodyBytes[:HeaderSize],
		body:   pageslot.New(bodyBytes[HeaderSize:]),
	}
}

func (b *Branch) rightChild() disk.PageID {
	return disk.PageIDFromBytes(b.header[0:8])
}

func (b *Branch) setRightChild(id disk.PageID) {
	copy(b.header[0:8], id.ToBytes())
}

func (b *Branch) Insert(slotID int, key []byte, pageID disk.PageID) bool {
	pair := &Pair{Key: key, Value: pageID.ToBytes()}
	pairBytes := pair.ToBytes()
	if len(pairBytes) > b.MaxPairSize() {
		return false
	}
	if !b.body.Insert(slotID, len(pairBytes)) {
		return false
	}
	copy(b.body.Data(slotID), pairBytes)
	return true
}

func (b *Branch) IsHalfFull() bool {
	return 2*b.body.FreeSpace() < b.body.Capacity()
}

func (b *Branch) SplitInsert(newBranch *Branch, newKey []byte, newPageID disk.PageID) []byte {
	newBranch.body.Init()
	for {
		if newBranch.IsHalfFull() {
			index, _ := b.SearchSlotID(newKey)
			if !b.Insert(index, newKey, newPageID) {
				panic("old branch must have space")
			}
			break
		}
		if compareBytes(b.PairAt(0).Key, newKey) < 0 {
			b.Transfer(newBranch)
		} else {
			if !newBranch.Insert(newBranch.NumPairs(), newKey, newPageID) {
				panic("new branch must have space")
			}
			for !newBranch.IsHalfFull() {
				b.Transfer(newBranch)
			}
			break
		}
	}
	return newBranch.FillRightChild()
}

func (b *Branch) Transfer(dest *Branch) {
	nextIndex := dest.NumPairs()
	data := b.body.Data(0)
	if !dest.body.Insert(nextIndex, len(data)) {
		panic("no space in dest branch")
	}
	copy(dest.body.Data(nextIndex), data)
	b.body.Remove(0)
}

func (b *Branch) NumPairs() int {
	return b.body.NumSlots()
}

// SearchSlotID finds key's position via binary search over the sorted
// pairs, the same contract as leaf.Leaf.SearchSlotID.
func (b *Branch) SearchSlotID(key []byte) (int, error) {
	return bsearch.BinarySearchBy(b.NumPairs(), func(slotID int) int {
		return compareBytes(b.PairAt(slotID).Key, key)
	})
}

func (b *Branch) SearchChild(key []byte) disk.PageID {
	childIndex := b.SearchChildIndex(key)
	return b.ChildAt(childIndex)
}

func (b *Branch) SearchChildIndex(key []byte) int {
	slotID, err := b.SearchSlotID(key)
	if err == nil {
		return slotID + 1
	}
	return slotID
}

func (b *Branch) ChildAt(childIndex int) disk.PageID {
	if childIndex == b.NumPairs() {
		return b.rightChild()
	}
	return disk.PageIDFromBytes(b.PairAt(childIndex).Value)
}

func (b *Branch) PairAt(slotID int) *Pair {
	return PairFromBytes(b.body.Data(slotID))
}

func (b *Branch) MaxPairSize() int {
	return b.body.Capacity()/2 - pageslot.PointerSize
}

// Initialize seeds a freshly allocated branch with a single key/child
// pair and a rightmost child, used when splitting the old root.
func (b *Branch) Initialize(key []byte, leftChild disk.PageID, rightChild disk.PageID) {
	b.body.Init()
	b.Insert(0, key, leftChild)
	b.setRightChild(rightChild)
}

// FillRightChild removes the last pair, promoting its child to
// RightChild and returning its key, for use while splitting.
func (b *Branch) FillRightChild() []byte {
	lastID := b.NumPairs() - 1
	pair := b.PairAt(lastID)
	rightChild := disk.PageIDFromBytes(pair.Value)
	keyVec := make([]byte, len(pair.Key))
	copy(keyVec, pair.Key)
	b.body.Remove(lastID)
	b.setRightChild(rightChild)
	return keyVec
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
