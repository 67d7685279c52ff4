// Package btree provides a B+ tree implementation for indexing and
// storing key-value pairs, built as an external collaborator of the
// paged-file API: every page it touches goes through a *pager.File, and
// it never reaches into disk or stats directly.
package btree

import (
	"errors"

	"github.com/tksm/pagedb/buffer"
	"github.com/tksm/pagedb/disk"
	"github.com/tksm/pagedb/pager"
)

var (
	// ErrDuplicateKey is returned when attempting to insert a key that already exists.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrKeyNotFound is returned when attempting to update or delete a key that doesn't exist.
	ErrKeyNotFound = errors.New("key not found")
)

// SearchMode specifies how to search in a B+ tree.
type SearchMode struct {
	IsStart bool   // If true, start from the beginning; if false, search for Key
	Key     []byte // The key to search for (only used if IsStart is false)
}

func NewSearchModeStart() SearchMode {
	return SearchMode{IsStart: true}
}

func NewSearchModeKey(key []byte) SearchMode {
	return SearchMode{IsStart: false, Key: key}
}

// BTree represents a B+ tree index. It stores key-value pairs in a
// balanced tree structure optimized for disk access. MetaPageID is the
// only state the index needs to persist outside the file itself.
type BTree struct {
	MetaPageID disk.PageID
}

// unfix forwards to f.UnfixPage and returns its error unchanged; an
// already-unpinned page is reported as an error, not ignored. The
// deferred unfix calls in Insert, insertInternal and updateInternal
// discard that error.
func unfix(f *pager.File, id disk.PageID, dirty bool) error {
	return f.UnfixPage(id, dirty)
}

// fetch wraps f.GetThisPage, treating the recoverable already-pinned
// condition as success: btree never re-enters the same page within one
// traversal, but a caller holding an Iter open across calls can.
func fetch(f *pager.File, id disk.PageID) (*buffer.Page, error) {
	page, err := f.GetThisPage(id)
	if err != nil && !errors.Is(err, pager.ErrAlreadyPinned) {
		return nil, err
	}
	return page, nil
}

// CreateBTree allocates a fresh meta page and an empty root leaf inside
// f, returning a handle to the new index.
func CreateBTree(f *pager.File) (*BTree, error) {
	metaID, metaPage, err := f.AllocPage()
	if err != nil {
		return nil, err
	}
	meta := NewMeta(metaPage.Bytes())

	rootID, rootPage, err := f.AllocPage()
	if err != nil {
		return nil, err
	}
	node := NewNode(rootPage.Bytes())
	node.InitializeAsLeaf()
	node.AsLeaf().Initialize()

	meta.SetRootPageID(rootID)
	if err := unfix(f, rootID, true); err != nil {
		return nil, err
	}
	if err := unfix(f, metaID, true); err != nil {
		return nil, err
	}
	return &BTree{MetaPageID: metaID}, nil
}

// NewBTree opens an existing index whose meta page is already at
// metaPageID.
func NewBTree(metaPageID disk.PageID) *BTree {
	return &BTree{MetaPageID: metaPageID}
}

// FetchRootPage returns the tree's current root page, pinned, along
// with its page id.
func (bt *BTree) FetchRootPage(f *pager.File) (*buffer.Page, disk.PageID, error) {
	metaPage, err := fetch(f, bt.MetaPageID)
	if err != nil {
		return nil, disk.InvalidPageID, err
	}
	meta := NewMeta(metaPage.Bytes())
	rootID := meta.RootPageID()
	if err := unfix(f, bt.MetaPageID, false); err != nil {
		return nil, disk.InvalidPageID, err
	}
	rootPage, err := fetch(f, rootID)
	if err != nil {
		return nil, disk.InvalidPageID, err
	}
	return rootPage, rootID, nil
}

// Search returns an iterator positioned at searchMode's match (or
// insertion point). The caller must call Iter.Close once done, unless
// iteration is driven to exhaustion.
func (bt *BTree) Search(f *pager.File, searchMode SearchMode) (*Iter, error) {
	rootPage, rootID, err := bt.FetchRootPage(f)
	if err != nil {
		return nil, err
	}
	return bt.searchInternal(f, rootPage, rootID, searchMode)
}

func (bt *BTree) searchInternal(f *pager.File, nodePage *buffer.Page, nodeID disk.PageID, searchMode SearchMode) (*Iter, error) {
	node := NewNode(nodePage.Bytes())

	if node.IsLeaf() {
		leafNode := node.AsLeaf()
		slotID := 0
		if !searchMode.IsStart {
			found, err := leafNode.SearchSlotID(searchMode.Key)
			slotID = found
			_ = err // insertion point on a miss is the correct scan start
		}
		isRightMost := leafNode.NumPairs() == slotID

		iter := &Iter{file: f, page: nodePage, pageID: nodeID, slotID: slotID}
		if isRightMost {
			if err := iter.Advance(); err != nil {
				return nil, err
			}
		}
		return iter, nil
	}

	if node.IsBranch() {
		branchNode := node.AsBranch()
		var childID disk.PageID
		if searchMode.IsStart {
			childID = branchNode.ChildAt(0)
		} else {
			childID = branchNode.SearchChild(searchMode.Key)
		}
		if err := unfix(f, nodeID, false); err != nil {
			return nil, err
		}
		childPage, err := fetch(f, childID)
		if err != nil {
			return nil, err
		}
		return bt.searchInternal(f, childPage, childID, searchMode)
	}
	panic("unknown node type")
}

// Insert adds key/value to the index. It returns ErrDuplicateKey if key
// is already present.
func (bt *BTree) Insert(f *pager.File, key []byte, value []byte) error {
	metaPage, err := fetch(f, bt.MetaPageID)
	if err != nil {
		return err
	}
	meta := NewMeta(metaPage.Bytes())
	rootID := meta.RootPageID()
	metaDirty := false
	defer func() { unfix(f, bt.MetaPageID, metaDirty) }()

	split, err := bt.insertInternal(f, rootID, key, value)
	if err != nil {
		return err
	}

	if split != nil {
		newRootID, newRootPage, err := f.AllocPage()
		if err != nil {
			return err
		}
		node := NewNode(newRootPage.Bytes())
		node.InitializeAsBranch()
		node.AsBranch().Initialize(split.Key, split.ChildPageId, rootID)
		if err := unfix(f, newRootID, true); err != nil {
			return err
		}
		meta.SetRootPageID(newRootID)
		metaDirty = true
	}
	return nil
}

// Split represents information propagated to the parent node when a
// node splits: the promoted key and the page id of the new sibling.
type Split struct {
	Key         []byte
	ChildPageId disk.PageID
}

func (bt *BTree) insertInternal(f *pager.File, nodeID disk.PageID, key []byte, value []byte) (*Split, error) {
	nodePage, err := fetch(f, nodeID)
	if err != nil {
		return nil, err
	}
	dirty := false
	defer func() { unfix(f, nodeID, dirty) }()

	node := NewNode(nodePage.Bytes())

	if node.IsLeaf() {
		leafNode := node.AsLeaf()
		if _, err := leafNode.SearchSlotID(key); err == nil {
			return nil, ErrDuplicateKey
		}
		slotID, _ := leafNode.SearchSlotID(key)

		if leafNode.Insert(slotID, key, value) {
			dirty = true
			return nil, nil
		}

		prevLeafID := leafNode.PrevPageID()
		var prevLeafPage *buffer.Page
		if prevLeafID.Valid() {
			prevLeafPage, err = fetch(f, prevLeafID)
			if err != nil {
				return nil, err
			}
		}

		newLeafID, newLeafPage, err := f.AllocPage()
		if err != nil {
			return nil, err
		}

		if prevLeafPage != nil {
			prevLeaf := NewNode(prevLeafPage.Bytes()).AsLeaf()
			prevLeaf.SetNextPageID(newLeafID)
			if err := unfix(f, prevLeafID, true); err != nil {
				return nil, err
			}
		}
		leafNode.SetPrevPageID(newLeafID)

		newLeafNode := NewNode(newLeafPage.Bytes())
		newLeafNode.InitializeAsLeaf()
		newLeaf := newLeafNode.AsLeaf()
		newLeaf.Initialize()
		splitKey := leafNode.SplitInsert(newLeaf, key, value)
		newLeaf.SetNextPageID(nodeID)
		if prevLeafID.Valid() {
			newLeaf.SetPrevPageID(prevLeafID)
		}
		if err := unfix(f, newLeafID, true); err != nil {
			return nil, err
		}
		dirty = true
		return &Split{Key: splitKey, ChildPageId: newLeafID}, nil
	}

	if node.IsBranch() {
		branchNode := node.AsBranch()
		childIdx := branchNode.SearchChildIndex(key)
		childID := branchNode.ChildAt(childIdx)

		split, err := bt.insertInternal(f, childID, key, value)
		if err != nil {
			return nil, err
		}
		if split == nil {
			return nil, nil
		}

		if branchNode.Insert(childIdx, split.Key, split.ChildPageId) {
			dirty = true
			return nil, nil
		}

		newBranchID, newBranchPage, err := f.AllocPage()
		if err != nil {
			return nil, err
		}
		newBranchNodeWrapper := NewNode(newBranchPage.Bytes())
		newBranchNodeWrapper.InitializeAsBranch()
		newBranchNode := newBranchNodeWrapper.AsBranch()
		splitKey := branchNode.SplitInsert(newBranchNode, split.Key, split.ChildPageId)
		if err := unfix(f, newBranchID, true); err != nil {
			return nil, err
		}
		dirty = true
		return &Split{Key: splitKey, ChildPageId: newBranchID}, nil
	}
	panic("unknown node type")
}

// Update replaces the value stored under key. It returns ErrKeyNotFound
// if key is not present.
func (bt *BTree) Update(f *pager.File, key []byte, newValue []byte) error {
	metaPage, err := fetch(f, bt.MetaPageID)
	if err != nil {
		return err
	}
	meta := NewMeta(metaPage.Bytes())
	rootID := meta.RootPageID()
	if err := unfix(f, bt.MetaPageID, false); err != nil {
		return err
	}
	return bt.updateInternal(f, rootID, key, newValue)
}

func (bt *BTree) updateInternal(f *pager.File, nodeID disk.PageID, key []byte, newValue []byte) error {
	nodePage, err := fetch(f, nodeID)
	if err != nil {
		return err
	}
	dirty := false
	defer func() { unfix(f, nodeID, dirty) }()

	node := NewNode(nodePage.Bytes())

	if node.IsLeaf() {
		leafNode := node.AsLeaf()
		slotID, err := leafNode.SearchSlotID(key)
		if err != nil {
			return ErrKeyNotFound
		}
		if leafNode.Update(slotID, newValue) {
			dirty = true
			return nil
		}
		return ErrKeyNotFound
	}

	if node.IsBranch() {
		branchNode := node.AsBranch()
		childIdx := branchNode.SearchChildIndex(key)
		childID := branchNode.ChildAt(childIdx)
		return bt.updateInternal(f, childID, key, newValue)
	}
	panic("unknown node type")
}

// Iter traverses key-value pairs across leaf pages in ascending key
// order, holding at most one leaf page pinned at a time. Callers that
// abandon iteration before exhausting it must call Close.
type Iter struct {
	file   *pager.File
	page   *buffer.Page
	pageID disk.PageID
	slotID int
}

// Get returns the pair at the iterator's current position without
// advancing.
func (it *Iter) Get() ([]byte, []byte, bool) {
	if it.page == nil {
		return nil, nil, false
	}
	node := NewNode(it.page.Bytes())
	if !node.IsLeaf() {
		return nil, nil, false
	}
	leafNode := node.AsLeaf()
	if it.slotID >= leafNode.NumPairs() {
		return nil, nil, false
	}
	pair := leafNode.PairAt(it.slotID)
	key := make([]byte, len(pair.Key))
	value := make([]byte, len(pair.Value))
	copy(key, pair.Key)
	copy(value, pair.Value)
	return key, value, true
}

// Advance moves to the next pair, crossing into the next leaf page (and
// releasing the current one) when the current leaf is exhausted. Once
// there is no next leaf, the iterator becomes exhausted and Close is a
// no-op from then on.
func (it *Iter) Advance() error {
	if it.page == nil {
		return nil
	}
	it.slotID++
	leafNode := NewNode(it.page.Bytes()).AsLeaf()
	if it.slotID < leafNode.NumPairs() {
		return nil
	}

	nextID := leafNode.NextPageID()
	if err := unfix(it.file, it.pageID, false); err != nil {
		return err
	}
	it.page = nil

	if nextID.Valid() {
		nextPage, err := fetch(it.file, nextID)
		if err != nil {
			return err
		}
		it.page = nextPage
		it.pageID = nextID
		it.slotID = 0
	}
	return nil
}

// Next returns the current pair and advances, in one call.
func (it *Iter) Next() ([]byte, []byte, bool, error) {
	key, value, ok := it.Get()
	if err := it.Advance(); err != nil {
		return nil, nil, false, err
	}
	return key, value, ok, nil
}

// Close releases the iterator's currently pinned leaf page, if any. It
// is idempotent and safe to call after natural exhaustion.
func (it *Iter) Close() error {
	if it.page == nil {
		return nil
	}
	err := unfix(it.file, it.pageID, false)
	it.page = nil
	return err
}
