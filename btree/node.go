// Package btree provides node structures for B+ tree implementation.
package btree

import (
	"bytes"

	"github.com/tksm/pagedb/btree/branch"
	"github.com/tksm/pagedb/btree/leaf"
)

// NodeHeaderSize is the size of the node type tag.
const NodeHeaderSize = 8

var (
	// NodeTypeLeaf identifies a leaf node.
	NodeTypeLeaf = [8]byte{'L', 'E', 'A', 'F', ' ', ' ', ' ', ' '}
	// NodeTypeBranch identifies a branch (internal) node.
	NodeTypeBranch = [8]byte{'B', 'R', 'A', 'N', 'C', 'H', ' ', ' '}
)

// Node represents a B+ tree node (either leaf or branch). It provides a
// unified interface for accessing node data.
type Node struct {
	header []byte // the 8-byte type tag, aliasing page[0:8]
	body   []byte // node body (leaf or branch data)
}

func NewNode(page []byte) *Node {
	if len(page) < NodeHeaderSize {
		panic("node page too small")
	}
	return &Node{
		header: page[:NodeHeaderSize],
		body:   page[NodeHeaderSize:],
	}
}

func (n *Node) InitializeAsLeaf() {
	copy(n.header, NodeTypeLeaf[:])
}

func (n *Node) InitializeAsBranch() {
	copy(n.header, NodeTypeBranch[:])
}

func (n *Node) IsLeaf() bool {
	return bytes.Equal(n.header, NodeTypeLeaf[:])
}

func (n *Node) IsBranch() bool {
	return bytes.Equal(n.header, NodeTypeBranch[:])
}

func (n *Node) Body() []byte {
	return n.body
}

func (n *Node) AsLeaf() *leaf.Leaf {
	return leaf.NewLeaf(n.body)
}

func (n *Node) AsBranch() *branch.Branch {
	return branch.NewBranch(n.body)
}
