package compression

import (
	"fmt"
	"math"
)

// noNode marks an absent parent or child link.
const noNode int32 = -1

// maxNodes is the node count of a tree over all 256 byte values.
const maxNodes = 2*256 - 1

// Node is one slot of the array-backed Huffman tree. Leaves have no
// children; internal nodes always have two.
type Node struct {
	Weight int32
	Parent int32
	Left   int32
	Right  int32
}

// IsLeaf reports whether the node has no children.
func (n Node) IsLeaf() bool {
	return n.Left == noNode && n.Right == noNode
}

// Tree is a Huffman tree of 2n-1 nodes for n symbols. Nodes [0, n) are
// the leaves in ascending byte order, the root is the last node, and every
// child index is smaller than its parent's.
type Tree []Node

// Leaves returns the number of leaves, n.
func (t Tree) Leaves() int {
	return len(t)/2 + 1
}

// Root returns the index of the root node.
func (t Tree) Root() int32 {
	return int32(len(t) - 1)
}

// BuildTree builds the Huffman tree for the symbols present in ft.
//
// Each merge scans the parentless nodes left to right and only replaces a
// minimum on a strictly smaller weight, so equal weights resolve to the
// lower index. The smallest node becomes the left child.
func BuildTree(ft *FrequencyTable) (Tree, error) {
	if ft.Total() > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ErrInputTooLarge, ft.Total(), math.MaxInt32)
	}
	symbols := ft.Symbols()
	n := len(symbols)
	if n < 2 {
		return nil, fmt.Errorf("%w: %d distinct symbols", ErrDegenerateInput, n)
	}

	nodes := make(Tree, 2*n-1)
	for i, s := range symbols {
		nodes[i] = Node{Weight: int32(ft.Count(s)), Parent: noNode, Left: noNode, Right: noNode}
	}

	for k := n; k < len(nodes); k++ {
		var min1, min2 int32 = math.MaxInt32, math.MaxInt32
		s1, s2 := noNode, noNode
		for j := 0; j < k; j++ {
			if nodes[j].Parent != noNode {
				continue
			}
			w := nodes[j].Weight
			if w < min1 {
				min2, s2 = min1, s1
				min1, s1 = w, int32(j)
			} else if w < min2 {
				min2, s2 = w, int32(j)
			}
		}
		nodes[s1].Parent = int32(k)
		nodes[s2].Parent = int32(k)
		nodes[k] = Node{Weight: min1 + min2, Parent: noNode, Left: s1, Right: s2}
	}
	return nodes, nil
}
