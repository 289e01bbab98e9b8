// Package suffixtree implements an incremental generalized suffix tree over
// sequences of comparable items, built with Ukkonen's algorithm.
//
// Every sequence is appended to one shared text followed by a terminator
// symbol unique to that sequence, so no suffix of one sequence is ever a
// prefix of a suffix of another and every suffix ends at a leaf. Leaves opened
// while a sequence is added are closed at its terminator before the next
// sequence starts.
//
// A Tree is not safe for concurrent use.
package suffixtree

import (
	"errors"
	"iter"
	"slices"
)

// ErrSequenceTooShort is returned for sequences with fewer than two items.
var ErrSequenceTooShort = errors.New("sequence too short")

// Keyed is an item that compares by its key.
type Keyed interface {
	Key() string
}

// Tree is a generalized suffix tree over sequences of T.
type Tree[T Keyed] struct {
	root    *Node
	text    []int
	symbols map[string]int
	seqs    []sequence[T]

	// Ukkonen construction state, reset for every sequence.
	activeNode   *Node
	activeEdge   int
	activeLength int
	remainder    int
	leafEnd      *int
}

type sequence[T Keyed] struct {
	items []T
	start int // offset of the first item in the shared text
}

// Node is a node of the tree. The edge leading into a node is labeled by
// text[start:*end].
type Node struct {
	start    int
	end      *int
	children map[int]*Node
	link     *Node

	// depth is the length of the path from the root to the end of the
	// node's edge. Set for internal nodes only.
	depth int

	// Leaves only.
	leaf   bool
	seq    int
	offset int
}

// New creates an empty tree.
func New[T Keyed]() *Tree[T] {
	zero := 0
	root := &Node{start: -1, end: &zero, children: make(map[int]*Node)}
	return &Tree[T]{
		root:    root,
		symbols: make(map[string]int),
	}
}

// Root returns the root node.
func (t *Tree[T]) Root() *Node { return t.root }

// Len returns the number of sequences added.
func (t *Tree[T]) Len() int { return len(t.seqs) }

// Sequence returns the items of sequence id.
func (t *Tree[T]) Sequence(id int) []T {
	if id < 0 || id >= len(t.seqs) {
		return nil
	}
	return t.seqs[id].items
}

// AddSequence appends items as a new sequence and returns its id.
// The tree keeps a reference to items; callers must not modify it afterwards.
func (t *Tree[T]) AddSequence(items []T) (int, error) {
	if len(items) < 2 {
		return 0, ErrSequenceTooShort
	}

	id := len(t.seqs)
	t.seqs = append(t.seqs, sequence[T]{items: items, start: len(t.text)})

	t.activeNode = t.root
	t.activeEdge = -1
	t.activeLength = 0
	t.remainder = 0
	end := len(t.text)
	t.leafEnd = &end

	for _, it := range items {
		t.extend(t.intern(it.Key()), id)
	}
	t.extend(-(id + 1), id)
	return id, nil
}

func (t *Tree[T]) intern(key string) int {
	if s, ok := t.symbols[key]; ok {
		return s
	}
	s := len(t.symbols)
	t.symbols[key] = s
	return s
}

func (t *Tree[T]) edgeLen(n *Node) int {
	return *n.end - n.start
}

// extend runs one Ukkonen phase for symbol sym belonging to sequence seq.
func (t *Tree[T]) extend(sym, seq int) {
	pos := len(t.text)
	t.text = append(t.text, sym)
	*t.leafEnd = pos + 1
	t.remainder++

	var lastInternal *Node
	for t.remainder > 0 {
		if t.activeLength == 0 {
			t.activeEdge = pos
		}
		first := t.text[t.activeEdge]
		next, ok := t.activeNode.children[first]
		if !ok {
			t.activeNode.children[first] = t.newLeaf(pos, seq)
			if lastInternal != nil {
				lastInternal.link = t.activeNode
				lastInternal = nil
			}
		} else {
			if el := t.edgeLen(next); t.activeLength >= el {
				t.activeEdge += el
				t.activeLength -= el
				t.activeNode = next
				continue
			}
			if t.text[next.start+t.activeLength] == sym {
				if lastInternal != nil && t.activeNode != t.root {
					lastInternal.link = t.activeNode
				}
				t.activeLength++
				break
			}

			splitEnd := next.start + t.activeLength
			split := &Node{
				start:    next.start,
				end:      &splitEnd,
				children: make(map[int]*Node, 2),
				link:     t.root,
				depth:    t.activeNode.depth + t.activeLength,
			}
			t.activeNode.children[first] = split
			split.children[sym] = t.newLeaf(pos, seq)
			next.start += t.activeLength
			split.children[t.text[next.start]] = next

			if lastInternal != nil {
				lastInternal.link = split
			}
			lastInternal = split
		}

		t.remainder--
		if t.activeNode == t.root && t.activeLength > 0 {
			t.activeLength--
			t.activeEdge = pos - t.remainder + 1
		} else if t.activeNode != t.root {
			t.activeNode = t.activeNode.link
			if t.activeNode == nil {
				t.activeNode = t.root
			}
		}
	}
}

func (t *Tree[T]) newLeaf(pos, seq int) *Node {
	return &Node{
		start:  pos,
		end:    t.leafEnd,
		leaf:   true,
		seq:    seq,
		offset: pos - t.remainder + 1 - t.seqs[seq].start,
	}
}

// IsLeaf reports whether n is a leaf.
func (n *Node) IsLeaf() bool { return n.leaf }

// Sequence returns the sequence id of a leaf.
func (n *Node) Sequence() int { return n.seq }

// Offset returns the position within its sequence at which a leaf's suffix starts.
func (n *Node) Offset() int { return n.offset }

// Depth returns the number of items on the path from the root to n, for an
// internal node.
func (n *Node) Depth() int { return n.depth }

// EdgeLen returns the length of the edge leading into n.
func (n *Node) EdgeLen() int { return *n.end - n.start }

// TerminalEdge reports whether n is a leaf whose edge holds nothing but the
// terminator of its sequence: the path to its parent already spells the
// whole suffix.
func (n *Node) TerminalEdge() bool { return n.leaf && n.EdgeLen() == 1 }

// Children returns the children of n ordered by their first edge symbol,
// terminators first.
func (n *Node) Children() []*Node {
	keys := make([]int, 0, len(n.children))
	for k := range n.children {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]*Node, len(keys))
	for i, k := range keys {
		out[i] = n.children[k]
	}
	return out
}

// Leaves yields every leaf below n.
func (n *Node) Leaves() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		stack := []*Node{n}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if cur.leaf {
				if !yield(cur) {
					return
				}
				continue
			}
			children := cur.Children()
			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, children[i])
			}
		}
	}
}

// RepeatedNodes lazily yields every internal node except the root, in
// depth-first order. The path to such a node occurs in at least two places:
// in two sequences, or twice in one.
func (t *Tree[T]) RepeatedNodes() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		stack := t.root.Children()
		slices.Reverse(stack)
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if cur.leaf {
				continue
			}
			if !yield(cur) {
				return
			}
			children := cur.Children()
			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, children[i])
			}
		}
	}
}

// Occurrence is one place where a node's path occurs.
type Occurrence struct {
	Sequence int
	Offset   int
}

// Occurrences returns where the path to internal node n occurs, ordered by
// sequence then offset.
func (n *Node) Occurrences() []Occurrence {
	var out []Occurrence
	for l := range n.Leaves() {
		out = append(out, Occurrence{Sequence: l.seq, Offset: l.offset})
	}
	slices.SortFunc(out, func(a, b Occurrence) int {
		if a.Sequence != b.Sequence {
			return a.Sequence - b.Sequence
		}
		return a.Offset - b.Offset
	})
	return out
}

// Contains reports whether items occur contiguously in some sequence.
func (t *Tree[T]) Contains(items []T) bool {
	node := t.root
	i := 0
	for i < len(items) {
		sym, ok := t.symbols[items[i].Key()]
		if !ok {
			return false
		}
		child, ok := node.children[sym]
		if !ok {
			return false
		}
		for j := child.start; j < *child.end && i < len(items); j++ {
			s, ok := t.symbols[items[i].Key()]
			if !ok || t.text[j] != s {
				return false
			}
			i++
		}
		node = child
	}
	return true
}
