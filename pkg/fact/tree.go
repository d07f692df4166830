// Package fact implements the rose-tree representation shared by facts and
// atoms.
//
// A tree is either a leaf carrying a value of the leaf type L, or a node
// holding an ordered sequence of child trees. Trees are immutable values:
// constructors copy their inputs and no method mutates the receiver, so
// subtrees can be shared freely between trees.
//
// The ontology uses a single instantiation, Atom = Tree[Leaf], where a leaf
// is either a variable or a literal. A fact is simply an atom without
// variables (see Ground).
package fact

import (
	"fmt"
	"strings"
)

// Tree is an immutable rose tree over leaf values of type L.
// The zero value is an empty node.
type Tree[L comparable] struct {
	leaf     L
	isLeaf   bool
	children []Tree[L]
}

// NewLeaf returns a tree consisting of a single leaf.
func NewLeaf[L comparable](l L) Tree[L] {
	return Tree[L]{leaf: l, isLeaf: true}
}

// NewNode returns a node with the given children, in order.
func NewNode[L comparable](children ...Tree[L]) Tree[L] {
	if len(children) == 0 {
		return Tree[L]{}
	}
	cp := make([]Tree[L], len(children))
	copy(cp, children)
	return Tree[L]{children: cp}
}

// IsLeaf reports whether t is a leaf.
func (t Tree[L]) IsLeaf() bool { return t.isLeaf }

// Leaf returns the leaf value and true if t is a leaf.
func (t Tree[L]) Leaf() (L, bool) {
	return t.leaf, t.isLeaf
}

// Len returns the number of children. Leaves have none.
func (t Tree[L]) Len() int { return len(t.children) }

// Child returns the i-th child. It panics if i is out of range.
func (t Tree[L]) Child(i int) Tree[L] { return t.children[i] }

// Children returns a copy of the child sequence.
func (t Tree[L]) Children() []Tree[L] {
	if len(t.children) == 0 {
		return nil
	}
	cp := make([]Tree[L], len(t.children))
	copy(cp, t.children)
	return cp
}

// Equal reports deep structural equality.
func (t Tree[L]) Equal(other Tree[L]) bool {
	if t.isLeaf != other.isLeaf {
		return false
	}
	if t.isLeaf {
		return t.leaf == other.leaf
	}
	if len(t.children) != len(other.children) {
		return false
	}
	for i := range t.children {
		if !t.children[i].Equal(other.children[i]) {
			return false
		}
	}
	return true
}

// Walk calls fn for every leaf in depth-first, left-to-right order.
func (t Tree[L]) Walk(fn func(L)) {
	if t.isLeaf {
		fn(t.leaf)
		return
	}
	for _, c := range t.children {
		c.Walk(fn)
	}
}

// Map rebuilds t, replacing every leaf by the tree fn returns for it.
// The node structure above the leaves is preserved.
func Map[L, M comparable](t Tree[L], fn func(L) Tree[M]) Tree[M] {
	if t.isLeaf {
		return fn(t.leaf)
	}
	if len(t.children) == 0 {
		return Tree[M]{}
	}
	out := make([]Tree[M], len(t.children))
	for i, c := range t.children {
		out[i] = Map(c, fn)
	}
	return Tree[M]{children: out}
}

// Key returns a canonical encoding of t. Two trees have the same key iff
// they are Equal, which makes Key usable as a structural hash in maps.
func (t Tree[L]) Key() string {
	var b strings.Builder
	t.writeKey(&b)
	return b.String()
}

func (t Tree[L]) writeKey(b *strings.Builder) {
	if t.isLeaf {
		// %#v of a comparable value is unambiguous for the leaf types we use
		// (structs of strings and ints); it is quoted where needed.
		fmt.Fprintf(b, "%#v", t.leaf)
		return
	}
	b.WriteByte('[')
	for i, c := range t.children {
		if i > 0 {
			b.WriteByte(',')
		}
		c.writeKey(b)
	}
	b.WriteByte(']')
}
