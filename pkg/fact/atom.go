package fact

import (
	"sort"
	"strings"
)

// Atom is the rose tree instantiated over Leaf. An atom may contain
// variables; a ground atom (a fact) contains none.
type Atom = Tree[Leaf]

// V returns a variable leaf atom.
func V(name string) Atom { return NewLeaf(Var(name)) }

// L returns a literal leaf atom.
func L(name string) Atom { return NewLeaf(Lit(name)) }

// N returns a node atom.
func N(children ...Atom) Atom { return NewNode(children...) }

// Pred builds the conventional predicate shape Node[Lit(name), args...].
func Pred(name string, args ...Atom) Atom {
	children := make([]Atom, 0, len(args)+1)
	children = append(children, L(name))
	children = append(children, args...)
	return NewNode(children...)
}

// PredicateName returns the name of a predicate-shaped atom, i.e. a node
// whose first child is a literal.
func PredicateName(a Atom) (string, bool) {
	if a.IsLeaf() || a.Len() == 0 {
		return "", false
	}
	l, ok := a.Child(0).Leaf()
	if !ok || l.IsVar() {
		return "", false
	}
	return l.Name, true
}

// VarSet is a set of variable names.
type VarSet map[string]struct{}

// Has reports whether name is in the set.
func (s VarSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the names in lexical order.
func (s VarSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Minus returns the names in s that are not in other.
func (s VarSet) Minus(other VarSet) VarSet {
	out := VarSet{}
	for n := range s {
		if !other.Has(n) {
			out[n] = struct{}{}
		}
	}
	return out
}

// Vars collects the variables reachable from any of the given atoms.
func Vars(atoms ...Atom) VarSet {
	out := VarSet{}
	for _, a := range atoms {
		a.Walk(func(l Leaf) {
			if l.IsVar() {
				out[l.Name] = struct{}{}
			}
		})
	}
	return out
}

// Ground reports whether a contains no variables.
func Ground(a Atom) bool {
	ground := true
	a.Walk(func(l Leaf) {
		if l.IsVar() {
			ground = false
		}
	})
	return ground
}

// Subst maps variable names to replacement leaves.
type Subst map[string]Leaf

// Substitute replaces every variable bound in s by its leaf. Variables not
// bound in s are kept as they are. The input atom is not modified.
func Substitute(a Atom, s Subst) Atom {
	return Map(a, func(l Leaf) Atom {
		if l.IsVar() {
			if r, ok := s[l.Name]; ok {
				return NewLeaf(r)
			}
		}
		return NewLeaf(l)
	})
}

// String renders an atom. Nodes of predicate shape print as name(args...),
// any other node prints as [child child ...].
func String(a Atom) string {
	var b strings.Builder
	writeAtom(&b, a)
	return b.String()
}

func writeAtom(b *strings.Builder, a Atom) {
	if l, ok := a.Leaf(); ok {
		b.WriteString(l.String())
		return
	}
	if name, ok := PredicateName(a); ok && a.Len() > 1 {
		b.WriteString(Lit(name).String())
		b.WriteByte('(')
		for i := 1; i < a.Len(); i++ {
			if i > 1 {
				b.WriteString(", ")
			}
			writeAtom(b, a.Child(i))
		}
		b.WriteByte(')')
		return
	}
	b.WriteByte('[')
	for i := 0; i < a.Len(); i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		writeAtom(b, a.Child(i))
	}
	b.WriteByte(']')
}
