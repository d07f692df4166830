package policy

import (
	"fmt"

	"github.com/daviddao/justact/pkg/fact"
)

// Says is the literal in the middle of every says-atom.
const Says = "says"

// SaysAtom wraps a as Node[Lit(author), Lit("says"), a]. The author is always
// embedded as a literal leaf.
func SaysAtom(author string, a fact.Atom) fact.Atom {
	return fact.N(fact.L(author), fact.L(Says), a)
}

// SplitSays is the inverse of SaysAtom. ok is false when a does not have the
// says shape. The author leaf may be a variable when the atom comes from a
// rule body, e.g. "?X says p".
func SplitSays(a fact.Atom) (author fact.Leaf, inner fact.Atom, ok bool) {
	if a.IsLeaf() || a.Len() != 3 {
		return fact.Leaf{}, fact.Atom{}, false
	}
	author, isLeaf := a.Child(0).Leaf()
	if !isLeaf {
		return fact.Leaf{}, fact.Atom{}, false
	}
	if mid, isLeaf := a.Child(1).Leaf(); !isLeaf || mid != fact.Lit(Says) {
		return fact.Leaf{}, fact.Atom{}, false
	}
	return author, a.Child(2), true
}

// SaysRule attributes r to author: the head is wrapped with SaysAtom and the
// body is kept. Wrapping neither adds nor removes head variables, so the
// result is safe whenever r is and the check is not repeated.
func SaysRule(author string, r Rule) Rule {
	head := SaysAtom(author, r.head)
	assertSaysShape(author, head, r.head)
	return newRule(head, r.body)
}

// AddSaysHead returns the bare rule together with its authored form.
func AddSaysHead(author string, r Rule) [2]Rule {
	return [2]Rule{r, SaysRule(author, r)}
}

// assertSaysShape panics if the wrapper is malformed. A failure here is a
// defect in this package, never a user error.
func assertSaysShape(author string, wrapped, inner fact.Atom) {
	a, got, ok := SplitSays(wrapped)
	if !ok || a != fact.Lit(author) || !got.Equal(inner) {
		panic(fmt.Sprintf("policy: malformed says atom %s", fact.String(wrapped)))
	}
}

// Format renders an atom like fact.String, but prints says-atoms infix:
// "Alice says reads(Alice, ?D)".
func Format(a fact.Atom) string {
	if author, inner, ok := SplitSays(a); ok {
		return author.String() + " " + Says + " " + Format(inner)
	}
	return fact.String(a)
}
