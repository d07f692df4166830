package fact

import (
	"fmt"
	"strconv"
)

// Kind distinguishes variables from literals.
type Kind uint8

const (
	KindLit Kind = iota
	KindVar
)

func (k Kind) String() string {
	switch k {
	case KindLit:
		return "lit"
	case KindVar:
		return "var"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Leaf is a named variable or a named literal constant.
type Leaf struct {
	Kind Kind
	Name string
}

// Var returns a variable leaf.
func Var(name string) Leaf { return Leaf{Kind: KindVar, Name: name} }

// Lit returns a literal leaf.
func Lit(name string) Leaf { return Leaf{Kind: KindLit, Name: name} }

// IsVar reports whether l is a variable.
func (l Leaf) IsVar() bool { return l.Kind == KindVar }

// GoString is used by Tree.Key; it must stay injective.
func (l Leaf) GoString() string {
	if l.Kind == KindVar {
		return "?" + strconv.Quote(l.Name)
	}
	return strconv.Quote(l.Name)
}

// String renders variables as ?Name and literals by name. Literals that
// would read as a variable, or that contain separators, are quoted.
func (l Leaf) String() string {
	if l.Kind == KindVar {
		return "?" + l.Name
	}
	if needsQuote(l.Name) {
		return strconv.Quote(l.Name)
	}
	return l.Name
}

func needsQuote(s string) bool {
	if s == "" || s[0] == '?' || s[0] == '"' {
		return true
	}
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', ',', '(', ')', '[', ']':
			return true
		}
	}
	return false
}
