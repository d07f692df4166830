package datalog

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/daviddao/justact/pkg/fact"
	"github.com/daviddao/justact/pkg/policy"
)

// ErrUnsupportedShape is returned for atoms that have no Datalog reading: a
// lone variable, a node not headed by a literal name, or a relation that has
// a variable in a position where another of its atoms has a nested term.
var ErrUnsupportedShape = errors.New("unsupported atom shape")

// unitName fills the argument slot of propositions without arguments.
const unitName = "/unit"

// shape identifies one relation: a predicate name and arity under depth
// says wrappers. bare marks a proposition written as a lone literal leaf.
//
// Nested arguments are flattened into their leaves in order; skel records
// the layout ("_" for a leaf, parentheses around a node) and width the
// number of leaves. Variables bind leaves only, so two atoms unify exactly
// when their layouts agree and their leaves unify position by position.
type shape struct {
	depth int
	name  string
	arity int
	bare  bool
	skel  string
	width int
}

// relation is a shape without its argument layout.
type relation struct {
	depth int
	name  string
	arity int
}

type slotKind int

const (
	slotVar slotKind = iota + 1
	slotNode
)

// term is one compiled argument: either a variable or a literal.
type term struct {
	isVar bool
	text  string
}

// program is a compiled policy together with the tables needed to read
// Mangle facts back as atoms.
type program struct {
	src     string
	symbols map[shape]string
	shapes  map[string]shape
	// literals that could not be written verbatim are interned as "#<n>"
	interned map[string]string
	literals map[string]string
	// slots records, per relation and argument path, whether a variable or
	// a nested term was seen there.
	slots map[relation]map[string]slotKind
}

func newProgram() *program {
	return &program{
		symbols:  make(map[shape]string),
		shapes:   make(map[string]shape),
		interned: make(map[string]string),
		literals: make(map[string]string),
		slots:    make(map[relation]map[string]slotKind),
	}
}

// Compile renders p as Mangle source. Repeated rules are emitted once.
// Every relation gets a declaration, so predicates used only in bodies are
// still known to the analyzer.
func Compile(p policy.Policy) (string, error) {
	prog, err := compile(p)
	if err != nil {
		return "", err
	}
	return prog.src, nil
}

func compile(p policy.Policy) (*program, error) {
	prog := newProgram()
	var clauses strings.Builder
	for _, r := range p.Dedup() {
		line, err := prog.clause(r)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", r, err)
		}
		clauses.WriteString(line)
		clauses.WriteByte('\n')
	}

	var b strings.Builder
	for _, sym := range prog.sortedSymbols() {
		s := prog.shapes[sym]
		n := mangleArity(s)
		params := make([]string, n)
		for i := range params {
			params[i] = fmt.Sprintf("A%d", i)
		}
		fmt.Fprintf(&b, "Decl %s(%s).\n", sym, strings.Join(params, ", "))
	}
	b.WriteString(clauses.String())
	prog.src = b.String()
	return prog, nil
}

func (p *program) clause(r policy.Rule) (string, error) {
	vars := make(map[string]string)
	head, err := p.atom(r.Head(), vars)
	if err != nil {
		return "", err
	}
	body := r.Body()
	if len(body) == 0 {
		return head + ".", nil
	}
	parts := make([]string, len(body))
	for i, a := range body {
		if parts[i], err = p.atom(a, vars); err != nil {
			return "", err
		}
	}
	return head + " :- " + strings.Join(parts, ", ") + ".", nil
}

// atom renders a as a Mangle atom, naming variables V0, V1, ... in order of
// first appearance within the clause.
func (p *program) atom(a fact.Atom, vars map[string]string) (string, error) {
	s, args, err := decompose(a)
	if err != nil {
		return "", err
	}
	if err := p.checkSlots(s, a); err != nil {
		return "", err
	}
	sym := p.symbol(s)
	if len(args) == 0 {
		return sym + "(" + unitName + ")", nil
	}
	parts := make([]string, len(args))
	for i, t := range args {
		if t.isVar {
			v, ok := vars[t.text]
			if !ok {
				v = fmt.Sprintf("V%d", len(vars))
				vars[t.text] = v
			}
			parts[i] = v
			continue
		}
		parts[i] = `"` + p.encode(t.text) + `"`
	}
	return sym + "(" + strings.Join(parts, ", ") + ")", nil
}

// decompose splits a into its relation shape and flat argument list. Says
// authors come first, outermost author leading.
func decompose(a fact.Atom) (shape, []term, error) {
	var s shape
	var args []term
	for {
		author, inner, ok := policy.SplitSays(a)
		if !ok {
			break
		}
		s.depth++
		args = append(args, leafTerm(author))
		a = inner
	}

	if l, ok := a.Leaf(); ok {
		if l.IsVar() {
			return shape{}, nil, fmt.Errorf("%w: variable %s used as a proposition", ErrUnsupportedShape, l)
		}
		s.name, s.bare = l.Name, true
		return s, args, nil
	}

	name, ok := fact.PredicateName(a)
	if !ok {
		return shape{}, nil, fmt.Errorf("%w: %s", ErrUnsupportedShape, fact.String(a))
	}
	s.name = name
	var skel strings.Builder
	nested := false
	for _, c := range a.Children()[1:] {
		if !c.IsLeaf() {
			nested = true
		}
		args = flatten(c, args, &skel)
		s.arity++
	}
	if nested {
		s.skel = skel.String()
	}
	s.width = len(args) - s.depth
	return s, args, nil
}

func flatten(a fact.Atom, args []term, skel *strings.Builder) []term {
	if l, ok := a.Leaf(); ok {
		skel.WriteByte('_')
		return append(args, leafTerm(l))
	}
	skel.WriteByte('(')
	for _, c := range a.Children() {
		args = flatten(c, args, skel)
	}
	skel.WriteByte(')')
	return args
}

// unflatten rebuilds the argument trees laid out by skel from leaves.
func unflatten(skel string, leaves []string) []fact.Atom {
	var pos, next int
	var items func() []fact.Atom
	items = func() []fact.Atom {
		var out []fact.Atom
		for pos < len(skel) {
			switch skel[pos] {
			case '_':
				out = append(out, fact.L(leaves[next]))
				next++
				pos++
			case '(':
				pos++
				out = append(out, fact.N(items()...))
			default:
				pos++
				return out
			}
		}
		return out
	}
	return items()
}

// checkSlots rejects a relation used with a variable where another of its
// atoms has a nested term: the variable would have to bind a whole tree.
func (p *program) checkSlots(s shape, a fact.Atom) error {
	if s.bare {
		return nil
	}
	for {
		_, inner, ok := policy.SplitSays(a)
		if !ok {
			break
		}
		a = inner
	}
	rel := relation{depth: s.depth, name: s.name, arity: s.arity}
	slots, ok := p.slots[rel]
	if !ok {
		slots = make(map[string]slotKind)
		p.slots[rel] = slots
	}

	var walk func(path string, t fact.Atom) error
	walk = func(path string, t fact.Atom) error {
		kind := slotNode
		if l, ok := t.Leaf(); ok {
			if !l.IsVar() {
				return nil
			}
			kind = slotVar
		}
		if prev, ok := slots[path]; ok && prev != kind {
			return fmt.Errorf("%w: %s has both a variable and a nested term at argument %s",
				ErrUnsupportedShape, s.name, path)
		}
		slots[path] = kind
		for i, c := range t.Children() {
			if err := walk(path+"."+strconv.Itoa(i), c); err != nil {
				return err
			}
		}
		return nil
	}
	for i, c := range a.Children()[1:] {
		if err := walk(strconv.Itoa(i+1), c); err != nil {
			return err
		}
	}
	return nil
}

func leafTerm(l fact.Leaf) term {
	return term{isVar: l.IsVar(), text: l.Name}
}

// symbol returns the Mangle predicate for s, allocating one on first use.
func (p *program) symbol(s shape) string {
	if sym, ok := p.symbols[s]; ok {
		return sym
	}
	base := strings.Repeat("says_", s.depth) + sanitize(s.name)
	if s.bare {
		base += "_lit"
	} else {
		base += fmt.Sprintf("_%d", s.arity)
	}
	sym := base
	for i := 2; ; i++ {
		if _, taken := p.shapes[sym]; !taken {
			break
		}
		sym = fmt.Sprintf("%s_%d", base, i)
	}
	p.symbols[s] = sym
	p.shapes[sym] = s
	return sym
}

func (p *program) sortedSymbols() []string {
	syms := make([]string, 0, len(p.shapes))
	for sym := range p.shapes {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	return syms
}

// mangleArity is the number of Mangle arguments of relation s.
func mangleArity(s shape) int {
	if n := s.depth + s.width; n > 0 {
		return n
	}
	return 1
}

// encode returns the string constant content used for literal name.
func (p *program) encode(name string) string {
	if verbatim(name) {
		return name
	}
	if tok, ok := p.interned[name]; ok {
		return tok
	}
	tok := fmt.Sprintf("#%d", len(p.interned))
	p.interned[name] = tok
	p.literals[tok] = name
	return tok
}

// lookup is encode without allocation: ok is false for literals the
// program never mentions.
func (p *program) lookup(name string) (string, bool) {
	if verbatim(name) {
		return name, true
	}
	tok, ok := p.interned[name]
	return tok, ok
}

// decode maps string constant content back to the literal name.
func (p *program) decode(s string) string {
	if lit, ok := p.literals[s]; ok {
		return lit
	}
	return s
}

func verbatim(name string) bool {
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune(" _-.:/@+", r):
		default:
			return false
		}
	}
	return true
}

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	s := b.String()
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		s = "p_" + s
	}
	return s
}
