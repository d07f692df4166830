// Package datalog evaluates policies with the Mangle Datalog engine.
//
// A policy is compiled to Mangle source (see Compile), evaluated to its
// fixpoint, and read back as rose-tree atoms. A policy is valid when its
// fixpoint holds no error fact of any arity; the error facts that were
// derived are the reasons for rejecting it.
//
// Nested arguments such as reads(Alice, data(D, public)) are flattened into
// their leaves, so variables range over leaves only. A relation that has a
// variable where another of its atoms has a nested term is rejected with
// ErrUnsupportedShape.
package datalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
	"go.uber.org/zap"

	"github.com/daviddao/justact/pkg/fact"
	"github.com/daviddao/justact/pkg/policy"
)

// ErrorPredicate names the facts that make a policy invalid.
const ErrorPredicate = "error"

// Config holds evaluation limits.
type Config struct {
	// Timeout bounds one evaluation when the caller's context has no
	// deadline. Zero disables it.
	Timeout time.Duration `yaml:"timeout"`
	// FactLimit caps the number of derived facts. Zero means no cap.
	FactLimit int `yaml:"fact_limit"`
}

// DefaultConfig returns the limits used by the CLI.
func DefaultConfig() Config {
	return Config{
		Timeout:   10 * time.Second,
		FactLimit: 100000,
	}
}

// Engine is a policy.Evaluator backed by Mangle. It holds no state between
// calls and is safe for concurrent use.
type Engine struct {
	cfg Config
	log *zap.Logger
}

var _ policy.Evaluator = (*Engine)(nil)

// New returns an engine. A nil logger disables logging.
func New(cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, log: logger.Named("datalog")}
}

// fixpoint is an evaluated program.
type fixpoint struct {
	prog  *program
	store factstore.FactStore
}

// run compiles p and evaluates it. Mangle evaluation cannot be interrupted,
// so on cancellation run returns at once and the evaluation finishes in the
// background.
func (e *Engine) run(ctx context.Context, p policy.Policy) (*fixpoint, error) {
	prog, err := compile(p)
	if err != nil {
		return nil, err
	}

	unit, err := parse.Unit(strings.NewReader(prog.src))
	if err != nil {
		return nil, fmt.Errorf("parse compiled policy: %w", err)
	}
	info, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return nil, fmt.Errorf("analyze compiled policy: %w", err)
	}

	if e.cfg.Timeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
			defer cancel()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	store := factstore.NewSimpleInMemoryStore()
	start := time.Now()
	done := make(chan error, 1)
	go func() {
		var err error
		if e.cfg.FactLimit > 0 {
			_, err = mengine.EvalProgramWithStats(info, store, mengine.WithCreatedFactLimit(e.cfg.FactLimit))
		} else {
			_, err = mengine.EvalProgramWithStats(info, store)
		}
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("evaluate policy: %w", err)
		}
	case <-ctx.Done():
		return nil, fmt.Errorf("evaluate policy: gave up after %v: %w", time.Since(start), ctx.Err())
	}

	e.log.Debug("policy evaluated",
		zap.Int("rules", p.Len()),
		zap.Int("relations", len(prog.shapes)),
		zap.Int("facts", store.EstimateFactCount()),
		zap.Duration("took", time.Since(start)),
	)
	return &fixpoint{prog: prog, store: store}, nil
}

// Evaluate implements policy.Evaluator.
func (e *Engine) Evaluate(ctx context.Context, p policy.Policy) (policy.Verdict, error) {
	fp, err := e.run(ctx, p)
	if err != nil {
		return policy.Verdict{}, err
	}
	reasons, err := fp.facts(func(s shape) bool { return s.depth == 0 && s.name == ErrorPredicate })
	if err != nil {
		return policy.Verdict{}, err
	}
	if len(reasons) > 0 {
		e.log.Info("policy invalid", zap.Int("errors", len(reasons)))
	}
	return policy.Verdict{Valid: len(reasons) == 0, Reasons: reasons}, nil
}

// Derive returns every fact that holds in p's fixpoint, ordered by key.
func (e *Engine) Derive(ctx context.Context, p policy.Policy) ([]fact.Atom, error) {
	fp, err := e.run(ctx, p)
	if err != nil {
		return nil, err
	}
	return fp.facts(func(shape) bool { return true })
}

// Holds reports whether the ground atom a holds in p's fixpoint.
func (e *Engine) Holds(ctx context.Context, p policy.Policy, a fact.Atom) (bool, error) {
	if !fact.Ground(a) {
		return false, fmt.Errorf("holds: %s is not ground", policy.Format(a))
	}
	if _, _, err := decompose(a); err != nil {
		return false, err
	}
	fp, err := e.run(ctx, p)
	if err != nil {
		return false, err
	}
	q, ok, err := fp.prog.query(a)
	if err != nil || !ok {
		return false, err
	}
	return fp.store.Contains(q), nil
}

// Authorised reports whether authorises(checker, agent, task) holds in p.
func (e *Engine) Authorised(ctx context.Context, p policy.Policy, checker, agent, task fact.Atom) (bool, error) {
	return e.Holds(ctx, p, policy.Authorises(checker, agent, task))
}

// facts reads back the facts of every relation accepted by keep.
func (fp *fixpoint) facts(keep func(shape) bool) ([]fact.Atom, error) {
	var out []fact.Atom
	for _, sym := range fp.store.ListPredicates() {
		s, ok := fp.prog.shapes[sym.Symbol]
		if !ok || !keep(s) {
			continue
		}
		err := fp.store.GetFacts(ast.NewQuery(sym), func(a ast.Atom) error {
			got, err := fp.prog.toAtom(s, a)
			if err != nil {
				return err
			}
			out = append(out, got)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("read %s facts: %w", sym.Symbol, err)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

// toAtom rebuilds the rose tree of a Mangle fact of relation s.
func (p *program) toAtom(s shape, a ast.Atom) (fact.Atom, error) {
	var args []string
	if s.depth+s.width > 0 {
		args = make([]string, len(a.Args))
		for i, t := range a.Args {
			c, ok := t.(ast.Constant)
			if !ok || c.Type != ast.StringType {
				return fact.Atom{}, fmt.Errorf("unexpected term %v in %s", t, a.Predicate.Symbol)
			}
			args[i] = p.decode(c.Symbol)
		}
	}
	if len(args) != s.depth+s.width {
		return fact.Atom{}, fmt.Errorf("%s: got %d arguments, want %d", a.Predicate.Symbol, len(args), s.depth+s.width)
	}

	var inner fact.Atom
	if s.bare {
		inner = fact.L(s.name)
	} else if s.skel != "" {
		inner = fact.Pred(s.name, unflatten(s.skel, args[s.depth:])...)
	} else {
		rest := make([]fact.Atom, s.arity)
		for i := range rest {
			rest[i] = fact.L(args[s.depth+i])
		}
		inner = fact.Pred(s.name, rest...)
	}
	for i := s.depth - 1; i >= 0; i-- {
		inner = policy.SaysAtom(args[i], inner)
	}
	return inner, nil
}

// query builds the Mangle atom for a ground atom. ok is false when the
// program never mentions its relation or one of its literals, in which case
// it cannot hold.
func (p *program) query(a fact.Atom) (ast.Atom, bool, error) {
	s, args, err := decompose(a)
	if err != nil {
		return ast.Atom{}, false, err
	}
	sym, ok := p.symbols[s]
	if !ok {
		return ast.Atom{}, false, nil
	}
	if len(args) == 0 {
		unit, err := ast.Name(unitName)
		if err != nil {
			return ast.Atom{}, false, err
		}
		return ast.NewAtom(sym, unit), true, nil
	}
	terms := make([]ast.BaseTerm, len(args))
	for i, t := range args {
		enc, ok := p.lookup(t.text)
		if !ok {
			return ast.Atom{}, false, nil
		}
		terms[i] = ast.String(enc)
	}
	return ast.NewAtom(sym, terms...), true, nil
}
