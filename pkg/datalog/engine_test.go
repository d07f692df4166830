package datalog

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/daviddao/justact/pkg/audit"
	"github.com/daviddao/justact/pkg/fact"
	"github.com/daviddao/justact/pkg/message"
	"github.com/daviddao/justact/pkg/policy"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	return New(DefaultConfig(), zaptest.NewLogger(t))
}

func strs(atoms []fact.Atom) []string {
	out := make([]string, len(atoms))
	for i, a := range atoms {
		out[i] = policy.Format(a)
	}
	return out
}

func TestCompile_Golden(t *testing.T) {
	p := policy.Policy{
		policy.MustRule(fact.Pred("actor", fact.L("Alice"))),
		policy.SaysRule("Alice", policy.MustRule(
			fact.Pred("reads", fact.L("Alice"), fact.L("D")),
			policy.Authorises(fact.L("Bob"), fact.L("Alice"), fact.L("T")),
		)),
		policy.MustRule(
			fact.Pred("reads", fact.V("A"), fact.L("D")),
			policy.Authorises(fact.L("Bob"), fact.V("A"), fact.L("T")),
		),
	}
	src, err := Compile(p)
	require.NoError(t, err)

	want := `Decl actor_1(A0).
Decl authorises_3(A0, A1, A2).
Decl reads_2(A0, A1).
Decl says_reads_2(A0, A1, A2).
actor_1("Alice").
says_reads_2("Alice", "Alice", "D") :- authorises_3("Bob", "Alice", "T").
reads_2(V0, "D") :- authorises_3("Bob", V0, "T").
`
	if diff := cmp.Diff(want, src); diff != "" {
		t.Errorf("Compile() mismatch (-want +got):\n%s", diff)
	}
}

func TestCompile_NullaryAndInterned(t *testing.T) {
	p := policy.Policy{
		policy.MustRule(fact.Pred("error"), fact.Pred("banned", fact.L(`Eve "the" spy`))),
	}
	src, err := Compile(p)
	require.NoError(t, err)
	assert.Contains(t, src, `error_0(/unit) :- banned_1("#0").`)
}

func TestCompile_UnsupportedShapes(t *testing.T) {
	for name, a := range map[string]fact.Atom{
		"variable proposition": fact.V("X"),
		"variable head":        fact.N(fact.V("X"), fact.L("a")),
	} {
		t.Run(name, func(t *testing.T) {
			r := policy.MustRule(fact.Pred("h"), a)
			_, err := Compile(policy.Policy{r})
			assert.ErrorIs(t, err, ErrUnsupportedShape)
		})
	}
}

func TestCompile_RepeatedRulesOnce(t *testing.T) {
	r := policy.MustRule(fact.Pred("p", fact.L("x")))
	src, err := Compile(policy.Policy{r, r, r})
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(src, `p_1("x").`))
}

func TestCompile_NestedArguments(t *testing.T) {
	data := func(d fact.Atom) fact.Atom { return fact.Pred("data", d, fact.L("public")) }
	p := policy.Policy{
		policy.MustRule(fact.Pred("owns", fact.L("Alice"), data(fact.L("d1")))),
		policy.MustRule(
			fact.Pred("reads", fact.V("A"), data(fact.V("D"))),
			fact.Pred("owns", fact.V("A"), data(fact.V("D"))),
		),
	}
	src, err := Compile(p)
	require.NoError(t, err)

	want := `Decl owns_2(A0, A1, A2, A3).
Decl reads_2(A0, A1, A2, A3).
owns_2("Alice", "data", "d1", "public").
reads_2(V0, "data", V1, "public") :- owns_2(V0, "data", V1, "public").
`
	if diff := cmp.Diff(want, src); diff != "" {
		t.Errorf("Compile() mismatch (-want +got):\n%s", diff)
	}
}

func TestCompile_VariableAgainstNestedTerm(t *testing.T) {
	for name, p := range map[string]policy.Policy{
		"top level": {
			policy.MustRule(fact.Pred("q", fact.Pred("f", fact.L("a")))),
			policy.MustRule(fact.Pred("p", fact.V("X")), fact.Pred("q", fact.V("X"))),
		},
		"inside a node": {
			policy.MustRule(fact.Pred("q", fact.Pred("f", fact.V("X"))), fact.Pred("r", fact.V("X"))),
			policy.MustRule(fact.Pred("q", fact.Pred("f", fact.Pred("g", fact.L("a"))))),
		},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Compile(p)
			assert.ErrorIs(t, err, ErrUnsupportedShape)
		})
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "reads", sanitize("reads"))
	assert.Equal(t, "ismember", sanitize("isMember"))
	assert.Equal(t, "p_9lives", sanitize("9lives"))
	assert.Equal(t, "a_b", sanitize("a-b"))
	assert.Equal(t, "p_", sanitize(""))
}

func TestCompile_SymbolCollision(t *testing.T) {
	p := policy.Policy{
		policy.MustRule(fact.Pred("a-b", fact.L("x"))),
		policy.MustRule(fact.Pred("a_b", fact.L("y"))),
	}
	prog, err := compile(p)
	require.NoError(t, err)
	assert.Len(t, prog.shapes, 2)
	assert.Contains(t, prog.src, `a_b_1("x").`)
	assert.Contains(t, prog.src, `a_b_1_2("y").`)
}

func TestEvaluate_Valid(t *testing.T) {
	msgs := []message.Message{
		message.New("Bob", policy.MustRule(policy.Authorises(fact.L("Bob"), fact.L("Alice"), fact.L("T")))),
		message.New("Alice", policy.MustRule(
			policy.Reads(fact.L("Alice"), fact.L("D"), fact.L("T")),
			policy.Authorises(fact.L("Bob"), fact.L("Alice"), fact.L("T")),
		)),
	}
	v, err := newEngine(t).Evaluate(context.Background(), message.Extract(msgs...))
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Empty(t, v.Reasons)
}

func TestEvaluate_ErrorFactsInvalidate(t *testing.T) {
	p := policy.Policy{
		policy.MustRule(fact.Pred("banned", fact.L("Alice"))),
		policy.MustRule(policy.Reads(fact.L("Alice"), fact.L("D"), fact.L("T"))),
		policy.MustRule(
			fact.Pred("error", fact.V("A")),
			policy.Reads(fact.V("A"), fact.V("D"), fact.V("T")),
			fact.Pred("banned", fact.V("A")),
		),
		policy.MustRule(fact.Pred("error"), fact.Pred("banned", fact.L("Alice"))),
	}
	v, err := newEngine(t).Evaluate(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.ElementsMatch(t, []string{"[error]", "error(Alice)"}, strs(v.Reasons))
}

func TestEvaluate_SaysErrorDoesNotInvalidate(t *testing.T) {
	p := message.Extract1(message.New("Mallory", policy.MustRule(fact.Pred("marker"))))
	p = append(p, policy.SaysRule("Mallory", policy.MustRule(fact.Pred("error", fact.L("x")))))
	v, err := newEngine(t).Evaluate(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, v.Valid, "only unattributed error facts count")
}

func TestDerive_ReadsBackSaysChains(t *testing.T) {
	inner := policy.MustRule(fact.Pred("p", fact.L("x")))
	p := policy.Policy{
		inner,
		policy.SaysRule("Alice", inner),
		policy.SaysRule("Bob", policy.SaysRule("Alice", inner)),
		policy.MustRule(fact.L("sunny")),
	}
	got, err := newEngine(t).Derive(context.Background(), p)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"p(x)",
		"Alice says p(x)",
		"Bob says Alice says p(x)",
		"sunny",
	}, strs(got))
}

func TestDerive_LiteralsSurviveEncoding(t *testing.T) {
	odd := "Eve \"the\"\n spy #1"
	p := policy.Policy{
		policy.MustRule(fact.Pred("agent", fact.L(odd))),
		policy.MustRule(fact.Pred("agent", fact.L("#0"))),
	}
	got, err := newEngine(t).Derive(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, got, 2)
	var names []string
	for _, a := range got {
		l, ok := a.Child(1).Leaf()
		require.True(t, ok)
		names = append(names, l.Name)
	}
	assert.ElementsMatch(t, []string{odd, "#0"}, names)
}

func TestHolds_ExtractedPolicy(t *testing.T) {
	alice := message.New("Alice", policy.MustRule(
		fact.Pred("reads", fact.L("Alice"), fact.L("D")),
		policy.Authorises(fact.L("Bob"), fact.L("Alice"), fact.L("T")),
	))
	bob := message.New("Bob", policy.MustRule(policy.Authorises(fact.L("Bob"), fact.L("Alice"), fact.L("T"))))
	p := message.Extract(alice, bob)
	e := newEngine(t)

	for _, tc := range []struct {
		atom fact.Atom
		want bool
	}{
		{fact.Pred("reads", fact.L("Alice"), fact.L("D")), true},
		{policy.SaysAtom("Alice", fact.Pred("reads", fact.L("Alice"), fact.L("D"))), true},
		{policy.SaysAtom("Bob", fact.Pred("reads", fact.L("Alice"), fact.L("D"))), false},
		{fact.Pred("reads", fact.L("Carol"), fact.L("D")), false},
		{fact.Pred("writes", fact.L("Alice"), fact.L("D")), false},
	} {
		got, err := e.Holds(context.Background(), p, tc.atom)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, policy.Format(tc.atom))
	}

	ok, err := e.Authorised(context.Background(), p, fact.L("Bob"), fact.L("Alice"), fact.L("T"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDerive_NestedArguments(t *testing.T) {
	data := func(d, tag string) fact.Atom { return fact.Pred("data", fact.L(d), fact.L(tag)) }
	p := policy.Policy{
		policy.MustRule(fact.Pred("owns", fact.L("Alice"), data("d1", "public"))),
		policy.MustRule(fact.Pred("owns", fact.L("Bob"), data("d2", "secret"))),
		policy.SaysRule("Bob", policy.MustRule(
			fact.Pred("reads", fact.V("A"), fact.Pred("data", fact.V("D"), fact.L("public"))),
			fact.Pred("owns", fact.V("A"), fact.Pred("data", fact.V("D"), fact.L("public"))),
		)),
	}
	e := newEngine(t)
	got, err := e.Derive(context.Background(), p)
	require.NoError(t, err)

	want := policy.SaysAtom("Bob", fact.Pred("reads", fact.L("Alice"), data("d1", "public")))
	found := false
	for _, a := range got {
		if a.Equal(want) {
			found = true
		}
	}
	assert.True(t, found, "derived: %v", strs(got))
	assert.Len(t, got, 3)

	ok, err := e.Holds(context.Background(), p, want)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = e.Holds(context.Background(), p,
		policy.SaysAtom("Bob", fact.Pred("reads", fact.L("Bob"), data("d2", "secret"))))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHolds_RejectsVariables(t *testing.T) {
	_, err := newEngine(t).Holds(context.Background(), nil, fact.Pred("p", fact.V("X")))
	assert.Error(t, err)
}

func TestEvaluate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newEngine(t).Evaluate(ctx, policy.Policy{policy.MustRule(fact.Pred("p", fact.L("x")))})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAudit_WithMangle(t *testing.T) {
	agreement := message.New("consortium", policy.MustRule(
		fact.Pred("error", fact.V("A")),
		fact.Pred("actor", fact.V("A")),
		fact.Pred("banned", fact.V("A")),
	))
	ban := message.New("consortium", policy.MustRule(fact.Pred("banned", fact.L("Mallory"))))
	stated := audit.Messages{ban}
	agreed := []message.Message{agreement}
	e := newEngine(t)

	ok := message.Action{Actor: "Alice", Basis: agreement, Extra: []message.Message{ban}}
	require.NoError(t, audit.Audit(context.Background(), ok, stated, agreed, e))

	bad := message.Action{Actor: "Mallory", Basis: agreement, Extra: []message.Message{ban}}
	err := audit.Audit(context.Background(), bad, stated, agreed, e)
	var inv *audit.InvalidError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, []string{"error(Mallory)"}, strs(inv.Reasons))
}
