package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviddao/justact/pkg/fact"
	"github.com/daviddao/justact/pkg/message"
	"github.com/daviddao/justact/pkg/policy"
	"github.com/daviddao/justact/pkg/sets"
)

var (
	agreement = message.New("consortium", policy.MustRule(
		fact.Pred("error"),
		fact.Pred("reads", fact.V("A"), fact.V("D"), fact.V("T")),
		fact.Pred("unauthorised", fact.V("A"), fact.V("T")),
	))
	aliceReads = message.New("Alice", policy.MustRule(
		policy.Reads(fact.L("Alice"), fact.L("D"), fact.L("T")),
	))
	bobAuthorises = message.New("Bob", policy.MustRule(
		policy.Authorises(fact.L("Bob"), fact.L("Alice"), fact.L("T")),
	))
)

func action() message.Action {
	return message.Action{Actor: "Alice", Basis: agreement, Extra: []message.Message{aliceReads, bobAuthorises}}
}

func valid() policy.Evaluator {
	return policy.EvaluatorFunc(func(context.Context, policy.Policy) (policy.Verdict, error) {
		return policy.Verdict{Valid: true}, nil
	})
}

func TestAudit_Justified(t *testing.T) {
	var seen policy.Policy
	ev := policy.EvaluatorFunc(func(_ context.Context, p policy.Policy) (policy.Verdict, error) {
		seen = p
		return policy.Verdict{Valid: true}, nil
	})
	stated := Messages{aliceReads, bobAuthorises}

	require.NoError(t, Audit(context.Background(), action(), stated, []message.Message{agreement}, ev))
	assert.True(t, seen.Equal(message.Extract(message.Payload(action())...)))
}

func TestAudit_NotStated(t *testing.T) {
	err := Audit(context.Background(), action(), Messages{aliceReads}, []message.Message{agreement}, valid())

	var ns *NotStatedError
	require.ErrorAs(t, err, &ns)
	assert.True(t, ns.Message.Equal(bobAuthorises))
	assert.ErrorIs(t, err, ErrRejected)
}

func TestAudit_AgreedCountsAsStated(t *testing.T) {
	agreed := []message.Message{agreement, bobAuthorises}
	require.NoError(t, Audit(context.Background(), action(), Messages{aliceReads}, agreed, valid()))
}

func TestAudit_NilStatedView(t *testing.T) {
	a := message.Action{Actor: "Alice", Basis: agreement}
	require.NoError(t, Audit(context.Background(), a, nil, []message.Message{agreement}, valid()))
}

func TestAudit_BasisStatedButNotAgreed(t *testing.T) {
	stated := Messages{agreement, aliceReads, bobAuthorises}
	err := Audit(context.Background(), action(), stated, nil, valid())

	var nb *NotBasedError
	require.ErrorAs(t, err, &nb)
	assert.True(t, nb.Basis.Equal(agreement))
}

// An invalid justification is reported before a missing agreement.
func TestAudit_InvalidBeforeNotBased(t *testing.T) {
	ev := policy.EvaluatorFunc(func(context.Context, policy.Policy) (policy.Verdict, error) {
		return policy.Verdict{Reasons: []fact.Atom{fact.Pred("error", fact.L("Alice"))}}, nil
	})
	stated := Messages{agreement, aliceReads, bobAuthorises}
	err := Audit(context.Background(), action(), stated, nil, ev)

	var inv *InvalidError
	require.ErrorAs(t, err, &inv)
	var nb *NotBasedError
	assert.False(t, errors.As(err, &nb))
}

func TestAudit_Invalid(t *testing.T) {
	reason := fact.Pred("error", fact.L("Alice"))
	ev := policy.EvaluatorFunc(func(context.Context, policy.Policy) (policy.Verdict, error) {
		return policy.Verdict{Reasons: []fact.Atom{reason}}, nil
	})
	err := Audit(context.Background(), action(), Messages{aliceReads, bobAuthorises}, []message.Message{agreement}, ev)

	var inv *InvalidError
	require.ErrorAs(t, err, &inv)
	assert.Contains(t, err.Error(), "error(Alice)")
	assert.ErrorIs(t, err, ErrRejected)
}

func TestAudit_EvaluatorFailureIsNotARejection(t *testing.T) {
	boom := errors.New("solver crashed")
	ev := policy.EvaluatorFunc(func(context.Context, policy.Policy) (policy.Verdict, error) {
		return policy.Verdict{}, boom
	})
	err := Audit(context.Background(), action(), Messages{aliceReads, bobAuthorises}, []message.Message{agreement}, ev)
	require.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, ErrRejected))
}

func TestAudit_WithSets(t *testing.T) {
	stmts := sets.NewStatements()
	stmts.State("Carol", aliceReads)
	stmts.State("Carol", bobAuthorises)
	agrs := sets.NewAgreements()
	agrs.Replace(agreement)

	require.NoError(t, Audit(context.Background(), action(), stmts.View("Carol"), agrs.Current(), valid()))

	// Dan never saw the statements.
	err := Audit(context.Background(), action(), stmts.View("Dan"), agrs.Current(), valid())
	var ns *NotStatedError
	require.ErrorAs(t, err, &ns)
	assert.True(t, ns.Message.Equal(aliceReads))
}
