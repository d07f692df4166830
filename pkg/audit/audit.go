// Package audit decides whether an action was justified.
//
// An action passes when every message it relies on was stated or agreed,
// the policy extracted from its payload is valid, and its basis is a
// current agreement. The checks run in that order and the first failing
// one is reported.
package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/daviddao/justact/pkg/fact"
	"github.com/daviddao/justact/pkg/message"
	"github.com/daviddao/justact/pkg/policy"
)

// ErrRejected is matched by every audit failure that is a judgment on the
// action, as opposed to a failure of the evaluator.
var ErrRejected = errors.New("action rejected")

// Known is a set of messages an auditor can see, e.g. a statements
// snapshot.
type Known interface {
	Contains(m message.Message) bool
}

// Messages adapts a plain slice to Known.
type Messages []message.Message

// Contains reports whether ms holds a message equal to m.
func (ms Messages) Contains(m message.Message) bool { return message.Contains(ms, m) }

// NotStatedError reports a payload message that was neither stated nor
// agreed.
type NotStatedError struct {
	Message message.Message
}

func (e *NotStatedError) Error() string {
	return fmt.Sprintf("message by %s was never stated: %s", e.Message.Author, e.Message)
}

func (e *NotStatedError) Is(target error) bool { return target == ErrRejected }

// NotBasedError reports a basis that is not a current agreement.
type NotBasedError struct {
	Basis message.Message
}

func (e *NotBasedError) Error() string {
	return fmt.Sprintf("basis by %s is not an agreement: %s", e.Basis.Author, e.Basis)
}

func (e *NotBasedError) Is(target error) bool { return target == ErrRejected }

// InvalidError reports a payload whose extracted policy is not valid.
type InvalidError struct {
	Reasons []fact.Atom
}

func (e *InvalidError) Error() string {
	if len(e.Reasons) == 0 {
		return "justification is not valid"
	}
	parts := make([]string, len(e.Reasons))
	for i, r := range e.Reasons {
		parts[i] = policy.Format(r)
	}
	return "justification is not valid: " + strings.Join(parts, "; ")
}

func (e *InvalidError) Is(target error) bool { return target == ErrRejected }

// Audit checks a against what the auditor knows. stated is the auditor's
// own view of the statements; agreed is the agreement set the auditor
// currently holds. A nil error means the action is justified.
func Audit(ctx context.Context, a message.Action, stated Known, agreed []message.Message, ev policy.Evaluator) error {
	agreements := Messages(agreed)
	payload := message.Payload(a)

	// The reflected actorship sits at index 1 and is implied by the action.
	for i, m := range payload {
		if i == 1 {
			continue
		}
		if !agreements.Contains(m) && (stated == nil || !stated.Contains(m)) {
			return &NotStatedError{Message: m}
		}
	}

	v, err := ev.Evaluate(ctx, message.Extract(payload...))
	if err != nil {
		return fmt.Errorf("evaluate justification: %w", err)
	}
	if !v.Valid {
		return &InvalidError{Reasons: v.Reasons}
	}

	if !agreements.Contains(a.Basis) {
		return &NotBasedError{Basis: a.Basis}
	}
	return nil
}
