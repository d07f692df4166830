package message

import "github.com/daviddao/justact/pkg/policy"

// Extract1 returns, for every rule of m in order, the bare rule followed by
// the rule attributed to m.Author. A message with k rules yields 2k rules.
func Extract1(m Message) policy.Policy {
	if len(m.Content) == 0 {
		return nil
	}
	out := make(policy.Policy, 0, 2*len(m.Content))
	for _, r := range m.Content {
		pair := policy.AddSaysHead(string(m.Author), r)
		out = append(out, pair[0], pair[1])
	}
	return out
}

// Extract concatenates Extract1 over msgs in order. Duplicates are kept;
// deduplication is left to the evaluator.
func Extract(msgs ...Message) policy.Policy {
	n := 0
	for _, m := range msgs {
		n += 2 * len(m.Content)
	}
	if n == 0 {
		return nil
	}
	out := make(policy.Policy, 0, n)
	for _, m := range msgs {
		out = append(out, Extract1(m)...)
	}
	return out
}
