package guard

import "github.com/KafClaw/expensecat/internal/provider"

// Chain accepts an interaction when any registered guard accepts it.
// Guards are stateless, so a Chain is safe for concurrent use once built.
type Chain struct {
	guards []Guard
}

// NewChain builds a chain that evaluates guards in the given order.
func NewChain(guards ...Guard) *Chain {
	return &Chain{guards: append([]Guard(nil), guards...)}
}

// DefaultChain registers every built-in Kind.
func DefaultChain() *Chain {
	guards := make([]Guard, len(Kinds))
	for i, k := range Kinds {
		guards[i] = k
	}
	return NewChain(guards...)
}

// Register appends a guard to the end of the chain.
func (c *Chain) Register(g Guard) {
	c.guards = append(c.guards, g)
}

// Guards returns the registered guards in evaluation order.
func (c *Chain) Guards() []Guard {
	return append([]Guard(nil), c.guards...)
}

// IsValid reports whether messages match any registered guard.
// An empty interaction is never valid.
func (c *Chain) IsValid(messages []provider.Message) bool {
	_, ok := c.Match(messages)
	return ok
}

// Match returns the first guard accepting messages.
func (c *Chain) Match(messages []provider.Message) (Guard, bool) {
	if len(messages) == 0 {
		return nil, false
	}
	for _, g := range c.guards {
		if g.Validate(messages) {
			return g, true
		}
	}
	return nil, false
}
