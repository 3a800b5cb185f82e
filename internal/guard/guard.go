// Package guard decides whether the tool usage in one agent interaction has an
// acceptable shape.
//
// Guards only look at tool-call names issued by assistant messages. Arguments
// and tool outputs never take part in the decision.
package guard

import (
	"github.com/KafClaw/expensecat/internal/provider"
	"github.com/KafClaw/expensecat/internal/tools"
)

// Guard accepts or rejects one interaction.
type Guard interface {
	Name() string
	Validate(messages []provider.Message) bool
}

// Kind is one of the built-in tool-usage shapes.
type Kind int

const (
	// NoToolCall accepts an answer given without any tool call.
	NoToolCall Kind = iota
	// SingleToolCall accepts exactly one read or delete call.
	SingleToolCall
	// AddExpenseTransaction accepts one category lookup plus one add_expense.
	AddExpenseTransaction
	// GetGroupedExpensesTransaction accepts one category lookup plus one grouped-expenses read.
	GetGroupedExpensesTransaction
)

// Kinds lists every built-in kind in default registration order.
var Kinds = []Kind{
	AddExpenseTransaction,
	GetGroupedExpensesTransaction,
	NoToolCall,
	SingleToolCall,
}

var singleShotTools = map[string]bool{
	tools.DeleteExpense:      true,
	tools.GetExpense:         true,
	tools.GetGroupedExpenses: true,
}

func (k Kind) String() string {
	switch k {
	case NoToolCall:
		return "no_tool_call"
	case SingleToolCall:
		return "single_tool_call"
	case AddExpenseTransaction:
		return "add_expense_transaction"
	case GetGroupedExpensesTransaction:
		return "get_grouped_expenses_transaction"
	default:
		return "unknown"
	}
}

// Name implements Guard.
func (k Kind) Name() string { return k.String() }

// Validate implements Guard.
func (k Kind) Validate(messages []provider.Message) bool {
	return k.accepts(ToolCallNames(messages))
}

func (k Kind) accepts(names []string) bool {
	switch k {
	case NoToolCall:
		return len(names) == 0
	case SingleToolCall:
		return len(names) == 1 && singleShotTools[names[0]]
	case AddExpenseTransaction:
		return isPair(names, tools.GetExpenseCategories, tools.AddExpense)
	case GetGroupedExpensesTransaction:
		return isPair(names, tools.GetExpenseCategories, tools.GetGroupedExpenses)
	default:
		return false
	}
}

// isPair reports whether names holds exactly a and b once each, in any order.
func isPair(names []string, a, b string) bool {
	if len(names) != 2 {
		return false
	}
	return (names[0] == a && names[1] == b) || (names[0] == b && names[1] == a)
}

// ToolCallNames returns the names of every tool call issued by assistant
// messages, in order, duplicates included.
func ToolCallNames(messages []provider.Message) []string {
	var names []string
	for _, m := range messages {
		if m.Role != provider.RoleAssistant {
			continue
		}
		for _, tc := range m.ToolCalls {
			names = append(names, tc.Name)
		}
	}
	return names
}
