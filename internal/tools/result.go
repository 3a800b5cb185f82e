package tools

import (
	"encoding/json"
	"fmt"
)

// Result is the payload every ledger tool returns.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ParseResult decodes a raw tool output into a Result.
func ParseResult(raw string) (Result, error) {
	var r Result
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Result{}, fmt.Errorf("parse tool result: %w", err)
	}
	return r, nil
}
