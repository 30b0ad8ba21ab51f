package core

import "context"

// MockCompletion is a canned CompletionClient for tests and local runs
// without an upstream credential. It records what was forwarded.
type MockCompletion struct {
	Result CompletionResult
	Err    error

	Calls        int
	LastTurns    []Turn
	LastInstruct string
}

func (m *MockCompletion) Complete(_ context.Context, turns []Turn, instruction string) (CompletionResult, error) {
	m.Calls++
	m.LastTurns = turns
	m.LastInstruct = instruction
	if m.Err != nil {
		return CompletionResult{}, m.Err
	}
	return m.Result, nil
}
