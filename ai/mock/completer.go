package mock

import (
	"context"
	"fmt"
	"sync"
)

// MockCompleter is a test double for ai.Completer.
// By default it answers with a fixed string that echoes the prompt sizes.
type MockCompleter struct {
	// CompleteFunc is called by Complete if set.
	CompleteFunc func(ctx context.Context, system, user string) (string, error)

	mu         sync.Mutex
	callCount  int
	lastSystem string
	lastUser   string
}

// NewMockCompleter creates a mock completer with default behavior.
func NewMockCompleter() *MockCompleter {
	return &MockCompleter{}
}

// Complete records the prompts and returns the injected or default reply.
func (m *MockCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	m.mu.Lock()
	m.callCount++
	m.lastSystem = system
	m.lastUser = user
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, system, user)
	}
	return fmt.Sprintf("mock answer (%d context characters)", len(user)), nil
}

// CallCount returns the number of times Complete was called.
func (m *MockCompleter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastPrompt returns the system and user prompts of the most recent call.
func (m *MockCompleter) LastPrompt() (system, user string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSystem, m.lastUser
}

// Reset clears recorded calls and the custom function.
func (m *MockCompleter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.lastSystem = ""
	m.lastUser = ""
	m.CompleteFunc = nil
}
