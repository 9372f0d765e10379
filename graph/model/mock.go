package model

import (
	"context"
	"sync"
)

// MockChatModel is a scripted ChatModel for tests.
//
// Each Chat call is answered by Respond when set, otherwise by the next
// entry of Responses (the last one repeats; none means an empty reply).
// Err fails every call, or only the first FailFirst calls when FailFirst
// is positive, which is handy for exercising retries.
//
//	chat := &model.MockChatModel{Responses: []model.ChatOut{
//	    {ToolCalls: []model.ToolCall{{ID: "1", Name: "search"}}},
//	    {Text: "done"},
//	}}
type MockChatModel struct {
	// Name is reported by ModelName. Defaults to "mock".
	Name string

	Responses []ChatOut
	Respond   func(messages []Message, tools []ToolSpec) (ChatOut, error)

	Err       error
	FailFirst int

	// Calls holds copies of what the model was sent, failed calls included.
	Calls []MockChatCall

	mu   sync.Mutex
	next int
}

// MockChatCall is one recorded Chat invocation.
type MockChatCall struct {
	Messages []Message
	Tools    []ToolSpec
}

// ModelName implements Named.
func (m *MockChatModel) ModelName() string {
	if m.Name == "" {
		return "mock"
	}
	return m.Name
}

// Chat implements ChatModel.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return ChatOut{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockChatCall{
		Messages: append([]Message(nil), messages...),
		Tools:    append([]ToolSpec(nil), tools...),
	})

	if m.Err != nil && (m.FailFirst <= 0 || len(m.Calls) <= m.FailFirst) {
		return ChatOut{}, m.Err
	}
	if m.Respond != nil {
		return m.Respond(messages, tools)
	}
	if len(m.Responses) == 0 {
		return ChatOut{}, nil
	}
	out := m.Responses[min(m.next, len(m.Responses)-1)]
	if m.next < len(m.Responses) {
		m.next++
	}
	return out, nil
}

// Reset forgets recorded calls and rewinds Responses.
func (m *MockChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls, m.next = nil, 0
}

// CallCount returns the number of recorded calls.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent call, or false when there was none.
func (m *MockChatModel) LastCall() (MockChatCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return MockChatCall{}, false
	}
	return m.Calls[len(m.Calls)-1], true
}
