package graph

import (
	"sync"

	"github.com/dshills/agentgraph-go/graph/model"
)

// Session is the model-interaction state of an AgentContext: the chat
// model, the tools visible to it, and the conversation history.
//
// All accessors return copies. After the owning context is closed every
// method returns ErrNotActive.
type Session struct {
	mu      sync.Mutex
	active  bool
	chat    model.ChatModel
	history []model.Message
	tools   []model.ToolSpec
}

func newSession(chat model.ChatModel, tools []model.ToolSpec) *Session {
	return &Session{
		active: true,
		chat:   chat,
		tools:  append([]model.ToolSpec(nil), tools...),
	}
}

// Model returns the chat model.
func (s *Session) Model() model.ChatModel {
	return s.chat
}

// History returns a copy of the conversation.
func (s *Session) History() ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return nil, ErrNotActive
	}
	return append([]model.Message(nil), s.history...), nil
}

// Append adds messages to the end of the conversation.
func (s *Session) Append(msgs ...model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return ErrNotActive
	}
	s.history = append(s.history, msgs...)
	return nil
}

// ReplaceHistory overwrites the conversation.
func (s *Session) ReplaceHistory(msgs []model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return ErrNotActive
	}
	s.history = append([]model.Message(nil), msgs...)
	return nil
}

// Tools returns the tools visible to the model.
func (s *Session) Tools() ([]model.ToolSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return nil, ErrNotActive
	}
	return append([]model.ToolSpec(nil), s.tools...), nil
}

// SetTools replaces the visible tools.
func (s *Session) SetTools(tools []model.ToolSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return ErrNotActive
	}
	s.tools = append([]model.ToolSpec(nil), tools...)
	return nil
}

// HasTool reports whether name is visible.
func (s *Session) HasTool(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return false, ErrNotActive
	}
	for _, t := range s.tools {
		if t.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// Active reports whether the session can still be used.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// fork copies the conversation into a new session with the given tools.
func (s *Session) fork(tools []model.ToolSpec) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return nil, ErrNotActive
	}
	child := newSession(s.chat, tools)
	child.history = append([]model.Message(nil), s.history...)
	return child, nil
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
}
