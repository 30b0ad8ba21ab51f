package store

import (
	"errors"
	"sync"
)

// ErrSessionNotFound is returned for unknown sessions and for sessions owned
// by a different subject; callers cannot tell the two apart.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore is the in-memory owner of all live sessions. It is the only
// durable-for-session state in the process; everything vanishes on restart.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// NewChatMessage stamps a fresh message with an identifier and timestamp.
func NewChatMessage(role MessageRole, content string) ChatMessage {
	return ChatMessage{
		ID:        newID(),
		Role:      role,
		Content:   content,
		Timestamp: now(),
	}
}

func (s *SessionStore) Create(subject string) Session {
	sess := &Session{
		ID:        newID(),
		Subject:   subject,
		Phase:     PhaseIdle,
		Satisfied: make(map[FormKind]bool),
		CreatedAt: now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return copySession(sess)
}

// Snapshot returns a deep copy so callers can read (and hand to the LLM)
// without holding the lock.
func (s *SessionStore) Snapshot(id, subject string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok || sess.Subject != subject {
		return Session{}, ErrSessionNotFound
	}
	return copySession(sess), nil
}

// Apply runs fn against the live session under the write lock. fn must not
// block on I/O; snapshot first, then apply results.
func (s *SessionStore) Apply(id, subject string, fn func(*Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || sess.Subject != subject {
		return ErrSessionNotFound
	}
	fn(sess)
	return nil
}

// Dispatch routes an action through the reducer against the session's state.
func (s *SessionStore) Dispatch(id, subject string, action Action) (State, error) {
	var out State
	err := s.Apply(id, subject, func(sess *Session) {
		sess.State = Reduce(sess.State, action)
		out = cloneState(sess.State)
	})
	return out, err
}

// ResetChat replaces the message list wholesale and clears the flow
// bookkeeping. The portfolio survives; clearing it is a separate action.
func (s *SessionStore) ResetChat(id, subject string) (Session, error) {
	var out Session
	err := s.Apply(id, subject, func(sess *Session) {
		sess.Messages = nil
		sess.Phase = PhaseIdle
		sess.PendingForm = ""
		out = copySession(sess)
	})
	return out, err
}

func (s *SessionStore) Delete(id, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || sess.Subject != subject {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

func copySession(sess *Session) Session {
	out := *sess
	out.State = cloneState(sess.State)
	if sess.Messages != nil {
		out.Messages = make([]ChatMessage, len(sess.Messages))
		copy(out.Messages, sess.Messages)
	}
	if sess.Satisfied != nil {
		out.Satisfied = make(map[FormKind]bool, len(sess.Satisfied))
		for k, v := range sess.Satisfied {
			out.Satisfied[k] = v
		}
	}
	return out
}
