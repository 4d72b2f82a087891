package engine

import gonanoid "github.com/matoous/go-nanoid/v2"

// Submitter accepts keyed work items. Both Engine and BoundedEngine
// implement it.
type Submitter interface {
	Submit(key any, item WorkItem) bool
}

// sessionKey is the affinity key of a Session; being unexported it never
// collides with caller-provided keys.
type sessionKey struct {
	id string
}

func (k sessionKey) String() string { return "session/" + k.id }

// Session stands in for an implicit per-caller key: every item submitted
// through the same Session runs in submission order.
type Session struct {
	s   Submitter
	key sessionKey
}

// NewSession binds a new session key to s.
func NewSession(s Submitter) *Session {
	return &Session{s: s, key: sessionKey{id: gonanoid.Must()}}
}

// Key returns the affinity key used by the session.
func (s *Session) Key() any { return s.key }

// Submit submits item under the session key.
func (s *Session) Submit(item WorkItem) bool {
	return s.s.Submit(s.key, item)
}
