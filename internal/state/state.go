// Package state holds the process-wide conversation correlator. The values
// are hints only: a single turn is correct without them, they just let the
// upstream stitch consecutive turns into one conversation.
package state

import "sync"

// Session carries the correlation the upstream hands back on init events.
// Reads are snapshots; writes are last-writer-wins.
type Session struct {
	mu             sync.RWMutex
	conversationID string
	baselineTaskID string
}

// Snapshot returns the current conversation id and baseline task id.
func (s *Session) Snapshot() (conversationID, baselineTaskID string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversationID, s.baselineTaskID
}

// ObserveInit records identifiers from an upstream init event. Empty values
// never overwrite known ones.
func (s *Session) ObserveInit(conversationID, taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conversationID != "" {
		s.conversationID = conversationID
	}
	if taskID != "" {
		s.baselineTaskID = taskID
	}
}
