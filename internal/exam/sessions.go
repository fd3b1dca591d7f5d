package exam

import (
	"sync"

	"github.com/pavelanni/placement/internal/model"
)

// entry pairs a session with the lock that serializes its mutations.
type entry struct {
	mu   sync.Mutex
	sess *model.ExamSession
}

// sessions is the in-memory session table. The map lock is only held for
// lookups and inserts; each session carries its own mutex.
// TODO: expire idle in-progress sessions; the table currently grows until restart.
type sessions struct {
	mu sync.RWMutex
	m  map[string]*entry
}

func newSessions() *sessions {
	return &sessions{m: make(map[string]*entry)}
}

func (s *sessions) get(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.m[id]
	return e, ok
}

func (s *sessions) put(sess *model.ExamSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[sess.ID] = &entry{sess: sess}
}

func (s *sessions) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
