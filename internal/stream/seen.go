package stream

import "sync"

// SeenLines is the per-invocation set of emitted line texts, shared by the
// stdout and stderr pumps of one invocation.
type SeenLines struct {
	mu         sync.Mutex
	seen       map[string]struct{}
	suppressed int
}

func NewSeenLines() *SeenLines {
	return &SeenLines{seen: make(map[string]struct{})}
}

// Admit records line and reports whether it is the first occurrence.
func (s *SeenLines) Admit(line string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[line]; ok {
		s.suppressed++
		return false
	}
	s.seen[line] = struct{}{}
	return true
}

// Len is the number of distinct lines admitted.
func (s *SeenLines) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// Suppressed is the number of duplicates rejected.
func (s *SeenLines) Suppressed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suppressed
}
