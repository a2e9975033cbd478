package emailverification

import "github.com/google/uuid"

// Len returns the number of tokens ever issued.
func (s *MemoryTokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.arena)
}

// ActiveCount returns how many of the user's tokens are active now.
func (s *MemoryTokenStore) ActiveCount(userID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.now()
	n := 0
	for _, t := range s.arena {
		if t.UserID == userID && t.IsActive(now) {
			n++
		}
	}
	return n
}
