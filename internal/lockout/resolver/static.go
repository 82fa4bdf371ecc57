package resolver

import (
	"context"
	"sync"

	"lockgate/internal/lockout/models"
)

// Static is an in-memory KindResolver for tests and embedding applications
// that manage their own subject lookup.
type Static struct {
	mu       sync.RWMutex
	subjects map[string]models.Subject
}

func NewStatic() *Static {
	return &Static{subjects: make(map[string]models.Subject)}
}

// Add registers a subject under its lock identifier.
func (s *Static) Add(subject models.Subject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects[subject.LockIdentifier()] = subject
}

// Remove drops the subject registered under the identifier.
func (s *Static) Remove(identifier string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subjects, identifier)
}

func (s *Static) FindByIdentifier(_ context.Context, identifier string) (models.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subject, ok := s.subjects[identifier]
	if !ok {
		return nil, nil
	}
	return subject, nil
}
