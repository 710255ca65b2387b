package patient

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryStore struct {
	mu       sync.RWMutex
	patients map[uuid.UUID]Patient
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{patients: make(map[uuid.UUID]Patient)}
}

func (s *MemoryStore) Create(_ context.Context, p Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.patients[p.ID]; ok {
		return fmt.Errorf("patient %s already exists", p.ID)
	}
	if _, found := s.findLocked(p.FullName, p.DateOfBirth); found {
		return fmt.Errorf("%s: %w", p.FullName, ErrAlreadyExists)
	}
	s.patients[p.ID] = p
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.patients[id]
	if !ok {
		return Patient{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) FindByNameAndDOB(_ context.Context, name string, dob time.Time) (Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, found := s.findLocked(name, dob); found {
		return p, nil
	}
	return Patient{}, ErrNotFound
}

func (s *MemoryStore) findLocked(name string, dob time.Time) (Patient, bool) {
	for _, p := range s.patients {
		if strings.EqualFold(p.FullName, name) && p.DateOfBirth.Equal(dob) {
			return p, true
		}
	}
	return Patient{}, false
}
