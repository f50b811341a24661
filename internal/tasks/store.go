package tasks

import (
	"errors"
	"fmt"
)

var (
	// ErrStore wraps every failure of the underlying task storage.
	ErrStore = errors.New("task store failure")

	// ErrTaskNotFound is returned when updating a task that is not in the list.
	ErrTaskNotFound = errors.New("task not found")
)

// Store is the persistence abstraction for the task list.
// Implementations must keep tasks in insertion order.
// The Tracker serialises all calls, so implementations need no locking.
type Store interface {
	Append(t Task) error
	Update(t Task) error
	List() ([]Task, error)
	Clear() error
	Close() error
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	tasks []Task
	index map[string]int
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{index: make(map[string]int)}
}

// Append implements Store.Append.
func (s *InMemoryStore) Append(t Task) error {
	if _, exists := s.index[t.ID]; exists {
		return fmt.Errorf("%w: duplicate task id %s", ErrStore, t.ID)
	}
	s.index[t.ID] = len(s.tasks)
	s.tasks = append(s.tasks, t)
	return nil
}

// Update implements Store.Update.
func (s *InMemoryStore) Update(t Task) error {
	i, ok := s.index[t.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, t.ID)
	}
	s.tasks[i] = t
	return nil
}

// List implements Store.List.
func (s *InMemoryStore) List() ([]Task, error) {
	out := make([]Task, len(s.tasks))
	copy(out, s.tasks)
	return out, nil
}

// Clear implements Store.Clear.
func (s *InMemoryStore) Clear() error {
	s.tasks = nil
	s.index = make(map[string]int)
	return nil
}

// Close implements Store.Close.
func (s *InMemoryStore) Close() error { return nil }
