package tasks

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Tracker is the concurrency-safe entry point to the task list. Pipeline
// steps, segment fetches and observation handlers all report through it.
type Tracker struct {
	mu    sync.Mutex
	store Store
}

// NewTracker returns a Tracker backed by a new in-memory store.
func NewTracker() *Tracker {
	return NewTrackerWithStore(NewInMemoryStore())
}

// NewTrackerWithStore returns a Tracker that persists to store.
func NewTrackerWithStore(store Store) *Tracker {
	return &Tracker{store: store}
}

// Add appends a task and returns its id.
func (t *Tracker) Add(category, description string, status Status) (string, error) {
	task := Task{
		ID:          uuid.NewString(),
		Category:    category,
		Description: description,
		Status:      status,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.store.Append(task); err != nil {
		return "", err
	}
	return task.ID, nil
}

// Update sets the status of the task with the given id.
func (t *Tracker) Update(id string, status Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	list, err := t.store.List()
	if err != nil {
		return err
	}
	for _, task := range list {
		if task.ID == id {
			task.Status = status
			return t.store.Update(task)
		}
	}
	return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
}

// List returns a snapshot of all tasks in insertion order.
func (t *Tracker) List() ([]Task, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.List()
}

// Clear removes every task.
func (t *Tracker) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.Clear()
}

// Close releases the underlying store.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.Close()
}
