package repositories

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"tienda/internal/checkout"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when no checkout session has the requested ID.
var ErrSessionNotFound = errors.New("checkout session not found")

// CheckoutSessionRepository stores checkout sessions for the duration of a
// shopping visit.
type CheckoutSessionRepository interface {
	Create(session *checkout.Session) error
	GetByID(id string) (*checkout.Session, error)
	Save(session *checkout.Session) error
	// DeleteOlderThan drops sessions not updated since cutoff and returns
	// how many were removed.
	DeleteOlderThan(cutoff time.Time) int
}

// InMemoryCheckoutSessionRepository keeps sessions in process memory.
type InMemoryCheckoutSessionRepository struct {
	sessions map[string]checkout.Session
	mu       sync.RWMutex
}

// NewInMemoryCheckoutSessionRepository creates a new, empty session store.
func NewInMemoryCheckoutSessionRepository() *InMemoryCheckoutSessionRepository {
	return &InMemoryCheckoutSessionRepository{
		sessions: make(map[string]checkout.Session),
	}
}

// Create stores a new session, assigning an ID when missing.
func (r *InMemoryCheckoutSessionRepository) Create(session *checkout.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if _, exists := r.sessions[session.ID]; exists {
		return fmt.Errorf("checkout session %s already exists", session.ID)
	}
	now := time.Now()
	session.CreatedAt = now
	session.UpdatedAt = now
	r.sessions[session.ID] = *session
	return nil
}

// GetByID returns a copy of the stored session.
func (r *InMemoryCheckoutSessionRepository) GetByID(id string) (*checkout.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("checkout session %s: %w", id, ErrSessionNotFound)
	}
	return &session, nil
}

// Save replaces a stored session.
func (r *InMemoryCheckoutSessionRepository) Save(session *checkout.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[session.ID]; !ok {
		return fmt.Errorf("checkout session %s: %w", session.ID, ErrSessionNotFound)
	}
	session.UpdatedAt = time.Now()
	r.sessions[session.ID] = *session
	return nil
}

// DeleteOlderThan removes sessions idle since before cutoff.
func (r *InMemoryCheckoutSessionRepository) DeleteOlderThan(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, s := range r.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}
