package repositories

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"gatehouse-backend/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

type sessionEntry struct {
	mu      sync.Mutex
	session *models.CaptureSession
	removed atomic.Bool
}

// CaptureSessionRepository holds live capture sessions in memory. Sessions
// are lost on restart.
//
// Lock order is entry.mu before r.mu; r.mu is never held while waiting
// for an entry.
type CaptureSessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

func NewCaptureSessionRepository() *CaptureSessionRepository {
	return &CaptureSessionRepository{sessions: make(map[string]*sessionEntry)}
}

// Create registers session. The repository keeps its own copy.
func (r *CaptureSessionRepository) Create(session *models.CaptureSession) {
	entry := &sessionEntry{session: session.Clone()}

	r.mu.Lock()
	r.sessions[session.ID] = entry
	r.mu.Unlock()
}

func (r *CaptureSessionRepository) lookup(id string) (*sessionEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[id]
	return entry, ok
}

// Mutate runs fn with exclusive access to the session. When fn returns
// remove=true and a nil error the session is deleted before the lock is
// released, so no other caller can observe it afterwards.
func (r *CaptureSessionRepository) Mutate(id string, fn func(s *models.CaptureSession) (remove bool, err error)) error {
	entry, ok := r.lookup(id)
	if !ok {
		return ErrSessionNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	// Removed by cleanup or completion while we waited.
	if entry.removed.Load() {
		return ErrSessionNotFound
	}

	remove, err := fn(entry.session)
	if err != nil || !remove {
		return err
	}

	entry.removed.Store(true)
	r.mu.Lock()
	if r.sessions[id] == entry {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	return nil
}

// Get returns a deep copy of the session.
func (r *CaptureSessionRepository) Get(id string) (*models.CaptureSession, error) {
	entry, ok := r.lookup(id)
	if !ok {
		return nil, ErrSessionNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.removed.Load() {
		return nil, ErrSessionNotFound
	}
	return entry.session.Clone(), nil
}

// RemoveWhere deletes every session whose creation time satisfies
// expired and returns how many were removed. CreatedAt never changes, so
// it is read without the entry lock.
func (r *CaptureSessionRepository) RemoveWhere(expired func(createdAt time.Time) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, entry := range r.sessions {
		if !expired(entry.session.CreatedAt) {
			continue
		}
		entry.removed.Store(true)
		delete(r.sessions, id)
		removed++
	}
	return removed
}

func (r *CaptureSessionRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
