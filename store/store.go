// Package store persists completed assessment snapshots. The orchestrator
// treats storage as an external collaborator: snapshots are saved as opaque
// JSON documents keyed by session id, with no schema beyond that.
package store

import (
	"context"
	"sync"

	"github.com/sweetpotato0/arborflow/assessment"
	arberrors "github.com/sweetpotato0/arborflow/errors"
)

// ReportStore defines the interface for assessment snapshot persistence.
type ReportStore interface {
	Save(ctx context.Context, snap *assessment.Snapshot) error
	Load(ctx context.Context, sessionID string) (*assessment.Snapshot, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, sessionID string) error
}

// InMemoryStore implements ReportStore with a mutex-protected map. Useful for
// tests and single-process field tools.
type InMemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]*assessment.Snapshot
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		snapshots: make(map[string]*assessment.Snapshot),
	}
}

// Save stores or replaces the snapshot for its session.
func (s *InMemoryStore) Save(ctx context.Context, snap *assessment.Snapshot) error {
	if snap == nil || snap.SessionID == "" {
		return arberrors.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *snap
	copied.FormData = snap.FormData.Clone()
	copied.Fields = assessment.CloneFields(snap.Fields)
	copied.ValidationErrors = append([]string(nil), snap.ValidationErrors...)
	copied.Recommendations = append([]assessment.Recommendation(nil), snap.Recommendations...)
	copied.Decisions = append([]assessment.Decision(nil), snap.Decisions...)
	s.snapshots[snap.SessionID] = &copied
	return nil
}

// Load returns the stored snapshot for a session.
func (s *InMemoryStore) Load(ctx context.Context, sessionID string) (*assessment.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[sessionID]
	if !ok {
		return nil, arberrors.ErrNotFound
	}
	copied := *snap
	return &copied, nil
}

// List returns the session ids with stored snapshots.
func (s *InMemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.snapshots))
	for id := range s.snapshots {
		ids = append(ids, id)
	}
	return ids, nil
}

// Delete removes the snapshot for a session.
func (s *InMemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snapshots[sessionID]; !ok {
		return arberrors.ErrNotFound
	}
	delete(s.snapshots, sessionID)
	return nil
}
