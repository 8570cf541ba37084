// Package state persists the last validated relation payload so it survives
// operator restarts and upgrades.
package state

import (
	"context"
	"sync"

	"github.com/mthaddon/k8s-ingress-operator/internal/relation"
)

// Store caches the last-known-good relation payload. Save replaces the
// cached payload wholesale; there is no field-by-field merge. Load returns
// an empty payload when nothing has been cached yet.
type Store interface {
	Load(ctx context.Context) (relation.Payload, error)
	Save(ctx context.Context, payload relation.Payload) error
}

// MemoryStore is an in-process Store for tests and single-shot runs.
type MemoryStore struct {
	mu      sync.Mutex
	payload relation.Payload
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context) (relation.Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.payload == nil {
		return relation.Payload{}, nil
	}

	copied := make(relation.Payload, len(s.payload))
	for k, v := range s.payload {
		copied[k] = v
	}

	return copied, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, payload relation.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make(relation.Payload, len(payload))
	for k, v := range payload {
		copied[k] = v
	}

	s.payload = copied

	return nil
}
