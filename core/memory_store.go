package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryArtifactStore keeps pending artifacts in process. It mirrors
// the durable store's contract exactly, including version-conditioned
// writes, so the machine behaves the same against either backend.
type MemoryArtifactStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]Artifact
}

func NewMemoryArtifactStore(now func() time.Time) *MemoryArtifactStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryArtifactStore{
		now:     now,
		entries: map[string]Artifact{},
	}
}

var _ ArtifactStore = (*MemoryArtifactStore)(nil)

func (s *MemoryArtifactStore) Create(_ context.Context, in CreateArtifactInput) (Artifact, error) {
	if s == nil {
		return Artifact{}, fmt.Errorf("core: artifact store is not configured")
	}
	if err := in.Validate(); err != nil {
		return Artifact{}, err
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		generated, err := generateArtifactID()
		if err != nil {
			return Artifact{}, err
		}
		id = generated
	}

	now := s.now()
	// The review horizon: reminders fire per interval, expiry follows
	// once the reminder budget is spent.
	horizon := in.ExpiresAt
	if horizon.IsZero() {
		horizon = now.Add(DefaultReminderInterval * (DefaultMaxReminders + 1))
	}
	artifact := Artifact{
		ID:         id,
		Kind:       in.Kind,
		Payload:    append([]byte(nil), in.Payload...),
		Status:     ArtifactStatusPending,
		ChannelRef: in.ChannelRef,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  horizon,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[id]; exists {
		return Artifact{}, fmt.Errorf("core: artifact %q already exists", id)
	}
	s.entries[id] = cloneArtifact(artifact)
	return artifact, nil
}

func (s *MemoryArtifactStore) Get(_ context.Context, id string) (Artifact, error) {
	if s == nil {
		return Artifact{}, fmt.Errorf("core: artifact store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Artifact{}, fmt.Errorf("core: artifact id is required")
	}

	s.mu.Lock()
	artifact, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return Artifact{}, fmt.Errorf("%w: %s", ErrArtifactNotFound, id)
	}
	return cloneArtifact(artifact), nil
}

func (s *MemoryArtifactStore) CompareAndSwap(_ context.Context, id string, expectedVersion int, next Artifact) (Artifact, error) {
	if s == nil {
		return Artifact{}, fmt.Errorf("core: artifact store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Artifact{}, fmt.Errorf("core: artifact id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.entries[id]
	if !ok {
		return Artifact{}, fmt.Errorf("%w: %s", ErrArtifactNotFound, id)
	}
	if current.Version != expectedVersion {
		return Artifact{}, fmt.Errorf("%w: %s expected version %d, found %d",
			ErrVersionConflict, id, expectedVersion, current.Version)
	}

	next.ID = id
	next.Version = current.Version + 1
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = s.now()
	}
	s.entries[id] = cloneArtifact(next)
	return cloneArtifact(next), nil
}

func (s *MemoryArtifactStore) ListPending(_ context.Context, olderThan time.Time) ([]Artifact, error) {
	if s == nil {
		return nil, fmt.Errorf("core: artifact store is not configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []Artifact
	for _, artifact := range s.entries {
		if artifact.Status != ArtifactStatusPending {
			continue
		}
		last := artifact.LastNotifiedAt
		if last.IsZero() {
			last = artifact.CreatedAt
		}
		if last.Before(olderThan) {
			pending = append(pending, cloneArtifact(artifact))
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

func generateArtifactID() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("core: generate artifact id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func cloneArtifact(artifact Artifact) Artifact {
	cloned := artifact
	cloned.Payload = append([]byte(nil), artifact.Payload...)
	cloned.RevisionHistory = append([]string(nil), artifact.RevisionHistory...)
	return cloned
}
