package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-approvals/core"
	"github.com/goliatone/go-approvals/security"
)

// EncryptedArtifactStore seals payload blobs before they reach the
// base store and opens them on the way out. Metadata columns stay
// plaintext so listing and sweeping never touch the cipher.
type EncryptedArtifactStore struct {
	base   core.ArtifactStore
	cipher core.PayloadCipher
}

func NewEncryptedArtifactStore(
	base core.ArtifactStore,
	cipher core.PayloadCipher,
) (*EncryptedArtifactStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base artifact store is required")
	}
	if cipher == nil {
		return nil, fmt.Errorf("sqlstore: payload cipher is required")
	}
	return &EncryptedArtifactStore{base: base, cipher: cipher}, nil
}

func (s *EncryptedArtifactStore) Create(ctx context.Context, in core.CreateArtifactInput) (core.Artifact, error) {
	if s == nil || s.base == nil {
		return core.Artifact{}, fmt.Errorf("sqlstore: encrypted artifact store is not configured")
	}
	sealed, err := s.cipher.Encrypt(ctx, in.Payload)
	if err != nil {
		return core.Artifact{}, fmt.Errorf("sqlstore: seal payload: %w", err)
	}
	sealedInput := in
	sealedInput.Payload = sealed

	artifact, err := s.base.Create(ctx, sealedInput)
	if err != nil {
		return core.Artifact{}, err
	}
	artifact.Payload = append([]byte(nil), in.Payload...)
	return artifact, nil
}

func (s *EncryptedArtifactStore) Get(ctx context.Context, id string) (core.Artifact, error) {
	if s == nil || s.base == nil {
		return core.Artifact{}, fmt.Errorf("sqlstore: encrypted artifact store is not configured")
	}
	artifact, err := s.base.Get(ctx, id)
	if err != nil {
		return core.Artifact{}, err
	}
	return s.openPayload(ctx, artifact)
}

func (s *EncryptedArtifactStore) CompareAndSwap(
	ctx context.Context,
	id string,
	expectedVersion int,
	next core.Artifact,
) (core.Artifact, error) {
	if s == nil || s.base == nil {
		return core.Artifact{}, fmt.Errorf("sqlstore: encrypted artifact store is not configured")
	}
	sealedNext := next
	if len(next.Payload) > 0 {
		sealed, err := s.cipher.Encrypt(ctx, next.Payload)
		if err != nil {
			return core.Artifact{}, fmt.Errorf("sqlstore: seal payload: %w", err)
		}
		sealedNext.Payload = sealed
	}

	artifact, err := s.base.CompareAndSwap(ctx, id, expectedVersion, sealedNext)
	if err != nil {
		return core.Artifact{}, err
	}
	return s.openPayload(ctx, artifact)
}

func (s *EncryptedArtifactStore) ListPending(ctx context.Context, olderThan time.Time) ([]core.Artifact, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: encrypted artifact store is not configured")
	}
	artifacts, err := s.base.ListPending(ctx, olderThan)
	if err != nil {
		return nil, err
	}
	opened := make([]core.Artifact, 0, len(artifacts))
	for _, artifact := range artifacts {
		plain, openErr := s.openPayload(ctx, artifact)
		if openErr != nil {
			return nil, openErr
		}
		opened = append(opened, plain)
	}
	return opened, nil
}

// openPayload tolerates plaintext rows written before encryption was
// enabled so turning the cipher on is not a breaking migration.
func (s *EncryptedArtifactStore) openPayload(ctx context.Context, artifact core.Artifact) (core.Artifact, error) {
	if len(artifact.Payload) == 0 || !security.IsEncryptedPayload(artifact.Payload) {
		return artifact, nil
	}
	plain, err := s.cipher.Decrypt(ctx, artifact.Payload)
	if err != nil {
		return core.Artifact{}, fmt.Errorf("sqlstore: open payload for artifact %q: %w", artifact.ID, err)
	}
	artifact.Payload = plain
	return artifact, nil
}

var _ core.ArtifactStore = (*EncryptedArtifactStore)(nil)
