package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-approvals/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ArtifactStore persists artifacts as a narrow metadata row joined to a
// payload blob row by artifact id. Every status write is conditioned on
// the stored version.
type ArtifactStore struct {
	db          *bun.DB
	repo        repository.Repository[*artifactRecord]
	payloadRepo repository.Repository[*artifactPayloadRecord]
}

func NewArtifactStore(db *bun.DB) (*ArtifactStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*artifactRecord](db, artifactHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid artifact repository wiring: %w", err)
		}
	}
	payloadRepo := repository.NewRepository[*artifactPayloadRecord](db, artifactPayloadHandlers())
	if validator, ok := payloadRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid artifact payload repository wiring: %w", err)
		}
	}
	return &ArtifactStore{
		db:          db,
		repo:        repo,
		payloadRepo: payloadRepo,
	}, nil
}

func (s *ArtifactStore) Create(ctx context.Context, in core.CreateArtifactInput) (core.Artifact, error) {
	if s == nil || s.db == nil {
		return core.Artifact{}, fmt.Errorf("sqlstore: artifact store is not configured")
	}
	if err := in.Validate(); err != nil {
		return core.Artifact{}, err
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	horizon := in.ExpiresAt
	if horizon.IsZero() {
		horizon = now.Add(core.DefaultReminderInterval * (core.DefaultMaxReminders + 1))
	}

	record := newArtifactRecord(in, id, horizon, now)
	payload := &artifactPayloadRecord{
		ArtifactID: id,
		Payload:    append([]byte(nil), in.Payload...),
		UpdatedAt:  now,
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
			if isUniqueViolation(insertErr) {
				return fmt.Errorf("sqlstore: artifact %q already exists", id)
			}
			return insertErr
		}
		if _, insertErr := tx.NewInsert().Model(payload).Exec(ctx); insertErr != nil {
			return insertErr
		}
		return nil
	})
	if err != nil {
		return core.Artifact{}, err
	}
	return artifactToDomain(record, payload), nil
}

func (s *ArtifactStore) Get(ctx context.Context, id string) (core.Artifact, error) {
	if s == nil || s.db == nil {
		return core.Artifact{}, fmt.Errorf("sqlstore: artifact store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Artifact{}, fmt.Errorf("sqlstore: artifact id is required")
	}

	record := &artifactRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Artifact{}, fmt.Errorf("%w: %s", core.ErrArtifactNotFound, id)
		}
		return core.Artifact{}, err
	}

	payload, err := s.loadPayload(ctx, id)
	if err != nil {
		return core.Artifact{}, err
	}
	return artifactToDomain(record, payload), nil
}

func (s *ArtifactStore) CompareAndSwap(
	ctx context.Context,
	id string,
	expectedVersion int,
	next core.Artifact,
) (core.Artifact, error) {
	if s == nil || s.db == nil {
		return core.Artifact{}, fmt.Errorf("sqlstore: artifact store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Artifact{}, fmt.Errorf("sqlstore: artifact id is required")
	}
	now := time.Now().UTC()

	var out core.Artifact
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &artifactRecord{}
		if scanErr := tx.NewSelect().
			Model(record).
			Where("?TableAlias.id = ?", id).
			Limit(1).
			Scan(ctx); scanErr != nil {
			if scanErr == sql.ErrNoRows {
				return fmt.Errorf("%w: %s", core.ErrArtifactNotFound, id)
			}
			return scanErr
		}

		applyArtifactToRecord(record, next, now)
		record.Version = expectedVersion + 1

		result, updateErr := tx.NewUpdate().
			Model(record).
			Where("id = ?", id).
			Where("version = ?", expectedVersion).
			Exec(ctx)
		if updateErr != nil {
			return updateErr
		}
		affected, affectedErr := result.RowsAffected()
		if affectedErr != nil {
			return affectedErr
		}
		if affected == 0 {
			return fmt.Errorf(
				"%w: %s expected version %d",
				core.ErrVersionConflict, id, expectedVersion,
			)
		}

		if len(next.Payload) > 0 {
			if _, payloadErr := tx.NewUpdate().
				Model((*artifactPayloadRecord)(nil)).
				Set("payload = ?", append([]byte(nil), next.Payload...)).
				Set("updated_at = ?", now).
				Where("artifact_id = ?", id).
				Exec(ctx); payloadErr != nil {
				return payloadErr
			}
		}

		payload, payloadErr := loadPayloadTx(ctx, tx, id)
		if payloadErr != nil {
			return payloadErr
		}
		out = artifactToDomain(record, payload)
		return nil
	})
	if err != nil {
		return core.Artifact{}, err
	}
	return out, nil
}

func (s *ArtifactStore) ListPending(ctx context.Context, olderThan time.Time) ([]core.Artifact, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: artifact store is not configured")
	}

	records := []*artifactRecord{}
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.status = ?", string(core.ArtifactStatusPending)).
		Where("COALESCE(?TableAlias.last_notified_at, ?TableAlias.created_at) < ?", olderThan).
		OrderExpr("?TableAlias.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	artifacts := make([]core.Artifact, 0, len(records))
	for _, record := range records {
		payload, payloadErr := s.loadPayload(ctx, record.ID)
		if payloadErr != nil {
			return nil, payloadErr
		}
		artifacts = append(artifacts, artifactToDomain(record, payload))
	}
	return artifacts, nil
}

func (s *ArtifactStore) loadPayload(ctx context.Context, artifactID string) (*artifactPayloadRecord, error) {
	payload := &artifactPayloadRecord{}
	err := s.db.NewSelect().
		Model(payload).
		Where("?TableAlias.artifact_id = ?", artifactID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return payload, nil
}

func loadPayloadTx(ctx context.Context, tx bun.Tx, artifactID string) (*artifactPayloadRecord, error) {
	payload := &artifactPayloadRecord{}
	err := tx.NewSelect().
		Model(payload).
		Where("?TableAlias.artifact_id = ?", artifactID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return payload, nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
