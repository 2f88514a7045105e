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

const (
	claimStatusProcessing = "processing"
	claimStatusRetryReady = "retry_ready"
	claimStatusComplete   = "complete"
)

// IngressClaimStore is the durable claim ledger for webhook dedupe. A
// claim key maps to at most one live row; redeliveries of a completed
// key are refused, redeliveries of an expired or failed key reclaim it.
type IngressClaimStore struct {
	db   *bun.DB
	repo repository.Repository[*ingressClaimRecord]
}

func NewIngressClaimStore(db *bun.DB) (*IngressClaimStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*ingressClaimRecord](db, ingressClaimHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid ingress claim repository wiring: %w", err)
		}
	}
	return &IngressClaimStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *IngressClaimStore) Claim(ctx context.Context, key string, lease time.Duration) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, fmt.Errorf("sqlstore: ingress claim store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, fmt.Errorf("sqlstore: claim key is required")
	}
	if lease <= 0 {
		lease = time.Minute
	}
	now := time.Now().UTC()

	var claimID string
	var acquired bool
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := &ingressClaimRecord{}
		scanErr := tx.NewSelect().
			Model(existing).
			Where("?TableAlias.claim_key = ?", key).
			Limit(1).
			Scan(ctx)
		if scanErr != nil && scanErr != sql.ErrNoRows {
			return scanErr
		}

		if scanErr == nil {
			if !claimReclaimable(existing, now) {
				acquired = false
				return nil
			}
			existing.Status = claimStatusProcessing
			existing.Attempts++
			existing.LeaseExpiresAt = now.Add(lease)
			existing.RetryAt = nil
			existing.UpdatedAt = now
			if _, updateErr := tx.NewUpdate().
				Model(existing).
				Where("id = ?", existing.ID).
				Exec(ctx); updateErr != nil {
				return updateErr
			}
			claimID = existing.ID
			acquired = true
			return nil
		}

		record := &ingressClaimRecord{
			ID:             uuid.NewString(),
			ClaimKey:       key,
			Status:         claimStatusProcessing,
			Attempts:       1,
			LeaseExpiresAt: now.Add(lease),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
			if isUniqueViolation(insertErr) {
				// Another ingress instance won the insert race.
				acquired = false
				return nil
			}
			return insertErr
		}
		claimID = record.ID
		acquired = true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return claimID, acquired, nil
}

func (s *IngressClaimStore) Complete(ctx context.Context, claimID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: ingress claim store is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return fmt.Errorf("sqlstore: claim id is required")
	}
	now := time.Now().UTC()
	result, err := s.db.NewUpdate().
		Model((*ingressClaimRecord)(nil)).
		Set("status = ?", claimStatusComplete).
		Set("retry_at = NULL").
		Set("updated_at = ?", now).
		Where("id = ?", claimID).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sqlstore: ingress claim %q not found", claimID)
	}
	return nil
}

func (s *IngressClaimStore) Fail(ctx context.Context, claimID string, cause error, retryAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: ingress claim store is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return fmt.Errorf("sqlstore: claim id is required")
	}
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}
	now := time.Now().UTC()
	result, err := s.db.NewUpdate().
		Model((*ingressClaimRecord)(nil)).
		Set("status = ?", claimStatusRetryReady).
		Set("last_error = ?", lastError).
		Set("retry_at = ?", retryAt.UTC()).
		Set("updated_at = ?", now).
		Where("id = ?", claimID).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sqlstore: ingress claim %q not found", claimID)
	}
	return nil
}

func claimReclaimable(record *ingressClaimRecord, now time.Time) bool {
	switch record.Status {
	case claimStatusComplete:
		return false
	case claimStatusRetryReady:
		return record.RetryAt == nil || !now.Before(*record.RetryAt)
	case claimStatusProcessing:
		return now.After(record.LeaseExpiresAt)
	default:
		return true
	}
}

var _ core.IdempotencyClaimStore = (*IngressClaimStore)(nil)
