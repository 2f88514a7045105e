package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

// artifactRecord is the metadata index row. The payload blob lives in
// its own table so status scans stay narrow.
type artifactRecord struct {
	bun.BaseModel `bun:"table:approval_artifacts,alias:aa"`

	ID              string     `bun:"id,pk"`
	Kind            string     `bun:"kind,notnull"`
	Status          string     `bun:"status,notnull"`
	ChannelID       string     `bun:"channel_id,notnull"`
	MessageID       string     `bun:"message_id"`
	Reviewer        string     `bun:"reviewer"`
	ReminderCount   int        `bun:"reminder_count,notnull"`
	Version         int        `bun:"version,notnull"`
	RevisionHistory []string   `bun:"revision_history,type:jsonb,notnull"`
	LastNotifiedAt  *time.Time `bun:"last_notified_at,nullzero"`
	ExpiresAt       time.Time  `bun:"expires_at,nullzero,notnull"`
	CreatedAt       time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type artifactPayloadRecord struct {
	bun.BaseModel `bun:"table:approval_artifact_payloads,alias:aap"`

	ArtifactID string    `bun:"artifact_id,pk"`
	Payload    []byte    `bun:"payload,notnull"`
	UpdatedAt  time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type ingressClaimRecord struct {
	bun.BaseModel `bun:"table:approval_ingress_claims,alias:aic"`

	ID             string     `bun:"id,pk"`
	ClaimKey       string     `bun:"claim_key,notnull"`
	Status         string     `bun:"status,notnull"`
	Attempts       int        `bun:"attempts,notnull"`
	LastError      string     `bun:"last_error"`
	LeaseExpiresAt time.Time  `bun:"lease_expires_at,nullzero,notnull"`
	RetryAt        *time.Time `bun:"retry_at,nullzero"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
