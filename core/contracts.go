package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// ArtifactStore is the pending-state store: durable artifact metadata
// plus the opaque payload blob, addressed by artifact id. All mutation
// goes through CompareAndSwap; there is no blind overwrite.
type ArtifactStore interface {
	Create(ctx context.Context, in CreateArtifactInput) (Artifact, error)
	Get(ctx context.Context, id string) (Artifact, error)
	// CompareAndSwap persists next only when the stored version still
	// matches expectedVersion. On success the store bumps version and
	// updated_at and returns the persisted artifact. A stale writer
	// receives ErrVersionConflict.
	CompareAndSwap(ctx context.Context, id string, expectedVersion int, next Artifact) (Artifact, error)
	// ListPending returns pending artifacts whose last notification
	// (or creation, when never notified) is older than the cutoff.
	ListPending(ctx context.Context, olderThan time.Time) ([]Artifact, error)
}

// MessageRef identifies a message posted to the review surface.
type MessageRef struct {
	ChannelID string
	MessageID string
}

// Notifier is the chat collaborator. Implementations are expected to be
// idempotent under retry: UpdateMessage overwrites by id.
type Notifier interface {
	SendMessage(ctx context.Context, ref ChannelRef, content string) (MessageRef, error)
	UpdateMessage(ctx context.Context, ref MessageRef, content string) error
	// OpenRevisionPrompt surfaces the revision-input UI for the
	// artifact in the reviewer's channel.
	OpenRevisionPrompt(ctx context.Context, ref ChannelRef, artifactID string) error
}

// CommitResult carries the destination's reference for a committed
// payload (document key, issue URL).
type CommitResult struct {
	ExternalRef string
}

// Committer persists an approved payload to its destination, the
// document store for minutes and the issue tracker for task lists and
// issue drafts. Commit must be upsert-like or tolerate duplicate
// submission via the destination's own idempotency key.
type Committer interface {
	Commit(ctx context.Context, kind ArtifactKind, payload []byte) (CommitResult, error)
}

// RevisionProducer receives the reviewer's revision instructions and
// regenerates content out of band; the orchestrator does not wait for
// the result.
type RevisionProducer interface {
	Regenerate(ctx context.Context, artifact Artifact, instructions string) error
}

// ActorAuthorizer decides whether an actor may act on the artifact's
// channel. The zero configuration (nil authorizer) allows everyone in
// the verified workspace.
type ActorAuthorizer interface {
	Authorize(ctx context.Context, actorID string, ref ChannelRef) error
}

// InboundRequest is the raw verified-at-the-edge webhook request handed
// to processors and verifiers.
type InboundRequest struct {
	Body        []byte
	Headers     map[string]string
	ContentType string
	Metadata    map[string]any
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	Body       []byte
	Metadata   map[string]any
}

// InboundHandler processes one decoded interaction surface.
type InboundHandler interface {
	Surface() string
	Handle(ctx context.Context, event ActionEvent) (Outcome, error)
}

// IdempotencyClaimStore backs ingress dedupe: claiming a key grants a
// short lease for processing one delivery. Expired or failed claims
// become claimable again so platform redeliveries are not lost.
type IdempotencyClaimStore interface {
	Claim(ctx context.Context, key string, lease time.Duration) (string, bool, error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error, retryAt time.Time) error
}

// PayloadCipher encrypts artifact payloads before they reach durable
// storage. Decrypt must keep accepting every envelope a previously
// active key produced, or stored artifacts become unreadable after a
// rotation.
type PayloadCipher interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type StoreProvider interface {
	ArtifactStore() ArtifactStore
	ClaimStore() IdempotencyClaimStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// MetricsRecorder mirrors the counters/histograms the orchestrator
// emits per operation.
type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string)       {}
func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// JobExecutionMessage is the queue contract for deferred work: webhook
// phase-2 dispatch and scheduler sweeps, mapped onto go-job by
// adapters/gojob.
type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}
