package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Machine owns every artifact state transition. All mutation funnels
// through Apply or Submit; collaborators (notifier, committer,
// producer) are only ever invoked from inside a transition, after the
// compare-and-swap that claims it has succeeded.
type Machine struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	store           ArtifactStore
	notifier        Notifier
	committer       Committer
	producer        RevisionProducer
	authorizer      ActorAuthorizer
	backoff         BackoffScheduler
	now             func() time.Time
}

type MachineDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorMapper     ErrorMapper
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	Store           ArtifactStore
	Notifier        Notifier
	Committer       Committer
	Producer        RevisionProducer
	Authorizer      ActorAuthorizer
	Backoff         BackoffScheduler
}

func NewMachine(cfg Config, options ...Option) (*Machine, error) {
	builder := defaultMachineBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("approvals", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("approvals"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.nowFn == nil {
		builder.nowFn = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.store == nil {
		builder.store = NewMemoryArtifactStore(builder.nowFn)
	}
	if builder.backoff == nil {
		builder.backoff = ExponentialBackoffScheduler{
			Initial: finalConfig.Retry.BaseDelay,
			Max:     finalConfig.Retry.MaxDelay,
		}
	}

	return &Machine{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		store:           builder.store,
		notifier:        builder.notifier,
		committer:       builder.committer,
		producer:        builder.producer,
		authorizer:      builder.authorizer,
		backoff:         builder.backoff,
		now:             builder.nowFn,
	}, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (m *Machine) Config() Config {
	if m == nil {
		return Config{}
	}
	return m.config
}

func (m *Machine) Dependencies() MachineDependencies {
	if m == nil {
		return MachineDependencies{}
	}
	return MachineDependencies{
		Logger:          m.logger,
		LoggerProvider:  m.loggerProvider,
		MetricsRecorder: m.metricsRecorder,
		ErrorMapper:     m.errorMapper,
		ConfigProvider:  m.configProvider,
		OptionsResolver: m.optionsResolver,
		Store:           m.store,
		Notifier:        m.notifier,
		Committer:       m.committer,
		Producer:        m.producer,
		Authorizer:      m.authorizer,
		Backoff:         m.backoff,
	}
}

func (m *Machine) Store() ArtifactStore {
	if m == nil {
		return nil
	}
	return m.store
}

func (m *Machine) mapError(err error) error {
	return mapBuildError(m.errorMapper, err)
}

// Submit registers a generated artifact for review: persist it pending,
// post the review message, and record the message id for later edits.
// The payload is owned by the store from this point on.
func (m *Machine) Submit(ctx context.Context, in CreateArtifactInput) (artifact Artifact, err error) {
	if m == nil {
		return Artifact{}, fmt.Errorf("core: machine is nil")
	}
	startedAt := m.now()
	fields := map[string]any{
		"artifact_id": in.ID,
		"kind":        string(in.Kind),
		"channel_id":  in.ChannelRef.ChannelID,
	}
	defer func() {
		m.observeOperation(ctx, startedAt, "submit", err, fields)
	}()

	if err = in.Validate(); err != nil {
		err = m.mapError(err)
		return Artifact{}, err
	}

	if in.ExpiresAt.IsZero() {
		in.ExpiresAt = startedAt.Add(m.config.ReminderInterval * time.Duration(m.config.MaxReminders+1))
	}

	artifact, err = m.store.Create(ctx, in)
	if err != nil {
		err = m.mapError(err)
		return Artifact{}, err
	}
	fields["artifact_id"] = artifact.ID

	if m.notifier == nil {
		return artifact, nil
	}

	var ref MessageRef
	_, sendErr := RunWithRetry(ctx, func(ctx context.Context) error {
		posted, postErr := m.notifier.SendMessage(ctx, artifact.ChannelRef, renderReviewMessage(artifact))
		if postErr != nil {
			return postErr
		}
		ref = posted
		return nil
	}, m.retryOptions(nil))
	if sendErr != nil {
		artifact, err = m.freezeOnFailure(ctx, artifact, sendErr)
		return artifact, err
	}

	next := artifact
	next.ChannelRef.MessageID = ref.MessageID
	updated, casErr := m.store.CompareAndSwap(ctx, artifact.ID, artifact.Version, next)
	if casErr != nil {
		err = m.mapError(casErr)
		return artifact, err
	}
	return updated, nil
}

// Apply consumes one decoded action event and drives the artifact
// through at most one transition. Late or duplicate events resolve to
// an AlreadyFinalized outcome, never an error: the caller still needs
// something to tell the reviewer.
func (m *Machine) Apply(ctx context.Context, event ActionEvent) (outcome Outcome, err error) {
	if m == nil {
		return Outcome{}, fmt.Errorf("core: machine is nil")
	}
	startedAt := m.now()
	fields := map[string]any{
		"artifact_id": event.ArtifactID,
		"action":      string(event.Action),
		"actor_id":    event.ActorID,
	}
	defer func() {
		m.observeOperation(ctx, startedAt, "apply_"+string(event.Action), err, fields)
	}()

	if err = event.Validate(); err != nil {
		err = m.mapError(err)
		return Outcome{}, err
	}

	artifact, loadErr := m.store.Get(ctx, strings.TrimSpace(event.ArtifactID))
	if loadErr != nil {
		err = m.mapError(loadErr)
		return Outcome{}, err
	}

	if m.authorizer != nil && event.Action != ActionTimeoutElapsed {
		if authzErr := m.authorizer.Authorize(ctx, event.ActorID, artifact.ChannelRef); authzErr != nil {
			err = m.mapError(goerrors.Wrap(authzErr, goerrors.CategoryAuthz, "actor not allowed to review artifact").
				WithTextCode(ApprovalErrorAuthzDenied))
			return Outcome{}, err
		}
	}

	outcome, err = m.applyOnce(ctx, artifact, event)
	if err != nil && errors.Is(err, ErrVersionConflict) {
		// A concurrent writer won the version race. Re-read and
		// re-evaluate exactly once; a second conflict surfaces.
		artifact, loadErr = m.store.Get(ctx, strings.TrimSpace(event.ArtifactID))
		if loadErr != nil {
			err = m.mapError(loadErr)
			return Outcome{}, err
		}
		outcome, err = m.applyOnce(ctx, artifact, event)
	}
	if err != nil {
		err = m.mapError(err)
		return Outcome{}, err
	}
	fields["outcome"] = string(outcome.Kind)
	fields["status"] = string(outcome.Status)
	return outcome, nil
}

func (m *Machine) applyOnce(ctx context.Context, artifact Artifact, event ActionEvent) (Outcome, error) {
	finalized := artifact.Status.Terminal() && event.Action != ActionTimeoutElapsed
	if event.Action == ActionSubmitRevisionText && artifact.Status == ArtifactStatusRevisionRequested {
		// The revision prompt opens after the request-revision
		// transition, so its submission is still expected here.
		finalized = false
	}
	if finalized {
		return Outcome{
			Kind:     OutcomeAlreadyFinalized,
			Status:   artifact.Status,
			Artifact: artifact,
			Message:  fmt.Sprintf("This request was already %s.", humanStatus(artifact.Status)),
		}, nil
	}

	switch event.Action {
	case ActionApprove:
		return m.applyApprove(ctx, artifact, event)
	case ActionRequestRevision:
		return m.applyRequestRevision(ctx, artifact, event)
	case ActionSubmitRevisionText:
		return m.applySubmitRevisionText(ctx, artifact, event)
	case ActionCancel:
		return m.applyCancel(ctx, artifact, event)
	case ActionDeleteEntry:
		return m.applyEntryEdit(ctx, artifact, event, false)
	case ActionAddEntry:
		return m.applyEntryEdit(ctx, artifact, event, true)
	case ActionTimeoutElapsed:
		return m.applyTimeout(ctx, artifact, event)
	default:
		return Outcome{}, fmt.Errorf("core: unknown action type %q", string(event.Action))
	}
}

func (m *Machine) applyApprove(ctx context.Context, artifact Artifact, event ActionEvent) (Outcome, error) {
	now := m.now()
	next := artifact
	next.Reviewer = event.ActorID
	if err := next.TransitionTo(ArtifactStatusApproved, now); err != nil {
		return Outcome{}, err
	}

	updated, err := m.store.CompareAndSwap(ctx, artifact.ID, artifact.Version, next)
	if err != nil {
		return Outcome{}, err
	}

	if m.committer != nil {
		var result CommitResult
		_, commitErr := RunWithRetry(ctx, func(ctx context.Context) error {
			committed, callErr := m.committer.Commit(ctx, updated.Kind, updated.Payload)
			if callErr != nil {
				return callErr
			}
			result = committed
			return nil
		}, m.retryOptions(nil))
		if commitErr != nil {
			frozen, freezeErr := m.freezeOnFailure(ctx, updated, commitErr)
			return Outcome{Kind: OutcomeTransitioned, Status: frozen.Status, Artifact: frozen}, freezeErr
		}
		m.updateReviewMessage(ctx, updated, fmt.Sprintf("Approved and committed (%s).", result.ExternalRef))
	} else {
		m.updateReviewMessage(ctx, updated, "Approved.")
	}

	return Outcome{
		Kind:     OutcomeTransitioned,
		Status:   updated.Status,
		Artifact: updated,
		Message:  "Approved.",
	}, nil
}

func (m *Machine) applyRequestRevision(ctx context.Context, artifact Artifact, event ActionEvent) (Outcome, error) {
	now := m.now()
	next := artifact
	next.Reviewer = event.ActorID
	if err := next.TransitionTo(ArtifactStatusRevisionRequested, now); err != nil {
		return Outcome{}, err
	}

	updated, err := m.store.CompareAndSwap(ctx, artifact.ID, artifact.Version, next)
	if err != nil {
		return Outcome{}, err
	}

	if m.notifier != nil {
		_, promptErr := RunWithRetry(ctx, func(ctx context.Context) error {
			return m.notifier.OpenRevisionPrompt(ctx, updated.ChannelRef, updated.ID)
		}, m.retryOptions(nil))
		if promptErr != nil {
			frozen, freezeErr := m.freezeOnFailure(ctx, updated, promptErr)
			return Outcome{Kind: OutcomeTransitioned, Status: frozen.Status, Artifact: frozen}, freezeErr
		}
	}
	m.updateReviewMessage(ctx, updated, "Revision requested. Tell us what to change.")

	return Outcome{
		Kind:     OutcomeTransitioned,
		Status:   updated.Status,
		Artifact: updated,
		Message:  "Revision requested.",
	}, nil
}

// applySubmitRevisionText keeps the record pending: the instructions go
// to the regeneration producer, which re-enters the flow with a new
// draft. Only the revision history and reviewer change here.
func (m *Machine) applySubmitRevisionText(ctx context.Context, artifact Artifact, event ActionEvent) (Outcome, error) {
	instructions := strings.TrimSpace(event.RawText)
	if instructions == "" {
		return Outcome{
			Kind:     OutcomeValidationFailed,
			Status:   artifact.Status,
			Artifact: artifact,
			Message:  "Revision instructions cannot be empty.",
		}, nil
	}

	now := m.now()
	next := artifact
	next.Reviewer = event.ActorID
	next.RevisionHistory = append(append([]string(nil), artifact.RevisionHistory...), instructions)
	next.UpdatedAt = now

	updated, err := m.store.CompareAndSwap(ctx, artifact.ID, artifact.Version, next)
	if err != nil {
		return Outcome{}, err
	}

	if m.producer != nil {
		_, produceErr := RunWithRetry(ctx, func(ctx context.Context) error {
			return m.producer.Regenerate(ctx, updated, instructions)
		}, m.retryOptions(nil))
		if produceErr != nil {
			frozen, freezeErr := m.freezeOnFailure(ctx, updated, produceErr)
			return Outcome{Kind: OutcomeTransitioned, Status: frozen.Status, Artifact: frozen}, freezeErr
		}
	}
	m.updateReviewMessage(ctx, updated, "Revising. A new draft is on its way.")

	return Outcome{
		Kind:     OutcomeTransitioned,
		Status:   updated.Status,
		Artifact: updated,
		Message:  "Revising.",
	}, nil
}

func (m *Machine) applyCancel(ctx context.Context, artifact Artifact, event ActionEvent) (Outcome, error) {
	now := m.now()
	next := artifact
	next.Reviewer = event.ActorID
	if err := next.TransitionTo(ArtifactStatusCancelled, now); err != nil {
		return Outcome{}, err
	}
	updated, err := m.store.CompareAndSwap(ctx, artifact.ID, artifact.Version, next)
	if err != nil {
		return Outcome{}, err
	}
	m.updateReviewMessage(ctx, updated, "Cancelled. Nothing was committed.")
	return Outcome{
		Kind:     OutcomeTransitioned,
		Status:   updated.Status,
		Artifact: updated,
		Message:  "Cancelled.",
	}, nil
}

func (m *Machine) applyEntryEdit(ctx context.Context, artifact Artifact, event ActionEvent, add bool) (Outcome, error) {
	edited, editErr := editPayloadEntries(artifact.Payload, event.RawText, add)
	if editErr != nil {
		return Outcome{
			Kind:     OutcomeValidationFailed,
			Status:   artifact.Status,
			Artifact: artifact,
			Message:  editErr.Error(),
		}, nil
	}

	next := artifact
	next.Payload = edited
	next.UpdatedAt = m.now()
	updated, err := m.store.CompareAndSwap(ctx, artifact.ID, artifact.Version, next)
	if err != nil {
		return Outcome{}, err
	}
	m.updateReviewMessage(ctx, updated, renderReviewMessage(updated))
	return Outcome{
		Kind:     OutcomeTransitioned,
		Status:   updated.Status,
		Artifact: updated,
		Message:  "Updated.",
	}, nil
}

func (m *Machine) applyTimeout(ctx context.Context, artifact Artifact, event ActionEvent) (Outcome, error) {
	if artifact.Status != ArtifactStatusPending {
		return Outcome{
			Kind:     OutcomeNoop,
			Status:   artifact.Status,
			Artifact: artifact,
		}, nil
	}

	now := m.now()
	if !event.ReceivedAt.IsZero() {
		now = event.ReceivedAt
	}

	expired := artifact.ReminderCount >= m.config.MaxReminders
	if !artifact.ExpiresAt.IsZero() && !now.Before(artifact.ExpiresAt) {
		expired = true
	}
	if expired {
		next := artifact
		if err := next.TransitionTo(ArtifactStatusExpired, now); err != nil {
			return Outcome{}, err
		}
		updated, err := m.store.CompareAndSwap(ctx, artifact.ID, artifact.Version, next)
		if err != nil {
			return Outcome{}, err
		}
		m.updateReviewMessage(ctx, updated, "This request expired without a decision.")
		return Outcome{
			Kind:     OutcomeTransitioned,
			Status:   updated.Status,
			Artifact: updated,
			Message:  "Expired.",
		}, nil
	}

	next := artifact
	next.ReminderCount++
	next.LastNotifiedAt = now
	next.UpdatedAt = now
	updated, err := m.store.CompareAndSwap(ctx, artifact.ID, artifact.Version, next)
	if err != nil {
		return Outcome{}, err
	}

	if m.notifier != nil {
		_, sendErr := RunWithRetry(ctx, func(ctx context.Context) error {
			_, postErr := m.notifier.SendMessage(ctx, updated.ChannelRef, renderReminderMessage(updated, m.config.MaxReminders))
			return postErr
		}, m.retryOptions(nil))
		if sendErr != nil {
			frozen, freezeErr := m.freezeOnFailure(ctx, updated, sendErr)
			return Outcome{Kind: OutcomeTransitioned, Status: frozen.Status, Artifact: frozen}, freezeErr
		}
	}

	return Outcome{
		Kind:     OutcomeReminderSent,
		Status:   updated.Status,
		Artifact: updated,
		Message:  fmt.Sprintf("Reminder %d of %d sent.", updated.ReminderCount, m.config.MaxReminders),
	}, nil
}

// freezeOnFailure moves the artifact into the error state after a side
// effect exhausted its retries, then reports the failure on the review
// thread on a best-effort basis.
func (m *Machine) freezeOnFailure(ctx context.Context, artifact Artifact, cause error) (Artifact, error) {
	now := m.now()
	next := artifact
	if transitionErr := next.TransitionTo(ArtifactStatusError, now); transitionErr != nil {
		return artifact, m.mapError(cause)
	}

	frozen, casErr := m.store.CompareAndSwap(ctx, artifact.ID, artifact.Version, next)
	if casErr != nil {
		m.logError(ctx, "error freeze lost version race", map[string]any{
			"artifact_id": artifact.ID,
			"error":       casErr.Error(),
		})
		frozen = next
	}

	if m.notifier != nil {
		if _, notifyErr := m.notifier.SendMessage(ctx, frozen.ChannelRef,
			"Something went wrong handling this request. An operator needs to take a look."); notifyErr != nil {
			m.logError(ctx, "failure notification not delivered", map[string]any{
				"artifact_id": frozen.ID,
				"error":       notifyErr.Error(),
			})
		}
	}

	m.logError(ctx, "artifact frozen after retry exhaustion", map[string]any{
		"artifact_id": frozen.ID,
		"error":       cause.Error(),
	})
	return frozen, m.mapError(cause)
}

func (m *Machine) updateReviewMessage(ctx context.Context, artifact Artifact, content string) {
	if m.notifier == nil || strings.TrimSpace(artifact.ChannelRef.MessageID) == "" {
		return
	}
	ref := MessageRef{
		ChannelID: artifact.ChannelRef.ChannelID,
		MessageID: artifact.ChannelRef.MessageID,
	}
	if _, err := RunWithRetry(ctx, func(ctx context.Context) error {
		return m.notifier.UpdateMessage(ctx, ref, content)
	}, m.retryOptions(nil)); err != nil {
		m.logError(ctx, "review message update failed", map[string]any{
			"artifact_id": artifact.ID,
			"message_id":  ref.MessageID,
			"error":       err.Error(),
		})
	}
}

func (m *Machine) retryOptions(onExhausted func(ctx context.Context, attempts int, err error)) RetryOptions {
	return RetryOptions{
		MaxAttempts: m.config.Retry.MaxAttempts,
		Backoff:     m.backoff,
		OnExhausted: onExhausted,
	}
}

func humanStatus(status ArtifactStatus) string {
	switch status {
	case ArtifactStatusApproved:
		return "approved"
	case ArtifactStatusRevisionRequested:
		return "sent back for revision"
	case ArtifactStatusCancelled:
		return "cancelled"
	case ArtifactStatusExpired:
		return "expired"
	case ArtifactStatusError:
		return "frozen after an error"
	default:
		return string(status)
	}
}
