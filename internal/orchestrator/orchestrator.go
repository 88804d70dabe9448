// Package orchestrator runs paid generations: reserve credits, track the
// task, call the image provider and settle the outcome. A non-success
// outcome refunds the reservation before Run returns unless the ledger
// fails, in which case the task stays open for the watchdog.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"bananabot/internal/domain"
	"bananabot/internal/ledger"
	"bananabot/internal/metrics"
	"bananabot/internal/providers/image"
	"bananabot/internal/storage"
)

const (
	// DefaultTimeout bounds one provider call. It must stay below the
	// watchdog staleness threshold.
	DefaultTimeout = 4 * time.Minute
	// MaxDiagnostic caps the failure detail shown to users, in runes.
	MaxDiagnostic = 100
)

// ArtifactStore persists artifact bytes under a key and reads them back
// when a stored artifact becomes the input of an edit.
type ArtifactStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	Read(ctx context.Context, key string) ([]byte, error)
}

// LinkSigner publishes a stored artifact under a URL providers can fetch.
type LinkSigner interface {
	URL(key string) string
}

// Dispatch is announced after the reservation succeeds and before the
// provider is called.
type Dispatch struct {
	TaskID   string
	UserID   int64
	Cost     int64
	Tier     domain.Tier
	Advisory bool
}

// Request is one paid generation.
type Request struct {
	UserID int64
	domain.GenerationParams
	// OnDispatch, when set, is called synchronously before the provider call.
	OnDispatch func(Dispatch)
}

// Deps are the collaborators of an Orchestrator. Artifacts and Links are
// optional; without Links stored inputs are passed to providers as bytes only.
type Deps struct {
	Ledger    ledger.Store
	Tasks     domain.TaskRepository
	Records   domain.RecordRepository
	Generator image.Generator
	Artifacts ArtifactStore
	Links     LinkSigner
	Logger    zerolog.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithTimeout sets the hard ceiling of a provider call.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSaveBackoff sets the retry schedule for persisting records.
func WithSaveBackoff(b func() retry.Backoff) Option {
	return func(o *Orchestrator) {
		if b != nil {
			o.saveBackoff = b
		}
	}
}

type Orchestrator struct {
	ledger      ledger.Store
	tasks       domain.TaskRepository
	records     domain.RecordRepository
	generator   image.Generator
	artifacts   ArtifactStore
	links       LinkSigner
	logger      zerolog.Logger
	timeout     time.Duration
	now         func() time.Time
	saveBackoff func() retry.Backoff
}

func New(deps Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		ledger:    deps.Ledger,
		tasks:     deps.Tasks,
		records:   deps.Records,
		generator: deps.Generator,
		artifacts: deps.Artifacts,
		links:     deps.Links,
		logger:    deps.Logger.With().Str("component", "orchestrator").Logger(),
		timeout:   DefaultTimeout,
		now:       func() time.Time { return time.Now().UTC() },
		saveBackoff: func() retry.Backoff {
			return retry.WithMaxRetries(3, retry.NewExponential(100*time.Millisecond))
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Timeout returns the provider call ceiling.
func (o *Orchestrator) Timeout() time.Duration { return o.timeout }

// NeedsAdvisory reports whether a run should carry the multi-reference
// quality advisory: standard tier with two or more input images.
func NeedsAdvisory(p domain.GenerationParams) bool {
	return p.Tier == domain.TierStandard && len(domain.NormalizeRefs(p.InputRefs)) >= 2
}

// Run executes one paid generation. The returned error is non-nil only when
// nothing was charged: invalid parameters, an unreadable stored input or a
// failing ledger.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Outcome, error) {
	params := req.GenerationParams
	cost := params.Cost
	params.Normalize()
	params.Cost = cost
	if err := params.Validate(); err != nil {
		return nil, err
	}
	inputs, err := o.inputs(ctx, params.InputRefs)
	if err != nil {
		return nil, err
	}
	log := o.logger.With().Int64("user_id", req.UserID).Str("tier", string(params.Tier)).Logger()

	if err := o.ledger.Reserve(ctx, req.UserID, params.Cost); err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			balance, _ := o.ledger.Balance(ctx, req.UserID)
			metrics.GenerationsTotal.WithLabelValues(string(params.Tier), InsufficientBalance{}.Kind()).Inc()
			return InsufficientBalance{Required: params.Cost, Balance: balance}, nil
		}
		return nil, fmt.Errorf("reserve credits: %w", err)
	}

	task := &domain.Task{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Cost:      params.Cost,
		Status:    domain.TaskStatusProcessing,
		CreatedAt: o.now(),
	}
	log = log.With().Str("task_id", task.ID).Logger()
	if err := o.tasks.Open(ctx, task); err != nil {
		log.Error().Err(err).Msg("orchestrator: open task failed")
		var refunded int64
		if o.refund(ctx, log, req.UserID, params.Cost, "task_open") {
			refunded = params.Cost
		}
		return o.finish(params, TransientFailure{TaskID: task.ID, Diagnostic: truncate(err.Error()), Refunded: refunded}), nil
	}

	if req.OnDispatch != nil {
		req.OnDispatch(Dispatch{
			TaskID:   task.ID,
			UserID:   req.UserID,
			Cost:     params.Cost,
			Tier:     params.Tier,
			Advisory: NeedsAdvisory(params),
		})
	}

	art, err := o.generate(ctx, log, task.ID, params, inputs)
	switch {
	case err == nil && !art.Empty():
		return o.finish(params, o.succeed(ctx, log, req.UserID, task, params, art)), nil
	case err == nil || errors.Is(err, image.ErrRejected):
		reason := "empty result"
		if err != nil {
			reason = err.Error()
		}
		log.Info().Str("reason", reason).Msg("orchestrator: provider rejected request")
		refunded := o.settle(ctx, log, task, "rejected")
		return o.finish(params, ProviderRejected{TaskID: task.ID, Reason: truncate(reason), Refunded: refunded}), nil
	default:
		log.Warn().Err(err).Msg("orchestrator: provider call failed")
		refunded := o.settle(ctx, log, task, "transient")
		return o.finish(params, TransientFailure{TaskID: task.ID, Diagnostic: truncate(err.Error()), Refunded: refunded}), nil
	}
}

// Reroll runs the stored parameters of a record owned by user again. It is
// charged like any other run.
func (o *Orchestrator) Reroll(ctx context.Context, userID int64, recordID string, onDispatch func(Dispatch)) (Outcome, error) {
	rec, err := o.Record(ctx, userID, recordID)
	if err != nil {
		return nil, err
	}
	return o.Run(ctx, Request{UserID: userID, GenerationParams: rec.Params, OnDispatch: onDispatch})
}

// Record loads a record owned by userID.
func (o *Orchestrator) Record(ctx context.Context, userID int64, recordID string) (*domain.GenerationRecord, error) {
	rec, err := o.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return rec, nil
}

// inputs resolves references for providers. Stored artifacts are read back
// as bytes and, when a signer is configured, also published as URLs.
func (o *Orchestrator) inputs(ctx context.Context, refs []string) ([]image.Input, error) {
	out := make([]image.Input, 0, len(refs))
	for _, ref := range refs {
		if !storage.IsArtifactKey(ref) {
			out = append(out, image.Input{Ref: ref, URL: ref})
			continue
		}
		if o.artifacts == nil {
			return nil, fmt.Errorf("%w: stored input %s", domain.ErrNotFound, ref)
		}
		data, err := o.artifacts.Read(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("read stored input: %w", err)
		}
		in := image.Input{Ref: ref, Data: data, MIME: http.DetectContentType(data)}
		if o.links != nil {
			in.URL = o.links.URL(ref)
		}
		out = append(out, in)
	}
	return out, nil
}

func (o *Orchestrator) generate(ctx context.Context, log zerolog.Logger, taskID string, params domain.GenerationParams, inputs []image.Input) (image.Artifact, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	art, err := o.generator.Generate(callCtx, image.Request{
		Prompt:     params.Prompt,
		Inputs:     inputs,
		Tier:       params.Tier,
		Ratio:      params.Ratio,
		Resolution: params.Resolution,
		RequestID:  taskID,
	})
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("provider timed out after %s: %w", o.timeout, err)
	}
	provider := o.generator.Name()
	if art.Provider != "" {
		provider = art.Provider
	}
	metrics.ProviderDuration.WithLabelValues(provider, metrics.Result(err)).Observe(time.Since(start).Seconds())
	log.Debug().Str("provider", provider).Dur("took", time.Since(start)).Msg("orchestrator: provider returned")
	return art, err
}

func (o *Orchestrator) succeed(ctx context.Context, log zerolog.Logger, userID int64, task *domain.Task, params domain.GenerationParams, art image.Artifact) Success {
	persistCtx := context.WithoutCancel(ctx)
	rec := domain.GenerationRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		Params:    params,
		SourceURL: art.SourceURL,
		CreatedAt: o.now(),
	}
	if o.artifacts != nil && len(art.Data) > 0 {
		key, err := o.artifacts.Write(persistCtx, storage.ArtifactKey(userID, rec.ID, art.MIME), art.Data)
		if err != nil {
			log.Error().Err(err).Msg("orchestrator: store artifact failed")
		}
		rec.ArtifactKey = key
	}
	if err := o.saveRecord(persistCtx, &rec); err != nil {
		log.Error().Err(err).
			Str("record_id", rec.ID).
			Str("prompt", rec.Params.Prompt).
			Strs("input_refs", rec.Params.InputRefs).
			Str("tier", string(rec.Params.Tier)).
			Str("ratio", rec.Params.Ratio).
			Str("resolution", rec.Params.Resolution).
			Str("artifact_key", rec.ArtifactKey).
			Str("source_url", rec.SourceURL).
			Msg("orchestrator: save record failed; replay disabled for this result")
		rec.ID = ""
	}
	won, err := o.tasks.Transition(persistCtx, task.ID, domain.TaskStatusCompleted)
	switch {
	case err != nil:
		log.Error().Err(err).Msg("orchestrator: complete task failed")
	case !won:
		log.Warn().Msg("orchestrator: task settled elsewhere before completion")
	}
	log.Info().Str("record_id", rec.ID).Msg("orchestrator: generation succeeded")
	return Success{TaskID: task.ID, Record: rec, Artifact: art}
}

// saveRecord persists rec, retrying transient failures.
func (o *Orchestrator) saveRecord(ctx context.Context, rec *domain.GenerationRecord) error {
	return retry.Do(ctx, o.saveBackoff(), func(ctx context.Context) error {
		if err := o.records.Save(ctx, rec); err != nil {
			if errors.Is(err, domain.ErrInvalidInput) {
				return err
			}
			return retry.RetryableError(err)
		}
		return nil
	})
}

// settle claims the task for refunding and returns the credits. It reports
// the amount actually returned: zero when the task was settled elsewhere or
// the refund is left to the watchdog, which retries tasks stuck in refunding
// or processing.
func (o *Orchestrator) settle(ctx context.Context, log zerolog.Logger, task *domain.Task, reason string) int64 {
	persistCtx := context.WithoutCancel(ctx)
	won, err := o.tasks.Transition(persistCtx, task.ID, domain.TaskStatusRefunding)
	if err != nil {
		metrics.RefundFailures.WithLabelValues("orchestrator").Inc()
		log.Error().Err(err).Msg("orchestrator: refund claim failed; leaving task to the watchdog")
		return 0
	}
	if !won {
		log.Warn().Msg("orchestrator: task already settled; skipping refund")
		return 0
	}
	if !o.refund(persistCtx, log, task.UserID, task.Cost, reason) {
		return 0
	}
	if _, err := o.tasks.Transition(persistCtx, task.ID, domain.TaskStatusRefunded); err != nil {
		log.Error().Err(err).Int64("amount", task.Cost).Msg("orchestrator: refund landed but task not marked refunded")
	}
	return task.Cost
}

// refund returns amount to the user and reports whether the ledger took it.
func (o *Orchestrator) refund(ctx context.Context, log zerolog.Logger, userID, amount int64, reason string) bool {
	balance, err := o.ledger.Refund(context.WithoutCancel(ctx), userID, amount)
	if err != nil {
		metrics.RefundFailures.WithLabelValues("orchestrator").Inc()
		log.Error().Err(err).Int64("amount", amount).Msg("orchestrator: refund failed")
		return false
	}
	metrics.RefundedCredits.WithLabelValues(reason).Add(float64(amount))
	log.Info().Int64("amount", amount).Int64("balance", balance).Str("reason", reason).Msg("orchestrator: credits refunded")
	return true
}

func (o *Orchestrator) finish(params domain.GenerationParams, out Outcome) Outcome {
	metrics.GenerationsTotal.WithLabelValues(string(params.Tier), out.Kind()).Inc()
	return out
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= MaxDiagnostic {
		return s
	}
	r := []rune(s)
	return string(r[:MaxDiagnostic])
}
