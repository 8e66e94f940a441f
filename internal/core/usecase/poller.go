package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/invoice-desk/internal/core/domain"
	"github.com/kirillkom/invoice-desk/internal/core/ports"
)

const (
	DefaultPollInterval    = 1 * time.Second
	DefaultPollMaxAttempts = 30
)

// PollPolicy is a fixed-interval, fixed-budget probe schedule.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Interval:    DefaultPollInterval,
		MaxAttempts: DefaultPollMaxAttempts,
	}
}

func (p PollPolicy) normalize() PollPolicy {
	out := p
	if out.Interval <= 0 {
		out.Interval = DefaultPollInterval
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = DefaultPollMaxAttempts
	}
	return out
}

// Waiter suspends the poll loop between probes.
type Waiter interface {
	Wait(ctx context.Context, d time.Duration) error
}

type timerWaiter struct{}

func (timerWaiter) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PollTask is one polling sequence, tagged with the document id and session
// generation it was started for.
type PollTask struct {
	id         string
	documentID string
	generation uint64

	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	err    error
	probes int
}

func newPollTask(documentID string, generation uint64) *PollTask {
	return &PollTask{
		id:         uuid.NewString(),
		documentID: documentID,
		generation: generation,
		done:       make(chan struct{}),
	}
}

func (t *PollTask) ID() string            { return t.id }
func (t *PollTask) DocumentID() string    { return t.documentID }
func (t *PollTask) Done() <-chan struct{} { return t.done }

func (t *PollTask) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Probes reports how many status fetches the task performed.
func (t *PollTask) Probes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.probes
}

func (t *PollTask) countProbe() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.probes++
	return t.probes
}

func (t *PollTask) finish(err error) {
	t.once.Do(func() {
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
		close(t.done)
	})
}

var _ ports.PollHandle = (*PollTask)(nil)

type PollingCoordinator struct {
	remote   ports.RecognitionService
	store    *Store
	recent   *RecentRefresher
	policy   PollPolicy
	waiter   Waiter
	journal  ports.ActionJournal
	observer ports.SessionObserver
	actorID  string
	logger   *slog.Logger
}

func NewPollingCoordinator(
	remote ports.RecognitionService,
	store *Store,
	recent *RecentRefresher,
	policy PollPolicy,
	waiter Waiter,
	journal ports.ActionJournal,
	observer ports.SessionObserver,
	actorID string,
	logger *slog.Logger,
) *PollingCoordinator {
	if waiter == nil {
		waiter = timerWaiter{}
	}
	return &PollingCoordinator{
		remote:   remote,
		store:    store,
		recent:   recent,
		policy:   policy.normalize(),
		waiter:   waiter,
		journal:  journal,
		observer: observer,
		actorID:  actorID,
		logger:   logger,
	}
}

func (p *PollingCoordinator) Policy() PollPolicy {
	return p.policy
}

// Run probes the remote status until a terminal outcome. release is the busy token
// of the upload that started the task; it is released exactly once on every path.
func (p *PollingCoordinator) Run(ctx context.Context, task *PollTask, release func()) {
	started := time.Now()
	var err error
	defer func() {
		release()
		task.finish(err)
	}()

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = p.abandon(task, ctxErr)
			return
		}

		attempt := task.countProbe()
		doc, fetchErr := p.remote.FetchDocument(ctx, task.documentID)
		if fetchErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = p.abandon(task, ctxErr)
				return
			}
			err = asTransport("fetch recognition result", fetchErr)
			p.fail(ctx, task, "transport", err, started)
			return
		}

		p.observer.ObserveProbe(doc.Status)
		p.logger.Debug("poll_probe",
			"task_id", task.id,
			"document_id", task.documentID,
			"attempt", attempt,
			"status", doc.Status,
		)

		switch {
		case doc.Status.RecognitionDone():
			p.succeed(ctx, task, doc, started)
			return
		case doc.Status == domain.StatusError:
			err = domain.WrapError(domain.ErrRecognitionFailed, "poll recognition", fmt.Errorf("document %s reported error status", task.documentID))
			p.fail(ctx, task, "remote_failure", err, started)
			return
		}

		if attempt >= p.policy.MaxAttempts {
			err = domain.WrapError(domain.ErrPollTimeout, "poll recognition", fmt.Errorf("no terminal status after %d probes", attempt))
			p.fail(ctx, task, "timeout", err, started)
			return
		}

		if waitErr := p.waiter.Wait(ctx, p.policy.Interval); waitErr != nil {
			err = p.abandon(task, waitErr)
			return
		}
	}
}

func (p *PollingCoordinator) succeed(ctx context.Context, task *PollTask, doc *domain.Document, started time.Time) {
	adopted := p.store.Adopt(task.generation, doc)
	p.observer.ObservePollOutcome("success", task.Probes(), time.Since(started).Seconds())
	p.logger.Info("poll_completed",
		"task_id", task.id,
		"document_id", task.documentID,
		"status", doc.Status,
		"probes", task.Probes(),
		"adopted", adopted,
	)
	if !adopted {
		return
	}
	record(ctx, p.journal, p.logger, domain.JournalEntry{
		DocumentID: task.documentID,
		Action:     domain.JournalPollSucceeded,
		ActorID:    p.actorID,
		Detail:     string(doc.Status),
	})
	_ = p.recent.Refresh(ctx)
}

func (p *PollingCoordinator) fail(ctx context.Context, task *PollTask, outcome string, err error, started time.Time) {
	surfaced := p.store.Fail(task.generation, err)
	p.observer.ObservePollOutcome(outcome, task.Probes(), time.Since(started).Seconds())
	p.logger.Warn("poll_failed",
		"task_id", task.id,
		"document_id", task.documentID,
		"outcome", outcome,
		"probes", task.Probes(),
		"surfaced", surfaced,
		"error", err,
	)
	if !surfaced {
		return
	}
	record(ctx, p.journal, p.logger, domain.JournalEntry{
		DocumentID: task.documentID,
		Action:     domain.JournalPollFailed,
		ActorID:    p.actorID,
		Detail:     err.Error(),
	})
}

// abandon ends a superseded or shut-down task without touching session state.
func (p *PollingCoordinator) abandon(task *PollTask, cause error) error {
	if !errors.Is(cause, context.Canceled) && !errors.Is(cause, context.DeadlineExceeded) {
		cause = fmt.Errorf("poll wait: %w", cause)
	}
	p.observer.ObservePollOutcome("abandoned", task.Probes(), 0)
	p.logger.Info("poll_abandoned", "task_id", task.id, "document_id", task.documentID, "probes", task.Probes())
	return cause
}

func asTransport(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTransport) {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return domain.WrapError(domain.ErrTransport, operation, err)
}
