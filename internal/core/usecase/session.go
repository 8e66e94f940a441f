package usecase

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kirillkom/invoice-desk/internal/core/domain"
	"github.com/kirillkom/invoice-desk/internal/core/ports"
)

type SessionDeps struct {
	Remote      ports.RecognitionService
	Journal     ports.ActionJournal
	Observer    ports.SessionObserver
	Waiter      Waiter
	Policy      PollPolicy
	ActorID     string
	RecentLimit int
	Logger      *slog.Logger
}

// Session is the single controller of one operator session. It owns the store and is
// the only caller of its transition functions.
type Session struct {
	store       *Store
	initiator   *Initiator
	poller      *PollingCoordinator
	corrections *CorrectionUseCase
	gate        *SubmissionGate
	recent      *RecentRefresher
	logger      *slog.Logger

	root       context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup

	mu           sync.Mutex
	active       *PollTask
	activeCancel context.CancelFunc
}

func NewSession(deps SessionDeps) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	journal := deps.Journal
	if journal == nil {
		journal = nopJournal{}
	}
	observer := deps.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	actorID := deps.ActorID
	if actorID == "" {
		actorID = "admin"
	}

	store := NewStore(logger)
	store.Subscribe(func(snap domain.Snapshot) {
		observer.SetBusy(snap.Busy)
	})
	recent := NewRecentRefresher(deps.Remote, store, deps.RecentLimit, logger)
	root, cancel := context.WithCancel(context.Background())

	return &Session{
		store:       store,
		initiator:   NewInitiator(deps.Remote, logger),
		poller:      NewPollingCoordinator(deps.Remote, store, recent, deps.Policy, deps.Waiter, journal, observer, actorID, logger),
		corrections: NewCorrectionUseCase(deps.Remote, store, recent, journal, observer, actorID, logger),
		gate:        NewSubmissionGate(deps.Remote, store, recent, journal, observer, actorID, logger),
		recent:      recent,
		logger:      logger,
		root:        root,
		rootCancel:  cancel,
	}
}

// Subscribe registers a read-only renderer or publisher.
func (s *Session) Subscribe(fn func(domain.Snapshot)) {
	s.store.Subscribe(fn)
}

// Start loads the initial recent-documents list. A failure is logged, not fatal.
func (s *Session) Start(ctx context.Context) {
	_ = s.recent.Refresh(ctx)
}

func (s *Session) Snapshot() domain.Snapshot {
	return s.store.Snapshot()
}

func (s *Session) CanSubmit() bool {
	return s.gate.CanSubmit(s.store.Snapshot())
}

func (s *Session) PollPolicy() PollPolicy {
	return s.poller.Policy()
}

// Upload stores the file, starts recognition and hands the document to a new polling
// task. The task for an older upload keeps running until the new document has been
// stored and made current; it is cancelled at that point.
func (s *Session) Upload(ctx context.Context, file *domain.LocalFile) (ports.PollHandle, error) {
	if err := ValidateLocalFile(file); err != nil {
		s.store.SetError(err)
		return nil, err
	}

	release := s.store.AcquireBusy()
	s.store.ClearMessages()

	doc, err := s.initiator.Initiate(ctx, file)
	if doc == nil {
		s.store.SetError(err)
		release()
		return nil, err
	}

	var task *PollTask
	var taskCtx context.Context
	var cancel context.CancelFunc

	// Generation bump and task swap happen together, so the installed task always
	// belongs to the newest generation and at most one task polls.
	s.mu.Lock()
	gen := s.store.BeginSession(doc)
	s.supersedeLocked()
	if err == nil {
		task = newPollTask(doc.ID, gen)
		taskCtx, cancel = context.WithCancel(s.root)
		s.active = task
		s.activeCancel = cancel
	}
	s.mu.Unlock()

	if err != nil {
		s.store.Fail(gen, err)
		release()
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.poller.Run(taskCtx, task, release)
	}()

	s.logger.Info("poll_started",
		"task_id", task.ID(),
		"document_id", doc.ID,
		"generation", gen,
		"interval", s.poller.Policy().Interval,
		"max_attempts", s.poller.Policy().MaxAttempts,
	)
	return task, nil
}

func (s *Session) Correct(ctx context.Context, field domain.FieldName, value string) error {
	return s.corrections.Correct(ctx, field, value)
}

func (s *Session) Submit(ctx context.Context) error {
	return s.gate.Submit(ctx)
}

func (s *Session) RefreshRecent(ctx context.Context) error {
	return s.recent.Refresh(ctx)
}

// Close cancels in-flight polling and waits for it to release its busy token.
func (s *Session) Close() {
	s.rootCancel()
	s.wg.Wait()
}

// supersedeLocked cancels the running task. s.mu must be held.
func (s *Session) supersedeLocked() {
	if s.activeCancel == nil {
		return
	}
	s.activeCancel()
	select {
	case <-s.active.Done():
	default:
		s.logger.Info("poll_superseded", "task_id", s.active.ID(), "document_id", s.active.DocumentID())
	}
	s.active = nil
	s.activeCancel = nil
}

var _ ports.InvoiceDesk = (*Session)(nil)
