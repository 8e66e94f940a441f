package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kirillkom/invoice-desk/internal/core/domain"
	"github.com/kirillkom/invoice-desk/internal/core/ports"
)

const submissionNotice = "Invoice sent to ERP"

// SubmissionGate forwards the current document to bookkeeping at most once per
// confirmed operator action.
type SubmissionGate struct {
	remote   ports.RecognitionService
	store    *Store
	recent   *RecentRefresher
	journal  ports.ActionJournal
	observer ports.SessionObserver
	actorID  string
	logger   *slog.Logger

	mu        sync.Mutex
	inFlight  bool
	submitted map[string]bool
}

func NewSubmissionGate(
	remote ports.RecognitionService,
	store *Store,
	recent *RecentRefresher,
	journal ports.ActionJournal,
	observer ports.SessionObserver,
	actorID string,
	logger *slog.Logger,
) *SubmissionGate {
	return &SubmissionGate{
		remote:    remote,
		store:     store,
		recent:    recent,
		journal:   journal,
		observer:  observer,
		actorID:   actorID,
		logger:    logger,
		submitted: make(map[string]bool),
	}
}

func (g *SubmissionGate) CanSubmit(snap domain.Snapshot) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return snap.Current != nil && g.refusalLocked(snap) == nil
}

func (g *SubmissionGate) refusalLocked(snap domain.Snapshot) error {
	doc := snap.Current
	switch {
	case doc.Status.Submitted() || g.submitted[doc.ID]:
		return domain.WrapError(domain.ErrAlreadySubmitted, "submit to bookkeeping", fmt.Errorf("document %s status %s", doc.ID, doc.Status))
	case g.inFlight || snap.Busy:
		return domain.WrapError(domain.ErrBusy, "submit to bookkeeping", errors.New("operation in progress"))
	case !doc.Status.RecognitionDone():
		return domain.WrapError(domain.ErrInvalidInput, "submit to bookkeeping", fmt.Errorf("document %s is not recognized yet (status %s)", doc.ID, doc.Status))
	default:
		return nil
	}
}

// Submit is a no-op without a current document. Refused submissions make no remote
// call; failed ones leave the status unchanged so the operator can retry.
func (g *SubmissionGate) Submit(ctx context.Context) error {
	g.mu.Lock()
	snap := g.store.Snapshot()
	doc := snap.Current
	if doc == nil {
		g.mu.Unlock()
		return nil
	}
	if refusal := g.refusalLocked(snap); refusal != nil {
		g.mu.Unlock()
		g.observer.ObserveSubmission("refused")
		g.logger.Info("submission_refused", "document_id", doc.ID, "status", doc.Status, "reason", refusal)
		if domain.IsKind(refusal, domain.ErrAlreadySubmitted) {
			record(ctx, g.journal, g.logger, domain.JournalEntry{
				DocumentID: doc.ID,
				Action:     domain.JournalSubmissionDuplicate,
				ActorID:    g.actorID,
				Detail:     refusal.Error(),
			})
		}
		return refusal
	}
	g.inFlight = true
	g.mu.Unlock()

	release := g.store.AcquireBusy()
	defer func() {
		g.mu.Lock()
		g.inFlight = false
		g.mu.Unlock()
		release()
	}()

	receipt, err := g.remote.SubmitToBookkeeping(ctx, doc.ID, domain.ActionCreate)
	if err != nil {
		if !domain.IsKind(err, domain.ErrSubmissionRejected) {
			err = asTransport("submit to bookkeeping", err)
		}
		g.store.SetError(err)
		g.observer.ObserveSubmission("failed")
		g.logger.Warn("submission_failed", "document_id", doc.ID, "error", err)
		record(ctx, g.journal, g.logger, domain.JournalEntry{
			DocumentID: doc.ID,
			Action:     domain.JournalSubmissionRejected,
			ActorID:    g.actorID,
			Detail:     err.Error(),
		})
		return err
	}

	g.mu.Lock()
	g.submitted[doc.ID] = true
	g.mu.Unlock()

	g.store.Notify(submissionNotice)
	g.observer.ObserveSubmission("accepted")
	detail := ""
	if receipt != nil {
		detail = receipt.Message
	}
	g.logger.Info("submission_accepted", "document_id", doc.ID, "detail", detail)
	record(ctx, g.journal, g.logger, domain.JournalEntry{
		DocumentID: doc.ID,
		Action:     domain.JournalSubmissionAccepted,
		ActorID:    g.actorID,
		Detail:     detail,
	})

	if fresh, err := g.remote.FetchDocument(ctx, doc.ID); err != nil {
		g.logger.Warn("submission_refetch_failed", "document_id", doc.ID, "error", err)
	} else {
		g.store.Adopt(snap.Generation, fresh)
	}
	_ = g.recent.Refresh(ctx)
	return nil
}
