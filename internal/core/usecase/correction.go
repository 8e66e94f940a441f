package usecase

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kirillkom/invoice-desk/internal/core/domain"
	"github.com/kirillkom/invoice-desk/internal/core/ports"
)

// CorrectionUseCase submits operator corrections one at a time and re-synchronizes
// the current document from the remote side after each accepted one.
type CorrectionUseCase struct {
	remote   ports.RecognitionService
	store    *Store
	recent   *RecentRefresher
	journal  ports.ActionJournal
	observer ports.SessionObserver
	actorID  string
	logger   *slog.Logger

	mu sync.Mutex
}

func NewCorrectionUseCase(
	remote ports.RecognitionService,
	store *Store,
	recent *RecentRefresher,
	journal ports.ActionJournal,
	observer ports.SessionObserver,
	actorID string,
	logger *slog.Logger,
) *CorrectionUseCase {
	return &CorrectionUseCase{
		remote:   remote,
		store:    store,
		recent:   recent,
		journal:  journal,
		observer: observer,
		actorID:  actorID,
		logger:   logger,
	}
}

// Correct never sets the session error: a rejected correction leaves the view as it
// was and is only logged and journaled. The returned error lets callers tell.
func (uc *CorrectionUseCase) Correct(ctx context.Context, field domain.FieldName, value string) error {
	name, err := domain.ParseFieldName(string(field))
	if err != nil {
		return err
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()

	snap := uc.store.Snapshot()
	current := snap.Current
	if current == nil {
		return nil
	}
	if current.Field(name) == value {
		return nil
	}

	if err := uc.remote.SubmitCorrection(ctx, current.ID, name, value, uc.actorID); err != nil {
		if !domain.IsKind(err, domain.ErrValidationRejected) {
			err = asTransport("submit correction", err)
		}
		uc.observer.ObserveCorrection("rejected")
		uc.logger.Warn("correction_rejected",
			"document_id", current.ID,
			"field", name,
			"error", err,
		)
		record(ctx, uc.journal, uc.logger, domain.JournalEntry{
			DocumentID: current.ID,
			Action:     domain.JournalCorrectionRejected,
			ActorID:    uc.actorID,
			Field:      string(name),
			Value:      value,
			Detail:     err.Error(),
		})
		return err
	}

	record(ctx, uc.journal, uc.logger, domain.JournalEntry{
		DocumentID: current.ID,
		Action:     domain.JournalCorrectionAccepted,
		ActorID:    uc.actorID,
		Field:      string(name),
		Value:      value,
	})

	fresh, err := uc.remote.FetchDocument(ctx, current.ID)
	if err != nil {
		err = asTransport("refetch corrected document", err)
		uc.observer.ObserveCorrection("refetch_failed")
		uc.logger.Warn("correction_refetch_failed", "document_id", current.ID, "field", name, "error", err)
		return err
	}

	adopted := uc.store.Adopt(snap.Generation, fresh)
	uc.observer.ObserveCorrection("accepted")
	uc.logger.Info("correction_accepted",
		"document_id", current.ID,
		"field", name,
		"status", fresh.Status,
		"adopted", adopted,
	)
	_ = uc.recent.Refresh(ctx)
	return nil
}
