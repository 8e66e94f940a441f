package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/invoice-desk/internal/core/domain"
	"github.com/kirillkom/invoice-desk/internal/core/ports"
)

const DefaultRecentLimit = 10

// RecentRefresher reloads the recent-documents cache wholesale from the remote side.
type RecentRefresher struct {
	remote ports.RecognitionService
	store  *Store
	limit  int
	logger *slog.Logger
}

func NewRecentRefresher(remote ports.RecognitionService, store *Store, limit int, logger *slog.Logger) *RecentRefresher {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return &RecentRefresher{remote: remote, store: store, limit: limit, logger: logger}
}

// Refresh failures are logged and returned but never surfaced in the session.
func (r *RecentRefresher) Refresh(ctx context.Context) error {
	docs, err := r.remote.ListRecent(ctx, r.limit)
	if err != nil {
		err = asTransport("list recent documents", err)
		r.logger.Warn("recent_refresh_failed", "limit", r.limit, "error", err)
		return err
	}
	r.store.ReplaceRecent(docs)
	return nil
}

func record(ctx context.Context, journal ports.ActionJournal, logger *slog.Logger, entry domain.JournalEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := journal.Record(ctx, entry); err != nil {
		logger.Warn("journal_record_failed",
			"document_id", entry.DocumentID,
			"action", entry.Action,
			"error", err,
		)
	}
}

type nopJournal struct{}

func (nopJournal) Record(context.Context, domain.JournalEntry) error { return nil }

type nopObserver struct{}

func (nopObserver) ObserveProbe(domain.DocumentStatus)      {}
func (nopObserver) ObservePollOutcome(string, int, float64) {}
func (nopObserver) ObserveCorrection(string)                {}
func (nopObserver) ObserveSubmission(string)                {}
func (nopObserver) SetBusy(bool)                            {}
