package ports

import (
	"context"

	"github.com/kirillkom/invoice-desk/internal/core/domain"
)

// RecognitionService is the remote collaborator that stores files, runs recognition,
// records corrections and forwards documents to bookkeeping.
type RecognitionService interface {
	ListRecent(ctx context.Context, limit int) ([]domain.Document, error)
	StoreFile(ctx context.Context, file domain.LocalFile) (*domain.Document, error)
	BeginRecognition(ctx context.Context, documentID string) error
	FetchDocument(ctx context.Context, documentID string) (*domain.Document, error)
	SubmitCorrection(ctx context.Context, documentID string, field domain.FieldName, value, actorID string) error
	SubmitToBookkeeping(ctx context.Context, documentID string, action domain.BookkeepingAction) (*domain.SubmissionReceipt, error)
}

// FilePicker loads and pre-validates a file chosen by the operator.
type FilePicker interface {
	Pick(ctx context.Context, path string) (*domain.LocalFile, error)
}

// StatePublisher fans session snapshots out to read-only subscribers.
type StatePublisher interface {
	PublishState(ctx context.Context, snapshot domain.Snapshot) error
}

// StateSubscriber receives published session snapshots.
type StateSubscriber interface {
	SubscribeState(ctx context.Context, handler func(context.Context, domain.Snapshot) error) error
}

// ActionJournal appends operator action outcomes for diagnostics.
type ActionJournal interface {
	Record(ctx context.Context, entry domain.JournalEntry) error
}

// SessionObserver receives telemetry about the orchestration state machine.
type SessionObserver interface {
	ObserveProbe(status domain.DocumentStatus)
	ObservePollOutcome(outcome string, probes int, elapsedSeconds float64)
	ObserveCorrection(outcome string)
	ObserveSubmission(outcome string)
	SetBusy(busy bool)
}

// JournalReader lists journaled actions for one document, newest first.
type JournalReader interface {
	ListByDocument(ctx context.Context, documentID string, limit int) ([]domain.JournalEntry, error)
}
