package ports

import (
	"context"

	"github.com/kirillkom/invoice-desk/internal/core/domain"
)

// PollHandle is the asynchronous recognition wait started by an upload.
type PollHandle interface {
	ID() string
	DocumentID() string
	Done() <-chan struct{}
	Err() error
}

// InvoiceDesk is the inbound contract of the operator session.
type InvoiceDesk interface {
	Snapshot() domain.Snapshot
	Upload(ctx context.Context, file *domain.LocalFile) (PollHandle, error)
	Correct(ctx context.Context, field domain.FieldName, value string) error
	Submit(ctx context.Context) error
	RefreshRecent(ctx context.Context) error
	CanSubmit() bool
}
