package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/invoice-desk/internal/core/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type correctionCall struct {
	id    string
	field domain.FieldName
	value string
	actor string
}

// remoteFake scripts the recognition service. fetches are served from statuses in
// order; the last entry repeats.
type remoteFake struct {
	mu sync.Mutex

	stored       *domain.Document
	storedByName map[string]*domain.Document
	storeErr     error
	storeGate    chan struct{}
	storeSeen    chan string
	beginErr     error
	beginCalls   []string
	storedFiles  []domain.LocalFile

	docs        map[string]*domain.Document
	statuses    []domain.DocumentStatus
	fetchErrAt  int
	fetchErr    error
	fetchCalls  int
	fetchHook   func(call int)
	blockFetch  chan struct{}
	listErr     error
	listCalls   int
	recent      []domain.Document
	correctErr  error
	corrections []correctionCall
	onCorrect   func(doc *domain.Document, field domain.FieldName, value string)
	correctHook func(value string)
	submitErr   error
	submitCalls []string
	onSubmit    func(doc *domain.Document)
}

func newRemoteFake(id string) *remoteFake {
	return &remoteFake{
		stored: &domain.Document{ID: id, Filename: "invoice.pdf", Status: domain.StatusUploaded},
		docs: map[string]*domain.Document{
			id: {ID: id, Filename: "invoice.pdf", Status: domain.StatusUploaded, Fields: map[domain.FieldName]string{}},
		},
	}
}

func (f *remoteFake) ListRecent(_ context.Context, limit int) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Document, 0, len(f.docs))
	for _, doc := range f.docs {
		out = append(out, *doc.Clone())
	}
	if len(f.recent) > 0 {
		out = append([]domain.Document{}, f.recent...)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *remoteFake) StoreFile(_ context.Context, file domain.LocalFile) (*domain.Document, error) {
	f.mu.Lock()
	gate, seen := f.storeGate, f.storeSeen
	f.mu.Unlock()
	if seen != nil {
		seen <- file.Name
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.storedFiles = append(f.storedFiles, file)
	if f.storeErr != nil {
		return nil, f.storeErr
	}
	if doc, ok := f.storedByName[file.Name]; ok {
		return doc.Clone(), nil
	}
	return f.stored.Clone(), nil
}

func (f *remoteFake) BeginRecognition(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beginCalls = append(f.beginCalls, id)
	return f.beginErr
}

func (f *remoteFake) FetchDocument(ctx context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	f.fetchCalls++
	call := f.fetchCalls
	hook := f.fetchHook
	block := f.blockFetch
	f.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil && (f.fetchErrAt == 0 || f.fetchErrAt == call) {
		return nil, f.fetchErr
	}
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "fetch", errors.New(id))
	}
	if len(f.statuses) > 0 {
		idx := call - 1
		if idx >= len(f.statuses) {
			idx = len(f.statuses) - 1
		}
		doc.Status = f.statuses[idx]
	}
	return doc.Clone(), nil
}

func (f *remoteFake) SubmitCorrection(_ context.Context, id string, field domain.FieldName, value, actor string) error {
	f.mu.Lock()
	hook := f.correctHook
	f.mu.Unlock()
	if hook != nil {
		hook(value)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.corrections = append(f.corrections, correctionCall{id: id, field: field, value: value, actor: actor})
	if f.correctErr != nil {
		return f.correctErr
	}
	doc := f.docs[id]
	doc.Fields[field] = value
	if f.onCorrect != nil {
		f.onCorrect(doc, field, value)
	}
	return nil
}

func (f *remoteFake) SubmitToBookkeeping(_ context.Context, id string, _ domain.BookkeepingAction) (*domain.SubmissionReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls = append(f.submitCalls, id)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	if f.onSubmit != nil {
		f.onSubmit(f.docs[id])
	}
	return &domain.SubmissionReceipt{DocumentID: id, Message: "ERP send started"}, nil
}

func (f *remoteFake) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

// waiterFake returns immediately and records the requested waits.
type waiterFake struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (w *waiterFake) Wait(ctx context.Context, d time.Duration) error {
	w.mu.Lock()
	w.waits = append(w.waits, d)
	w.mu.Unlock()
	return ctx.Err()
}

func (w *waiterFake) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.waits)
}

type journalFake struct {
	mu      sync.Mutex
	entries []domain.JournalEntry
	err     error
}

func (f *journalFake) Record(_ context.Context, entry domain.JournalEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return f.err
}

func (f *journalFake) actions() []domain.JournalAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.JournalAction, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.Action)
	}
	return out
}

// busyTracker records every busy transition the store publishes.
type busyTracker struct {
	mu     sync.Mutex
	states []bool
}

func (b *busyTracker) listen(snap domain.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.states) == 0 || b.states[len(b.states)-1] != snap.Busy {
		b.states = append(b.states, snap.Busy)
	}
}

func (b *busyTracker) transitions() []bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]bool{}, b.states...)
}

func newTestSession(remote *remoteFake, waiter Waiter, journal *journalFake) *Session {
	deps := SessionDeps{
		Remote:  remote,
		Waiter:  waiter,
		Policy:  DefaultPollPolicy(),
		ActorID: "admin",
		Logger:  discardLogger(),
	}
	if journal != nil {
		deps.Journal = journal
	}
	return NewSession(deps)
}

func pdfFile(name string) *domain.LocalFile {
	return &domain.LocalFile{Name: name, ContentType: "application/pdf", Content: []byte("%PDF-1.4"), Size: 8, Pages: 1}
}

func waitTask(t interface {
	Helper()
	Fatalf(string, ...any)
}, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for poll task")
	}
}
