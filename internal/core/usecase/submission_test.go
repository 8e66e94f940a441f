package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/invoice-desk/internal/core/domain"
)

type submissionHarness struct {
	remote  *remoteFake
	store   *Store
	journal *journalFake
	gate    *SubmissionGate
	busy    *busyTracker
}

func newSubmissionHarness(current *domain.Document) *submissionHarness {
	remote := newRemoteFake("42")
	if current != nil {
		remote.docs[current.ID] = current.Clone()
	}
	logger := discardLogger()
	store := NewStore(logger)
	if current != nil {
		store.BeginSession(current)
	}
	busy := &busyTracker{}
	store.Subscribe(busy.listen)
	journal := &journalFake{}
	recent := NewRecentRefresher(remote, store, 10, logger)
	gate := NewSubmissionGate(remote, store, recent, journal, nopObserver{}, "admin", logger)
	return &submissionHarness{remote: remote, store: store, journal: journal, gate: gate, busy: busy}
}

func TestSubmitOnceThenRefuse(t *testing.T) {
	h := newSubmissionHarness(recognized())
	h.remote.onSubmit = func(doc *domain.Document) {
		doc.Status = domain.StatusSentToERP
	}

	if !h.gate.CanSubmit(h.store.Snapshot()) {
		t.Fatalf("expected submit allowed")
	}
	if err := h.gate.Submit(context.Background()); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	snap := h.store.Snapshot()
	if snap.Notice != "Invoice sent to ERP" {
		t.Fatalf("unexpected notice %q", snap.Notice)
	}
	if snap.Current.Status != domain.StatusSentToERP {
		t.Fatalf("expected sent_to_erp adopted, got %s", snap.Current.Status)
	}
	if snap.Busy {
		t.Fatalf("expected busy released")
	}

	err := h.gate.Submit(context.Background())
	if !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
	if len(h.remote.submitCalls) != 1 {
		t.Fatalf("expected exactly one remote submission, got %d", len(h.remote.submitCalls))
	}
	if h.gate.CanSubmit(h.store.Snapshot()) {
		t.Fatalf("expected submit disallowed after success")
	}
	want := []domain.JournalAction{domain.JournalSubmissionAccepted, domain.JournalSubmissionDuplicate}
	got := h.journal.actions()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected journal %v, got %v", want, got)
	}
}

func TestSubmitLatchHoldsWhenRemoteStatusLags(t *testing.T) {
	h := newSubmissionHarness(recognized())

	if err := h.gate.Submit(context.Background()); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if h.store.Snapshot().Current.Status != domain.StatusOCRProcessed {
		t.Fatalf("expected remote status still ocr_processed")
	}
	if err := h.gate.Submit(context.Background()); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
	if len(h.remote.submitCalls) != 1 {
		t.Fatalf("expected one remote submission, got %d", len(h.remote.submitCalls))
	}
}

func TestSubmitFailurePermitsRetry(t *testing.T) {
	h := newSubmissionHarness(recognized())
	h.remote.submitErr = domain.WrapError(domain.ErrSubmissionRejected, "erp send", errors.New("ERP unavailable"))

	err := h.gate.Submit(context.Background())
	if !errors.Is(err, domain.ErrSubmissionRejected) {
		t.Fatalf("expected ErrSubmissionRejected, got %v", err)
	}
	snap := h.store.Snapshot()
	if snap.Error == "" {
		t.Fatalf("expected surfaced error")
	}
	if snap.Current.Status != domain.StatusOCRProcessed {
		t.Fatalf("expected status unchanged, got %s", snap.Current.Status)
	}
	if snap.Busy {
		t.Fatalf("expected busy released")
	}

	h.remote.submitErr = nil
	if err := h.gate.Submit(context.Background()); err != nil {
		t.Fatalf("retry Submit() error = %v", err)
	}
	if len(h.remote.submitCalls) != 2 {
		t.Fatalf("expected two remote submissions, got %d", len(h.remote.submitCalls))
	}
	if h.store.Snapshot().Error != "" {
		t.Fatalf("expected error cleared by success notice")
	}
}

func TestSubmitTransportFailureIsWrapped(t *testing.T) {
	h := newSubmissionHarness(recognized())
	h.remote.submitErr = errors.New("connection refused")

	if err := h.gate.Submit(context.Background()); !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestSubmitRefusedBeforeRecognition(t *testing.T) {
	h := newSubmissionHarness(&domain.Document{ID: "42", Status: domain.StatusUploaded})

	if h.gate.CanSubmit(h.store.Snapshot()) {
		t.Fatalf("expected submit disallowed")
	}
	if err := h.gate.Submit(context.Background()); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if len(h.remote.submitCalls) != 0 {
		t.Fatalf("expected no remote call")
	}
}

func TestSubmitRefusedWhileBusy(t *testing.T) {
	h := newSubmissionHarness(recognized())
	release := h.store.AcquireBusy()
	defer release()

	if err := h.gate.Submit(context.Background()); !errors.Is(err, domain.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if len(h.remote.submitCalls) != 0 {
		t.Fatalf("expected no remote call")
	}
}

func TestSubmitRefusedForAlreadySentStatus(t *testing.T) {
	h := newSubmissionHarness(&domain.Document{ID: "42", Status: domain.StatusERPConfirmed})

	if err := h.gate.Submit(context.Background()); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
}

func TestSubmitWithoutCurrentDocumentIsNoop(t *testing.T) {
	h := newSubmissionHarness(nil)

	if err := h.gate.Submit(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if h.gate.CanSubmit(h.store.Snapshot()) {
		t.Fatalf("expected submit disallowed")
	}
	if len(h.remote.submitCalls) != 0 || len(h.busy.transitions()) != 0 {
		t.Fatalf("expected no remote call and no busy change")
	}
}
