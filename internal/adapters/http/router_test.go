package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/invoice-desk/internal/config"
	"github.com/kirillkom/invoice-desk/internal/core/domain"
	"github.com/kirillkom/invoice-desk/internal/core/ports"
	"github.com/kirillkom/invoice-desk/internal/observability/metrics"
)

type pollHandleFake struct {
	id         string
	documentID string
	done       chan struct{}
	err        error
}

func (h *pollHandleFake) ID() string            { return h.id }
func (h *pollHandleFake) DocumentID() string    { return h.documentID }
func (h *pollHandleFake) Done() <-chan struct{} { return h.done }
func (h *pollHandleFake) Err() error            { return h.err }

type deskFake struct {
	mu          sync.Mutex
	snapshot    domain.Snapshot
	canSubmit   bool
	uploaded    []*domain.LocalFile
	uploadErr   error
	pollErr     error
	corrections map[domain.FieldName]string
	correctErr  error
	submitErr   error
	submits     int
	refreshErr  error
}

func newDeskFake() *deskFake {
	return &deskFake{corrections: map[domain.FieldName]string{}}
}

func (d *deskFake) Snapshot() domain.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshot
}

func (d *deskFake) CanSubmit() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.canSubmit
}

func (d *deskFake) Upload(_ context.Context, file *domain.LocalFile) (ports.PollHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.uploadErr != nil {
		return nil, d.uploadErr
	}
	d.uploaded = append(d.uploaded, file)
	d.snapshot.Current = &domain.Document{ID: "42", Filename: file.Name, Status: domain.StatusUploaded}
	done := make(chan struct{})
	close(done)
	return &pollHandleFake{id: "task-1", documentID: "42", done: done, err: d.pollErr}, nil
}

func (d *deskFake) Correct(_ context.Context, field domain.FieldName, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.correctErr != nil {
		return d.correctErr
	}
	d.corrections[field] = value
	return nil
}

func (d *deskFake) Submit(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submits++
	return d.submitErr
}

func (d *deskFake) RefreshRecent(context.Context) error {
	return d.refreshErr
}

type journalReaderFake struct {
	entries []domain.JournalEntry
	err     error
	limit   int
}

func (j *journalReaderFake) ListByDocument(_ context.Context, _ string, limit int) ([]domain.JournalEntry, error) {
	j.limit = limit
	return j.entries, j.err
}

func fakeInspect(name string, content []byte) (*domain.LocalFile, error) {
	if len(content) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "inspect", errors.New("empty file"))
	}
	return &domain.LocalFile{Name: name, ContentType: "application/pdf", Size: int64(len(content)), Content: content}, nil
}

func newTestHandler(t *testing.T, cfg config.Config, desk *deskFake) http.Handler {
	t.Helper()
	return NewRouter(cfg, Dependencies{
		Desk:    desk,
		Inspect: fakeInspect,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}).Handler()
}

func multipartBody(t *testing.T, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &body, writer.FormDataContentType()
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, res.Body.String())
	}
}

func TestSessionViewEmbedsCatalogAndConfidence(t *testing.T) {
	desk := newDeskFake()
	desk.canSubmit = true
	desk.snapshot = domain.Snapshot{
		Generation: 3,
		Current: &domain.Document{
			ID:              "42",
			Filename:        "invoice.pdf",
			Status:          domain.StatusOCRProcessed,
			Fields:          map[domain.FieldName]string{domain.FieldTotalAmount: "1000"},
			ConfidenceScore: 0.5,
		},
		Recent: []domain.Document{{ID: "41", Status: domain.DocumentStatus("processing")}},
	}
	handler := newTestHandler(t, config.Config{}, desk)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/session", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	var view sessionView
	decodeBody(t, res, &view)
	if !view.CanSubmit || view.Generation != 3 {
		t.Fatalf("unexpected view %+v", view)
	}
	if view.Current.StatusColor != "#42a5f5" || view.Current.StatusLabel != "OCR completed" {
		t.Fatalf("unexpected presentation %+v", view.Current)
	}
	if view.Current.ConfidencePercent != 50 {
		t.Fatalf("expected 50%% confidence, got %v", view.Current.ConfidencePercent)
	}
	if len(view.Current.Fields) != len(domain.CorrectableFields) {
		t.Fatalf("expected every correctable field listed, got %d", len(view.Current.Fields))
	}
	if view.Recent[0].StatusColor != "#999999" || view.Recent[0].StatusLabel != "processing" {
		t.Fatalf("expected unknown status fallback, got %+v", view.Recent[0])
	}
}

func TestUploadStartsPolling(t *testing.T) {
	desk := newDeskFake()
	handler := newTestHandler(t, config.Config{MaxUploadMB: 1}, desk)

	body, contentType := multipartBody(t, "invoice.pdf", []byte("%PDF-1.4 test"))
	req := httptest.NewRequest(http.MethodPost, "/v1/session/upload", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	var resp struct {
		TaskID     string      `json:"task_id"`
		DocumentID string      `json:"document_id"`
		Session    sessionView `json:"session"`
	}
	decodeBody(t, res, &resp)
	if resp.TaskID != "task-1" || resp.DocumentID != "42" || resp.Session.Current == nil {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(desk.uploaded) != 1 || desk.uploaded[0].Name != "invoice.pdf" {
		t.Fatalf("expected uploaded file forwarded, got %+v", desk.uploaded)
	}
}

func TestUploadWaitReportsPollOutcome(t *testing.T) {
	desk := newDeskFake()
	desk.pollErr = domain.WrapError(domain.ErrPollTimeout, "poll", errors.New("30 probes"))
	handler := newTestHandler(t, config.Config{}, desk)

	body, contentType := multipartBody(t, "invoice.pdf", []byte("%PDF-1.4 test"))
	req := httptest.NewRequest(http.MethodPost, "/v1/session/upload?wait=true", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 after waiting, got %d", res.Code)
	}
	var resp map[string]any
	decodeBody(t, res, &resp)
	if !strings.Contains(resp["poll_error"].(string), "timed out") {
		t.Fatalf("expected poll timeout message, got %v", resp["poll_error"])
	}
}

func TestUploadRejectsMissingAndInvalidFiles(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, newDeskFake())

	req := httptest.NewRequest(http.MethodPost, "/v1/session/upload", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without file, got %d", res.Code)
	}

	body, contentType := multipartBody(t, "empty.pdf", nil)
	req = httptest.NewRequest(http.MethodPost, "/v1/session/upload", body)
	req.Header.Set("Content-Type", contentType)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty file, got %d", res.Code)
	}
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	handler := newTestHandler(t, config.Config{MaxUploadMB: 1}, newDeskFake())

	body, contentType := multipartBody(t, "big.pdf", bytes.Repeat([]byte{'a'}, (1<<20)+10))
	req := httptest.NewRequest(http.MethodPost, "/v1/session/upload", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", res.Code)
	}
}

func TestCorrectFieldForwardsValue(t *testing.T) {
	desk := newDeskFake()
	handler := newTestHandler(t, config.Config{}, desk)

	req := httptest.NewRequest(http.MethodPost, "/v1/session/fields/total_amount", strings.NewReader(`{"value":"1200"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if desk.corrections[domain.FieldTotalAmount] != "1200" {
		t.Fatalf("expected correction forwarded, got %+v", desk.corrections)
	}
}

func TestCorrectFieldErrors(t *testing.T) {
	cases := []struct {
		name   string
		path   string
		body   string
		err    error
		status int
	}{
		{name: "unknown field", path: "/v1/session/fields/iban", body: `{"value":"x"}`, status: http.StatusBadRequest},
		{name: "missing value", path: "/v1/session/fields/vat_amount", body: `{}`, status: http.StatusBadRequest},
		{name: "bad json", path: "/v1/session/fields/vat_amount", body: `{`, status: http.StatusBadRequest},
		{
			name:   "rejected",
			path:   "/v1/session/fields/vat_amount",
			body:   `{"value":"abc"}`,
			err:    domain.WrapError(domain.ErrValidationRejected, "validate", errors.New("not a number")),
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "transport",
			path:   "/v1/session/fields/vat_amount",
			body:   `{"value":"1"}`,
			err:    domain.WrapError(domain.ErrTransport, "validate", errors.New("connection refused")),
			status: http.StatusBadGateway,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			desk := newDeskFake()
			desk.correctErr = tc.err
			handler := newTestHandler(t, config.Config{}, desk)

			res := httptest.NewRecorder()
			handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body)))
			if res.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, res.Code, res.Body.String())
			}
		})
	}
}

func TestSubmitMapsRefusalToConflict(t *testing.T) {
	desk := newDeskFake()
	desk.submitErr = domain.WrapError(domain.ErrAlreadySubmitted, "submit", errors.New("document 42"))
	handler := newTestHandler(t, config.Config{}, desk)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/session/submit", nil))
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.Code)
	}
	var body map[string]string
	decodeBody(t, res, &body)
	if body["message"] != "Document was already sent to ERP" {
		t.Fatalf("unexpected advisory message %q", body["message"])
	}
}

func TestRefreshRecentMapsTransportFailure(t *testing.T) {
	desk := newDeskFake()
	desk.refreshErr = domain.WrapError(domain.ErrTransport, "list", domain.WrapError(domain.ErrTemporary, "list", errors.New("503")))
	handler := newTestHandler(t, config.Config{}, desk)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/session/recent/refresh", nil))
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for temporary failure, got %d", res.Code)
	}
}

func TestStatusCatalogListsSixStatuses(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, newDeskFake())

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/catalog/statuses", nil))
	var catalog []domain.StatusPresentation
	decodeBody(t, res, &catalog)
	if len(catalog) != 6 || catalog[0].Status != domain.StatusUploaded {
		t.Fatalf("unexpected catalog %+v", catalog)
	}
}

func TestJournalRoute(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, newDeskFake())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/journal/42", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when journal disabled, got %d", res.Code)
	}

	journal := &journalReaderFake{entries: []domain.JournalEntry{{ID: "e1", DocumentID: "42", Action: domain.JournalSubmissionAccepted, CreatedAt: time.Now()}}}
	handler = NewRouter(config.Config{}, Dependencies{
		Desk:    newDeskFake(),
		Inspect: fakeInspect,
		Journal: journal,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}).Handler()

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/journal/42?limit=5", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if journal.limit != 5 {
		t.Fatalf("expected limit 5 forwarded, got %d", journal.limit)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/journal/42?limit=-1", nil))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", res.Code)
	}
}

func TestHealthzReportsBreakers(t *testing.T) {
	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	handler := NewRouter(config.Config{}, Dependencies{
		Desk:     newDeskFake(),
		Inspect:  fakeInspect,
		Breakers: func() map[string]string { return map[string]string{"ocrapi.results": "open"} },
		Metrics:  httpMetrics,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var body struct {
		Status   string            `json:"status"`
		Breakers map[string]string `json:"breakers"`
	}
	decodeBody(t, res, &body)
	if body.Status != "degraded" || body.Breakers["ocrapi.results"] != "open" {
		t.Fatalf("unexpected health %+v", body)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), "invoicedesk_http_requests_total") {
		t.Fatalf("expected metrics exposition, got %d", res.Code)
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := map[error]int{
		domain.ErrInvalidInput:       http.StatusBadRequest,
		domain.ErrDocumentNotFound:   http.StatusNotFound,
		domain.ErrBusy:               http.StatusConflict,
		domain.ErrSubmissionRejected: http.StatusUnprocessableEntity,
		domain.ErrPollTimeout:        http.StatusGatewayTimeout,
		domain.ErrRecognitionFailed:  http.StatusBadGateway,
		errors.New("boom"):           http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := mapErrorToHTTPStatus(domain.WrapError(err, "op", errors.New("x"))); got != want {
			t.Fatalf("%v: expected %d, got %d", err, want, got)
		}
	}
}
