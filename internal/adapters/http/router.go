package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/invoice-desk/internal/config"
	"github.com/kirillkom/invoice-desk/internal/core/domain"
	"github.com/kirillkom/invoice-desk/internal/core/ports"
	"github.com/kirillkom/invoice-desk/internal/observability/metrics"
)

const (
	serviceName         = "invoice-desk"
	maxInFlightRequests = 16
	maxQueueWait        = 2 * time.Second
	multipartOverhead   = 1 << 20
	defaultJournalLimit = 50
)

// InspectFunc turns uploaded bytes into a pre-validated local file.
type InspectFunc func(name string, content []byte) (*domain.LocalFile, error)

type Dependencies struct {
	Desk    ports.InvoiceDesk
	Inspect InspectFunc
	// Journal is nil when the diagnostics journal is disabled.
	Journal  ports.JournalReader
	Breakers func() map[string]string
	Metrics  *metrics.HTTPServerMetrics
	Logger   *slog.Logger
}

type Router struct {
	cfg  config.Config
	deps Dependencies
}

func NewRouter(cfg config.Config, deps Dependencies) *Router {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Router{cfg: cfg, deps: deps}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.deps.Metrics != nil {
		mux.Handle("GET /metrics", rt.deps.Metrics.Handler())
	}
	mux.HandleFunc("GET /v1/catalog/statuses", rt.statusCatalog)
	mux.HandleFunc("GET /v1/session", rt.session)
	mux.HandleFunc("POST /v1/session/upload", rt.upload)
	mux.HandleFunc("POST /v1/session/fields/{field}", rt.correctField)
	mux.HandleFunc("POST /v1/session/submit", rt.submit)
	mux.HandleFunc("POST /v1/session/recent/refresh", rt.refreshRecent)
	mux.HandleFunc("GET /v1/journal/{documentID}", rt.journal)

	var onLimited func(string)
	if rt.deps.Metrics != nil {
		onLimited = func(path string) { rt.deps.Metrics.RecordRateLimited(serviceName, path) }
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, maxInFlightRequests, maxQueueWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, onLimited)
	if rt.deps.Metrics != nil {
		handler = rt.deps.Metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(rt.deps.Logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	breakers := map[string]string{}
	if rt.deps.Breakers != nil {
		breakers = rt.deps.Breakers()
	}
	for _, state := range breakers {
		if state != "closed" {
			status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "breakers": breakers})
}

func (rt *Router) statusCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, domain.StatusCatalog())
}

func (rt *Router) session(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rt.view())
}

func (rt *Router) view() sessionView {
	return newSessionView(rt.deps.Desk.Snapshot(), rt.deps.Desk.CanSubmit())
}

// upload accepts multipart field "file". With ?wait=true the response is held until
// the polling task started by the upload finishes or the client goes away.
func (rt *Router) upload(w http.ResponseWriter, r *http.Request) {
	maxBytes := rt.cfg.MaxUploadBytes()
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	}

	part, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "file is too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer part.Close()

	content, err := io.ReadAll(part)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read uploaded file"})
		return
	}
	if maxBytes > 0 && int64(len(content)) > maxBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "file is too large"})
		return
	}

	file, err := rt.deps.Inspect(header.Filename, content)
	if err != nil {
		writeError(w, err)
		return
	}

	handle, err := rt.deps.Desk.Upload(r.Context(), file)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]any{
		"task_id":     handle.ID(),
		"document_id": handle.DocumentID(),
	}
	status := http.StatusAccepted
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		select {
		case <-handle.Done():
			status = http.StatusOK
			if pollErr := handle.Err(); pollErr != nil {
				resp["poll_error"] = domain.UserMessage(pollErr)
			}
		case <-r.Context().Done():
			return
		}
	}
	resp["session"] = rt.view()
	writeJSON(w, status, resp)
}

func (rt *Router) correctField(w http.ResponseWriter, r *http.Request) {
	field, err := domain.ParseFieldName(r.PathValue("field"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Value *string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Value == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "value is required"})
		return
	}

	if err := rt.deps.Desk.Correct(r.Context(), field, *req.Value); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rt.view())
}

func (rt *Router) submit(w http.ResponseWriter, r *http.Request) {
	if err := rt.deps.Desk.Submit(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rt.view())
}

func (rt *Router) refreshRecent(w http.ResponseWriter, r *http.Request) {
	if err := rt.deps.Desk.RefreshRecent(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rt.view())
}

func (rt *Router) journal(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Journal == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "diagnostics journal is disabled"})
		return
	}
	documentID := strings.TrimSpace(r.PathValue("documentID"))
	if documentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}
	limit := defaultJournalLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	entries, err := rt.deps.Journal.ListByDocument(r.Context(), documentID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": documentID, "entries": entries})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
