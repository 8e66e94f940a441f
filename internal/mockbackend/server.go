// Package mockbackend is an in-memory recognition service and bookkeeping endpoint
// speaking the same HTTP contract as the real backend. It serves local runs and
// end-to-end tests.
package mockbackend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	DefaultFirstID       = 42
	DefaultReadyAfter    = 5
	maxUploadBytes       = 20 << 20
	processingStatus     = "processing"
	defaultListLimit     = 100
	erpIDPrefix          = "WLX_"
	failingFilenameToken = "corrupt"
)

var allowedContentTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/jpg":       true,
	"application/pdf": true,
}

var amountFields = map[string]bool{
	"total_amount": true,
	"vat_amount":   true,
	"net_amount":   true,
}

// Recognized is what a finished recognition fills in. Amounts are kept as numbers on
// the wire, like the real backend does.
type Recognized struct {
	InvoiceNumber    string
	InvoiceDate      string
	CompanyName      string
	CompanyTaxNumber string
	TotalAmount      float64
	VATAmount        float64
	NetAmount        float64
	Currency         string
	Confidence       float64
}

func DefaultRecognized() Recognized {
	return Recognized{
		InvoiceNumber:    "INV-2024-001",
		InvoiceDate:      "2024-03-01",
		CompanyName:      "Acme Ltd",
		CompanyTaxNumber: "1234567890",
		TotalAmount:      1000,
		VATAmount:        166.67,
		NetAmount:        833.33,
		Currency:         "TRY",
		Confidence:       0.87,
	}
}

type Options struct {
	FirstID int
	// ReadyAfter is the result fetch, counted from the process call, that first sees the
	// recognized record. Earlier fetches report "processing".
	ReadyAfter int
	Recognized *Recognized
	Logger     *slog.Logger
}

type invoice struct {
	ID               int      `json:"id"`
	Filename         string   `json:"filename"`
	FileType         string   `json:"file_type"`
	Status           string   `json:"status"`
	InvoiceNumber    *string  `json:"invoice_number"`
	InvoiceDate      *string  `json:"invoice_date"`
	CompanyName      *string  `json:"company_name"`
	CompanyTaxNumber *string  `json:"company_tax_number"`
	TotalAmount      *float64 `json:"total_amount"`
	VATAmount        *float64 `json:"vat_amount"`
	NetAmount        *float64 `json:"net_amount"`
	Currency         *string  `json:"currency"`
	ConfidenceScore  *float64 `json:"confidence_score"`
	CreatedAt        string   `json:"created_at"`
	ERPID            *string  `json:"erp_id,omitempty"`

	processing bool
	fetches    int
}

// Server is safe for concurrent use.
type Server struct {
	readyAfter int
	recognized Recognized
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	nextID   int
	invoices map[int]*invoice
	fetched  map[int]int
	erpCalls int
}

func New(options Options) *Server {
	firstID := options.FirstID
	if firstID <= 0 {
		firstID = DefaultFirstID
	}
	readyAfter := options.ReadyAfter
	if readyAfter <= 0 {
		readyAfter = DefaultReadyAfter
	}
	recognized := DefaultRecognized()
	if options.Recognized != nil {
		recognized = *options.Recognized
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		readyAfter: readyAfter,
		recognized: recognized,
		logger:     logger,
		now:        time.Now,
		nextID:     firstID,
		invoices:   make(map[int]*invoice),
		fetched:    make(map[int]int),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /invoices", s.listInvoices)
	mux.HandleFunc("POST /upload", s.upload)
	mux.HandleFunc("POST /process/{id}", s.process)
	mux.HandleFunc("GET /results/{id}", s.results)
	mux.HandleFunc("POST /validate/{id}", s.validate)
	mux.HandleFunc("POST /erp/send/{id}", s.sendToERP)
	return mux
}

// ResultFetches reports how many result fetches a document has seen.
func (s *Server) ResultFetches(id int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetched[id]
}

// ERPCalls reports how many bookkeeping submissions reached the server.
func (s *Server) ERPCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.erpCalls
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) listInvoices(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeDetail(w, http.StatusUnprocessableEntity, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	s.mu.Lock()
	ids := make([]int, 0, len(s.invoices))
	for id := range s.invoices {
		ids = append(ids, id)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ids)))
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]invoice, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.invoices[id])
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !allowedContentTypes[contentType] {
		writeDetail(w, http.StatusBadRequest, "Unsupported file format: "+contentType)
		return
	}
	if _, err := io.Copy(io.Discard, file); err != nil {
		writeDetail(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}

	extension := ""
	if i := strings.LastIndex(header.Filename, "."); i >= 0 {
		extension = strings.ToLower(header.Filename[i+1:])
	}

	s.mu.Lock()
	inv := &invoice{
		ID:        s.nextID,
		Filename:  header.Filename,
		FileType:  extension,
		Status:    "uploaded",
		CreatedAt: s.now().UTC().Format("2006-01-02T15:04:05.000000"),
	}
	s.invoices[inv.ID] = inv
	s.nextID++
	snapshot := *inv
	s.mu.Unlock()

	s.logger.Info("mock_upload", "invoice_id", snapshot.ID, "filename", snapshot.Filename)
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) process(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	inv, ok := s.lookupLocked(r)
	if !ok {
		s.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "Invoice not found")
		return
	}
	inv.processing = true
	inv.fetches = 0
	id := inv.ID
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"message": "Processing started", "invoice_id": id})
}

func (s *Server) results(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	inv, ok := s.lookupLocked(r)
	if !ok {
		s.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "Invoice not found")
		return
	}
	s.fetched[inv.ID]++
	if inv.processing {
		inv.fetches++
		if inv.fetches >= s.readyAfter {
			s.finishRecognitionLocked(inv)
		} else {
			inv.Status = processingStatus
		}
	}
	snapshot := *inv
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) finishRecognitionLocked(inv *invoice) {
	inv.processing = false
	if strings.Contains(strings.ToLower(inv.Filename), failingFilenameToken) {
		inv.Status = "error"
		return
	}
	rec := s.recognized
	inv.Status = "ocr_processed"
	inv.InvoiceNumber = strPtr(rec.InvoiceNumber)
	inv.InvoiceDate = strPtr(rec.InvoiceDate)
	inv.CompanyName = strPtr(rec.CompanyName)
	inv.CompanyTaxNumber = strPtr(rec.CompanyTaxNumber)
	inv.TotalAmount = floatPtr(rec.TotalAmount)
	inv.VATAmount = floatPtr(rec.VATAmount)
	inv.NetAmount = floatPtr(rec.NetAmount)
	inv.Currency = strPtr(rec.Currency)
	inv.ConfidenceScore = floatPtr(rec.Confidence)
}

func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FieldName      string `json:"field_name"`
		CorrectedValue string `json:"corrected_value"`
		UserID         string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid json body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.lookupLocked(r)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Invoice not found")
		return
	}
	if err := applyCorrection(inv, req.FieldName, req.CorrectedValue); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	if inv.Status == "ocr_processed" {
		inv.Status = "validated"
	}
	s.logger.Info("mock_validate", "invoice_id", inv.ID, "field", req.FieldName, "user_id", req.UserID)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Field validated",
		"field":   req.FieldName,
		"value":   req.CorrectedValue,
	})
}

// applyCorrection normalizes amounts and keeps net = total - vat when either side of
// that relation is corrected.
func applyCorrection(inv *invoice, field, value string) error {
	value = strings.TrimSpace(value)
	if amountFields[field] {
		amount, err := parseAmount(value)
		if err != nil {
			return fmt.Errorf("field %s expects an amount: %w", field, err)
		}
		switch field {
		case "total_amount":
			inv.TotalAmount = floatPtr(amount)
			if inv.VATAmount != nil {
				inv.NetAmount = floatPtr(round2(amount - *inv.VATAmount))
			}
		case "vat_amount":
			inv.VATAmount = floatPtr(amount)
			if inv.TotalAmount != nil {
				inv.NetAmount = floatPtr(round2(*inv.TotalAmount - amount))
			}
		case "net_amount":
			inv.NetAmount = floatPtr(amount)
		}
		return nil
	}

	switch field {
	case "invoice_number":
		inv.InvoiceNumber = strPtr(value)
	case "invoice_date":
		if _, err := time.Parse("2006-01-02", value); err != nil {
			return errors.New("field invoice_date expects YYYY-MM-DD")
		}
		inv.InvoiceDate = strPtr(value)
	case "company_name":
		inv.CompanyName = strPtr(value)
	case "company_tax_number":
		inv.CompanyTaxNumber = strPtr(value)
	default:
		return fmt.Errorf("field %s not found", field)
	}
	return nil
}

func (s *Server) sendToERP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InvoiceID any    `json:"invoice_id"`
		Action    string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid json body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.erpCalls++
	inv, ok := s.lookupLocked(r)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Invoice not found")
		return
	}
	if inv.Status == "sent_to_erp" || inv.Status == "erp_confirmed" {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   "Invoice already exists in ERP",
		})
		return
	}

	erpID := fmt.Sprintf("%s%05d", erpIDPrefix, 10000+inv.ID)
	inv.Status = "sent_to_erp"
	inv.ERPID = strPtr(erpID)
	s.logger.Info("mock_erp_send", "invoice_id", inv.ID, "action", req.Action, "erp_id", erpID)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "ERP send started",
		"invoice_id": inv.ID,
		"erp_id":     erpID,
	})
}

func (s *Server) lookupLocked(r *http.Request) (*invoice, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		return nil, false
	}
	inv, ok := s.invoices[id]
	return inv, ok
}

func parseAmount(raw string) (float64, error) {
	cleaned := strings.ReplaceAll(raw, " ", "")
	if strings.Count(cleaned, ",") == 1 && !strings.Contains(cleaned, ".") {
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	} else {
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", raw)
	}
	return round2(amount), nil
}

func round2(v float64) float64 {
	f, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	return f
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
