package ocrapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/invoice-desk/internal/core/domain"
)

// wireID accepts both numeric and string identifiers.
type wireID string

func (id *wireID) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if bytes.Equal(raw, []byte("null")) {
		*id = ""
		return nil
	}
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*id = wireID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	*id = wireID(n.String())
	return nil
}

// wireValue keeps a field as text whether the remote sent a number or a string.
type wireValue struct {
	set  bool
	text string
}

func (v *wireValue) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if bytes.Equal(raw, []byte("null")) {
		*v = wireValue{}
		return nil
	}
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*v = wireValue{set: true, text: s}
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("decode field value: %w", err)
	}
	*v = wireValue{set: true, text: strconv.FormatFloat(f, 'f', -1, 64)}
	return nil
}

type invoiceWire struct {
	ID               wireID    `json:"id"`
	Filename         string    `json:"filename"`
	FileType         string    `json:"file_type"`
	Status           string    `json:"status"`
	InvoiceNumber    wireValue `json:"invoice_number"`
	InvoiceDate      wireValue `json:"invoice_date"`
	CompanyName      wireValue `json:"company_name"`
	CompanyTaxNumber wireValue `json:"company_tax_number"`
	TotalAmount      wireValue `json:"total_amount"`
	VATAmount        wireValue `json:"vat_amount"`
	NetAmount        wireValue `json:"net_amount"`
	Currency         string    `json:"currency"`
	ConfidenceScore  float64   `json:"confidence_score"`
	CreatedAt        string    `json:"created_at"`
}

func (w invoiceWire) toDomain() *domain.Document {
	doc := &domain.Document{
		ID:              string(w.ID),
		Filename:        w.Filename,
		FileType:        w.FileType,
		Status:          domain.DocumentStatus(strings.TrimSpace(w.Status)),
		Fields:          make(map[domain.FieldName]string, len(domain.CorrectableFields)),
		Currency:        w.Currency,
		ConfidenceScore: w.ConfidenceScore,
		CreatedAt:       parseWireTime(w.CreatedAt),
	}
	put := func(name domain.FieldName, v wireValue) {
		if v.set {
			doc.Fields[name] = v.text
		}
	}
	put(domain.FieldInvoiceNumber, w.InvoiceNumber)
	put(domain.FieldInvoiceDate, wireValue{set: w.InvoiceDate.set, text: trimMidnight(w.InvoiceDate.text)})
	put(domain.FieldCompanyName, w.CompanyName)
	put(domain.FieldTaxNumber, w.CompanyTaxNumber)
	put(domain.FieldTotalAmount, w.TotalAmount)
	put(domain.FieldVATAmount, w.VATAmount)
	put(domain.FieldNetAmount, w.NetAmount)
	return doc
}

var wireTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseWireTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range wireTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// trimMidnight renders a date-only timestamp as a plain date.
func trimMidnight(raw string) string {
	if len(raw) < 10 {
		return raw
	}
	rest := raw[10:]
	for _, prefix := range []string{"T00:00:00", " 00:00:00"} {
		if strings.HasPrefix(rest, prefix) && strings.Trim(strings.TrimPrefix(rest, prefix), ".0Z") == "" {
			return raw[:10]
		}
	}
	return raw
}

type correctionWire struct {
	FieldName      string `json:"field_name"`
	CorrectedValue string `json:"corrected_value"`
	UserID         string `json:"user_id"`
}

type bookkeepingWire struct {
	InvoiceID any    `json:"invoice_id"`
	Action    string `json:"action"`
}

// wireDocumentID sends numeric ids as JSON numbers, which the remote expects.
func wireDocumentID(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

type bookkeepingReplyWire struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	ERPID   string `json:"erp_id"`
	Error   string `json:"error"`
}

type messageWire struct {
	Message string `json:"message"`
}
