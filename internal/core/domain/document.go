package domain

import (
	"fmt"
	"strings"
	"time"
)

type DocumentStatus string

const (
	StatusUploaded     DocumentStatus = "uploaded"
	StatusOCRProcessed DocumentStatus = "ocr_processed"
	StatusValidated    DocumentStatus = "validated"
	StatusSentToERP    DocumentStatus = "sent_to_erp"
	StatusERPConfirmed DocumentStatus = "erp_confirmed"
	StatusError        DocumentStatus = "error"
)

// Rank orders the forward lifecycle. Unknown in-progress values (e.g. "processing")
// rank with uploaded; error ranks above everything since it is terminal on the client.
func (s DocumentStatus) Rank() int {
	switch s {
	case StatusOCRProcessed:
		return 1
	case StatusValidated:
		return 2
	case StatusSentToERP:
		return 3
	case StatusERPConfirmed:
		return 4
	case StatusError:
		return 5
	default:
		return 0
	}
}

// RecognitionDone reports whether the remote recognizer has produced a usable record.
func (s DocumentStatus) RecognitionDone() bool {
	return s == StatusOCRProcessed || s == StatusValidated
}

// Submitted reports whether the document has already been handed to bookkeeping.
func (s DocumentStatus) Submitted() bool {
	return s == StatusSentToERP || s == StatusERPConfirmed
}

type FieldName string

const (
	FieldInvoiceNumber FieldName = "invoice_number"
	FieldInvoiceDate   FieldName = "invoice_date"
	FieldCompanyName   FieldName = "company_name"
	FieldTaxNumber     FieldName = "company_tax_number"
	FieldTotalAmount   FieldName = "total_amount"
	FieldVATAmount     FieldName = "vat_amount"
	FieldNetAmount     FieldName = "net_amount"
)

// CorrectableFields lists the extracted fields in display order.
var CorrectableFields = []FieldName{
	FieldInvoiceNumber,
	FieldInvoiceDate,
	FieldCompanyName,
	FieldTaxNumber,
	FieldTotalAmount,
	FieldVATAmount,
	FieldNetAmount,
}

func ParseFieldName(raw string) (FieldName, error) {
	name := FieldName(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range CorrectableFields {
		if name == known {
			return name, nil
		}
	}
	return "", WrapError(ErrInvalidInput, "parse field name", fmt.Errorf("unknown field %q", raw))
}

type Document struct {
	ID              string               `json:"id"`
	Filename        string               `json:"filename"`
	FileType        string               `json:"file_type,omitempty"`
	Status          DocumentStatus       `json:"status"`
	Fields          map[FieldName]string `json:"extracted_fields"`
	Currency        string               `json:"currency,omitempty"`
	ConfidenceScore float64              `json:"confidence_score"`
	CreatedAt       time.Time            `json:"created_at"`
}

func (d *Document) Field(name FieldName) string {
	if d == nil || d.Fields == nil {
		return ""
	}
	return d.Fields[name]
}

// ConfidencePercent renders the recognizer's self-reported certainty, clamped to [0,100].
func (d *Document) ConfidencePercent() float64 {
	if d == nil {
		return 0
	}
	score := d.ConfidenceScore
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score * 100
}

func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	out.Fields = make(map[FieldName]string, len(d.Fields))
	for k, v := range d.Fields {
		out.Fields[k] = v
	}
	return &out
}

// LocalFile is a file picked by the operator, not yet sent anywhere.
type LocalFile struct {
	Name        string
	ContentType string
	Size        int64
	Pages       int
	Content     []byte
}

func (f *LocalFile) Empty() bool {
	return f == nil || strings.TrimSpace(f.Name) == "" || len(f.Content) == 0
}

type BookkeepingAction string

const ActionCreate BookkeepingAction = "CREATE"

type SubmissionReceipt struct {
	DocumentID string `json:"document_id"`
	Message    string `json:"message,omitempty"`
	ERPID      string `json:"erp_id,omitempty"`
}
