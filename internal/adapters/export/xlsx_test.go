package export

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/invoice-desk/internal/core/domain"
)

func TestWriteRecentXLSX(t *testing.T) {
	docs := []domain.Document{
		{
			ID:       "42",
			Filename: "invoice.pdf",
			Status:   domain.StatusValidated,
			Fields: map[domain.FieldName]string{
				domain.FieldTotalAmount:   "1200",
				domain.FieldInvoiceNumber: "INV-1",
			},
			Currency:        "TRY",
			ConfidenceScore: 0.5,
		},
		{ID: "41", Filename: "scan.png", Status: domain.DocumentStatus("processing")},
	}

	var buf bytes.Buffer
	if err := WriteRecentXLSX(&buf, docs); err != nil {
		t.Fatalf("WriteRecentXLSX() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(recentSheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "ID" || rows[1][0] != "42" || rows[1][2] != "Validated" || rows[1][7] != "1200" {
		t.Fatalf("unexpected first row %v", rows[1])
	}
	if rows[2][2] != "processing" {
		t.Fatalf("expected raw label for unknown status, got %q", rows[2][2])
	}
}

func TestWriteRecentXLSXEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRecentXLSX(&buf, nil); err != nil {
		t.Fatalf("WriteRecentXLSX() error = %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected a workbook even without rows")
	}
}
