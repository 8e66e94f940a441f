package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/invoice-desk/internal/core/domain"
)

const recentSheet = "Recent"

var recentHeader = []any{
	"ID", "Filename", "Status", "Invoice number", "Invoice date", "Company",
	"Tax number", "Total", "VAT", "Net", "Currency", "Confidence %", "Created at",
}

// WriteRecentXLSX renders the recent-documents list as a single-sheet workbook.
func WriteRecentXLSX(w io.Writer, docs []domain.Document) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", recentSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(recentSheet, "A1", &recentHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i := range docs {
		doc := &docs[i]
		created := ""
		if !doc.CreatedAt.IsZero() {
			created = doc.CreatedAt.UTC().Format(time.RFC3339)
		}
		row := []any{
			doc.ID,
			doc.Filename,
			domain.PresentStatus(doc.Status).Label,
			doc.Field(domain.FieldInvoiceNumber),
			doc.Field(domain.FieldInvoiceDate),
			doc.Field(domain.FieldCompanyName),
			doc.Field(domain.FieldTaxNumber),
			doc.Field(domain.FieldTotalAmount),
			doc.Field(domain.FieldVATAmount),
			doc.Field(domain.FieldNetAmount),
			doc.Currency,
			doc.ConfidencePercent(),
			created,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(recentSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(recentSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
