package httpadapter

import (
	"time"

	"github.com/kirillkom/invoice-desk/internal/core/domain"
)

type fieldView struct {
	Name  domain.FieldName `json:"name"`
	Value string           `json:"value"`
}

type documentView struct {
	ID                string                `json:"id"`
	Filename          string                `json:"filename"`
	FileType          string                `json:"file_type,omitempty"`
	Status            domain.DocumentStatus `json:"status"`
	StatusLabel       string                `json:"status_label"`
	StatusColor       string                `json:"status_color"`
	Fields            []fieldView           `json:"fields"`
	Currency          string                `json:"currency,omitempty"`
	ConfidencePercent float64               `json:"confidence_percent"`
	CreatedAt         time.Time             `json:"created_at"`
}

type sessionView struct {
	Generation uint64         `json:"generation"`
	Current    *documentView  `json:"current,omitempty"`
	Recent     []documentView `json:"recent"`
	Busy       bool           `json:"busy"`
	CanSubmit  bool           `json:"can_submit"`
	Error      string         `json:"error,omitempty"`
	Notice     string         `json:"notice,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func newDocumentView(doc *domain.Document) documentView {
	presentation := domain.PresentStatus(doc.Status)
	fields := make([]fieldView, 0, len(domain.CorrectableFields))
	for _, name := range domain.CorrectableFields {
		fields = append(fields, fieldView{Name: name, Value: doc.Field(name)})
	}
	return documentView{
		ID:                doc.ID,
		Filename:          doc.Filename,
		FileType:          doc.FileType,
		Status:            doc.Status,
		StatusLabel:       presentation.Label,
		StatusColor:       presentation.Color,
		Fields:            fields,
		Currency:          doc.Currency,
		ConfidencePercent: doc.ConfidencePercent(),
		CreatedAt:         doc.CreatedAt,
	}
}

func newSessionView(snap domain.Snapshot, canSubmit bool) sessionView {
	view := sessionView{
		Generation: snap.Generation,
		Recent:     make([]documentView, 0, len(snap.Recent)),
		Busy:       snap.Busy,
		CanSubmit:  canSubmit,
		Error:      snap.Error,
		Notice:     snap.Notice,
		UpdatedAt:  snap.UpdatedAt,
	}
	if snap.Current != nil {
		current := newDocumentView(snap.Current)
		view.Current = &current
	}
	for i := range snap.Recent {
		view.Recent = append(view.Recent, newDocumentView(&snap.Recent[i]))
	}
	return view
}
