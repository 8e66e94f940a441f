package domain

const unknownStatusColor = "#999999"

type StatusPresentation struct {
	Status DocumentStatus `json:"status"`
	Color  string         `json:"color"`
	Label  string         `json:"label"`
}

var statusCatalog = map[DocumentStatus]StatusPresentation{
	StatusUploaded:     {Status: StatusUploaded, Color: "#ffa726", Label: "Uploaded"},
	StatusOCRProcessed: {Status: StatusOCRProcessed, Color: "#42a5f5", Label: "OCR completed"},
	StatusValidated:    {Status: StatusValidated, Color: "#66bb6a", Label: "Validated"},
	StatusSentToERP:    {Status: StatusSentToERP, Color: "#26a69a", Label: "Sent to ERP"},
	StatusERPConfirmed: {Status: StatusERPConfirmed, Color: "#4caf50", Label: "ERP confirmed"},
	StatusError:        {Status: StatusError, Color: "#ef5350", Label: "Error"},
}

var catalogOrder = []DocumentStatus{
	StatusUploaded,
	StatusOCRProcessed,
	StatusValidated,
	StatusSentToERP,
	StatusERPConfirmed,
	StatusError,
}

func PresentStatus(status DocumentStatus) StatusPresentation {
	if p, ok := statusCatalog[status]; ok {
		return p
	}
	return StatusPresentation{Status: status, Color: unknownStatusColor, Label: string(status)}
}

func StatusCatalog() []StatusPresentation {
	out := make([]StatusPresentation, 0, len(catalogOrder))
	for _, status := range catalogOrder {
		out = append(out, statusCatalog[status])
	}
	return out
}
