package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/kirillkom/invoice-desk/internal/core/domain"
	"github.com/kirillkom/invoice-desk/internal/core/ports"
)

var allowedContentTypes = map[string]string{
	"application/pdf": "pdf",
	"image/jpeg":      "jpg",
	"image/jpg":       "jpg",
	"image/png":       "png",
}

// Initiator performs the two-phase upload: store the file, then start recognition.
type Initiator struct {
	remote ports.RecognitionService
	logger *slog.Logger
}

func NewInitiator(remote ports.RecognitionService, logger *slog.Logger) *Initiator {
	return &Initiator{remote: remote, logger: logger}
}

// ValidateLocalFile rejects a missing or unsupported file before any remote call.
func ValidateLocalFile(file *domain.LocalFile) error {
	if file.Empty() {
		return domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("no file selected"))
	}
	contentType := strings.ToLower(strings.TrimSpace(file.ContentType))
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if _, ok := allowedContentTypes[contentType]; !ok {
		return domain.WrapError(domain.ErrInvalidInput, "upload", fmt.Errorf("unsupported file type %q", file.ContentType))
	}
	return nil
}

// Initiate returns the stored document even when phase two fails, so the caller can
// make it current before reporting the error.
func (i *Initiator) Initiate(ctx context.Context, file *domain.LocalFile) (*domain.Document, error) {
	if err := ValidateLocalFile(file); err != nil {
		return nil, err
	}

	upload := *file
	upload.Name = sanitizeFilename(file.Name)

	doc, err := i.remote.StoreFile(ctx, upload)
	if err != nil {
		return nil, asTransport("store file", err)
	}
	if doc == nil || strings.TrimSpace(doc.ID) == "" {
		return nil, domain.WrapError(domain.ErrTransport, "store file", errors.New("remote returned no document id"))
	}
	if doc.Filename == "" {
		doc.Filename = file.Name
	}
	i.logger.Info("document_stored", "document_id", doc.ID, "filename", doc.Filename, "status", doc.Status)

	if err := i.remote.BeginRecognition(ctx, doc.ID); err != nil {
		return doc, asTransport("begin recognition", err)
	}
	i.logger.Info("recognition_started", "document_id", doc.ID)
	return doc, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
