package localfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/invoice-desk/internal/core/domain"
	"github.com/kirillkom/invoice-desk/internal/core/ports"
)

const DefaultMaxBytes int64 = 20 << 20

// Picker loads an operator-chosen file from the local filesystem and rejects files
// the recognition service could not accept before anything is sent.
type Picker struct {
	maxBytes int64
}

func NewPicker(maxBytes int64) *Picker {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Picker{maxBytes: maxBytes}
}

func (p *Picker) Pick(ctx context.Context, path string) (*domain.LocalFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "pick file", errors.New("no file selected"))
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrInvalidInput, "pick file", fmt.Errorf("file %s does not exist", path))
		}
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "pick file", fmt.Errorf("%s is a directory", path))
	}
	if info.Size() > p.maxBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "pick file", fmt.Errorf("file is %d bytes, limit is %d", info.Size(), p.maxBytes))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, p.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if int64(len(content)) > p.maxBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "pick file", fmt.Errorf("file grew past the %d byte limit", p.maxBytes))
	}

	return Inspect(filepath.Base(path), content)
}

// Inspect builds a LocalFile from raw content, detecting its type and counting PDF
// pages. Content that claims to be a PDF but cannot be parsed is rejected.
func Inspect(name string, content []byte) (*domain.LocalFile, error) {
	file := &domain.LocalFile{
		Name:        name,
		ContentType: DetectContentType(name, content),
		Size:        int64(len(content)),
		Content:     content,
	}
	if file.ContentType == "application/pdf" && len(content) > 0 {
		pages, err := countPDFPages(content)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "inspect pdf", err)
		}
		file.Pages = pages
	}
	return file, nil
}

// DetectContentType prefers sniffing over the extension; the extension only decides
// when the content is not recognizable.
func DetectContentType(name string, content []byte) string {
	if len(content) > 0 {
		sniffed := http.DetectContentType(content)
		if i := strings.Index(sniffed, ";"); i >= 0 {
			sniffed = sniffed[:i]
		}
		if sniffed != "application/octet-stream" && !strings.HasPrefix(sniffed, "text/plain") {
			return sniffed
		}
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); byExt != "" {
		if i := strings.Index(byExt, ";"); i >= 0 {
			byExt = byExt[:i]
		}
		return byExt
	}
	return "application/octet-stream"
}

func countPDFPages(content []byte) (pages int, err error) {
	defer func() {
		// The parser panics on some malformed inputs.
		if r := recover(); r != nil {
			pages, err = 0, fmt.Errorf("unreadable pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	pages = reader.NumPage()
	if pages <= 0 {
		return 0, errors.New("pdf has no pages")
	}
	return pages, nil
}

var _ ports.FilePicker = (*Picker)(nil)
