package ocrapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/invoice-desk/internal/core/domain"
	"github.com/kirillkom/invoice-desk/internal/core/ports"
	"github.com/kirillkom/invoice-desk/internal/infrastructure/resilience"
)

const defaultTimeout = 30 * time.Second

// Client talks to the recognition backend over its HTTP/JSON API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
	logger     *slog.Logger
}

type Options struct {
	Timeout            time.Duration
	HTTPClient         *http.Client
	ResilienceExecutor *resilience.Executor
	Logger             *slog.Logger
}

func New(baseURL string) *Client {
	return NewWithOptions(baseURL, Options{})
}

func NewWithOptions(baseURL string, options Options) *Client {
	httpClient := options.HTTPClient
	if httpClient == nil {
		timeout := options.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		executor:   options.ResilienceExecutor,
		logger:     logger,
	}
}

func (c *Client) ListRecent(ctx context.Context, limit int) ([]domain.Document, error) {
	if limit <= 0 {
		limit = 10
	}
	var response []invoiceWire
	err := c.execute(ctx, "ocrapi.list", func(ctx context.Context) error {
		return c.getJSON(ctx, "/invoices?limit="+strconv.Itoa(limit), &response, "list invoices")
	})
	if err != nil {
		return nil, classifyFailure("list invoices", err, nil)
	}

	out := make([]domain.Document, 0, len(response))
	for _, item := range response {
		out = append(out, *item.toDomain())
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *Client) StoreFile(ctx context.Context, file domain.LocalFile) (*domain.Document, error) {
	var response invoiceWire
	err := c.execute(ctx, "ocrapi.upload", func(ctx context.Context) error {
		return c.postFile(ctx, "/upload", "file", file.Name, file.ContentType, file.Content, &response, "upload")
	})
	if err != nil {
		return nil, classifyFailure("upload", err, domain.ErrInvalidInput)
	}
	doc := response.toDomain()
	c.logger.Debug("ocrapi_upload_done", "document_id", doc.ID, "filename", file.Name, "size", file.Size)
	return doc, nil
}

func (c *Client) BeginRecognition(ctx context.Context, id string) error {
	var response messageWire
	err := c.execute(ctx, "ocrapi.process", func(ctx context.Context) error {
		return c.postJSON(ctx, "/process/"+url.PathEscape(id), nil, &response, "process")
	})
	if err != nil {
		return classifyFailure("process", err, nil)
	}
	return nil
}

func (c *Client) FetchDocument(ctx context.Context, id string) (*domain.Document, error) {
	var response invoiceWire
	err := c.execute(ctx, "ocrapi.results", func(ctx context.Context) error {
		return c.getJSON(ctx, "/results/"+url.PathEscape(id), &response, "results")
	})
	if err != nil {
		return nil, classifyFailure("results", err, nil)
	}
	doc := response.toDomain()
	if doc.ID == "" {
		doc.ID = id
	}
	return doc, nil
}

func (c *Client) SubmitCorrection(ctx context.Context, id string, field domain.FieldName, value, actorID string) error {
	request := correctionWire{
		FieldName:      string(field),
		CorrectedValue: value,
		UserID:         actorID,
	}
	err := c.execute(ctx, "ocrapi.validate", func(ctx context.Context) error {
		return c.postJSON(ctx, "/validate/"+url.PathEscape(id), request, nil, "validate")
	})
	if err != nil {
		return classifyFailure("validate", err, domain.ErrValidationRejected)
	}
	return nil
}

func (c *Client) SubmitToBookkeeping(ctx context.Context, id string, action domain.BookkeepingAction) (*domain.SubmissionReceipt, error) {
	request := bookkeepingWire{
		InvoiceID: wireDocumentID(id),
		Action:    string(action),
	}
	var response bookkeepingReplyWire
	err := c.execute(ctx, "ocrapi.erp_send", func(ctx context.Context) error {
		return c.postJSON(ctx, "/erp/send/"+url.PathEscape(id), request, &response, "erp send")
	})
	if err != nil {
		return nil, classifyFailure("erp send", err, domain.ErrSubmissionRejected)
	}
	if response.Success != nil && !*response.Success {
		reason := strings.TrimSpace(response.Error)
		if reason == "" {
			reason = strings.TrimSpace(response.Message)
		}
		if reason == "" {
			reason = "remote reported failure"
		}
		return nil, domain.WrapError(domain.ErrSubmissionRejected, "erp send", errors.New(reason))
	}
	return &domain.SubmissionReceipt{
		DocumentID: id,
		Message:    response.Message,
		ERPID:      response.ERPID,
	}, nil
}

func (c *Client) execute(ctx context.Context, operation string, call func(context.Context) error) error {
	if c.executor == nil {
		return call(ctx)
	}
	return c.executor.Execute(ctx, operation, call, classifyError)
}

var _ ports.RecognitionService = (*Client)(nil)
