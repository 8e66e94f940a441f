package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/invoice-desk/internal/core/domain"
	"github.com/kirillkom/invoice-desk/internal/core/ports"
	"github.com/kirillkom/invoice-desk/internal/infrastructure/resilience"
	"github.com/nats-io/nats.go"
)

const DefaultStateSubject = "invoicedesk.session.state"

// StateBus publishes session snapshots on a NATS subject and lets watchers follow them.
type StateBus struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url, subject string) (*StateBus, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*StateBus, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	if subject == "" {
		subject = DefaultStateSubject
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("invoice-desk"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &StateBus{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		logger:   logger,
	}, nil
}

func (b *StateBus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

type stateMessage struct {
	PublishedAt time.Time       `json:"published_at"`
	Snapshot    domain.Snapshot `json:"snapshot"`
}

func encodeState(snapshot domain.Snapshot, now time.Time) ([]byte, error) {
	data, err := json.Marshal(stateMessage{PublishedAt: now.UTC(), Snapshot: snapshot})
	if err != nil {
		return nil, fmt.Errorf("encode session state: %w", err)
	}
	return data, nil
}

func decodeState(data []byte) (domain.Snapshot, error) {
	var msg stateMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.Snapshot{}, domain.WrapError(domain.ErrInvalidInput, "decode session state", err)
	}
	if msg.Snapshot.Recent == nil {
		msg.Snapshot.Recent = []domain.Document{}
	}
	return msg.Snapshot, nil
}

func (b *StateBus) PublishState(ctx context.Context, snapshot domain.Snapshot) error {
	data, err := encodeState(snapshot, time.Now())
	if err != nil {
		return err
	}
	call := func(_ context.Context) error {
		if err := b.conn.Publish(b.subject, data); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if b.executor != nil {
		err = b.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeState blocks until ctx is done, handing every decoded snapshot to handler.
func (b *StateBus) SubscribeState(ctx context.Context, handler func(context.Context, domain.Snapshot) error) error {
	sub, err := b.conn.Subscribe(b.subject, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		snapshot, err := decodeState(msg.Data)
		if err != nil {
			b.logger.Warn("state_message_invalid", "subject", msg.Subject, "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, snapshot); err != nil {
			b.logger.Warn("state_handler_failed", "generation", snapshot.Generation, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := b.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

var (
	_ ports.StatePublisher  = (*StateBus)(nil)
	_ ports.StateSubscriber = (*StateBus)(nil)
)
