package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	httpadapter "github.com/kirillkom/invoice-desk/internal/adapters/http"
	"github.com/kirillkom/invoice-desk/internal/config"
	"github.com/kirillkom/invoice-desk/internal/core/domain"
	"github.com/kirillkom/invoice-desk/internal/core/ports"
	"github.com/kirillkom/invoice-desk/internal/core/usecase"
	"github.com/kirillkom/invoice-desk/internal/infrastructure/ocrapi"
	"github.com/kirillkom/invoice-desk/internal/infrastructure/queue/nats"
	"github.com/kirillkom/invoice-desk/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/invoice-desk/internal/infrastructure/resilience"
	"github.com/kirillkom/invoice-desk/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/invoice-desk/internal/observability/metrics"
)

const (
	serviceName    = "invoice-desk"
	publishTimeout = 2 * time.Second
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Executor       *resilience.Executor
	Remote         *ocrapi.Client
	Picker         *localfs.Picker
	Session        *usecase.Session
	HTTPMetrics    *metrics.HTTPServerMetrics
	SessionMetrics *metrics.SessionMetrics

	// Journal and Bus are nil when their integration is not configured.
	Journal *postgres.JournalRepository
	Bus     *nats.StateBus

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	sessionMetrics := metrics.NewSessionMetrics(serviceName, httpMetrics.Registerer())

	executor := NewExecutor(cfg, logger, sessionMetrics.SetBreakerState)
	remote := ocrapi.NewWithOptions(cfg.OCRAPIURL, ocrapi.Options{
		Timeout:            cfg.HTTPTimeout(),
		ResilienceExecutor: executor,
		Logger:             logger,
	})

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var journal ports.ActionJournal
	journalRepo, db, err := OpenJournal(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if journalRepo != nil {
		journal = journalRepo
		closers = append(closers, func() { _ = db.Close() })
	}

	bus, err := OpenStateBus(cfg, executor, logger)
	if err != nil {
		closeAll()
		return nil, err
	}
	if bus != nil {
		closers = append(closers, bus.Close)
	}

	session := usecase.NewSession(usecase.SessionDeps{
		Remote:   remote,
		Journal:  journal,
		Observer: sessionMetrics,
		Policy: usecase.PollPolicy{
			Interval:    cfg.PollInterval(),
			MaxAttempts: cfg.PollMaxAttempts,
		},
		ActorID:     cfg.OperatorID,
		RecentLimit: cfg.RecentLimit,
		Logger:      logger,
	})
	if bus != nil {
		session.Subscribe(snapshotPublisher(bus, logger))
	}
	closers = append(closers, session.Close)

	return &App{
		Config:         cfg,
		Logger:         logger,
		Executor:       executor,
		Remote:         remote,
		Picker:         localfs.NewPicker(cfg.MaxUploadBytes()),
		Session:        session,
		HTTPMetrics:    httpMetrics,
		SessionMetrics: sessionMetrics,
		Journal:        journalRepo,
		Bus:            bus,
		closeFn:        closeAll,
	}, nil
}

// Handler builds the session API served by `desk serve`.
func (a *App) Handler() http.Handler {
	deps := httpadapter.Dependencies{
		Desk:     a.Session,
		Inspect:  localfs.Inspect,
		Breakers: a.Executor.BreakerStates,
		Metrics:  a.HTTPMetrics,
		Logger:   a.Logger,
	}
	if a.Journal != nil {
		deps.Journal = a.Journal
	}
	return httpadapter.NewRouter(a.Config, deps).Handler()
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func NewExecutor(cfg config.Config, logger *slog.Logger, onStateChange func(operation, state string)) *resilience.Executor {
	policy := resilience.DefaultConfig()
	policy.RetryMaxAttempts = cfg.RetryMaxAttempts
	policy.BreakerEnabled = cfg.BreakerEnabled
	policy.OnStateChange = onStateChange
	return resilience.NewExecutor(policy, logger)
}

// OpenJournal returns nil values when POSTGRES_DSN is empty.
func OpenJournal(ctx context.Context, cfg config.Config) (*postgres.JournalRepository, *sql.DB, error) {
	if cfg.PostgresDSN == "" {
		return nil, nil, nil
	}
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewJournalRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, db, nil
}

// OpenStateBus returns nil when NATS_URL is empty.
func OpenStateBus(cfg config.Config, executor *resilience.Executor, logger *slog.Logger) (*nats.StateBus, error) {
	if cfg.NATSURL == "" {
		return nil, nil
	}
	bus, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSStateSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init state bus: %w", err)
	}
	return bus, nil
}

// snapshotPublisher forwards every session snapshot in emission order. Publish failures
// are logged and never reach the session.
func snapshotPublisher(publisher ports.StatePublisher, logger *slog.Logger) func(domain.Snapshot) {
	return func(snap domain.Snapshot) {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := publisher.PublishState(ctx, snap); err != nil {
			if resilience.IsCircuitOpen(err) || errors.Is(err, context.DeadlineExceeded) {
				logger.Debug("state_publish_skipped", "generation", snap.Generation, "error", err)
				return
			}
			logger.Warn("state_publish_failed", "generation", snap.Generation, "error", err)
		}
	}
}
