package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	goption "google.golang.org/api/option"

	"github.com/Neonotso/budget-agent/internal/amqp"
	"github.com/Neonotso/budget-agent/internal/auth"
	"github.com/Neonotso/budget-agent/internal/cache"
	"github.com/Neonotso/budget-agent/internal/log"
	gsheets "github.com/Neonotso/budget-agent/internal/sheets/google"
	"github.com/Neonotso/budget-agent/internal/sheets/memory"
	"github.com/Neonotso/budget-agent/internal/storage"
)

const cacheCleanupInterval = 5 * time.Minute

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger        *log.Logger
	caches        *cache.Manager
	sheetsOptions []goption.ClientOption
	dialAttempts  int
}

// FactoryOption customises a DefaultFactory.
type FactoryOption func(*DefaultFactory)

// WithSheetsClientOptions appends client options to the Sheets service,
// e.g. a test endpoint.
func WithSheetsClientOptions(opts ...goption.ClientOption) FactoryOption {
	return func(f *DefaultFactory) { f.sheetsOptions = append(f.sheetsOptions, opts...) }
}

// WithCacheManager registers backend caches with m instead of a private
// manager.
func WithCacheManager(m *cache.Manager) FactoryOption {
	return func(f *DefaultFactory) {
		if m != nil {
			f.caches = m
		}
	}
}

// WithDialAttempts bounds the number of broker connection attempts.
func WithDialAttempts(n int) FactoryOption {
	return func(f *DefaultFactory) {
		if n > 0 {
			f.dialAttempts = n
		}
	}
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger, opts ...FactoryOption) *DefaultFactory {
	if logger == nil {
		logger = log.Default()
	}
	f := &DefaultFactory{
		logger:       logger.WithComponent(log.ComponentBackend),
		dialAttempts: 3,
	}
	for _, o := range opts {
		o(f)
	}
	if f.caches == nil {
		f.caches = cache.NewManager(logger)
	}
	return f
}

var _ Factory = (*DefaultFactory)(nil)

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	store, err := storage.Open(config.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Store:    store,
		Location: config.SQLiteDBPath,
		Cleanup:  store.Close,
	}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	clientJSON, err := auth.LoadClientConfig(config.GoogleOAuthClientJSON, config.GoogleOAuthClientFile)
	if err != nil {
		return nil, err
	}
	provider, err := auth.NewProvider(clientJSON, config.GoogleOAuthTokenFile,
		auth.WithInteractive(config.OAuthInteractive),
		auth.WithRedirectPort(config.OAuthRedirectPort),
		auth.WithLogger(f.logger),
	)
	if err != nil {
		return nil, err
	}
	ts, err := provider.TokenSource(ctx)
	if err != nil {
		return nil, fmt.Errorf("google credentials: %w", err)
	}

	svc, err := gsheets.NewService(ctx, ts, f.sheetsOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	id, err := gsheets.ResolveSpreadsheetID(ctx, svc, config.GoogleSpreadsheetID, config.SpreadsheetIDFile, config.SpreadsheetTitle)
	if err != nil {
		return nil, err
	}

	ids := gsheets.NewSheetIDCache()
	f.caches.Register(ids)
	f.caches.StartCleanup(cacheCleanupInterval)

	client := gsheets.New(svc, id,
		gsheets.WithValueInputOption(config.SheetsValueInput),
		gsheets.WithSheetIDCache(ids),
		gsheets.WithLogger(f.logger),
	)

	f.logger.Info("Initialized Google Sheets backend", "spreadsheet_id", id)

	return &BackendResult{
		Store:    client,
		Location: "https://docs.google.com/spreadsheets/d/" + id,
		Cleanup: func() error {
			f.caches.Stop()
			return nil
		},
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	store, err := memory.NewFromFile(config.MemorySeedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize memory backend: %w", err)
	}

	f.logger.Info("Initialized memory backend", "seed_file", config.MemorySeedFile)

	return &BackendResult{
		Store:    store,
		Location: "memory",
	}, nil
}

// CreatePublisher dials the broker when AMQP is configured. A broker that
// cannot be reached is logged and publishing stays disabled; the ledger
// works without it.
func (f *DefaultFactory) CreatePublisher(ctx context.Context, config Config) (*PublisherResult, error) {
	if config.AMQPURL == "" {
		return &PublisherResult{}, nil
	}
	client, err := amqp.DialWithRetry(ctx, config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.dialAttempts, f.logger)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		f.logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		return &PublisherResult{}, nil
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return &PublisherResult{Publisher: client, Cleanup: client.Close}, nil
}
