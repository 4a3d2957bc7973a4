// Package app provides application initialization and wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	httpAdapter "github.com/jobrunner/envextract/internal/adapters/http"
	"github.com/jobrunner/envextract/internal/adapters/ledger"
	"github.com/jobrunner/envextract/internal/adapters/metrics"
	"github.com/jobrunner/envextract/internal/adapters/remote"
	"github.com/jobrunner/envextract/internal/adapters/requestfile"
	"github.com/jobrunner/envextract/internal/adapters/storage"
	tlsAdapter "github.com/jobrunner/envextract/internal/adapters/tls"
	"github.com/jobrunner/envextract/internal/adapters/watcher"
	"github.com/jobrunner/envextract/internal/application"
	"github.com/jobrunner/envextract/internal/config"
	"github.com/jobrunner/envextract/internal/ports/output"
	"github.com/jobrunner/envextract/internal/products"
)

// App holds all application components.
type App struct {
	Config            *config.Config
	Logger            *slog.Logger
	Storage           output.ObjectStorage
	Ledger            *ledger.Ledger
	Compute           *remote.Client
	Catalogue         *products.Catalogue
	ExtractionService *application.ExtractionService
	ResultService     *application.ResultService
	TaskService       *application.TaskService
	HealthService     *application.HealthService
	InboxService      *application.InboxService
	HTTPServer        *httpAdapter.Server
	TLSServer         *tlsAdapter.Server
	Watcher           *watcher.Watcher
	Metrics           *metrics.Collector
	MetricsServer     *metrics.Server
}

// New creates and initializes a new application.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize metrics
	var metricsCollector output.MetricsCollector = &output.NoOpMetrics{}
	if cfg.Metrics.Enabled {
		app.Metrics = metrics.NewCollector("envextract")
		metricsCollector = app.Metrics
		if cfg.Metrics.Port > 0 {
			app.MetricsServer = metrics.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, logger)
		}
	}

	// Initialize storage adapter
	store, err := initStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	app.Storage = store

	// Initialize task ledger
	var taskLedger output.TaskLedger
	if cfg.Ledger.Enabled {
		l, err := ledger.Open(ctx, ledger.Config{Driver: cfg.Ledger.Driver, DSN: cfg.Ledger.DSN})
		if err != nil {
			return nil, fmt.Errorf("opening task ledger: %w", err)
		}
		app.Ledger = l
		taskLedger = l
	}

	app.Compute = remote.NewClient(remote.Config{
		BaseURL: cfg.Remote.BaseURL,
		Project: cfg.Remote.Project,
		Token:   cfg.Remote.Token,
		Timeout: cfg.Remote.Timeout,
	}, metricsCollector)

	app.Catalogue = products.NewCatalogue(products.Options{AssetOwner: cfg.Extraction.AssetOwner})

	app.ExtractionService = application.NewExtractionService(
		app.Catalogue,
		app.Compute,
		taskLedger,
		app.Storage,
		metricsCollector,
		logger,
		application.ExtractionConfig{
			Account:        cfg.Extraction.Account,
			Folder:         cfg.Extraction.Folder,
			IDField:        cfg.Extraction.IDField,
			ManifestPrefix: cfg.Storage.ManifestPrefix,
		},
	)

	app.ResultService = application.NewResultService(
		app.Storage,
		metricsCollector,
		logger,
		cfg.Storage.ResultsPrefix,
		cfg.Extraction.IDField,
	)
	app.TaskService = application.NewTaskService(taskLedger)
	app.HealthService = application.NewHealthService(app.Catalogue, taskLedger, app.Storage, cfg.Storage.ResultsPrefix)

	opts := httpAdapter.Options{MetricsPath: cfg.Metrics.Path}
	if app.Metrics != nil {
		opts.Middleware = app.Metrics.Middleware
		if app.MetricsServer == nil {
			opts.MetricsHandler = metrics.Handler()
		}
	}

	// Initialize the object storage inbox
	if cfg.Inbox.Enabled {
		app.InboxService = application.NewInboxService(
			app.Storage,
			app.ExtractionService,
			requestfile.Decoder{}.Decode,
			metricsCollector,
			logger,
			application.InboxConfig{
				Prefix:        cfg.Inbox.Prefix,
				ReceiptPrefix: cfg.Inbox.ReceiptPrefix,
				Interval:      cfg.Inbox.Interval,
			},
		)
		opts.Inbox = app.InboxService
	}

	// Initialize HTTP server
	app.HTTPServer = httpAdapter.NewServer(
		cfg.Server,
		app.ExtractionService,
		app.TaskService,
		app.ResultService,
		app.HealthService,
		logger,
		opts,
	)

	// Initialize TLS server if enabled
	if cfg.TLS.Enabled {
		tlsServer, err := tlsAdapter.NewServer(
			tlsAdapter.Config{
				Domains:      cfg.TLS.Domains,
				Email:        cfg.TLS.Email,
				CacheDir:     cfg.TLS.CacheDir,
				Staging:      cfg.TLS.Staging,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				DNS: tlsAdapter.DNSConfig{
					SubscriptionID:    cfg.TLS.DNS.SubscriptionID,
					ResourceGroupName: cfg.TLS.DNS.ResourceGroupName,
					ClientID:          cfg.TLS.DNS.ClientID,
				},
			},
			app.HTTPServer.Router(),
			logger,
		)
		if err != nil {
			app.closeLedger()
			return nil, fmt.Errorf("initializing TLS: %w", err)
		}
		app.TLSServer = tlsServer
	}

	// Initialize request directory watcher
	if cfg.Watcher.Enabled && len(cfg.Watcher.Paths) > 0 {
		w, err := watcher.New(
			watcher.Config{
				Paths:    cfg.Watcher.Paths,
				Debounce: cfg.Watcher.Debounce,
			},
			app.handleFileEvent,
			logger,
		)
		if err != nil {
			logger.Warn("failed to initialize request watcher", "error", err)
		} else {
			app.Watcher = w
		}
	}

	return app, nil
}

// Start starts all application components.
func (a *App) Start(ctx context.Context) error {
	if a.Watcher != nil {
		if err := a.Watcher.Start(ctx); err != nil {
			a.Logger.Warn("failed to start request watcher", "error", err)
		}
	}

	if a.InboxService != nil {
		a.InboxService.Start(ctx)
	}

	// Start metrics server in background
	if a.MetricsServer != nil {
		go func() {
			if err := a.MetricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.Logger.Error("metrics server error", "error", err)
			}
		}()
	}

	if a.TLSServer != nil {
		return a.TLSServer.ListenAndServe(a.Config.Server.Address())
	}
	return a.HTTPServer.Start()
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	if a.Watcher != nil {
		_ = a.Watcher.Stop()
	}

	if a.InboxService != nil {
		a.InboxService.Stop()
	}

	if a.MetricsServer != nil {
		if err := a.MetricsServer.Shutdown(ctx); err != nil {
			a.Logger.Error("metrics server shutdown error", "error", err)
		}
	}

	var err error
	if a.TLSServer != nil {
		err = a.TLSServer.Shutdown(ctx)
	} else {
		err = a.HTTPServer.Shutdown(ctx)
	}
	if err != nil {
		a.Logger.Error("server shutdown error", "error", err)
	}

	a.closeLedger()
	return err
}

// Close releases the resources of an application that was never started.
func (a *App) Close() {
	if a.Watcher != nil {
		_ = a.Watcher.Stop()
	}
	a.closeLedger()
}

func (a *App) closeLedger() {
	if a.Ledger == nil {
		return
	}
	if err := a.Ledger.Close(); err != nil {
		a.Logger.Error("failed to close task ledger", "error", err)
	}
}

// handleFileEvent submits request files dropped into a watched directory.
func (a *App) handleFileEvent(ctx context.Context, event watcher.Event) error {
	a.Logger.Info("file event", "path", event.Path, "operation", event.Operation.String())

	if event.Operation == watcher.OpDelete {
		return nil
	}

	reqs, err := requestfile.DecodeFile(event.Path)
	if err != nil {
		return err
	}

	for _, req := range reqs {
		result, err := a.ExtractionService.Extract(ctx, req)
		if err != nil {
			return fmt.Errorf("%s: %w", event.Path, err)
		}
		a.Logger.Info("request file submitted",
			"path", event.Path,
			"product", result.Product,
			"tasks", len(result.Tasks),
		)
	}
	return nil
}

// initStorage initializes the appropriate storage adapter.
func initStorage(ctx context.Context, cfg config.StorageConfig) (output.ObjectStorage, error) {
	switch cfg.Type {
	case "local":
		return storage.NewLocalStorage(cfg.LocalPath), nil

	case "s3":
		return storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})

	case "azure":
		return storage.NewAzureStorage(storage.AzureConfig{
			Container:        cfg.Azure.Container,
			AccountName:      cfg.Azure.AccountName,
			AccountKey:       cfg.Azure.AccountKey,
			ConnectionString: cfg.Azure.ConnectionString,
			Prefix:           cfg.Azure.Prefix,
		})

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
