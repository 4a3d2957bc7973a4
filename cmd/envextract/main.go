// Package main provides the entry point for the envextract service and CLI.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jobrunner/envextract/internal/adapters/requestfile"
	"github.com/jobrunner/envextract/internal/app"
	"github.com/jobrunner/envextract/internal/config"
	"github.com/jobrunner/envextract/internal/domain"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "envextract",
	Short: "envextract - environmental covariate extraction",
	Long: `envextract builds zonal statistics of environmental datasets over
point or polygon locations and submits them as CSV table exports to a remote
compute platform.

Without a subcommand it serves the REST API.

Features:
  - 16 datasets: climate, land surface temperature, vegetation, soil,
    terrain, land cover and climate projections
  - Daily, monthly and yearly composites with quality masking
  - Point buffers or stored polygons as locations
  - Task ledger on SQLite or PostgreSQL
  - Request files from a watched directory or an object storage inbox
  - Result tables from local, AWS S3 or Azure storage
  - TLS with automatic certificate management
  - Prometheus metrics`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("envextract %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Build Date: %s\n", buildDate)
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Submit the requests of a request file",
	Example: `  envextract extract -f requests.yaml
  envextract extract -f requests.yaml --dry-run`,
	Args: cobra.NoArgs,
	RunE: runExtract,
}

var productsCmd = &cobra.Command{
	Use:   "products [name]",
	Short: "List the catalogue or describe one product",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runProducts,
}

var tasksCmd = &cobra.Command{
	Use:   "tasks [id]",
	Short: "List recorded export tasks or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTasks,
}

var resultsCmd = &cobra.Command{
	Use:   "results [key]",
	Short: "List exported tables or read one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runResults,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, text)")
	rootCmd.PersistentFlags().String("project", "", "remote compute project")
	rootCmd.PersistentFlags().String("storage-type", "local", "storage type (local, s3, azure)")
	rootCmd.PersistentFlags().String("storage-path", "./data", "local storage path")
	rootCmd.PersistentFlags().String("ledger-dsn", "", "task ledger database (sqlite file or postgres DSN)")

	// Server flags
	rootCmd.Flags().String("host", "0.0.0.0", "server host")
	rootCmd.Flags().Int("port", 8080, "server port")
	rootCmd.Flags().Bool("tls", false, "enable TLS")
	rootCmd.Flags().StringSlice("tls-domains", nil, "TLS domains")
	rootCmd.Flags().String("tls-email", "", "TLS email for Let's Encrypt")
	rootCmd.Flags().StringSlice("cors", nil, "allowed CORS origins (e.g., https://example.com,*.sub.domain.tld)")
	rootCmd.Flags().StringSlice("watch", nil, "directories to watch for request files")

	// Bind flags to viper
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("remote.project", rootCmd.PersistentFlags().Lookup("project"))
	_ = viper.BindPFlag("storage.type", rootCmd.PersistentFlags().Lookup("storage-type"))
	_ = viper.BindPFlag("storage.local_path", rootCmd.PersistentFlags().Lookup("storage-path"))
	_ = viper.BindPFlag("ledger.dsn", rootCmd.PersistentFlags().Lookup("ledger-dsn"))
	_ = viper.BindPFlag("server.host", rootCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", rootCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("tls.enabled", rootCmd.Flags().Lookup("tls"))
	_ = viper.BindPFlag("tls.domains", rootCmd.Flags().Lookup("tls-domains"))
	_ = viper.BindPFlag("tls.email", rootCmd.Flags().Lookup("tls-email"))
	_ = viper.BindPFlag("server.cors.allowed_origins", rootCmd.Flags().Lookup("cors"))
	_ = viper.BindPFlag("watcher.paths", rootCmd.Flags().Lookup("watch"))

	extractCmd.Flags().StringP("file", "f", "", "request file (YAML or JSON)")
	extractCmd.Flags().Bool("dry-run", false, "build the exports without submitting them")
	_ = extractCmd.MarkFlagRequired("file")

	tasksCmd.Flags().String("product", "", "only tasks of this product")
	tasksCmd.Flags().String("state", "", "only tasks in this state (submitted, failed)")
	tasksCmd.Flags().Duration("since", 0, "only tasks submitted within this duration")
	tasksCmd.Flags().Int("limit", 50, "maximum number of tasks")

	resultsCmd.Flags().String("aspect", "", "combine the aspect tables of this geometry suffix")

	rootCmd.AddCommand(versionCmd, extractCmd, productsCmd, tasksCmd, resultsCmd)
}

func initConfig() {
	config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

func runServer(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if len(cfg.Watcher.Paths) > 0 {
		cfg.Watcher.Enabled = true
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting envextract",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"storage_type", cfg.Storage.Type,
		"ledger", cfg.Ledger.Enabled,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Initialize application
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}

	// Start server in background
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "address", cfg.Server.Address())
		if err := application.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		logger.Error("server error", "error", err)
	}
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}

// newCLIApp wires the application for a one-shot command: no listeners,
// no background workers.
func newCLIApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg.TLS.Enabled = false
	cfg.Metrics.Enabled = false
	cfg.Watcher.Enabled = false
	cfg.Inbox.Enabled = false

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	return app.New(ctx, cfg, logger)
}

func runExtract(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("file")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	reqs, err := requestfile.DecodeFile(path)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newCLIApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if dryRun {
		var planned []domain.PlannedExport
		for _, req := range reqs {
			exports, err := a.ExtractionService.Plan(ctx, req)
			if err != nil {
				return err
			}
			planned = append(planned, exports...)
		}
		return printJSON(cmd, planned)
	}

	results := make([]*domain.ExtractionResult, 0, len(reqs))
	for _, req := range reqs {
		result, err := a.ExtractionService.Extract(ctx, req)
		if result != nil {
			results = append(results, result)
		}
		if err != nil {
			_ = printJSON(cmd, results)
			return err
		}
	}
	return printJSON(cmd, results)
}

func runProducts(cmd *cobra.Command, args []string) error {
	a, err := newCLIApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if len(args) == 1 {
		info, err := a.ExtractionService.Product(args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, info)
	}

	w := cmd.OutOrStdout()
	for _, p := range a.ExtractionService.Products() {
		fmt.Fprintf(w, "%-14s %s\n", p.Name, p.Title)
	}
	return nil
}

func runTasks(cmd *cobra.Command, args []string) error {
	a, err := newCLIApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if len(args) == 1 {
		task, err := a.TaskService.GetTask(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, task)
	}

	product, _ := cmd.Flags().GetString("product")
	state, _ := cmd.Flags().GetString("state")
	since, _ := cmd.Flags().GetDuration("since")
	limit, _ := cmd.Flags().GetInt("limit")

	filter := domain.TaskFilter{Product: product, State: domain.TaskState(state), Limit: limit}
	if since > 0 {
		filter.Since = time.Now().Add(-since)
	}

	tasks, err := a.TaskService.ListTasks(cmd.Context(), filter)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for _, t := range tasks {
		fmt.Fprintf(w, "%s  %-9s %-14s %s\n",
			t.SubmittedAt.Local().Format(time.DateTime), t.State, t.Product, t.Description)
	}
	return nil
}

func runResults(cmd *cobra.Command, args []string) error {
	a, err := newCLIApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if suffix, _ := cmd.Flags().GetString("aspect"); suffix != "" {
		table, err := a.ResultService.ReadAspect(cmd.Context(), suffix)
		if err != nil {
			return err
		}
		return printJSON(cmd, table)
	}

	if len(args) == 1 {
		table, err := a.ResultService.ReadResult(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, table)
	}

	keys, err := a.ResultService.ListResults(cmd.Context())
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Fprintln(cmd.OutOrStdout(), k)
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
