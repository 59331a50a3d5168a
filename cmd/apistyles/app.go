package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/picatz/apistyles/internal/config"
	"github.com/picatz/apistyles/internal/metrics"
	"github.com/picatz/apistyles/internal/storage"
	"github.com/picatz/apistyles/internal/storage/memory"
	pebbleStorage "github.com/picatz/apistyles/internal/storage/pebble"
	"github.com/spf13/cobra"
)

// app is the state shared by every command, set up before a command runs
// and torn down after.
type app struct {
	// Flags.
	configPath  string
	logLevel    string
	metricsAddr string
	temporary   bool

	cfg        *config.Config
	logger     *slog.Logger
	transcript *storage.Transcript
	metricsSrv *http.Server
}

// run wraps a command so the shared state is set up before it and torn down
// after, even when it fails.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		if err := a.setup(cmd); err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, a.teardown(cmd.Context()))
		}()
		return fn(cmd, args)
	}
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = a.metricsAddr
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.transcript = nil
	a.metricsSrv = nil
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.logger)

	if err := a.openTranscript(); err != nil {
		return err
	}

	return a.serveMetrics(cmd.Context())
}

func (a *app) teardown(ctx context.Context) error {
	var errs []error

	if a.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := a.metricsSrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop metrics server: %w", err))
		}
	}

	if a.transcript != nil {
		if err := a.transcript.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close transcript: %w", err))
		}
	}

	return errors.Join(errs...)
}

// openTranscript opens the configured backend. --temporary keeps pebble but
// on an in-memory filesystem.
func (a *app) openTranscript() error {
	var backend storage.Backend[string, storage.Record]

	switch {
	case a.cfg.Storage.Type == config.StorageMemory:
		backend = memory.NewBackend[string, storage.Record]()
	default:
		dir := a.cfg.Storage.Path
		opts := &pebble.Options{
			LoggerAndTracer: pebbleStorage.NewLogger(a.logger),
		}
		if a.temporary {
			opts.FS = vfs.NewMem()
			dir = ""
		}

		b, err := pebbleStorage.NewBackend(dir, opts, &storage.StringKeyCodec[string, storage.Record]{})
		if err != nil {
			return fmt.Errorf("failed to open transcript store: %w", err)
		}
		backend = b
	}

	a.transcript = storage.NewTranscript(backend)
	return nil
}

func (a *app) serveMetrics(ctx context.Context) error {
	if a.cfg.Metrics.Addr == "" {
		return nil
	}

	ln, err := net.Listen("tcp", a.cfg.Metrics.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen for metrics on %s: %w", a.cfg.Metrics.Addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, metrics.Handler())

	a.metricsSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	a.logger.InfoContext(ctx, "serving metrics", "addr", ln.Addr().String(), "path", a.cfg.Metrics.Path)
	go func() {
		if err := a.metricsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", "error", err)
		}
	}()
	return nil
}

// client builds an API client from the configuration. Requests are logged
// at debug level.
func (a *app) client() (*openai.Client, error) {
	if err := a.cfg.RequireAPIKey(); err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(a.cfg.OpenAI.APIKey),
		option.WithMaxRetries(a.cfg.OpenAI.MaxRetries),
		option.WithMiddleware(a.logRequests),
	}
	if a.cfg.OpenAI.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(a.cfg.OpenAI.BaseURL))
	}
	if a.cfg.OpenAI.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(a.cfg.OpenAI.Timeout))
	}

	client := openai.NewClient(opts...)
	return &client, nil
}

func (a *app) logRequests(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
	started := time.Now()
	resp, err := next(req)

	attrs := []any{"method", req.Method, "path", req.URL.Path, "duration", time.Since(started)}
	if resp != nil {
		attrs = append(attrs, "status", resp.StatusCode, "request_id", resp.Header.Get("x-request-id"))
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	a.logger.DebugContext(req.Context(), "api request", attrs...)

	return resp, err
}
