package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/sha1n/es2csv/internal/config"
	"github.com/sha1n/es2csv/internal/export"
	"github.com/sha1n/es2csv/internal/metrics"
	"github.com/sha1n/es2csv/internal/retry"
	"github.com/sha1n/es2csv/internal/search"
	"github.com/sha1n/es2csv/internal/search/bleveindex"
	"github.com/sha1n/es2csv/internal/search/elastic"
	"github.com/spf13/pflag"
)

// Loader ingests newline-delimited JSON documents into a local index
type Loader interface {
	Load(ctx context.Context, index string, r io.Reader) (int, error)
}

// RunParams contains dependencies for the run functions
type RunParams struct {
	LoadSettings  func(*pflag.FlagSet) (*config.Settings, error)
	ValidSettings func(*config.Settings) error
	Dial          func(*config.Settings) export.DialFunc
	NewLoader     func(dataDir string, logger *slog.Logger) Loader
	// Sleep overrides the wait between retries; nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// LogOutput receives log records; nil means stderr.
	LogOutput io.Writer
	// Stdin is read by the load command when a file argument is "-".
	Stdin io.Reader
}

// DefaultRunParams returns production dependencies
func DefaultRunParams() RunParams {
	return RunParams{
		LoadSettings:  config.LoadSettingsWithFlags,
		ValidSettings: config.ValidateSettings,
		Dial:          NewDialer,
		NewLoader: func(dataDir string, logger *slog.Logger) Loader {
			return bleveindex.NewLoader(dataDir, logger)
		},
		Stdin: os.Stdin,
	}
}

// NewDialer returns a DialFunc for the configured backend
func NewDialer(s *config.Settings) export.DialFunc {
	return func(context.Context) (search.Client, error) {
		switch s.Backend {
		case config.BackendBleve:
			return bleveindex.NewClient(s.DataDir), nil
		case config.BackendElastic:
			cfg := elastic.Config{Addresses: s.URLs, Timeout: s.Timeout}
			switch s.Auth.Type {
			case config.AuthTypeBasic:
				cfg.Username = s.Auth.Basic.Username
				cfg.Password = s.Auth.Basic.Password
			case config.AuthTypeAPIKey:
				cfg.APIKey = s.Auth.APIKey
			}
			return elastic.New(cfg)
		default:
			return nil, fmt.Errorf("unknown backend: %s", s.Backend)
		}
	}
}

// RunWithDeps exports the configured query to CSV with the provided dependencies
func RunWithDeps(ctx context.Context, params RunParams, flags *pflag.FlagSet, version string) (err error) {
	// Load settings
	settings, err := params.LoadSettings(flags)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	// Validate settings for conflicting configurations
	if err := params.ValidSettings(settings); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := configureLogging(params.LogOutput, settings.Debug)
	logger.Info("Starting es2csv", "version", version)
	config.LogWithLogger(settings, logger)

	m := metrics.New()
	if settings.MetricsFile != "" {
		defer func() {
			if werr := m.WriteFile(settings.MetricsFile); werr != nil {
				logger.Error("Failed to write metrics file", "path", settings.MetricsFile, "error", werr)
			}
		}()
	}
	policy := retryPolicy(settings, params.Sleep, logger, m)

	client, err := export.Connect(ctx, params.Dial(settings), policy)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			logger.Error("Failed to close search client", "error", cerr)
		}
	}()

	indices, err := export.ResolveIndices(ctx, client, settings.Indices, policy)
	if err != nil {
		return err
	}

	run := export.NewRun(client, policy, exportOptions(settings, indices), logger, m)
	_, err = run.Execute(ctx)
	return err
}

// RunLoadWithDeps loads NDJSON files into a local index with the provided dependencies
func RunLoadWithDeps(ctx context.Context, params RunParams, flags *pflag.FlagSet, files []string) error {
	settings, err := params.LoadSettings(flags)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	index, _ := flags.GetString("index")
	if index == "" {
		return errors.New("invalid configuration: index is required")
	}
	if settings.DataDir == "" {
		return errors.New("invalid configuration: data-dir cannot be empty")
	}
	if len(files) == 0 {
		files = []string{"-"}
	}

	logger := configureLogging(params.LogOutput, settings.Debug)
	loader := params.NewLoader(settings.DataDir, logger)

	total := 0
	for _, name := range files {
		n, err := loadFile(ctx, loader, index, name, params.Stdin)
		total += n
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", name, err)
		}
	}
	logger.Info("Load finished", "index", index, "files", len(files), "documents", total)
	return nil
}

func loadFile(ctx context.Context, loader Loader, index, name string, stdin io.Reader) (int, error) {
	if name == "-" {
		if stdin == nil {
			return 0, errors.New("no standard input")
		}
		return loader.Load(ctx, index, stdin)
	}
	f, err := os.Open(name)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()
	return loader.Load(ctx, index, f)
}

// configureLogging installs a text handler as the default logger.
// Records go to stderr so stdout stays clean.
func configureLogging(out io.Writer, debug bool) *slog.Logger {
	if out == nil {
		out = os.Stderr
	}
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func retryPolicy(s *config.Settings, sleep func(context.Context, time.Duration) error, logger *slog.Logger, m *metrics.Export) retry.Policy {
	policy := retry.DefaultPolicy(search.IsTransient)
	policy.Attempts = s.Retry.Attempts
	policy.Delay = s.Retry.Delay
	policy.Sleep = sleep
	policy.OnRetry = func(op string, attempt int, err error) {
		m.Retries.WithLabelValues(op).Inc()
		logger.Warn("Operation failed, retrying", "op", op, "attempt", attempt, "delay", s.Retry.Delay, "error", err)
	}
	return policy
}

func exportOptions(s *config.Settings, indices []string) export.Options {
	return export.Options{
		OutputFile:  s.OutputFile,
		Delimiter:   s.Delimiter,
		MetaFields:  s.MetaFields,
		FlushBuffer: s.FlushBuffer,
		Query: export.Query{
			Indices:       indices,
			Raw:           s.RawQuery,
			Body:          []byte(s.Query),
			Text:          s.Query,
			Tags:          s.Tags,
			Sort:          s.Sort,
			Fields:        s.Fields,
			Size:          s.ScrollSize,
			MaxResults:    s.MaxResults,
			ScrollTimeout: s.ScrollTimeout,
		},
	}
}
