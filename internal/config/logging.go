package config

import (
	"context"
	"log/slog"
	"strings"
)

const mask = "****"

// Log logs the resolved settings in a granular way, skipping irrelevant ones
func Log(s *Settings) {
	LogWithLogger(s, slog.Default())
}

// LogWithLogger logs the resolved settings using the provided logger
func LogWithLogger(s *Settings, logger *slog.Logger) {
	ctx := context.Background()
	logger.InfoContext(ctx, "Config: backend", "value", s.Backend)
	switch s.Backend {
	case BackendElastic:
		logger.InfoContext(ctx, "Config: url", "value", strings.Join(s.URLs, ","))
		logger.InfoContext(ctx, "Config: timeout", "value", s.Timeout)
		logger.InfoContext(ctx, "Config: auth.type", "value", s.Auth.Type)
		switch s.Auth.Type {
		case AuthTypeBasic:
			logger.InfoContext(ctx, "Config: auth.basic.username", "value", s.Auth.Basic.Username)
			logger.InfoContext(ctx, "Config: auth.basic.password", "value", mask)
		case AuthTypeAPIKey:
			logger.InfoContext(ctx, "Config: auth.api_key", "value", mask)
		}
	case BackendBleve:
		logger.InfoContext(ctx, "Config: data_dir", "value", s.DataDir)
	}

	logger.InfoContext(ctx, "Config: index_prefixes", "value", strings.Join(s.Indices, ","))
	logger.InfoContext(ctx, "Config: output_file", "value", s.OutputFile)
	logger.InfoContext(ctx, "Config: scroll_size", "value", s.ScrollSize)
	if s.MaxResults > 0 {
		logger.InfoContext(ctx, "Config: max_results", "value", s.MaxResults)
	}
	if s.MetricsFile != "" {
		logger.InfoContext(ctx, "Config: metrics_file", "value", s.MetricsFile)
	}
}

// AuthSettingsLogValue returns a slog.Value for AuthSettings with masked data
func AuthSettingsLogValue(s AuthSettings) slog.Value {
	apiKey := ""
	if s.APIKey != "" {
		apiKey = mask
	}
	return slog.GroupValue(
		slog.String("type", s.Type),
		slog.Any("basic", BasicAuthSettingsLogValue(s.Basic)),
		slog.String("api_key", apiKey),
	)
}

// BasicAuthSettingsLogValue returns a slog.Value for BasicAuthSettings with masked data
func BasicAuthSettingsLogValue(s BasicAuthSettings) slog.Value {
	return slog.GroupValue(
		slog.String("username", s.Username),
		slog.String("password", mask),
	)
}

// SettingsLogValue returns a slog.Value for Settings with masked data
func SettingsLogValue(s Settings) slog.Value {
	return slog.GroupValue(
		slog.String("backend", s.Backend),
		slog.Any("url", s.URLs),
		slog.Any("auth", AuthSettingsLogValue(s.Auth)),
		slog.String("data_dir", s.DataDir),
		slog.Any("index_prefixes", s.Indices),
		slog.String("query", s.Query),
		slog.Bool("raw_query", s.RawQuery),
		slog.Any("fields", s.Fields),
		slog.Any("sort", s.Sort),
		slog.String("output_file", s.OutputFile),
		slog.Int("max_results", s.MaxResults),
		slog.Int("scroll_size", s.ScrollSize),
	)
}
