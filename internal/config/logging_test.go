package config

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLog(t *testing.T) {
	// Just verify it doesn't panic
	s := &Settings{
		Backend: BackendElastic,
		URLs:    []string{"http://localhost:9200"},
		Auth: AuthSettings{
			Type: AuthTypeNone,
		},
	}
	Log(s) // Should not panic
}

func TestLogWithLogger_ElasticBackend(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	s := &Settings{
		Backend:    BackendElastic,
		URLs:       []string{"http://a:9200", "http://b:9200"},
		Auth:       AuthSettings{Type: AuthTypeNone},
		DataDir:    "/var/lib/es2csv",
		Indices:    []string{"logs-*"},
		OutputFile: "out.csv",
	}

	LogWithLogger(s, logger)

	output := buf.String()
	if !strings.Contains(output, "http://a:9200,http://b:9200") {
		t.Errorf("Expected urls in log output, got: %s", output)
	}
	if strings.Contains(output, "data_dir") {
		t.Error("Expected no 'data_dir' in log output for elasticsearch backend")
	}
	if strings.Contains(output, "max_results") {
		t.Error("Expected no 'max_results' in log output when unlimited")
	}
}

func TestLogWithLogger_BleveBackend(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	s := &Settings{
		Backend:    BackendBleve,
		URLs:       []string{"http://localhost:9200"},
		DataDir:    "/var/lib/es2csv",
		MaxResults: 10,
	}

	LogWithLogger(s, logger)

	output := buf.String()
	if !strings.Contains(output, "data_dir") {
		t.Error("Expected 'data_dir' in log output for bleve backend")
	}
	if strings.Contains(output, "localhost:9200") {
		t.Error("Expected no url in log output for bleve backend")
	}
	if !strings.Contains(output, "max_results") {
		t.Error("Expected 'max_results' in log output")
	}
}

func TestLogWithLogger_BasicAuth(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	s := &Settings{
		Backend: BackendElastic,
		Auth: AuthSettings{
			Type: AuthTypeBasic,
			Basic: BasicAuthSettings{
				Username: "admin",
				Password: "secret",
			},
		},
	}

	LogWithLogger(s, logger)

	output := buf.String()
	if !strings.Contains(output, "admin") {
		t.Error("Expected username in log output")
	}
	if !strings.Contains(output, "****") {
		t.Error("Expected masked password in log output")
	}
	if strings.Contains(output, "secret") {
		t.Error("Password should be masked, not shown in plain text")
	}
}

func TestLogWithLogger_APIKeyAuth(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	s := &Settings{
		Backend: BackendElastic,
		Auth: AuthSettings{
			Type:   AuthTypeAPIKey,
			APIKey: "top-secret-key",
		},
	}

	LogWithLogger(s, logger)

	output := buf.String()
	if strings.Contains(output, "top-secret-key") {
		t.Errorf("API key should be masked, got: %s", output)
	}
	if !strings.Contains(output, "auth.api_key") {
		t.Errorf("Expected 'auth.api_key' in log output, got: %s", output)
	}
}

func TestSettingsLogValue(t *testing.T) {
	s := Settings{
		Backend: BackendElastic,
		Auth: AuthSettings{
			Type:   AuthTypeAPIKey,
			APIKey: "key1",
		},
	}

	val := SettingsLogValue(s)
	if val.Kind() != slog.KindGroup {
		t.Errorf("Expected group kind, got %v", val.Kind())
	}

	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("settings", "settings", val)
	if strings.Contains(buf.String(), "key1") {
		t.Errorf("API key should be masked, got: %s", buf.String())
	}
}

func TestAuthSettingsLogValue(t *testing.T) {
	s := AuthSettings{
		Type:   AuthTypeAPIKey,
		APIKey: "key1",
		Basic: BasicAuthSettings{
			Username: "user",
			Password: "pass",
		},
	}

	val := AuthSettingsLogValue(s)
	if val.Kind() != slog.KindGroup {
		t.Errorf("Expected group kind, got %v", val.Kind())
	}
}

func TestBasicAuthSettingsLogValue(t *testing.T) {
	s := BasicAuthSettings{
		Username: "admin",
		Password: "secret",
	}

	val := BasicAuthSettingsLogValue(s)
	if val.Kind() != slog.KindGroup {
		t.Errorf("Expected group kind, got %v", val.Kind())
	}
}
