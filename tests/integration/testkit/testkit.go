// Package testkit starts the external services an end-to-end export needs and
// builds CLI flag sets pointing at them.
package testkit

import (
	"net"
	"strconv"
	"testing"

	"github.com/sha1n/es2csv/internal/app"
	"github.com/spf13/pflag"
)

// Service represents a test service that can be started and stopped
type Service interface {
	Start() (map[string]any, error)
	Stop() error
	GetName() string
}

// TestEnvContext provides access to properties collected during environment startup
type TestEnvContext interface {
	GetProperties() map[string]any
	GetProperty(name string) (any, bool)
}

// TestEnv manages the lifecycle of test services
type TestEnv interface {
	Start() (map[string]any, error)
	Stop() error
	GetContext() TestEnvContext
}

type testEnvContextImpl struct {
	properties map[string]any
}

func (c *testEnvContextImpl) GetProperties() map[string]any {
	return c.properties
}

func (c *testEnvContextImpl) GetProperty(name string) (any, bool) {
	val, ok := c.properties[name]
	return val, ok
}

type testEnvImpl struct {
	services []Service
	started  []Service
	context  *testEnvContextImpl
}

// NewTestEnv creates a new test environment with the given services
func NewTestEnv(services ...Service) TestEnv {
	return &testEnvImpl{
		services: services,
		context:  &testEnvContextImpl{properties: make(map[string]any)},
	}
}

// Start starts the services in order. When one fails, the services already
// started are stopped again.
func (e *testEnvImpl) Start() (map[string]any, error) {
	for _, s := range e.services {
		props, err := s.Start()
		if err != nil {
			_ = e.Stop()
			return nil, err
		}
		e.started = append(e.started, s)
		for k, v := range props {
			e.context.properties[k] = v
		}
	}
	return e.context.properties, nil
}

func (e *testEnvImpl) Stop() error {
	var lastErr error
	// Stop in reverse order
	for i := len(e.started) - 1; i >= 0; i-- {
		if err := e.started[i].Stop(); err != nil {
			lastErr = err
		}
	}
	e.started = nil
	return lastErr
}

func (e *testEnvImpl) GetContext() TestEnvContext {
	return e.context
}

// MustStart starts env and registers its shutdown with t.Cleanup.
func MustStart(t testing.TB, env TestEnv) map[string]any {
	t.Helper()
	props, err := env.Start()
	if err != nil {
		t.Fatalf("Failed to start test environment: %v", err)
	}
	t.Cleanup(func() {
		if err := env.Stop(); err != nil {
			t.Errorf("Failed to stop test environment: %v", err)
		}
	})
	return props
}

// GetFreePort returns a free port from the kernel
func GetFreePort() (int, error) {
	return getFreePortWithAddr("localhost:0")
}

// MustGetFreePort returns a free port or fails the test
func MustGetFreePort(t testing.TB) int {
	t.Helper()
	port, err := GetFreePort()
	if err != nil {
		t.Fatalf("Failed to get free port: %v", err)
	}
	return port
}

func getFreePortWithAddr(addrStr string) (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", addrStr)
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// FlagOptions configures NewTestFlags
type FlagOptions struct {
	URL         string   // Required
	OutputFile  string   // Required
	Indices     []string // Defaults to "_all"
	Query       string   // Defaults to "*"
	ScrollSize  int      // Defaults to 2 to force several pages
	MaxResults  int
	MetaFields  bool
	MetricsFile string
	// Extra holds additional flag values by name.
	Extra map[string]string
}

// NewTestFlags creates a configured pflag.FlagSet for testing. Retries wait
// one millisecond so that failure scenarios stay fast.
func NewTestFlags(t testing.TB, opts FlagOptions) *pflag.FlagSet {
	t.Helper()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	app.RegisterFlags(flags)

	indices := opts.Indices
	if len(indices) == 0 {
		indices = []string{"_all"}
	}
	query := opts.Query
	if query == "" {
		query = "*"
	}
	scrollSize := opts.ScrollSize
	if scrollSize == 0 {
		scrollSize = 2
	}

	values := map[string]string{
		"backend":        "elasticsearch",
		"url":            opts.URL,
		"output-file":    opts.OutputFile,
		"query":          query,
		"scroll-size":    strconv.Itoa(scrollSize),
		"max-results":    strconv.Itoa(opts.MaxResults),
		"meta-fields":    strconv.FormatBool(opts.MetaFields),
		"metrics-file":   opts.MetricsFile,
		"retry-attempts": "2",
		"retry-delay":    "1ms",
	}
	for k, v := range opts.Extra {
		values[k] = v
	}
	for name, value := range values {
		if err := flags.Set(name, value); err != nil {
			t.Fatalf("Failed to set flag %s: %v", name, err)
		}
	}
	for _, index := range indices {
		if err := flags.Set("index-prefixes", index); err != nil {
			t.Fatalf("Failed to set index-prefixes: %v", err)
		}
	}

	return flags
}
