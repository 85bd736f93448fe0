package app

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestRegisterFlags(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)

	// Verify all flags are registered
	expectedFlags := []string{
		"config",
		"data-dir",
		"debug",
		"backend",
		"url",
		"timeout",
		"auth-type",
		"auth-basic-username",
		"auth-basic-password",
		"auth-api-key",
		"index-prefixes",
		"query",
		"raw-query",
		"tags",
		"fields",
		"sort",
		"output-file",
		"delimiter",
		"max-results",
		"scroll-size",
		"scroll-timeout",
		"flush-buffer",
		"meta-fields",
		"retry-attempts",
		"retry-delay",
		"metrics-file",
	}

	for _, name := range expectedFlags {
		if flags.Lookup(name) == nil {
			t.Errorf("Expected flag %q to be registered", name)
		}
	}
}

func TestRegisterFlags_Shorthand(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)

	shorthandFlags := map[string]string{
		"config":         "c",
		"url":            "u",
		"index-prefixes": "i",
		"query":          "q",
		"raw-query":      "r",
		"tags":           "t",
		"fields":         "f",
		"sort":           "S",
		"output-file":    "o",
		"delimiter":      "d",
		"max-results":    "m",
		"scroll-size":    "s",
		"meta-fields":    "e",
	}

	for name, shorthand := range shorthandFlags {
		flag := flags.Lookup(name)
		if flag == nil {
			t.Errorf("Flag %q not found", name)
			continue
		}
		if flag.Shorthand != shorthand {
			t.Errorf("Flag %q expected shorthand %q, got %q", name, shorthand, flag.Shorthand)
		}
	}
}

func TestRegisterFlags_SetValues(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)

	err := flags.Parse([]string{
		"-q", "level:error",
		"-i", "logs-a,logs-b",
		"-o", "out.csv",
		"-m", "10",
		"-e",
	})
	if err != nil {
		t.Fatalf("Failed to parse flags: %v", err)
	}

	query, _ := flags.GetString("query")
	if query != "level:error" {
		t.Errorf("Expected query 'level:error', got '%s'", query)
	}

	indices, _ := flags.GetStringSlice("index-prefixes")
	if len(indices) != 2 || indices[0] != "logs-a" || indices[1] != "logs-b" {
		t.Errorf("Expected [logs-a logs-b], got %v", indices)
	}

	output, _ := flags.GetString("output-file")
	if output != "out.csv" {
		t.Errorf("Expected output-file 'out.csv', got '%s'", output)
	}

	maxResults, _ := flags.GetInt("max-results")
	if maxResults != 10 {
		t.Errorf("Expected max-results 10, got %d", maxResults)
	}

	meta, _ := flags.GetBool("meta-fields")
	if !meta {
		t.Error("Expected meta-fields to be set")
	}
}

func TestRegisterLoadFlags(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterLoadFlags(flags)

	for _, name := range []string{"config", "data-dir", "debug", "index"} {
		if flags.Lookup(name) == nil {
			t.Errorf("Expected flag %q to be registered", name)
		}
	}
	if flags.Lookup("query") != nil {
		t.Error("Expected export flags not to be registered on the load command")
	}
}
