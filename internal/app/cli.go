package app

import "github.com/spf13/pflag"

// RegisterFlags registers all export flags on the given FlagSet
func RegisterFlags(flags *pflag.FlagSet) {
	registerCommonFlags(flags)

	flags.String("backend", "", "Search backend: elasticsearch or bleve")
	flags.StringSliceP("url", "u", nil, "Elasticsearch host URL(s) (comma-separated)")
	flags.Duration("timeout", 0, "Timeout for a single cluster request")
	flags.String("auth-type", "", "Authentication type: none, basic, or apikey")
	flags.String("auth-basic-username", "", "Basic auth username")
	flags.String("auth-basic-password", "", "Basic auth password")
	flags.String("auth-api-key", "", "Elasticsearch API key")

	flags.StringSliceP("index-prefixes", "i", nil, "Index name prefix(es) or patterns (comma-separated, _all for every index)")
	flags.StringP("query", "q", "", "Query string in Lucene syntax, or a JSON body with --raw-query (@file reads it from a file)")
	flags.BoolP("raw-query", "r", false, "Treat the query as a structured JSON query")
	flags.StringSliceP("tags", "t", nil, "Query tags (comma-separated)")
	flags.StringSliceP("fields", "f", nil, "Fields to export (comma-separated, _all for every field)")
	flags.StringSliceP("sort", "S", nil, "Sort entries as field or field:asc|desc (comma-separated)")

	flags.StringP("output-file", "o", "", "CSV file location")
	flags.StringP("delimiter", "d", "", "Delimiter joining values that flatten to the same column")
	flags.IntP("max-results", "m", 0, "Maximum number of results to export (0 for all)")
	flags.IntP("scroll-size", "s", 0, "Scroll page size")
	flags.Duration("scroll-timeout", 0, "Server-side lifetime of a scroll cursor")
	flags.Int("flush-buffer", 0, "Documents buffered before they are written to the spill file")
	flags.BoolP("meta-fields", "e", false, "Add _id, _index, _score and _type columns")

	flags.Int("retry-attempts", 0, "Retries of a failing cluster call before the final attempt")
	flags.Duration("retry-delay", 0, "Wait between retries")
	flags.String("metrics-file", "", "Write Prometheus text-format run metrics to this file")
}

// RegisterLoadFlags registers the flags of the load command on the given FlagSet
func RegisterLoadFlags(flags *pflag.FlagSet) {
	registerCommonFlags(flags)
	flags.String("index", "", "Name of the local index to load into")
}

func registerCommonFlags(flags *pflag.FlagSet) {
	flags.StringP("config", "c", "", "Configuration file (yaml, json, toml or env)")
	flags.String("data-dir", "", "Directory holding local bleve indexes")
	flags.Bool("debug", false, "Enable debug logging")
}
