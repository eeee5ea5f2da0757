package duckdb

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

// MemoryPath is the database path for a private in-memory database.
const MemoryPath = ":memory:"

// File formats accepted by LoadSpec.
const (
	FormatCSV     = "csv"
	FormatJSON    = "json"
	FormatParquet = "parquet"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config contains DuckDB-specific connection options.
type Config struct {
	DatabasePath string
	ReadOnly     bool
	// Extensions are installed and loaded on connect, e.g. "httpfs".
	Extensions []string
	// Settings are passed as database open options in the DSN, e.g. threads=4.
	Settings map[string]string
	// Preload creates tables from files on connect.
	Preload []LoadSpec
}

// LoadSpec describes a file to materialize as a table.
type LoadSpec struct {
	Table  string
	Path   string
	Format string
	CSV    CSVOptions
}

// CSVOptions control read_csv_auto.
type CSVOptions struct {
	Delimiter string
	Header    bool
	SkipRows  int
}

// DefaultCSVOptions returns comma separated input with a header row.
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{Delimiter: ",", Header: true}
}

func (c *Config) DataSourceType() models.DataSourceType {
	return models.DataSourceDuckDB
}

// Validate rejects names that are spliced into SQL unquoted.
func (c *Config) Validate() error {
	for _, ext := range c.Extensions {
		if !identPattern.MatchString(ext) {
			return fmt.Errorf("invalid extension name %q", ext)
		}
	}
	for k := range c.Settings {
		if !identPattern.MatchString(k) {
			return fmt.Errorf("invalid setting name %q", k)
		}
	}
	for i, p := range c.Preload {
		if p.Table == "" || p.Path == "" {
			return fmt.Errorf("preload[%d]: table and path are required", i)
		}
		switch p.Format {
		case FormatCSV, FormatJSON, FormatParquet:
		default:
			return fmt.Errorf("preload[%d]: unsupported format %q", i, p.Format)
		}
	}
	if c.ReadOnly && c.IsMemory() {
		return fmt.Errorf("read_only requires a database_path")
	}
	if c.ReadOnly && len(c.Preload) > 0 {
		return fmt.Errorf("preload is not allowed on a read_only database")
	}
	return nil
}

// IsMemory reports whether the database lives only in process memory.
func (c *Config) IsMemory() bool {
	return c.DatabasePath == "" || c.DatabasePath == MemoryPath
}

// Fingerprint identifies everything that shapes the opened database.
func (c *Config) Fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|ro=%t|ext=%s", c.DatabasePath, c.ReadOnly, strings.Join(c.Extensions, ","))
	keys := make([]string, 0, len(c.Settings))
	for k := range c.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%s", k, c.Settings[k])
	}
	for _, p := range c.Preload {
		fmt.Fprintf(&b, "|load=%s:%s:%s", p.Table, p.Format, p.Path)
	}
	return b.String()
}

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{DatabasePath: MemoryPath}

	if path, ok := datasource.MapString(config, "database_path"); ok && path != "" {
		cfg.DatabasePath = path
	} else if path, ok := datasource.MapString(config, "path"); ok && path != "" {
		cfg.DatabasePath = path
	}
	if ro, ok := datasource.MapBool(config, "read_only"); ok {
		cfg.ReadOnly = ro
	}
	cfg.Extensions = datasource.MapStringSlice(config, "extensions")
	cfg.Settings = datasource.MapStringMap(config, "settings")

	var items []map[string]any
	switch raw := config["preload"].(type) {
	case []map[string]any:
		items = raw
	case []any:
		for i, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("preload[%d] must be an object", i)
			}
			items = append(items, m)
		}
	}
	for i, m := range items {
		spec, err := loadSpecFromMap(m)
		if err != nil {
			return nil, fmt.Errorf("preload[%d]: %w", i, err)
		}
		cfg.Preload = append(cfg.Preload, spec)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadSpecFromMap(m map[string]any) (LoadSpec, error) {
	spec := LoadSpec{CSV: DefaultCSVOptions()}
	var err error
	if spec.Table, err = datasource.RequireString(m, "table"); err != nil {
		return spec, err
	}
	if spec.Path, err = datasource.RequireString(m, "path"); err != nil {
		return spec, err
	}
	if format, ok := datasource.MapString(m, "format"); ok && format != "" {
		spec.Format = strings.ToLower(format)
	} else {
		spec.Format = formatFromPath(spec.Path)
	}
	if d, ok := datasource.MapString(m, "delimiter"); ok && d != "" {
		spec.CSV.Delimiter = d
	}
	if h, ok := datasource.MapBool(m, "header"); ok {
		spec.CSV.Header = h
	}
	if skip, ok := datasource.MapInt(m, "skip"); ok {
		spec.CSV.SkipRows = skip
	}
	return spec, nil
}

func formatFromPath(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".parquet"):
		return FormatParquet
	case strings.HasSuffix(lower, ".json"), strings.HasSuffix(lower, ".ndjson"), strings.HasSuffix(lower, ".jsonl"):
		return FormatJSON
	default:
		return FormatCSV
	}
}

var _ models.BackendConfig = (*Config)(nil)
