// Package config provides centralized configuration management for tabload.
// It loads configuration from environment variables (optionally seeded from
// .env files) with sensible defaults and validates all settings up front to
// fail fast on misconfiguration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/tabload/internal/core"
)

// Config holds all configuration.
// All settings can be configured via environment variables.
type Config struct {
	Loader   LoaderConfig
	Database DatabaseConfig
	Logging  LoggingConfig
}

// LoaderConfig holds the defaults applied to every load request that does
// not set its own value.
type LoaderConfig struct {
	// Encodings is the ordered list of candidate encodings (default: utf-8,latin-1)
	Encodings []string `env:"TABLOAD_ENCODINGS" default:"utf-8,latin-1"`

	// ChunkSize is the default rows per chunk; 0 loads whole sources (default: 0)
	ChunkSize int `env:"TABLOAD_CHUNK_SIZE" default:"0"`

	// Delimiter is the CSV field separator (default: ",")
	Delimiter string `env:"TABLOAD_DELIMITER" default:","`

	// NullTokens are raw values treated as missing in typed columns
	NullTokens []string `env:"TABLOAD_NULL_TOKENS" default:"NA,N/A,null,NULL"`

	// HeaderSearchRows bounds how far FindHeader looks for the header (default: 20)
	HeaderSearchRows int `env:"TABLOAD_HEADER_SEARCH_ROWS" default:"20"`

	// MaxIssues caps the row issues kept on a result (default: 100)
	MaxIssues int `env:"TABLOAD_MAX_ISSUES" default:"100"`

	// MaxStreamBytes caps how much of a non-seekable stream is buffered (default: 100MB)
	MaxStreamBytes int64 `env:"TABLOAD_MAX_STREAM_BYTES" default:"104857600"`

	// Types declares default column types as name:type pairs, e.g. "id:int,price:float"
	Types []string `env:"TABLOAD_TYPES"`

	// InferTypes enables type inference for undeclared columns (default: false)
	InferTypes bool `env:"TABLOAD_INFER_TYPES" default:"false"`

	// Timeout bounds a whole Load call; 0 disables it (default: 0s)
	Timeout time.Duration `env:"TABLOAD_TIMEOUT" default:"0s"`
}

// DatabaseConfig holds settings for the optional PostgreSQL copy sink.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string; empty disables the sink.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 0)
	MinConns int `env:"DB_MIN_CONNS" default:"0"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// DelimiterRune returns the configured delimiter as a rune.
// "\t" and "tab" select a tab.
func (c *LoaderConfig) DelimiterRune() rune {
	switch c.Delimiter {
	case "", ",":
		return ','
	case `\t`, "tab":
		return '\t'
	}
	for _, r := range c.Delimiter {
		return r
	}
	return ','
}

// ColumnTypes parses Types into a column type map. Names may contain
// colons; the type is taken after the last one.
func (c *LoaderConfig) ColumnTypes() (map[string]core.FieldType, error) {
	if len(c.Types) == 0 {
		return nil, nil
	}
	types := make(map[string]core.FieldType, len(c.Types))
	for _, entry := range c.Types {
		i := strings.LastIndexByte(entry, ':')
		if i <= 0 {
			return nil, fmt.Errorf("%q is not name:type", entry)
		}
		name := strings.TrimSpace(entry[:i])
		ft, err := core.ParseFieldType(strings.ToLower(strings.TrimSpace(entry[i+1:])))
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", name, err)
		}
		types[name] = ft
	}
	return types, nil
}
