package storage

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Adapter kinds selectable via configuration.
const (
	AdapterJSON     = "json"
	AdapterSupabase = "supabase"
	AdapterDual     = "dual"
)

// Config for the storage backend stack.
type Config struct {
	// Adapter selects the backend: "json", "supabase" or "dual".
	Adapter string

	// JSON backend config
	JSONPath string

	// Supabase (Postgres) config. SupabaseDBURL is a full Postgres DSN
	// and takes precedence; otherwise the DSN is derived from the
	// project URL and service key.
	SupabaseDBURL      string
	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseMaxConns   int
	SupabaseMinConns   int
	SupabaseTimeout    time.Duration

	// Dual-write config
	DualReadFrom         string // "json" or "supabase"
	DualSecondaryTimeout time.Duration

	// Cache config
	CacheEnabled  bool
	RedisURL      string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration
	L1CacheSize   int

	// Metrics
	MetricsEnabled bool
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Adapter:              AdapterJSON,
		JSONPath:             "data/storage",
		SupabaseMaxConns:     20,
		SupabaseMinConns:     2,
		SupabaseTimeout:      10 * time.Second,
		DualReadFrom:         AdapterJSON,
		DualSecondaryTimeout: 2 * time.Second,
		CacheTTL:             5 * time.Minute,
		L1CacheSize:          1024,
		MetricsEnabled:       true,
	}
}

// Validate checks the configuration for the selected adapter kind.
// Construction failures must surface at startup, not at first use.
func (c Config) Validate() error {
	switch c.Adapter {
	case AdapterJSON:
		if c.JSONPath == "" {
			return fmt.Errorf("json path is required for json storage")
		}
	case AdapterSupabase:
		if err := c.validateSupabase(); err != nil {
			return err
		}
	case AdapterDual:
		if c.JSONPath == "" {
			return fmt.Errorf("json path is required for dual storage")
		}
		if err := c.validateSupabase(); err != nil {
			return err
		}
		if c.DualReadFrom != AdapterJSON && c.DualReadFrom != AdapterSupabase {
			return fmt.Errorf("invalid dual read source: %s (must be json or supabase)", c.DualReadFrom)
		}
	default:
		return fmt.Errorf("invalid storage adapter: %s (must be json, supabase, or dual)", c.Adapter)
	}

	if c.CacheEnabled && c.RedisURL == "" {
		return fmt.Errorf("redis URL is required when the document cache is enabled")
	}
	return nil
}

func (c Config) validateSupabase() error {
	if c.SupabaseDBURL != "" {
		return nil
	}
	if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
		return fmt.Errorf("supabase credentials are required: set SUPABASE_DB_URL or both SUPABASE_URL and SUPABASE_SERVICE_KEY")
	}
	return nil
}

// SupabaseDSN resolves the Postgres connection string for the Supabase
// backend. An explicit DSN wins; otherwise one is derived from the
// project URL (https://<ref>.supabase.co) and the service key, targeting
// the project's direct database host.
func (c Config) SupabaseDSN() (string, error) {
	if c.SupabaseDBURL != "" {
		return c.SupabaseDBURL, nil
	}

	u, err := url.Parse(c.SupabaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid supabase URL: %w", err)
	}
	ref := strings.Split(u.Hostname(), ".")[0]
	if ref == "" {
		return "", fmt.Errorf("invalid supabase URL: missing project ref in %q", c.SupabaseURL)
	}

	return fmt.Sprintf("postgres://postgres:%s@db.%s.supabase.co:5432/postgres?sslmode=require",
		url.QueryEscape(c.SupabaseServiceKey), ref), nil
}
