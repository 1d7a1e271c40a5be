package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Job store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StoreSupabase = "supabase"
)

// EnvConfig holds environment variables
type EnvConfig struct {
	// Server
	Addr        string
	Env         string
	CORSOrigins []string

	// Logging
	LogLevel  string
	LogFormat string

	// Job queue
	JobStore      string
	JobSQLitePath string

	// Supabase
	SupabaseURL            string
	SupabaseAnonKey        string
	SupabaseServiceRoleKey string
	SupabaseTimeout        time.Duration

	// Profit Engine results
	ResultsDir   string
	ResultsWatch bool

	// Optional YAML engine catalog
	EnginesConfig string
}

// envFiles are loaded in order; godotenv never overrides a variable that is
// already set, so earlier files win.
var envFiles = []string{".env.local", ".env"}

// LoadEnv loads environment variables
func LoadEnv() (*EnvConfig, error) {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", f, err)
			}
		}
	}
	return FromEnv()
}

// FromEnv reads configuration from the process environment only.
func FromEnv() (*EnvConfig, error) {
	cfg := &EnvConfig{
		Addr:        getEnv("KB_ADDR", ":3000"),
		Env:         deploymentEnv(),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"*"}),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		JobStore:      strings.ToLower(getEnv("JOB_STORE", StoreMemory)),
		JobSQLitePath: getEnv("JOB_SQLITE_PATH", filepath.Join("data", "jobs.db")),

		SupabaseURL:            strings.TrimRight(getEnv("SUPABASE_URL", ""), "/"),
		SupabaseAnonKey:        getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceRoleKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		SupabaseTimeout:        getEnvDuration("SUPABASE_TIMEOUT", 10*time.Second),

		ResultsDir:   getEnv("PROFIT_ENGINE_RESULTS_DIR", "results"),
		ResultsWatch: getEnvBool("RESULTS_WATCH", true),

		EnginesConfig: getEnv("ENGINES_CONFIG", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *EnvConfig) Validate() error {
	switch c.JobStore {
	case StoreMemory:
	case StoreSQLite:
		if c.JobSQLitePath == "" {
			return fmt.Errorf("JOB_SQLITE_PATH must be set when JOB_STORE=sqlite")
		}
	case StoreSupabase:
		if c.SupabaseURL == "" || c.SupabaseServiceRoleKey == "" {
			return fmt.Errorf("missing SUPABASE_URL or SUPABASE_SERVICE_ROLE_KEY (required when JOB_STORE=supabase)")
		}
	default:
		return fmt.Errorf("unsupported JOB_STORE: %s (supported: memory, sqlite, supabase)", c.JobStore)
	}
	if c.SupabaseTimeout <= 0 {
		return fmt.Errorf("SUPABASE_TIMEOUT must be positive")
	}
	return nil
}

// WaitlistEnabled reports whether signups can be persisted.
func (c *EnvConfig) WaitlistEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseAnonKey != ""
}

// deploymentEnv mirrors how the hosted build labels itself: "vercel" whenever
// the platform variable is present, otherwise KB_ENV or "local".
func deploymentEnv() string {
	if os.Getenv("VERCEL") != "" {
		return "vercel"
	}
	return getEnv("KB_ENV", "local")
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "on", "yes":
		return true
	case "0", "false", "off", "no":
		return false
	default:
		return defaultValue
	}
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// Bare integers are seconds.
	if n := getEnvInt(key, -1); n >= 0 {
		return time.Duration(n) * time.Second
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// ExpandEnvVars replaces ${VAR_NAME} with environment variable values.
func ExpandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}
