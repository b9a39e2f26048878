// Package config loads DataFinder settings from the environment.
// Every field has a default, so a bare checkout runs without a .env file;
// Load validates the result and reports every problem at once.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Security SecurityConfig
	Paths    PathsConfig
	Logging  LoggingConfig
	History  HistoryConfig
	Run      RunConfig
}

// ServerConfig holds settings for the local web interface.
type ServerConfig struct {
	// Host is the interface to bind to (default: 127.0.0.1, local use only)
	Host string `env:"SERVER_HOST" default:"127.0.0.1"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"10m"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// MaxUploadSize caps multipart request bodies in bytes (default: 100MB)
	MaxUploadSize int64 `env:"SERVER_MAX_UPLOAD_SIZE" default:"104857600"`
}

// SecurityConfig guards the HTTP API when it is exposed beyond localhost.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// X-Real-IP / X-Forwarded-For headers are believed
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// APIKeys, when set, are required in the X-API-Key header of /api calls
	APIKeys []string `env:"API_KEYS"`
}

// PathsConfig locates inputs, outputs and scratch space.
type PathsConfig struct {
	InputDir   string `env:"INPUT_DIR" envAlt:"DIRETORIO_ENTRADA" default:"dados/entrada"`
	OutputDir  string `env:"OUTPUT_DIR" envAlt:"DIRETORIO_SAIDA" default:"dados/saida"`
	OutputFile string `env:"OUTPUT_FILE" default:"Clientes_Com_Telefones.xlsx"`

	// ExtractTempDir is the scratch directory for raw package extraction.
	ExtractTempDir string `env:"EXTRACT_TEMP_DIR" default:"xlsx_extracted"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`

	// ToFile enables the rotating log files in Dir (default: true)
	ToFile bool   `env:"LOG_TO_FILE" default:"true"`
	Dir    string `env:"LOG_DIR" default:"logs"`

	MaxSizeMB       int `env:"LOG_MAX_SIZE_MB" default:"5"`
	MaxBackups      int `env:"LOG_MAX_BACKUPS" default:"5"`
	ErrorMaxSizeMB  int `env:"LOG_ERROR_MAX_SIZE_MB" default:"2"`
	ErrorMaxBackups int `env:"LOG_ERROR_MAX_BACKUPS" default:"3"`
}

// HistoryConfig holds run history settings. An empty DSN disables history.
type HistoryConfig struct {
	// DSN is a SQLite path (optionally "sqlite:"-prefixed) or a postgres:// URL
	DSN string `env:"HISTORY_DSN" envAlt:"DATABASE_URL"`

	// Retention is how long runs are kept (default: 90 days)
	Retention time.Duration `env:"HISTORY_RETENTION" default:"2160h"`

	// PruneInterval is how often old runs are deleted (default: 24h)
	PruneInterval time.Duration `env:"HISTORY_PRUNE_INTERVAL" default:"24h"`
}

// RunConfig bounds concurrent match/merge runs.
type RunConfig struct {
	// MaxConcurrent is the number of runs allowed at once (default: 1).
	// Raw extractions still take turns on the shared scratch directory.
	MaxConcurrent int `env:"RUN_MAX_CONCURRENT" default:"1"`

	// MaxWait is how long a request waits for a run slot (default: 30s)
	MaxWait time.Duration `env:"RUN_MAX_WAIT" default:"30s"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
