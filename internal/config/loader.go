package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Load reads configuration from the process environment, applies defaults
// and validates the result.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom is Load with a custom variable source.
func LoadFrom(lookup LookupFunc) (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), lookup); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct recursively populates struct fields from tagged variables.
func loadStruct(v reflect.Value, lookup LookupFunc) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct {
			if err := loadStruct(fieldVal, lookup); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		value := lookupFirst(lookup, envName, field.Tag.Get("envAlt"))
		if value == "" {
			if field.Tag.Get("required") == "true" {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

func lookupFirst(lookup LookupFunc, names ...string) string {
	for _, name := range names {
		if name == "" {
			continue
		}
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

var durationType = reflect.TypeOf(time.Duration(0))

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type())
		}
		var parts []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		field.Set(reflect.ValueOf(parts))

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is usable and describes every
// failure in a single error.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.IdleTimeout < 0 {
		errs = append(errs, "SERVER_*_TIMEOUT values must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.MaxUploadSize <= 0 {
		errs = append(errs, "SERVER_MAX_UPLOAD_SIZE must be positive")
	}

	if c.Paths.OutputFile == "" || !strings.EqualFold(ext(c.Paths.OutputFile), ".xlsx") {
		errs = append(errs, fmt.Sprintf("OUTPUT_FILE (%q) must name an .xlsx file", c.Paths.OutputFile))
	}
	if c.Paths.ExtractTempDir == "" || c.Paths.ExtractTempDir == "." || c.Paths.ExtractTempDir == "/" {
		errs = append(errs, fmt.Sprintf("EXTRACT_TEMP_DIR (%q) must be a dedicated directory; it is deleted after every extraction", c.Paths.ExtractTempDir))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}
	if c.Logging.ToFile {
		if c.Logging.Dir == "" {
			errs = append(errs, "LOG_DIR is required when LOG_TO_FILE is true")
		}
		if c.Logging.MaxSizeMB <= 0 || c.Logging.ErrorMaxSizeMB <= 0 {
			errs = append(errs, "LOG_MAX_SIZE_MB and LOG_ERROR_MAX_SIZE_MB must be positive")
		}
		if c.Logging.MaxBackups < 0 || c.Logging.ErrorMaxBackups < 0 {
			errs = append(errs, "LOG_MAX_BACKUPS and LOG_ERROR_MAX_BACKUPS must be non-negative")
		}
	}

	if c.History.Retention <= 0 {
		errs = append(errs, "HISTORY_RETENTION must be positive")
	}
	if c.History.PruneInterval <= 0 {
		errs = append(errs, "HISTORY_PRUNE_INTERVAL must be positive")
	}

	if c.Run.MaxConcurrent <= 0 {
		errs = append(errs, "RUN_MAX_CONCURRENT must be positive")
	}
	if c.Run.MaxWait <= 0 {
		errs = append(errs, "RUN_MAX_WAIT must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

func ext(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i:]
	}
	return ""
}

// String returns a safe representation of the config for logging.
// Credentials in the history DSN are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Addr: %q}, ", c.Server.Addr())
	fmt.Fprintf(&b, "Security: {TrustedProxies: %v, APIKeys: %d}, ", c.Security.TrustedProxies, len(c.Security.APIKeys))
	fmt.Fprintf(&b, "Paths: {Input: %q, Output: %q, File: %q, Temp: %q}, ",
		c.Paths.InputDir, c.Paths.OutputDir, c.Paths.OutputFile, c.Paths.ExtractTempDir)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q, ToFile: %v, Dir: %q}, ",
		c.Logging.Level, c.Logging.Format, c.Logging.ToFile, c.Logging.Dir)
	fmt.Fprintf(&b, "History: {DSN: %s, Retention: %s}, ", maskDSN(c.History.DSN), c.History.Retention)
	fmt.Fprintf(&b, "Run: {MaxConcurrent: %d, MaxWait: %s}", c.Run.MaxConcurrent, c.Run.MaxWait)
	b.WriteString("}")
	return b.String()
}

func maskDSN(dsn string) string {
	switch {
	case dsn == "":
		return "[DISABLED]"
	case strings.Contains(dsn, "://"):
		return "[MASKED]"
	default:
		return strconv.Quote(dsn)
	}
}
