package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"sfs/forecast-engine/pkg/types"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration values.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// Validate validates the entire configuration and returns any errors.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = make(ValidationErrors, 0)

	v.validateServerConfig(&cfg.Server)
	v.validateMasterConfig(&cfg.Master)
	v.validateWorkerConfig(&cfg.Worker)
	v.validateForecastConfig(&cfg.Forecast)
	v.validateDatabaseConfig(&cfg.Database)
	v.validateRedisConfig(&cfg.Redis)
	v.validateScheduleConfig(&cfg.Schedule)
	v.validateLoggingConfig(&cfg.Logging)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateServerConfig(cfg *ServerConfig) {
	if cfg.Address == "" {
		v.addError("server.address", "address is required")
	} else if !isValidAddress(cfg.Address) {
		v.addError("server.address", "invalid address format, expected host:port or :port")
	}

	if cfg.ReadTimeout < 0 {
		v.addError("server.read_timeout", "read timeout must be non-negative")
	}
	if cfg.WriteTimeout < 0 {
		v.addError("server.write_timeout", "write timeout must be non-negative")
	}
	if cfg.ReadTimeout > 0 && cfg.ReadTimeout < time.Second {
		v.addError("server.read_timeout", "read timeout should be at least 1 second")
	}
	if cfg.WriteTimeout > 0 && cfg.WriteTimeout < time.Second {
		v.addError("server.write_timeout", "write timeout should be at least 1 second")
	}
	if cfg.BodyLimit < 0 {
		v.addError("server.body_limit", "body limit must be non-negative")
	}

	switch cfg.AuthMode {
	case "", "none":
	case "api_key":
		if cfg.APIKey == "" {
			v.addError("server.api_key", "api key is required when auth_mode is api_key")
		}
	case "jwt":
		if cfg.JWTSecret == "" {
			v.addError("server.jwt_secret", "jwt secret is required when auth_mode is jwt")
		}
	default:
		v.addError("server.auth_mode", fmt.Sprintf("invalid auth mode '%s', must be one of: none, api_key, jwt", cfg.AuthMode))
	}
}

func (v *Validator) validateMasterConfig(cfg *MasterConfig) {
	if cfg.HeartbeatInterval <= 0 {
		v.addError("master.heartbeat_interval", "heartbeat interval must be positive")
	}
	if cfg.HeartbeatTimeout <= 0 {
		v.addError("master.heartbeat_timeout", "heartbeat timeout must be positive")
	}
	if cfg.HeartbeatTimeout > 0 && cfg.HeartbeatInterval > 0 &&
		cfg.HeartbeatTimeout <= cfg.HeartbeatInterval {
		v.addError("master.heartbeat_timeout", "heartbeat timeout should be greater than heartbeat interval")
	}
	if cfg.BatchSize <= 0 {
		v.addError("master.batch_size", "batch size must be positive")
	}
	if cfg.QueueSize < 0 {
		v.addError("master.queue_size", "queue size must be non-negative")
	}
	if cfg.MaxWorkers <= 0 {
		v.addError("master.max_workers", "max workers must be positive")
	}
}

func (v *Validator) validateWorkerConfig(cfg *WorkerConfig) {
	if cfg.Slots <= 0 {
		v.addError("worker.slots", "slots must be positive")
	}
	if cfg.MasterAddr != "" && !isValidAddress(cfg.MasterAddr) {
		v.addError("worker.master_addr", "invalid master address format, expected host:port")
	}
	if cfg.HeartbeatInterval <= 0 {
		v.addError("worker.heartbeat_interval", "heartbeat interval must be positive")
	}
}

func (v *Validator) validateForecastConfig(cfg *ForecastConfig) {
	if cfg.ObjMetric != types.ObjectiveSMAPEMean {
		v.addError("forecast.obj_metric", fmt.Sprintf("unknown objective metric '%s'", cfg.ObjMetric))
	}
	if cfg.CVStride <= 0 {
		v.addError("forecast.cv_stride", "cv stride must be positive")
	}
	if cfg.MaxWorkers <= 0 {
		v.addError("forecast.max_workers", "max workers must be positive")
	}
}

func (v *Validator) validateDatabaseConfig(cfg *DatabaseConfig) {
	switch cfg.Driver {
	case "", "mysql", "postgres":
	default:
		v.addError("database.driver", fmt.Sprintf("unsupported database driver '%s', must be one of: mysql, postgres", cfg.Driver))
	}

	if cfg.Driver != "" {
		if cfg.Host == "" {
			v.addError("database.host", "host is required when a driver is configured")
		}
		if cfg.Port <= 0 || cfg.Port > 65535 {
			v.addError("database.port", "port must be in 1..65535")
		}
		if cfg.Database == "" {
			v.addError("database.database", "database name is required when a driver is configured")
		}
	}
	if cfg.MaxIdleConns < 0 {
		v.addError("database.max_idle_conns", "max idle conns must be non-negative")
	}
	if cfg.MaxOpenConns < 0 {
		v.addError("database.max_open_conns", "max open conns must be non-negative")
	}
}

func (v *Validator) validateRedisConfig(cfg *RedisConfig) {
	if cfg.Host != "" {
		if cfg.Port <= 0 || cfg.Port > 65535 {
			v.addError("redis.port", "port must be in 1..65535")
		}
		if cfg.DB < 0 {
			v.addError("redis.db", "db index must be non-negative")
		}
		if cfg.PoolSize < 0 {
			v.addError("redis.pool_size", "pool size must be non-negative")
		}
	}
}

func (v *Validator) validateScheduleConfig(cfg *ScheduleConfig) {
	if !cfg.Enabled {
		return
	}
	if cfg.Interval <= 0 && cfg.Cron == "" {
		v.addError("schedule.interval", "an interval or cron expression is required when the scheduler is enabled")
	}
	if cfg.Interval < 0 {
		v.addError("schedule.interval", "interval must be non-negative")
	}
	if cfg.DatasetDir == "" {
		v.addError("schedule.dataset_dir", "dataset dir is required when the scheduler is enabled")
	}
	if !types.Frequency(cfg.Freq).Valid() {
		v.addError("schedule.freq", fmt.Sprintf("invalid frequency '%s'", cfg.Freq))
	}
	if cfg.Horizon < 1 {
		v.addError("schedule.horizon", "horizon must be at least 1")
	}
}

func (v *Validator) validateLoggingConfig(cfg *LoggingConfig) {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}
	if cfg.Level == "" {
		v.addError("logging.level", "log level is required")
	} else if !validLevels[strings.ToLower(cfg.Level)] {
		v.addError("logging.level", fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error, fatal", cfg.Level))
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if cfg.Format == "" {
		v.addError("logging.format", "log format is required")
	} else if !validFormats[strings.ToLower(cfg.Format)] {
		v.addError("logging.format", fmt.Sprintf("invalid log format '%s', must be one of: json, console", cfg.Format))
	}

	switch strings.ToLower(cfg.Output) {
	case "stdout", "file", "both":
	case "":
		v.addError("logging.output", "log output is required")
	default:
		v.addError("logging.output", fmt.Sprintf("invalid log output '%s', must be one of: stdout, file, both", cfg.Output))
	}
	if (strings.EqualFold(cfg.Output, "file") || strings.EqualFold(cfg.Output, "both")) && cfg.FilePath == "" {
		v.addError("logging.file_path", "file path is required for file output")
	}
}

// isValidAddress checks if the address is a valid host:port format.
func isValidAddress(addr string) bool {
	if addr == "" {
		return false
	}

	if strings.HasPrefix(addr, ":") {
		port := strings.TrimPrefix(addr, ":")
		if port == "" {
			return false
		}
		_, err := net.LookupPort("tcp", port)
		return err == nil
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}

	if port == "" {
		return false
	}
	if _, err := net.LookupPort("tcp", port); err != nil {
		return false
	}

	if host != "" {
		if ip := net.ParseIP(host); ip == nil {
			if !isValidHostname(host) {
				return false
			}
		}
	}

	return true
}

// isValidHostname performs basic hostname validation.
func isValidHostname(hostname string) bool {
	if len(hostname) == 0 || len(hostname) > 253 {
		return false
	}

	labels := strings.Split(hostname, ".")
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if !isAlphanumeric(label[0]) || !isAlphanumeric(label[len(label)-1]) {
			return false
		}
		for _, c := range label {
			if !isAlphanumeric(byte(c)) && c != '-' {
				return false
			}
		}
	}

	return true
}

func isAlphanumeric(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	return NewValidator().Validate(c)
}

// MustValidate validates the configuration and panics if validation
// fails. Useful for startup validation.
func (c *Config) MustValidate() {
	if err := c.Validate(); err != nil {
		panic(fmt.Sprintf("configuration validation failed: %v", err))
	}
}

// LoadAndValidate loads configuration from a file and validates it.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
