package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sfs/forecast-engine/pkg/types"
)

// Config represents the complete configuration for the forecast engine.
type Config struct {
	Server   ServerConfig         `yaml:"server"`
	Master   MasterConfig         `yaml:"master"`
	Worker   WorkerConfig         `yaml:"worker"`
	Forecast ForecastConfig       `yaml:"forecast"`
	Database DatabaseConfig       `yaml:"database"`
	Redis    RedisConfig          `yaml:"redis"`
	Schedule ScheduleConfig       `yaml:"schedule"`
	Logging  LoggingConfig        `yaml:"logging"`
	Outputs  []types.OutputConfig `yaml:"outputs"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string        `yaml:"address" env:"FE_SERVER_ADDRESS"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"FE_SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"FE_SERVER_WRITE_TIMEOUT"`
	BodyLimit    int           `yaml:"body_limit" env:"FE_SERVER_BODY_LIMIT"`
	EnableCORS   bool          `yaml:"enable_cors" env:"FE_SERVER_ENABLE_CORS"`
	AuthMode     string        `yaml:"auth_mode" env:"FE_SERVER_AUTH_MODE"`
	APIKey       string        `yaml:"api_key" env:"FE_SERVER_API_KEY"`
	JWTSecret    string        `yaml:"jwt_secret" env:"FE_SERVER_JWT_SECRET"`
}

// MasterConfig holds coordinator configuration.
type MasterConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" env:"FE_MASTER_HEARTBEAT_INTERVAL"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout" env:"FE_MASTER_HEARTBEAT_TIMEOUT"`
	BatchSize         int           `yaml:"batch_size" env:"FE_MASTER_BATCH_SIZE"`
	QueueSize         int           `yaml:"queue_size" env:"FE_MASTER_QUEUE_SIZE"`
	MaxWorkers        int           `yaml:"max_workers" env:"FE_MASTER_MAX_WORKERS"`
}

// WorkerConfig holds forecast worker configuration.
type WorkerConfig struct {
	Slots             int               `yaml:"slots" env:"FE_WORKER_SLOTS"`
	Labels            map[string]string `yaml:"labels"`
	MasterAddr        string            `yaml:"master_addr" env:"FE_WORKER_MASTER_ADDR"`
	HeartbeatInterval time.Duration     `yaml:"heartbeat_interval" env:"FE_WORKER_HEARTBEAT_INTERVAL"`
}

// ForecastConfig holds defaults applied to submitted jobs.
type ForecastConfig struct {
	ObjMetric  string   `yaml:"obj_metric" env:"FE_FORECAST_OBJ_METRIC"`
	CVStride   int      `yaml:"cv_stride" env:"FE_FORECAST_CV_STRIDE"`
	MaxWorkers int      `yaml:"max_workers" env:"FE_FORECAST_MAX_WORKERS"`
	Models     []string `yaml:"models" env:"FE_FORECAST_MODELS"`
}

// DatabaseConfig holds relational store configuration. An empty driver
// disables persistence.
type DatabaseConfig struct {
	Driver          string `yaml:"driver" env:"FE_DB_DRIVER"`
	Host            string `yaml:"host" env:"FE_DB_HOST"`
	Port            int    `yaml:"port" env:"FE_DB_PORT"`
	Username        string `yaml:"username" env:"FE_DB_USERNAME"`
	Password        string `yaml:"password" env:"FE_DB_PASSWORD"`
	Database        string `yaml:"database" env:"FE_DB_DATABASE"`
	Charset         string `yaml:"charset" env:"FE_DB_CHARSET"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"FE_DB_MAX_IDLE_CONNS"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"FE_DB_MAX_OPEN_CONNS"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" env:"FE_DB_CONN_MAX_LIFETIME"`
}

// Enabled reports whether a database driver is configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.Driver != ""
}

// RedisConfig holds cache and lock store configuration. An empty host
// disables Redis.
type RedisConfig struct {
	Host     string `yaml:"host" env:"FE_REDIS_HOST"`
	Port     int    `yaml:"port" env:"FE_REDIS_PORT"`
	Password string `yaml:"password" env:"FE_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"FE_REDIS_DB"`
	PoolSize int    `yaml:"pool_size" env:"FE_REDIS_POOL_SIZE"`
}

// Enabled reports whether a Redis host is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

// ScheduleConfig holds the dataset refresh scheduler configuration.
// Every file in DatasetDir is re-forecast on each firing.
type ScheduleConfig struct {
	Enabled    bool          `yaml:"enabled" env:"FE_SCHEDULE_ENABLED"`
	Interval   time.Duration `yaml:"interval" env:"FE_SCHEDULE_INTERVAL"`
	Cron       string        `yaml:"cron" env:"FE_SCHEDULE_CRON"`
	DatasetDir string        `yaml:"dataset_dir" env:"FE_SCHEDULE_DATASET_DIR"`
	Freq       string        `yaml:"freq" env:"FE_SCHEDULE_FREQ"`
	Horizon    int           `yaml:"horizon" env:"FE_SCHEDULE_HORIZON"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"FE_LOG_LEVEL"`
	Format     string `yaml:"format" env:"FE_LOG_FORMAT"`
	Output     string `yaml:"output" env:"FE_LOG_OUTPUT"`
	FilePath   string `yaml:"file_path" env:"FE_LOG_FILE_PATH"`
	MaxSize    int    `yaml:"max_size" env:"FE_LOG_MAX_SIZE"`
	MaxBackups int    `yaml:"max_backups" env:"FE_LOG_MAX_BACKUPS"`
	MaxAge     int    `yaml:"max_age" env:"FE_LOG_MAX_AGE"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			BodyLimit:    64 * 1024 * 1024, // uploads carry whole datasets
			EnableCORS:   false,
			AuthMode:     "none",
		},
		Master: MasterConfig{
			HeartbeatInterval: 5 * time.Second,
			HeartbeatTimeout:  15 * time.Second,
			BatchSize:         50,
			QueueSize:         1000,
			MaxWorkers:        types.DefaultMaxWorkers,
		},
		Worker: WorkerConfig{
			Slots:             8,
			Labels:            make(map[string]string),
			MasterAddr:        "localhost:8080",
			HeartbeatInterval: 5 * time.Second,
		},
		Forecast: ForecastConfig{
			ObjMetric:  types.ObjectiveSMAPEMean,
			CVStride:   2,
			MaxWorkers: types.DefaultMaxWorkers,
			Models:     nil, // all registered models
		},
		Database: DatabaseConfig{
			Charset:         "utf8mb4",
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: 3600,
		},
		Redis: RedisConfig{
			Port:     6379,
			PoolSize: 10,
		},
		Schedule: ScheduleConfig{
			Enabled:  false,
			Interval: time.Hour,
			Freq:     string(types.FreqDaily),
			Horizon:  12,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	envPrefix  string
	cmdArgs    map[string]string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix: "FE_",
		cmdArgs:   make(map[string]string),
	}
}

// WithConfigPath sets the path to the YAML configuration file.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the prefix for environment variables.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithCmdArgs sets command-line arguments for configuration override.
func (l *Loader) WithCmdArgs(args map[string]string) *Loader {
	l.cmdArgs = args
	return l
}

// Load loads configuration from all sources with proper precedence:
// defaults < YAML file < environment variables < command-line flags.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := l.applyCmdOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying command-line overrides: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file. A missing file is
// not an error; the defaults stay in effect.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	return l.applyEnvToStruct(reflect.ValueOf(cfg).Elem())
}

// applyEnvToStruct recursively applies environment variables to struct
// fields carrying an env tag.
func (l *Loader) applyEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct {
			if err := l.applyEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("setting field %s from %s: %w", fieldType.Name, envTag, err)
		}
	}

	return nil
}

// applyCmdOverrides applies command-line argument overrides.
func (l *Loader) applyCmdOverrides(cfg *Config) error {
	for key, value := range l.cmdArgs {
		if err := l.setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("setting config value %s: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a configuration value by dot-notation path, such
// as server.address or master.batch_size.
func (l *Loader) setConfigValue(cfg *Config, path, value string) error {
	parts := strings.Split(path, ".")
	v := reflect.ValueOf(cfg).Elem()

	for i, part := range parts {
		compact := strings.ReplaceAll(part, "_", "")
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, compact) || strings.EqualFold(name, part)
		})

		if !field.IsValid() {
			return fmt.Errorf("unknown config path: %s", path)
		}

		if i == len(parts)-1 {
			return setFieldValue(field, value)
		}

		if field.Kind() != reflect.Struct {
			return fmt.Errorf("expected %s to be a section, got %s", part, field.Kind())
		}
		v = field
	}

	return nil
}

// setFieldValue sets a reflect.Value from a string value.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("field cannot be set")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid unsigned integer: %w", err)
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		} else {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}

	case reflect.Map:
		if field.Type().Key().Kind() == reflect.String && field.Type().Elem().Kind() == reflect.String {
			m := make(map[string]string)
			pairs := strings.Split(value, ",")
			for _, pair := range pairs {
				kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
				if len(kv) == 2 {
					m[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
				}
			}
			field.Set(reflect.ValueOf(m))
		} else {
			return fmt.Errorf("unsupported map type")
		}

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Serialize serializes the configuration to YAML bytes.
func (c *Config) Serialize() ([]byte, error) {
	return yaml.Marshal(c)
}

// ParseConfig parses a YAML configuration from bytes on top of the
// defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file path.
func LoadFromFile(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).Load()
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	data, _ := c.Serialize()
	clone, _ := ParseConfig(data)
	return clone
}

// DSN builds the driver connection string.
func (c *DatabaseConfig) DSN() string {
	switch c.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
			c.Username, c.Password, c.Host, c.Port, c.Database, c.Charset)
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.Username, c.Password, c.Database)
	default:
		return ""
	}
}

// Addr returns the Redis host:port address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
