package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	AMQP      AMQPConfig      `yaml:"amqp"`
	Queue     QueueConfig     `yaml:"queue"`
	Transport TransportConfig `yaml:"transport"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type HTTPConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string `yaml:"driver"`
	// DSN for postgres; ignored for sqlite.
	DSN string `yaml:"dsn"`
	// Path of the sqlite file; ":memory:" is accepted.
	Path string `yaml:"path"`
}

type AMQPConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Queue   string `yaml:"queue"`
}

// QueueConfig carries the dispatch knobs. Tenant overrides are accepted at the
// API level; these are the global defaults.
type QueueConfig struct {
	MaxRetries          int           `yaml:"max_retries"`
	BackoffBase         time.Duration `yaml:"backoff_base"`
	BackoffMax          time.Duration `yaml:"backoff_max"`
	DispatchConcurrency int           `yaml:"dispatch_concurrency"`
	DispatchBatchSize   int           `yaml:"dispatch_batch_size"`
	ScheduleGraceWindow time.Duration `yaml:"schedule_grace_window"`
	SendTimeout         time.Duration `yaml:"send_timeout"`
	RenderTimeout       time.Duration `yaml:"render_timeout"`
	PollInterval        time.Duration `yaml:"poll_interval"`
}

// UnmarshalYAML accepts durations as strings like "5s" or "2m" and leaves
// unmentioned keys at their current values.
func (q *QueueConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		MaxRetries          *int    `yaml:"max_retries"`
		BackoffBase         *string `yaml:"backoff_base"`
		BackoffMax          *string `yaml:"backoff_max"`
		DispatchConcurrency *int    `yaml:"dispatch_concurrency"`
		DispatchBatchSize   *int    `yaml:"dispatch_batch_size"`
		ScheduleGraceWindow *string `yaml:"schedule_grace_window"`
		SendTimeout         *string `yaml:"send_timeout"`
		RenderTimeout       *string `yaml:"render_timeout"`
		PollInterval        *string `yaml:"poll_interval"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.MaxRetries != nil {
		q.MaxRetries = *raw.MaxRetries
	}
	if raw.DispatchConcurrency != nil {
		q.DispatchConcurrency = *raw.DispatchConcurrency
	}
	if raw.DispatchBatchSize != nil {
		q.DispatchBatchSize = *raw.DispatchBatchSize
	}

	durations := []struct {
		key string
		in  *string
		out *time.Duration
	}{
		{"backoff_base", raw.BackoffBase, &q.BackoffBase},
		{"backoff_max", raw.BackoffMax, &q.BackoffMax},
		{"schedule_grace_window", raw.ScheduleGraceWindow, &q.ScheduleGraceWindow},
		{"send_timeout", raw.SendTimeout, &q.SendTimeout},
		{"render_timeout", raw.RenderTimeout, &q.RenderTimeout},
		{"poll_interval", raw.PollInterval, &q.PollInterval},
	}
	for _, d := range durations {
		if d.in == nil {
			continue
		}
		parsed, err := time.ParseDuration(*d.in)
		if err != nil {
			return fmt.Errorf("queue.%s: %w", d.key, err)
		}
		*d.out = parsed
	}
	return nil
}

type TransportConfig struct {
	// RatePerSecond and Burst bound outbound sends toward the provider.
	// Zero disables the limiter.
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
	// MockFailureRate is only honored by the mock adapter.
	MockFailureRate float64 `yaml:"mock_failure_rate"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func Default() *Config {
	return &Config{
		App:  AppConfig{Name: "sharpsend-sendqueue", Environment: "development", Version: "dev"},
		HTTP: HTTPConfig{Port: 8080},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "sendqueue.db",
		},
		AMQP: AMQPConfig{Queue: "send_queue_jobs"},
		Queue: QueueConfig{
			MaxRetries:          3,
			BackoffBase:         5 * time.Second,
			BackoffMax:          5 * time.Minute,
			DispatchConcurrency: 5,
			DispatchBatchSize:   50,
			ScheduleGraceWindow: time.Minute,
			SendTimeout:         10 * time.Second,
			RenderTimeout:       5 * time.Second,
			PollInterval:        15 * time.Second,
		},
		Transport: TransportConfig{RatePerSecond: 20, Burst: 40},
		Logging:   LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Metrics:   MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// Load reads an optional YAML file and applies environment overrides on top of
// the defaults. A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.HTTP.Port = p
		}
	}
	if v := os.Getenv("DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		c.AMQP.URL = v
		c.AMQP.Enabled = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Queue.MaxRetries = n
		}
	}
	if v := os.Getenv("DISPATCH_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Queue.DispatchConcurrency = n
		}
	}
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.driver=postgres requires database.dsn")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.driver=sqlite requires database.path")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Queue.MaxRetries < 1 {
		return fmt.Errorf("queue.max_retries must be at least 1")
	}
	if c.Queue.DispatchConcurrency < 1 {
		return fmt.Errorf("queue.dispatch_concurrency must be at least 1")
	}
	if c.Queue.DispatchBatchSize < 1 {
		return fmt.Errorf("queue.dispatch_batch_size must be at least 1")
	}
	return nil
}
