package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. HOMECARE_CRON_SECRET.
const EnvPrefix = "HOMECARE"

type Config struct {
	Env       string          `mapstructure:"env"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Cron      CronConfig      `mapstructure:"cron"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`
	CookieName string `mapstructure:"cookie_name"`
}

type CronConfig struct {
	Secret            string  `mapstructure:"secret"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type WorkerConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	BatchSize     int           `mapstructure:"batch_size"`
	MaxBatchSize  int           `mapstructure:"max_batch_size"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	StuckTimeout  time.Duration `mapstructure:"stuck_timeout"`
	Concurrency   int           `mapstructure:"concurrency"`
	PollOnStart   bool          `mapstructure:"poll_on_start"`
	StatsCacheTTL time.Duration `mapstructure:"stats_cache_ttl"`
	// AuditRetentionDays of 0 keeps audit rows forever.
	AuditRetentionDays   int           `mapstructure:"audit_retention_days"`
	AuditCleanupInterval time.Duration `mapstructure:"audit_cleanup_interval"`
	// HealthPort serves health and metrics for the standalone worker.
	HealthPort int `mapstructure:"health_port"`
}

type ProvidersConfig struct {
	Email EmailProviderConfig `mapstructure:"email"`
	SMS   SMSProviderConfig   `mapstructure:"sms"`
}

type EmailProviderConfig struct {
	Provider      string        `mapstructure:"provider"`
	From          string        `mapstructure:"from"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
	Timeout       time.Duration `mapstructure:"timeout"`
	SMTP          SMTPConfig    `mapstructure:"smtp"`
	SES           SESConfig     `mapstructure:"ses"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type SESConfig struct {
	Region string `mapstructure:"region"`
}

type SMSProviderConfig struct {
	Provider      string        `mapstructure:"provider"`
	From          string        `mapstructure:"from"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Twilio        TwilioConfig  `mapstructure:"twilio"`
}

type TwilioConfig struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	BaseURL    string `mapstructure:"base_url"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	Channel      string        `mapstructure:"channel"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

// secrets are read from the environment only and override the file.
type secrets struct {
	DBHost          string `envconfig:"DB_HOST"`
	DBPort          int    `envconfig:"DB_PORT"`
	DBUser          string `envconfig:"DB_USER"`
	DBPassword      string `envconfig:"DB_PASSWORD"`
	DBName          string `envconfig:"DB_NAME"`
	JWTSecret       string `envconfig:"JWT_SECRET"`
	CronSecret      string `envconfig:"CRON_SECRET"`
	SMTPPassword    string `envconfig:"SMTP_PASSWORD"`
	TwilioAuthToken string `envconfig:"TWILIO_AUTH_TOKEN"`
	RedisURL        string `envconfig:"REDIS_URL"`
	Port            int    `envconfig:"PORT"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "homecare")
	v.SetDefault("database.name", "homecare")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("jwt.cookie_name", "admin_token")
	v.SetDefault("cron.requests_per_second", 1.0)
	v.SetDefault("cron.burst", 5)
	v.SetDefault("worker.poll_interval", 30*time.Second)
	v.SetDefault("worker.batch_size", 20)
	v.SetDefault("worker.max_batch_size", 500)
	v.SetDefault("worker.max_attempts", 3)
	v.SetDefault("worker.retry_delay", time.Duration(0))
	v.SetDefault("worker.stuck_timeout", 10*time.Minute)
	v.SetDefault("worker.concurrency", 1)
	v.SetDefault("worker.poll_on_start", false)
	v.SetDefault("worker.stats_cache_ttl", 5*time.Second)
	v.SetDefault("worker.audit_retention_days", 365)
	v.SetDefault("worker.audit_cleanup_interval", 24*time.Hour)
	v.SetDefault("worker.health_port", 8081)
	v.SetDefault("providers.email.provider", "mock")
	v.SetDefault("providers.email.rate_per_second", 10.0)
	v.SetDefault("providers.email.burst", 10)
	v.SetDefault("providers.email.timeout", 15*time.Second)
	v.SetDefault("providers.email.smtp.port", 587)
	v.SetDefault("providers.sms.provider", "mock")
	v.SetDefault("providers.sms.rate_per_second", 5.0)
	v.SetDefault("providers.sms.burst", 5)
	v.SetDefault("providers.sms.timeout", 15*time.Second)
	v.SetDefault("providers.sms.twilio.base_url", "https://api.twilio.com")
	v.SetDefault("redis.channel", "notifications")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
}

// LoadConfig reads .env, then config.yaml from the given paths (defaults: ".", "./config"),
// then applies HOMECARE_* environment overrides.
func LoadConfig(paths ...string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var s secrets
	if err := envconfig.Process(EnvPrefix, &s); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	cfg.applySecrets(s)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applySecrets(s secrets) {
	if s.DBHost != "" {
		c.Database.Host = s.DBHost
	}
	if s.DBPort != 0 {
		c.Database.Port = s.DBPort
	}
	if s.DBUser != "" {
		c.Database.User = s.DBUser
	}
	if s.DBPassword != "" {
		c.Database.Password = s.DBPassword
	}
	if s.DBName != "" {
		c.Database.Name = s.DBName
	}
	if s.JWTSecret != "" {
		c.JWT.Secret = s.JWTSecret
	}
	if s.CronSecret != "" {
		c.Cron.Secret = s.CronSecret
	}
	if s.SMTPPassword != "" {
		c.Providers.Email.SMTP.Password = s.SMTPPassword
	}
	if s.TwilioAuthToken != "" {
		c.Providers.SMS.Twilio.AuthToken = s.TwilioAuthToken
	}
	if s.RedisURL != "" {
		c.Redis.URL = s.RedisURL
	}
	if s.Port != 0 {
		c.Server.Port = s.Port
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("worker.poll_interval must be greater than 0")
	}
	if c.Worker.BatchSize <= 0 {
		return fmt.Errorf("worker.batch_size must be greater than 0")
	}
	if c.Worker.MaxBatchSize < c.Worker.BatchSize {
		return fmt.Errorf("worker.max_batch_size must be at least worker.batch_size")
	}
	if c.Worker.MaxAttempts <= 0 {
		return fmt.Errorf("worker.max_attempts must be greater than 0")
	}
	if c.Worker.RetryDelay < 0 {
		return fmt.Errorf("worker.retry_delay must not be negative")
	}
	if c.Worker.StuckTimeout <= 0 {
		return fmt.Errorf("worker.stuck_timeout must be greater than 0")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be greater than 0")
	}
	switch c.Providers.Email.Provider {
	case "mock", "smtp", "ses":
	default:
		return fmt.Errorf("unknown email provider %q", c.Providers.Email.Provider)
	}
	switch c.Providers.SMS.Provider {
	case "mock", "twilio":
	default:
		return fmt.Errorf("unknown sms provider %q", c.Providers.SMS.Provider)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
