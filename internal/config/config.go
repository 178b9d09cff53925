package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Zitadel   ZitadelConfig
	Gateway   GatewayConfig
	RateLimit RateLimitConfig
	R2        R2Config
	Separator SeparatorConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type ZitadelConfig struct {
	ClientID string
	Issuer   string
}

type GatewayConfig struct {
	Enabled bool
}

type RateLimitConfig struct {
	StatusPerMin int
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
}

// SeparatorConfig points at the remote separation worker API
type SeparatorConfig struct {
	BaseURL string
	APIKey  string
}

// SchedulerConfig holds admission, dispatch and recovery tuning
type SchedulerConfig struct {
	MaxConcurrent     int
	HighPrioritySlots int
	QueueCapacity     int
	RequestsPerMinute int
	UserMaxConcurrent int
	UserMaxHourly     int
	BreakerThreshold  int
	BreakerWindow     time.Duration
	BreakerCooldown   time.Duration
	MaxRetries        int
	RetryBaseDelay    time.Duration
	HighTick          time.Duration
	NormalTick        time.Duration
	MonitorInterval   time.Duration
	RetryInterval     time.Duration
	JobTimeout        time.Duration
	StatusTTL         time.Duration
	QuotaIdleTTL      time.Duration
	PollRate          float64
}

// DefaultSchedulerConfig returns the production defaults
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxConcurrent:     10,
		HighPrioritySlots: 7,
		QueueCapacity:     100,
		RequestsPerMinute: 30,
		UserMaxConcurrent: 2,
		UserMaxHourly:     5,
		BreakerThreshold:  5,
		BreakerWindow:     60 * time.Second,
		BreakerCooldown:   60 * time.Second,
		MaxRetries:        3,
		RetryBaseDelay:    time.Minute,
		HighTick:          2 * time.Second,
		NormalTick:        5 * time.Second,
		MonitorInterval:   10 * time.Second,
		RetryInterval:     15 * time.Second,
		JobTimeout:        45 * time.Minute,
		StatusTTL:         24 * time.Hour,
		QuotaIdleTTL:      2 * time.Hour,
		PollRate:          5,
	}
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("SEPARATOR_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("zitadel.client_id", "ZITADEL_CLIENT_ID")
	_ = v.BindEnv("zitadel.issuer", "ZITADEL_ISSUER")
	_ = v.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = v.BindEnv("ratelimit.status_per_min", "RATELIMIT_STATUS_PER_MIN")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("separator.base_url", "SEPARATOR_BASE_URL")
	_ = v.BindEnv("separator.api_key", "SEPARATOR_API_KEY")
	_ = v.BindEnv("scheduler.max_concurrent", "SCHEDULER_MAX_CONCURRENT")
	_ = v.BindEnv("scheduler.high_priority_slots", "SCHEDULER_HIGH_PRIORITY_SLOTS")
	_ = v.BindEnv("scheduler.queue_capacity", "SCHEDULER_QUEUE_CAPACITY")
	_ = v.BindEnv("scheduler.requests_per_minute", "SCHEDULER_REQUESTS_PER_MINUTE")
	_ = v.BindEnv("scheduler.user_max_concurrent", "SCHEDULER_USER_MAX_CONCURRENT")
	_ = v.BindEnv("scheduler.user_max_hourly", "SCHEDULER_USER_MAX_HOURLY")
	_ = v.BindEnv("scheduler.breaker_threshold", "SCHEDULER_BREAKER_THRESHOLD")
	_ = v.BindEnv("scheduler.breaker_window", "SCHEDULER_BREAKER_WINDOW")
	_ = v.BindEnv("scheduler.breaker_cooldown", "SCHEDULER_BREAKER_COOLDOWN")
	_ = v.BindEnv("scheduler.max_retries", "SCHEDULER_MAX_RETRIES")
	_ = v.BindEnv("scheduler.retry_base_delay", "SCHEDULER_RETRY_BASE_DELAY")
	_ = v.BindEnv("scheduler.high_tick", "SCHEDULER_HIGH_TICK")
	_ = v.BindEnv("scheduler.normal_tick", "SCHEDULER_NORMAL_TICK")
	_ = v.BindEnv("scheduler.monitor_interval", "SCHEDULER_MONITOR_INTERVAL")
	_ = v.BindEnv("scheduler.retry_interval", "SCHEDULER_RETRY_INTERVAL")
	_ = v.BindEnv("scheduler.job_timeout", "SCHEDULER_JOB_TIMEOUT")
	_ = v.BindEnv("scheduler.status_ttl", "SCHEDULER_STATUS_TTL")
	_ = v.BindEnv("scheduler.quota_idle_ttl", "SCHEDULER_QUOTA_IDLE_TTL")
	_ = v.BindEnv("scheduler.poll_rate", "SCHEDULER_POLL_RATE")

	// Defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("gateway.enabled", false)
	v.SetDefault("ratelimit.status_per_min", 120)

	d := DefaultSchedulerConfig()
	v.SetDefault("scheduler.max_concurrent", d.MaxConcurrent)
	v.SetDefault("scheduler.high_priority_slots", d.HighPrioritySlots)
	v.SetDefault("scheduler.queue_capacity", d.QueueCapacity)
	v.SetDefault("scheduler.requests_per_minute", d.RequestsPerMinute)
	v.SetDefault("scheduler.user_max_concurrent", d.UserMaxConcurrent)
	v.SetDefault("scheduler.user_max_hourly", d.UserMaxHourly)
	v.SetDefault("scheduler.breaker_threshold", d.BreakerThreshold)
	v.SetDefault("scheduler.breaker_window", d.BreakerWindow)
	v.SetDefault("scheduler.breaker_cooldown", d.BreakerCooldown)
	v.SetDefault("scheduler.max_retries", d.MaxRetries)
	v.SetDefault("scheduler.retry_base_delay", d.RetryBaseDelay)
	v.SetDefault("scheduler.high_tick", d.HighTick)
	v.SetDefault("scheduler.normal_tick", d.NormalTick)
	v.SetDefault("scheduler.monitor_interval", d.MonitorInterval)
	v.SetDefault("scheduler.retry_interval", d.RetryInterval)
	v.SetDefault("scheduler.job_timeout", d.JobTimeout)
	v.SetDefault("scheduler.status_ttl", d.StatusTTL)
	v.SetDefault("scheduler.quota_idle_ttl", d.QuotaIdleTTL)
	v.SetDefault("scheduler.poll_rate", d.PollRate)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     v.GetString("server.port"),
			Env:      v.GetString("server.env"),
			LogLevel: v.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
		},
		Zitadel: ZitadelConfig{
			ClientID: v.GetString("zitadel.client_id"),
			Issuer:   v.GetString("zitadel.issuer"),
		},
		Gateway: GatewayConfig{
			Enabled: v.GetBool("gateway.enabled"),
		},
		RateLimit: RateLimitConfig{
			StatusPerMin: v.GetInt("ratelimit.status_per_min"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
		},
		Separator: SeparatorConfig{
			BaseURL: v.GetString("separator.base_url"),
			APIKey:  v.GetString("separator.api_key"),
		},
		Scheduler: SchedulerConfig{
			MaxConcurrent:     v.GetInt("scheduler.max_concurrent"),
			HighPrioritySlots: v.GetInt("scheduler.high_priority_slots"),
			QueueCapacity:     v.GetInt("scheduler.queue_capacity"),
			RequestsPerMinute: v.GetInt("scheduler.requests_per_minute"),
			UserMaxConcurrent: v.GetInt("scheduler.user_max_concurrent"),
			UserMaxHourly:     v.GetInt("scheduler.user_max_hourly"),
			BreakerThreshold:  v.GetInt("scheduler.breaker_threshold"),
			BreakerWindow:     v.GetDuration("scheduler.breaker_window"),
			BreakerCooldown:   v.GetDuration("scheduler.breaker_cooldown"),
			MaxRetries:        v.GetInt("scheduler.max_retries"),
			RetryBaseDelay:    v.GetDuration("scheduler.retry_base_delay"),
			HighTick:          v.GetDuration("scheduler.high_tick"),
			NormalTick:        v.GetDuration("scheduler.normal_tick"),
			MonitorInterval:   v.GetDuration("scheduler.monitor_interval"),
			RetryInterval:     v.GetDuration("scheduler.retry_interval"),
			JobTimeout:        v.GetDuration("scheduler.job_timeout"),
			StatusTTL:         v.GetDuration("scheduler.status_ttl"),
			QuotaIdleTTL:      v.GetDuration("scheduler.quota_idle_ttl"),
			PollRate:          v.GetFloat64("scheduler.poll_rate"),
		},
	}

	if cfg.Scheduler.HighPrioritySlots > cfg.Scheduler.MaxConcurrent {
		cfg.Scheduler.HighPrioritySlots = cfg.Scheduler.MaxConcurrent
	}

	return cfg, nil
}
