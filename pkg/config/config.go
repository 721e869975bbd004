package config

import (
	"os"
	"strconv"
	"time"
)

// DBConfig selects and configures the rule/ledger store.
type DBConfig struct {
	Driver      string `yaml:"driver"` // postgres | sqlite
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	Name        string `yaml:"name"`
	Path        string `yaml:"path"` // sqlite file, ":memory:" allowed
	MaxConns    int32  `yaml:"max_conns"`
	SlowQueryMS int    `yaml:"slow_query_ms"`
}

// MQConfig is optional; an empty URL disables event publishing.
type MQConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig is optional; an empty Addr disables cycle claims.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// SchedulerConfig drives the batch runner in cmd/worker.
type SchedulerConfig struct {
	Interval           time.Duration `yaml:"interval"`
	RunTimeout         time.Duration `yaml:"run_timeout"`
	Workers            int           `yaml:"workers"`
	ConditionalAdvance bool          `yaml:"conditional_advance"`
	ClaimTTL           time.Duration `yaml:"claim_ttl"`
}

// WithDefaults fills zero fields.
func (c SchedulerConfig) WithDefaults() SchedulerConfig {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 50 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.ClaimTTL <= 0 {
		c.ClaimTTL = 10 * time.Minute
	}
	return c
}

// OverrideDBFromEnv applies DB_* variables.
func OverrideDBFromEnv(cfg *DBConfig) {
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		cfg.Driver = driver
	}
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		cfg.Path = path
	}
}

func OverrideMQFromEnv(cfg *MQConfig) {
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.URL = url
	}
}

func OverrideRedisFromEnv(cfg *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
}

func OverrideJWTFromEnv(cfg *JWTConfig) {
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Secret = secret
	}
}

func OverrideServerFromEnv(cfg *ServerConfig) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
}

// OverrideSchedulerFromEnv accepts Go duration strings ("30s", "2m").
func OverrideSchedulerFromEnv(cfg *SchedulerConfig) {
	if v := os.Getenv("SCHEDULER_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Interval = d
		}
	}
	if v := os.Getenv("SCHEDULER_RUN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RunTimeout = d
		}
	}
	if v := os.Getenv("SCHEDULER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("SCHEDULER_CONDITIONAL_ADVANCE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ConditionalAdvance = b
		}
	}
}

func OverrideLogFromEnv(cfg *LogConfig) {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Level = level
	}
}
