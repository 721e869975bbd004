package config

import (
	"fmt"

	"pennywise/pkg/config"
)

type Config struct {
	DB        config.DBConfig        `yaml:"db"`
	MQ        config.MQConfig        `yaml:"mq"`
	Redis     config.RedisConfig     `yaml:"redis"`
	JWT       config.JWTConfig       `yaml:"jwt"`
	Server    config.ServerConfig    `yaml:"server"`
	Scheduler config.SchedulerConfig `yaml:"scheduler"`
	Log       config.LogConfig       `yaml:"log"`
}

// Load reads the layered YAML config selected by CONFIG_ENV from CONFIG_DIR,
// then applies environment overrides, which take precedence.
func Load() (*Config, error) {
	return LoadFrom(config.GetConfigEnv(), config.GetEnv("CONFIG_DIR", "config"))
}

func LoadFrom(env, dir string) (*Config, error) {
	cfgMap, err := config.LoadConfig(env, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	var cfg Config
	if err := config.Decode(cfgMap, &cfg); err != nil {
		return nil, err
	}

	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideSchedulerFromEnv(&cfg.Scheduler)
	config.OverrideLogFromEnv(&cfg.Log)

	cfg.Scheduler = cfg.Scheduler.WithDefaults()
	if cfg.DB.Driver == "" {
		cfg.DB.Driver = "postgres"
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case "postgres":
	case "sqlite":
		if c.DB.Path == "" {
			return fmt.Errorf("db.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unsupported db.driver %q", c.DB.Driver)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	return nil
}
