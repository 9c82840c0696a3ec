package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wailbentafat/showbus/broker"
	"github.com/wailbentafat/showbus/bus"
	"github.com/wailbentafat/showbus/metrics"
)

type RedisConfig struct {
	Address        string        `mapstructure:"address"`
	Port           int           `mapstructure:"port"`
	Password       string        `mapstructure:"password"`
	PoolSize       int           `mapstructure:"pool_size"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type BusConfig struct {
	RootTopic      string        `mapstructure:"root_topic"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"` // e.g., 0.0.0.0:9090
}

type Config struct {
	Redis   RedisConfig   `mapstructure:"redis"`
	Bus     BusConfig     `mapstructure:"bus"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("redis.address", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.pool_size", broker.DefaultPoolSize)
	v.SetDefault("redis.connect_timeout", broker.DefaultConnectTimeout)

	v.SetDefault("bus.root_topic", bus.DefaultRootTopic)
	v.SetDefault("bus.reconnect_delay", bus.DefaultReconnectDelay)
	v.SetDefault("bus.sweep_interval", bus.DefaultSweepInterval)
	v.SetDefault("bus.publish_timeout", bus.DefaultPublishTimeout)

	v.SetDefault("log.level", "info")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen_addr", ":9090")
}

// Load reads the YAML file at path, if any, on top of the defaults.
// Environment variables prefixed SHOWBUS_ override both, with dots in key
// names replaced by underscores (SHOWBUS_REDIS_PORT).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("SHOWBUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Redis.Address == "" {
		errs = append(errs, errors.New("redis.address is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("redis.port out of range: %d", c.Redis.Port))
	}
	if c.Redis.PoolSize <= 0 {
		errs = append(errs, fmt.Errorf("redis.pool_size must be positive: %d", c.Redis.PoolSize))
	}
	if c.Bus.RootTopic == "" {
		errs = append(errs, errors.New("bus.root_topic is required"))
	}
	for name, d := range map[string]time.Duration{
		"redis.connect_timeout": c.Redis.ConnectTimeout,
		"bus.reconnect_delay":   c.Bus.ReconnectDelay,
		"bus.sweep_interval":    c.Bus.SweepInterval,
		"bus.publish_timeout":   c.Bus.PublishTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive: %s", name, d))
		}
	}
	return errors.Join(errs...)
}

func (c RedisConfig) Credentials() broker.Credentials {
	return broker.Credentials{Address: c.Address, Port: c.Port, Password: c.Password}
}

// BusOptions turns the configuration into bus options.
func (c *Config) BusOptions(p metrics.Provider) []bus.Option {
	opts := []bus.Option{
		bus.WithRootTopic(c.Bus.RootTopic),
		bus.WithReconnectDelay(c.Bus.ReconnectDelay),
		bus.WithSweepInterval(c.Bus.SweepInterval),
		bus.WithPublishTimeout(c.Bus.PublishTimeout),
		bus.WithSubscribeTimeout(c.Redis.ConnectTimeout),
		bus.WithPoolOptions(broker.Options{
			PoolSize:       c.Redis.PoolSize,
			ConnectTimeout: c.Redis.ConnectTimeout,
		}),
	}
	if p != nil {
		opts = append(opts, bus.WithMetrics(p))
	}
	return opts
}
