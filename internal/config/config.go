// internal/config/config.go
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Gateway struct {
		URL     string        `mapstructure:"url"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"gateway"`
	Session struct {
		Backend         string        `mapstructure:"backend"` // "file" or "redis"
		Path            string        `mapstructure:"path"`
		RedisURL        string        `mapstructure:"redis_url"`
		Key             string        `mapstructure:"key"`
		WatcherInterval time.Duration `mapstructure:"watcher_interval"`
	} `mapstructure:"session"`
	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`
}

func Load() Config {
	viper.SetDefault("gateway.url", "http://localhost:5000/api")
	viper.SetDefault("gateway.timeout", "15s")
	viper.SetDefault("session.backend", "file")
	viper.SetDefault("session.path", defaultSessionPath())
	viper.SetDefault("session.key", "marketapp:session")
	viper.SetDefault("session.watcher_interval", "1m")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	_ = viper.ReadInConfig()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// explicit bindings
	_ = viper.BindEnv("gateway.url", "GATEWAY_URL")
	_ = viper.BindEnv("gateway.timeout", "GATEWAY_TIMEOUT")
	_ = viper.BindEnv("session.backend", "SESSION_BACKEND")
	_ = viper.BindEnv("session.path", "SESSION_PATH")
	_ = viper.BindEnv("session.redis_url", "SESSION_REDIS_URL")
	_ = viper.BindEnv("session.key", "SESSION_KEY")
	_ = viper.BindEnv("session.watcher_interval", "SESSION_WATCHER_INTERVAL")
	_ = viper.BindEnv("logging.level", "LOG_LEVEL")
	_ = viper.BindEnv("logging.format", "LOG_FORMAT")

	var c Config
	if err := viper.Unmarshal(&c); err != nil {
		panic("config error: " + err.Error())
	}
	c.Gateway.URL = strings.TrimRight(strings.TrimSpace(c.Gateway.URL), "/")
	if c.Gateway.URL == "" {
		panic("config error: gateway.url/GATEWAY_URL required")
	}
	return c
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "marketapp", "session.json")
}
