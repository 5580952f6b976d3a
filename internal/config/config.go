package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode         string `mapstructure:"mode"`
	Port         int    `mapstructure:"port"`
	ControlToken string `mapstructure:"control_token"`

	APIBaseURL   string `mapstructure:"api_base_url"`
	APIToken     string `mapstructure:"api_token"`
	SFUEndpoint  string `mapstructure:"sfu_endpoint"`
	ChatEndpoint string `mapstructure:"chat_endpoint"`

	ConnectTimeout       time.Duration `mapstructure:"connect_timeout"`
	DisconnectTimeout    time.Duration `mapstructure:"disconnect_timeout"`
	PublishTimeout       time.Duration `mapstructure:"publish_timeout"`
	SettleDelay          time.Duration `mapstructure:"settle_delay"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	ReconnectDelay       time.Duration `mapstructure:"reconnect_delay"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8089)
	v.SetDefault("api_base_url", "https://api.lumacart.dev")
	v.SetDefault("sfu_endpoint", "wss://sfu.lumacart.dev/rtc")
	v.SetDefault("chat_endpoint", "wss://chat.lumacart.dev/feed")
	v.SetDefault("connect_timeout", "45s")
	v.SetDefault("disconnect_timeout", "5s")
	v.SetDefault("publish_timeout", "10s")
	v.SetDefault("settle_delay", "3s")
	v.SetDefault("max_reconnect_attempts", 5)
	v.SetDefault("reconnect_delay", "2s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
