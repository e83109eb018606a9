// File: config/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package config loads the chatwire configuration from a YAML file, the
// environment (CHATWIRE_ prefix) and built-in defaults, in that order of
// precedence from lowest to highest: defaults, file, environment.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full process configuration.
type Config struct {
	Protocol string
	Address  string
	Port     int
	Verbose  bool

	// ServiceKey prefixes plain-socket log lines from sibling processes.
	ServiceKey string

	NotificationService string
	WebsocketService    string
	ChatServiceName     string

	HistoricDir         string
	MaxMessagesPerFile  int
	DefaultRoomMaxUsers int

	DatabasePath string

	RateLimit RateLimit
}

// RateLimit configures the optional per-connection inbound limiter.
type RateLimit struct {
	Enabled           bool
	MessagesPerSecond float64
	Burst             int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("protocol", "ws")
	v.SetDefault("address", "127.0.0.1")
	v.SetDefault("port", 8080)
	v.SetDefault("verbose", false)
	v.SetDefault("serviceKey", "websocket_service")
	v.SetDefault("notificationService", "notificationService")
	v.SetDefault("websocketService", "websocketService")
	v.SetDefault("chatServiceName", "chatService")
	v.SetDefault("historicDir", "chat")
	v.SetDefault("maxMessagesPerFile", 1000)
	v.SetDefault("defaultRoomMaxUsers", 200)
	v.SetDefault("databasePath", "chatwire.db")
	v.SetDefault("rateLimit.enabled", false)
	v.SetDefault("rateLimit.messagesPerSecond", 10)
	v.SetDefault("rateLimit.burst", 20)
}

// Load reads the configuration. An explicit path must exist; otherwise a
// chatwire.yaml is searched in the working directory and /etc/chatwire, and
// missing files fall back to defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CHATWIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("chatwire")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/chatwire")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}
