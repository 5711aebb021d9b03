package config

import (
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from a file and environment variables.
func Load(logger *slog.Logger, fileName string) (*Config, error) {
	v := viper.New()

	// 1. Set default values
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.auth.jwtSecret", "default-secret-key-change-me")
	v.SetDefault("server.connectionLimit.maxPerUser", 5)
	v.SetDefault("server.connectionLimit.mode", "reject")
	v.SetDefault("server.shutdownGrace", "5s")
	v.SetDefault("transport.readTimeout", "60s")
	v.SetDefault("transport.pingInterval", "25s")
	v.SetDefault("limits.maxRoomsPerConnection", 50)
	v.SetDefault("limits.maxMessageLength", 10000)
	v.SetDefault("limits.messagesPerWindow", 60)
	v.SetDefault("limits.messageWindow", "60s")
	v.SetDefault("janitor.idleTimeout", "30m")
	v.SetDefault("janitor.idleSweepInterval", "5m")
	v.SetDefault("janitor.roomSweepInterval", "1m")
	v.SetDefault("janitor.windowSweepInterval", "1m")
	v.SetDefault("janitor.statsInterval", "30s")
	v.SetDefault("analytics.minInterval", "5s")
	v.SetDefault("logLevel", "info")

	// 2. Set config file details
	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".") // look for config in the working directory

	// 3. Set up environment variable handling
	v.SetEnvPrefix("HASIVU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Read the configuration file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return nil, err
		}
		logger.Warn("Config file not found. ignoring error and relying on defaults/env vars")
	}

	// 5. Unmarshal the configuration into our struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	for _, name := range cfg.Permissions {
		if err := RegisterPermission(name); err != nil {
			return nil, err
		}
	}
	logger.Info("Permission registry loaded", slog.Int("total_permissions", len(GetAllRegistered())))

	return &cfg, nil
}
