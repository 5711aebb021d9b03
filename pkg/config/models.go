package config

import "time"

type Config struct {
	Server      ServerConfig
	Transport   TransportConfig
	Limits      LimitsConfig
	Janitor     JanitorConfig
	Analytics   AnalyticsConfig
	Users       []UserConfig `mapstructure:"users"`
	Permissions []string     `mapstructure:"permissions"`
	LogLevel    string       `mapstructure:"logLevel"`
}

type ServerConfig struct {
	Address         string
	Auth            AuthConfig
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
	// ShutdownGrace is how long draining connections get between the
	// maintenance notice and the forced close.
	ShutdownGrace time.Duration `mapstructure:"shutdownGrace"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret"`
}

type ConnectionLimitConfig struct {
	MaxPerUser int    `mapstructure:"maxPerUser"`
	Mode       string `mapstructure:"mode"` // "reject" or "cycle"
}

type TransportConfig struct {
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	PingInterval time.Duration `mapstructure:"pingInterval"`
}

type LimitsConfig struct {
	MaxRoomsPerConnection int           `mapstructure:"maxRoomsPerConnection"`
	MaxMessageLength      int           `mapstructure:"maxMessageLength"`
	MessagesPerWindow     int           `mapstructure:"messagesPerWindow"`
	MessageWindow         time.Duration `mapstructure:"messageWindow"`
}

type JanitorConfig struct {
	IdleTimeout         time.Duration `mapstructure:"idleTimeout"`
	IdleSweepInterval   time.Duration `mapstructure:"idleSweepInterval"`
	RoomSweepInterval   time.Duration `mapstructure:"roomSweepInterval"`
	WindowSweepInterval time.Duration `mapstructure:"windowSweepInterval"`
	StatsInterval       time.Duration `mapstructure:"statsInterval"`
}

type AnalyticsConfig struct {
	MinInterval time.Duration `mapstructure:"minInterval"`
}

// UserConfig seeds the static user directory used by the standalone binary.
// Production deployments swap in a directory backed by the platform's user
// service instead.
type UserConfig struct {
	ID          string   `mapstructure:"id"`
	Email       string   `mapstructure:"email"`
	Role        string   `mapstructure:"role"`
	TenantID    string   `mapstructure:"tenantId"`
	Active      bool     `mapstructure:"active"`
	Permissions []string `mapstructure:"permissions"`
}
