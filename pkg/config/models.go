package config

import "time"

type Config struct {
	Log       LogConfig
	Server    ServerConfig
	Transport TransportConfig
	Session   SessionConfig
	Users     UserStoreConfig
	Presence  PresenceConfig
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type ServerConfig struct {
	Address         string
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
}

type ConnectionLimitConfig struct {
	MaxPerUser int    `mapstructure:"maxPerUser"`
	Mode       string `mapstructure:"mode"` // "reject" or "cycle"
}

type TransportConfig struct {
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
}

type SessionConfig struct {
	CookieName string `mapstructure:"cookieName"`
	Secret     string `mapstructure:"secret"`
	Backend    string `mapstructure:"backend"` // "memory" or "valkey"
	ValkeyAddr string `mapstructure:"valkeyAddr"`
}

type UserStoreConfig struct {
	Backend     string `mapstructure:"backend"` // "memory" or "postgres"
	PostgresDSN string `mapstructure:"postgresDsn"`
}

type PresenceConfig struct {
	SweepInterval time.Duration `mapstructure:"sweepInterval"`
}
