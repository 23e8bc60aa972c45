package config

import "time"

// Config holds the settings of every ijara command.
type Config struct {
	LogLevel string       `mapstructure:"log_level" yaml:"log_level"`
	Client   ClientConfig `mapstructure:"client" yaml:"client"`
	Server   ServerConfig `mapstructure:"server" yaml:"server"`
}

// ClientConfig configures the messaging client.
type ClientConfig struct {
	APIURL          string        `mapstructure:"api_url" yaml:"api_url"`
	SocketURL       string        `mapstructure:"socket_url" yaml:"socket_url"`
	Token           string        `mapstructure:"token" yaml:"token"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	AckTimeout      time.Duration `mapstructure:"ack_timeout" yaml:"ack_timeout"`
	TypingStopDelay time.Duration `mapstructure:"typing_stop_delay" yaml:"typing_stop_delay"`
	// RemoteTypingTimeout hides a peer's typing indicator when no stop arrives.
	RemoteTypingTimeout time.Duration `mapstructure:"remote_typing_timeout" yaml:"remote_typing_timeout"`
	ReconnectMin        time.Duration `mapstructure:"reconnect_min" yaml:"reconnect_min"`
	ReconnectMax        time.Duration `mapstructure:"reconnect_max" yaml:"reconnect_max"`
}

// ServerConfig configures the development relay.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	JWTSecret         string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer         string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience       string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	TokenTTL          time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxMessageBytes   int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	SendRatePerMinute int           `mapstructure:"send_rate_per_minute" yaml:"send_rate_per_minute"`
	CORSOrigins       []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		LogLevel: "info",
		Client: ClientConfig{
			APIURL:              "http://localhost:8080",
			SocketURL:           "ws://localhost:8080/socket",
			RequestTimeout:      10 * time.Second,
			AckTimeout:          10 * time.Second,
			TypingStopDelay:     time.Second,
			RemoteTypingTimeout: 5 * time.Second,
			ReconnectMin:        500 * time.Millisecond,
			ReconnectMax:        30 * time.Second,
		},
		Server: ServerConfig{
			Addr:              ":8080",
			DatabasePath:      "ijara.db",
			JWTSecret:         "change-me",
			JWTIssuer:         "ijara-devserver",
			JWTAudience:       "ijara",
			TokenTTL:          24 * time.Hour,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   5 * time.Second,
			MaxMessageBytes:   64 << 10,
			SendRatePerMinute: 120,
			CORSOrigins:       []string{"*"},
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	c.Client.updateFrom(other.Client)
	c.Server.updateFrom(other.Server)
}

func (c *ClientConfig) updateFrom(other ClientConfig) {
	if other.APIURL != "" {
		c.APIURL = other.APIURL
	}
	if other.SocketURL != "" {
		c.SocketURL = other.SocketURL
	}
	if other.Token != "" {
		c.Token = other.Token
	}
	if other.RequestTimeout != 0 {
		c.RequestTimeout = other.RequestTimeout
	}
	if other.AckTimeout != 0 {
		c.AckTimeout = other.AckTimeout
	}
	if other.TypingStopDelay != 0 {
		c.TypingStopDelay = other.TypingStopDelay
	}
	if other.RemoteTypingTimeout != 0 {
		c.RemoteTypingTimeout = other.RemoteTypingTimeout
	}
	if other.ReconnectMin != 0 {
		c.ReconnectMin = other.ReconnectMin
	}
	if other.ReconnectMax != 0 {
		c.ReconnectMax = other.ReconnectMax
	}
}

func (c *ServerConfig) updateFrom(other ServerConfig) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.JWTIssuer != "" {
		c.JWTIssuer = other.JWTIssuer
	}
	if other.JWTAudience != "" {
		c.JWTAudience = other.JWTAudience
	}
	if other.TokenTTL != 0 {
		c.TokenTTL = other.TokenTTL
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.SendRatePerMinute != 0 {
		c.SendRatePerMinute = other.SendRatePerMinute
	}
	if len(other.CORSOrigins) > 0 {
		c.CORSOrigins = other.CORSOrigins
	}
}
