package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "IJARA"
	envConfigDefaultPath = "IJARA_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "ijara.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
// Env vars use the IJARA_ prefix with dots replaced by underscores,
// e.g. IJARA_CLIENT_TOKEN.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, configPath, nil
}

// setDefaults registers every key so env vars can override keys missing
// from the file.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("log_level", cfg.LogLevel)

	v.SetDefault("client.api_url", cfg.Client.APIURL)
	v.SetDefault("client.socket_url", cfg.Client.SocketURL)
	v.SetDefault("client.token", cfg.Client.Token)
	v.SetDefault("client.request_timeout", cfg.Client.RequestTimeout)
	v.SetDefault("client.ack_timeout", cfg.Client.AckTimeout)
	v.SetDefault("client.typing_stop_delay", cfg.Client.TypingStopDelay)
	v.SetDefault("client.remote_typing_timeout", cfg.Client.RemoteTypingTimeout)
	v.SetDefault("client.reconnect_min", cfg.Client.ReconnectMin)
	v.SetDefault("client.reconnect_max", cfg.Client.ReconnectMax)

	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.database_path", cfg.Server.DatabasePath)
	v.SetDefault("server.jwt_secret", cfg.Server.JWTSecret)
	v.SetDefault("server.jwt_issuer", cfg.Server.JWTIssuer)
	v.SetDefault("server.jwt_audience", cfg.Server.JWTAudience)
	v.SetDefault("server.token_ttl", cfg.Server.TokenTTL)
	v.SetDefault("server.read_header_timeout", cfg.Server.ReadHeaderTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)
	v.SetDefault("server.max_message_bytes", cfg.Server.MaxMessageBytes)
	v.SetDefault("server.send_rate_per_minute", cfg.Server.SendRatePerMinute)
	v.SetDefault("server.cors_origins", cfg.Server.CORSOrigins)
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "ijara", defaultConfigName)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Save writes cfg to path, used by `ijara login` to persist the token.
func Save(path string, cfg Config) error {
	return writeDefaultConfig(path, cfg)
}
