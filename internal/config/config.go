package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. NEXO_API_BASE_URL
const EnvPrefix = "NEXO"

// Config holds all configuration
type Config struct {
	Mode    string        `mapstructure:"mode"`
	API     APIConfig     `mapstructure:"api"`
	Socket  SocketConfig  `mapstructure:"socket"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Token   TokenConfig   `mapstructure:"token"`
	Client  ClientConfig  `mapstructure:"client"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// APIConfig holds HTTP API configuration
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SocketConfig holds realtime transport configuration
type SocketConfig struct {
	URL               string        `mapstructure:"url"`
	Path              string        `mapstructure:"path"`
	Transports        []string      `mapstructure:"transports"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	DialTimeout       time.Duration `mapstructure:"dial_timeout"`
}

// AuthConfig selects how the credential travels and where it is kept
type AuthConfig struct {
	Strategy string `mapstructure:"strategy"`
	Storage  string `mapstructure:"storage"`
}

// TokenConfig holds token storage configuration
type TokenConfig struct {
	Dir        string        `mapstructure:"dir"`
	SessionId  string        `mapstructure:"session_id"` // scope of session storage; defaults to the parent shell
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	Redis      RedisConfig   `mapstructure:"redis"`
}

// RedisConfig holds Redis configuration for the session token backend
type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// Addr returns the Redis address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Enabled reports whether a Redis host is configured
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

// ClientConfig holds realtime client behaviour
type ClientConfig struct {
	IdGenerator    string        `mapstructure:"id_generator"`
	TypingTimeout  time.Duration `mapstructure:"typing_timeout"`
	PendingTimeout time.Duration `mapstructure:"pending_timeout"`
}

// MetricsConfig holds the optional Prometheus listener
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// IsProduction reports whether the client runs in production mode
func (c *Config) IsProduction() bool {
	return c.Mode == constant.ModeProduction
}

// Load reads configuration from the optional file at configPath and from
// NEXO_* environment variables. The environment wins over the file.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it on Unmarshal
func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", constant.ModeDevelopment)
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("socket.url", "")
	v.SetDefault("socket.path", "/socket.io/")
	v.SetDefault("socket.transports", []string{constant.TransportWebSocket, constant.TransportPolling})
	v.SetDefault("socket.reconnect_attempts", 5)
	v.SetDefault("socket.reconnect_delay", time.Second)
	v.SetDefault("socket.dial_timeout", 10*time.Second)
	v.SetDefault("auth.strategy", constant.AuthStrategyToken)
	v.SetDefault("auth.storage", constant.StorageLocal)
	v.SetDefault("token.dir", "")
	v.SetDefault("token.session_id", "")
	v.SetDefault("token.session_ttl", 24*time.Hour)
	v.SetDefault("token.redis.host", "")
	v.SetDefault("token.redis.port", 6379)
	v.SetDefault("token.redis.password", "")
	v.SetDefault("token.redis.db", 0)
	v.SetDefault("token.redis.key_prefix", "nexo-chat:")
	v.SetDefault("client.id_generator", constant.IdGeneratorTime)
	v.SetDefault("client.typing_timeout", constant.TypingIdleTimeout)
	v.SetDefault("client.pending_timeout", 0)
	v.SetDefault("metrics.addr", "")
}

func (c *Config) applyDefaults() {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if c.Mode == "" || c.Mode == "dev" {
		c.Mode = constant.ModeDevelopment
	}
	if c.Mode == "prod" {
		c.Mode = constant.ModeProduction
	}

	// Production never falls back to localhost
	if c.API.BaseURL == "" && !c.IsProduction() {
		c.API.BaseURL = constant.DevFallbackURL
	}
	c.API.BaseURL = NormalizeAPIBaseURL(c.API.BaseURL)

	if c.Socket.URL == "" {
		c.Socket.URL = strings.TrimSuffix(c.API.BaseURL, "/api")
	}
	if c.Socket.Path == "" {
		c.Socket.Path = "/socket.io/"
	}
	if len(c.Socket.Transports) == 0 {
		c.Socket.Transports = []string{constant.TransportWebSocket, constant.TransportPolling}
	}
	if c.Socket.ReconnectAttempts < 0 {
		c.Socket.ReconnectAttempts = 0
	}
	if c.Socket.ReconnectDelay == 0 {
		c.Socket.ReconnectDelay = time.Second
	}
	if c.Socket.DialTimeout == 0 {
		c.Socket.DialTimeout = 10 * time.Second
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = 30 * time.Second
	}

	if c.Auth.Strategy == "" {
		c.Auth.Strategy = constant.AuthStrategyToken
	}
	if c.Auth.Strategy == constant.AuthStrategyCookie {
		c.Auth.Storage = constant.StorageCookie
	}
	if c.Auth.Storage == "" {
		c.Auth.Storage = constant.StorageLocal
	}

	if c.Client.TypingTimeout == 0 {
		c.Client.TypingTimeout = constant.TypingIdleTimeout
	}
	if c.Client.IdGenerator == "" {
		c.Client.IdGenerator = constant.IdGeneratorTime
	}
	if c.Token.SessionId == "" {
		c.Token.SessionId = DefaultSessionId()
	}
	if c.Token.SessionTTL <= 0 {
		c.Token.SessionTTL = 24 * time.Hour
	}
	if c.Token.Redis.KeyPrefix == "" {
		c.Token.Redis.KeyPrefix = "nexo-chat:"
	}
}

// DefaultSessionId scopes session storage to the shell that runs the client,
// so every command started from one terminal shares the login
func DefaultSessionId() string {
	return fmt.Sprintf("ppid-%d", os.Getppid())
}

// NormalizeAPIBaseURL trims trailing slashes and makes sure the URL ends in /api
func NormalizeAPIBaseURL(raw string) string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	if base == "" {
		return ""
	}
	if strings.HasSuffix(base, "/api") {
		return base
	}
	return base + "/api"
}

// Validate returns fatal configuration problems and non-fatal warnings.
// Problems only make requests fail later; nothing here aborts the process.
func (c *Config) Validate() (problems []string, warnings []string) {
	switch c.Auth.Strategy {
	case constant.AuthStrategyToken, constant.AuthStrategyCookie:
	default:
		problems = append(problems, fmt.Sprintf("unknown auth strategy %q", c.Auth.Strategy))
	}
	switch c.Auth.Storage {
	case constant.StorageLocal, constant.StorageSession, constant.StorageMemory, constant.StorageCookie:
	default:
		problems = append(problems, fmt.Sprintf("unknown token storage %q", c.Auth.Storage))
	}

	if c.API.BaseURL == "" {
		problems = append(problems, "api base url is not configured")
	}
	if c.Socket.URL == "" {
		problems = append(problems, "socket url is not configured")
	}

	apiSecure, apiOK := secureScheme(c.API.BaseURL)
	sockSecure, sockOK := secureScheme(c.Socket.URL)
	if apiOK && sockOK && apiSecure != sockSecure {
		warnings = append(warnings, fmt.Sprintf("protocol mismatch: api=%s socket=%s", c.API.BaseURL, c.Socket.URL))
	}
	if c.IsProduction() {
		if apiOK && !apiSecure {
			warnings = append(warnings, fmt.Sprintf("insecure api url in production: %s", c.API.BaseURL))
		}
		if sockOK && !sockSecure {
			warnings = append(warnings, fmt.Sprintf("insecure socket url in production: %s", c.Socket.URL))
		}
	}
	return problems, warnings
}

// secureScheme reports whether raw uses https/wss; ok is false for unparsable or empty URLs
func secureScheme(raw string) (secure bool, ok bool) {
	if raw == "" {
		return false, false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return false, false
	}
	switch u.Scheme {
	case "https", "wss":
		return true, true
	case "http", "ws":
		return false, true
	default:
		return false, false
	}
}
