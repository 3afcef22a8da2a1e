package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig      `mapstructure:"server"`
	Database     DatabaseConfig    `mapstructure:"database"`
	Redis        RedisConfig       `mapstructure:"redis"`
	Kafka        KafkaConfig       `mapstructure:"kafka"`
	Cache        CacheConfig       `mapstructure:"cache"`
	RateLimit    RateLimitConfig   `mapstructure:"rate_limit"`
	Login        LoginConfig       `mapstructure:"login"`
	Identity     IdentityConfig    `mapstructure:"identity"`
	Auth         AuthConfig        `mapstructure:"auth"`
	HealthChecks HealthCheckConfig `mapstructure:"health_checks"`
	Telemetry    TelemetryConfig   `mapstructure:"telemetry"`
	Logger       LoggerConfig      `mapstructure:"logger"`
}

type ServerConfig struct {
	Port            int      `mapstructure:"port"`
	Host            string   `mapstructure:"host"`
	ReadTimeout     int      `mapstructure:"read_timeout"`
	WriteTimeout    int      `mapstructure:"write_timeout"`
	ShutdownTimeout int      `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver             string `mapstructure:"driver"`
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	Name               string `mapstructure:"name"`
	SSLMode            string `mapstructure:"ssl_mode"`
	Path               string `mapstructure:"path"`
	MaxOpenConns       int    `mapstructure:"max_open_conns"`
	MaxIdleConns       int    `mapstructure:"max_idle_conns"`
	LogLevel           string `mapstructure:"log_level"`
	SlowQueryThreshold int    `mapstructure:"slow_query_threshold_ms"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type KafkaConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Brokers       []string `mapstructure:"brokers"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	Topic         string   `mapstructure:"topic"`
}

type CacheConfig struct {
	Prefix string `mapstructure:"prefix"`
	TTL    int    `mapstructure:"ttl"`
}

type RateLimitConfig struct {
	// management API, per client token bucket
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	// login submissions, per IP sliding window
	LoginAttempts int `mapstructure:"login_attempts"`
	LoginWindow   int `mapstructure:"login_window"`
}

type LoginConfig struct {
	AllowPasswordReset bool   `mapstructure:"allow_password_reset"`
	AllowUserInvite    bool   `mapstructure:"allow_user_invite"`
	UsernameIsEmail    bool   `mapstructure:"username_is_email"`
	DisableLocalLogin  bool   `mapstructure:"disable_local_login"`
	MFAEnabled         bool   `mapstructure:"mfa_enabled"`
	BackgroundImage    string `mapstructure:"background_image"`
	LogoImage          string `mapstructure:"logo_image"`
	SessionTTL         int    `mapstructure:"session_ttl"`
	CookieName         string `mapstructure:"cookie_name"`
}

type IdentityConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Timeout int    `mapstructure:"timeout"`
}

type AuthConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	JWTSecret   string   `mapstructure:"jwt_secret"`
	Issuer      string   `mapstructure:"issuer"`
	TokenExpiry int      `mapstructure:"token_expiry"`
	AdminUsers  []string `mapstructure:"admin_users"`
}

type HealthCheckConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	SiteURL  string `mapstructure:"site_url"`
	Schedule string `mapstructure:"schedule"`
	Timeout  int    `mapstructure:"timeout"`
}

type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	JaegerURL    string  `mapstructure:"jaeger_url"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	AddCaller  bool   `mapstructure:"add_caller"`
	Stacktrace bool   `mapstructure:"stacktrace"`
}

// Load reads ./configs/<serviceName>.yaml (or /etc/umbraco), then applies
// UMBRACO_* environment variables on top of the defaults.
func Load(serviceName string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(serviceName)
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/umbraco")

	return load(v)
}

// LoadFile reads the configuration from an explicit yaml file.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("UMBRACO")

	if err := v.ReadInConfig(); err != nil {
		// a missing file is fine, defaults and env vars still apply
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideFromEnv(v, &config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.shutdown_timeout", 30)
	v.SetDefault("server.allowed_origins", []string{})

	// Database defaults
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "umbraco")
	v.SetDefault("database.password", "umbraco")
	v.SetDefault("database.name", "umbraco")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.path", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.slow_query_threshold_ms", 100)

	// Redis defaults
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.consumer_group", "umbraco-cms")
	v.SetDefault("kafka.topic", "umbraco.events")

	v.SetDefault("cache.prefix", "umbraco")
	v.SetDefault("cache.ttl", 300)

	v.SetDefault("rate_limit.requests_per_second", 20.0)
	v.SetDefault("rate_limit.burst", 40)
	v.SetDefault("rate_limit.login_attempts", 5)
	v.SetDefault("rate_limit.login_window", 60)

	// Login defaults
	v.SetDefault("login.allow_password_reset", true)
	v.SetDefault("login.allow_user_invite", true)
	v.SetDefault("login.username_is_email", true)
	v.SetDefault("login.disable_local_login", false)
	v.SetDefault("login.mfa_enabled", true)
	v.SetDefault("login.background_image", "")
	v.SetDefault("login.logo_image", "")
	v.SetDefault("login.session_ttl", 1800)
	v.SetDefault("login.cookie_name", "umb_login_session")

	v.SetDefault("identity.base_url", "http://localhost:8081")
	v.SetDefault("identity.timeout", 10)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "umbraco-cms")
	v.SetDefault("auth.token_expiry", 3600)
	v.SetDefault("auth.admin_users", []string{})

	v.SetDefault("health_checks.enabled", true)
	v.SetDefault("health_checks.site_url", "http://localhost:8080")
	v.SetDefault("health_checks.schedule", "0 */5 * * * *")
	v.SetDefault("health_checks.timeout", 10)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.jaeger_url", "http://localhost:14268/api/traces")
	v.SetDefault("telemetry.service_name", "umbraco-cms")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.add_caller", true)
	v.SetDefault("logger.stacktrace", false)
}

func overrideFromEnv(v *viper.Viper, cfg *Config) {
	// comma separated lists are not split by Unmarshal
	if brokers := v.GetString("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitList(brokers)
	}
	if origins := v.GetString("SERVER_ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = splitList(origins)
	}
	if admins := v.GetString("AUTH_ADMIN_USERS"); admins != "" {
		cfg.Auth.AdminUsers = splitList(admins)
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Login.SessionTTL <= 0 {
		return fmt.Errorf("login session ttl must be positive")
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth is enabled but no jwt secret is set")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
