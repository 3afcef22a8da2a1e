package config

import (
	"time"

	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/cache"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/database"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/events"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/logger"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/telemetry"
)

// ToLoggerConfig converts LoggerConfig to logger.Config
func (c LoggerConfig) ToLoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Level,
		Format:     c.Format,
		Output:     c.Output,
		AddCaller:  c.AddCaller,
		Stacktrace: c.Stacktrace,
	}
}

// ToDatabaseConfig converts DatabaseConfig to database.Config
func (c DatabaseConfig) ToDatabaseConfig() database.Config {
	return database.Config{
		Driver:       c.Driver,
		Host:         c.Host,
		Port:         c.Port,
		User:         c.User,
		Password:     c.Password,
		Name:         c.Name,
		SSLMode:      c.SSLMode,
		Path:         c.Path,
		MaxOpenConns: c.MaxOpenConns,
		MaxIdleConns: c.MaxIdleConns,
		LogLevel:     c.LogLevel,
	}
}

func (c DatabaseConfig) SlowQuery() time.Duration {
	return time.Duration(c.SlowQueryThreshold) * time.Millisecond
}

// ToKafkaConfig converts KafkaConfig to events.KafkaConfig
func (c KafkaConfig) ToKafkaConfig() events.KafkaConfig {
	return events.KafkaConfig{
		Brokers:       c.Brokers,
		Topic:         c.Topic,
		ConsumerGroup: c.ConsumerGroup,
	}
}

func (c TelemetryConfig) ToTelemetryConfig(version string) telemetry.Config {
	return telemetry.Config{
		Enabled:      c.Enabled,
		JaegerURL:    c.JaegerURL,
		ServiceName:  c.ServiceName,
		Version:      version,
		SamplingRate: c.SamplingRate,
	}
}

// ToCacheOptions builds options for a named cache under the configured prefix.
func (c CacheConfig) ToCacheOptions(name string) *cache.Options {
	return &cache.Options{
		Name:       name,
		DefaultTTL: seconds(c.TTL),
		Namespace:  c.Prefix + ":" + name,
		Codec:      cache.JSONCodec{},
	}
}

func (c LoginConfig) SessionDuration() time.Duration {
	return seconds(c.SessionTTL)
}

func (c IdentityConfig) RequestTimeout() time.Duration {
	return seconds(c.Timeout)
}

func (c HealthCheckConfig) RequestTimeout() time.Duration {
	return seconds(c.Timeout)
}

func (c RateLimitConfig) LoginWindowDuration() time.Duration {
	return seconds(c.LoginWindow)
}

func (c ServerConfig) Timeouts() (read, write, shutdown time.Duration) {
	return seconds(c.ReadTimeout), seconds(c.WriteTimeout), seconds(c.ShutdownTimeout)
}

func (c AuthConfig) TokenDuration() time.Duration {
	return seconds(c.TokenExpiry)
}
