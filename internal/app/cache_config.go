package app

import (
	"strings"

	"github.com/charlesng35/bitebell/internal/cache"
	"github.com/charlesng35/bitebell/internal/database"
	"github.com/charlesng35/bitebell/internal/functions"
)

// RedisClientConfig converts the application cache configuration into the cache package representation.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
	}
}

// BackendName normalises the configured local store backend name.
func (c LocalStoreConfig) BackendName() string {
	backend := strings.ToLower(strings.TrimSpace(c.Backend))
	if backend == "" {
		return "file"
	}
	return backend
}

// DatabaseOptions converts the database section into database.Config.
func (c DatabaseConfig) DatabaseOptions() database.Config {
	return database.Config{
		Driver:          c.Driver,
		Path:            c.Path,
		DSN:             c.DSN,
		Host:            c.Host,
		Port:            c.Port,
		Name:            c.Name,
		User:            c.User,
		Password:        c.Password,
		Options:         c.Options,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
}

// Enabled reports whether a remote functions endpoint is configured.
func (c FunctionsConfig) Enabled() bool {
	return strings.TrimSpace(c.BaseURL) != ""
}

// ClientConfig converts the functions section into functions.Config.
func (c FunctionsConfig) ClientConfig() functions.Config {
	return functions.Config{
		BaseURL:    strings.TrimSpace(c.BaseURL),
		AnonKey:    strings.TrimSpace(c.AnonKey),
		ServiceKey: strings.TrimSpace(c.ServiceKey),
		Timeout:    c.Timeout,
		Breaker: functions.BreakerConfig{
			MaxRequests:      c.Breaker.MaxRequests,
			Interval:         c.Breaker.Interval,
			Timeout:          c.Breaker.Timeout,
			FailureThreshold: c.Breaker.FailureThreshold,
		},
	}
}
