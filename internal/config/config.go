// Package config loads and validates the engine's static configuration and
// exposes the short-TTL runtime settings snapshot described by the
// Runtime Config Cache component.
package config

import "time"

// Config is the umbrella configuration object returned by Initialize and
// threaded through Store, the Executor, the Worker Pool, and the Pipelines.
type Config struct {
	configDir string

	Store    StoreConfig
	Queue    QueueConfig
	Retry    RetryConfig
	Mail     MailConfig
	Provider ProviderConfig
}

// ConfigDir returns the directory configuration was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// StoreConfig holds the Postgres connection settings.
type StoreConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RetryConfig mirrors §4.3/§4.4 of the specification: the tunables consulted
// by the Retry/Timeout Executor. These are also the values cached by the
// Runtime Config Cache (see runtime.go) — this struct is the compiled-in
// fallback used when no override row exists in Store.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Timeout     time.Duration `yaml:"timeout"`
}

// MailConfig mirrors the `mail.*` runtime setting keys from §4.3.
type MailConfig struct {
	ContextMaxMessages          int `yaml:"context_max_messages"`
	ContextSummaryTriggerTokens int `yaml:"context_summary_trigger_tokens"`
	AttachmentsMaxCount         int `yaml:"attachments_max_count"`
	AttachmentsMaxTextChars     int `yaml:"attachments_max_text_chars"`
}

// ProviderConfig selects and configures the Provider Gateway implementation.
type ProviderConfig struct {
	// Kind selects the Gateway implementation: "grpc" or "stub".
	Kind string `yaml:"kind"`

	GRPCAddress string `yaml:"grpc_address"`

	// CacheRedisAddr, when non-empty, fronts the gRPC gateway with a
	// Redis-backed transport cache (see internal/provider/grpc.go).
	CacheRedisAddr string        `yaml:"cache_redis_addr"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
}
