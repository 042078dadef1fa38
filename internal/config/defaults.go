package config

import "time"

// DefaultStoreConfig returns the built-in store connection defaults.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "genengine",
		Database:        "genengine",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// DefaultRetryConfig returns the built-in defaults from base spec §4.3:
// two attempts, 20s per-attempt timeout.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 2,
		Timeout:     20 * time.Second,
	}
}

// DefaultMailConfig returns the built-in defaults from base spec §4.3.
func DefaultMailConfig() MailConfig {
	return MailConfig{
		ContextMaxMessages:          20,
		ContextSummaryTriggerTokens: 5000,
		AttachmentsMaxCount:         3,
		AttachmentsMaxTextChars:     20000,
	}
}

// DefaultProviderConfig returns the built-in Provider Gateway defaults —
// the deterministic stub, so the engine runs out of the box without an
// LLM sidecar.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Kind:     "stub",
		CacheTTL: 10 * time.Minute,
	}
}
