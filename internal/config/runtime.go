package config

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// Runtime setting keys recognized by the cache (base spec §4.3).
const (
	KeyRetryMaxAttempts        = "llm.retry.max_attempts"
	KeyRetryTimeoutMs          = "llm.retry.timeout_ms"
	KeyMailMaxMessages         = "mail.context.max_messages"
	KeyMailSummaryTriggerToken = "mail.context.summary_trigger_token_count"
	KeyMailAttachmentsMaxCount = "mail.attachments.max_count"
	KeyMailAttachmentsMaxChars = "mail.attachments.max_text_chars"

	defaultRefreshTTL = 5 * time.Second
)

// SettingsReader is implemented by the Store; it is the only way the cache
// learns about operator overrides.
type SettingsReader interface {
	GetRuntimeSettings(ctx context.Context) (map[string]string, error)
}

// Snapshot is the resolved, typed view of runtime settings consulted by the
// Retry/Timeout Executor and the Mail Reply Pipeline.
type Snapshot struct {
	MaxAttempts                 int
	Timeout                     time.Duration
	MailMaxMessages              int
	MailSummaryTriggerTokenCount int
	MailAttachmentsMaxCount      int
	MailAttachmentsMaxTextChars  int
}

// RuntimeCache holds a snapshot refreshed on access when stale, per base
// spec §4.3: "no consistent view across keys is required" — a single
// snapshot field is swapped atomically rather than locking per-key.
type RuntimeCache struct {
	mu       sync.RWMutex
	snapshot Snapshot
	fetched  time.Time
	ttl      time.Duration
	reader   SettingsReader
	fallback Snapshot
}

// NewRuntimeCache builds a cache seeded with fallback (the compiled-in
// defaults) that refreshes from reader at most once per ttl.
func NewRuntimeCache(reader SettingsReader, retry RetryConfig, mail MailConfig, ttl time.Duration) *RuntimeCache {
	if ttl <= 0 {
		ttl = defaultRefreshTTL
	}
	fallback := Snapshot{
		MaxAttempts:                  retry.MaxAttempts,
		Timeout:                      retry.Timeout,
		MailMaxMessages:              mail.ContextMaxMessages,
		MailSummaryTriggerTokenCount: mail.ContextSummaryTriggerTokens,
		MailAttachmentsMaxCount:      mail.AttachmentsMaxCount,
		MailAttachmentsMaxTextChars:  mail.AttachmentsMaxTextChars,
	}
	return &RuntimeCache{
		snapshot: fallback,
		fallback: fallback,
		ttl:      ttl,
		reader:   reader,
	}
}

// Get returns the current snapshot, refreshing it first if stale. Refresh
// errors and per-key parse errors are logged and never abort the engine —
// the last-known-good (or compiled-in fallback) snapshot is used instead.
func (c *RuntimeCache) Get(ctx context.Context) Snapshot {
	c.mu.RLock()
	stale := time.Since(c.fetched) >= c.ttl
	snap := c.snapshot
	c.mu.RUnlock()

	if !stale || c.reader == nil {
		return snap
	}
	return c.refresh(ctx)
}

func (c *RuntimeCache) refresh(ctx context.Context) Snapshot {
	rows, err := c.reader.GetRuntimeSettings(ctx)
	if err != nil {
		slog.Warn("runtime settings refresh failed, keeping last snapshot", "error", err)
		c.mu.Lock()
		c.fetched = time.Now()
		snap := c.snapshot
		c.mu.Unlock()
		return snap
	}

	next := c.fallback
	next.MaxAttempts = intSetting(rows, KeyRetryMaxAttempts, next.MaxAttempts, 1)
	next.Timeout = durationMsSetting(rows, KeyRetryTimeoutMs, next.Timeout)
	next.MailMaxMessages = intSetting(rows, KeyMailMaxMessages, next.MailMaxMessages, 1)
	next.MailSummaryTriggerTokenCount = intSetting(rows, KeyMailSummaryTriggerToken, next.MailSummaryTriggerTokenCount, 0)
	next.MailAttachmentsMaxCount = intSetting(rows, KeyMailAttachmentsMaxCount, next.MailAttachmentsMaxCount, 0)
	next.MailAttachmentsMaxTextChars = intSetting(rows, KeyMailAttachmentsMaxChars, next.MailAttachmentsMaxTextChars, 0)

	c.mu.Lock()
	c.snapshot = next
	c.fetched = time.Now()
	c.mu.Unlock()
	return next
}

func intSetting(rows map[string]string, key string, fallback, min int) int {
	raw, ok := rows[key]
	if !ok {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min {
		slog.Warn("invalid runtime setting, using fallback", "key", key, "value", raw)
		return fallback
	}
	return v
}

func durationMsSetting(rows map[string]string, key string, fallback time.Duration) time.Duration {
	raw, ok := rows[key]
	if !ok {
		return fallback
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms <= 0 {
		slog.Warn("invalid runtime setting, using fallback", "key", key, "value", raw)
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
