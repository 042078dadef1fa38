package store

import (
	"context"
	"fmt"
)

// GetRuntimeSettings returns every operator-set override as a flat
// key/value map. It implements config.SettingsReader, the only way the
// Runtime Config Cache learns about overrides — malformed or absent values
// are the cache's concern, not the Store's (base spec §3/§4.3).
func (s *Store) GetRuntimeSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM runtime_settings`)
	if err != nil {
		return nil, fmt.Errorf("store: get runtime settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("store: scan runtime setting: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// PutRuntimeSetting upserts an operator override.
func (s *Store) PutRuntimeSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runtime_settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("store: put runtime setting: %w", err)
	}
	return nil
}
