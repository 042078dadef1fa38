package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetOrCreateQuery returns the existing (value, language) query row or
// inserts a new one, preserving originalValue on first insert only — a
// later correction of the same canonical value never overwrites the
// original the user actually typed.
func (s *Store) GetOrCreateQuery(ctx context.Context, value, language string, originalValue *string) (*Query, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, value, language, original_value, created_at
		FROM queries WHERE value = $1 AND language = $2`, value, language)
	q, err := scanQuery(row)
	if err == nil {
		return q, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	row = s.db.QueryRowContext(ctx, `
		INSERT INTO queries (value, language, original_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (value, language) DO UPDATE SET value = EXCLUDED.value
		RETURNING id, value, language, original_value, created_at`,
		value, language, originalValue,
	)
	return scanQuery(row)
}

// GetQueryByID loads a query by its primary key, the lookup an order's
// query_id field needs (GetOrCreateQuery is keyed by (value, language)).
func (s *Store) GetQueryByID(ctx context.Context, id int64) (*Query, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, value, language, original_value, created_at
		FROM queries WHERE id = $1`, id)
	return scanQuery(row)
}

func scanQuery(row *sql.Row) (*Query, error) {
	var q Query
	err := row.Scan(&q.ID, &q.Value, &q.Language, &q.OriginalValue, &q.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan query: %w", err)
	}
	return &q, nil
}

// GetOrCreateIntent returns the existing (intentText, filetype) intent row
// or inserts a new one, and links it to queryID in the many-to-many link
// table.
func (s *Store) GetOrCreateIntent(ctx context.Context, queryID int64, intentText, filetype string) (*Intent, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO intents (intent_text, filetype)
		VALUES ($1, $2)
		ON CONFLICT (intent_text, filetype) DO UPDATE SET intent_text = EXCLUDED.intent_text
		RETURNING id, intent_text, filetype, created_at`,
		intentText, filetype,
	)
	var in Intent
	if err := row.Scan(&in.ID, &in.IntentText, &in.Filetype, &in.CreatedAt); err != nil {
		return nil, fmt.Errorf("store: get or create intent: %w", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_intent_links (query_id, intent_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, queryID, in.ID)
	if err != nil {
		return nil, fmt.Errorf("store: link query intent: %w", err)
	}
	return &in, nil
}

// GetIntent loads an intent by id.
func (s *Store) GetIntent(ctx context.Context, id int64) (*Intent, error) {
	var in Intent
	err := s.db.QueryRowContext(ctx, `
		SELECT id, intent_text, filetype, created_at FROM intents WHERE id = $1`, id,
	).Scan(&in.ID, &in.IntentText, &in.Filetype, &in.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get intent: %w", err)
	}
	return &in, nil
}

// ListIntentsForQuery returns every intent linked to queryID.
func (s *Store) ListIntentsForQuery(ctx context.Context, queryID int64) ([]*Intent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.intent_text, i.filetype, i.created_at
		FROM intents i
		JOIN query_intent_links l ON l.intent_id = i.id
		WHERE l.query_id = $1
		ORDER BY i.id ASC`, queryID)
	if err != nil {
		return nil, fmt.Errorf("store: list intents for query: %w", err)
	}
	defer rows.Close()

	var out []*Intent
	for rows.Next() {
		var in Intent
		if err := rows.Scan(&in.ID, &in.IntentText, &in.Filetype, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan intent: %w", err)
		}
		out = append(out, &in)
	}
	return out, rows.Err()
}

// CreateArticlePreview inserts a new preview_ready article for intentID.
// A slug collision surfaces as ErrConflict so the Article phase can retry
// with a suffixed slug (base spec §4.8.1 step 5.5) instead of a generic
// failure.
func (s *Store) CreateArticlePreview(ctx context.Context, intentID int64, slug, filetype string, title *string) (*Article, error) {
	var a Article
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO articles (intent_id, slug, status, filetype, title)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, intent_id, slug, status, filetype, title, content, created_at, updated_at`,
		intentID, slug, ArticleStatusPreviewReady, filetype, title,
	).Scan(&a.ID, &a.IntentID, &a.Slug, &a.Status, &a.Filetype, &a.Title, &a.Content, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("store: create article preview: %w", err)
	}
	return &a, nil
}

// ClearQueryIntentLinks removes every intent link for queryID, so a
// query_full re-run starts Intent resolution from a clean slate (base spec
// §4.8.1 step 4).
func (s *Store) ClearQueryIntentLinks(ctx context.Context, queryID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM query_intent_links WHERE query_id = $1`, queryID)
	if err != nil {
		return fmt.Errorf("store: clear query intent links: %w", err)
	}
	return nil
}

// GetArticle loads an article by id.
func (s *Store) GetArticle(ctx context.Context, id int64) (*Article, error) {
	var a Article
	err := s.db.QueryRowContext(ctx, `
		SELECT id, intent_id, slug, status, filetype, title, content, created_at, updated_at
		FROM articles WHERE id = $1`, id,
	).Scan(&a.ID, &a.IntentID, &a.Slug, &a.Status, &a.Filetype, &a.Title, &a.Content, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get article: %w", err)
	}
	return &a, nil
}

// SetArticleGenerating transitions an article into content_generating,
// the state entered when an article_content_generate order claims it.
func (s *Store) SetArticleGenerating(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE articles SET status = $1, updated_at = now()
		WHERE id = $2 AND status IN ($3, $4)`,
		ArticleStatusContentGenerating, id, ArticleStatusPreviewReady, ArticleStatusContentFailed,
	)
	if err != nil {
		return fmt.Errorf("store: set article generating: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// CompleteArticleContent stores generated content and marks the article
// content_ready.
func (s *Store) CompleteArticleContent(ctx context.Context, id int64, content string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE articles SET status = $1, content = $2, updated_at = now()
		WHERE id = $3`,
		ArticleStatusContentReady, content, id,
	)
	if err != nil {
		return fmt.Errorf("store: complete article content: %w", err)
	}
	return nil
}

// FailArticleContent marks an article content_failed after the generation
// order exhausts its retry budget.
func (s *Store) FailArticleContent(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE articles SET status = $1, updated_at = now() WHERE id = $2`,
		ArticleStatusContentFailed, id,
	)
	if err != nil {
		return fmt.Errorf("store: fail article content: %w", err)
	}
	return nil
}

// GetSpellCorrection returns a cached correction for (originalValue,
// language), or ErrNotFound if none is cached yet.
func (s *Store) GetSpellCorrection(ctx context.Context, originalValue, language string) (string, error) {
	var corrected string
	err := s.db.QueryRowContext(ctx, `
		SELECT corrected_value FROM spell_correction_cache
		WHERE original_value = $1 AND language = $2`, originalValue, language,
	).Scan(&corrected)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: get spell correction: %w", err)
	}
	return corrected, nil
}

// PutSpellCorrection caches a correction, overwriting any prior entry for
// the same (originalValue, language) — the correction algorithm itself is
// out of scope, Store only exposes Get/Put (base spec §3).
func (s *Store) PutSpellCorrection(ctx context.Context, originalValue, language, correctedValue string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO spell_correction_cache (original_value, language, corrected_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (original_value, language) DO UPDATE SET corrected_value = EXCLUDED.corrected_value`,
		originalValue, language, correctedValue,
	)
	if err != nil {
		return fmt.Errorf("store: put spell correction: %w", err)
	}
	return nil
}
