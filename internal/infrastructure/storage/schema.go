package storage

import (
	"context"
	"fmt"
)

// schema is portable between Postgres and SQLite: text ids, TIMESTAMP columns
// and ON CONFLICT clauses are understood by both.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS user_profiles (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL DEFAULT '',
		custom_prompt TEXT NOT NULL DEFAULT '',
		arxiv_category TEXT NOT NULL DEFAULT '',
		frequency TEXT NOT NULL DEFAULT 'daily',
		preferred_day INTEGER NOT NULL DEFAULT 1,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		email_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		last_sent TIMESTAMP NULL,
		last_analysis_attempt TIMESTAMP NULL,
		papers_sent_total INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS paper_feedback (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		paper_title TEXT NOT NULL DEFAULT '',
		paper_arxiv_id TEXT NOT NULL,
		paper_abstract TEXT NOT NULL DEFAULT '',
		vote TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (user_id, paper_arxiv_id)
	)`,
	`CREATE TABLE IF NOT EXISTS prompt_suggestions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		pattern_type TEXT NOT NULL,
		pattern_description TEXT NOT NULL DEFAULT '',
		confidence DOUBLE PRECISION NOT NULL,
		evidence TEXT NOT NULL DEFAULT '',
		suggested_text TEXT NOT NULL DEFAULT '',
		current_prompt TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS prompt_suggestions_user_status_idx ON prompt_suggestions (user_id, status)`,
	`CREATE TABLE IF NOT EXISTS sent_papers (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		arxiv_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		authors TEXT NOT NULL DEFAULT '[]',
		abstract TEXT NOT NULL DEFAULT '',
		review TEXT NOT NULL DEFAULT '',
		arxiv_link TEXT NOT NULL DEFAULT '',
		pdf_link TEXT NOT NULL DEFAULT '',
		processed_at TIMESTAMP NOT NULL,
		UNIQUE (user_id, arxiv_id)
	)`,
}

// Migrate creates missing tables and indexes.
func (r *Repository) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
