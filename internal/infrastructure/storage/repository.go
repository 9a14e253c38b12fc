package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/ports"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyResolved is returned when a suggestion is no longer pending.
	ErrAlreadyResolved = errors.New("suggestion already resolved")
)

var subscriberColumns = []string{
	"id", "email", "full_name", "custom_prompt", "arxiv_category", "frequency", "preferred_day",
	"active", "email_enabled", "last_sent", "last_analysis_attempt", "papers_sent_total", "created_at",
}

var suggestionColumns = []string{
	"id", "user_id", "pattern_type", "pattern_description", "confidence", "evidence",
	"suggested_text", "current_prompt", "status", "created_at",
}

var paperColumns = []string{
	"user_id", "arxiv_id", "title", "authors", "abstract", "review", "arxiv_link", "pdf_link", "processed_at",
}

// Repository persists subscribers, votes, suggestions and delivered papers.
type Repository struct {
	db  *sql.DB
	sb  sq.StatementBuilderType
	now func() time.Time
}

var (
	_ ports.SubscriberRepository = (*Repository)(nil)
	_ ports.VoteRepository       = (*Repository)(nil)
	_ ports.SuggestionRepository = (*Repository)(nil)
	_ ports.PaperRepository      = (*Repository)(nil)
)

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// NewRepository wires a sql.DB; driver selects the placeholder format.
func NewRepository(db *sql.DB, driver string) *Repository {
	var format sq.PlaceholderFormat = sq.Dollar
	if driver == DriverSQLite {
		format = sq.Question
	}
	return &Repository{
		db:  db,
		sb:  sq.StatementBuilder.PlaceholderFormat(format),
		now: time.Now,
	}
}

// ---- subscribers ----

// ActiveSubscribers returns every active profile in creation order.
func (r *Repository) ActiveSubscribers(ctx context.Context) ([]domain.Subscriber, error) {
	return r.subscribers(ctx, sq.Eq{"active": true})
}

// EmailSubscribers returns active profiles that accept digest emails.
func (r *Repository) EmailSubscribers(ctx context.Context) ([]domain.Subscriber, error) {
	return r.subscribers(ctx, sq.Eq{"active": true, "email_enabled": true})
}

// Subscriber loads a single profile.
func (r *Repository) Subscriber(ctx context.Context, userID string) (domain.Subscriber, error) {
	query := r.sb.Select(subscriberColumns...).From("user_profiles").Where(sq.Eq{"id": userID})
	stmt, args, err := query.ToSql()
	if err != nil {
		return domain.Subscriber{}, fmt.Errorf("build subscriber query: %w", err)
	}
	sub, err := scanSubscriber(r.db.QueryRowContext(ctx, stmt, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Subscriber{}, fmt.Errorf("subscriber %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return domain.Subscriber{}, fmt.Errorf("load subscriber: %w", err)
	}
	return sub, nil
}

func (r *Repository) subscribers(ctx context.Context, where sq.Eq) ([]domain.Subscriber, error) {
	query := r.sb.Select(subscriberColumns...).From("user_profiles").Where(where).OrderBy("created_at", "id")
	return queryAll(ctx, r.db, query, scanSubscriber)
}

// UpsertSubscriber inserts a profile or refreshes its editable fields.
func (r *Repository) UpsertSubscriber(ctx context.Context, s domain.Subscriber) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.now()
	}
	if s.Frequency == "" {
		s.Frequency = domain.FrequencyDaily
	}
	if s.PreferredDay == 0 {
		s.PreferredDay = 1
	}

	query := r.sb.Insert("user_profiles").
		Columns(subscriberColumns...).
		Values(
			s.ID, s.Email, s.FullName, s.CustomPrompt, s.Category, string(s.Frequency), s.PreferredDay,
			s.Active, s.EmailEnabled, nullTime(s.LastSent), nullTime(s.LastAnalysisAttempt),
			s.PapersSentTotal, s.CreatedAt.UTC(),
		).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			full_name = EXCLUDED.full_name,
			custom_prompt = EXCLUDED.custom_prompt,
			arxiv_category = EXCLUDED.arxiv_category,
			frequency = EXCLUDED.frequency,
			preferred_day = EXCLUDED.preferred_day,
			active = EXCLUDED.active,
			email_enabled = EXCLUDED.email_enabled`)

	if _, err := r.exec(ctx, query); err != nil {
		return fmt.Errorf("upsert subscriber: %w", err)
	}
	return nil
}

// RecordLastSent stores the digest delivery time.
func (r *Repository) RecordLastSent(ctx context.Context, userID string, at time.Time) error {
	return r.updateSubscriber(ctx, userID, "last_sent", at.UTC())
}

// AddPapersSent increments the lifetime delivery counter.
func (r *Repository) AddPapersSent(ctx context.Context, userID string, n int) error {
	return r.updateSubscriber(ctx, userID, "papers_sent_total", sq.Expr("papers_sent_total + ?", n))
}

// RecordAnalysisAttempt stores an absolute timestamp, which may lie in the past.
func (r *Repository) RecordAnalysisAttempt(ctx context.Context, userID string, at time.Time) error {
	return r.updateSubscriber(ctx, userID, "last_analysis_attempt", at.UTC())
}

func (r *Repository) updateSubscriber(ctx context.Context, userID, column string, value any) error {
	query := r.sb.Update("user_profiles").Set(column, value).Where(sq.Eq{"id": userID})
	res, err := r.exec(ctx, query)
	if err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}
	return expectRow(res, "subscriber "+userID)
}

// ---- votes ----

// VoteCounts aggregates total, positive and negative votes.
func (r *Repository) VoteCounts(ctx context.Context, userID string) (domain.VoteStats, error) {
	query := r.sb.Select(
		"COUNT(*)",
		"COALESCE(SUM(CASE WHEN vote = 'up' THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN vote = 'down' THEN 1 ELSE 0 END), 0)",
	).From("paper_feedback").Where(sq.Eq{"user_id": userID})

	stmt, args, err := query.ToSql()
	if err != nil {
		return domain.VoteStats{}, fmt.Errorf("build vote counts: %w", err)
	}

	var stats domain.VoteStats
	if err := r.db.QueryRowContext(ctx, stmt, args...).Scan(&stats.Total, &stats.Positive, &stats.Negative); err != nil {
		return domain.VoteStats{}, fmt.Errorf("vote counts: %w", err)
	}
	return stats, nil
}

// Votes returns every vote of a subscriber, oldest first.
func (r *Repository) Votes(ctx context.Context, userID string) ([]domain.VoteRecord, error) {
	query := r.sb.Select("user_id", "paper_title", "paper_arxiv_id", "paper_abstract", "vote", "created_at").
		From("paper_feedback").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at", "id")

	return queryAll(ctx, r.db, query, func(row rowScanner) (domain.VoteRecord, error) {
		var v domain.VoteRecord
		var vote string
		if err := row.Scan(&v.UserID, &v.PaperTitle, &v.PaperArxivID, &v.PaperAbstract, &vote, &v.CreatedAt); err != nil {
			return v, err
		}
		v.Vote = domain.Vote(vote)
		return v, nil
	})
}

// AddVote records a vote; voting again on the same paper replaces the earlier vote.
func (r *Repository) AddVote(ctx context.Context, v domain.VoteRecord) error {
	if !v.Vote.Valid() {
		return fmt.Errorf("invalid vote %q", v.Vote)
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = r.now()
	}
	query := r.sb.Insert("paper_feedback").
		Columns("id", "user_id", "paper_title", "paper_arxiv_id", "paper_abstract", "vote", "created_at").
		Values(uuid.NewString(), v.UserID, v.PaperTitle, v.PaperArxivID, v.PaperAbstract, string(v.Vote), v.CreatedAt.UTC()).
		Suffix("ON CONFLICT (user_id, paper_arxiv_id) DO UPDATE SET vote = EXCLUDED.vote, created_at = EXCLUDED.created_at")

	if _, err := r.exec(ctx, query); err != nil {
		return fmt.Errorf("add vote: %w", err)
	}
	return nil
}

// ---- suggestions ----

// CreateSuggestion inserts a suggestion, assigning an id when missing.
func (r *Repository) CreateSuggestion(ctx context.Context, s domain.PromptSuggestion) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = domain.SuggestionPending
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.now()
	}
	query := r.sb.Insert("prompt_suggestions").
		Columns(suggestionColumns...).
		Values(s.ID, s.UserID, string(s.Type), s.Description, s.Confidence, s.Evidence,
			s.SuggestedText, s.CurrentPrompt, string(s.Status), s.CreatedAt.UTC())

	if _, err := r.exec(ctx, query); err != nil {
		return fmt.Errorf("create suggestion: %w", err)
	}
	return nil
}

// CountPending returns how many suggestions still await a decision.
func (r *Repository) CountPending(ctx context.Context, userID string) (int, error) {
	stmt, args, err := r.sb.Select("COUNT(*)").
		From("prompt_suggestions").
		Where(sq.Eq{"user_id": userID, "status": string(domain.SuggestionPending)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build pending count: %w", err)
	}
	var n int
	if err := r.db.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

// Suggestions lists a subscriber's suggestions, newest first. An empty status lists all.
func (r *Repository) Suggestions(ctx context.Context, userID string, status domain.SuggestionStatus) ([]domain.PromptSuggestion, error) {
	where := sq.Eq{"user_id": userID}
	if status != "" {
		where["status"] = string(status)
	}
	query := r.sb.Select(suggestionColumns...).From("prompt_suggestions").Where(where).OrderBy("created_at DESC", "id")
	return queryAll(ctx, r.db, query, scanSuggestion)
}

// AcceptSuggestion marks a pending suggestion accepted and appends its text to
// the subscriber's prompt in a single transaction.
func (r *Repository) AcceptSuggestion(ctx context.Context, id string) (domain.PromptSuggestion, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.PromptSuggestion{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	s, err := r.pendingSuggestion(ctx, tx, id)
	if err != nil {
		return domain.PromptSuggestion{}, err
	}

	var prompt string
	stmt, args, err := r.sb.Select("custom_prompt").From("user_profiles").Where(sq.Eq{"id": s.UserID}).ToSql()
	if err != nil {
		return domain.PromptSuggestion{}, fmt.Errorf("build prompt query: %w", err)
	}
	if err := tx.QueryRowContext(ctx, stmt, args...).Scan(&prompt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PromptSuggestion{}, fmt.Errorf("subscriber %s: %w", s.UserID, ErrNotFound)
		}
		return domain.PromptSuggestion{}, fmt.Errorf("load prompt: %w", err)
	}

	if _, err := r.execTx(ctx, tx, r.sb.Update("user_profiles").
		Set("custom_prompt", AppendToPrompt(prompt, s.SuggestedText)).
		Where(sq.Eq{"id": s.UserID})); err != nil {
		return domain.PromptSuggestion{}, fmt.Errorf("update prompt: %w", err)
	}
	if _, err := r.execTx(ctx, tx, r.sb.Update("prompt_suggestions").
		Set("status", string(domain.SuggestionAccepted)).
		Where(sq.Eq{"id": id})); err != nil {
		return domain.PromptSuggestion{}, fmt.Errorf("update suggestion: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.PromptSuggestion{}, fmt.Errorf("commit: %w", err)
	}
	s.Status = domain.SuggestionAccepted
	return s, nil
}

// RejectSuggestion marks a pending suggestion rejected.
func (r *Repository) RejectSuggestion(ctx context.Context, id string) error {
	query := r.sb.Update("prompt_suggestions").
		Set("status", string(domain.SuggestionRejected)).
		Where(sq.Eq{"id": id, "status": string(domain.SuggestionPending)})
	res, err := r.exec(ctx, query)
	if err != nil {
		return fmt.Errorf("reject suggestion: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	// Distinguish an unknown id from an already resolved one.
	if _, err := r.pendingSuggestion(ctx, r.db, id); err != nil {
		return err
	}
	return fmt.Errorf("suggestion %s: %w", id, ErrAlreadyResolved)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *Repository) pendingSuggestion(ctx context.Context, q queryRower, id string) (domain.PromptSuggestion, error) {
	stmt, args, err := r.sb.Select(suggestionColumns...).From("prompt_suggestions").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.PromptSuggestion{}, fmt.Errorf("build suggestion query: %w", err)
	}
	s, err := scanSuggestion(q.QueryRowContext(ctx, stmt, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PromptSuggestion{}, fmt.Errorf("suggestion %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.PromptSuggestion{}, fmt.Errorf("load suggestion: %w", err)
	}
	if s.Status != domain.SuggestionPending {
		return domain.PromptSuggestion{}, fmt.Errorf("suggestion %s: %w", id, ErrAlreadyResolved)
	}
	return s, nil
}

// AppendToPrompt adds an accepted suggestion as a new paragraph of the prompt.
func AppendToPrompt(prompt, addition string) string {
	prompt = strings.TrimRight(prompt, " \n")
	addition = strings.TrimSpace(addition)
	switch {
	case addition == "":
		return prompt
	case prompt == "":
		return addition
	default:
		return prompt + "\n\n" + addition
	}
}

// ---- delivered papers ----

// StorePaper inserts the paper unless (user, arxiv id) is already present and
// reports whether a row was written.
func (r *Repository) StorePaper(ctx context.Context, p domain.DeliveredPaper) (bool, error) {
	authors, err := json.Marshal(nonNil(p.Authors))
	if err != nil {
		return false, fmt.Errorf("encode authors: %w", err)
	}
	if p.ProcessedAt.IsZero() {
		p.ProcessedAt = r.now()
	}

	query := r.sb.Insert("sent_papers").
		Columns(append([]string{"id"}, paperColumns...)...).
		Values(uuid.NewString(), p.UserID, p.ArxivID, p.Title, string(authors), p.Abstract, p.Review,
			p.ArxivLink, p.PDFLink, p.ProcessedAt.UTC()).
		Suffix("ON CONFLICT (user_id, arxiv_id) DO NOTHING")

	res, err := r.exec(ctx, query)
	if err != nil {
		return false, fmt.Errorf("store paper: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// PapersSince returns the subscriber's papers processed at or after since.
func (r *Repository) PapersSince(ctx context.Context, userID string, since time.Time) ([]domain.DeliveredPaper, error) {
	query := r.sb.Select(paperColumns...).
		From("sent_papers").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.GtOrEq{"processed_at": since.UTC()}).
		OrderBy("processed_at", "arxiv_id")

	return queryAll(ctx, r.db, query, func(row rowScanner) (domain.DeliveredPaper, error) {
		var p domain.DeliveredPaper
		var authors string
		if err := row.Scan(&p.UserID, &p.ArxivID, &p.Title, &authors, &p.Abstract, &p.Review,
			&p.ArxivLink, &p.PDFLink, &p.ProcessedAt); err != nil {
			return p, err
		}
		if err := json.Unmarshal([]byte(authors), &p.Authors); err != nil {
			return p, fmt.Errorf("decode authors of %s: %w", p.ArxivID, err)
		}
		return p, nil
	})
}

// ---- helpers ----

type rowScanner interface {
	Scan(dest ...any) error
}

func queryAll[T any](ctx context.Context, db *sql.DB, query sq.SelectBuilder, scan func(rowScanner) (T, error)) ([]T, error) {
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	var result []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan row: %w", err)
		}
		result = append(result, item)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

func (r *Repository) exec(ctx context.Context, query sq.Sqlizer) (sql.Result, error) {
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build statement: %w", err)
	}
	return r.db.ExecContext(ctx, stmt, args...)
}

func (r *Repository) execTx(ctx context.Context, tx *sql.Tx, query sq.Sqlizer) (sql.Result, error) {
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build statement: %w", err)
	}
	return tx.ExecContext(ctx, stmt, args...)
}

func expectRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func scanSubscriber(row rowScanner) (domain.Subscriber, error) {
	var (
		s                     domain.Subscriber
		frequency             string
		lastSent, lastAttempt sql.NullTime
	)
	err := row.Scan(&s.ID, &s.Email, &s.FullName, &s.CustomPrompt, &s.Category, &frequency, &s.PreferredDay,
		&s.Active, &s.EmailEnabled, &lastSent, &lastAttempt, &s.PapersSentTotal, &s.CreatedAt)
	if err != nil {
		return s, err
	}
	s.Frequency = domain.Frequency(frequency)
	s.LastSent = timePtr(lastSent)
	s.LastAnalysisAttempt = timePtr(lastAttempt)
	return s, nil
}

func scanSuggestion(row rowScanner) (domain.PromptSuggestion, error) {
	var s domain.PromptSuggestion
	var kind, status string
	err := row.Scan(&s.ID, &s.UserID, &kind, &s.Description, &s.Confidence, &s.Evidence,
		&s.SuggestedText, &s.CurrentPrompt, &status, &s.CreatedAt)
	if err != nil {
		return s, err
	}
	s.Type = domain.PatternType(kind)
	s.Status = domain.SuggestionStatus(status)
	return s, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
