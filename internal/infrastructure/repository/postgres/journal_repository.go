package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/invoice-desk/internal/core/domain"
	"github.com/kirillkom/invoice-desk/internal/core/ports"
)

// JournalRepository is an append-only log of operator action outcomes.
type JournalRepository struct {
	db *sql.DB
}

func NewJournalRepository(db *sql.DB) *JournalRepository {
	return &JournalRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *JournalRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrently started desks.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS desk_journal (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	action TEXT NOT NULL,
	actor_id TEXT NOT NULL,
	field TEXT,
	value TEXT,
	detail TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_desk_journal_document ON desk_journal(document_id, created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *JournalRepository) Record(ctx context.Context, entry domain.JournalEntry) error {
	if strings.TrimSpace(entry.ID) == "" || strings.TrimSpace(entry.DocumentID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "record journal entry", fmt.Errorf("id and document id are required"))
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO desk_journal (id, document_id, action, actor_id, field, value, detail, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
		entry.ID, entry.DocumentID, string(entry.Action), entry.ActorID,
		nullString(entry.Field), nullString(entry.Value), nullString(entry.Detail), createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// ListByDocument returns the newest entries first.
func (r *JournalRepository) ListByDocument(ctx context.Context, documentID string, limit int) ([]domain.JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, document_id, action, actor_id, field, value, detail, created_at
FROM desk_journal
WHERE document_id = $1
ORDER BY created_at DESC
LIMIT $2
`, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal entries: %w", err)
	}
	defer rows.Close()

	out := make([]domain.JournalEntry, 0, limit)
	for rows.Next() {
		var (
			entry                domain.JournalEntry
			action               string
			field, value, detail sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.DocumentID, &action, &entry.ActorID, &field, &value, &detail, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		entry.Action = domain.JournalAction(action)
		entry.Field = field.String
		entry.Value = value.String
		entry.Detail = detail.String
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal entries: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ ports.ActionJournal = (*JournalRepository)(nil)
var _ ports.JournalReader = (*JournalRepository)(nil)
