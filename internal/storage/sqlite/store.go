package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tjfontaine/mealgen/internal/storage"
)

// Store is a SQLite implementation of SubmissionStore
type Store struct {
	db *sql.DB
}

var _ storage.SubmissionStore = (*Store)(nil)

// New creates a new SQLite store
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS submissions (
			id TEXT PRIMARY KEY,
			session_id TEXT,
			generator TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			request TEXT NOT NULL,
			outcome TEXT NOT NULL,
			error_kind TEXT,
			message TEXT,
			duration_ns INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_generator ON submissions(generator)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_session ON submissions(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_created ON submissions(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *Store) RecordSubmission(ctx context.Context, sub *storage.Submission) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}

	request := string(sub.Request)
	if request == "" {
		request = "null"
	}

	query := `INSERT INTO submissions (id, session_id, generator, sequence, request, outcome,
	          error_kind, message, duration_ns, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		sub.ID, sub.SessionID, sub.Generator, int64(sub.Sequence), request, sub.Outcome,
		sub.ErrorKind, sub.Message, int64(sub.Duration), sub.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record submission: %w", err)
	}

	return nil
}

const selectColumns = `SELECT id, session_id, generator, sequence, request, outcome,
	error_kind, message, duration_ns, created_at FROM submissions`

func (s *Store) GetSubmission(ctx context.Context, id string) (*storage.Submission, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)

	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return sub, nil
}

func (s *Store) ListSubmissions(ctx context.Context, opts storage.ListOptions) ([]*storage.Submission, error) {
	var (
		where []string
		args  []any
	)
	if opts.Generator != "" {
		where = append(where, "generator = ?")
		args = append(args, opts.Generator)
	}
	if opts.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, opts.SessionID)
	}

	query := selectColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	result := []*storage.Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		result = append(result, sub)
	}

	return result, rows.Err()
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row scanner) (*storage.Submission, error) {
	var (
		sub        storage.Submission
		sessionID  sql.NullString
		errorKind  sql.NullString
		message    sql.NullString
		request    string
		sequence   int64
		durationNS int64
	)

	err := row.Scan(&sub.ID, &sessionID, &sub.Generator, &sequence, &request, &sub.Outcome,
		&errorKind, &message, &durationNS, &sub.CreatedAt)
	if err != nil {
		return nil, err
	}

	sub.SessionID = sessionID.String
	sub.ErrorKind = errorKind.String
	sub.Message = message.String
	sub.Request = []byte(request)
	sub.Sequence = uint64(sequence)
	sub.Duration = time.Duration(durationNS)

	return &sub, nil
}
