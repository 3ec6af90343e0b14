package ticket

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ticket store: open: %w", err)
	}

	// One connection keeps the pragmas below in effect for every statement
	// and serializes writers.
	db.SetMaxOpenConns(1)

	// WAL lets the API read while the agent run writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("ticket store: wal: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("ticket store: busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tickets (
			id               TEXT PRIMARY KEY,
			subject          TEXT NOT NULL,
			content          TEXT NOT NULL,
			email            TEXT NOT NULL,
			status           TEXT NOT NULL,
			agent_state      TEXT NOT NULL DEFAULT '',
			proposed_answers TEXT NOT NULL DEFAULT '[]',
			final_answer     TEXT NOT NULL DEFAULT '',
			support_agent_id TEXT NOT NULL DEFAULT '',
			review           TEXT NOT NULL DEFAULT '',
			created_at       TEXT NOT NULL,
			updated_at       TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
		CREATE INDEX IF NOT EXISTS idx_tickets_email ON tickets(email);
		CREATE INDEX IF NOT EXISTS idx_tickets_created_at ON tickets(created_at);
	`)
	if err != nil {
		return fmt.Errorf("ticket store: migrate: %w", err)
	}

	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Create implements Store. Each candidate id is tried with an insert that
// skips on conflict, so allocation and insert are one statement.
func (s *SQLiteStore) Create(ctx context.Context, t *Ticket) error {
	touch(t)

	args, err := ticketArgs(t)
	if err != nil {
		return fmt.Errorf("ticket store: create: %w", err)
	}

	base := t.ID
	for n := 1; ; n++ {
		id := candidateID(base, n)
		args[0] = id

		res, err := s.db.ExecContext(ctx, insertTicket+` ON CONFLICT(id) DO NOTHING`, args...)
		if err != nil {
			return fmt.Errorf("ticket store: create: %w", err)
		}

		if affected, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("ticket store: create: %w", err)
		} else if affected == 1 {
			t.ID = id
			return nil
		}
	}
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, t *Ticket) error {
	touch(t)

	args, err := ticketArgs(t)
	if err != nil {
		return fmt.Errorf("ticket store: save: %w", err)
	}

	_, err = s.db.ExecContext(ctx, insertTicket+`
		ON CONFLICT(id) DO UPDATE SET
			subject=excluded.subject, content=excluded.content, email=excluded.email, status=excluded.status,
			agent_state=excluded.agent_state, proposed_answers=excluded.proposed_answers, final_answer=excluded.final_answer,
			support_agent_id=excluded.support_agent_id, review=excluded.review, updated_at=excluded.updated_at
	`, args...)
	if err != nil {
		return fmt.Errorf("ticket store: save: %w", err)
	}

	return nil
}

const insertTicket = `
		INSERT INTO tickets (id, subject, content, email, status, agent_state, proposed_answers, final_answer, support_agent_id, review, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// ticketArgs returns the insert arguments in column order, id first.
func ticketArgs(t *Ticket) ([]any, error) {
	proposed, err := json.Marshal(nonNil(t.ProposedAnswers))
	if err != nil {
		return nil, err
	}

	var review []byte
	if t.Review != nil {
		if review, err = json.Marshal(t.Review); err != nil {
			return nil, err
		}
	}

	return []any{
		t.ID, t.Subject, t.Content, t.Email, string(t.Status), string(t.AgentState), string(proposed),
		t.FinalAnswer, t.SupportAgentID, string(review),
		t.CreatedAt.UTC().Format(timeLayout), t.UpdatedAt.UTC().Format(timeLayout),
	}, nil
}

// timeLayout is fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const selectColumns = `SELECT id, subject, content, email, status, agent_state, proposed_answers, final_answer, support_agent_id, review, created_at, updated_at FROM tickets`

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Ticket, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)

	t, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("ticket store: get: %w", err)
	}

	return t, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]*Ticket, error) {
	query := selectColumns + " WHERE 1=1"
	var args []any

	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filter.Status))
	}
	if filter.Email != "" {
		query += " AND email = ? COLLATE NOCASE"
		args = append(args, filter.Email)
	}
	if filter.Query != "" {
		query += " AND (subject LIKE ? OR content LIKE ?)"
		pattern := fmt.Sprintf("%%%s%%", filter.Query)
		args = append(args, pattern, pattern)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ticket store: list: %w", err)
	}
	defer rows.Close()

	tickets := []*Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("ticket store: list scan: %w", err)
		}
		tickets = append(tickets, t)
	}

	return tickets, rows.Err()
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tickets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("ticket store: delete: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTicket(s scannable) (*Ticket, error) {
	var (
		t                                  Ticket
		status, agentState, proposed       string
		review, createdAtStr, updatedAtStr string
	)

	err := s.Scan(&t.ID, &t.Subject, &t.Content, &t.Email, &status, &agentState, &proposed,
		&t.FinalAnswer, &t.SupportAgentID, &review, &createdAtStr, &updatedAtStr)
	if err != nil {
		return nil, err
	}

	t.Status = Status(status)
	if agentState != "" {
		t.AgentState = json.RawMessage(agentState)
	}
	if err := json.Unmarshal([]byte(proposed), &t.ProposedAnswers); err != nil {
		return nil, fmt.Errorf("proposed answers: %w", err)
	}
	if len(t.ProposedAnswers) == 0 {
		t.ProposedAnswers = nil
	}
	if review != "" {
		t.Review = &Review{}
		if err := json.Unmarshal([]byte(review), t.Review); err != nil {
			return nil, fmt.Errorf("review: %w", err)
		}
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAtStr)
	t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAtStr)

	return &t, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
