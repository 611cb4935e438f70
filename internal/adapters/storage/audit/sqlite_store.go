package audit

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domain "drinkmailer/internal/domain/audit"
)

const dateLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when no event has the requested id.
var ErrNotFound = errors.New("audit event not found")

const selectColumns = `SELECT id, timestamp, category, action, severity, session_id, description, ip_address, egress_ip, user_agent, metadata FROM audit_event`

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db SQLDB
}

// NewSQLiteStore creates a new audit event store.
func NewSQLiteStore(db SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Save persists an audit event.
func (s *SQLiteStore) Save(ctx context.Context, event domain.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_event (id, timestamp, category, action, severity, session_id, description, ip_address, egress_ip, user_agent, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Timestamp.UTC().Format(dateLayout), string(event.Category), string(event.Action),
		string(event.Severity), event.SessionID, event.Description, event.IPAddress, event.EgressIP,
		event.UserAgent, event.Metadata)
	return err
}

// List returns events matching filter, newest first.
func (s *SQLiteStore) List(ctx context.Context, filter domain.Filter) ([]domain.Event, error) {
	query := selectColumns + ` WHERE 1=1`
	args := []any{}

	if filter.Category != "" {
		query += " AND category = ?"
		args = append(args, string(filter.Category))
	}
	if filter.Action != "" {
		query += " AND action = ?"
		args = append(args, string(filter.Action))
	}
	if filter.Severity != "" {
		query += " AND severity = ?"
		args = append(args, string(filter.Severity))
	}

	query += " ORDER BY timestamp DESC, id LIMIT ?"
	args = append(args, filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetByID retrieves a specific audit event.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Event, error) {
	e, err := scanEvent(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Event{}, ErrNotFound
	}
	return e, err
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (domain.Event, error) {
	var e domain.Event
	var timestamp string
	err := row.Scan(&e.ID, &timestamp, &e.Category, &e.Action, &e.Severity, &e.SessionID,
		&e.Description, &e.IPAddress, &e.EgressIP, &e.UserAgent, &e.Metadata)
	if err != nil {
		return domain.Event{}, err
	}
	e.Timestamp, _ = time.Parse(dateLayout, timestamp)
	return e, nil
}
