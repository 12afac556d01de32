package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PGStore persists audit entries in the append-only audit_logs table and
// answers resource-ownership lookups against arbitrary tables.
type PGStore struct {
	db *sql.DB
}

// Open connects to Postgres with pool settings tuned for short writes.
func Open(dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &PGStore{db: db}, nil
}

// NewPGStore wraps an existing connection pool (used by tests).
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

var _ Store = (*PGStore)(nil)

// Close releases the connection pool.
func (s *PGStore) Close() error { return s.db.Close() }

// DB exposes the pool for readiness probes.
func (s *PGStore) DB() *sql.DB { return s.db }

// Append inserts one entry. There is deliberately no update or delete path.
func (s *PGStore) Append(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return errors.New("audit: entry is required")
	}
	if entry.Action == "" {
		return errors.New("audit: action is required")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_logs
			(id, user_id, action, resource_table, resource_id, ip_address, user_agent, session_id, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		entry.ID,
		nullIfEmpty(entry.UserID),
		entry.Action,
		entry.ResourceTable,
		nullIfEmpty(entry.ResourceID),
		entry.IPAddress,
		entry.UserAgent,
		nullIfEmpty(entry.SessionID),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// identRe is the allow-list for SQL identifiers in ownership lookups.
// Identifiers cannot be bound as parameters, so anything else is rejected.
var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Owns reports whether userID is the recorded owner of the row identified by
// (table, recordID), reading the given owner column.
func (s *PGStore) Owns(ctx context.Context, table, recordID, ownerColumn, userID string) (bool, error) {
	table = strings.TrimSpace(table)
	ownerColumn = strings.TrimSpace(ownerColumn)
	if !identRe.MatchString(table) {
		return false, fmt.Errorf("audit: invalid table name %q", table)
	}
	if !identRe.MatchString(ownerColumn) {
		return false, fmt.Errorf("audit: invalid owner column %q", ownerColumn)
	}
	if recordID == "" || userID == "" {
		return false, nil
	}

	var owner sql.NullString
	query := fmt.Sprintf(`select %s from %s where id = $1`, ownerColumn, table)
	err := s.db.QueryRowContext(ctx, query, recordID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ownership lookup: %w", err)
	}
	return owner.Valid && owner.String == userID, nil
}

func nullIfEmpty(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
