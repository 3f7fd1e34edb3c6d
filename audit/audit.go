// Package audit keeps a trail of every mutation of the application document in
// a small SQLite database next to the data files.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"zinga/logger"
)

// Actions recorded in the trail.
const (
	ActionSave            = "save"
	ActionSaveRejected    = "save_rejected"
	ActionRestore         = "restore"
	ActionReset           = "reset"
	ActionConfirmPayments = "confirm_payments"
	ActionCreatePurchase  = "create_purchase"
	ActionPrune           = "prune"
)

const (
	tableName    = "audit_log"
	defaultLimit = 50
	maxLimit     = 500
)

// Entry is one row of the audit trail.
type Entry struct {
	ID        int64           `json:"id"`
	Action    string          `json:"action"`
	Actor     string          `json:"actor"`
	Detail    json.RawMessage `json:"detail"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Filter narrows List.
type Filter struct {
	Action string
	Limit  int
}

// Log writes and reads audit entries. A nil *Log records nothing, which is
// how auditing is switched off.
type Log struct {
	db  *sql.DB
	log *logger.Logger
	now func() time.Time
}

// Open opens (creating if needed) the audit database at path and migrates it.
func Open(path string, log *logger.Logger) (*Log, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db, log); err != nil {
		db.Close()
		return nil, err
	}
	return New(db, log), nil
}

// New wraps an already migrated database.
func New(db *sql.DB, log *logger.Logger) *Log {
	return &Log{db: db, log: log.Component("audit"), now: time.Now}
}

// Record writes an entry and only logs a failure; auditing never fails the
// operation being audited.
func (l *Log) Record(ctx context.Context, action, actor string, detail any) {
	if l == nil {
		return
	}
	if err := l.Write(ctx, action, actor, detail); err != nil {
		l.log.Error().Err(err).Str("action", action).Msg("failed to write audit entry")
	}
}

// Write inserts one entry. detail is stored as JSON.
func (l *Log) Write(ctx context.Context, action, actor string, detail any) error {
	if l == nil {
		return nil
	}
	payload := []byte("{}")
	if detail != nil {
		var err error
		if payload, err = json.Marshal(detail); err != nil {
			return fmt.Errorf("encoding audit detail: %w", err)
		}
	}

	query, args, err := sq.Insert(tableName).
		Columns("action", "actor", "detail", "created_at").
		Values(action, actor, string(payload), l.now().UTC().UnixMilli()).
		ToSql()
	if err != nil {
		return fmt.Errorf("building audit insert: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// List returns the most recent entries first.
func (l *Log) List(ctx context.Context, filter Filter) ([]Entry, error) {
	if l == nil {
		return []Entry{}, nil
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	builder := sq.Select("id", "action", "actor", "detail", "created_at").
		From(tableName).
		OrderBy("id DESC").
		Limit(uint64(limit))
	if filter.Action != "" {
		builder = builder.Where(sq.Eq{"action": filter.Action})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building audit query: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e      Entry
			detail string
			ms     int64
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.Actor, &detail, &ms); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Detail = json.RawMessage(detail)
		e.CreatedAt = time.UnixMilli(ms).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading audit log: %w", err)
	}
	return entries, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	return l.db.Close()
}
