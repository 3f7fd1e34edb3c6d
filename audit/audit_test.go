package audit

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zinga/logger"
)

func fixedNow() time.Time {
	return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
}

func newMockLog(t *testing.T) (*Log, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	l := New(db, logger.Nop())
	l.now = fixedNow
	return l, mock
}

func TestOpen_WriteAndList(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "audit.db"), logger.Nop())
	require.NoError(t, err)
	defer l.Close()
	ctx := context.Background()

	require.NoError(t, l.Write(ctx, ActionSave, "admin-1", map[string]any{"version": 2}))
	require.NoError(t, l.Write(ctx, ActionRestore, "admin-1", map[string]string{"filename": "backup-1.json"}))
	require.NoError(t, l.Write(ctx, ActionSave, "", nil))

	all, err := l.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ActionSave, all[0].Action, "newest first")
	assert.JSONEq(t, `{}`, string(all[0].Detail))
	assert.Equal(t, ActionRestore, all[1].Action)
	assert.JSONEq(t, `{"filename":"backup-1.json"}`, string(all[1].Detail))

	saves, err := l.List(ctx, Filter{Action: ActionSave, Limit: 1})
	require.NoError(t, err)
	require.Len(t, saves, 1)
	assert.Equal(t, all[0].ID, saves[0].ID)
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	first, err := Open(path, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, first.Write(context.Background(), ActionReset, "", nil))
	require.NoError(t, first.Close())

	second, err := Open(path, logger.Nop())
	require.NoError(t, err)
	defer second.Close()
	entries, err := second.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWrite_Mock(t *testing.T) {
	l, mock := newMockLog(t)

	mock.ExpectExec(`INSERT INTO audit_log \(action,actor,detail,created_at\) VALUES \(\?,\?,\?,\?\)`).
		WithArgs(ActionConfirmPayments, "admin-1", `{"processed":2}`, fixedNow().UnixMilli()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := l.Write(context.Background(), ActionConfirmPayments, "admin-1", map[string]int{"processed": 2})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWrite_DBError(t *testing.T) {
	l, mock := newMockLog(t)

	mock.ExpectExec(`INSERT INTO audit_log`).WillReturnError(errors.New("disk I/O error"))

	err := l.Write(context.Background(), ActionSave, "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inserting audit entry")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWrite_UnencodableDetail(t *testing.T) {
	l, _ := newMockLog(t)

	err := l.Write(context.Background(), ActionSave, "", map[string]any{"bad": make(chan int)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encoding audit detail")
}

func TestRecord_SwallowsErrors(t *testing.T) {
	l, mock := newMockLog(t)

	mock.ExpectExec(`INSERT INTO audit_log`).WillReturnError(sql.ErrConnDone)

	assert.NotPanics(t, func() {
		l.Record(context.Background(), ActionPrune, "scheduler", []string{"backup-1.json"})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList_Mock(t *testing.T) {
	l, mock := newMockLog(t)
	created := fixedNow().UnixMilli()

	rows := sqlmock.NewRows([]string{"id", "action", "actor", "detail", "created_at"}).
		AddRow(int64(7), ActionRestore, "admin-1", `{"filename":"backup-1.json"}`, created)
	mock.ExpectQuery(`SELECT id, action, actor, detail, created_at FROM audit_log WHERE action = \? ORDER BY id DESC LIMIT 500`).
		WithArgs(ActionRestore).
		WillReturnRows(rows)

	entries, err := l.List(context.Background(), Filter{Action: ActionRestore, Limit: 10000})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(7), entries[0].ID)
	assert.Equal(t, "admin-1", entries[0].Actor)
	assert.True(t, fixedNow().Equal(entries[0].CreatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList_QueryError(t *testing.T) {
	l, mock := newMockLog(t)

	mock.ExpectQuery(`SELECT (.+) FROM audit_log`).WillReturnError(errors.New("no such table"))

	_, err := l.List(context.Background(), Filter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "querying audit log")
}

func TestNilLog(t *testing.T) {
	var l *Log
	ctx := context.Background()

	assert.NoError(t, l.Write(ctx, ActionSave, "", nil))
	l.Record(ctx, ActionSave, "", nil)
	entries, err := l.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, l.Close())
}

func TestMigrate_NilDB(t *testing.T) {
	err := Migrate(nil, logger.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db is nil")
}

func TestMigrate_DBError(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	err = Migrate(db, logger.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration error")
}
