package sql

import (
	"context"
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/propgraph/dialect"
)

func TestDriverDialect(t *testing.T) {
	for driver, want := range map[string]string{
		"sqlite":    dialect.SQLite,
		"sqlite3":   dialect.SQLite,
		"postgres":  dialect.Postgres,
		"oddballdb": "oddballdb",
	} {
		d := NewDriver(driver, Conn{})
		assert.Equal(t, want, d.Dialect())
	}
}

func TestExec(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectExec("INSERT INTO node (pid) VALUES (?)").
		WithArgs("a").
		WillReturnResult(sqlmock.NewResult(1, 1))

	drv := OpenDB(dialect.SQLite, db)
	var res sql.Result
	err = drv.Exec(context.Background(), "INSERT INTO node (pid) VALUES (?)", []any{"a"}, &res)
	require.NoError(t, err)
	affected, err := res.RowsAffected()
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecInvalidArgs(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.SQLite, db)
	assert.Error(t, drv.Exec(context.Background(), "SELECT 1", "not-a-slice", nil))
	assert.Error(t, drv.Exec(context.Background(), "SELECT 1", []any{}, "bad-dest"))
}

func TestQuery(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("SELECT pid FROM node WHERE otype = ?").
		WithArgs("Person").
		WillReturnRows(sqlmock.NewRows([]string{"pid"}).AddRow("a").AddRow("b"))

	drv := OpenDB(dialect.SQLite, db)
	rows := &Rows{}
	err = drv.Query(context.Background(), "SELECT pid FROM node WHERE otype = ?", []any{"Person"}, rows)
	require.NoError(t, err)
	defer rows.Close()
	var pids []string
	for rows.Next() {
		var pid string
		require.NoError(t, rows.Scan(&pid))
		pids = append(pids, pid)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"a", "b"}, pids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTx(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE node SET tmodified = ?").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	drv := OpenDB(dialect.SQLite, db)
	tx, err := drv.Tx(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Exec(context.Background(), "UPDATE node SET tmodified = ?", []any{int64(1)}, nil))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}
