package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	q := `SELECT * FROM t WHERE a = ? AND b = '?' AND c IN (?, ?)`
	assert.Equal(t, q, MySQL.Rebind(q))
	assert.Equal(t, `SELECT * FROM t WHERE a = $1 AND b = '?' AND c IN ($2, $3)`, Postgres.Rebind(q))
}

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]Dialect{"": MySQL, "MySQL": MySQL, "pg": Postgres, " postgresql ": Postgres} {
		got, err := ParseDialect(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDialect("sqlite")
	assert.Error(t, err)
}

func TestViolationClassifiers(t *testing.T) {
	assert.True(t, MySQL.IsUniqueViolation(&mysql.MySQLError{Number: 1062}))
	assert.True(t, Postgres.IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, MySQL.IsUniqueViolation(errors.New("duplicate")))
	assert.True(t, MySQL.IsForeignKeyViolation(&mysql.MySQLError{Number: 1452}))
	assert.True(t, Postgres.IsForeignKeyViolation(&pq.Error{Code: "23503"}))
	assert.False(t, Postgres.IsForeignKeyViolation(&pq.Error{Code: "23505"}))
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "app:secret@tcp(db:3306)/tickets?charset=utf8mb4&parseTime=true&loc=UTC",
		dsn(MySQL, Options{User: "app", Pass: "secret", Host: "db", Port: "3306", Name: "tickets"}))
	assert.Equal(t, "postgres://app@db:5432/tickets?sslmode=disable&timezone=UTC",
		dsn(Postgres, Options{User: "app", Host: "db", Port: "5432", Name: "tickets"}))
}

func TestSplitStatements(t *testing.T) {
	body := `-- header
CREATE TABLE a (
  id INT -- inline comments stay
);

CREATE INDEX ix ON a (id);
INSERT INTO a VALUES (1)`
	got := splitStatements(body)
	require.Len(t, got, 3)
	assert.Contains(t, got[0], "CREATE TABLE a")
	assert.NotContains(t, got[0], ";")
	assert.Equal(t, "CREATE INDEX ix ON a (id)", got[1])
	assert.Equal(t, "INSERT INTO a VALUES (1)", got[2])
}

func TestMigrationFilesPresent(t *testing.T) {
	for _, d := range []Dialect{MySQL, Postgres} {
		body, err := migrationFiles.ReadFile("migrations/" + string(d) + "/0001_init.sql")
		require.NoError(t, err, d)
		stmts := splitStatements(string(body))
		assert.NotEmpty(t, stmts, d)
	}
}

func newMockDB(t *testing.T, d Dialect) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		raw.Close()
	})
	return New(raw, d), mock
}

func TestWithTxCommit(t *testing.T) {
	db, mock := newMockDB(t, Postgres)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM attendance WHERE ticket_id = \$1`).WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM tickets WHERE id = \$1`).WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := db.WithTx(context.Background(), func(ctx context.Context) error {
		if _, err := db.Conn(ctx).ExecContext(ctx, `DELETE FROM attendance WHERE ticket_id = ?`, 1); err != nil {
			return err
		}
		// nested calls join the outer transaction
		return db.WithTx(ctx, func(ctx context.Context) error {
			_, err := db.Conn(ctx).ExecContext(ctx, `DELETE FROM tickets WHERE id = ?`, 1)
			return err
		})
	})
	assert.NoError(t, err)
}

func TestWithTxRollback(t *testing.T) {
	db, mock := newMockDB(t, MySQL)
	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := db.WithTx(context.Background(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestWithTxBeginFails(t *testing.T) {
	db, mock := newMockDB(t, MySQL)
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	called := false
	err := db.WithTx(context.Background(), func(context.Context) error { called = true; return nil })
	assert.Error(t, err)
	assert.False(t, called)
}

func TestInsertID(t *testing.T) {
	my, myMock := newMockDB(t, MySQL)
	myMock.ExpectExec(`INSERT INTO events`).WillReturnResult(sqlmock.NewResult(12, 1))
	id, err := my.InsertID(context.Background(), `INSERT INTO events (name) VALUES (?)`, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	pg, pgMock := newMockDB(t, Postgres)
	pgMock.ExpectQuery(`INSERT INTO events \(name\) VALUES \(\$1\) RETURNING id`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(13)))
	id, err = pg.InsertID(context.Background(), `INSERT INTO events (name) VALUES (?)`, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(13), id)
}
