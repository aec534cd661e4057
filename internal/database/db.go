package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// Options describes how to reach the primary store.
type Options struct {
	Driver string // "mysql" or "postgres"
	User   string
	Pass   string
	Host   string
	Port   string
	Name   string
}

// DB wraps the connection pool together with the SQL dialect it speaks.
// Repositories obtain a Querier through Conn so that the same code runs
// inside or outside a transaction.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// New wraps an existing pool.  Tests use it with sqlmock.
func New(db *sql.DB, d Dialect) *DB { return &DB{DB: db, Dialect: d} }

// Open connects to the configured database and verifies the connection.
func Open(opts Options) (*DB, error) {
	dialect, err := ParseDialect(opts.Driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(dialect.driverName(), dsn(dialect, opts))
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	return &DB{DB: db, Dialect: dialect}, nil
}

func dsn(d Dialect, o Options) string {
	if d == Postgres {
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(o.User, o.Pass),
			Host:     o.Host + ":" + o.Port,
			Path:     "/" + o.Name,
			RawQuery: "sslmode=disable&timezone=UTC",
		}
		if o.Pass == "" {
			u.User = url.User(o.User)
		}
		return u.String()
	}
	auth := o.User
	if o.Pass != "" {
		auth = fmt.Sprintf("%s:%s", o.User, o.Pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, o.Host, o.Port, o.Name)
}
