package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/trezcool/warsha/core"
	"github.com/trezcool/warsha/fs"
)

const migrationsDir = "migrations"

func dsn(dbc core.DatabaseConfig, dbName string, admin bool, params url.Values) string {
	user := url.UserPassword(dbc.User, dbc.Password)
	if admin && dbc.AdminUser != "" {
		user = url.UserPassword(dbc.AdminUser, dbc.AdminPassword)
	}

	sslMode := "require"
	if dbc.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")
	for k, v := range params {
		q[k] = v
	}

	u := url.URL{
		Scheme:   dbc.Engine,
		User:     user,
		Host:     dbc.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func open(dbc core.DatabaseConfig, dbName string, admin bool, params url.Values) (*sql.DB, error) {
	return sql.Open(dbc.Engine, dsn(dbc, dbName, admin, params))
}

// Open connects to the current database.
func Open(conf *core.Config) (*sqlx.DB, error) {
	db, err := open(conf.Database, conf.Database.Name, false, nil)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	return sqlx.NewDb(db, conf.Database.Engine), nil
}

// OpenLegacy connects to the legacy database.
// Every transaction of the connection is read-only so the legacy data can never be modified.
func OpenLegacy(conf *core.Config) (*sqlx.DB, error) {
	params := url.Values{"default_transaction_read_only": {"on"}}
	db, err := open(conf.LegacyDatabase, conf.LegacyDatabase.Name, false, params)
	if err != nil {
		return nil, errors.Wrap(err, "opening legacy database")
	}
	return sqlx.NewDb(db, conf.LegacyDatabase.Engine), nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sql.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

// Ping waits for db to accept connections.
func Ping(db *sqlx.DB) error {
	return ping(db.DB)
}

func exists(db *sql.DB, query string, args ...interface{}) (bool, error) {
	var found bool
	rows, err := db.Query(query, args...)
	if err != nil {
		return false, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		if err = rows.Scan(&found); err != nil {
			return false, err
		}
	}
	return found, rows.Err()
}

func createAppUser(db *sql.DB, dbc core.DatabaseConfig) error {
	if dbc.User == "" {
		return nil
	}

	found, err := exists(db, "SELECT true FROM pg_roles WHERE rolname = $1", dbc.User)
	if err != nil {
		return errors.Wrap(err, "checking app user")
	}
	if !found {
		q := fmt.Sprintf("CREATE USER %s CREATEDB ENCRYPTED PASSWORD %s", pq.QuoteIdentifier(dbc.User), pq.QuoteLiteral(dbc.Password))
		if _, err = db.Exec(q); err != nil {
			return errors.Wrap(err, "creating app user")
		}
	}
	return nil
}

func createDB(db *sql.DB, dbc core.DatabaseConfig) error {
	found, err := exists(db, "SELECT true FROM pg_database WHERE datname = $1", dbc.Name)
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if !found {
		if _, err = db.Exec("CREATE DATABASE " + pq.QuoteIdentifier(dbc.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// CreateIfNotExist creates the app user (as admin) then the current database (as the app user).
func CreateIfNotExist(conf *core.Config) error {
	dbc := conf.Database

	// connect as admin
	db, err := open(dbc, "postgres", true, nil)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()

	if err = ping(db); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if err = createAppUser(db, dbc); err != nil {
		return errors.Wrap(err, "creating app user")
	}

	// create DB as app user
	appDB, err := open(dbc, "postgres", false, nil)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = appDB.Close() }()
	if err = createDB(appDB, dbc); err != nil {
		return errors.Wrap(err, "creating database")
	}
	return nil
}

// gooseLogger routes goose output to a core.Logger.
type gooseLogger struct {
	log core.Logger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.log.Info(fmt.Sprintf(format, v...))
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.log.Fatal(fmt.Sprintf(format, v...))
}

// Migrate runs the goose command (up, down, status, version, redo, reset...) on the embedded migrations.
func Migrate(ctx context.Context, db *sqlx.DB, logger core.Logger, command string, args ...string) error {
	goose.SetBaseFS(appfs.FS)
	if logger != nil {
		goose.SetLogger(gooseLogger{log: logger})
	}
	if err := goose.SetDialect(db.DriverName()); err != nil {
		return errors.Wrap(err, "setting migration dialect")
	}
	if err := goose.RunContext(ctx, command, db.DB, migrationsDir, args...); err != nil {
		return errors.Wrapf(err, "running migration command %q", command)
	}
	return nil
}
