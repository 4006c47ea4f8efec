// Package dbpool provides a bounded connection pool over a relational
// database, gated by a counting semaphore so that no more than the
// configured number of requests hold a connection concurrently, plus the
// login/register user-verification query the HTTP routes need.
package dbpool

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ehrlich-b/tinywebd/internal/constants"
	"github.com/ehrlich-b/tinywebd/internal/srverr"
)

// Pool bounds concurrent access to a *sql.DB with a counting semaphore,
// mirroring the scoped-lease discipline of a fixed-size connection pool:
// callers Acquire a Lease and defer its Release.
type Pool struct {
	db  *sql.DB
	sem chan struct{}
}

// Open opens a database at dsn using driverName (only "sqlite3" is wired in
// by tinywebd) and sizes the pool at max concurrent leases.
func Open(driverName, dsn string, max int) (*Pool, error) {
	if max <= 0 {
		max = constants.DefaultDBPoolSize
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, srverr.NewError("dbpool.open", srverr.ErrCodeDBError, err.Error())
	}
	db.SetMaxOpenConns(max)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, srverr.WrapError("dbpool.ping", err)
	}

	p := &Pool{db: db, sem: make(chan struct{}, max)}
	if err := p.ensureSchema(); err != nil {
		db.Close()
		return nil, srverr.WrapError("dbpool.ensureSchema", err)
	}
	return p, nil
}

func (p *Pool) ensureSchema() error {
	_, err := p.db.Exec(`CREATE TABLE IF NOT EXISTS user (
		username TEXT PRIMARY KEY,
		password TEXT NOT NULL
	)`)
	return err
}

// Lease represents exclusive ownership of one of the pool's semaphore
// slots. Release must be called exactly once, typically via defer.
type Lease struct {
	pool *Pool
}

// Acquire blocks until a slot is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	select {
	case p.sem <- struct{}{}:
		return &Lease{pool: p}, nil
	case <-ctx.Done():
		return nil, srverr.NewError("dbpool.acquire", srverr.ErrCodeTimeout, "pool exhausted: "+ctx.Err().Error())
	}
}

// Release returns the lease's slot to the pool. Safe to call once only.
func (l *Lease) Release() {
	<-l.pool.sem
}

// Close releases the underlying database handle.
func (p *Pool) Close() error {
	return p.db.Close()
}

var (
	// ErrUserExists is returned by Verify during registration when the
	// username is already taken.
	ErrUserExists = errors.New("dbpool: user already exists")
)

// Verify implements the login/register check: for isLogin, it reports
// whether username/password match an existing row; otherwise it registers
// a new user, failing with ErrUserExists if the username is taken. Every
// query is parameterized; no user input is interpolated into SQL text. An
// empty username or password fails immediately without touching the
// database.
func (p *Pool) Verify(ctx context.Context, username, password string, isLogin bool) (bool, error) {
	if username == "" || password == "" {
		return false, srverr.NewError("dbpool.verify", srverr.ErrCodeBadRequest, "empty username or password")
	}

	lease, err := p.Acquire(ctx)
	if err != nil {
		return false, err
	}
	defer lease.Release()

	var storedPassword string
	err = p.db.QueryRowContext(ctx, `SELECT password FROM user WHERE username = ?`, username).Scan(&storedPassword)

	switch {
	case isLogin:
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		if err != nil {
			return false, srverr.WrapError("dbpool.verify", err)
		}
		return storedPassword == password, nil

	default: // register
		if err == nil {
			return false, ErrUserExists
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return false, srverr.WrapError("dbpool.verify", err)
		}
		_, err = p.db.ExecContext(ctx, `INSERT INTO user (username, password) VALUES (?, ?)`, username, password)
		if err != nil {
			return false, srverr.WrapError("dbpool.register", err)
		}
		return true, nil
	}
}
