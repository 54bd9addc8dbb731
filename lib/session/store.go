package session

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"go.opentelemetry.io/otel"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

var tracer = otel.Tracer("lib/session")

const keyPrefix = "s:"

// DbError wraps any failure coming out of the sqlite layer so callers
// can tell storage trouble apart from scraping trouble.
type DbError struct {
	Err error
}

func (e *DbError) Error() string {
	return fmt.Sprintf("session store: %v", e.Err)
}

func (e *DbError) Unwrap() error {
	return e.Err
}

func dbErr(err error) error {
	if err == nil {
		return nil
	}
	return &DbError{Err: err}
}

var encMode, _ = cbor.EncOptions{Time: cbor.TimeUnix}.EncMode()

// Store persists sessions keyed by account. All methods are safe for
// concurrent use; writes are serialized on a single connection so the
// exclusive file lock taken at Open stays meaningful.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	rng *rand.Rand
}

// Open opens (or creates) the session database at path. The file is
// locked exclusively and a probe write is issued immediately, so a
// database already held by another process fails here instead of on
// the first Insert.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, dbErr(err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA locking_mode = EXCLUSIVE"); err != nil {
		db.Close()
		return nil, dbErr(err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, dbErr(err)
	}
	// forces lock acquisition now rather than on first use
	if _, err := db.Exec("DELETE FROM sessions WHERE key = ''"); err != nil {
		db.Close()
		return nil, dbErr(err)
	}

	return NewStore(db), nil
}

// NewStore wraps an already opened database, the schema must have been
// applied by the caller. Used by tests and by callers that manage the
// connection themselves.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:  db,
		rng: rand.New(rand.NewSource(rand.Int63())),
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func decode(data []byte) (*Session, error) {
	var session Session
	if err := cbor.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Query returns the session for the given account, or nil when no
// session is stored.
func (s *Store) Query(ctx context.Context, account string) (*Session, error) {
	ctx, span := tracer.Start(ctx, "Store.Query")
	defer span.End()

	row := s.db.QueryRowContext(ctx,
		"SELECT data FROM sessions WHERE key = ?", keyPrefix+account)

	var data []byte
	err := row.Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr(err)
	}
	return decode(data)
}

// QueryOr returns the stored session for account, or a fresh session
// built from the given credentials when nothing is stored yet. The
// fresh session is not persisted until Insert is called.
func (s *Store) QueryOr(ctx context.Context, account, password string) (*Session, error) {
	existing, err := s.Query(ctx, account)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return New(account, password), nil
}

// Insert writes the session, replacing any previous row for the same
// account.
func (s *Store) Insert(ctx context.Context, session *Session) error {
	ctx, span := tracer.Start(ctx, "Store.Insert")
	defer span.End()

	data, err := encMode.Marshal(session)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (key, account, data, last_update)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			data = excluded.data,
			last_update = excluded.last_update`,
		keyPrefix+session.Account, session.Account, data,
		session.LastUpdate.Unix())
	return dbErr(err)
}

// Delete removes the session for the given account, a no-op when none
// is stored.
func (s *Store) Delete(ctx context.Context, account string) error {
	ctx, span := tracer.Start(ctx, "Store.Delete")
	defer span.End()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE key = ?", keyPrefix+account)
	return dbErr(err)
}

// List returns page `index` (zero based) of at most `size` sessions,
// ordered by account. Rows that no longer decode are skipped rather
// than failing the whole page.
func (s *Store) List(ctx context.Context, index, size int) ([]*Session, error) {
	ctx, span := tracer.Start(ctx, "Store.List")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM sessions
		ORDER BY key LIMIT ? OFFSET ?`,
		size, index*size)
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, dbErr(err)
		}
		session, err := decode(data)
		if err != nil {
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions, dbErr(rows.Err())
}

// ChooseRandomly picks one stored session uniformly at random, or
// returns nil when the store is empty.
func (s *Store) ChooseRandomly(ctx context.Context) (*Session, error) {
	ctx, span := tracer.Start(ctx, "Store.ChooseRandomly")
	defer span.End()

	count, err := s.Len(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	s.mu.Lock()
	offset := s.rng.Intn(count)
	s.mu.Unlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT data FROM sessions LIMIT 1 OFFSET ?", offset)
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// raced with a concurrent Clear
			return nil, nil
		}
		return nil, dbErr(err)
	}
	return decode(data)
}

// Len reports how many sessions are stored.
func (s *Store) Len(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sessions").Scan(&count)
	return count, dbErr(err)
}

// Clear drops every stored session.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions")
	return dbErr(err)
}
