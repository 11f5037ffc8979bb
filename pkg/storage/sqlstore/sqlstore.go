// Package sqlstore persists model values in a single key/value table on
// PostgreSQL or SQLite. Values are stored as storage.Encode bytes.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	apperrors "github.com/Adithya-Monish-Kumar-K/finisher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/storage"
)

// Dialect selects placeholder syntax and column types.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite"
	}
	return "postgres"
}

// placeholder returns the bind marker for the n-th (1-based) argument.
func (d Dialect) placeholder(n int) string {
	if d == SQLite {
		return "?"
	}
	return "$" + strconv.Itoa(n)
}

// keyColumn orders keys bytewise on both engines, which the prefix scan
// relies on.
func (d Dialect) keyColumn() string {
	if d == SQLite {
		return "TEXT NOT NULL PRIMARY KEY"
	}
	return `TEXT COLLATE "C" NOT NULL PRIMARY KEY`
}

func (d Dialect) blobColumn() string {
	if d == SQLite {
		return "BLOB NOT NULL"
	}
	return "BYTEA NOT NULL"
}

const maxBatchKeys = 500

var tablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store is a storage.Store over database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
	table   string
	upsert  string
}

// New wraps db and creates the table if it does not exist. The Store takes
// ownership of db.
func New(ctx context.Context, db *sql.DB, dialect Dialect, table string) (*Store, error) {
	if !tablePattern.MatchString(table) {
		return nil, fmt.Errorf("%w: table name %q", apperrors.ErrInvalidInput, table)
	}
	s := &Store{db: db, dialect: dialect, table: table}
	s.upsert = fmt.Sprintf(
		"INSERT INTO %s (k, v) VALUES (%s, %s) ON CONFLICT (k) DO UPDATE SET v = excluded.v",
		table, dialect.placeholder(1), dialect.placeholder(2),
	)
	schema := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (k %s, v %s)",
		table, dialect.keyColumn(), dialect.blobColumn())
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, apperrors.Unavailable("create table", table, err)
	}
	return s, nil
}

// OpenSQLite opens or creates a SQLite database at path, creating parent
// directories as needed, and returns a Store over it.
func OpenSQLite(ctx context.Context, path, table string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}
	s, err := New(ctx, db, SQLite, table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Get(ctx context.Context, key string) (storage.Value, bool, error) {
	query := fmt.Sprintf("SELECT v FROM %s WHERE k = %s", s.table, s.dialect.placeholder(1))
	var data []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.Unavailable("select", key, err)
	}
	v, err := storage.Decode(data)
	if err != nil {
		return nil, false, apperrors.Malformed(key, err)
	}
	return v, true, nil
}

// GetMany fetches keys with IN queries of at most maxBatchKeys each.
func (s *Store) GetMany(ctx context.Context, keys []string) ([]storage.Value, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	pos := make(map[string][]int, len(keys))
	for i, k := range keys {
		pos[k] = append(pos[k], i)
	}
	out := make([]storage.Value, len(keys))
	for start := 0; start < len(keys); start += maxBatchKeys {
		end := min(start+maxBatchKeys, len(keys))
		if err := s.fetchInto(ctx, keys[start:end], pos, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) fetchInto(ctx context.Context, chunk []string, pos map[string][]int, out []storage.Value) error {
	marks := make([]string, len(chunk))
	args := make([]any, len(chunk))
	for i, k := range chunk {
		marks[i] = s.dialect.placeholder(i + 1)
		args[i] = k
	}
	query := fmt.Sprintf("SELECT k, v FROM %s WHERE k IN (%s)", s.table, strings.Join(marks, ", "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return apperrors.Unavailable("select batch", chunk[0], err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key  string
			data []byte
		)
		if err := rows.Scan(&key, &data); err != nil {
			return apperrors.Unavailable("scan row", chunk[0], err)
		}
		v, err := storage.Decode(data)
		if err != nil {
			return apperrors.Malformed(key, err)
		}
		for _, i := range pos[key] {
			out[i] = storage.Clone(v)
		}
	}
	if err := rows.Err(); err != nil {
		return apperrors.Unavailable("select batch", chunk[0], err)
	}
	return nil
}

func (s *Store) Set(ctx context.Context, key string, value storage.Value) error {
	data, err := storage.Encode(value)
	if err != nil {
		return apperrors.Malformed(key, err)
	}
	if _, err := s.db.ExecContext(ctx, s.upsert, key, data); err != nil {
		return apperrors.Unavailable("upsert", key, err)
	}
	return nil
}

// SetMany writes every entry in one transaction.
func (s *Store) SetMany(ctx context.Context, entries map[string]storage.Value) error {
	if len(entries) == 0 {
		return nil
	}
	keys := make([]string, 0, len(entries))
	encoded := make(map[string][]byte, len(entries))
	for k, v := range entries {
		data, err := storage.Encode(v)
		if err != nil {
			return apperrors.Malformed(k, err)
		}
		keys = append(keys, k)
		encoded[k] = data
	}
	sort.Strings(keys)

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.upsert)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, k := range keys {
			if _, err := stmt.ExecContext(ctx, k, encoded[k]); err != nil {
				return fmt.Errorf("upserting %s: %w", k, err)
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.Unavailable("upsert batch", keys[0], err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	for start := 0; start < len(keys); start += maxBatchKeys {
		chunk := keys[start:min(start+maxBatchKeys, len(keys))]
		marks := make([]string, len(chunk))
		args := make([]any, len(chunk))
		for i, k := range chunk {
			marks[i] = s.dialect.placeholder(i + 1)
			args[i] = k
		}
		query := fmt.Sprintf("DELETE FROM %s WHERE k IN (%s)", s.table, strings.Join(marks, ", "))
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return apperrors.Unavailable("delete", chunk[0], err)
		}
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE k = %s", s.table, s.dialect.placeholder(1))
	var one int
	err := s.db.QueryRowContext(ctx, query, key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Unavailable("exists", key, err)
	}
	return true, nil
}

// Keys walks the primary key index from prefix upward and stops at the first
// key that no longer carries it.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	query := fmt.Sprintf("SELECT k FROM %s WHERE k >= %s ORDER BY k", s.table, s.dialect.placeholder(1))
	rows, err := s.db.QueryContext(ctx, query, prefix)
	if err != nil {
		return nil, apperrors.Unavailable("scan", prefix, err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, apperrors.Unavailable("scan", prefix, err)
		}
		if !strings.HasPrefix(k, prefix) {
			break
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Unavailable("scan", prefix, err)
	}
	return keys, nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return apperrors.Unavailable("ping", s.table, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
