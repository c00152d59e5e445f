package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"wellnest/internal/domain"
)

// SQLiteStore is a DocumentStore backed by a single SQLite file. Change
// notifications reach subscribers in the same process only.
type SQLiteStore struct {
	db    *sql.DB
	clock clock.Clock
	hub   *hub

	writeMu sync.Mutex // serialises read-modify-write cycles to avoid SQLITE_BUSY
	lastTS  int64
}

var _ domain.DocumentStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string, clk clock.Clock, log zerolog.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if clk == nil {
		clk = clock.New()
	}
	s := &SQLiteStore{db: db, clock: clk}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	s.hub = newHub(s.snapshot, log.With().Str("store", "sqlite").Logger())
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS documents (
		path TEXT PRIMARY KEY,
		collection TEXT NOT NULL,
		data TEXT NOT NULL,
		update_time INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Get implements domain.DocumentStore.
func (s *SQLiteStore) Get(ctx context.Context, path string) (domain.Document, error) {
	if err := validPath("get", path); err != nil {
		return domain.Document{}, err
	}
	doc, found, err := getRow(ctx, s.db, path)
	if err != nil {
		return domain.Document{}, mapSQLiteError("get", err)
	}
	if !found {
		return domain.Document{}, domain.Errorf(domain.KindNotFound, "get", "%s", path)
	}
	return doc, nil
}

// Set implements domain.DocumentStore.
func (s *SQLiteStore) Set(ctx context.Context, path string, data domain.Data, opts domain.SetOptions) error {
	if err := validPath("set", path); err != nil {
		return err
	}
	err := s.writeTx(ctx, func(tx *sql.Tx, now int64) error {
		var existing domain.Data
		if opts.Merge {
			cur, found, err := getRow(ctx, tx, path)
			if err != nil {
				return err
			}
			if found {
				existing = cur.Data
			}
		}
		body, err := resolveWrite(existing, data, opts.Merge, now)
		if err != nil {
			return err
		}
		raw, err := encodeBody(body)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents (path, collection, data, update_time)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET
				data = excluded.data,
				update_time = excluded.update_time`,
			path, domain.ParentPath(path), string(raw), now,
		)
		return err
	})
	if err != nil {
		return mapSQLiteError("set", err)
	}
	s.hub.notify(path)
	return nil
}

// Create implements domain.DocumentStore.
func (s *SQLiteStore) Create(ctx context.Context, path string, data domain.Data) error {
	if err := validPath("create", path); err != nil {
		return err
	}
	err := s.writeTx(ctx, func(tx *sql.Tx, now int64) error {
		body, err := resolveWrite(nil, data, false, now)
		if err != nil {
			return err
		}
		raw, err := encodeBody(body)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO documents (path, collection, data, update_time)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(path) DO NOTHING`,
			path, domain.ParentPath(path), string(raw), now,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.Errorf(domain.KindAlreadyExists, "create", "%s", path)
		}
		return nil
	})
	if err != nil {
		return mapSQLiteError("create", err)
	}
	s.hub.notify(path)
	return nil
}

// Query implements domain.DocumentStore.
func (s *SQLiteStore) Query(ctx context.Context, q domain.Query) ([]domain.Document, error) {
	if err := validPath("query", q.Collection); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, data, update_time FROM documents WHERE collection = ?`,
		strings.TrimSuffix(q.Collection, "/"),
	)
	if err != nil {
		return nil, mapSQLiteError("query", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var (
			path string
			raw  string
			ut   int64
		)
		if err := rows.Scan(&path, &raw, &ut); err != nil {
			return nil, mapSQLiteError("query", err)
		}
		body, err := decodeBody([]byte(raw))
		if err != nil {
			return nil, err
		}
		docs = append(docs, domain.Document{Path: path, Data: body, UpdateTime: ut})
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLiteError("query", err)
	}
	return applyQuery(docs, q), nil
}

// Subscribe implements domain.DocumentStore.
func (s *SQLiteStore) Subscribe(
	target domain.WatchTarget,
	onSnapshot func(domain.Snapshot),
	onError func(error),
) (func(), error) {
	return s.hub.subscribe(target, onSnapshot, onError)
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return mapSQLiteError("ping", err)
	}
	return nil
}

// Close stops subscriptions and closes the database.
func (s *SQLiteStore) Close() error {
	s.hub.close()
	return s.db.Close()
}

func (s *SQLiteStore) snapshot(ctx context.Context, target domain.WatchTarget) (domain.Snapshot, error) {
	return readSnapshot(ctx, target, s.Get, s.Query)
}

func (s *SQLiteStore) writeTx(ctx context.Context, fn func(tx *sql.Tx, now int64) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	ms := s.clock.Now().UnixMilli()
	if ms <= s.lastTS {
		ms = s.lastTS + 1
	}
	if err := fn(tx, ms); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.lastTS = ms
	return nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRow(ctx context.Context, q rowQuerier, path string) (domain.Document, bool, error) {
	var (
		raw string
		ut  int64
	)
	err := q.QueryRowContext(ctx,
		`SELECT data, update_time FROM documents WHERE path = ?`, path,
	).Scan(&raw, &ut)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Document{}, false, nil
	}
	if err != nil {
		return domain.Document{}, false, err
	}
	body, err := decodeBody([]byte(raw))
	if err != nil {
		return domain.Document{}, false, err
	}
	return domain.Document{Path: path, Data: body, UpdateTime: ut}, true, nil
}

// mapSQLiteError classifies driver errors. Lock contention and a closed
// database are connection problems worth retrying.
func mapSQLiteError(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewError(domain.KindTimeout, op, err)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "SQLITE_BUSY"),
		strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "database is closed"),
		errors.Is(err, sql.ErrConnDone):
		return domain.NewError(domain.KindConnection, op, err)
	case strings.Contains(msg, "readonly database"),
		strings.Contains(msg, "SQLITE_PERM"):
		return domain.NewError(domain.KindPermission, op, err)
	}
	return domain.NewError(domain.KindUnknown, op, err)
}
