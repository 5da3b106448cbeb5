// Package tokenstore persists small string values (the api credential) across
// runs.
package tokenstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "embed"

	devenv "xsheet-companion/dev/env"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// CredentialKey is the key the api credential is stored under.
const CredentialKey = "xsheet-api-key"

//go:embed schema.sql
var Schema string

// Store is a key/value store. values made only of whitespace are reported
// as absent.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

func normalize(value string) (string, bool) {
	value = strings.TrimSpace(value)
	return value, value != ""
}

type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates the schema if needed.
func NewSQLStore(ctx context.Context, database *sql.DB) (SQLStore, error) {
	_, err := database.ExecContext(ctx, Schema)
	if err != nil {
		return SQLStore{}, fmt.Errorf("create schema: %w", err)
	}
	return SQLStore{db: database}, nil
}

func (s SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "select value from kv where key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	value, ok := normalize(value)
	return value, ok, nil
}

func (s SQLStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(
		ctx,
		`insert into kv (key, value, updated_at) values (?, ?, ?)
		on conflict (key) do update set value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli(),
	)
	return err
}

func (s SQLStore) Close() error {
	return s.db.Close()
}

// Memory is a Store kept in process memory.
type Memory struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := normalize(m.values[key])
	return value, ok, nil
}

func (m *Memory) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Config selects the database backing an SQLStore: a local sqlite file, or a
// remote libsql database when Url is set.
type Config struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func (config Config) OpenDB() (*sql.DB, error) {
	if config.Url == "" {
		if config.File == "" || config.File == ":memory:" {
			database, err := sql.Open("sqlite", ":memory:")
			if err != nil {
				return nil, err
			}
			database.SetMaxOpenConns(1)
			return database, nil
		}
		dbpath, err := devenv.ResolvePath(config.File)
		if err != nil {
			return nil, err
		}
		return sql.Open("sqlite", dbpath)
	}

	dsn := config.Url
	if config.AuthToken != "" {
		separator := "?"
		if strings.Contains(dsn, "?") {
			separator = "&"
		}
		dsn += separator + "authToken=" + config.AuthToken
	}
	return sql.Open("libsql", dsn)
}

// Open opens the configured database and wraps it in an SQLStore.
func (config Config) Open(ctx context.Context) (SQLStore, error) {
	database, err := config.OpenDB()
	if err != nil {
		return SQLStore{}, err
	}
	store, err := NewSQLStore(ctx, database)
	if err != nil {
		database.Close()
		return SQLStore{}, err
	}
	return store, nil
}
