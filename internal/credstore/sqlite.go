package credstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/Diduck/notion-idea-pipeline/migrations"
)

type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (creating if needed) the database at path and applies
// the embedded migrations.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteBackend{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) LoadEntries() (map[string]Entry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	rows, err := b.db.QueryContext(ctx, "SELECT slot, value, expires_at, updated_at FROM credentials")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := map[string]Entry{}
	for rows.Next() {
		var (
			slot, value, updatedAt string
			expiresAt              sql.NullString
		)
		if err := rows.Scan(&slot, &value, &expiresAt, &updatedAt); err != nil {
			return nil, err
		}
		entry := Entry{Value: value}
		if expiresAt.Valid && expiresAt.String != "" {
			if entry.ExpiresAt, err = time.Parse(time.RFC3339Nano, expiresAt.String); err != nil {
				return nil, fmt.Errorf("parse expires_at for %s: %w", slot, err)
			}
		}
		if entry.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
			return nil, fmt.Errorf("parse updated_at for %s: %w", slot, err)
		}
		entries[slot] = entry
	}
	return entries, rows.Err()
}

func (b *SQLiteBackend) SaveEntries(entries map[string]Entry) error {
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for slot, entry := range entries {
		var expiresAt any
		if !entry.ExpiresAt.IsZero() {
			expiresAt = entry.ExpiresAt.UTC().Format(time.RFC3339Nano)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO credentials (slot, value, expires_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (slot)
			DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at, updated_at = excluded.updated_at`,
			slot, entry.Value, expiresAt, entry.UpdatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("upsert %s: %w", slot, err)
		}
	}
	return tx.Commit()
}

func (b *SQLiteBackend) DeleteEntry(slot string) error {
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()
	_, err := b.db.ExecContext(ctx, "DELETE FROM credentials WHERE slot = ?", slot)
	return err
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
