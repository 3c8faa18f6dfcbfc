package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/marginkit/challenge-go/internal/cache"
)

const (
	metaCurrent = "current"
	metaPending = "pending"
)

// CacheStorage implements cache.Storage on the local database.
type CacheStorage struct {
	db *sql.DB
}

var _ cache.Storage = (*CacheStorage)(nil)

func (c *CacheStorage) Match(ctx context.Context, version, key string) (*cache.Entry, error) {
	var (
		header   string
		storedAt int64
		e        cache.Entry
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT status, header, body, stored_at FROM cache_entries WHERE version = ? AND key = ?`,
		version, key,
	).Scan(&e.Status, &header, &e.Body, &storedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cache.ErrMiss
		}
		return nil, fmt.Errorf("matching %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(header), &e.Header); err != nil {
		return nil, fmt.Errorf("decoding cached headers for %s: %w", key, err)
	}
	if e.Header == nil {
		e.Header = make(http.Header)
	}
	e.StoredAt = time.UnixMilli(storedAt)
	return &e, nil
}

func (c *CacheStorage) Put(ctx context.Context, version, key string, e cache.Entry) error {
	header, err := json.Marshal(e.Header)
	if err != nil {
		return fmt.Errorf("encoding headers for %s: %w", key, err)
	}
	body := e.Body
	if body == nil {
		body = []byte{}
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO cache_entries (version, key, status, header, body, stored_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (version, key) DO UPDATE SET
			status = excluded.status,
			header = excluded.header,
			body = excluded.body,
			stored_at = excluded.stored_at`,
		version, key, e.Status, string(header), body, e.StoredAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("storing %s: %w", key, err)
	}
	return nil
}

func (c *CacheStorage) Versions(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT DISTINCT version FROM cache_entries ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("listing cache versions: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (c *CacheStorage) DeleteVersion(ctx context.Context, version string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE version = ?`, version); err != nil {
		return fmt.Errorf("deleting cache version %s: %w", version, err)
	}
	return nil
}

func (c *CacheStorage) Pointers(ctx context.Context) (string, string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT name, value FROM cache_meta WHERE name IN (?, ?)`, metaCurrent, metaPending)
	if err != nil {
		return "", "", fmt.Errorf("reading cache pointers: %w", err)
	}
	defer rows.Close()

	var current, pending string
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return "", "", err
		}
		if name == metaCurrent {
			current = value
		} else {
			pending = value
		}
	}
	return current, pending, rows.Err()
}

func (c *CacheStorage) SetPointers(ctx context.Context, current, pending string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const upsert = `INSERT INTO cache_meta (name, value) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value`
	if _, err := tx.ExecContext(ctx, upsert, metaCurrent, current); err != nil {
		return fmt.Errorf("writing current cache pointer: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsert, metaPending, pending); err != nil {
		return fmt.Errorf("writing pending cache pointer: %w", err)
	}
	return tx.Commit()
}
