package sqlite

import (
	"context"
	"database/sql"
	"strings"
)

// DBTX is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db DBTX
}

func newQueries(db DBTX) *queries {
	return &queries{db: db}
}

const upsertCredential = `
INSERT INTO credentials (key, value, updated_at)
VALUES (?, ?, ?)
ON CONFLICT (key) DO UPDATE SET
    value      = excluded.value,
    updated_at = excluded.updated_at
`

func (q *queries) UpsertCredential(ctx context.Context, key, value string, updatedAt int64) error {
	_, err := q.db.ExecContext(ctx, upsertCredential, key, value, updatedAt)
	return err
}

const deleteCredential = `DELETE FROM credentials WHERE key = ?`

func (q *queries) DeleteCredential(ctx context.Context, key string) error {
	_, err := q.db.ExecContext(ctx, deleteCredential, key)
	return err
}

// GetCredentials returns the stored values for keys. Keys with no row are
// absent from the result.
func (q *queries) GetCredentials(ctx context.Context, keys []string) (map[string]string, error) {
	if len(keys) == 0 {
		return map[string]string{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT key, value FROM credentials WHERE key IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	return scanCredentials(rows)
}

const listCredentials = `SELECT key, value FROM credentials`

func (q *queries) ListCredentials(ctx context.Context) (map[string]string, error) {
	rows, err := q.db.QueryContext(ctx, listCredentials)
	if err != nil {
		return nil, err
	}
	return scanCredentials(rows)
}

// DataVersion changes whenever another connection commits to the database.
func (q *queries) DataVersion(ctx context.Context) (int64, error) {
	var v int64
	err := q.db.QueryRowContext(ctx, `PRAGMA data_version`).Scan(&v)
	return v, err
}

func scanCredentials(rows *sql.Rows) (map[string]string, error) {
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
