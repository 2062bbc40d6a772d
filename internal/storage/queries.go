package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const getCollection = `-- name: GetCollection :one
SELECT payload FROM collections WHERE key = ?
`

func (q *Queries) GetCollection(ctx context.Context, key string) (string, error) {
	row := q.db.QueryRowContext(ctx, getCollection, key)
	var payload string
	err := row.Scan(&payload)
	return payload, err
}

const upsertCollection = `-- name: UpsertCollection :exec
INSERT INTO collections (key, payload, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
`

type UpsertCollectionParams struct {
	Key       string
	Payload   string
	UpdatedAt string
}

func (q *Queries) UpsertCollection(ctx context.Context, arg UpsertCollectionParams) error {
	_, err := q.db.ExecContext(ctx, upsertCollection, arg.Key, arg.Payload, arg.UpdatedAt)
	return err
}

const deleteCollection = `-- name: DeleteCollection :exec
DELETE FROM collections WHERE key = ?
`

func (q *Queries) DeleteCollection(ctx context.Context, key string) error {
	_, err := q.db.ExecContext(ctx, deleteCollection, key)
	return err
}

const listCollectionKeys = `-- name: ListCollectionKeys :many
SELECT key FROM collections ORDER BY key
`

func (q *Queries) ListCollectionKeys(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listCollectionKeys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		items = append(items, key)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
