package draft

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// SQLBackend stores drafts in the drafts table (see internal/db).
type SQLBackend struct {
	db *sql.DB
}

func NewSQLBackend(db *sql.DB) *SQLBackend { return &SQLBackend{db: db} }

func (s *SQLBackend) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM drafts WHERE draft_key=$1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (s *SQLBackend) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drafts (draft_key, value, updated_at) VALUES ($1,$2,$3)
		ON CONFLICT (draft_key) DO UPDATE SET value=EXCLUDED.value, updated_at=EXCLUDED.updated_at`,
		key, value, time.Now().UnixMilli())
	return err
}

func (s *SQLBackend) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE draft_key=$1`, key)
	return err
}

func (s *SQLBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT draft_key FROM drafts WHERE draft_key LIKE $1 ESCAPE '\' ORDER BY draft_key`,
		escapeLike(prefix)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *SQLBackend) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
