package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/libris/internal/repo"
)

type SettingsRepoImpl struct{ pool *pgxpool.Pool }

func NewSettingsRepo(pool *pgxpool.Pool) *SettingsRepoImpl { return &SettingsRepoImpl{pool: pool} }

func (r *SettingsRepoImpl) Get(ctx context.Context, key string) (string, error) {
	const q = `SELECT value FROM settings WHERE key=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var value string
	err := r.pool.QueryRow(ctx, q, key).Scan(&value)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SettingsRepoImpl) Set(ctx context.Context, key, value string) error {
	const q = `INSERT INTO settings (key, value) VALUES ($1,$2)
ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=now()`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, key, value)
	return err
}

var _ repo.SettingsRepo = (*SettingsRepoImpl)(nil)
