package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaVersion = 1

// Migrate creates the catalog tables and indexes if missing. The
// settings table doubles as the migration bookkeeping store, so it is
// created outside the versioned block.
//
// Loans keep no foreign keys on purpose: removing a user with only
// returned loans is legal and leaves historical loan rows behind;
// dangling references are the integrity scan's job to report, not the
// database's job to prevent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	const settingsTable = `CREATE TABLE IF NOT EXISTS settings (
  key text PRIMARY KEY,
  value text NOT NULL,
  updated_at timestamptz NOT NULL DEFAULT now()
)`
	if _, err := pool.Exec(ctx, settingsTable); err != nil {
		return fmt.Errorf("create settings table: %w", err)
	}

	var current int
	if v, err := (&SettingsRepoImpl{pool: pool}).Get(ctx, "schema_version"); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	} else if v != "" {
		current, _ = strconv.Atoi(v)
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback(ctx)

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
  user_id text PRIMARY KEY,
  kind text NOT NULL CHECK (kind IN ('member','staff')),
  name text NOT NULL,
  email text NOT NULL,
  phone text NOT NULL DEFAULT '',
  registered_at timestamptz NOT NULL,
  borrowed_items text[] NOT NULL DEFAULT '{}',
  loan_history text[] NOT NULL DEFAULT '{}',
  fines_owed numeric(10,2) NOT NULL DEFAULT 0,
  membership_expiry timestamptz,
  staff_role text NOT NULL DEFAULT '',
  hire_date timestamptz,
  created_at timestamptz NOT NULL DEFAULT now(),
  updated_at timestamptz NOT NULL DEFAULT now()
)`,
		`CREATE TABLE IF NOT EXISTS items (
  item_id text PRIMARY KEY,
  kind text NOT NULL CHECK (kind IN ('book','magazine','dvd')),
  title text NOT NULL,
  available boolean NOT NULL DEFAULT true,
  date_added timestamptz NOT NULL,
  author text NOT NULL DEFAULT '',
  isbn text NOT NULL DEFAULT '',
  pages integer NOT NULL DEFAULT 0,
  issue_number text NOT NULL DEFAULT '',
  publisher text NOT NULL DEFAULT '',
  published_at timestamptz,
  duration_minutes integer NOT NULL DEFAULT 0,
  genre text NOT NULL DEFAULT '',
  director text NOT NULL DEFAULT '',
  rating text NOT NULL DEFAULT '',
  created_at timestamptz NOT NULL DEFAULT now(),
  updated_at timestamptz NOT NULL DEFAULT now()
)`,
		`CREATE TABLE IF NOT EXISTS loans (
  loan_id text PRIMARY KEY,
  user_id text NOT NULL,
  item_id text NOT NULL,
  date_borrowed timestamptz NOT NULL,
  date_due timestamptz NOT NULL,
  date_returned timestamptz,
  is_returned boolean NOT NULL DEFAULT false,
  fine_amount numeric(10,2) NOT NULL DEFAULT 0,
  renewal_count integer NOT NULL DEFAULT 0,
  loan_period_days integer NOT NULL,
  created_at timestamptz NOT NULL DEFAULT now(),
  updated_at timestamptz NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS idx_users_email ON users (email)`,
		`CREATE INDEX IF NOT EXISTS idx_users_kind ON users (kind)`,
		`CREATE INDEX IF NOT EXISTS idx_items_kind ON items (kind)`,
		`CREATE INDEX IF NOT EXISTS idx_items_available ON items (available)`,
		`CREATE INDEX IF NOT EXISTS idx_items_title ON items (title)`,
		`CREATE INDEX IF NOT EXISTS idx_loans_user ON loans (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_loans_item ON loans (item_id)`,
		`CREATE INDEX IF NOT EXISTS idx_loans_returned ON loans (is_returned)`,
		`CREATE INDEX IF NOT EXISTS idx_loans_due ON loans (date_due)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}

	const setVersion = `INSERT INTO settings (key, value) VALUES ('schema_version',$1)
ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=now()`
	if _, err := tx.Exec(ctx, setVersion, strconv.Itoa(schemaVersion)); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	return tx.Commit(ctx)
}
