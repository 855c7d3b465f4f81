// Package repo defines the persistence contracts for catalog entities.
// Implementations are keyed by entity identifier with upsert semantics;
// lookups for missing records return (nil, nil) rather than an error.
package repo

import (
	"context"

	"github.com/diagnosis/libris/internal/domain"
)

type UserRepo interface {
	Save(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetAll returns users ordered by name.
	GetAll(ctx context.Context) ([]*domain.User, error)
	// Delete reports whether a record existed and was removed.
	Delete(ctx context.Context, id string) (bool, error)
}

type ItemRepo interface {
	Save(ctx context.Context, it *domain.Item) error
	GetByID(ctx context.Context, id string) (*domain.Item, error)
	// GetAll returns items ordered by title.
	GetAll(ctx context.Context) ([]*domain.Item, error)
	Delete(ctx context.Context, id string) (bool, error)
	// Search matches a case-insensitive title substring, ordered by title.
	Search(ctx context.Context, titleSubstring string) ([]*domain.Item, error)
}

type LoanRepo interface {
	Save(ctx context.Context, l *domain.Loan) error
	GetByID(ctx context.Context, id string) (*domain.Loan, error)
	// GetAll returns loans in borrow order, oldest first.
	GetAll(ctx context.Context) ([]*domain.Loan, error)
	// GetByUser returns a user's loans, newest first.
	GetByUser(ctx context.Context, userID string) ([]*domain.Loan, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// SettingsRepo is a small key/value store for directory-wide settings
// such as the daily fine rate. Get returns "" for absent keys.
type SettingsRepo interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Setting keys.
const (
	SettingDailyFineRate = "daily_fine_rate"
	SettingSchemaVersion = "schema_version"
)
