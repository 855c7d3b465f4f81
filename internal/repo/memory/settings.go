package memory

import (
	"context"
	"sync"

	"github.com/diagnosis/libris/internal/repo"
)

type SettingsRepo struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewSettingsRepo() *SettingsRepo {
	return &SettingsRepo{values: make(map[string]string)}
}

var _ repo.SettingsRepo = (*SettingsRepo)(nil)

func (r *SettingsRepo) Get(ctx context.Context, key string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.values[key], nil
}

func (r *SettingsRepo) Set(ctx context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = value
	return nil
}
