// Package memory provides map-backed repositories with the same
// contracts as the Postgres implementations. They back tests and the
// standalone dev server, and clone records on the way in and out so
// callers never share state with the store.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/diagnosis/libris/internal/domain"
	"github.com/diagnosis/libris/internal/repo"
)

type UserRepo struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

func NewUserRepo() *UserRepo {
	return &UserRepo{users: make(map[string]*domain.User)}
}

var _ repo.UserRepo = (*UserRepo)(nil)

func (r *UserRepo) Save(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = cloneUser(u)
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return cloneUser(u), nil
}

func (r *UserRepo) GetAll(ctx context.Context) ([]*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *UserRepo) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return false, nil
	}
	delete(r.users, id)
	return true, nil
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	c.BorrowedItems = append([]string(nil), u.BorrowedItems...)
	c.LoanHistory = append([]string(nil), u.LoanHistory...)
	return &c
}
