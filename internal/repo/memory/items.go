package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/diagnosis/libris/internal/domain"
	"github.com/diagnosis/libris/internal/repo"
)

type ItemRepo struct {
	mu    sync.RWMutex
	items map[string]*domain.Item
}

func NewItemRepo() *ItemRepo {
	return &ItemRepo{items: make(map[string]*domain.Item)}
}

var _ repo.ItemRepo = (*ItemRepo)(nil)

func (r *ItemRepo) Save(ctx context.Context, it *domain.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[it.ID] = cloneItem(it)
	return nil
}

func (r *ItemRepo) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	it, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	return cloneItem(it), nil
}

func (r *ItemRepo) GetAll(ctx context.Context) ([]*domain.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Item, 0, len(r.items))
	for _, it := range r.items {
		out = append(out, cloneItem(it))
	}
	sortItems(out)
	return out, nil
}

func (r *ItemRepo) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return false, nil
	}
	delete(r.items, id)
	return true, nil
}

func (r *ItemRepo) Search(ctx context.Context, titleSubstring string) ([]*domain.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	needle := strings.ToLower(titleSubstring)
	var out []*domain.Item
	for _, it := range r.items {
		if strings.Contains(strings.ToLower(it.Title), needle) {
			out = append(out, cloneItem(it))
		}
	}
	sortItems(out)
	return out, nil
}

func sortItems(items []*domain.Item) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Title != items[j].Title {
			return items[i].Title < items[j].Title
		}
		return items[i].ID < items[j].ID
	})
}

func cloneItem(it *domain.Item) *domain.Item {
	c := *it
	if it.PublishedAt != nil {
		p := *it.PublishedAt
		c.PublishedAt = &p
	}
	return &c
}
