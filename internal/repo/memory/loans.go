package memory

import (
	"context"
	"sync"

	"github.com/diagnosis/libris/internal/domain"
	"github.com/diagnosis/libris/internal/repo"
)

// LoanRepo keeps loans in a map plus an insertion-order index so GetAll
// replays borrow order deterministically, which the popularity report
// relies on for tie-breaking.
type LoanRepo struct {
	mu    sync.RWMutex
	loans map[string]*domain.Loan
	order []string
}

func NewLoanRepo() *LoanRepo {
	return &LoanRepo{loans: make(map[string]*domain.Loan)}
}

var _ repo.LoanRepo = (*LoanRepo)(nil)

func (r *LoanRepo) Save(ctx context.Context, l *domain.Loan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.loans[l.ID]; !ok {
		r.order = append(r.order, l.ID)
	}
	r.loans[l.ID] = cloneLoan(l)
	return nil
}

func (r *LoanRepo) GetByID(ctx context.Context, id string) (*domain.Loan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.loans[id]
	if !ok {
		return nil, nil
	}
	return cloneLoan(l), nil
}

func (r *LoanRepo) GetAll(ctx context.Context) ([]*domain.Loan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Loan, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, cloneLoan(r.loans[id]))
	}
	return out, nil
}

func (r *LoanRepo) GetByUser(ctx context.Context, userID string) ([]*domain.Loan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Loan
	// Walk newest to oldest.
	for i := len(r.order) - 1; i >= 0; i-- {
		if l := r.loans[r.order[i]]; l.UserID == userID {
			out = append(out, cloneLoan(l))
		}
	}
	return out, nil
}

func (r *LoanRepo) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.loans[id]; !ok {
		return false, nil
	}
	delete(r.loans, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func cloneLoan(l *domain.Loan) *domain.Loan {
	c := *l
	if l.DateReturned != nil {
		d := *l.DateReturned
		c.DateReturned = &d
	}
	return &c
}
