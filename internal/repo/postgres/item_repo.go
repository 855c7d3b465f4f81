package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/libris/internal/domain"
	"github.com/diagnosis/libris/internal/repo"
)

type ItemRepoImpl struct{ pool *pgxpool.Pool }

func NewItemRepo(pool *pgxpool.Pool) *ItemRepoImpl { return &ItemRepoImpl{pool: pool} }

const itemCols = `item_id, kind, title, available, date_added,
author, isbn, pages,
issue_number, publisher, published_at,
duration_minutes, genre, director, rating`

func (r *ItemRepoImpl) Save(ctx context.Context, it *domain.Item) error {
	const q = `INSERT INTO items (` + itemCols + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (item_id) DO UPDATE SET
  kind=EXCLUDED.kind, title=EXCLUDED.title, available=EXCLUDED.available,
  date_added=EXCLUDED.date_added, author=EXCLUDED.author, isbn=EXCLUDED.isbn,
  pages=EXCLUDED.pages, issue_number=EXCLUDED.issue_number,
  publisher=EXCLUDED.publisher, published_at=EXCLUDED.published_at,
  duration_minutes=EXCLUDED.duration_minutes, genre=EXCLUDED.genre,
  director=EXCLUDED.director, rating=EXCLUDED.rating,
  updated_at=now()`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q,
		it.ID, it.Kind, it.Title, it.Available, it.DateAdded,
		it.Author, it.ISBN, it.Pages,
		it.IssueNumber, it.Publisher, it.PublishedAt,
		it.DurationMinutes, it.Genre, it.Director, it.Rating,
	)
	return err
}

func (r *ItemRepoImpl) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	const q = `SELECT ` + itemCols + ` FROM items WHERE item_id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	it, err := scanItem(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return it, err
}

func (r *ItemRepoImpl) GetAll(ctx context.Context) ([]*domain.Item, error) {
	const q = `SELECT ` + itemCols + ` FROM items ORDER BY title, item_id`
	return r.queryItems(ctx, q)
}

func (r *ItemRepoImpl) Search(ctx context.Context, titleSubstring string) ([]*domain.Item, error) {
	const q = `SELECT ` + itemCols + ` FROM items
WHERE title ILIKE '%' || $1 || '%'
ORDER BY title, item_id`
	return r.queryItems(ctx, q, titleSubstring)
}

func (r *ItemRepoImpl) queryItems(ctx context.Context, q string, args ...any) ([]*domain.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *ItemRepoImpl) Delete(ctx context.Context, id string) (bool, error) {
	const q = `DELETE FROM items WHERE item_id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ct, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func scanItem(row pgx.Row) (*domain.Item, error) {
	var it domain.Item
	if err := row.Scan(
		&it.ID, &it.Kind, &it.Title, &it.Available, &it.DateAdded,
		&it.Author, &it.ISBN, &it.Pages,
		&it.IssueNumber, &it.Publisher, &it.PublishedAt,
		&it.DurationMinutes, &it.Genre, &it.Director, &it.Rating,
	); err != nil {
		return nil, err
	}
	return &it, nil
}

var _ repo.ItemRepo = (*ItemRepoImpl)(nil)
