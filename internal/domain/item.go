package domain

import (
	"fmt"
	"strings"
	"time"
)

type ItemKind string

const (
	ItemBook     ItemKind = "book"
	ItemMagazine ItemKind = "magazine"
	ItemDVD      ItemKind = "dvd"
)

func ParseItemKind(s string) (ItemKind, bool) {
	switch ItemKind(s) {
	case ItemBook, ItemMagazine, ItemDVD:
		return ItemKind(s), true
	default:
		return "", false
	}
}

// Loan periods in days, fixed per item kind.
const (
	BookLoanPeriodDays     = 21
	MagazineLoanPeriodDays = 7
	DVDLoanPeriodDays      = 14
)

var dvdRatings = []string{"G", "PG", "PG-13", "R", "NC-17", "NR"}

// Item is the closed set of catalog entries. Kind selects which of the
// variant field groups is meaningful; the others stay at their zero
// values and are omitted from JSON.
type Item struct {
	ID        string    `json:"item_id"`
	Kind      ItemKind  `json:"kind"`
	Title     string    `json:"title"`
	Available bool      `json:"available"`
	DateAdded time.Time `json:"date_added"`

	// Book fields
	Author string `json:"author,omitempty"`
	ISBN   string `json:"isbn,omitempty"`
	Pages  int    `json:"pages,omitempty"`

	// Magazine fields
	IssueNumber string     `json:"issue_number,omitempty"`
	Publisher   string     `json:"publisher,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`

	// DVD fields
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	Genre           string `json:"genre,omitempty"`
	Director        string `json:"director,omitempty"`
	Rating          string `json:"rating,omitempty"`
}

func newItem(id, title string, kind ItemKind, now time.Time) (*Item, error) {
	id = strings.TrimSpace(id)
	title = strings.TrimSpace(title)
	if id == "" {
		return nil, invalid("item_id", "cannot be empty")
	}
	if title == "" {
		return nil, invalid("title", "cannot be empty")
	}
	return &Item{
		ID:        id,
		Kind:      kind,
		Title:     title,
		Available: true,
		DateAdded: now,
	}, nil
}

func NewBook(id, title, author, isbn string, pages int, now time.Time) (*Item, error) {
	it, err := newItem(id, title, ItemBook, now)
	if err != nil {
		return nil, err
	}
	author = strings.TrimSpace(author)
	isbn = strings.TrimSpace(isbn)
	if author == "" {
		return nil, invalid("author", "cannot be empty")
	}
	if isbn == "" {
		return nil, invalid("isbn", "cannot be empty")
	}
	if pages < 0 {
		return nil, invalid("pages", "cannot be negative")
	}
	it.Author = author
	it.ISBN = isbn
	it.Pages = pages
	return it, nil
}

func NewMagazine(id, title, issueNumber, publisher string, publishedAt time.Time, now time.Time) (*Item, error) {
	it, err := newItem(id, title, ItemMagazine, now)
	if err != nil {
		return nil, err
	}
	issueNumber = strings.TrimSpace(issueNumber)
	publisher = strings.TrimSpace(publisher)
	if issueNumber == "" {
		return nil, invalid("issue_number", "cannot be empty")
	}
	if publisher == "" {
		return nil, invalid("publisher", "cannot be empty")
	}
	if publishedAt.IsZero() {
		publishedAt = now
	}
	it.IssueNumber = issueNumber
	it.Publisher = publisher
	it.PublishedAt = &publishedAt
	return it, nil
}

func NewDVD(id, title string, durationMinutes int, genre, director, rating string, now time.Time) (*Item, error) {
	it, err := newItem(id, title, ItemDVD, now)
	if err != nil {
		return nil, err
	}
	genre = strings.TrimSpace(genre)
	if durationMinutes <= 0 {
		return nil, invalid("duration_minutes", "must be positive")
	}
	if genre == "" {
		return nil, invalid("genre", "cannot be empty")
	}
	if rating != "" && !validDVDRating(rating) {
		return nil, invalid("rating", fmt.Sprintf("must be one of: %s", strings.Join(dvdRatings, ", ")))
	}
	it.DurationMinutes = durationMinutes
	it.Genre = genre
	it.Director = strings.TrimSpace(director)
	it.Rating = rating
	return it, nil
}

func validDVDRating(rating string) bool {
	for _, r := range dvdRatings {
		if r == rating {
			return true
		}
	}
	return false
}

func (i *Item) LoanPeriodDays() int {
	switch i.Kind {
	case ItemMagazine:
		return MagazineLoanPeriodDays
	case ItemDVD:
		return DVDLoanPeriodDays
	default:
		return BookLoanPeriodDays
	}
}

// MarkCheckedOut flips the item to unavailable. Fails when the item is
// already checked out; the directory relies on this guard to refuse
// out-of-sequence calls.
func (i *Item) MarkCheckedOut() bool {
	if !i.Available {
		return false
	}
	i.Available = false
	return true
}

func (i *Item) MarkCheckedIn() bool {
	if i.Available {
		return false
	}
	i.Available = true
	return true
}

// FormattedDuration renders a DVD runtime as "Xh Ym".
func (i *Item) FormattedDuration() string {
	return fmt.Sprintf("%dh %dm", i.DurationMinutes/60, i.DurationMinutes%60)
}
