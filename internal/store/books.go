package store

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/elonfeng/shelfradar/pkg/catalog"
)

func (s *SQLStore) CreatePublisher(ctx context.Context, name string) (int64, error) {
	id, err := s.insertReturningID(ctx,
		"INSERT INTO publishers (name, created_at) VALUES (?, ?) RETURNING id",
		name, s.now())
	if err != nil {
		return 0, fmt.Errorf("create publisher %q: %w", name, err)
	}
	return id, nil
}

func (s *SQLStore) CreateAuthor(ctx context.Context, name string) (int64, error) {
	id, err := s.insertReturningID(ctx,
		"INSERT INTO authors (name, created_at) VALUES (?, ?) RETURNING id",
		name, s.now())
	if err != nil {
		return 0, fmt.Errorf("create author %q: %w", name, err)
	}
	return id, nil
}

func (s *SQLStore) AddContract(ctx context.Context, c *catalog.AuthorshipContract) error {
	if c.StartsAt.IsZero() {
		c.StartsAt = s.now()
	}
	id, err := s.insertReturningID(ctx, `
		INSERT INTO authorship_contracts (author_id, publisher_id, starts_at, ends_at)
		VALUES (?, ?, ?, ?) RETURNING id
	`, c.AuthorID, c.PublisherID, c.StartsAt.UTC(), utcPtr(c.EndsAt))
	if err != nil {
		return fmt.Errorf("add contract author=%d publisher=%d: %w", c.AuthorID, c.PublisherID, err)
	}
	c.ID = id
	return nil
}

// AuthorsContractedTo returns the subset of authorIDs holding a contract with
// any of publisherIDs that is active at the given time, ascending.
func (s *SQLStore) AuthorsContractedTo(ctx context.Context, authorIDs, publisherIDs []int64, at time.Time) ([]int64, error) {
	if len(authorIDs) == 0 || len(publisherIDs) == 0 {
		return nil, nil
	}
	var contracts []catalog.AuthorshipContract
	err := s.selectIn(ctx, &contracts, `
		SELECT id, author_id, publisher_id, starts_at, ends_at FROM authorship_contracts
		WHERE author_id IN (?) AND publisher_id IN (?)
	`, authorIDs, publisherIDs)
	if err != nil {
		return nil, fmt.Errorf("authors contracted to publishers: %w", err)
	}

	active := catalog.NewIDSet()
	for _, c := range contracts {
		if c.ActiveAt(at) {
			active.Add(c.AuthorID)
		}
	}
	ids := active.Slice()
	slices.Sort(ids)
	return ids, nil
}

func (s *SQLStore) CreateBook(ctx context.Context, b *catalog.Book) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.now()
	}

	var (
		id  int64
		err error
	)
	if b.ID > 0 {
		id, err = s.insertReturningID(ctx, `
			INSERT INTO books (id, title, author_id, popularity_score, created_at)
			VALUES (?, ?, ?, ?, ?) RETURNING id
		`, b.ID, b.Title, b.AuthorID, b.PopularityScore, b.CreatedAt)
		if err == nil {
			err = s.syncIdentity(ctx, "books")
		}
	} else {
		id, err = s.insertReturningID(ctx, `
			INSERT INTO books (title, author_id, popularity_score, created_at)
			VALUES (?, ?, ?, ?) RETURNING id
		`, b.Title, b.AuthorID, b.PopularityScore, b.CreatedAt)
	}
	if err != nil {
		return fmt.Errorf("create book %q: %w", b.Title, err)
	}
	b.ID = id
	return nil
}

func (s *SQLStore) GetBook(ctx context.Context, id int64) (*catalog.Book, error) {
	var b catalog.Book
	if err := s.get(ctx, &b, "SELECT * FROM books WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("get book %d: %w", id, err)
	}
	return &b, nil
}

// GetBooks returns the books for ids in the order the ids were given.
// Ids with no matching row are skipped.
func (s *SQLStore) GetBooks(ctx context.Context, ids []int64) ([]catalog.Book, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []catalog.Book
	if err := s.selectIn(ctx, &rows, "SELECT * FROM books WHERE id IN (?)", ids); err != nil {
		return nil, fmt.Errorf("get books: %w", err)
	}

	byID := make(map[int64]catalog.Book, len(rows))
	for _, b := range rows {
		byID[b.ID] = b
	}
	books := make([]catalog.Book, 0, len(rows))
	for _, id := range ids {
		if b, ok := byID[id]; ok {
			books = append(books, b)
		}
	}
	return books, nil
}

func (s *SQLStore) ListPopularBooks(ctx context.Context, limit int) ([]catalog.Book, error) {
	if limit <= 0 {
		limit = 50
	}
	var books []catalog.Book
	err := s.db.SelectContext(ctx, &books, s.db.Rebind(
		"SELECT * FROM books ORDER BY popularity_score DESC, id ASC LIMIT ?"), limit)
	if err != nil {
		return nil, fmt.Errorf("list popular books: %w", err)
	}
	return books, nil
}

// RankBookIDs orders ids by popularity score (ties by id) and keeps at most
// limit of them. A limit <= 0 keeps all.
func (s *SQLStore) RankBookIDs(ctx context.Context, ids []int64, limit int) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := "SELECT id FROM books WHERE id IN (?) ORDER BY popularity_score DESC, id ASC"
	args := []any{ids}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	var ranked []int64
	if err := s.selectIn(ctx, &ranked, query, args...); err != nil {
		return nil, fmt.Errorf("rank books: %w", err)
	}
	return ranked, nil
}

func (s *SQLStore) BookAuthors(ctx context.Context, bookIDs []int64) (map[int64]int64, error) {
	if len(bookIDs) == 0 {
		return map[int64]int64{}, nil
	}
	var rows []struct {
		ID       int64 `db:"id"`
		AuthorID int64 `db:"author_id"`
	}
	if err := s.selectIn(ctx, &rows, "SELECT id, author_id FROM books WHERE id IN (?)", bookIDs); err != nil {
		return nil, fmt.Errorf("book authors: %w", err)
	}
	authors := make(map[int64]int64, len(rows))
	for _, r := range rows {
		authors[r.ID] = r.AuthorID
	}
	return authors, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
