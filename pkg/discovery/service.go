package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/elonfeng/shelfradar/internal/store"
	"github.com/elonfeng/shelfradar/pkg/catalog"
)

// Page is one discovery response.
type Page struct {
	View        *catalog.View  `json:"view,omitempty"`
	Requested   int            `json:"requested"`
	Books       []catalog.Book `json:"books"`
	Underfilled bool           `json:"underfilled"`
}

// Service runs the full discovery flow: resolve the view, rank its books by
// popularity, filter and backfill for the user, then hydrate.
type Service struct {
	store    store.Store
	resolver *Resolver
	filter   *Filter
}

// NewService wires a resolver and filter over the same store.
func NewService(s store.Store, opts FilterOptions) *Service {
	return &Service{
		store:    s,
		resolver: NewResolver(s),
		filter:   NewFilter(s, opts),
	}
}

// Discover returns up to limit books of the view identified by slug, with the
// user's blocks applied. An unknown view yields an empty page.
func (s *Service) Discover(ctx context.Context, slug string, userID int64, limit int) (*Page, error) {
	page := &Page{Requested: limit, Books: []catalog.Book{}}

	view, err := s.store.GetViewBySlug(ctx, slug)
	if errors.Is(err, store.ErrNotFound) {
		page.Underfilled = limit > 0
		return page, nil
	}
	if err != nil {
		return nil, fmt.Errorf("discover %q: %w", slug, err)
	}
	page.View = view

	res, err := s.resolver.ResolveView(ctx, view.ID)
	if err != nil {
		return nil, err
	}
	if res.Empty() {
		page.Underfilled = limit > 0
		return page, nil
	}

	candidates, err := s.store.RankBookIDs(ctx, res.BookIDs, limit)
	if err != nil {
		return nil, fmt.Errorf("discover %q: %w", slug, err)
	}

	ids, err := s.filter.FilterAndFill(ctx, FillRequest{
		Candidates:  candidates,
		TaxonomyIDs: res.TaxonomyIDs,
		UserID:      userID,
		Target:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("discover %q: %w", slug, err)
	}

	books, err := s.store.GetBooks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("discover %q: %w", slug, err)
	}
	if books != nil {
		page.Books = books
	}
	page.Underfilled = len(books) < limit
	return page, nil
}
