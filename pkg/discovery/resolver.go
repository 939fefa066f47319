package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/elonfeng/shelfradar/internal/store"
	"github.com/elonfeng/shelfradar/pkg/catalog"
)

// ViewSource is the slice of the store the resolver reads.
type ViewSource interface {
	GetViewBySlug(ctx context.Context, slug string) (*catalog.View, error)
	ViewTaxonomyIDs(ctx context.Context, viewID int64) ([]int64, error)
	BookIDsForTaxonomies(ctx context.Context, taxonomyIDs []int64) ([]int64, error)
}

// Resolution is the candidate set of a view.
type Resolution struct {
	ViewID      int64   `json:"view_id"`
	TaxonomyIDs []int64 `json:"taxonomy_ids"`
	BookIDs     []int64 `json:"book_ids"`
}

// Empty reports whether the view resolved to no books.
func (r Resolution) Empty() bool {
	return len(r.BookIDs) == 0
}

// Resolver maps a view to the union of books tagged with its taxonomies.
type Resolver struct {
	src ViewSource
}

// NewResolver creates a view resolver.
func NewResolver(src ViewSource) *Resolver {
	return &Resolver{src: src}
}

// ResolveView returns the view's taxonomies in priority order and the
// deduplicated books assigned to any of them, ascending by id. A missing view
// and a view without taxonomies both resolve to an empty Resolution.
func (r *Resolver) ResolveView(ctx context.Context, viewID int64) (Resolution, error) {
	res := Resolution{ViewID: viewID}

	taxonomyIDs, err := r.src.ViewTaxonomyIDs(ctx, viewID)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve view %d: %w", viewID, err)
	}
	if len(taxonomyIDs) == 0 {
		return res, nil
	}
	res.TaxonomyIDs = taxonomyIDs

	bookIDs, err := r.src.BookIDsForTaxonomies(ctx, taxonomyIDs)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve view %d: %w", viewID, err)
	}
	res.BookIDs = dedupe(bookIDs)
	return res, nil
}

// ResolveSlug resolves a view by its slug.
func (r *Resolver) ResolveSlug(ctx context.Context, slug string) (Resolution, error) {
	v, err := r.src.GetViewBySlug(ctx, slug)
	if errors.Is(err, store.ErrNotFound) {
		return Resolution{}, nil
	}
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve view %q: %w", slug, err)
	}
	return r.ResolveView(ctx, v.ID)
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
