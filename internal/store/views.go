package store

import (
	"context"
	"fmt"

	"github.com/elonfeng/shelfradar/pkg/catalog"
)

func (s *SQLStore) CreateView(ctx context.Context, v *catalog.View) error {
	id, err := s.insertReturningID(ctx, `
		INSERT INTO views (name, slug, rank, is_default) VALUES (?, ?, ?, ?) RETURNING id
	`, v.Name, v.Slug, v.Rank, v.IsDefault)
	if err != nil {
		return fmt.Errorf("create view %q: %w", v.Slug, err)
	}
	v.ID = id
	return nil
}

// AddViewTaxonomy appends a taxonomy to a view. Rows with equal rank keep
// their insertion order.
func (s *SQLStore) AddViewTaxonomy(ctx context.Context, viewID, taxonomyID int64, rank int) error {
	t, err := s.GetTaxonomy(ctx, taxonomyID)
	if err != nil {
		return fmt.Errorf("add taxonomy to view %d: %w", viewID, err)
	}
	_, err = s.exec(ctx, `
		INSERT INTO view_taxonomies (view_id, taxonomy_id, type, rank) VALUES (?, ?, ?, ?)
		ON CONFLICT(view_id, taxonomy_id) DO UPDATE SET rank = excluded.rank
	`, viewID, taxonomyID, t.Type, rank)
	if err != nil {
		return fmt.Errorf("add taxonomy %d to view %d: %w", taxonomyID, viewID, err)
	}
	return nil
}

func (s *SQLStore) GetView(ctx context.Context, id int64) (*catalog.View, error) {
	var v catalog.View
	if err := s.get(ctx, &v, "SELECT * FROM views WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("get view %d: %w", id, err)
	}
	return &v, nil
}

func (s *SQLStore) GetViewBySlug(ctx context.Context, slug string) (*catalog.View, error) {
	var v catalog.View
	if err := s.get(ctx, &v, "SELECT * FROM views WHERE slug = ?", slug); err != nil {
		return nil, fmt.Errorf("get view %q: %w", slug, err)
	}
	return &v, nil
}

func (s *SQLStore) ListViews(ctx context.Context) ([]catalog.View, error) {
	var views []catalog.View
	if err := s.db.SelectContext(ctx, &views, "SELECT * FROM views ORDER BY rank, id"); err != nil {
		return nil, fmt.Errorf("list views: %w", err)
	}
	return views, nil
}

// ViewTaxonomyIDs returns the view's live taxonomies by rank, ties broken by
// insertion order. Unknown views have none.
func (s *SQLStore) ViewTaxonomyIDs(ctx context.Context, viewID int64) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, s.db.Rebind(`
		SELECT vt.taxonomy_id
		FROM view_taxonomies vt
		JOIN taxonomies t ON t.id = vt.taxonomy_id
		WHERE vt.view_id = ? AND `+activeTaxonomy+`
		ORDER BY vt.rank, vt.id
	`), viewID)
	if err != nil {
		return nil, fmt.Errorf("view %d taxonomies: %w", viewID, err)
	}
	return ids, nil
}
