package store

import (
	"context"
	"fmt"

	"github.com/elonfeng/shelfradar/pkg/catalog"
	"github.com/jmoiron/sqlx"
)

func (s *SQLStore) CreateTaxonomy(ctx context.Context, t *catalog.Taxonomy) error {
	if err := catalog.ValidateTaxonomy(t); err != nil {
		return err
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}

	var (
		id  int64
		err error
	)
	if t.ID > 0 {
		id, err = s.insertReturningID(ctx, `
			INSERT INTO taxonomies (id, name, type, parent_id, created_at)
			VALUES (?, ?, ?, ?, ?) RETURNING id
		`, t.ID, t.Name, t.Type, t.ParentID, t.CreatedAt)
		if err == nil {
			err = s.syncIdentity(ctx, "taxonomies")
		}
	} else {
		id, err = s.insertReturningID(ctx, `
			INSERT INTO taxonomies (name, type, parent_id, created_at)
			VALUES (?, ?, ?, ?) RETURNING id
		`, t.Name, t.Type, t.ParentID, t.CreatedAt)
	}
	if err != nil {
		return fmt.Errorf("create taxonomy %q: %w", t.Name, err)
	}
	t.ID = id
	return nil
}

func (s *SQLStore) GetTaxonomy(ctx context.Context, id int64) (*catalog.Taxonomy, error) {
	var t catalog.Taxonomy
	err := s.get(ctx, &t, "SELECT t.* FROM taxonomies t WHERE t.id = ? AND "+activeTaxonomy, id)
	if err != nil {
		return nil, fmt.Errorf("get taxonomy %d: %w", id, err)
	}
	return &t, nil
}

func (s *SQLStore) ListTaxonomies(ctx context.Context) ([]catalog.Taxonomy, error) {
	var taxonomies []catalog.Taxonomy
	err := s.db.SelectContext(ctx, &taxonomies,
		"SELECT t.* FROM taxonomies t WHERE "+activeTaxonomy+" ORDER BY t.type, t.name, t.id")
	if err != nil {
		return nil, fmt.Errorf("list taxonomies: %w", err)
	}
	return taxonomies, nil
}

// SoftDeleteTaxonomy marks a taxonomy deleted. The row and its assignments
// are kept; every query ignores them from then on.
func (s *SQLStore) SoftDeleteTaxonomy(ctx context.Context, id int64) error {
	res, err := s.exec(ctx,
		"UPDATE taxonomies SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL", s.now(), id)
	if err != nil {
		return fmt.Errorf("soft delete taxonomy %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("soft delete taxonomy %d: %w", id, ErrNotFound)
	}
	return nil
}

// AssignTaxonomy places taxonomyID at the given 1-based rank among the
// book's assignments of the same taxonomy type. Later assignments shift down;
// a rank <= 0 or past the end appends. Ranks stay dense and importance is
// rewritten for every row whose rank changed.
func (s *SQLStore) AssignTaxonomy(ctx context.Context, bookID, taxonomyID int64, rank int) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var typ catalog.TaxonomyType
		err := tx.GetContext(ctx, &typ, tx.Rebind(
			"SELECT t.type FROM taxonomies t WHERE t.id = ? AND "+activeTaxonomy), taxonomyID)
		if err != nil {
			return fmt.Errorf("assign taxonomy %d to book %d: %w", taxonomyID, bookID, notFound(err))
		}

		current, err := assignmentsOfType(ctx, tx, bookID, typ)
		if err != nil {
			return err
		}

		order := make([]int64, 0, len(current)+1)
		for _, a := range current {
			if a.TaxonomyID != taxonomyID {
				order = append(order, a.TaxonomyID)
			}
		}
		pos := rank - 1
		if pos < 0 || pos > len(order) {
			pos = len(order)
		}
		order = append(order[:pos], append([]int64{taxonomyID}, order[pos:]...)...)

		return rerank(ctx, tx, bookID, current, order)
	})
}

// RemoveAssignment untags a book and closes the gap in its ranks.
func (s *SQLStore) RemoveAssignment(ctx context.Context, bookID, taxonomyID int64) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var typ catalog.TaxonomyType
		err := tx.GetContext(ctx, &typ, tx.Rebind(
			"SELECT t.type FROM taxonomies t WHERE t.id = ?"), taxonomyID)
		if err != nil {
			return fmt.Errorf("remove assignment %d from book %d: %w", taxonomyID, bookID, notFound(err))
		}

		res, err := tx.ExecContext(ctx, tx.Rebind(
			"DELETE FROM book_taxonomies WHERE book_id = ? AND taxonomy_id = ?"), bookID, taxonomyID)
		if err != nil {
			return fmt.Errorf("remove assignment %d from book %d: %w", taxonomyID, bookID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("remove assignment %d from book %d: %w", taxonomyID, bookID, ErrNotFound)
		}

		current, err := assignmentsOfType(ctx, tx, bookID, typ)
		if err != nil {
			return err
		}
		order := make([]int64, len(current))
		for i, a := range current {
			order[i] = a.TaxonomyID
		}
		return rerank(ctx, tx, bookID, current, order)
	})
}

func assignmentsOfType(ctx context.Context, tx *sqlx.Tx, bookID int64, typ catalog.TaxonomyType) ([]catalog.Assignment, error) {
	var rows []catalog.Assignment
	err := tx.SelectContext(ctx, &rows, tx.Rebind(`
		SELECT bt.book_id, bt.taxonomy_id, t.type AS taxonomy_type, bt.rank, bt.importance
		FROM book_taxonomies bt
		JOIN taxonomies t ON t.id = bt.taxonomy_id
		WHERE bt.book_id = ? AND t.type = ?
		ORDER BY bt.rank, bt.taxonomy_id
	`), bookID, typ)
	if err != nil {
		return nil, fmt.Errorf("list assignments of book %d: %w", bookID, err)
	}
	return rows, nil
}

// rerank writes rank i+1 to order[i], touching only rows whose rank changed.
func rerank(ctx context.Context, tx *sqlx.Tx, bookID int64, current []catalog.Assignment, order []int64) error {
	had := make(map[int64]int, len(current))
	for _, a := range current {
		had[a.TaxonomyID] = a.Rank
	}

	for i, taxonomyID := range order {
		rank := i + 1
		prev, exists := had[taxonomyID]
		switch {
		case !exists:
			_, err := tx.ExecContext(ctx, tx.Rebind(`
				INSERT INTO book_taxonomies (book_id, taxonomy_id, rank, importance)
				VALUES (?, ?, ?, ?)
			`), bookID, taxonomyID, rank, catalog.Importance(rank))
			if err != nil {
				return fmt.Errorf("insert assignment %d for book %d: %w", taxonomyID, bookID, err)
			}
		case prev != rank:
			_, err := tx.ExecContext(ctx, tx.Rebind(`
				UPDATE book_taxonomies SET rank = ?, importance = ?
				WHERE book_id = ? AND taxonomy_id = ?
			`), rank, catalog.Importance(rank), bookID, taxonomyID)
			if err != nil {
				return fmt.Errorf("rerank assignment %d for book %d: %w", taxonomyID, bookID, err)
			}
		}
	}
	return nil
}

func (s *SQLStore) ListAssignments(ctx context.Context, bookID int64) ([]catalog.Assignment, error) {
	var rows []catalog.Assignment
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT bt.book_id, bt.taxonomy_id, t.type AS taxonomy_type, bt.rank, bt.importance
		FROM book_taxonomies bt
		JOIN taxonomies t ON t.id = bt.taxonomy_id
		WHERE bt.book_id = ? AND `+activeTaxonomy+`
		ORDER BY t.type, bt.rank
	`), bookID)
	if err != nil {
		return nil, fmt.Errorf("list assignments of book %d: %w", bookID, err)
	}
	return rows, nil
}

// RecomputeImportance rewrites every stored importance from its rank and
// returns the number of rows that changed.
func (s *SQLStore) RecomputeImportance(ctx context.Context) (int, error) {
	changed := 0
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var rows []catalog.Assignment
		err := tx.SelectContext(ctx, &rows,
			"SELECT book_id, taxonomy_id, rank, importance FROM book_taxonomies")
		if err != nil {
			return fmt.Errorf("load assignments: %w", err)
		}

		stmt, err := tx.PreparexContext(ctx, tx.Rebind(
			"UPDATE book_taxonomies SET importance = ? WHERE book_id = ? AND taxonomy_id = ?"))
		if err != nil {
			return fmt.Errorf("prepare importance update: %w", err)
		}
		defer stmt.Close()

		for _, a := range rows {
			want := catalog.Importance(a.Rank)
			if a.Importance == want {
				continue
			}
			if _, err := stmt.ExecContext(ctx, want, a.BookID, a.TaxonomyID); err != nil {
				return fmt.Errorf("update importance book=%d taxonomy=%d: %w", a.BookID, a.TaxonomyID, err)
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

// BookIDsForTaxonomies returns the distinct books assigned to any of the
// given taxonomies, in ascending id order.
func (s *SQLStore) BookIDsForTaxonomies(ctx context.Context, taxonomyIDs []int64) ([]int64, error) {
	if len(taxonomyIDs) == 0 {
		return nil, nil
	}
	var ids []int64
	err := s.selectIn(ctx, &ids, `
		SELECT DISTINCT bt.book_id
		FROM book_taxonomies bt
		JOIN taxonomies t ON t.id = bt.taxonomy_id
		WHERE bt.taxonomy_id IN (?) AND `+activeTaxonomy+`
		ORDER BY bt.book_id
	`, taxonomyIDs)
	if err != nil {
		return nil, fmt.Errorf("books for taxonomies: %w", err)
	}
	return ids, nil
}

// BooksTaggedWith returns the subset of bookIDs assigned to any of taxonomyIDs.
func (s *SQLStore) BooksTaggedWith(ctx context.Context, bookIDs, taxonomyIDs []int64) ([]int64, error) {
	if len(bookIDs) == 0 || len(taxonomyIDs) == 0 {
		return nil, nil
	}
	var ids []int64
	err := s.selectIn(ctx, &ids, `
		SELECT DISTINCT bt.book_id
		FROM book_taxonomies bt
		JOIN taxonomies t ON t.id = bt.taxonomy_id
		WHERE bt.book_id IN (?) AND bt.taxonomy_id IN (?) AND `+activeTaxonomy+`
		ORDER BY bt.book_id
	`, bookIDs, taxonomyIDs)
	if err != nil {
		return nil, fmt.Errorf("books tagged with taxonomies: %w", err)
	}
	return ids, nil
}

// BackfillPool returns up to q.Limit books assigned to q.TaxonomyIDs that are
// not excluded and not blocked on any dimension, most popular first.
func (s *SQLStore) BackfillPool(ctx context.Context, q BackfillQuery) ([]int64, error) {
	if len(q.TaxonomyIDs) == 0 || q.Limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT b.id FROM books b
		WHERE EXISTS (
			SELECT 1 FROM book_taxonomies bt
			JOIN taxonomies t ON t.id = bt.taxonomy_id
			WHERE bt.book_id = b.id AND bt.taxonomy_id IN (?) AND ` + activeTaxonomy + `
		)`
	args := []any{q.TaxonomyIDs}

	exclude := catalog.NewIDSet(q.Exclude...)
	exclude.Add(q.Blocks.Books.Slice()...)
	if len(exclude) > 0 {
		query += " AND b.id NOT IN (?)"
		args = append(args, exclude.Slice())
	}
	if len(q.Blocks.Taxonomies) > 0 {
		query += `
		AND NOT EXISTS (
			SELECT 1 FROM book_taxonomies bt
			JOIN taxonomies t ON t.id = bt.taxonomy_id
			WHERE bt.book_id = b.id AND bt.taxonomy_id IN (?) AND ` + activeTaxonomy + `
		)`
		args = append(args, q.Blocks.Taxonomies.Slice())
	}
	if len(q.Blocks.Authors) > 0 {
		query += " AND b.author_id NOT IN (?)"
		args = append(args, q.Blocks.Authors.Slice())
	}
	if len(q.Blocks.Publishers) > 0 {
		query += `
		AND NOT EXISTS (
			SELECT 1 FROM authorship_contracts c
			WHERE c.author_id = b.author_id AND c.publisher_id IN (?)
			  AND c.starts_at <= ? AND (c.ends_at IS NULL OR c.ends_at > ?)
		)`
		args = append(args, q.Blocks.Publishers.Slice(), q.At.UTC(), q.At.UTC())
	}

	query += " ORDER BY b.popularity_score DESC, b.id ASC LIMIT ?"
	args = append(args, q.Limit)

	var ids []int64
	if err := s.selectIn(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("backfill pool: %w", err)
	}
	return ids, nil
}
