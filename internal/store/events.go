package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/elonfeng/shelfradar/pkg/catalog"
	"github.com/jmoiron/sqlx"
)

// RecordEvent appends an engagement event and bumps the book's impression or
// click-through counters in the same transaction. The stored weight always
// comes from the fixed weight table.
func (s *SQLStore) RecordEvent(ctx context.Context, e *catalog.Event) error {
	if err := catalog.ValidateEvent(e); err != nil {
		return err
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = s.now()
	}
	e.OccurredAt = e.OccurredAt.UTC()
	e.Weight = catalog.EventWeight(e.Type)

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var exists int
		err := tx.GetContext(ctx, &exists, tx.Rebind("SELECT 1 FROM books WHERE id = ?"), e.BookID)
		if err != nil {
			return fmt.Errorf("record event for book %d: %w", e.BookID, notFound(err))
		}

		err = tx.QueryRowxContext(ctx, tx.Rebind(`
			INSERT INTO engagement_events (book_id, user_id, event_type, weight, occurred_at)
			VALUES (?, ?, ?, ?, ?) RETURNING id
		`), e.BookID, e.UserID, e.Type, e.Weight, e.OccurredAt).Scan(&e.ID)
		if err != nil {
			return fmt.Errorf("insert event for book %d: %w", e.BookID, err)
		}

		var counter string
		switch {
		case e.Type.IsImpression():
			counter = "UPDATE books SET impression_count = impression_count + 1, last_impression_at = ? WHERE id = ?"
		case e.Type.IsClickThrough():
			counter = "UPDATE books SET click_through_count = click_through_count + 1, last_click_through_at = ? WHERE id = ?"
		default:
			return nil
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(counter), e.OccurredAt, e.BookID); err != nil {
			return fmt.Errorf("update counters for book %d: %w", e.BookID, err)
		}
		return nil
	})
}

// CountEventsSince groups events at or after since by book and type.
func (s *SQLStore) CountEventsSince(ctx context.Context, since time.Time) ([]catalog.EventCount, error) {
	var counts []catalog.EventCount
	err := s.db.SelectContext(ctx, &counts, s.db.Rebind(`
		SELECT book_id, event_type, COUNT(*) AS cnt
		FROM engagement_events
		WHERE occurred_at >= ?
		GROUP BY book_id, event_type
		ORDER BY book_id, event_type
	`), since.UTC())
	if err != nil {
		return nil, fmt.Errorf("count events since %s: %w", since.Format(time.RFC3339), err)
	}
	return counts, nil
}

// ReplacePopularityScores swaps in a complete score set in one transaction:
// every book is reset to zero, scored books get their new value, and the run
// is recorded. On any error nothing is committed and the previous scores stay.
func (s *SQLStore) ReplacePopularityScores(ctx context.Context, scores map[int64]float64, run *catalog.ScoreRun) error {
	ids := make([]int64, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	scoredAt := run.FinishedAt.UTC()

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, tx.Rebind(
			"UPDATE books SET popularity_score = 0, scored_at = ?"), scoredAt)
		if err != nil {
			return fmt.Errorf("reset popularity scores: %w", err)
		}

		stmt, err := tx.PreparexContext(ctx, tx.Rebind(
			"UPDATE books SET popularity_score = ? WHERE id = ?"))
		if err != nil {
			return fmt.Errorf("prepare score update: %w", err)
		}
		defer stmt.Close()

		for _, id := range ids {
			if _, err := stmt.ExecContext(ctx, scores[id], id); err != nil {
				return fmt.Errorf("update score for book %d: %w", id, err)
			}
		}

		_, err = tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO popularity_runs (id, window_days, books_scored, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?)
		`), run.ID, run.WindowDays, run.BooksScored, run.StartedAt.UTC(), scoredAt)
		if err != nil {
			return fmt.Errorf("record popularity run %s: %w", run.ID, err)
		}
		return nil
	})
}

func (s *SQLStore) LatestScoreRun(ctx context.Context) (*catalog.ScoreRun, error) {
	var run catalog.ScoreRun
	err := s.get(ctx, &run, "SELECT * FROM popularity_runs ORDER BY finished_at DESC LIMIT 1")
	if err != nil {
		return nil, fmt.Errorf("latest popularity run: %w", err)
	}
	return &run, nil
}
