// Package popularity recomputes the per-book popularity score from the
// engagement event log.
package popularity

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/elonfeng/shelfradar/internal/logging"
	"github.com/elonfeng/shelfradar/internal/metrics"
	"github.com/elonfeng/shelfradar/pkg/catalog"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultWindowDays is the trailing window used when none is given.
const DefaultWindowDays = 30

// EventStore is the slice of the store the scorer needs.
type EventStore interface {
	CountEventsSince(ctx context.Context, since time.Time) ([]catalog.EventCount, error)
	ReplacePopularityScores(ctx context.Context, scores map[int64]float64, run *catalog.ScoreRun) error
}

// Scorer aggregates engagement events into popularity scores.
type Scorer struct {
	store  EventStore
	clock  clock.Clock
	window int
	group  singleflight.Group
	log    zerolog.Logger
}

// NewScorer creates a scorer. windowDays <= 0 uses DefaultWindowDays.
func NewScorer(s EventStore, clk clock.Clock, windowDays int) *Scorer {
	if clk == nil {
		clk = clock.New()
	}
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	return &Scorer{
		store:  s,
		clock:  clk,
		window: windowDays,
		log:    logging.With().Str("component", "popularity").Logger(),
	}
}

// WindowDays returns the default trailing window.
func (s *Scorer) WindowDays() int { return s.window }

// Recompute replaces every book's popularity score with the weighted sum of
// its events in the trailing window. The new score set is committed as a
// whole or not at all. Concurrent calls for the same window share one run.
// The shared run ignores caller cancellation: a caller whose ctx ends first
// returns ctx.Err() while the run carries on for the others.
func (s *Scorer) Recompute(ctx context.Context, windowDays int) (*catalog.ScoreRun, error) {
	if windowDays <= 0 {
		windowDays = s.window
	}
	runCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(strconv.Itoa(windowDays), func() (any, error) {
		return s.recompute(runCtx, windowDays)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			s.log.Debug().Int("window_days", windowDays).Msg("joined in-flight recompute")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*catalog.ScoreRun), nil
	}
}

func (s *Scorer) recompute(ctx context.Context, windowDays int) (run *catalog.ScoreRun, err error) {
	timer := prometheus.NewTimer(metrics.ScoreRunDuration)
	started := s.clock.Now().UTC()
	defer func() {
		timer.ObserveDuration()
		if err != nil {
			metrics.ScoreRuns.WithLabelValues("error").Inc()
			return
		}
		metrics.ScoreRuns.WithLabelValues("ok").Inc()
	}()

	since := started.Add(-time.Duration(windowDays) * 24 * time.Hour)
	counts, err := s.store.CountEventsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("aggregate events: %w", err)
	}

	scores := Score(counts)
	run = &catalog.ScoreRun{
		ID:          uuid.NewString(),
		WindowDays:  windowDays,
		BooksScored: len(scores),
		StartedAt:   started,
		FinishedAt:  s.clock.Now().UTC(),
	}

	if err := s.store.ReplacePopularityScores(ctx, scores, run); err != nil {
		return nil, fmt.Errorf("replace scores: %w", err)
	}

	metrics.BooksScored.Set(float64(run.BooksScored))
	s.log.Info().
		Str("run_id", run.ID).
		Int("window_days", windowDays).
		Int("books_scored", run.BooksScored).
		Msg("popularity scores replaced")
	return run, nil
}
