package popularity

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/elonfeng/shelfradar/internal/store"
	"github.com/elonfeng/shelfradar/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)

func mockClock() *clock.Mock {
	clk := clock.NewMock()
	clk.Set(testNow)
	return clk
}

func TestScore(t *testing.T) {
	scores := Score([]catalog.EventCount{
		{BookID: 201, Type: catalog.EventReferralClick, Count: 2},
		{BookID: 201, Type: catalog.EventCardClick, Count: 2},
		{BookID: 202, Type: catalog.EventView, Count: 40},
		{BookID: 202, Type: catalog.EventImpression, Count: 12},
		{BookID: 203, Type: catalog.EventHover, Count: 1},
		{BookID: 203, Type: catalog.EventCardClick, Count: 1},
		{BookID: 204, Type: "share", Count: 5},
	})

	assert.Equal(t, map[int64]float64{201: 3.0, 203: 0.75}, scores)
	assert.Empty(t, Score(nil))
}

type fakeEventStore struct {
	mu         sync.Mutex
	counts     []catalog.EventCount
	since      time.Time
	replaceErr error
	scores     map[int64]float64
	runs       []*catalog.ScoreRun
}

func (f *fakeEventStore) CountEventsSince(ctx context.Context, since time.Time) ([]catalog.EventCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.since = since
	return f.counts, nil
}

func (f *fakeEventStore) ReplacePopularityScores(ctx context.Context, scores map[int64]float64, run *catalog.ScoreRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.scores = scores
	f.runs = append(f.runs, run)
	return nil
}

func TestRecomputeUsesWindow(t *testing.T) {
	fs := &fakeEventStore{counts: []catalog.EventCount{
		{BookID: 1, Type: catalog.EventReferralClick, Count: 1},
	}}
	s := NewScorer(fs, mockClock(), 0)
	assert.Equal(t, DefaultWindowDays, s.WindowDays())

	run, err := s.Recompute(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, fs.since.Equal(testNow.AddDate(0, 0, -30)), fs.since)
	assert.Equal(t, 30, run.WindowDays)
	assert.Equal(t, 1, run.BooksScored)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, map[int64]float64{1: 1.0}, fs.scores)

	run, err = s.Recompute(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, fs.since.Equal(testNow.AddDate(0, 0, -7)), fs.since)
	assert.Equal(t, 7, run.WindowDays)
	require.Len(t, fs.runs, 2)
	assert.NotEqual(t, fs.runs[0].ID, fs.runs[1].ID)
}

func TestRecomputeFailureKeepsPreviousScores(t *testing.T) {
	boom := errors.New("disk full")
	fs := &fakeEventStore{
		counts:     []catalog.EventCount{{BookID: 1, Type: catalog.EventCardClick, Count: 4}},
		replaceErr: boom,
		scores:     map[int64]float64{1: 9.5},
	}
	s := NewScorer(fs, mockClock(), 30)

	_, err := s.Recompute(context.Background(), 0)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, map[int64]float64{1: 9.5}, fs.scores)
	assert.Empty(t, fs.runs)
}

func TestRecomputeAgainstStore(t *testing.T) {
	db, err := store.New(store.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()

	for _, id := range []int64{201, 202, 203, 204} {
		require.NoError(t, db.CreateBook(ctx, &catalog.Book{ID: id, Title: "Book", PopularityScore: 50}))
	}

	recent := testNow.Add(-time.Hour)
	events := []catalog.Event{
		{BookID: 201, Type: catalog.EventReferralClick, OccurredAt: recent},
		{BookID: 201, Type: catalog.EventReferralClick, OccurredAt: recent},
		{BookID: 201, Type: catalog.EventCardClick, OccurredAt: recent},
		{BookID: 201, Type: catalog.EventCardClick, OccurredAt: recent},
		{BookID: 202, Type: catalog.EventView, OccurredAt: recent},
		{BookID: 202, Type: catalog.EventImpression, OccurredAt: recent},
		{BookID: 203, Type: catalog.EventHover, OccurredAt: recent},
		{BookID: 203, Type: catalog.EventCardClick, OccurredAt: recent},
		{BookID: 204, Type: catalog.EventReferralClick, OccurredAt: testNow.AddDate(0, 0, -31)},
	}
	for i := range events {
		require.NoError(t, db.RecordEvent(ctx, &events[i]))
	}

	s := NewScorer(db, mockClock(), 30)
	run, err := s.Recompute(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, run.BooksScored)

	want := map[int64]float64{201: 3.0, 202: 0, 203: 0.75, 204: 0}
	for id, score := range want {
		b, err := db.GetBook(ctx, id)
		require.NoError(t, err)
		assert.InDelta(t, score, b.PopularityScore, 1e-9, "book %d", id)
	}

	latest, err := db.LatestScoreRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, run.ID, latest.ID)
}

type blockingEventStore struct {
	entered chan struct{}
	release chan struct{}

	mu       sync.Mutex
	counts   int
	replaces int
}

func newBlockingEventStore() *blockingEventStore {
	return &blockingEventStore{
		entered: make(chan struct{}, 4),
		release: make(chan struct{}),
	}
}

func (b *blockingEventStore) CountEventsSince(ctx context.Context, since time.Time) ([]catalog.EventCount, error) {
	b.mu.Lock()
	b.counts++
	b.mu.Unlock()
	b.entered <- struct{}{}

	select {
	case <-b.release:
		return []catalog.EventCount{{BookID: 1, Type: catalog.EventReferralClick, Count: 1}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *blockingEventStore) ReplacePopularityScores(ctx context.Context, scores map[int64]float64, run *catalog.ScoreRun) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replaces++
	return ctx.Err()
}

func (b *blockingEventStore) calls() (counts, replaces int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts, b.replaces
}

type recomputeResult struct {
	run *catalog.ScoreRun
	err error
}

func recomputeAsync(ctx context.Context, s *Scorer) <-chan recomputeResult {
	out := make(chan recomputeResult, 1)
	go func() {
		run, err := s.Recompute(ctx, 0)
		out <- recomputeResult{run: run, err: err}
	}()
	return out
}

func waitResult(t *testing.T, ch <-chan recomputeResult) recomputeResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(time.Second):
		t.Fatal("recompute did not return")
		return recomputeResult{}
	}
}

func TestConcurrentRecomputesShareOneRun(t *testing.T) {
	bs := newBlockingEventStore()
	s := NewScorer(bs, mockClock(), 30)

	first := recomputeAsync(context.Background(), s)
	<-bs.entered
	second := recomputeAsync(context.Background(), s)
	time.Sleep(50 * time.Millisecond)
	close(bs.release)

	a := waitResult(t, first)
	b := waitResult(t, second)
	require.NoError(t, a.err)
	require.NoError(t, b.err)
	assert.Equal(t, a.run.ID, b.run.ID)

	counts, replaces := bs.calls()
	assert.Equal(t, 1, counts)
	assert.Equal(t, 1, replaces)
}

func TestCancelledCallerDoesNotFailSharedRun(t *testing.T) {
	bs := newBlockingEventStore()
	s := NewScorer(bs, mockClock(), 30)

	ctx, cancel := context.WithCancel(context.Background())
	first := recomputeAsync(ctx, s)
	<-bs.entered
	second := recomputeAsync(context.Background(), s)
	time.Sleep(50 * time.Millisecond)

	cancel()
	a := waitResult(t, first)
	assert.ErrorIs(t, a.err, context.Canceled)

	close(bs.release)
	b := waitResult(t, second)
	require.NoError(t, b.err)
	assert.Equal(t, 1, b.run.BooksScored)

	counts, replaces := bs.calls()
	assert.Equal(t, 1, counts)
	assert.Equal(t, 1, replaces)
}
