package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/elonfeng/shelfradar/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)

func setupTestStore(t *testing.T) *SQLStore {
	t.Helper()

	s, err := New(DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	s.now = func() time.Time { return testNow }

	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func createBook(t *testing.T, s *SQLStore, id, authorID int64, score float64) {
	t.Helper()
	require.NoError(t, s.CreateBook(context.Background(), &catalog.Book{
		ID:              id,
		Title:           "Book",
		AuthorID:        authorID,
		PopularityScore: score,
	}))
}

func createTaxonomy(t *testing.T, s *SQLStore, id int64, typ catalog.TaxonomyType) {
	t.Helper()
	tx := &catalog.Taxonomy{ID: id, Name: "Taxonomy", Type: typ}
	if typ == catalog.TaxonomySubgenre {
		parent := int64(1)
		tx.ParentID = &parent
	}
	require.NoError(t, s.CreateTaxonomy(context.Background(), tx))
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New("mysql", "")
	assert.Error(t, err)
}

func TestAssignTaxonomyKeepsRanksDense(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	createBook(t, s, 1, 0, 0)
	createTaxonomy(t, s, 10, catalog.TaxonomyTheme)
	createTaxonomy(t, s, 11, catalog.TaxonomyTheme)
	createTaxonomy(t, s, 12, catalog.TaxonomyTheme)
	createTaxonomy(t, s, 20, catalog.TaxonomyTrope)

	require.NoError(t, s.AssignTaxonomy(ctx, 1, 10, 1))
	require.NoError(t, s.AssignTaxonomy(ctx, 1, 11, 0))
	require.NoError(t, s.AssignTaxonomy(ctx, 1, 12, 1))
	require.NoError(t, s.AssignTaxonomy(ctx, 1, 20, 1))

	got, err := s.ListAssignments(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 4)

	themes := got[:3]
	assert.Equal(t, []int64{12, 10, 11}, []int64{themes[0].TaxonomyID, themes[1].TaxonomyID, themes[2].TaxonomyID})
	for i, a := range themes {
		assert.Equal(t, i+1, a.Rank)
		assert.InDelta(t, catalog.Importance(i+1), a.Importance, 1e-12)
		assert.Equal(t, catalog.TaxonomyTheme, a.TaxonomyType)
	}

	trope := got[3]
	assert.Equal(t, int64(20), trope.TaxonomyID)
	assert.Equal(t, 1, trope.Rank)
	assert.Equal(t, 1.0, trope.Importance)

	require.NoError(t, s.RemoveAssignment(ctx, 1, 12))
	got, err = s.ListAssignments(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(10), got[0].TaxonomyID)
	assert.Equal(t, 1, got[0].Rank)
	assert.Equal(t, 1.0, got[0].Importance)
	assert.Equal(t, int64(11), got[1].TaxonomyID)
	assert.Equal(t, 2, got[1].Rank)

	assert.ErrorIs(t, s.RemoveAssignment(ctx, 1, 12), ErrNotFound)
	assert.ErrorIs(t, s.AssignTaxonomy(ctx, 1, 999, 1), ErrNotFound)
}

func TestAssignTaxonomyMovesExisting(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	createBook(t, s, 1, 0, 0)
	for _, id := range []int64{10, 11, 12} {
		createTaxonomy(t, s, id, catalog.TaxonomyTrope)
		require.NoError(t, s.AssignTaxonomy(ctx, 1, id, 0))
	}

	require.NoError(t, s.AssignTaxonomy(ctx, 1, 12, 1))

	got, err := s.ListAssignments(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(12), got[0].TaxonomyID)
	assert.Equal(t, int64(10), got[1].TaxonomyID)
	assert.Equal(t, int64(11), got[2].TaxonomyID)
	assert.Equal(t, 3, got[2].Rank)
}

func TestRecomputeImportance(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	createBook(t, s, 1, 0, 0)
	createTaxonomy(t, s, 10, catalog.TaxonomyTheme)
	createTaxonomy(t, s, 11, catalog.TaxonomyTheme)
	require.NoError(t, s.AssignTaxonomy(ctx, 1, 10, 1))
	require.NoError(t, s.AssignTaxonomy(ctx, 1, 11, 2))

	n, err := s.RecomputeImportance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = s.exec(ctx, "UPDATE book_taxonomies SET importance = 0.9 WHERE taxonomy_id = ?", 11)
	require.NoError(t, err)

	n, err = s.RecomputeImportance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.ListAssignments(ctx, 1)
	require.NoError(t, err)
	assert.InDelta(t, catalog.Importance(2), got[1].Importance, 1e-12)
}

func TestSoftDeletedTaxonomyIsIgnored(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	createBook(t, s, 1, 0, 0)
	createBook(t, s, 2, 0, 0)
	createTaxonomy(t, s, 5, catalog.TaxonomyTheme)
	createTaxonomy(t, s, 9, catalog.TaxonomyTheme)
	require.NoError(t, s.AssignTaxonomy(ctx, 1, 5, 1))
	require.NoError(t, s.AssignTaxonomy(ctx, 2, 9, 1))

	v := &catalog.View{Name: "Cozy", Slug: "cozy"}
	require.NoError(t, s.CreateView(ctx, v))
	require.NoError(t, s.AddViewTaxonomy(ctx, v.ID, 5, 1))
	require.NoError(t, s.AddViewTaxonomy(ctx, v.ID, 9, 2))

	require.NoError(t, s.SoftDeleteTaxonomy(ctx, 9))
	assert.ErrorIs(t, s.SoftDeleteTaxonomy(ctx, 9), ErrNotFound)

	_, err := s.GetTaxonomy(ctx, 9)
	assert.ErrorIs(t, err, ErrNotFound)

	ids, err := s.ViewTaxonomyIDs(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, ids)

	books, err := s.BookIDsForTaxonomies(ctx, []int64{5, 9})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, books)

	assignments, err := s.ListAssignments(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, assignments)

	taxonomies, err := s.ListTaxonomies(ctx)
	require.NoError(t, err)
	require.Len(t, taxonomies, 1)
	assert.Equal(t, int64(5), taxonomies[0].ID)
}

func TestViewTaxonomyOrdering(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3, 4} {
		createTaxonomy(t, s, id, catalog.TaxonomyTrope)
	}
	v := &catalog.View{Name: "Spooky", Slug: "spooky", Rank: 2}
	require.NoError(t, s.CreateView(ctx, v))
	require.NoError(t, s.AddViewTaxonomy(ctx, v.ID, 3, 2))
	require.NoError(t, s.AddViewTaxonomy(ctx, v.ID, 1, 1))
	require.NoError(t, s.AddViewTaxonomy(ctx, v.ID, 4, 2))
	require.NoError(t, s.AddViewTaxonomy(ctx, v.ID, 2, 1))

	ids, err := s.ViewTaxonomyIDs(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, ids)

	none, err := s.ViewTaxonomyIDs(ctx, 999)
	require.NoError(t, err)
	assert.Empty(t, none)

	got, err := s.GetViewBySlug(ctx, "spooky")
	require.NoError(t, err)
	assert.Equal(t, v.ID, got.ID)
	assert.Equal(t, 2, got.Rank)

	_, err = s.GetViewBySlug(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	first := &catalog.View{Name: "Featured", Slug: "featured", Rank: 1, IsDefault: true}
	require.NoError(t, s.CreateView(ctx, first))
	views, err := s.ListViews(ctx)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "featured", views[0].Slug)
	assert.True(t, views[0].IsDefault)
}

func TestBlocks(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	b := &catalog.Block{UserID: 7, Type: catalog.BlockAuthor, BlockID: 2, BlockName: "Someone"}
	require.NoError(t, s.AddBlock(ctx, b))
	require.NoError(t, s.AddBlock(ctx, b))
	require.NoError(t, s.AddBlock(ctx, &catalog.Block{UserID: 7, Type: catalog.BlockTaxonomy, BlockID: 9}))
	require.NoError(t, s.AddBlock(ctx, &catalog.Block{UserID: 8, Type: catalog.BlockBook, BlockID: 1}))

	blocks, err := s.ListBlocks(ctx, 7)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, catalog.BlockAuthor, blocks[0].Type)
	assert.Equal(t, "Someone", blocks[0].BlockName)

	assert.Error(t, s.AddBlock(ctx, &catalog.Block{UserID: 7, Type: "series", BlockID: 1}))

	require.NoError(t, s.RemoveBlock(ctx, 7, catalog.BlockAuthor, 2))
	assert.ErrorIs(t, s.RemoveBlock(ctx, 7, catalog.BlockAuthor, 2), ErrNotFound)

	blocks, err = s.ListBlocks(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, blocks, 1)

	blocks, err = s.ListBlocks(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, blocks)
}

func TestRecordEventUpdatesCounters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	createBook(t, s, 1, 0, 0)

	for _, typ := range []catalog.EventType{
		catalog.EventImpression,
		catalog.EventView,
		catalog.EventHover,
		catalog.EventCardClick,
	} {
		e := &catalog.Event{BookID: 1, UserID: 3, Type: typ}
		require.NoError(t, s.RecordEvent(ctx, e))
		assert.NotZero(t, e.ID)
		assert.Equal(t, catalog.EventWeight(typ), e.Weight)
		assert.True(t, e.OccurredAt.Equal(testNow))
	}

	b, err := s.GetBook(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.ImpressionCount)
	assert.Equal(t, int64(1), b.ClickThroughCount)
	require.NotNil(t, b.LastImpressionAt)
	require.NotNil(t, b.LastClickThroughAt)
	assert.True(t, b.LastClickThroughAt.Equal(testNow))

	err = s.RecordEvent(ctx, &catalog.Event{BookID: 404, Type: catalog.EventHover})
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.RecordEvent(ctx, &catalog.Event{BookID: 1, Type: "share"})
	assert.Error(t, err)
}

func TestCountEventsSince(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	createBook(t, s, 1, 0, 0)
	createBook(t, s, 2, 0, 0)

	old := testNow.AddDate(0, 0, -40)
	events := []catalog.Event{
		{BookID: 1, Type: catalog.EventCardClick, OccurredAt: testNow.Add(-time.Hour)},
		{BookID: 1, Type: catalog.EventCardClick, OccurredAt: testNow.Add(-2 * time.Hour)},
		{BookID: 1, Type: catalog.EventHover, OccurredAt: testNow.Add(-3 * time.Hour)},
		{BookID: 2, Type: catalog.EventReferralClick, OccurredAt: old},
	}
	for i := range events {
		require.NoError(t, s.RecordEvent(ctx, &events[i]))
	}

	counts, err := s.CountEventsSince(ctx, testNow.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, []catalog.EventCount{
		{BookID: 1, Type: catalog.EventCardClick, Count: 2},
		{BookID: 1, Type: catalog.EventHover, Count: 1},
	}, counts)
}

func TestReplacePopularityScores(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	createBook(t, s, 1, 0, 5)
	createBook(t, s, 2, 0, 7)
	createBook(t, s, 3, 0, 1)

	_, err := s.LatestScoreRun(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	run := &catalog.ScoreRun{
		ID:          "run-1",
		WindowDays:  30,
		BooksScored: 2,
		StartedAt:   testNow,
		FinishedAt:  testNow.Add(time.Second),
	}
	require.NoError(t, s.ReplacePopularityScores(ctx, map[int64]float64{1: 3.0, 3: 0.75}, run))

	books, err := s.ListPopularBooks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, books, 3)
	assert.Equal(t, int64(1), books[0].ID)
	assert.Equal(t, 3.0, books[0].PopularityScore)
	assert.Equal(t, int64(3), books[1].ID)
	assert.Equal(t, 0.75, books[1].PopularityScore)
	assert.Equal(t, int64(2), books[2].ID)
	assert.Equal(t, 0.0, books[2].PopularityScore)
	require.NotNil(t, books[2].ScoredAt)

	latest, err := s.LatestScoreRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1", latest.ID)
	assert.Equal(t, 2, latest.BooksScored)

	ranked, err := s.RankBookIDs(ctx, []int64{2, 3, 1}, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ranked)
}

func TestGetBooksKeepsOrder(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	createBook(t, s, 1, 0, 0)
	createBook(t, s, 2, 0, 0)

	books, err := s.GetBooks(ctx, []int64{2, 404, 1})
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, int64(2), books[0].ID)
	assert.Equal(t, int64(1), books[1].ID)

	_, err = s.GetBook(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuthorsContractedTo(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	pub, err := s.CreatePublisher(ctx, "Harbor House")
	require.NoError(t, err)
	other, err := s.CreatePublisher(ctx, "Quill")
	require.NoError(t, err)

	current, err := s.CreateAuthor(ctx, "Current")
	require.NoError(t, err)
	ended, err := s.CreateAuthor(ctx, "Ended")
	require.NoError(t, err)
	future, err := s.CreateAuthor(ctx, "Future")
	require.NoError(t, err)
	elsewhere, err := s.CreateAuthor(ctx, "Elsewhere")
	require.NoError(t, err)

	endedAt := testNow.AddDate(0, -1, 0)
	contracts := []catalog.AuthorshipContract{
		{AuthorID: current, PublisherID: pub, StartsAt: testNow.AddDate(-1, 0, 0)},
		{AuthorID: ended, PublisherID: pub, StartsAt: testNow.AddDate(-2, 0, 0), EndsAt: &endedAt},
		{AuthorID: future, PublisherID: pub, StartsAt: testNow.AddDate(0, 1, 0)},
		{AuthorID: elsewhere, PublisherID: other, StartsAt: testNow.AddDate(-1, 0, 0)},
	}
	for i := range contracts {
		require.NoError(t, s.AddContract(ctx, &contracts[i]))
		assert.NotZero(t, contracts[i].ID)
	}

	got, err := s.AuthorsContractedTo(ctx, []int64{current, ended, future, elsewhere}, []int64{pub}, testNow)
	require.NoError(t, err)
	assert.Equal(t, []int64{current}, got)

	got, err = s.AuthorsContractedTo(ctx, []int64{current}, nil, testNow)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAuthorsContractedToBoundaries(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	pub, err := s.CreatePublisher(ctx, "Harbor House")
	require.NoError(t, err)
	startsNow, err := s.CreateAuthor(ctx, "Starts Now")
	require.NoError(t, err)
	endsNow, err := s.CreateAuthor(ctx, "Ends Now")
	require.NoError(t, err)

	end := testNow
	require.NoError(t, s.AddContract(ctx, &catalog.AuthorshipContract{
		AuthorID: startsNow, PublisherID: pub, StartsAt: testNow,
	}))
	require.NoError(t, s.AddContract(ctx, &catalog.AuthorshipContract{
		AuthorID: endsNow, PublisherID: pub, StartsAt: testNow.AddDate(-1, 0, 0), EndsAt: &end,
	}))

	got, err := s.AuthorsContractedTo(ctx, []int64{startsNow, endsNow}, []int64{pub}, testNow)
	require.NoError(t, err)
	assert.Equal(t, []int64{startsNow}, got)

	got, err = s.AuthorsContractedTo(ctx, []int64{startsNow, endsNow}, []int64{pub}, testNow.Add(-time.Second))
	require.NoError(t, err)
	assert.Equal(t, []int64{endsNow}, got)
}

func TestExplicitIDsDoNotCollideWithGenerated(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateBook(ctx, &catalog.Book{ID: 500, Title: "Seeded"}))
	next := &catalog.Book{Title: "Generated"}
	require.NoError(t, s.CreateBook(ctx, next))
	assert.Greater(t, next.ID, int64(500))

	require.NoError(t, s.CreateTaxonomy(ctx, &catalog.Taxonomy{ID: 90, Name: "Seeded", Type: catalog.TaxonomyTheme}))
	tax := &catalog.Taxonomy{Name: "Generated", Type: catalog.TaxonomyTheme}
	require.NoError(t, s.CreateTaxonomy(ctx, tax))
	assert.Greater(t, tax.ID, int64(90))
}

func TestIdentityResetQuery(t *testing.T) {
	assert.Equal(t,
		"SELECT setval(pg_get_serial_sequence('books', 'id'), (SELECT MAX(id) FROM books))",
		identityResetQuery("books"))
}

func TestBackfillPoolExcludesBlocked(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	pub, err := s.CreatePublisher(ctx, "Harbor House")
	require.NoError(t, err)
	require.NoError(t, s.AddContract(ctx, &catalog.AuthorshipContract{
		AuthorID: 30, PublisherID: pub, StartsAt: testNow.AddDate(-1, 0, 0),
	}))

	createTaxonomy(t, s, 5, catalog.TaxonomyTheme)
	createTaxonomy(t, s, 9, catalog.TaxonomyTheme)
	createTaxonomy(t, s, 77, catalog.TaxonomyTheme)

	books := []struct {
		id, author int64
		score      float64
		taxonomies []int64
	}{
		{1, 10, 9.0, []int64{5}},
		{2, 20, 8.0, []int64{5}},
		{3, 30, 7.0, []int64{5}},
		{4, 40, 6.0, []int64{5, 9}},
		{5, 50, 5.0, []int64{5}},
		{6, 60, 4.0, []int64{5}},
		{7, 70, 3.0, []int64{77}},
	}
	for _, b := range books {
		createBook(t, s, b.id, b.author, b.score)
		for _, tx := range b.taxonomies {
			require.NoError(t, s.AssignTaxonomy(ctx, b.id, tx, 0))
		}
	}

	bs := catalog.NewBlockSet([]catalog.Block{
		{Type: catalog.BlockAuthor, BlockID: 20},
		{Type: catalog.BlockPublisher, BlockID: pub},
		{Type: catalog.BlockTaxonomy, BlockID: 9},
		{Type: catalog.BlockBook, BlockID: 6},
	})

	pool, err := s.BackfillPool(ctx, BackfillQuery{
		TaxonomyIDs: []int64{5, 9},
		Exclude:     []int64{1},
		Blocks:      bs,
		At:          testNow,
		Limit:       10,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, pool)

	pool, err = s.BackfillPool(ctx, BackfillQuery{
		TaxonomyIDs: []int64{5},
		Blocks:      catalog.NewBlockSet(nil),
		At:          testNow,
		Limit:       3,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, pool)
}
