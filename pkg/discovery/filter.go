package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/elonfeng/shelfradar/internal/logging"
	"github.com/elonfeng/shelfradar/internal/metrics"
	"github.com/elonfeng/shelfradar/internal/store"
	"github.com/elonfeng/shelfradar/pkg/catalog"
	"github.com/rs/zerolog"
)

// BlockSource is the slice of the store the filter reads.
type BlockSource interface {
	ListBlocks(ctx context.Context, userID int64) ([]catalog.Block, error)
	BooksTaggedWith(ctx context.Context, bookIDs, taxonomyIDs []int64) ([]int64, error)
	BookAuthors(ctx context.Context, bookIDs []int64) (map[int64]int64, error)
	AuthorsContractedTo(ctx context.Context, authorIDs, publisherIDs []int64, at time.Time) ([]int64, error)
	BackfillPool(ctx context.Context, q store.BackfillQuery) ([]int64, error)
}

// FillRequest is the input of FilterAndFill.
type FillRequest struct {
	// Candidates in the order they should be returned.
	Candidates []int64
	// TaxonomyIDs the candidates were resolved from; backfill draws from the
	// same set. Empty disables backfill.
	TaxonomyIDs []int64
	// UserID whose blocks apply. Zero means anonymous.
	UserID int64
	Target int
}

// FilterOptions tunes the backfill loop.
type FilterOptions struct {
	// BackfillPasses bounds the number of backfill queries per request.
	BackfillPasses int
	// Overfetch multiplies the shortfall to size each backfill query.
	Overfetch int
	Clock     clock.Clock
}

// Filter removes blocked books from a candidate list and backfills the
// shortfall from the same taxonomy set.
type Filter struct {
	src       BlockSource
	passes    int
	overfetch int
	clock     clock.Clock
	log       zerolog.Logger
}

// NewFilter creates a content filter.
func NewFilter(src BlockSource, opts FilterOptions) *Filter {
	if opts.BackfillPasses <= 0 {
		opts.BackfillPasses = 3
	}
	if opts.Overfetch <= 0 {
		opts.Overfetch = 2
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Filter{
		src:       src,
		passes:    opts.BackfillPasses,
		overfetch: opts.Overfetch,
		clock:     opts.Clock,
		log:       logging.With().Str("component", "filter").Logger(),
	}
}

// FilterAndFill returns at most req.Target book ids with every book blocked
// for req.UserID removed. When filtering leaves fewer than req.Target books it
// backfills from req.TaxonomyIDs, never returning a blocked book. A short
// result is not an error; any storage failure fails the whole call.
func (f *Filter) FilterAndFill(ctx context.Context, req FillRequest) ([]int64, error) {
	if req.Target <= 0 {
		return []int64{}, nil
	}
	candidates := dedupe(req.Candidates)

	if req.UserID == 0 {
		return head(candidates, req.Target), nil
	}

	blocks, err := f.src.ListBlocks(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load blocks for user %d: %w", req.UserID, err)
	}
	bs := catalog.NewBlockSet(blocks)
	if bs.Empty() {
		return head(candidates, req.Target), nil
	}

	at := f.clock.Now()
	blocked, err := f.blocked(ctx, candidates, bs, at)
	if err != nil {
		return nil, err
	}

	out := make([]int64, 0, req.Target)
	for _, id := range candidates {
		if !blocked.Has(id) {
			out = append(out, id)
		}
	}
	if len(out) >= req.Target {
		return out[:req.Target], nil
	}

	out, err = f.backfill(ctx, req, bs, at, candidates, out)
	if err != nil {
		return nil, err
	}
	if len(out) < req.Target {
		metrics.DiscoveryUnderfilled.Inc()
	}
	return out, nil
}

// backfill runs at most f.passes bounded queries. It stops early once the
// target is met, the pool is exhausted, or a pass adds nothing.
func (f *Filter) backfill(ctx context.Context, req FillRequest, bs catalog.BlockSet, at time.Time, candidates, out []int64) ([]int64, error) {
	if len(req.TaxonomyIDs) == 0 {
		return out, nil
	}

	seen := catalog.NewIDSet(candidates...)
	for pass := 0; pass < f.passes && len(out) < req.Target; pass++ {
		limit := (req.Target - len(out)) * f.overfetch
		pool, err := f.src.BackfillPool(ctx, store.BackfillQuery{
			TaxonomyIDs: req.TaxonomyIDs,
			Exclude:     seen.Slice(),
			Blocks:      bs,
			At:          at,
			Limit:       limit,
		})
		if err != nil {
			return nil, fmt.Errorf("backfill pass %d: %w", pass+1, err)
		}
		metrics.BackfillPasses.Inc()
		if len(pool) == 0 {
			break
		}
		seen.Add(pool...)

		blocked, err := f.blocked(ctx, pool, bs, at)
		if err != nil {
			return nil, err
		}

		added := 0
		for _, id := range pool {
			if len(out) == req.Target {
				break
			}
			if blocked.Has(id) {
				continue
			}
			out = append(out, id)
			added++
		}

		f.log.Debug().
			Int64("user_id", req.UserID).
			Int("pass", pass+1).
			Int("pool", len(pool)).
			Int("added", added).
			Msg("backfill pass")

		if added == 0 || len(pool) < limit {
			break
		}
	}
	return out, nil
}

// blocked derives which of ids are excluded by bs. Dimensions are checked in
// a fixed order (taxonomy, book, author, publisher); a book matching several
// rules is excluded once.
func (f *Filter) blocked(ctx context.Context, ids []int64, bs catalog.BlockSet, at time.Time) (catalog.IDSet, error) {
	blocked := catalog.NewIDSet()
	if len(ids) == 0 {
		return blocked, nil
	}

	mark := func(dim string, id int64) {
		if blocked.Has(id) {
			return
		}
		blocked.Add(id)
		metrics.BlockedCandidates.WithLabelValues(dim).Inc()
	}

	if len(bs.Taxonomies) > 0 {
		tagged, err := f.src.BooksTaggedWith(ctx, ids, bs.Taxonomies.Slice())
		if err != nil {
			return nil, fmt.Errorf("derive taxonomy blocks: %w", err)
		}
		for _, id := range tagged {
			mark(string(catalog.BlockTaxonomy), id)
		}
	}

	for _, id := range ids {
		if bs.Books.Has(id) {
			mark(string(catalog.BlockBook), id)
		}
	}

	if len(bs.Authors) == 0 && len(bs.Publishers) == 0 {
		return blocked, nil
	}

	authors, err := f.src.BookAuthors(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("derive author blocks: %w", err)
	}

	for _, id := range ids {
		if author, ok := authors[id]; ok && bs.Authors.Has(author) {
			mark(string(catalog.BlockAuthor), id)
		}
	}

	if len(bs.Publishers) == 0 {
		return blocked, nil
	}

	authorSet := catalog.NewIDSet()
	for _, author := range authors {
		authorSet.Add(author)
	}
	contracted, err := f.src.AuthorsContractedTo(ctx, authorSet.Slice(), bs.Publishers.Slice(), at)
	if err != nil {
		return nil, fmt.Errorf("derive publisher blocks: %w", err)
	}
	underBlocked := catalog.NewIDSet(contracted...)
	for _, id := range ids {
		if author, ok := authors[id]; ok && underBlocked.Has(author) {
			mark(string(catalog.BlockPublisher), id)
		}
	}

	return blocked, nil
}

func head(ids []int64, n int) []int64 {
	if len(ids) > n {
		ids = ids[:n]
	}
	out := make([]int64, len(ids))
	copy(out, ids)
	return out
}
