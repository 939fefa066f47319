package popularity

import "github.com/elonfeng/shelfradar/pkg/catalog"

// Score sums count x weight per book using the fixed event weight table.
// Books whose events all weigh zero are left out.
func Score(counts []catalog.EventCount) map[int64]float64 {
	scores := make(map[int64]float64)
	for _, c := range counts {
		w := catalog.EventWeight(c.Type)
		if w == 0 || c.Count <= 0 {
			continue
		}
		scores[c.BookID] += float64(c.Count) * w
	}
	return scores
}
