package catalog

import "math"

// Importance maps an assignment rank to a weight in (0, 1].
// Rank 1 is exactly 1; every later rank decays as 1/(1+ln(rank)).
// Ranks below 1 are treated as 1.
func Importance(rank int) float64 {
	if rank <= 1 {
		return 1
	}
	return 1 / (1 + math.Log(float64(rank)))
}
