package similarity

import (
	"math"

	"github.com/sells-group/comps/internal/model"
)

// Result is the aggregate similarity of one (seed, candidate) pair.
type Result struct {
	Score               float64          `json:"score"`      // 0-100
	Confidence          float64          `json:"confidence"` // 0-1
	CategoriesWithScore int              `json:"categories_with_score"`
	Notes               []string         `json:"notes"`
	Dimensions          []DimensionScore `json:"dimensions"`
}

// Aggregate sums dimension points into a clamped 0-100 score. Confidence
// is the mean over dimensions that awarded points; dimensions without
// comparable data are excluded rather than counted as zero.
func Aggregate(scores []DimensionScore) Result {
	res := Result{Dimensions: scores}

	var total, confSum float64
	for _, ds := range scores {
		if !ds.Contributed() {
			continue
		}
		total += ds.Points
		confSum += ds.Confidence
		res.CategoriesWithScore++
		res.Notes = append(res.Notes, ds.Notes...)
	}

	if res.CategoriesWithScore == 0 {
		return res
	}

	res.Score = round2(math.Max(0, math.Min(100, total)))
	res.Confidence = confSum / float64(res.CategoriesWithScore)
	return res
}

// Compare scores a candidate against a seed under the given weights.
func Compare(seed, cand *model.Company, w WeightTable) Result {
	return Aggregate(ScorePair(seed, cand, w))
}
