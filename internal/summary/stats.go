package summary

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"testcasegpt/internal/models"
)

// describe computes count, mean, sample standard deviation, min, quartiles
// and max over the non-missing values of a numeric column.
func describe(values []float64) models.ColumnStats {
	nan := math.NaN()
	n := len(values)
	if n == 0 {
		return models.ColumnStats{Count: 0, Mean: nan, Std: nan, Min: nan, P25: nan, P50: nan, P75: nan, Max: nan}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mean := stat.Mean(sorted, nil)
	std := nan
	if n > 1 {
		std = stat.StdDev(sorted, nil)
	}
	return models.ColumnStats{
		Count: float64(n),
		Mean:  mean,
		Std:   std,
		Min:   sorted[0],
		P25:   quantile(sorted, 0.25),
		P50:   quantile(sorted, 0.50),
		P75:   quantile(sorted, 0.75),
		Max:   sorted[n-1],
	}
}

// quantile interpolates linearly between the two closest ranks of sorted,
// the (n-1)p positioning used by spreadsheet and dataframe tools.
// gonum's stat.Quantile only offers the empirical and LinInterp (R type 4)
// estimators, which disagree on small samples.
func quantile(sorted []float64, p float64) float64 {
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
