package aggregate

import (
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"ephyscore/pkg/ephys"
)

// MeanSEM returns the column mean and standard error of the mean across rows.
// A single row has zero error.
func MeanSEM(m Matrix) (mean, sem []float64, err error) {
	rows, cols := m.Dims()
	if rows == 0 {
		return nil, nil, ephys.NoData("no rows to average")
	}
	if err := m.checkRect("mean"); err != nil {
		return nil, nil, err
	}
	mean = make([]float64, cols)
	sem = make([]float64, cols)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		for i := range m {
			col[i] = m[i][j]
		}
		mu, sd := stat.MeanStdDev(col, nil)
		mean[j] = mu
		if rows > 1 {
			sem[j] = stat.StdErr(sd, float64(rows))
		}
	}
	return mean, sem, nil
}

// UpperBound returns max(mean+sem) over all columns, ignoring NaN.
func UpperBound(mean, sem []float64) float64 {
	top := math.Inf(-1)
	for i := range mean {
		v := mean[i]
		if i < len(sem) {
			v += sem[i]
		}
		if !math.IsNaN(v) && v > top {
			top = v
		}
	}
	return top
}

// Percent returns 100*part/total, or zero for an empty total.
func Percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// ConditionNameFromKeywords returns the sorted condition names that contain
// every keyword. Each matched keyword is removed before checking the next so
// overlapping keywords must appear separately.
func ConditionNameFromKeywords(names []string, keywords ...string) []string {
	var out []string
	for _, name := range names {
		rest := name
		match := true
		for _, k := range keywords {
			if !strings.Contains(rest, k) {
				match = false
				break
			}
			rest = strings.ReplaceAll(rest, k, "")
		}
		if match {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
