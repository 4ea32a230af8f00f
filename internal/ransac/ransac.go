// Package ransac implements a minimal RANSAC-wrapped ordinary-least-squares
// regressor for one-dimensional, no-intercept linear fits.
//
// The scale-recovery stage needs exactly what scikit-learn's
// RANSACRegressor(LinearRegression(fit_intercept=False)) provides and
// nothing more; bringing in a general machine-learning dependency for a
// single scalar fit would be the kind of standard-library-shaped
// replacement this module otherwise avoids, except here the "ecosystem
// library" for the job is this thirty-line algorithm, not a package —
// see DESIGN.md.
package ransac

import "math/rand"

// Result is the outcome of a RANSAC-fitted 1D no-intercept regression
// y ~= coef * x.
type Result struct {
	Coef       float64
	InlierMask []bool
	InlierN    int
	OK         bool
}

// Config mirrors sklearn.linear_model.RANSACRegressor's tunables.
type Config struct {
	MinSamples      int
	MaxTrials       int
	StopProbability float64
	ResidualThre    float64
}

// FitNoIntercept fits y = coef*x via RANSAC over ordinary least squares
// (no intercept). x and y must have equal, non-zero length.
func FitNoIntercept(x, y []float64, cfg Config, rng *rand.Rand) Result {
	n := len(x)
	if n == 0 || n != len(y) || cfg.MinSamples <= 0 || cfg.MinSamples > n {
		return Result{}
	}

	bestInliers := 0
	var bestCoef float64
	var bestMask []bool

	for trial := 0; trial < cfg.MaxTrials; trial++ {
		idx := rng.Perm(n)[:cfg.MinSamples]
		coef, ok := olsNoIntercept(subset(x, idx), subset(y, idx))
		if !ok {
			continue
		}

		mask := make([]bool, n)
		count := 0
		for i := 0; i < n; i++ {
			resid := y[i] - coef*x[i]
			if resid < 0 {
				resid = -resid
			}
			if resid <= cfg.ResidualThre {
				mask[i] = true
				count++
			}
		}
		if count > bestInliers {
			bestInliers = count
			bestMask = mask
			bestCoef = coef
		}
		if bestInliers > 0 {
			w := float64(bestInliers) / float64(n)
			if w >= cfg.StopProbability {
				break
			}
		}
	}

	if bestMask == nil {
		return Result{}
	}

	// Refit on the full inlier set, matching sklearn's final re-estimation.
	inlierX := make([]float64, 0, bestInliers)
	inlierY := make([]float64, 0, bestInliers)
	for i, in := range bestMask {
		if in {
			inlierX = append(inlierX, x[i])
			inlierY = append(inlierY, y[i])
		}
	}
	if coef, ok := olsNoIntercept(inlierX, inlierY); ok {
		bestCoef = coef
	}

	return Result{Coef: bestCoef, InlierMask: bestMask, InlierN: bestInliers, OK: true}
}

// olsNoIntercept solves the scalar least-squares problem
// min_coef sum (y_i - coef*x_i)^2, i.e. coef = (x.y) / (x.x).
func olsNoIntercept(x, y []float64) (float64, bool) {
	var xx, xy float64
	for i := range x {
		xx += x[i] * x[i]
		xy += x[i] * y[i]
	}
	if xx < 1e-12 {
		return 0, false
	}
	return xy / xx, true
}

func subset(v []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = v[j]
	}
	return out
}
