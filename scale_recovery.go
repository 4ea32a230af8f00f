package dfvo

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/monovo/dfvo/config"
	"github.com/monovo/dfvo/internal/epipolar"
	"github.com/monovo/dfvo/internal/ransac"
)

// ScaleUnrecoverableSentinel is returned in place of a scale by
// RecoverScale when fewer than minValidDepthPixels survive, or by the
// RANSAC regression itself. Callers must treat it, not a zero or negative
// value, as the only "no scale" signal.
const ScaleUnrecoverableSentinel = -1.0

const minValidDepthPixels = 10

// RecoverScale fits the scalar s that best aligns triangulated reference
// depths (from kpRef/kpCur under ePose) with the reference frame's
// predicted depth. Returns ScaleUnrecoverableSentinel when too few pixels
// have both valid predicted and triangulated depth, or when the RANSAC
// regression itself fails to fit.
func RecoverScale(kpRef, kpCur *mat.Dense, K Intrinsics, ePose SE3, predictedDepth *DepthImage, cfg config.ScaleRansac, rng *rand.Rand) float64 {
	n, _ := kpRef.Dims()
	if n == 0 {
		return ScaleUnrecoverableSentinel
	}

	t21 := ePose.Inv().Mat4()

	triDepth := make([]float64, 0, n)
	predDepth := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		refPt := epipolar.Point2{X: kpRef.At(i, 0), Y: kpRef.At(i, 1)}
		curPt := epipolar.Point2{X: kpCur.At(i, 0), Y: kpCur.At(i, 1)}
		nxRef, nyRef := K.NormalizePoint(refPt.X, refPt.Y)
		nxCur, nyCur := K.NormalizePoint(curPt.X, curPt.Y)

		Xref, _, ok := epipolar.TriangulatePoint(
			epipolar.Point2{X: nxRef, Y: nyRef},
			epipolar.Point2{X: nxCur, Y: nyCur},
			t21,
		)
		if !ok {
			continue
		}
		z := Xref.Z
		if z < 0 {
			z = 0
		}

		u, v := int(refPt.X), int(refPt.Y)
		if u < 0 || v < 0 || u >= predictedDepth.W || v >= predictedDepth.H {
			continue
		}
		pd := predictedDepth.At(u, v)
		if pd <= 0 || z <= 0 {
			continue
		}
		triDepth = append(triDepth, z)
		predDepth = append(predDepth, pd)
	}

	if len(triDepth) < minValidDepthPixels {
		return ScaleUnrecoverableSentinel
	}

	var x, y []float64
	switch cfg.Method {
	case config.ScaleRansacAbsDiff:
		// regress D_pred ~ D_tri
		x, y = triDepth, predDepth
	default: // depth_ratio
		// regress ones ~ (D_tri / D_pred)
		x = make([]float64, len(triDepth))
		y = make([]float64, len(triDepth))
		for i := range triDepth {
			x[i] = triDepth[i] / predDepth[i]
			y[i] = 1
		}
	}

	result := ransac.FitNoIntercept(x, y, ransac.Config{
		MinSamples:      cfg.MinSamples,
		MaxTrials:       cfg.MaxTrials,
		StopProbability: cfg.StopProb,
		ResidualThre:    cfg.Thre,
	}, rng)
	if !result.OK || result.Coef <= 0 || math.IsNaN(result.Coef) {
		return ScaleUnrecoverableSentinel
	}
	return result.Coef
}

// IterativeScaleConfig bundles the parameters of the iterative
// re-sampling loop (§4.5 "Iterative mode").
type IterativeScaleConfig struct {
	MaxIterations int
	ConvergeDelta float64
}

// DefaultIterativeScaleConfig matches the source's "up to 5 iterations,
// terminate when |Δs| < 1e-3" default.
func DefaultIterativeScaleConfig() IterativeScaleConfig {
	return IterativeScaleConfig{MaxIterations: 5, ConvergeDelta: 1e-3}
}

// ResampleFunc re-derives kp_depth correspondences under a provisional
// pose, as the iterative scale loop needs to refresh keypoints after each
// scale update (delegates to the keypoint sampler and depth-consistency
// check, which the orchestrator owns).
type ResampleFunc func(provisional SE3) (kpRef, kpCur *mat.Dense)

// RecoverScaleIterative runs the iterative re-sampling loop: seed s from
// initialScale (the previous frame's accepted scale, or 1 if none),
// re-triangulate and re-fit under the rescaled pose until |Δs| converges
// or the iteration budget is exhausted.
func RecoverScaleIterative(ePose SE3, K Intrinsics, predictedDepth *DepthImage,
	resample ResampleFunc, initialScale float64, cfg config.ScaleRansac, iter IterativeScaleConfig, rng *rand.Rand) float64 {

	s := initialScale
	if s <= 0 {
		s = 1
	}

	for i := 0; i < iter.MaxIterations; i++ {
		tmp := ePose
		tmp.T = mat.DenseCopyOf(ePose.T)
		tmp.T.Scale(s, tmp.T)

		kpRef, kpCur := resample(tmp)
		next := RecoverScale(kpRef, kpCur, K, ePose, predictedDepth, cfg, rng)
		if next == ScaleUnrecoverableSentinel {
			return ScaleUnrecoverableSentinel
		}
		if math.Abs(next-s) < iter.ConvergeDelta {
			return next
		}
		s = next
	}
	return s
}
