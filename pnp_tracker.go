package dfvo

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/monovo/dfvo/internal/epipolar"
)

// PnpTrackerConfig controls the PnP fallback's RANSAC tunables.
type PnpTrackerConfig struct {
	ReprojThre float64
	MaxTrials  int
}

// PnpTracker recovers a relative pose from 2D-3D correspondences, used as
// a fallback when the Essential tracker's translation collapses or scale
// recovery returns its unrecoverable sentinel.
type PnpTracker struct {
	K   Intrinsics
	Cfg PnpTrackerConfig
}

// NewPnpTracker constructs a PnP fallback tracker for a fixed camera.
func NewPnpTracker(K Intrinsics, cfg PnpTrackerConfig) *PnpTracker {
	return &PnpTracker{K: K, Cfg: cfg}
}

// ComputePose3D2D lifts kpRef into 3D via depthRef and K^-1, then solves
// T_ref->cur against kpCur via PnP+RANSAC. Points with missing reference
// depth are excluded before the solve. The returned SE3 encodes the
// transform from reference to current view, the inverse of the current ->
// reference orientation of EssentialTracker's pose; the engine inverts it
// before using it as hybrid_pose.
func (t *PnpTracker) ComputePose3D2D(kpRef, kpCur *mat.Dense, depthRef *DepthImage, rng *rand.Rand) (SE3, []bool, error) {
	n, _ := kpRef.Dims()
	pts3D := make([]epipolar.Point3, 0, n)
	pts2D := make([]epipolar.Point2, 0, n)
	kept := make([]int, 0, n)

	for i := 0; i < n; i++ {
		u, v := kpRef.At(i, 0), kpRef.At(i, 1)
		ui, vi := int(u), int(v)
		if ui < 0 || vi < 0 || ui >= depthRef.W || vi >= depthRef.H {
			continue
		}
		d := depthRef.At(ui, vi)
		if d <= 0 {
			continue
		}
		nx, ny := t.K.NormalizePoint(u, v)
		pts3D = append(pts3D, epipolar.Point3{X: nx * d, Y: ny * d, Z: d})
		cx, cy := t.K.NormalizePoint(kpCur.At(i, 0), kpCur.At(i, 1))
		pts2D = append(pts2D, epipolar.Point2{X: cx, Y: cy})
		kept = append(kept, i)
	}

	if len(pts3D) < 6 {
		return Identity(), nil, newTrackingError("pnp_tracker", InsufficientKeypoints, nil)
	}

	R, tr, inliersKept, ok := epipolar.RansacPnP(pts3D, pts2D, t.Cfg.ReprojThre, t.Cfg.MaxTrials, rng)
	if !ok {
		return Identity(), nil, newTrackingError("pnp_tracker", DegenerateGeometry, nil)
	}

	inliers := make([]bool, n)
	for i, idx := range kept {
		inliers[idx] = inliersKept[i]
	}

	pose := FromMat4(epipolar.PoseToTransform(R, tr))
	return pose, inliers, nil
}
