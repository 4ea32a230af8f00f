package dfvo

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/monovo/dfvo/config"
)

// synthetic3DPoints returns a small, non-degenerate set of points spread
// across depth and the image plane, in the reference camera frame.
func synthetic3DPoints() []Point3 {
	pts := make([]Point3, 0, 24)
	for _, z := range []float64{4, 6, 8, 10} {
		for _, x := range []float64{-2, -0.5, 0.5, 2} {
			for _, y := range []float64{-1, 1} {
				pts = append(pts, Point3{X: x, Y: y, Z: z})
			}
		}
	}
	return pts
}

func projectToKp(pts []Point3, k Intrinsics, pose SE3) *mat.Dense {
	n := len(pts)
	out := mat.NewDense(n, 2, nil)
	for i, p := range pts {
		x := pose.R.At(0, 0)*p.X + pose.R.At(0, 1)*p.Y + pose.R.At(0, 2)*p.Z + pose.T.At(0, 0)
		y := pose.R.At(1, 0)*p.X + pose.R.At(1, 1)*p.Y + pose.R.At(1, 2)*p.Z + pose.T.At(1, 0)
		z := pose.R.At(2, 0)*p.X + pose.R.At(2, 1)*p.Y + pose.R.At(2, 2)*p.Z + pose.T.At(2, 0)
		out.Set(i, 0, k.Fx*x/z+k.Cx)
		out.Set(i, 1, k.Fy*y/z+k.Cy)
	}
	return out
}

func defaultTestCompute2D2DCfg() config.Compute2D2DPose {
	return config.Compute2D2DPose{
		Validity: config.Validity{Method: config.ValidityFlow, Thre: 1.0},
		Ransac:   config.Ransac2D2D{Repeat: 9, ReprojThre: 0.01},
	}
}

func TestComputePose2D2DPureTranslation(t *testing.T) {
	k := Intrinsics{Fx: 500, Fy: 500, Cx: 320, Cy: 240}
	pts := synthetic3DPoints()

	// camera moves +0.5m along X between ref and cur; a world point
	// expressed in the reference frame appears in the current frame
	// shifted by -real_t.
	realT := mat.NewDense(3, 1, []float64{0.5, 0, 0})
	curFromRef := SE3{R: mat.DenseCopyOf(identityR()), T: negate3(realT)}

	kpRef := projectToKp(pts, k, Identity())
	kpCur := projectToKp(pts, k, curFromRef)

	tracker := NewEssentialTracker(k, defaultTestCompute2D2DCfg())
	pose, inliers, err := tracker.ComputePose2D2D(kpRef, kpCur, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("ComputePose2D2D: %v", err)
	}
	if countTrue(inliers) < len(pts)/2 {
		t.Fatalf("expected a majority of inliers, got %d/%d", countTrue(inliers), len(pts))
	}

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(pose.R.At(i, j)-want) > 0.05 {
				t.Errorf("pose.R[%d][%d] = %v, want ~%v (near identity)", i, j, pose.R.At(i, j), want)
			}
		}
	}

	norm := pose.NormT()
	if norm < 1e-6 {
		t.Fatal("recovered translation is degenerate (near zero)")
	}
	// essential-matrix translation is scale-free; check direction only.
	cos := pose.T.At(0, 0) / norm
	if cos < 0.9 {
		t.Errorf("recovered translation direction cos=%.4f, want close to 1 (aligned with +X)", cos)
	}
}

func TestComputePose2D2DTooFewPointsReturnsIdentity(t *testing.T) {
	k := Intrinsics{Fx: 500, Fy: 500, Cx: 320, Cy: 240}
	kpRef := mat.NewDense(4, 2, []float64{0, 0, 1, 1, 2, 2, 3, 3})
	kpCur := mat.NewDense(4, 2, []float64{0, 0, 1, 1, 2, 2, 3, 3})

	tracker := NewEssentialTracker(k, defaultTestCompute2D2DCfg())
	pose, inliers, err := tracker.ComputePose2D2D(kpRef, kpCur, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("ComputePose2D2D: %v", err)
	}
	if pose.NormT() != 0 {
		t.Errorf("expected identity fallback for n<8 correspondences, got NormT=%v", pose.NormT())
	}
	if countTrue(inliers) != 4 {
		t.Errorf("expected all-true inlier mask on fallback, got %v", inliers)
	}
}

func TestComputePose2D2DBelowFlowThresholdReturnsIdentity(t *testing.T) {
	k := Intrinsics{Fx: 500, Fy: 500, Cx: 320, Cy: 240}
	pts := synthetic3DPoints()

	kpRef := projectToKp(pts, k, Identity())
	kpCur := projectToKp(pts, k, Identity()) // no motion at all

	cfg := defaultTestCompute2D2DCfg()
	cfg.Validity.Thre = 0.5
	tracker := NewEssentialTracker(k, cfg)
	pose, _, err := tracker.ComputePose2D2D(kpRef, kpCur, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("ComputePose2D2D: %v", err)
	}
	if pose.NormT() != 0 {
		t.Errorf("expected identity fallback below flow validity threshold, got NormT=%v", pose.NormT())
	}
}

func TestComputePose2D2DUnsupportedValidityMethod(t *testing.T) {
	k := Intrinsics{Fx: 500, Fy: 500, Cx: 320, Cy: 240}
	pts := synthetic3DPoints()
	kpRef := projectToKp(pts, k, Identity())
	kpCur := projectToKp(pts, k, Identity())

	cfg := defaultTestCompute2D2DCfg()
	cfg.Validity.Method = "bogus"
	tracker := NewEssentialTracker(k, cfg)
	_, _, err := tracker.ComputePose2D2D(kpRef, kpCur, rand.New(rand.NewSource(1)))
	if err == nil {
		t.Fatal("expected an UnsupportedConfiguration error for an unknown validity method")
	}
	var trackingErr *TrackingError
	if !asTrackingError(err, &trackingErr) || trackingErr.Kind != UnsupportedConfiguration {
		t.Errorf("expected UnsupportedConfiguration TrackingError, got %v", err)
	}
}

func identityR() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

func negate3(v *mat.Dense) *mat.Dense {
	out := mat.NewDense(3, 1, nil)
	out.Scale(-1, v)
	return out
}

func asTrackingError(err error, target **TrackingError) bool {
	te, ok := err.(*TrackingError)
	if ok {
		*target = te
	}
	return ok
}
