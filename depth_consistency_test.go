package dfvo

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestCheckDepthConsistencyMarksMatchingFlowValid(t *testing.T) {
	k := testIntrinsics()
	depth := NewDepthImage(8, 6)
	for i := range depth.Data {
		depth.Data[i] = 2.0
	}

	pose := Identity()
	pose.T.Set(2, 0, 0.5)

	rigid := RigidFlow(depth, k, pose)

	mask, diff := CheckDepthConsistency(depth, k, pose, rigid, 1e-6)
	for i := range mask.Data {
		if mask.Data[i] != 1 {
			t.Fatalf("pixel %d: expected consistency mask set when observed flow matches rigid flow exactly, diff=%v", i, diff.Data[i])
		}
		if diff.Data[i] > 1e-9 {
			t.Errorf("pixel %d: expected ~0 residual, got %v", i, diff.Data[i])
		}
	}
}

func TestCheckDepthConsistencyRejectsInconsistentFlow(t *testing.T) {
	k := testIntrinsics()
	depth := NewDepthImage(8, 6)
	for i := range depth.Data {
		depth.Data[i] = 2.0
	}
	pose := Identity()
	pose.T.Set(2, 0, 0.5)

	observed := NewFlowImage(8, 6)
	for i := range observed.U {
		observed.U[i] = 50 // wildly inconsistent with the small rigid flow
		observed.V[i] = 50
	}

	mask, diff := CheckDepthConsistency(depth, k, pose, observed, 1.0)
	for i := range mask.Data {
		if mask.Data[i] != 0 {
			t.Fatalf("pixel %d: expected consistency mask cleared for inconsistent flow, diff=%v", i, diff.Data[i])
		}
	}
}

func TestCheckDepthConsistencyIsIdempotent(t *testing.T) {
	k := testIntrinsics()
	depth := NewDepthImage(4, 4)
	for i := range depth.Data {
		depth.Data[i] = 1.5 + float64(i)*0.1
	}
	pose := Identity()
	pose.T.Set(0, 0, 0.2)
	flow := RigidFlow(depth, k, pose)

	mask1, diff1 := CheckDepthConsistency(depth, k, pose, flow, 0.05)
	mask2, diff2 := CheckDepthConsistency(depth, k, pose, flow, 0.05)

	if !mat.EqualApprox(rowMajor(mask1.Data, mask1.H, mask1.W), rowMajor(mask2.Data, mask2.H, mask2.W), 1e-12) {
		t.Fatal("expected repeated CheckDepthConsistency calls to produce identical masks")
	}
	if !mat.EqualApprox(rowMajor(diff1.Data, diff1.H, diff1.W), rowMajor(diff2.Data, diff2.H, diff2.W), 1e-12) {
		t.Fatal("expected repeated CheckDepthConsistency calls to produce identical diffs")
	}
}

func rowMajor(data []float64, h, w int) *mat.Dense {
	return mat.NewDense(h, w, append([]float64(nil), data...))
}
