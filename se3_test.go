package dfvo

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/monovo/dfvo/internal/testutil"
)

func TestIdentityIsNoOp(t *testing.T) {
	id := Identity()
	pts := mat.NewDense(1, 3, []float64{1, 2, 3})
	out := id.ApplyPoints(pts)
	testutil.AssertMatrixAlmostEqual(t, out, pts, 1e-12, "Identity().ApplyPoints")
}

func TestInvIsInverse(t *testing.T) {
	R := mat.NewDense(3, 3, []float64{
		0, -1, 0,
		1, 0, 0,
		0, 0, 1,
	})
	T := mat.NewDense(3, 1, []float64{1, 2, 3})
	p := NewSE3(R, T)

	composed := p.Compose(p.Inv())
	identityPts := mat.NewDense(1, 3, []float64{5, -3, 2})
	out := composed.ApplyPoints(identityPts)
	testutil.AssertMatrixAlmostEqual(t, out, identityPts, 1e-9, "p.Compose(p.Inv())")
}

func TestComposeMatchesSequentialApply(t *testing.T) {
	p := NewSE3(
		mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}),
		mat.NewDense(3, 1, []float64{1, 0, 0}),
	)
	q := NewSE3(
		mat.NewDense(3, 3, []float64{0, -1, 0, 1, 0, 0, 0, 0, 1}),
		mat.NewDense(3, 1, []float64{0, 1, 0}),
	)

	pt := mat.NewDense(1, 3, []float64{2, 3, 4})
	viaCompose := p.Compose(q).ApplyPoints(pt)
	viaSequential := q.ApplyPoints(p.ApplyPoints(pt))
	testutil.AssertMatrixAlmostEqual(t, viaCompose, viaSequential, 1e-9, "Compose vs sequential Apply")
}

func TestFromMat4RoundTrip(t *testing.T) {
	R := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 0, -1, 0, 1, 0})
	T := mat.NewDense(3, 1, []float64{4, 5, 6})
	p := NewSE3(R, T)

	recovered := FromMat4(p.Mat4())
	testutil.AssertMatrixAlmostEqual(t, recovered.R, p.R, 1e-12, "FromMat4(p.Mat4()).R")
	testutil.AssertMatrixAlmostEqual(t, recovered.T, p.T, 1e-12, "FromMat4(p.Mat4()).T")
}

func TestCloneIsIndependent(t *testing.T) {
	p := Identity()
	c := p.Clone()
	c.T.Set(0, 0, 99)
	if p.T.At(0, 0) == 99 {
		t.Fatal("Clone() shares storage with the original")
	}
}

func TestNormT(t *testing.T) {
	p := NewSE3(
		mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}),
		mat.NewDense(3, 1, []float64{3, 4, 0}),
	)
	testutil.AssertAlmostEqual(t, p.NormT(), 5.0, 1e-12, "NormT")
}

func TestIntrinsicsNormalizeRoundTrip(t *testing.T) {
	k := Intrinsics{Fx: 500, Fy: 510, Cx: 320, Cy: 240}
	nx, ny := k.NormalizePoint(420, 340)
	x := nx*k.Fx + k.Cx
	y := ny*k.Fy + k.Cy
	testutil.AssertAlmostEqual(t, x, 420, 1e-9, "re-projected x")
	testutil.AssertAlmostEqual(t, y, 340, 1e-9, "re-projected y")
}

func TestIntrinsicsRescale(t *testing.T) {
	k := Intrinsics{Fx: 500, Fy: 500, Cx: 320, Cy: 240}
	rescaled := k.Rescale(640, 480, 1280, 960)
	testutil.AssertAlmostEqual(t, rescaled.Fx, 250, 1e-9, "rescaled Fx")
	testutil.AssertAlmostEqual(t, rescaled.Cx, 160, 1e-9, "rescaled Cx")
}

func TestKKInvAreInverses(t *testing.T) {
	k := Intrinsics{Fx: 400, Fy: 420, Cx: 300, Cy: 250}
	var prod mat.Dense
	prod.Mul(k.K(), k.KInv())
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(prod.At(i, j)-want) > 1e-9 {
				t.Fatalf("K*KInv[%d][%d] = %v, want %v", i, j, prod.At(i, j), want)
			}
		}
	}
}
