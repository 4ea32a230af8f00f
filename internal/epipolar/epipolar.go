// Package epipolar implements the small slice of multi-view geometry the
// tracker needs: normalized essential-matrix estimation, pose recovery via
// cheirality, and linear triangulation. It is a from-scratch implementation
// over gonum.org/v1/gonum/mat rather than a binding to OpenCV's calib3d
// module, following this repository's convention (see internal/ransac) of
// hand-porting small numerical
// algorithms instead of reaching for a foreign-language dependency.
package epipolar

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Point2 is a pixel or normalized-image coordinate.
type Point2 struct{ X, Y float64 }

// Point3 is a 3D point.
type Point3 struct{ X, Y, Z float64 }

// Sub returns the component-wise difference p - o.
func (p Point2) Sub(o Point2) Point2 { return Point2{p.X - o.X, p.Y - o.Y} }

// Norm returns the Euclidean length of the 2D vector.
func (p Point2) Norm() float64 { return math.Hypot(p.X, p.Y) }

// Normalize converts a pixel coordinate to normalized camera coordinates
// using the inverse intrinsics (cx, cy, fx, fy).
func Normalize(p Point2, cx, cy, fx, fy float64) Point2 {
	return Point2{(p.X - cx) / fx, (p.Y - cy) / fy}
}

// EstimateEssential fits an essential matrix to a set of normalized
// point correspondences using the linear eight-point algorithm, followed by
// projection onto the essential-matrix manifold (singular values (1,1,0)).
//
// Requires at least 8 correspondences. kpRef[i] and kpCur[i] must already be
// in normalized camera coordinates (post K^-1).
func EstimateEssential(kpRef, kpCur []Point2) (*mat.Dense, bool) {
	n := len(kpRef)
	if n < 8 || len(kpCur) != n {
		return nil, false
	}

	A := mat.NewDense(n, 9, nil)
	for i := 0; i < n; i++ {
		x1, y1 := kpRef[i].X, kpRef[i].Y
		x2, y2 := kpCur[i].X, kpCur[i].Y
		A.SetRow(i, []float64{
			x2 * x1, x2 * y1, x2,
			y2 * x1, y2 * y1, y2,
			x1, y1, 1,
		})
	}

	var svd mat.SVD
	if ok := svd.Factorize(A, mat.SVDFull); !ok {
		return nil, false
	}
	var v mat.Dense
	svd.VTo(&v)
	// Last column of V (smallest singular value) is the vectorized E.
	rows, cols := v.Dims()
	_ = rows
	eVec := mat.Col(nil, cols-1, &v)
	E := mat.NewDense(3, 3, eVec)

	// Project onto the essential manifold: singular values become (1,1,0).
	var esvd mat.SVD
	if ok := esvd.Factorize(E, mat.SVDFull); !ok {
		return nil, false
	}
	var u, vt mat.Dense
	esvd.UTo(&u)
	esvd.VTo(&vt)
	s := mat.NewDiagDense(3, []float64{1, 1, 0})

	var tmp mat.Dense
	tmp.Mul(&u, s)
	var eNorm mat.Dense
	eNorm.Mul(&tmp, vt.T())
	return &eNorm, true
}

// RansacEssential repeats EstimateEssential over random minimal(+) samples,
// scoring candidates by the Sampson-distance inlier count, and returns the
// essential matrix with the most inliers together with the inlier mask
// (aligned with the input ordering).
func RansacEssential(kpRef, kpCur []Point2, threshold, prob float64, maxTrials int, rng *rand.Rand) (*mat.Dense, []bool, int) {
	n := len(kpRef)
	bestInliers := make([]bool, n)
	var bestE *mat.Dense
	bestCount := -1

	if n < 8 {
		return nil, bestInliers, 0
	}

	sampleSize := 8
	for trial := 0; trial < maxTrials; trial++ {
		idx := rng.Perm(n)[:sampleSize]
		sampRef := make([]Point2, sampleSize)
		sampCur := make([]Point2, sampleSize)
		for i, j := range idx {
			sampRef[i] = kpRef[j]
			sampCur[i] = kpCur[j]
		}
		E, ok := EstimateEssential(sampRef, sampCur)
		if !ok {
			continue
		}
		inliers, count := sampsonInliers(E, kpRef, kpCur, threshold)
		if count > bestCount {
			bestCount = count
			bestE = E
			bestInliers = inliers
		}
		// Early termination once enough inliers make further sampling moot.
		if bestCount > 0 && adaptiveTrialsExceeded(trial, bestCount, n, sampleSize, prob) {
			break
		}
	}
	if bestE == nil {
		return nil, bestInliers, 0
	}
	return bestE, bestInliers, bestCount
}

func adaptiveTrialsExceeded(trial, inlierCount, n, sampleSize int, prob float64) bool {
	if inlierCount == 0 {
		return false
	}
	w := float64(inlierCount) / float64(n)
	denom := math.Log(1 - math.Pow(w, float64(sampleSize)))
	if denom >= 0 {
		return false
	}
	need := math.Log(1-prob) / denom
	return float64(trial) >= need
}

// sampsonInliers counts correspondences whose first-order (Sampson)
// epipolar-constraint error is below threshold.
func sampsonInliers(E *mat.Dense, kpRef, kpCur []Point2, threshold float64) ([]bool, int) {
	n := len(kpRef)
	inliers := make([]bool, n)
	count := 0
	for i := 0; i < n; i++ {
		x1 := []float64{kpRef[i].X, kpRef[i].Y, 1}
		x2 := []float64{kpCur[i].X, kpCur[i].Y, 1}
		Ex1 := mulMatVec(E, x1)
		Etx2 := mulMatVec(mat.DenseCopyOf(E.T()), x2)
		x2tEx1 := x2[0]*Ex1[0] + x2[1]*Ex1[1] + x2[2]*Ex1[2]
		denom := Ex1[0]*Ex1[0] + Ex1[1]*Ex1[1] + Etx2[0]*Etx2[0] + Etx2[1]*Etx2[1]
		if denom < 1e-12 {
			continue
		}
		d := (x2tEx1 * x2tEx1) / denom
		if d < threshold*threshold {
			inliers[i] = true
			count++
		}
	}
	return inliers, count
}

func mulMatVec(M *mat.Dense, v []float64) []float64 {
	out := make([]float64, 3)
	for i := 0; i < 3; i++ {
		s := 0.0
		for j := 0; j < 3; j++ {
			s += M.At(i, j) * v[j]
		}
		out[i] = s
	}
	return out
}

// RecoverPose decomposes an essential matrix into the four candidate
// (R, t) pairs, triangulates a cheirality-check subset of correspondences
// against each, and returns the pose with the largest count of points lying
// in front of both cameras. The returned (R, t) maps reference-frame points
// into the current frame: it is the reference -> current T21 that
// TriangulatePoint takes.
func RecoverPose(E *mat.Dense, kpRef, kpCur []Point2) (R, t *mat.Dense, cheiralCount int) {
	var svd mat.SVD
	if ok := svd.Factorize(E, mat.SVDFull); !ok {
		return Identity3(), mat.NewDense(3, 1, nil), 0
	}
	var u, vt mat.Dense
	svd.UTo(&u)
	svd.VTo(&vt)

	if mat.Det(&u) < 0 {
		scaleCol(&u, 2, -1)
	}
	if mat.Det(&vt) < 0 {
		scaleCol(&vt, 2, -1)
	}

	W := mat.NewDense(3, 3, []float64{0, -1, 0, 1, 0, 0, 0, 0, 1})
	Wt := mat.NewDense(3, 3, []float64{0, 1, 0, -1, 0, 0, 0, 0, 1})

	var r1, r2 mat.Dense
	var tmp mat.Dense
	tmp.Mul(&u, W)
	r1.Mul(&tmp, vt.T())
	tmp.Mul(&u, Wt)
	r2.Mul(&tmp, vt.T())

	tCol := mat.Col(nil, 2, &u)
	tPos := mat.NewDense(3, 1, tCol)
	tNeg := mat.NewDense(3, 1, negate(tCol))

	candidates := []struct {
		R *mat.Dense
		T *mat.Dense
	}{
		{mat.DenseCopyOf(&r1), tPos},
		{mat.DenseCopyOf(&r1), tNeg},
		{mat.DenseCopyOf(&r2), tPos},
		{mat.DenseCopyOf(&r2), tNeg},
	}

	bestCount := -1
	var bestR, bestT *mat.Dense
	for _, c := range candidates {
		cnt := cheiralityCount(c.R, c.T, kpRef, kpCur)
		if cnt > bestCount {
			bestCount = cnt
			bestR = c.R
			bestT = c.T
		}
	}
	return bestR, bestT, bestCount
}

func scaleCol(m *mat.Dense, col int, s float64) {
	rows, _ := m.Dims()
	for i := 0; i < rows; i++ {
		m.Set(i, col, m.At(i, col)*s)
	}
}

func negate(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = -x
	}
	return out
}

// cheiralityCount triangulates each correspondence with candidate (R, t)
// (reference -> current, used as T21) and counts points with positive
// depth in both camera frames.
func cheiralityCount(R, t *mat.Dense, kpRef, kpCur []Point2) int {
	T21 := PoseToTransform(R, t)
	count := 0
	n := len(kpRef)
	limit := n
	if limit > 200 {
		limit = 200 // sample for speed on dense correspondence sets
	}
	step := n / limit
	if step < 1 {
		step = 1
	}
	for i := 0; i < n; i += step {
		Xref, Xcur, ok := TriangulatePoint(kpRef[i], kpCur[i], T21)
		if ok && Xref.Z > 0 && Xcur.Z > 0 {
			count++
		}
	}
	return count
}

// Identity3 returns a 3x3 identity matrix.
func Identity3() *mat.Dense {
	I := mat.NewDense(3, 3, nil)
	I.Set(0, 0, 1)
	I.Set(1, 1, 1)
	I.Set(2, 2, 1)
	return I
}

// PoseToTransform assembles a 4x4 homogeneous transform from rotation and
// translation.
func PoseToTransform(R, t *mat.Dense) *mat.Dense {
	T := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			T.Set(i, j, R.At(i, j))
		}
		T.Set(i, 3, t.At(i, 0))
	}
	T.Set(3, 3, 1)
	return T
}

// TriangulatePoint performs linear (DLT) triangulation of a single
// correspondence given the relative pose T21 (reference -> current,
// 4x4). Returns the 3D point in the reference frame and in the current
// frame. ok is false when the point is degenerate (at infinity).
func TriangulatePoint(kpRef, kpCur Point2, T21 *mat.Dense) (Xref, Xcur Point3, ok bool) {
	// Camera 1 (reference) at the identity, camera 2 (current) at T21.
	P1 := mat.NewDense(3, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
	})
	P2 := mat.NewDense(3, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			P2.Set(i, j, T21.At(i, j))
		}
	}

	A := mat.NewDense(4, 4, nil)
	fillRow := func(row int, p Point2, P *mat.Dense) {
		for j := 0; j < 4; j++ {
			A.Set(row, j, p.X*P.At(2, j)-P.At(0, j))
		}
	}
	fillRow2 := func(row int, p Point2, P *mat.Dense) {
		for j := 0; j < 4; j++ {
			A.Set(row, j, p.Y*P.At(2, j)-P.At(1, j))
		}
	}
	fillRow(0, kpRef, P1)
	fillRow2(1, kpRef, P1)
	fillRow(2, kpCur, P2)
	fillRow2(3, kpCur, P2)

	var svd mat.SVD
	if ok := svd.Factorize(A, mat.SVDFull); !ok {
		return Point3{}, Point3{}, false
	}
	var v mat.Dense
	svd.VTo(&v)
	_, cols := v.Dims()
	Xh := mat.Col(nil, cols-1, &v)
	if math.Abs(Xh[3]) < 1e-12 {
		return Point3{}, Point3{}, false
	}
	X := []float64{Xh[0] / Xh[3], Xh[1] / Xh[3], Xh[2] / Xh[3], 1}
	Xref = Point3{X[0], X[1], X[2]}

	Xc := mulMat4Vec(T21, X)
	Xcur = Point3{Xc[0], Xc[1], Xc[2]}
	return Xref, Xcur, true
}

func mulMat4Vec(M *mat.Dense, v []float64) []float64 {
	out := make([]float64, 4)
	for i := 0; i < 4; i++ {
		s := 0.0
		for j := 0; j < 4; j++ {
			s += M.At(i, j) * v[j]
		}
		out[i] = s
	}
	return out
}
