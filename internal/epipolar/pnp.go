package epipolar

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// SolvePnP fits a pose (current <- reference, i.e. points expressed in the
// reference frame are mapped into the current camera frame) from 3D-2D
// correspondences using a direct linear transform: a 3x4 projection matrix
// is recovered by the null vector of the DLT system, then the rotation
// block is snapped to the closest orthonormal matrix (SVD) before the
// translation is re-solved with that fixed rotation.
//
// pts3D are points in the reference frame; pts2D are their normalized
// (post K^-1) observations in the current frame. Requires at least 6
// correspondences.
func SolvePnP(pts3D []Point3, pts2D []Point2) (R, t *mat.Dense, ok bool) {
	n := len(pts3D)
	if n < 6 || len(pts2D) != n {
		return nil, nil, false
	}

	A := mat.NewDense(2*n, 12, nil)
	for i := 0; i < n; i++ {
		X, Y, Z := pts3D[i].X, pts3D[i].Y, pts3D[i].Z
		u, v := pts2D[i].X, pts2D[i].Y

		A.SetRow(2*i, []float64{
			X, Y, Z, 1, 0, 0, 0, 0, -u * X, -u * Y, -u * Z, -u,
		})
		A.SetRow(2*i+1, []float64{
			0, 0, 0, 0, X, Y, Z, 1, -v * X, -v * Y, -v * Z, -v,
		})
	}

	var svd mat.SVD
	if ok := svd.Factorize(A, mat.SVDFull); !ok {
		return nil, nil, false
	}
	var vmat mat.Dense
	svd.VTo(&vmat)
	_, cols := vmat.Dims()
	p := mat.Col(nil, cols-1, &vmat)

	Praw := mat.NewDense(3, 4, p)
	Rraw := Praw.Slice(0, 3, 0, 3).(*mat.Dense)

	// Snap the rotation block to SO(3).
	var rsvd mat.SVD
	if ok := rsvd.Factorize(Rraw, mat.SVDFull); !ok {
		return nil, nil, false
	}
	var ur, vtr mat.Dense
	rsvd.UTo(&ur)
	rsvd.VTo(&vtr)
	var Rfix mat.Dense
	Rfix.Mul(&ur, vtr.T())
	if mat.Det(&Rfix) < 0 {
		scaleCol(&ur, 2, -1)
		Rfix.Mul(&ur, vtr.T())
	}

	// Recover an overall scale from the ratio of singular values of the raw
	// rotation block (they should all equal the scale in an exact fit).
	sv := rsvd.Values(nil)
	scale := (sv[0] + sv[1] + sv[2]) / 3
	if scale < 1e-9 {
		return nil, nil, false
	}

	tRaw := []float64{p[3], p[7], p[11]}
	tFix := mat.NewDense(3, 1, []float64{tRaw[0] / scale, tRaw[1] / scale, tRaw[2] / scale})

	// Resolve the sign ambiguity: points must project with positive depth.
	if meanDepth(&Rfix, tFix, pts3D) < 0 {
		scaleCol(&Rfix, 0, -1)
		scaleCol(&Rfix, 1, -1)
		scaleCol(&Rfix, 2, -1)
		tFix.Scale(-1, tFix)
	}

	return mat.DenseCopyOf(&Rfix), tFix, true
}

func meanDepth(R, t *mat.Dense, pts []Point3) float64 {
	sum := 0.0
	for _, p := range pts {
		z := R.At(2, 0)*p.X + R.At(2, 1)*p.Y + R.At(2, 2)*p.Z + t.At(2, 0)
		sum += z
	}
	return sum / float64(len(pts))
}

// ReprojErr returns the reprojection error (normalized-coordinate units)
// of a single 3D-2D correspondence under a candidate pose.
func ReprojErr(R, t *mat.Dense, X Point3, obs Point2) float64 {
	x := R.At(0, 0)*X.X + R.At(0, 1)*X.Y + R.At(0, 2)*X.Z + t.At(0, 0)
	y := R.At(1, 0)*X.X + R.At(1, 1)*X.Y + R.At(1, 2)*X.Z + t.At(1, 0)
	z := R.At(2, 0)*X.X + R.At(2, 1)*X.Y + R.At(2, 2)*X.Z + t.At(2, 0)
	if z <= 1e-9 {
		return math.Inf(1)
	}
	return math.Hypot(x/z-obs.X, y/z-obs.Y)
}

// RansacPnP wraps SolvePnP in a RANSAC loop, scoring candidates by
// reprojection-error inlier count and re-fitting on the full inlier set at
// the end.
func RansacPnP(pts3D []Point3, pts2D []Point2, threshold float64, maxTrials int, rng *rand.Rand) (R, t *mat.Dense, inliers []bool, ok bool) {
	n := len(pts3D)
	inliers = make([]bool, n)
	if n < 6 {
		return nil, nil, inliers, false
	}

	sampleSize := 6
	bestCount := -1
	var bestR, bestT *mat.Dense

	for trial := 0; trial < maxTrials; trial++ {
		idx := rng.Perm(n)[:sampleSize]
		samp3D := make([]Point3, sampleSize)
		samp2D := make([]Point2, sampleSize)
		for i, j := range idx {
			samp3D[i] = pts3D[j]
			samp2D[i] = pts2D[j]
		}
		Rc, tc, good := SolvePnP(samp3D, samp2D)
		if !good {
			continue
		}
		count := 0
		for i := 0; i < n; i++ {
			if ReprojErr(Rc, tc, pts3D[i], pts2D[i]) < threshold {
				count++
			}
		}
		if count > bestCount {
			bestCount = count
			bestR, bestT = Rc, tc
		}
	}
	if bestR == nil {
		return nil, nil, inliers, false
	}

	inlierCount := 0
	for i := 0; i < n; i++ {
		if ReprojErr(bestR, bestT, pts3D[i], pts2D[i]) < threshold {
			inliers[i] = true
			inlierCount++
		}
	}

	// Refine using every inlier, if there are enough to do so.
	if inlierCount >= sampleSize {
		refPts3D := make([]Point3, 0, inlierCount)
		refPts2D := make([]Point2, 0, inlierCount)
		for i := 0; i < n; i++ {
			if inliers[i] {
				refPts3D = append(refPts3D, pts3D[i])
				refPts2D = append(refPts2D, pts2D[i])
			}
		}
		if Rr, tr, good := SolvePnP(refPts3D, refPts2D); good {
			bestR, bestT = Rr, tr
		}
	}

	return bestR, bestT, inliers, true
}
