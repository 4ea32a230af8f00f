package dfvo

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// SE3 is a rigid transform: an orthonormal 3x3 rotation R (det +1) and a
// 3x1 translation T. The zero value is not valid; use Identity.
type SE3 struct {
	R *mat.Dense
	T *mat.Dense
}

// Identity returns the identity rigid transform.
func Identity() SE3 {
	R := mat.NewDense(3, 3, nil)
	R.Set(0, 0, 1)
	R.Set(1, 1, 1)
	R.Set(2, 2, 1)
	return SE3{R: R, T: mat.NewDense(3, 1, nil)}
}

// NewSE3 builds an SE3 from a rotation and translation, copying both so the
// caller may continue to mutate the originals.
func NewSE3(R, T *mat.Dense) SE3 {
	return SE3{R: mat.DenseCopyOf(R), T: mat.DenseCopyOf(T)}
}

// FromMat4 extracts R and t from the top-left 3x3 / top-right 3x1 block of
// a 4x4 homogeneous transform.
func FromMat4(M *mat.Dense) SE3 {
	R := mat.NewDense(3, 3, nil)
	T := mat.NewDense(3, 1, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			R.Set(i, j, M.At(i, j))
		}
		T.Set(i, 0, M.At(i, 3))
	}
	return SE3{R: R, T: T}
}

// Mat4 assembles the 4x4 homogeneous transform matrix.
func (p SE3) Mat4() *mat.Dense {
	M := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			M.Set(i, j, p.R.At(i, j))
		}
		M.Set(i, 3, p.T.At(i, 0))
	}
	M.Set(3, 3, 1)
	return M
}

// Clone returns a deep, value-semantics copy. The global trajectory stores
// poses by Clone() so that later mutation of a per-frame pose buffer never
// retroactively changes an already-integrated global pose.
func (p SE3) Clone() SE3 {
	return SE3{R: mat.DenseCopyOf(p.R), T: mat.DenseCopyOf(p.T)}
}

// Inv returns the inverse transform: R^T, -R^T t.
func (p SE3) Inv() SE3 {
	Rt := mat.DenseCopyOf(p.R.T())
	var negT mat.Dense
	negT.Mul(Rt, p.T)
	negT.Scale(-1, &negT)
	return SE3{R: Rt, T: mat.DenseCopyOf(&negT)}
}

// Compose returns p followed by q, i.e. the transform x -> q.R*(p.R*x+p.T)+q.T.
func (p SE3) Compose(q SE3) SE3 {
	var R mat.Dense
	R.Mul(q.R, p.R)
	var T mat.Dense
	T.Mul(q.R, p.T)
	T.Add(&T, q.T)
	return SE3{R: mat.DenseCopyOf(&R), T: mat.DenseCopyOf(&T)}
}

// ApplyPoints transforms an Nx3 point array by this SE3.
func (p SE3) ApplyPoints(points *mat.Dense) *mat.Dense {
	rows, _ := points.Dims()
	out := mat.NewDense(rows, 3, nil)
	for i := 0; i < rows; i++ {
		x, y, z := points.At(i, 0), points.At(i, 1), points.At(i, 2)
		for r := 0; r < 3; r++ {
			v := p.R.At(r, 0)*x + p.R.At(r, 1)*y + p.R.At(r, 2)*z + p.T.At(r, 0)
			out.Set(i, r, v)
		}
	}
	return out
}

// NormT returns the Euclidean norm of the translation component, used
// throughout the tracker to detect the "essential matrix produced no
// translation" degenerate case (‖t‖ == 0).
func (p SE3) NormT() float64 {
	x, y, z := p.T.At(0, 0), p.T.At(1, 0), p.T.At(2, 0)
	return math.Sqrt(x*x + y*y + z*z)
}
