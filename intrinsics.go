package dfvo

import "gonum.org/v1/gonum/mat"

// Intrinsics holds a pinhole camera's calibration, immutable once a dataset
// has initialized it.
type Intrinsics struct {
	Cx, Cy float64
	Fx, Fy float64
}

// K returns the 3x3 camera matrix.
func (in Intrinsics) K() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		in.Fx, 0, in.Cx,
		0, in.Fy, in.Cy,
		0, 0, 1,
	})
}

// KInv returns the inverse camera matrix.
func (in Intrinsics) KInv() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1 / in.Fx, 0, -in.Cx / in.Fx,
		0, 1 / in.Fy, -in.Cy / in.Fy,
		0, 0, 1,
	})
}

// Rescale returns intrinsics adjusted from an (oldW, oldH) calibration
// resolution to (newW, newH). Dataset adapters are expected to return K
// already at the configured processing resolution; this helper exists for
// adapters that need to do that conversion themselves and is never invoked
// implicitly by the core.
func (in Intrinsics) Rescale(newW, newH, oldW, oldH int) Intrinsics {
	sx := float64(newW) / float64(oldW)
	sy := float64(newH) / float64(oldH)
	return Intrinsics{
		Cx: in.Cx * sx,
		Cy: in.Cy * sy,
		Fx: in.Fx * sx,
		Fy: in.Fy * sy,
	}
}

// NormalizePoint converts a pixel coordinate to normalized camera
// coordinates (post K^-1).
func (in Intrinsics) NormalizePoint(x, y float64) (float64, float64) {
	return (x - in.Cx) / in.Fx, (y - in.Cy) / in.Fy
}
