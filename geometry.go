package dfvo

import "gonum.org/v1/gonum/mat"

// DepthImage is a dense H x W depth map in meters; a zero value at (v,u)
// marks an invalid/missing measurement.
type DepthImage struct {
	H, W int
	Data []float64 // row-major, length H*W
}

// At returns the depth at pixel (u, v).
func (d *DepthImage) At(u, v int) float64 { return d.Data[v*d.W+u] }

// Set stores the depth at pixel (u, v).
func (d *DepthImage) Set(u, v int, val float64) { d.Data[v*d.W+u] = val }

// NewDepthImage allocates a zeroed depth image.
func NewDepthImage(w, h int) *DepthImage {
	return &DepthImage{H: h, W: w, Data: make([]float64, h*w)}
}

// FlowImage is a dense, per-pixel 2D displacement field (u-flow, v-flow).
type FlowImage struct {
	H, W int
	U, V []float64 // row-major, length H*W each
}

// NewFlowImage allocates a zeroed flow field.
func NewFlowImage(w, h int) *FlowImage {
	return &FlowImage{H: h, W: w, U: make([]float64, h*w), V: make([]float64, h*w)}
}

// At returns the flow vector at pixel (u, v).
func (f *FlowImage) At(u, v int) (float64, float64) {
	idx := v*f.W + u
	return f.U[idx], f.V[idx]
}

// Point3 is a 3D point in some camera frame.
type Point3 struct {
	X, Y, Z float64
	Valid   bool
}

// PointCloud is a dense H x W grid of 3D points, one per depth-image pixel.
type PointCloud struct {
	H, W   int
	Points []Point3 // row-major, length H*W
}

// Unproject lifts a depth map to 3D points in the camera frame:
// P(u,v) = D(u,v) * K^-1 * [u, v, 1]^T. Pixels with D==0 are marked invalid.
func Unproject(depth *DepthImage, K Intrinsics) *PointCloud {
	pc := &PointCloud{H: depth.H, W: depth.W, Points: make([]Point3, depth.H*depth.W)}
	for v := 0; v < depth.H; v++ {
		for u := 0; u < depth.W; u++ {
			idx := v*depth.W + u
			d := depth.Data[idx]
			if d == 0 {
				continue
			}
			nx, ny := K.NormalizePoint(float64(u), float64(v))
			pc.Points[idx] = Point3{X: nx * d, Y: ny * d, Z: d, Valid: true}
		}
	}
	return pc
}

// Project maps an H x W point cloud to pixel coordinates via K. Points
// with Z <= 0 are marked invalid in the returned validity mask.
func Project(pc *PointCloud, K Intrinsics) (u, v []float64, valid []bool) {
	n := len(pc.Points)
	u = make([]float64, n)
	v = make([]float64, n)
	valid = make([]bool, n)
	for i, p := range pc.Points {
		if !p.Valid || p.Z <= 0 {
			continue
		}
		u[i] = K.Fx*p.X/p.Z + K.Cx
		v[i] = K.Fy*p.Y/p.Z + K.Cy
		valid[i] = true
	}
	return u, v, valid
}

// TransformPointCloud applies a rigid transform to every valid point in an
// H x W point cloud.
func TransformPointCloud(pc *PointCloud, pose SE3) *PointCloud {
	out := &PointCloud{H: pc.H, W: pc.W, Points: make([]Point3, len(pc.Points))}
	for i, p := range pc.Points {
		if !p.Valid {
			continue
		}
		x := pose.R.At(0, 0)*p.X + pose.R.At(0, 1)*p.Y + pose.R.At(0, 2)*p.Z + pose.T.At(0, 0)
		y := pose.R.At(1, 0)*p.X + pose.R.At(1, 1)*p.Y + pose.R.At(1, 2)*p.Z + pose.T.At(1, 0)
		z := pose.R.At(2, 0)*p.X + pose.R.At(2, 1)*p.Y + pose.R.At(2, 2)*p.Z + pose.T.At(2, 0)
		out.Points[i] = Point3{X: x, Y: y, Z: z, Valid: true}
	}
	return out
}

// TransformPoints applies a rigid transform to an Nx3 point array (for
// sparse keypoint-derived point sets rather than dense point clouds).
func TransformPoints(points *mat.Dense, pose SE3) *mat.Dense {
	return pose.ApplyPoints(points)
}

// RigidFlow computes the per-pixel optical flow that depth map D_ref and
// relative pose T_ref_to_cur would induce if the scene were perfectly
// rigid: uv(x,y) = project(T * unproject(D_ref))(x,y) - (x,y).
func RigidFlow(depthRef *DepthImage, K Intrinsics, refToCur SE3) *FlowImage {
	pc := Unproject(depthRef, K)
	curPc := TransformPointCloud(pc, refToCur)
	u, v, valid := Project(curPc, K)

	flow := NewFlowImage(depthRef.W, depthRef.H)
	for row := 0; row < depthRef.H; row++ {
		for col := 0; col < depthRef.W; col++ {
			idx := row*depthRef.W + col
			if !valid[idx] {
				continue
			}
			flow.U[idx] = u[idx] - float64(col)
			flow.V[idx] = v[idx] - float64(row)
		}
	}
	return flow
}
