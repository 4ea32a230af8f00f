package drawing

import (
	"image"
	"math"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// KeypointOverlay draws a frame's sampled keypoints colored by RANSAC
// inlier status: green for inliers, red for outliers.
type KeypointOverlay struct {
	drawer    *Drawer
	radius    int
	thickness int
	inlier    Color
	outlier   Color
}

// NewKeypointOverlay returns a KeypointOverlay with auto-scaled point
// size; radius/thickness of 0 defer to frame-size-relative defaults on
// the first Draw call.
func NewKeypointOverlay() *KeypointOverlay {
	return &KeypointOverlay{
		drawer:  NewDrawer(),
		inlier:  Color{B: 0, G: 200, R: 0},
		outlier: Color{B: 0, G: 0, R: 200},
	}
}

// Draw overlays kp (Nx2 pixel coordinates) onto frame, colored by the
// parallel inliers mask. Points beyond len(inliers) are drawn as
// outliers, matching the "tentative until validated" reading of a short
// mask.
func (o *KeypointOverlay) Draw(frame *gocv.Mat, kp *mat.Dense, inliers []bool) {
	if kp == nil {
		return
	}
	rows, _ := kp.Dims()
	if rows == 0 {
		return
	}

	radius := o.radius
	if radius == 0 {
		maxDim := maxInt(frame.Rows(), frame.Cols())
		radius = maxInt(int(math.Round(float64(maxDim)*0.002)), 1)
	}
	thickness := o.thickness
	if thickness == 0 {
		thickness = -1 // filled
	}

	for i := 0; i < rows; i++ {
		pt := image.Point{X: int(kp.At(i, 0)), Y: int(kp.At(i, 1))}
		c := o.outlier
		if i < len(inliers) && inliers[i] {
			c = o.inlier
		}
		o.drawer.Circle(frame, pt, radius, thickness, c)
	}
}
