package drawing

import (
	"image"

	"gocv.io/x/gocv"
)

// TrajectoryMap accumulates a top-down (X, Z) trace of the estimated
// camera path on a canvas that grows to keep the whole trajectory
// in view, fading older segments over time. The growing-canvas technique
// mirrors a fixed-size viewport drawer that re-anchors its content as a
// tracked subject moves, adapted here so the "viewport" is world space
// and the "subject" is the trajectory itself rather than a video frame.
type TrajectoryMap struct {
	canvas   *gocv.Mat
	origin   image.Point // pixel location of world (0,0)
	scale    float64     // world units -> pixels
	attenuation float64
	prev     *image.Point
	drawer   *Drawer
	estColor Color
	gtColor  Color
}

// NewTrajectoryMap returns a TrajectoryMap with a size x size canvas
// centered on the origin, drawing scale pixels per world unit.
func NewTrajectoryMap(size int, scale float64, attenuation float64) *TrajectoryMap {
	if size <= 0 {
		size = 800
	}
	if scale <= 0 {
		scale = 1.0
	}
	if attenuation <= 0 {
		attenuation = 0.002
	}
	canvas := gocv.NewMatWithSize(size, size, gocv.MatTypeCV8UC3)
	canvas.SetTo(gocv.NewScalar(0, 0, 0, 0))
	return &TrajectoryMap{
		canvas:      &canvas,
		origin:      image.Point{X: size / 2, Y: size / 2},
		scale:       scale,
		attenuation: attenuation,
		drawer:      NewDrawer(),
		estColor:    Color{B: 50, G: 220, R: 50},
		gtColor:     Color{B: 200, G: 200, R: 200},
	}
}

// toPixel maps world (x, z) to a canvas pixel, growing the canvas (by
// re-centering) if the point would fall outside it.
func (m *TrajectoryMap) toPixel(x, z float64) image.Point {
	for {
		px := m.origin.X + int(x*m.scale)
		py := m.origin.Y + int(z*m.scale)
		rows := m.canvas.Rows()
		m.growIfNeeded(px, py)
		if m.canvas.Rows() == rows {
			return image.Point{X: px, Y: py}
		}
	}
}

// growIfNeeded doubles canvas dimensions and re-centers the origin when a
// point would fall outside current bounds, preserving already-drawn
// content by placing it in the new canvas's center region.
func (m *TrajectoryMap) growIfNeeded(px, py int) {
	rows, cols := m.canvas.Rows(), m.canvas.Cols()
	margin := 32
	if px >= margin && px < cols-margin && py >= margin && py < rows-margin {
		return
	}

	newRows, newCols := rows*2, cols*2
	grown := gocv.NewMatWithSize(newRows, newCols, gocv.MatTypeCV8UC3)
	grown.SetTo(gocv.NewScalar(0, 0, 0, 0))

	offsetX := newCols/2 - m.origin.X
	offsetY := newRows/2 - m.origin.Y
	dst := grown.Region(image.Rect(offsetX, offsetY, offsetX+cols, offsetY+rows))
	m.canvas.CopyTo(&dst)
	dst.Close()

	m.canvas.Close()
	m.canvas = &grown
	m.origin = image.Point{X: m.origin.X + offsetX, Y: m.origin.Y + offsetY}
	if m.prev != nil {
		p := image.Point{X: m.prev.X + offsetX, Y: m.prev.Y + offsetY}
		m.prev = &p
	}
}

// AddEstimate draws a segment from the last estimated point to (x, z) in
// the estimate color, fading the canvas first so older trail segments
// dim over time.
func (m *TrajectoryMap) AddEstimate(x, z float64) {
	m.canvas.MultiplyFloat(float32(1.0 - m.attenuation))
	pt := m.toPixel(x, z)
	if m.prev != nil {
		m.drawer.Line(m.canvas, *m.prev, pt, m.estColor, 2)
	}
	m.drawer.Circle(m.canvas, pt, 2, -1, m.estColor)
	m.prev = &pt
}

// AddGroundTruth draws a single ground-truth marker at (x, z), for
// overlaying a reference trajectory without participating in fading.
func (m *TrajectoryMap) AddGroundTruth(x, z float64) {
	pt := m.toPixel(x, z)
	m.drawer.Circle(m.canvas, pt, 1, -1, m.gtColor)
}

// Snapshot returns a copy of the current canvas; the caller owns and must
// Close the returned Mat.
func (m *TrajectoryMap) Snapshot() gocv.Mat {
	return m.canvas.Clone()
}

// Close releases the canvas Mat.
func (m *TrajectoryMap) Close() {
	if m.canvas != nil {
		m.canvas.Close()
		m.canvas = nil
	}
}
