package trajectory

import (
	"math"

	"github.com/monovo/dfvo"
)

// DriftAccumulator accumulates per-frame pose error against ground truth
// as an estimated trajectory is produced, frame by frame, and reports
// summary drift statistics on demand.
type DriftAccumulator struct {
	frameIDs   []int
	sqAteSum   float64
	ateCount   int
	rpeSqSum   float64
	rpeCount   int
	pathLength float64

	prevEst, prevGT dfvo.SE3
	havePrev        bool
}

// NewDriftAccumulator returns an empty accumulator.
func NewDriftAccumulator() *DriftAccumulator {
	return &DriftAccumulator{}
}

// Update folds one frame's estimated and ground-truth global pose into
// the running ATE/RPE statistics. Frames must be supplied in ascending
// id order.
func (d *DriftAccumulator) Update(frameID int, estimated, groundTruth dfvo.SE3) {
	d.frameIDs = append(d.frameIDs, frameID)

	diff := translationNorm(estimated, groundTruth)
	d.sqAteSum += diff * diff
	d.ateCount++

	if d.havePrev {
		relEst := d.prevEst.Inv().Compose(estimated)
		relGT := d.prevGT.Inv().Compose(groundTruth)
		rpe := translationNorm(relEst, relGT)
		d.rpeSqSum += rpe * rpe
		d.rpeCount++
		d.pathLength += relGT.NormT()
	}

	d.prevEst = estimated.Clone()
	d.prevGT = groundTruth.Clone()
	d.havePrev = true
}

// translationNorm returns ||a.t - b.t||.
func translationNorm(a, b dfvo.SE3) float64 {
	dx := a.T.At(0, 0) - b.T.At(0, 0)
	dy := a.T.At(1, 0) - b.T.At(1, 0)
	dz := a.T.At(2, 0) - b.T.At(2, 0)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Summary is the aggregate drift report over every frame folded in so far.
type Summary struct {
	Frames          int
	ATERMSE         float64 // root-mean-square absolute trajectory error
	RPERMSE         float64 // root-mean-square relative pose error
	PathLength      float64
	DriftRatio      float64 // ATERMSE / PathLength, 0 if PathLength == 0
}

// Summary computes the aggregate drift report from everything accumulated
// so far.
func (d *DriftAccumulator) Summary() Summary {
	s := Summary{Frames: d.ateCount, PathLength: d.pathLength}
	if d.ateCount > 0 {
		s.ATERMSE = math.Sqrt(d.sqAteSum / float64(d.ateCount))
	}
	if d.rpeCount > 0 {
		s.RPERMSE = math.Sqrt(d.rpeSqSum / float64(d.rpeCount))
	}
	if d.pathLength > 0 {
		s.DriftRatio = s.ATERMSE / d.pathLength
	}
	return s
}
