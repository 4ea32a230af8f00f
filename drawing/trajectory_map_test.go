package drawing

import "testing"

func TestTrajectoryMapAddEstimateDrawsWithoutCrashing(t *testing.T) {
	m := NewTrajectoryMap(200, 10.0, 0.002)
	defer m.Close()

	for i := 0; i < 5; i++ {
		m.AddEstimate(float64(i)*0.5, float64(i)*0.2)
	}
	snap := m.Snapshot()
	defer snap.Close()
	if snap.Empty() {
		t.Error("snapshot should not be empty after drawing estimates")
	}
}

func TestTrajectoryMapGrowsCanvasWhenPointLeavesBounds(t *testing.T) {
	m := NewTrajectoryMap(100, 1.0, 0.002)
	defer m.Close()

	before := m.canvas.Rows()
	m.AddEstimate(1000, 1000) // far beyond the initial 100x100 canvas
	after := m.canvas.Rows()

	if after <= before {
		t.Errorf("canvas rows = %d after an out-of-bounds point, want growth beyond %d", after, before)
	}
}

func TestTrajectoryMapAddGroundTruthDoesNotAdvancePrevEstimateLine(t *testing.T) {
	m := NewTrajectoryMap(200, 10.0, 0.002)
	defer m.Close()

	m.AddGroundTruth(1, 1)
	if m.prev != nil {
		t.Error("AddGroundTruth should not set prev, since it never participates in the estimate trail")
	}
}

func TestTrajectoryMapDefaultsAppliedForNonPositiveArgs(t *testing.T) {
	m := NewTrajectoryMap(0, 0, 0)
	defer m.Close()

	if m.canvas.Rows() != 800 || m.canvas.Cols() != 800 {
		t.Errorf("canvas size = %dx%d, want the 800x800 default", m.canvas.Rows(), m.canvas.Cols())
	}
	if m.scale != 1.0 {
		t.Errorf("scale = %v, want the 1.0 default", m.scale)
	}
	if m.attenuation != 0.002 {
		t.Errorf("attenuation = %v, want the 0.002 default", m.attenuation)
	}
}
