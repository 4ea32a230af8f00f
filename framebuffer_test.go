package dfvo

import (
	"testing"

	"gocv.io/x/gocv"
)

func TestNewFrameBufferInitializesMaps(t *testing.T) {
	img := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer img.Close()

	fb := NewFrameBuffer(3, 1.5, img)
	if fb.ID != 3 || fb.Timestamp != 1.5 {
		t.Fatalf("unexpected id/timestamp: %d/%v", fb.ID, fb.Timestamp)
	}
	if fb.Flow == nil || fb.FlowDiff == nil || fb.RigidFlowDiff == nil || fb.Inliers == nil || fb.DeepPose == nil {
		t.Fatal("expected all per-reference maps to be initialized, not nil")
	}
	if len(fb.Flow) != 0 {
		t.Fatal("expected a freshly built FrameBuffer to have no flow entries yet")
	}
	if fb.Pose != nil || fb.Motion != nil {
		t.Fatal("expected Pose/Motion to be unset until the orchestrator assigns them")
	}
}

func TestFrameBufferCloseReleasesImage(t *testing.T) {
	img := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	fb := NewFrameBuffer(0, 0, img)
	if err := fb.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestFrameBufferPerReferenceMapsAreIndependentPerID(t *testing.T) {
	img := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer img.Close()

	fb := NewFrameBuffer(1, 0, img)
	fb.Flow[0] = NewFlowImage(2, 2)
	fb.Flow[5] = NewFlowImage(2, 2)
	fb.Inliers[0] = []bool{true, false}
	fb.Inliers[5] = []bool{false, false, true}

	if len(fb.Flow) != 2 {
		t.Fatalf("expected 2 independent flow entries, got %d", len(fb.Flow))
	}
	if len(fb.Inliers[0]) == len(fb.Inliers[5]) {
		t.Fatal("expected per-reference inlier masks to be independently sized")
	}
}
