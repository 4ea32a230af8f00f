package dfvo

import (
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// FrameBuffer holds everything the tracker knows about one frame: the raw
// sensor/perception inputs, and the sampled/derived state accumulated as
// the frame is processed against one or more reference frames.
//
// Flow and flow-consistency fields are keyed by the id of the reference
// frame they were computed against, since a frame may be compared to more
// than one reference during iterative re-tracking.
type FrameBuffer struct {
	ID        int
	Timestamp float64
	Img       gocv.Mat

	RawDepth *DepthImage // depth as returned by Dataset.GetDepth, unmodified
	Depth    *DepthImage // depth used by tracking (the dataset's depth, or the perception source's depth when the dataset has none); never rescaled

	Flow           map[int]*FlowImage // ref id -> optical flow from ref to this frame
	FlowDiff       map[int]*DepthImage // ref id -> per-pixel |flow - rigid_flow|, magnitude map
	RigidFlowDiff  map[int]*DepthImage // ref id -> |flow - rigid_flow| under the latest provisional pose
	RigidFlowMask  *DepthImage         // validity mask from the latest depth-consistency check, 1.0/0.0

	KpBest  *mat.Dense // Nx2 pixel coordinates; nil until SampleKeypoints has run
	KpDepth *mat.Dense // Nx2 pixel coordinates sampled for depth consistency / scale recovery

	Inliers map[int][]bool // ref id -> RANSAC inlier mask aligned with KpBest

	Pose       *SE3 // global pose; set exactly once, by the orchestrator
	Motion     *SE3 // relative pose from the previous frame
	DeepPose   map[int]*SE3 // ref id -> network-predicted relative pose, if available
}

// NewFrameBuffer allocates a FrameBuffer with its maps initialized.
func NewFrameBuffer(id int, timestamp float64, img gocv.Mat) *FrameBuffer {
	return &FrameBuffer{
		ID:            id,
		Timestamp:     timestamp,
		Img:           img,
		Flow:          make(map[int]*FlowImage),
		FlowDiff:      make(map[int]*DepthImage),
		RigidFlowDiff: make(map[int]*DepthImage),
		Inliers:       make(map[int][]bool),
		DeepPose:      make(map[int]*SE3),
	}
}

// Close releases the underlying image Mat. Safe to call on a zero-value
// Img (gocv.Mat{}).
func (f *FrameBuffer) Close() error {
	return f.Img.Close()
}
