package dfvo

import "gocv.io/x/gocv"

// DepthSource identifies where a dataset's depth values originate, since
// scale-recovery semantics differ for ground-truth vs. predicted depth.
type DepthSource int

const (
	// DepthSourceGroundTruth marks depth from LiDAR/RGB-D ground truth,
	// which is already metric. The engine does not read DepthSource: scale
	// recovery runs the same way for either value.
	DepthSourceGroundTruth DepthSource = iota
	// DepthSourcePredicted marks depth from a monocular depth network,
	// which is scale-ambiguous and requires scale recovery.
	DepthSourcePredicted
)

// Dataset is the contract an odometry sequence must satisfy. Adapters
// wrap a concrete storage layout (image directories, rosbags, ...) behind
// this interface; the core engine never reads files directly.
type Dataset interface {
	// Len returns the number of frames in the sequence.
	Len() int

	// GetTimestamp returns the capture time of frame i, in seconds.
	GetTimestamp(i int) (float64, error)

	// GetImage returns the RGB image for frame i. Callers own the
	// returned Mat and must Close it.
	GetImage(i int) (gocv.Mat, error)

	// GetDepth returns the depth map for frame i, or nil if the dataset
	// does not supply depth and a perception source must be used instead.
	GetDepth(i int) (*DepthImage, error)

	// GetGroundTruthPoses returns the sequence's ground-truth global
	// poses if known, for evaluation only; ok is false if unavailable.
	GetGroundTruthPoses() (poses []SE3, ok bool)

	// CamIntrinsics returns the camera intrinsics already adjusted to the
	// resolution at which GetImage/GetDepth return data.
	CamIntrinsics() Intrinsics

	// DepthSource reports whether depth is ground truth or predicted.
	DepthSource() DepthSource

	// SaveResultTrajectory persists the estimated global trajectory in
	// the dataset's native evaluation format.
	SaveResultTrajectory(path string, poses []SE3) error
}
