package dfvo

import "context"

// PerceptionFrame is the per-frame output of an external perception
// pipeline (optical flow and/or depth networks, and optionally a learned
// relative-pose network).
type PerceptionFrame struct {
	// Flow maps a reference frame id to the optical flow from that
	// reference to the current frame.
	Flow map[int]*FlowImage
	// Depth is the predicted depth for the current frame, or nil if the
	// dataset already supplies depth (see Dataset.DepthSource).
	Depth *DepthImage
	// DeepPose maps a reference frame id to a network-predicted relative
	// pose between that reference and the current frame, in the same
	// current -> reference orientation as the essential tracker's pose
	// (the engine integrates it unchanged), if the perception
	// source runs such a network; nil entries mean "not available".
	DeepPose map[int]*SE3
}

// PerceptionSource produces flow/depth/deep-pose predictions for a frame
// given one or more reference frames already held by the caller. Network
// inference is assumed to be the expensive step; implementations are free
// to batch or cache internally.
type PerceptionSource interface {
	// Predict computes perception outputs for frame `cur` against each of
	// the given reference frame ids.
	Predict(ctx context.Context, refIDs []int, refImgs map[int]FrameImage, curID int, curImg FrameImage) (*PerceptionFrame, error)
}

// FrameImage is the minimal image handle a PerceptionSource needs; it
// avoids a hard dependency on gocv.Mat in the interface signature so
// alternate perception backends (e.g. remote inference services) are not
// forced to produce one.
type FrameImage struct {
	Width, Height int
	Data          []byte // row-major BGR, 3 bytes/pixel
}
