package dfvo

import (
	"context"
	"fmt"
	"math/rand"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"

	"github.com/monovo/dfvo/config"
)

// TrackingMode records which tracker produced a frame's relative pose.
type TrackingMode int

const (
	ModeEssentialMatrix TrackingMode = iota
	ModePnP
	ModeDeepPose
)

func (m TrackingMode) String() string {
	switch m {
	case ModeEssentialMatrix:
		return "EssentialMatrix"
	case ModePnP:
		return "PnP"
	case ModeDeepPose:
		return "DeepPose"
	default:
		return "unknown"
	}
}

// Engine is the per-frame state machine that drives keypoint sampling,
// two-view and PnP tracking, scale recovery, and global pose integration.
// It owns the reference/current FrameBuffer pair and the global
// trajectory; trackers receive only the buffers they need per call and
// never mutate the trajectory themselves.
type Engine struct {
	cfg *config.Config
	K   Intrinsics

	eTracker   *EssentialTracker
	pnpTracker *PnpTracker

	stage        int
	ref, cur     *FrameBuffer
	globalPoses  map[int]SE3
	trackingMode TrackingMode

	rng   *rand.Rand
	Stats *Timer

	// ctx bounds worker-pool calls (ComputePose2D2DParallel) dispatched
	// from Step; Run sets it to its own context at the start of each call.
	ctx context.Context

	// OnFrame, if set, is called after each frame is stepped (including
	// bootstrap), so a host like cmd/dfvo can drive a progress bar,
	// structured per-frame logging, or a live trajectory-map render
	// without the engine importing any of that.
	OnFrame func(id int, mode TrackingMode, pose SE3)
}

// NewEngine constructs an orchestrator bound to one camera's intrinsics
// and a fully-defaulted configuration.
func NewEngine(cfg *config.Config, K Intrinsics, seed int64) *Engine {
	return &Engine{
		cfg: cfg,
		K:   K,
		eTracker: NewEssentialTracker(K, cfg.Compute2D2DPose),
		pnpTracker: NewPnpTracker(K, PnpTrackerConfig{
			ReprojThre: cfg.Compute2D2DPose.Ransac.ReprojThre,
			MaxTrials:  cfg.ScaleRecovery.Ransac.MaxTrials,
		}),
		globalPoses: make(map[int]SE3),
		rng:         rand.New(rand.NewSource(seed)),
		Stats:       NewTimer(),
		ctx:         context.Background(),
	}
}

// FrameInput bundles the per-frame ingest data described in §4.7 step 1.
type FrameInput struct {
	ID             int
	Timestamp      float64
	Img            gocv.Mat
	RawDepth       *DepthImage
	Flow           *FlowImage // observed optical flow, reference -> current, indexed by reference pixel
	PredictedDepth *DepthImage
	DeepPose       *SE3
	GroundTruth    *SE3 // only consulted at bootstrap
}

// Step ingests one frame and advances the state machine by exactly one
// frame, per §4.7.
func (e *Engine) Step(in FrameInput) error {
	if e.stage == 0 {
		return e.bootstrap(in)
	}
	return e.steady(in)
}

func (e *Engine) bootstrap(in FrameInput) error {
	pose := Identity()
	if in.GroundTruth != nil {
		pose = *in.GroundTruth
	}
	e.globalPoses[in.ID] = pose.Clone()

	e.cur = NewFrameBuffer(in.ID, in.Timestamp, in.Img)
	e.cur.RawDepth = in.RawDepth
	e.cur.Depth = in.PredictedDepth
	poseClone := pose.Clone()
	e.cur.Pose = &poseClone
	motionIdentity := Identity()
	e.cur.Motion = &motionIdentity

	e.advance()
	e.stage++
	return nil
}

func (e *Engine) steady(in FrameInput) error {
	e.stage++

	cur := NewFrameBuffer(in.ID, in.Timestamp, in.Img)
	cur.RawDepth = in.RawDepth
	cur.Depth = in.PredictedDepth
	if in.Flow != nil {
		cur.Flow[e.ref.ID] = in.Flow
	}
	if in.DeepPose != nil {
		cur.DeepPose[e.ref.ID] = in.DeepPose
	}
	e.cur = cur

	if in.Flow == nil {
		return newTrackingError("engine", DataUnavailable, nil)
	}

	provisional := Identity()
	if dp := cur.DeepPose[e.ref.ID]; dp != nil {
		provisional = *dp
	} else if e.ref.Motion != nil {
		provisional = *e.ref.Motion
	}
	sample := e.resampleKeypoints(provisional)

	if !sample.GoodKpFound {
		e.applyRelativePose(*e.ref.Motion)
		e.advance()
		return nil
	}
	cur.KpBest = sample.KpCurBest
	e.ref.KpBest = sample.KpRefBest
	cur.KpDepth = sample.KpCurDepth
	e.ref.KpDepth = sample.KpRefDepth

	hybridPose, mode, err := e.track(sample)
	if err != nil {
		return err
	}
	e.trackingMode = mode

	e.applyRelativePose(hybridPose)
	e.advance()
	return nil
}

// track implements §4.7 step 4: the hybrid/PnP/deep_pose branch.
func (e *Engine) track(sample SampleResult) (SE3, TrackingMode, error) {
	switch e.cfg.TrackingMethod {
	case config.TrackingDeepPose:
		dp := e.cur.DeepPose[e.ref.ID]
		if dp == nil {
			return Identity(), ModeDeepPose, newTrackingError("engine", DataUnavailable, nil)
		}
		return *dp, ModeDeepPose, nil

	case config.TrackingPnP:
		kpRefP, kpCurP := e.keypointSourceFor(e.cfg.PnpTracker.KpSrc, sample)
		pose, inliers, err := e.computePnP(kpRefP, kpCurP)
		if err != nil {
			return Identity(), ModePnP, nil
		}
		e.cur.Inliers[e.ref.ID] = inliers
		return pose, ModePnP, nil

	default: // hybrid
		return e.trackHybrid(sample)
	}
}

func (e *Engine) trackHybrid(sample SampleResult) (SE3, TrackingMode, error) {
	kpRefE, kpCurE := e.keypointSourceFor(e.cfg.ETracker.KpSrc, sample)

	ePose, eInliers, err := e.computePose2D2D(kpRefE, kpCurE)
	if err != nil {
		return Identity(), ModeEssentialMatrix, err
	}
	e.cur.Inliers[e.ref.ID] = eInliers
	if !AnyTrue(eInliers) {
		WarnOnce("essential tracker accepted a pose with zero RANSAC inliers")
	}

	hybridPose := SE3{R: mat.DenseCopyOf(ePose.R), T: mat.NewDense(3, 1, nil)}

	scaleOK := ePose.NormT() != 0
	var scale float64 = ScaleUnrecoverableSentinel
	if scaleOK {
		kpRefS, kpCurS := e.keypointSourceFor(e.cfg.ScaleRecovery.KpSrc, sample)
		scale = e.recoverScaleFor(ePose, kpRefS, kpCurS)
		if scale != ScaleUnrecoverableSentinel {
			hybridPose.T.Scale(scale, ePose.T)
			e.eTracker.SetPrevScale(scale)
		}
	}

	// §4.4 iterative_kp: re-sample kp with the just-estimated hybrid_pose
	// (re-running C3's depth-consistency check and C2's keypoint sampler
	// under it) before redoing C4, rather than reusing the static sample
	// taken before any pose estimate existed.
	if e.cfg.ETracker.IterativeKp.Enable && scaleOK {
		resampled := e.resampleKeypoints(hybridPose)
		if resampled.GoodKpFound {
			kpRefIt, kpCurIt := e.keypointSourceFor(e.cfg.ETracker.IterativeKp.KpSrc, resampled)
			rePose, reInliers, err := e.computePose2D2D(kpRefIt, kpCurIt)
			if err == nil && rePose.NormT() != 0 {
				ePose = rePose
				e.cur.Inliers[e.ref.ID] = reInliers
				hybridPose.R = mat.DenseCopyOf(ePose.R)

				if e.cfg.ScaleRecovery.Method == config.ScaleIterative {
					rescale := e.recoverScaleFor(ePose, kpRefIt, kpCurIt)
					if rescale != ScaleUnrecoverableSentinel {
						hybridPose.T.Scale(rescale, ePose.T)
						e.eTracker.SetPrevScale(rescale)
						scale = rescale
					}
				} else {
					// §9 open question: scale_recovery.method other than iterative while
					// e_tracker.iterative_kp is enabled re-uses the most recently
					// accepted scale; with none accepted, the translation update
					// is skipped and the previous hybrid_pose.t is kept.
					if prev, ok := e.eTracker.PrevScale(); ok {
						hybridPose.T.Scale(prev, ePose.T)
						scale = prev
					} else {
						scale = ScaleUnrecoverableSentinel
					}
				}
			}
		}
	}

	if !scaleOK || scale == ScaleUnrecoverableSentinel {
		kpRefP, kpCurP := e.keypointSourceFor(e.cfg.PnpTracker.KpSrc, sample)
		pnpPose, inliers, err := e.computePnP(kpRefP, kpCurP)
		if err != nil {
			return Identity(), ModePnP, nil
		}
		e.cur.Inliers[e.ref.ID] = inliers
		return pnpPose, ModePnP, nil
	}

	return hybridPose, ModeEssentialMatrix, nil
}

// computePose2D2D dispatches C4 to the worker-pool RANSAC variant when
// use_multiprocessing is set, matching spec §6's use_multiprocessing flag.
func (e *Engine) computePose2D2D(kpRef, kpCur *mat.Dense) (SE3, []bool, error) {
	if e.cfg.UseMultiprocessing {
		return e.eTracker.ComputePose2D2DParallel(e.ctx, kpRef, kpCur, e.rng)
	}
	return e.eTracker.ComputePose2D2D(kpRef, kpCur, e.rng)
}

// computePnP runs C6 and, when pnp_tracker.iterative_kp is enabled,
// re-samples keypoints under the pose it just produced (agreeing with the
// induced rigid flow) and re-solves once more, mirroring C4's
// iterative_kp contract (§4.6).
func (e *Engine) computePnP(kpRef, kpCur *mat.Dense) (SE3, []bool, error) {
	pose, inliers, err := e.pnpTracker.ComputePose3D2D(kpRef, kpCur, e.ref.Depth, e.rng)
	if err != nil {
		return pose, inliers, err
	}
	if !AnyTrue(inliers) {
		WarnOnce("pnp tracker accepted a pose with zero RANSAC inliers")
	}
	// ComputePose3D2D solves reference -> current; the chain integrates
	// the essential tracker's current -> reference orientation.
	pose = pose.Inv()

	if e.cfg.PnpTracker.IterativeKp.Enable {
		resampled := e.resampleKeypoints(pose)
		if resampled.GoodKpFound {
			kpRefIt, kpCurIt := e.keypointSourceFor(e.cfg.PnpTracker.IterativeKp.KpSrc, resampled)
			rePose, reInliers, rerr := e.pnpTracker.ComputePose3D2D(kpRefIt, kpCurIt, e.ref.Depth, e.rng)
			if rerr == nil {
				return rePose.Inv(), reInliers, nil
			}
		}
	}
	return pose, inliers, nil
}

// resampleKeypoints re-runs C3 (depth-consistency) and C2 (keypoint
// sampling) against the reference frame's observed flow under a newly
// estimated provisional pose, the way original_source's
// compute_rigid_flow_kp re-derives keypoints once a pose estimate
// exists, rather than reusing the single static sample taken before any
// pose was known. provisional is in the orientation the chain integrates
// (current -> reference view); it is inverted to the reference -> current
// pose that CheckDepthConsistency takes.
func (e *Engine) resampleKeypoints(provisional SE3) SampleResult {
	flow := e.cur.Flow[e.ref.ID]
	if flow == nil {
		return SampleResult{}
	}

	var rigidFlowMask *DepthImage
	flowDiff := NewDepthImage(flow.W, flow.H)
	if e.cfg.KpSelection.DepthConsistency.Enable && e.ref.Depth != nil {
		mask, diff := CheckDepthConsistency(e.ref.Depth, e.K, provisional.Inv(), flow, e.cfg.KpSelection.DepthConsistency.Thre)
		rigidFlowMask = mask
		flowDiff = diff
		e.cur.RigidFlowMask = mask
		e.cur.RigidFlowDiff[e.ref.ID] = diff
	}

	sampleCfg := KeypointSamplerConfig{
		NumKp:            800,
		MinGoodKp:        50,
		DepthConsistency: e.cfg.KpSelection.DepthConsistency.Enable,
		GoodDepthKp:      e.cfg.KpSelection.GoodDepthKp.Enable,
	}
	return SampleKeypoints(flow, flowDiff, rigidFlowMask, e.ref.Depth, e.cur.Depth, sampleCfg)
}

func (e *Engine) recoverScaleFor(ePose SE3, kpRef, kpCur *mat.Dense) float64 {
	if e.ref.Depth == nil {
		return ScaleUnrecoverableSentinel
	}
	if e.cfg.ScaleRecovery.Method != config.ScaleIterative {
		return RecoverScale(kpRef, kpCur, e.K, ePose, e.ref.Depth, e.cfg.ScaleRecovery.Ransac, e.rng)
	}

	initial := 1.0
	if prev, ok := e.eTracker.PrevScale(); ok {
		initial = prev
	}
	// §4.5 iterative mode: each iteration re-derives kp_depth under the
	// rescaled provisional pose via C3+C2, rather than regressing against
	// the same static keypoints every pass.
	resample := func(provisional SE3) (*mat.Dense, *mat.Dense) {
		resampled := e.resampleKeypoints(provisional)
		if !resampled.GoodKpFound {
			return kpRef, kpCur
		}
		return e.keypointSourceFor(e.cfg.ScaleRecovery.KpSrc, resampled)
	}
	return RecoverScaleIterative(ePose, e.K, e.ref.Depth, resample, initial, e.cfg.ScaleRecovery.Ransac, DefaultIterativeScaleConfig(), e.rng)
}

func (e *Engine) keypointSourceFor(src config.KeypointSource, sample SampleResult) (*mat.Dense, *mat.Dense) {
	if src == config.KpDepth {
		return sample.KpRefDepth, sample.KpCurDepth
	}
	return sample.KpRefBest, sample.KpCurBest
}

// applyRelativePose implements §4.7 step 5: global pose integration.
func (e *Engine) applyRelativePose(hybridPose SE3) {
	const scale = 1.0
	global := e.ref.Pose.Clone()

	var dt mat.Dense
	dt.Mul(global.R, hybridPose.T)
	dt.Scale(scale, &dt)
	var newT mat.Dense
	newT.Add(global.T, &dt)

	var newR mat.Dense
	newR.Mul(global.R, hybridPose.R)

	newPose := SE3{R: mat.DenseCopyOf(&newR), T: mat.DenseCopyOf(&newT)}
	e.cur.Pose = &newPose
	e.cur.Motion = &hybridPose
	e.globalPoses[e.cur.ID] = newPose.Clone()
}

// advance implements §4.7 step 6: copy current into reference, clear
// per-pair flow state, make the new reference the frame just processed.
func (e *Engine) advance() {
	e.cur.Flow = make(map[int]*FlowImage)
	e.cur.FlowDiff = make(map[int]*DepthImage)
	if e.ref != nil {
		e.ref.Close()
	}
	e.ref = e.cur
	e.cur = nil
}

// GlobalPoses returns the integrated trajectory in frame-id order.
func (e *Engine) GlobalPoses() map[int]SE3 { return e.globalPoses }

// TrackingMode returns the tracker that produced the most recently
// integrated frame's relative pose.
func (e *Engine) TrackingMode() TrackingMode { return e.trackingMode }

// Run drives the engine end to end over a Dataset and PerceptionSource,
// honoring cfg.FrameStep as the stride in id space.
func (e *Engine) Run(ctx context.Context, ds Dataset, perception PerceptionSource) error {
	e.ctx = ctx
	step := e.cfg.FrameStep
	if step <= 0 {
		step = 1
	}

	gtPoses, haveGT := ds.GetGroundTruthPoses()

	for i := 0; i < ds.Len(); i += step {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ts, err := ds.GetTimestamp(i)
		if err != nil {
			return fmt.Errorf("engine: frame %d: %w", i, err)
		}
		img, err := ds.GetImage(i)
		if err != nil {
			return fmt.Errorf("engine: frame %d image: %w", i, err)
		}

		in := FrameInput{ID: i, Timestamp: ts, Img: img}
		if haveGT && i < len(gtPoses) {
			gt := gtPoses[i]
			in.GroundTruth = &gt
		}

		depth, err := ds.GetDepth(i)
		if err != nil {
			return fmt.Errorf("engine: frame %d depth: %w", i, err)
		}
		in.RawDepth = depth

		if i == 0 {
			in.PredictedDepth = depth
			if err := e.Step(in); err != nil {
				return fmt.Errorf("engine: bootstrap: %w", err)
			}
			if e.OnFrame != nil {
				e.OnFrame(i, e.trackingMode, e.globalPoses[i])
			}
			continue
		}

		if perception != nil && e.ref != nil {
			refID := e.ref.ID
			pf, err := perception.Predict(ctx, []int{refID}, map[int]FrameImage{refID: matToFrameImage(e.ref.Img)}, i, matToFrameImage(img))
			if err != nil {
				return fmt.Errorf("engine: frame %d perception: %w", i, err)
			}
			in.Flow = pf.Flow[refID]
			in.DeepPose = pf.DeepPose[refID]
			if depth == nil {
				depth = pf.Depth
			}
		}
		in.PredictedDepth = depth

		if err := e.Step(in); err != nil {
			return fmt.Errorf("engine: frame %d: %w", i, err)
		}
		if e.OnFrame != nil {
			e.OnFrame(i, e.trackingMode, e.globalPoses[i])
		}
	}
	return nil
}

// matToFrameImage converts a gocv.Mat to the minimal image handle
// PerceptionSource implementations consume, decoupling that interface
// from a hard gocv dependency.
func matToFrameImage(m gocv.Mat) FrameImage {
	return FrameImage{Width: m.Cols(), Height: m.Rows(), Data: m.ToBytes()}
}
