package dfvo

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// KeypointSamplerConfig controls how many points are drawn and which
// validity signals gate candidate pixels.
type KeypointSamplerConfig struct {
	NumKp                int
	MinGoodKp            int  // below this count, GoodKpFound is false
	DepthConsistency     bool // require rigidFlowMask when true
	GoodDepthKp          bool // also sample kp_depth from depth-valid pixels
}

// SampleResult is the output of one keypoint-sampling pass over a
// reference/current frame pair.
type SampleResult struct {
	KpRefBest, KpCurBest   *mat.Dense // Nx2 pixel coordinates
	KpRefDepth, KpCurDepth *mat.Dense
	GoodKpFound            bool
}

type candidate struct {
	u, v     int
	flowDiff float64
}

// SampleKeypoints selects kp_best and kp_depth correspondences between a
// reference frame and the current frame from dense optical flow and its
// forward-backward consistency residual.
//
// flow gives, for each reference pixel (u,v), the displacement to its
// match in the current frame; flowDiff gives the per-pixel consistency
// residual used to rank candidates (ascending: best matches first).
// depthMaskRef/depthMaskCur mark pixels with valid depth in each frame and
// are consulted only for kp_depth; kp_best never reads them (with
// DepthConsistency enabled it is filtered by rigidFlowMask instead).
func SampleKeypoints(flow *FlowImage, flowDiff *DepthImage, rigidFlowMask *DepthImage,
	depthMaskRef, depthMaskCur *DepthImage, cfg KeypointSamplerConfig) SampleResult {

	h, w := flow.H, flow.W
	candidates := make([]candidate, 0, h*w)
	depthCandidates := make([]candidate, 0, h*w)

	for v := 0; v < h; v++ {
		for u := 0; u < w; u++ {
			idx := v*w + u
			fu, fv := flow.At(u, v)
			cu, cv := u+int(fu), v+int(fv)
			if cu < 0 || cu >= w || cv < 0 || cv >= h {
				continue
			}

			if cfg.DepthConsistency && rigidFlowMask != nil && rigidFlowMask.At(u, v) == 0 {
				continue
			}

			c := candidate{u: u, v: v, flowDiff: flowDiff.Data[idx]}
			candidates = append(candidates, c)

			if cfg.GoodDepthKp && depthMaskRef != nil && depthMaskCur != nil {
				if depthMaskRef.At(u, v) > 0 && depthMaskCur.At(cu, cv) > 0 {
					depthCandidates = append(depthCandidates, c)
				}
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].flowDiff < candidates[j].flowDiff })
	sort.Slice(depthCandidates, func(i, j int) bool { return depthCandidates[i].flowDiff < depthCandidates[j].flowDiff })

	n := cfg.NumKp
	if n > len(candidates) {
		n = len(candidates)
	}
	kpRefBest, kpCurBest := toKeypoints(candidates[:n], flow)

	var kpRefDepth, kpCurDepth *mat.Dense
	if cfg.GoodDepthKp {
		nd := cfg.NumKp
		if nd > len(depthCandidates) {
			nd = len(depthCandidates)
		}
		kpRefDepth, kpCurDepth = toKeypoints(depthCandidates[:nd], flow)
	} else {
		kpRefDepth, kpCurDepth = kpRefBest, kpCurBest
	}

	return SampleResult{
		KpRefBest:   kpRefBest,
		KpCurBest:   kpCurBest,
		KpRefDepth:  kpRefDepth,
		KpCurDepth:  kpCurDepth,
		GoodKpFound: n >= cfg.MinGoodKp,
	}
}

func toKeypoints(cands []candidate, flow *FlowImage) (ref, cur *mat.Dense) {
	ref = mat.NewDense(len(cands), 2, nil)
	cur = mat.NewDense(len(cands), 2, nil)
	for i, c := range cands {
		fu, fv := flow.At(c.u, c.v)
		ref.Set(i, 0, float64(c.u))
		ref.Set(i, 1, float64(c.v))
		cur.Set(i, 0, float64(c.u)+fu)
		cur.Set(i, 1, float64(c.v)+fv)
	}
	return ref, cur
}
