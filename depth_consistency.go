package dfvo

import "math"

// CheckDepthConsistency synthesizes the rigid flow implied by depthRef and
// the provisional pose refToCur, compares it against the observed optical
// flow, and marks pixels whose residual is below thre. Calling it again
// with the same depthRef/flow/pose is idempotent.
func CheckDepthConsistency(depthRef *DepthImage, K Intrinsics, refToCur SE3, observedFlow *FlowImage, thre float64) (mask, diff *DepthImage) {
	rigid := RigidFlow(depthRef, K, refToCur)

	mask = NewDepthImage(depthRef.W, depthRef.H)
	diff = NewDepthImage(depthRef.W, depthRef.H)

	for v := 0; v < depthRef.H; v++ {
		for u := 0; u < depthRef.W; u++ {
			idx := v*depthRef.W + u
			du := observedFlow.U[idx] - rigid.U[idx]
			dv := observedFlow.V[idx] - rigid.V[idx]
			residual := math.Sqrt(du*du + dv*dv)
			diff.Data[idx] = residual
			if residual < thre {
				mask.Data[idx] = 1
			}
		}
	}
	return mask, diff
}
