/*
Package dfvo implements a monocular visual-odometry pipeline: given a
sequence of RGB frames from a single calibrated camera, augmented with
externally-produced dense optical-flow and depth predictions, it estimates
the camera trajectory as a chain of SE3 rigid transforms in a global
reference frame.

The pipeline per frame is:

 1. keypoint sampling driven by optical-flow/depth consistency (SampleKeypoints)
 2. two-view geometry via essential-matrix RANSAC (EssentialTracker)
 3. depth-triangulation scale recovery against predicted depth (RecoverScale)
 4. an optional iterative refinement loop that re-samples keypoints under
    the current pose estimate
 5. a 3D-2D PnP fallback tracker (PnpTracker)
 6. integration of the resulting relative pose into the global trajectory,
    with constant-motion fallback

Dataset loading, deep-network inference, configuration parsing, and
trajectory visualization are treated as external collaborators (see the
Dataset and PerceptionSource interfaces); this package only consumes their
outputs.
*/
package dfvo
