/*
Package drawing renders the output of a tracking run onto images: the
sampled keypoints and their RANSAC inlier/outlier status on a frame, and
a growing trajectory map tracing the estimated camera path against an
optional ground-truth overlay.

This package is consumed only by the CLI host; the core tracking pipeline
never imports it.

# Components

Drawer: primitive drawing operations (circle, line, cross, text, blend)
Color / Palette: BGR color type and deterministic per-track color choice
KeypointOverlay: draws sampled keypoints colored by inlier status
TrajectoryMap: accumulates a top-down trajectory trail on a fading canvas
*/
package drawing
