// Command dfvo-bench compares the wall-clock cost of sequential and
// worker-pool RANSAC Essential-matrix estimation over a synthetic scene,
// the way a teacher's own benchmark harness times sequential and filtered
// update paths side by side.
package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/monovo/dfvo"
	"github.com/monovo/dfvo/config"
)

// syntheticCorrespondences projects n random 3D points through two views
// separated by a small known rotation and translation, returning matched
// pixel keypoints with no noise.
func syntheticCorrespondences(n int, k dfvo.Intrinsics, pose dfvo.SE3, seed int64) (kpRef, kpCur *mat.Dense) {
	rng := rand.New(rand.NewSource(seed))
	refRows := make([]float64, 0, n*2)
	curRows := make([]float64, 0, n*2)

	K := k.K()
	for len(refRows) < n*2 {
		x := (rng.Float64() - 0.5) * 4
		y := (rng.Float64() - 0.5) * 3
		z := 6 + rng.Float64()*6

		pRef := mat.NewDense(3, 1, []float64{x, y, z})
		var pCur mat.Dense
		pCur.Mul(pose.R, pRef)
		pCur.Add(&pCur, pose.T)
		if pCur.At(2, 0) <= 0 {
			continue
		}

		uRef, vRef := project(K, x, y, z)
		uCur, vCur := project(K, pCur.At(0, 0), pCur.At(1, 0), pCur.At(2, 0))
		refRows = append(refRows, uRef, vRef)
		curRows = append(curRows, uCur, vCur)
	}
	return mat.NewDense(n, 2, refRows), mat.NewDense(n, 2, curRows)
}

func project(K *mat.Dense, x, y, z float64) (u, v float64) {
	return K.At(0, 0)*x/z + K.At(0, 2), K.At(1, 1)*y/z + K.At(1, 2)
}

func runOnce(name string, n int, fn func() error) {
	t0 := time.Now()
	if err := fn(); err != nil {
		fmt.Printf("%-12s n=%-5d  error: %v\n", name, n, err)
		return
	}
	elapsed := time.Since(t0)
	fmt.Printf("%-12s n=%-5d  %8.3fms\n", name, n, float64(elapsed.Microseconds())/1000.0)
}

func main() {
	k := dfvo.Intrinsics{Fx: 600, Fy: 600, Cx: 320, Cy: 240}
	theta := 0.05
	pose := dfvo.SE3{
		R: mat.NewDense(3, 3, []float64{
			math.Cos(theta), 0, math.Sin(theta),
			0, 1, 0,
			-math.Sin(theta), 0, math.Cos(theta),
		}),
		T: mat.NewDense(3, 1, []float64{0.3, 0, 0}),
	}

	cfg := config.New(nil).Compute2D2DPose
	sizes := []int{50, 200, 800}

	fmt.Println("method       points      elapsed")
	for _, n := range sizes {
		kpRef, kpCur := syntheticCorrespondences(n, k, pose, 7)

		runOnce("sequential", n, func() error {
			tracker := dfvo.NewEssentialTracker(k, cfg)
			_, _, err := tracker.ComputePose2D2D(kpRef, kpCur, rand.New(rand.NewSource(7)))
			return err
		})

		runOnce("parallel", n, func() error {
			tracker := dfvo.NewEssentialTracker(k, cfg)
			_, _, err := tracker.ComputePose2D2DParallel(context.Background(), kpRef, kpCur, rand.New(rand.NewSource(7)))
			return err
		})
	}
}
