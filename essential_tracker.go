package dfvo

import (
	"context"
	"math"
	"math/rand"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/monovo/dfvo/config"
	"github.com/monovo/dfvo/internal/epipolar"
)

const (
	cheiralityAcceptFloor = 0.10 // §4.4 "accept only when cheirality count exceeds 10%"
	cheiralityTrialFloor  = 0.05 // §4.4 "cheirality count ... must exceed 5% of correspondences"
)

// EssentialTracker recovers the 2D-2D relative pose between a reference
// and current frame via repeated, shuffled RANSAC Essential-matrix
// estimation with majority validation. It owns prevScale, the single
// scalar shared with scale recovery's iterative mode (§5: "no concurrent
// access").
type EssentialTracker struct {
	K         Intrinsics
	Cfg       config.Compute2D2DPose
	prevScale float64
	haveScale bool
}

// NewEssentialTracker constructs a tracker for a fixed camera.
func NewEssentialTracker(K Intrinsics, cfg config.Compute2D2DPose) *EssentialTracker {
	return &EssentialTracker{K: K, Cfg: cfg}
}

// PrevScale returns the most recently accepted scale and whether one has
// ever been accepted.
func (t *EssentialTracker) PrevScale() (float64, bool) { return t.prevScale, t.haveScale }

// SetPrevScale records a newly accepted scale, owned exclusively by this
// tracker per the concurrency model.
func (t *EssentialTracker) SetPrevScale(s float64) {
	t.prevScale = s
	t.haveScale = true
}

type ransacTrial struct {
	valid   bool
	inliers []bool
	E       *mat.Dense
}

// ComputePose2D2D solves the 2D-2D relative pose from matched pixel
// keypoints. kpRef/kpCur are Nx2 pixel coordinate matrices. The returned
// SE3 encodes the transform from current to reference view.
func (t *EssentialTracker) ComputePose2D2D(kpRef, kpCur *mat.Dense, rng *rand.Rand) (SE3, []bool, error) {
	proceed, hIn, hOut, err := t.validityPrecheck(kpRef, kpCur)
	if err != nil {
		return Identity(), nil, err
	}
	if !proceed {
		n, _ := kpRef.Dims()
		return Identity(), allTrue(n), nil
	}

	pRef, pCur := t.normalize(kpRef, kpCur)
	results := make([]ransacTrial, t.Cfg.Ransac.Repeat)
	for i := 0; i < t.Cfg.Ransac.Repeat; i++ {
		results[i] = t.runOneTrial(pRef, pCur, hIn, hOut, rng)
	}
	return t.aggregate(results, pRef, pCur, kpRef, kpCur)
}

// ComputePose2D2DParallel performs the same repeated RANSAC as
// ComputePose2D2D, but runs the R iterations across a worker pool. Each
// worker receives an independent snapshot of the permuted correspondence
// arrays and a private rng; no mutable state is shared between workers.
func (t *EssentialTracker) ComputePose2D2DParallel(ctx context.Context, kpRef, kpCur *mat.Dense, rng *rand.Rand) (SE3, []bool, error) {
	proceed, hIn, hOut, err := t.validityPrecheck(kpRef, kpCur)
	if err != nil {
		return Identity(), nil, err
	}
	if !proceed {
		n, _ := kpRef.Dims()
		return Identity(), allTrue(n), nil
	}

	pRef, pCur := t.normalize(kpRef, kpCur)
	results := make([]ransacTrial, t.Cfg.Ransac.Repeat)

	g, _ := errgroup.WithContext(ctx)
	for i := 0; i < t.Cfg.Ransac.Repeat; i++ {
		i := i
		workerSeed := rng.Int63()
		g.Go(func() error {
			workerRng := rand.New(rand.NewSource(workerSeed + int64(i)))
			results[i] = t.runOneTrial(pRef, pCur, hIn, hOut, workerRng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Identity(), nil, err
	}
	return t.aggregate(results, pRef, pCur, kpRef, kpCur)
}

// validityPrecheck runs the mode-specific pre-check. proceed == false
// (with no error) signals "skip RANSAC, return identity". homoIn/homoTotal
// are populated only in homo_ratio mode.
func (t *EssentialTracker) validityPrecheck(kpRef, kpCur *mat.Dense) (proceed bool, homoIn, homoTotal int, err error) {
	n, _ := kpRef.Dims()
	if n < 8 {
		return false, 0, 0, nil
	}

	switch t.Cfg.Validity.Method {
	case config.ValidityFlow:
		mean := meanDisplacement(kpRef, kpCur)
		if mean <= t.Cfg.Validity.Thre {
			return false, 0, 0, nil
		}
		return true, 0, 0, nil

	case config.ValidityHomoRatio:
		hIn, hTotal, ok := homographyInlierCounts(kpRef, kpCur, t.Cfg.Ransac.ReprojThre)
		if !ok {
			return false, 0, 0, nil
		}
		return true, hIn, hTotal, nil

	default:
		return false, 0, 0, newTrackingError("essential_tracker", UnsupportedConfiguration, nil)
	}
}

func (t *EssentialTracker) runOneTrial(pRef, pCur []epipolar.Point2, homoIn, homoTotal int, rng *rand.Rand) ransacTrial {
	n := len(pRef)
	perm := rng.Perm(n)
	shufRef := make([]epipolar.Point2, n)
	shufCur := make([]epipolar.Point2, n)
	for i, p := range perm {
		shufRef[i] = pRef[p]
		shufCur[i] = pCur[p]
	}

	E, eIn, eCount := epipolar.RansacEssential(shufRef, shufCur, t.Cfg.Ransac.ReprojThre, 0.99, 200, rng)
	if E == nil {
		return ransacTrial{}
	}

	switch t.Cfg.Validity.Method {
	case config.ValidityHomoRatio:
		ratio := float64(homoIn) / float64(homoIn+eCount)
		if ratio >= t.Cfg.Validity.Thre {
			return ransacTrial{}
		}
	case config.ValidityFlow:
		_, _, cheiralCount := epipolar.RecoverPose(E, shufRef, shufCur)
		if float64(cheiralCount) <= cheiralityTrialFloor*float64(n) {
			return ransacTrial{}
		}
	}

	// de-permute the inlier mask back to the original ordering
	inliers := make([]bool, n)
	for i, p := range perm {
		inliers[p] = eIn[i]
	}
	return ransacTrial{valid: true, inliers: inliers, E: E}
}

func (t *EssentialTracker) aggregate(results []ransacTrial, pRef, pCur []epipolar.Point2, kpRef, kpCur *mat.Dense) (SE3, []bool, error) {
	validCount := 0
	bestInlierN := -1
	var bestE *mat.Dense
	var bestInliers []bool

	for _, r := range results {
		if !r.valid {
			continue
		}
		validCount++
		n := countTrue(r.inliers)
		if n > bestInlierN {
			bestInlierN = n
			bestE = r.E
			bestInliers = r.inliers
		}
	}

	n, _ := kpRef.Dims()
	if validCount <= t.Cfg.Ransac.Repeat/2 || bestE == nil {
		return Identity(), allTrue(n), nil
	}

	R, tr, cheiralCount := epipolar.RecoverPose(bestE, pRef, pCur)
	if float64(cheiralCount) <= cheiralityAcceptFloor*float64(n) {
		return Identity(), allTrue(n), nil
	}

	// RecoverPose yields reference -> current; invert it to the current ->
	// reference view this tracker returns.
	pose := FromMat4(epipolar.PoseToTransform(R, tr)).Inv()
	return pose, bestInliers, nil
}

func (t *EssentialTracker) normalize(kpRef, kpCur *mat.Dense) ([]epipolar.Point2, []epipolar.Point2) {
	n, _ := kpRef.Dims()
	pRef := make([]epipolar.Point2, n)
	pCur := make([]epipolar.Point2, n)
	for i := 0; i < n; i++ {
		x, y := t.K.NormalizePoint(kpRef.At(i, 0), kpRef.At(i, 1))
		pRef[i] = epipolar.Point2{X: x, Y: y}
		x, y = t.K.NormalizePoint(kpCur.At(i, 0), kpCur.At(i, 1))
		pCur[i] = epipolar.Point2{X: x, Y: y}
	}
	return pRef, pCur
}

func meanDisplacement(kpRef, kpCur *mat.Dense) float64 {
	n, _ := kpRef.Dims()
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		dx := kpRef.At(i, 0) - kpCur.At(i, 0)
		dy := kpRef.At(i, 1) - kpCur.At(i, 1)
		sum += math.Sqrt(dx*dx + dy*dy)
	}
	return sum / float64(n)
}

func allTrue(n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = true
	}
	return out
}

func countTrue(mask []bool) int {
	c := 0
	for _, v := range mask {
		if v {
			c++
		}
	}
	return c
}
