package dfvo

import (
	"math"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// homographyInlierCounts fits a homography between kpRef and kpCur with
// RANSAC and reports the inlier count and total correspondence count used
// by the homo_ratio validity check (§4.4). ok is false when there are too
// few correspondences or OpenCV fails to produce a homography.
func homographyInlierCounts(kpRef, kpCur *mat.Dense, reprojThre float64) (inliers, total int, ok bool) {
	rows, cols := kpRef.Dims()
	if rows < 4 || cols != 2 {
		return 0, 0, false
	}

	refMat := matDenseToPointMat(kpRef)
	curMat := matDenseToPointMat(kpCur)
	defer refMat.Close()
	defer curMat.Close()

	mask := gocv.NewMat()
	defer mask.Close()

	h := gocv.FindHomography(refMat, curMat, gocv.HomographyMethodRANSAC, reprojThre, &mask, 2000, 0.995)
	defer h.Close()
	if h.Empty() {
		return 0, 0, false
	}

	return gocv.CountNonZero(mask), rows, true
}

// matDenseToPointMat converts an Nx2 gonum matrix of pixel coordinates to
// a CV_32FC2 gocv.Mat, the layout gocv.FindHomography expects.
func matDenseToPointMat(m *mat.Dense) gocv.Mat {
	rows, _ := m.Dims()
	data := make([]float32, rows*2)
	for i := 0; i < rows; i++ {
		data[i*2] = float32(m.At(i, 0))
		data[i*2+1] = float32(m.At(i, 1))
	}
	result, err := gocv.NewMatFromBytes(rows, 1, gocv.MatTypeCV32FC2, float32sToBytes(data))
	if err != nil {
		return gocv.NewMat()
	}
	return result
}

func float32sToBytes(data []float32) []byte {
	out := make([]byte, len(data)*4)
	for i, v := range data {
		bits := math.Float32bits(v)
		out[i*4] = byte(bits)
		out[i*4+1] = byte(bits >> 8)
		out[i*4+2] = byte(bits >> 16)
		out[i*4+3] = byte(bits >> 24)
	}
	return out
}
