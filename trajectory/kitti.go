// Package trajectory reads and writes camera trajectories in the KITTI
// odometry text format and computes drift metrics against ground truth.
package trajectory

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/monovo/dfvo"
)

// WriteKITTI writes poses in ascending frame-id order as one
// whitespace-separated, 12-float line per frame: the row-major flatten of
// the top 3 rows of each pose's 4x4 homogeneous matrix.
func WriteKITTI(path string, poses []dfvo.SE3) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("trajectory: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, p := range poses {
		m := p.Mat4()
		fields := make([]string, 0, 12)
		for row := 0; row < 3; row++ {
			for col := 0; col < 4; col++ {
				fields = append(fields, strconv.FormatFloat(m.At(row, col), 'e', -1, 64))
			}
		}
		if _, err := fmt.Fprintln(w, strings.Join(fields, " ")); err != nil {
			return fmt.Errorf("trajectory: write %s: %w", path, err)
		}
	}
	return w.Flush()
}

// ReadKITTI parses a KITTI odometry trajectory file back into a sequence
// of SE3 poses, in file order.
func ReadKITTI(path string) ([]dfvo.SE3, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("trajectory: open %s: %w", path, err)
	}
	defer f.Close()

	var poses []dfvo.SE3
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 12 {
			return nil, fmt.Errorf("trajectory: %s line %d: expected 12 fields, got %d", path, lineNo, len(fields))
		}
		vals := make([]float64, 12)
		for i, tok := range fields {
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return nil, fmt.Errorf("trajectory: %s line %d: %w", path, lineNo, err)
			}
			vals[i] = v
		}
		poses = append(poses, rowsToSE3(vals))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("trajectory: read %s: %w", path, err)
	}
	return poses, nil
}

func rowsToSE3(v []float64) dfvo.SE3 {
	m := mat.NewDense(4, 4, nil)
	idx := 0
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			m.Set(row, col, v[idx])
			idx++
		}
	}
	m.Set(3, 3, 1)
	return dfvo.FromMat4(m)
}
