package trajectory

import (
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/monovo/dfvo"
)

func testPoses() []dfvo.SE3 {
	return []dfvo.SE3{
		dfvo.Identity(),
		dfvo.NewSE3(
			mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}),
			mat.NewDense(3, 1, []float64{1.5, 0, 0}),
		),
		dfvo.NewSE3(
			mat.NewDense(3, 3, []float64{0, -1, 0, 1, 0, 0, 0, 0, 1}),
			mat.NewDense(3, 1, []float64{1.5, 0.2, -0.3}),
		),
	}
}

func TestWriteReadKITTIRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traj.txt")
	want := testPoses()

	if err := WriteKITTI(path, want); err != nil {
		t.Fatalf("WriteKITTI: %v", err)
	}
	got, err := ReadKITTI(path)
	if err != nil {
		t.Fatalf("ReadKITTI: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d poses, want %d", len(got), len(want))
	}
	for i := range want {
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				if diff := got[i].R.At(r, c) - want[i].R.At(r, c); diff > 1e-9 || diff < -1e-9 {
					t.Errorf("pose %d R[%d][%d] = %v, want %v", i, r, c, got[i].R.At(r, c), want[i].R.At(r, c))
				}
			}
			if diff := got[i].T.At(r, 0) - want[i].T.At(r, 0); diff > 1e-9 || diff < -1e-9 {
				t.Errorf("pose %d T[%d] = %v, want %v", i, r, got[i].T.At(r, 0), want[i].T.At(r, 0))
			}
		}
	}
}

func TestReadKITTIRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.txt")
	if err := os.WriteFile(path, []byte("1 0 0 0 0 1 0 0 0 0 1\n"), 0o644); err != nil { // 11 fields, not 12
		t.Fatal(err)
	}
	if _, err := ReadKITTI(path); err == nil {
		t.Fatal("expected an error for a line with the wrong field count")
	}
}

func TestReadKITTIMissingFileReturnsError(t *testing.T) {
	if _, err := ReadKITTI(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("expected an error for a missing trajectory file")
	}
}
