package imageseq

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"

	"github.com/monovo/dfvo"
)

func writeSeqInfo(t *testing.T, root string, extra string) {
	t.Helper()
	content := "[Sequence]\n" +
		"name=test\n" +
		"seqLength=2\n" +
		"imWidth=8\n" +
		"imHeight=6\n" +
		"imDir=img1\n" +
		"imExt=.png\n" +
		"frameRate=10\n" +
		"fx=4.0\n" +
		"fy=4.0\n" +
		"cx=4.0\n" +
		"cy=3.0\n" +
		extra
	if err := os.WriteFile(filepath.Join(root, "seqinfo.ini"), []byte(content), 0644); err != nil {
		t.Fatalf("write seqinfo.ini: %v", err)
	}
}

func writeTestImages(t *testing.T, root string, n int) {
	t.Helper()
	imgDir := filepath.Join(root, "img1")
	if err := os.MkdirAll(imgDir, 0755); err != nil {
		t.Fatalf("mkdir img1: %v", err)
	}
	for i := 0; i < n; i++ {
		m := gocv.NewMatWithSize(6, 8, gocv.MatTypeCV8UC3)
		path := filepath.Join(imgDir, fmt.Sprintf("%06d.png", i))
		if ok := gocv.IMWrite(path, m); !ok {
			t.Fatalf("write test image %s", path)
		}
		m.Close()
	}
}

func TestOpenParsesSeqInfo(t *testing.T) {
	root := t.TempDir()
	writeSeqInfo(t, root, "")
	writeTestImages(t, root, 2)

	ds, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if ds.Len() != 2 {
		t.Errorf("Len() = %d, want 2", ds.Len())
	}
	k := ds.CamIntrinsics()
	if k.Fx != 4.0 || k.Cy != 3.0 {
		t.Errorf("CamIntrinsics() = %+v, want fx=4 cy=3", k)
	}
	if ds.DepthSource() != dfvo.DepthSourcePredicted {
		t.Errorf("DepthSource() default should be predicted")
	}
}

func TestGetImageReadsFrame(t *testing.T) {
	root := t.TempDir()
	writeSeqInfo(t, root, "")
	writeTestImages(t, root, 2)

	ds, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	img, err := ds.GetImage(0)
	if err != nil {
		t.Fatalf("GetImage(0): %v", err)
	}
	defer img.Close()
	if img.Cols() != 8 || img.Rows() != 6 {
		t.Errorf("GetImage(0) size = %dx%d, want 8x6", img.Cols(), img.Rows())
	}

	if _, err := ds.GetImage(5); err == nil {
		t.Error("GetImage(5) should error on out-of-range frame")
	}
}

func TestGetDepthRoundTrip(t *testing.T) {
	root := t.TempDir()
	writeSeqInfo(t, root, "depthDir=depth\ndepthExt=.bin\n")
	writeTestImages(t, root, 2)

	depthDir := filepath.Join(root, "depth")
	if err := os.MkdirAll(depthDir, 0755); err != nil {
		t.Fatalf("mkdir depth: %v", err)
	}
	want := &dfvo.DepthImage{W: 8, H: 6, Data: make([]float64, 48)}
	for i := range want.Data {
		want.Data[i] = float64(i) * 0.1
	}
	if err := WriteRawDepth(filepath.Join(depthDir, "000000.bin"), want); err != nil {
		t.Fatalf("WriteRawDepth: %v", err)
	}

	ds, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := ds.GetDepth(0)
	if err != nil {
		t.Fatalf("GetDepth(0): %v", err)
	}
	for i := range want.Data {
		if diff := got.Data[i] - want.Data[i]; diff > 1e-5 || diff < -1e-5 {
			t.Fatalf("depth[%d] = %v, want %v", i, got.Data[i], want.Data[i])
		}
	}
}

func TestGetDepthNilWhenUnconfigured(t *testing.T) {
	root := t.TempDir()
	writeSeqInfo(t, root, "")
	writeTestImages(t, root, 2)

	ds, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := ds.GetDepth(0)
	if err != nil {
		t.Fatalf("GetDepth(0): %v", err)
	}
	if got != nil {
		t.Error("GetDepth should return nil when no depthDir is configured")
	}
}

func TestSaveResultTrajectoryWritesKITTI(t *testing.T) {
	root := t.TempDir()
	writeSeqInfo(t, root, "")
	writeTestImages(t, root, 2)

	ds, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	poses := []dfvo.SE3{dfvo.Identity(), dfvo.Identity()}
	out := filepath.Join(root, "result.txt")
	if err := ds.SaveResultTrajectory(out, poses); err != nil {
		t.Fatalf("SaveResultTrajectory: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("result file missing: %v", err)
	}
}
