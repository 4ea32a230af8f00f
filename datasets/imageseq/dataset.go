// Package imageseq is a reference Dataset adapter consuming a directory
// of numbered image files plus precomputed depth/flow predictions, laid
// out the way a MOTChallenge-style sequence directory is: a seqinfo.ini
// describing the sequence, and numbered frame files underneath it.
package imageseq

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"
	"gopkg.in/ini.v1"

	"github.com/monovo/dfvo"
	"github.com/monovo/dfvo/trajectory"
)

// Dataset implements dfvo.Dataset over a directory with the layout:
//
//	<root>/seqinfo.ini
//	<root>/<imDir>/<frame:06d><imExt>       RGB images
//	<root>/<depthDir>/<frame:06d><depthExt> predicted or ground-truth depth,
//	                                        raw row-major float32, no header
//	<root>/<gtFile>                        optional KITTI-format ground truth
//
// seqinfo.ini mirrors the teacher's MOTChallenge seqinfo format, extended
// with pinhole intrinsics and depth-source metadata.
type Dataset struct {
	root string

	length int
	imDir  string
	imExt  string

	depthDir  string
	depthExt  string
	hasDepth  bool
	depthKind dfvo.DepthSource

	width, height int
	k             dfvo.Intrinsics

	timestamps []float64
	gtPoses    []dfvo.SE3
	haveGT     bool
}

// Open parses seqinfo.ini under root and returns a ready Dataset. It does
// not eagerly read any image or depth file; those are loaded lazily per
// frame.
func Open(root string) (*Dataset, error) {
	iniPath := filepath.Join(root, "seqinfo.ini")
	cfg, err := ini.Load(iniPath)
	if err != nil {
		return nil, fmt.Errorf("imageseq: load %s: %w", iniPath, err)
	}
	section := cfg.Section("Sequence")

	ds := &Dataset{
		root:     root,
		length:   section.Key("seqLength").MustInt(0),
		imDir:    section.Key("imDir").MustString("img1"),
		imExt:    section.Key("imExt").MustString(".png"),
		depthDir: section.Key("depthDir").MustString(""),
		depthExt: section.Key("depthExt").MustString(".bin"),
		width:    section.Key("imWidth").MustInt(0),
		height:   section.Key("imHeight").MustInt(0),
	}
	if ds.length == 0 || ds.width == 0 || ds.height == 0 {
		return nil, fmt.Errorf("imageseq: %s: missing seqLength/imWidth/imHeight", iniPath)
	}
	ds.hasDepth = ds.depthDir != ""
	switch section.Key("depthSource").MustString("predicted") {
	case "ground_truth":
		ds.depthKind = dfvo.DepthSourceGroundTruth
	default:
		ds.depthKind = dfvo.DepthSourcePredicted
	}

	ds.k = dfvo.Intrinsics{
		Fx: section.Key("fx").MustFloat64(0),
		Fy: section.Key("fy").MustFloat64(0),
		Cx: section.Key("cx").MustFloat64(0),
		Cy: section.Key("cy").MustFloat64(0),
	}
	if ds.k.Fx == 0 || ds.k.Fy == 0 {
		return nil, fmt.Errorf("imageseq: %s: missing fx/fy intrinsics", iniPath)
	}

	frameRate := section.Key("frameRate").MustFloat64(10)
	ds.timestamps = make([]float64, ds.length)
	for i := range ds.timestamps {
		ds.timestamps[i] = float64(i) / frameRate
	}

	if gtFile := section.Key("gtFile").MustString(""); gtFile != "" {
		poses, err := trajectory.ReadKITTI(filepath.Join(root, gtFile))
		if err != nil {
			return nil, fmt.Errorf("imageseq: ground truth: %w", err)
		}
		ds.gtPoses = poses
		ds.haveGT = true
	}

	return ds, nil
}

func (ds *Dataset) Len() int { return ds.length }

func (ds *Dataset) GetTimestamp(i int) (float64, error) {
	if i < 0 || i >= ds.length {
		return 0, fmt.Errorf("imageseq: frame %d out of range [0,%d)", i, ds.length)
	}
	return ds.timestamps[i], nil
}

func (ds *Dataset) framePath(dir, ext string, i int) string {
	return filepath.Join(ds.root, dir, fmt.Sprintf("%06d%s", i, ext))
}

func (ds *Dataset) GetImage(i int) (gocv.Mat, error) {
	if i < 0 || i >= ds.length {
		return gocv.Mat{}, fmt.Errorf("imageseq: frame %d out of range [0,%d)", i, ds.length)
	}
	path := ds.framePath(ds.imDir, ds.imExt, i)
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		return gocv.Mat{}, fmt.Errorf("imageseq: read %s: empty or missing", path)
	}
	return img, nil
}

func (ds *Dataset) GetDepth(i int) (*dfvo.DepthImage, error) {
	if !ds.hasDepth {
		return nil, nil
	}
	if i < 0 || i >= ds.length {
		return nil, fmt.Errorf("imageseq: frame %d out of range [0,%d)", i, ds.length)
	}
	path := ds.framePath(ds.depthDir, ds.depthExt, i)
	return readRawDepth(path, ds.width, ds.height)
}

func (ds *Dataset) GetGroundTruthPoses() ([]dfvo.SE3, bool) {
	if !ds.haveGT {
		return nil, false
	}
	out := make([]dfvo.SE3, len(ds.gtPoses))
	for i, p := range ds.gtPoses {
		out[i] = p.Clone()
	}
	return out, true
}

func (ds *Dataset) CamIntrinsics() dfvo.Intrinsics { return ds.k }

func (ds *Dataset) DepthSource() dfvo.DepthSource { return ds.depthKind }

func (ds *Dataset) SaveResultTrajectory(path string, poses []dfvo.SE3) error {
	return trajectory.WriteKITTI(path, poses)
}

// readRawDepth reads a row-major float32 binary depth map with no header,
// matching the layout written by writeRawDepth.
func readRawDepth(path string, width, height int) (*dfvo.DepthImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("imageseq: open depth %s: %w", path, err)
	}
	defer f.Close()

	n := width * height
	raw := make([]byte, n*4)
	if _, err := fullRead(f, raw); err != nil {
		return nil, fmt.Errorf("imageseq: read depth %s: %w", path, err)
	}

	data := make([]float64, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(raw[i*4 : i*4+4])
		data[i] = float64(math.Float32frombits(bits))
	}
	return &dfvo.DepthImage{H: height, W: width, Data: data}, nil
}

// WriteRawDepth writes a DepthImage in the same row-major float32 format
// readRawDepth expects, for tooling that precomputes depth offline.
func WriteRawDepth(path string, d *dfvo.DepthImage) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("imageseq: create depth %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	buf := make([]byte, 4)
	for _, v := range d.Data {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v)))
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("imageseq: write depth %s: %w", path, err)
		}
	}
	return w.Flush()
}

func fullRead(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
