package imageseq

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/monovo/dfvo"
)

// PrecomputedPerception implements dfvo.PerceptionSource by reading flow
// (and, for a predicted-depth dataset, depth) fields that were computed
// offline by a deep network and materialized as raw float32 files
// alongside the image sequence, rather than by running inference itself.
type PrecomputedPerception struct {
	root     string
	flowDir  string
	flowExt  string
	width    int
	height   int
	needDepth bool
	depthDir string
	depthExt string
}

// NewPrecomputedPerception builds a PrecomputedPerception reading flow
// fields from <root>/<flowDir>/<ref:06d>_<cur:06d><flowExt>, each a
// row-major float32 (u, v) pair per pixel (interleaved, length 2*W*H*4
// bytes). When ds's dataset does not supply depth itself, depth is also
// read from <root>/<depthDir>/<cur:06d><depthExt> in the same raw format
// GetDepth uses.
func NewPrecomputedPerception(ds *Dataset, flowDir, flowExt string) *PrecomputedPerception {
	p := &PrecomputedPerception{
		root:    ds.root,
		flowDir: flowDir,
		flowExt: flowExt,
		width:   ds.width,
		height:  ds.height,
	}
	if !ds.hasDepth {
		p.needDepth = true
		p.depthDir = ds.depthDir
		p.depthExt = ds.depthExt
	}
	return p
}

func (p *PrecomputedPerception) Predict(ctx context.Context, refIDs []int, refImgs map[int]dfvo.FrameImage, curID int, curImg dfvo.FrameImage) (*dfvo.PerceptionFrame, error) {
	out := &dfvo.PerceptionFrame{Flow: make(map[int]*dfvo.FlowImage, len(refIDs))}
	for _, refID := range refIDs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		path := filepath.Join(p.root, p.flowDir, fmt.Sprintf("%06d_%06d%s", refID, curID, p.flowExt))
		flow, err := p.readFlow(path)
		if err != nil {
			return nil, fmt.Errorf("imageseq: perception flow %d->%d: %w", refID, curID, err)
		}
		out.Flow[refID] = flow
	}

	if p.needDepth {
		path := filepath.Join(p.root, p.depthDir, fmt.Sprintf("%06d%s", curID, p.depthExt))
		depth, err := readRawDepth(path, p.width, p.height)
		if err != nil {
			return nil, fmt.Errorf("imageseq: perception depth %d: %w", curID, err)
		}
		out.Depth = depth
	}

	return out, nil
}

func (p *PrecomputedPerception) readFlow(path string) (*dfvo.FlowImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	n := p.width * p.height
	raw := make([]byte, n*2*4)
	if _, err := fullRead(f, raw); err != nil {
		return nil, err
	}

	flow := dfvo.NewFlowImage(p.width, p.height)
	for i := 0; i < n; i++ {
		ubits := binary.LittleEndian.Uint32(raw[i*8 : i*8+4])
		vbits := binary.LittleEndian.Uint32(raw[i*8+4 : i*8+8])
		flow.U[i] = float64(math.Float32frombits(ubits))
		flow.V[i] = float64(math.Float32frombits(vbits))
	}
	return flow, nil
}

// WriteRawFlow writes a FlowImage in the interleaved (u, v) float32 format
// readFlow expects, for tooling that precomputes flow offline.
func WriteRawFlow(path string, f *dfvo.FlowImage) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("imageseq: create flow %s: %w", path, err)
	}
	defer out.Close()

	n := f.W * f.H
	buf := make([]byte, n*2*4)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(buf[i*8:i*8+4], math.Float32bits(float32(f.U[i])))
		binary.LittleEndian.PutUint32(buf[i*8+4:i*8+8], math.Float32bits(float32(f.V[i])))
	}
	_, err = out.Write(buf)
	return err
}
