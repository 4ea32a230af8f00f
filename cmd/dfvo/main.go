// Command dfvo runs the visual-odometry pipeline over an image sequence
// and writes the estimated trajectory in KITTI format.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"gocv.io/x/gocv"

	"github.com/monovo/dfvo"
	"github.com/monovo/dfvo/config"
	"github.com/monovo/dfvo/datasets/imageseq"
	"github.com/monovo/dfvo/drawing"
	"github.com/monovo/dfvo/internal/dlog"
	"github.com/monovo/dfvo/trajectory"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML tracking configuration (optional, defaults applied otherwise)")
		seqPath    = flag.String("seq", "", "path to an imageseq-layout sequence directory (required)")
		outPath    = flag.String("out", "trajectory.txt", "output path for the estimated KITTI trajectory")
		mapPath    = flag.String("map", "", "optional output path for a rendered trajectory-map PNG")
		flowDir    = flag.String("flow-dir", "flow", "sequence-relative directory of precomputed flow fields")
		flowExt    = flag.String("flow-ext", ".bin", "file extension of precomputed flow fields")
		seed       = flag.Int64("seed", 1, "RANSAC random seed")
		verbose    = flag.Bool("verbose", false, "print a structured line per frame's tracking decision")
	)
	flag.Parse()

	if *seqPath == "" {
		fmt.Fprintln(os.Stderr, "dfvo: -seq is required")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*configPath, *seqPath, *outPath, *mapPath, *flowDir, *flowExt, *seed, *verbose); err != nil {
		log.Printf("dfvo: %v", err)
		os.Exit(1)
	}
}

func run(configPath, seqPath, outPath, mapPath, flowDir, flowExt string, seed int64, verbose bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return asExitError("config", dfvo.UnsupportedConfiguration, err)
	}
	if err := config.Validate(cfg); err != nil {
		return asExitError("config", dfvo.UnsupportedConfiguration, err)
	}

	ds, err := imageseq.Open(seqPath)
	if err != nil {
		return asExitError("dataset", dfvo.DataUnavailable, err)
	}
	perception := imageseq.NewPrecomputedPerception(ds, flowDir, flowExt)

	engine := dfvo.NewEngine(cfg, ds.CamIntrinsics(), seed)

	logger := dlog.New(verbose)
	cols, _ := dfvo.GetTerminalSize(80, 24)
	barWidth := cols - 40 // leave room for the description, count, and ETA
	if barWidth < 10 {
		barWidth = 10
	}
	bar := progressbar.NewOptions(ds.Len(),
		progressbar.OptionSetDescription(filepath.Base(seqPath)),
		progressbar.OptionSetWidth(barWidth),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionClearOnFinish(),
	)

	gtPoses, haveGT := ds.GetGroundTruthPoses()
	drift := trajectory.NewDriftAccumulator()
	var traj *drawing.TrajectoryMap
	if mapPath != "" {
		traj = drawing.NewTrajectoryMap(800, 4.0, 0.002)
		defer traj.Close()
	}

	engine.OnFrame = func(id int, mode dfvo.TrackingMode, pose dfvo.SE3) {
		logger.Frame(id, mode.String(), 0)
		bar.Add(1)
		if haveGT && id < len(gtPoses) {
			drift.Update(id, pose, gtPoses[id])
			if traj != nil {
				traj.AddGroundTruth(gtPoses[id].T.At(0, 0), gtPoses[id].T.At(2, 0))
			}
		}
		if traj != nil {
			traj.AddEstimate(pose.T.At(0, 0), pose.T.At(2, 0))
		}
	}

	ctx := context.Background()
	if err := engine.Run(ctx, ds, perception); err != nil {
		return fmt.Errorf("tracking failed: %w", err)
	}

	poses := orderedPoses(engine.GlobalPoses(), ds.Len())
	if err := ds.SaveResultTrajectory(outPath, poses); err != nil {
		return fmt.Errorf("save trajectory: %w", err)
	}

	if haveGT {
		s := drift.Summary()
		log.Printf("frames=%d ate_rmse=%.4f rpe_rmse=%.4f path_length=%.2f drift_ratio=%.4f",
			s.Frames, s.ATERMSE, s.RPERMSE, s.PathLength, s.DriftRatio)
	}

	for _, stat := range engine.Stats.Report() {
		log.Println(stat.String())
	}

	if traj != nil {
		snap := traj.Snapshot()
		defer snap.Close()
		if err := writePNG(mapPath, snap); err != nil {
			return fmt.Errorf("save trajectory map: %w", err)
		}
	}

	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.New(nil), nil
	}
	return config.Load(path)
}

// orderedPoses flattens the engine's frame-id-keyed global pose map into a
// contiguous slice in frame order, for writers that expect a dense list.
func orderedPoses(poses map[int]dfvo.SE3, length int) []dfvo.SE3 {
	out := make([]dfvo.SE3, 0, length)
	for i := 0; i < length; i++ {
		if p, ok := poses[i]; ok {
			out = append(out, p)
		}
	}
	return out
}

func asExitError(stage string, kind dfvo.Kind, cause error) error {
	return fmt.Errorf("%s: %s: %w", stage, kind, cause)
}

func writePNG(path string, img gocv.Mat) error {
	if ok := gocv.IMWrite(path, img); !ok {
		return fmt.Errorf("write %s: gocv.IMWrite failed", path)
	}
	return nil
}
