package datasets

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"
)

// Stager moves dataset archives onto compute-node scratch space and ships
// experiment output back to the shared filesystem. All heavy lifting is
// delegated to rsync/fpsync/tar subprocesses; this layer only decides which
// tool fits the archive layout.
type Stager struct {
	lg *zap.Logger
	// LocalDataDir and ComputeDataDir are the scratch roots for port-0 runs
	// and real compute nodes respectively.
	LocalDataDir   string
	ComputeDataDir string
	// FpsyncJobs is the parallel worker count handed to fpsync.
	FpsyncJobs int
}

// NewStager creates a stager.
func NewStager(lg *zap.Logger, localDataDir, computeDataDir string) *Stager {
	return &Stager{
		lg:             lg,
		LocalDataDir:   localDataDir,
		ComputeDataDir: computeDataDir,
		FpsyncJobs:     8,
	}
}

// Dirs is the resolved set of directories for one job on one node.
type Dirs struct {
	DataDir        string // archive on the shared filesystem
	ComputeDataDir string // scratch root on this node
	BaseDir        string // ComputeDataDir/<archive base>
	TargetDir      string // where archives are extracted
}

// ResolveDirs computes the staging layout for a dataset on this node. Local
// debug runs stage into the local scratch root instead of compute scratch.
func (s *Stager) ResolveDirs(src *Source, local bool) (Dirs, error) {
	computeDir := s.ComputeDataDir
	if local {
		computeDir = s.LocalDataDir
	}
	computeDir = filepath.Join(computeDir, src.Dataset.String())

	d := Dirs{
		DataDir:        src.RootPath,
		ComputeDataDir: computeDir,
		BaseDir:        filepath.Join(computeDir, src.BaseDir()),
	}
	// Compressed archives extract through the scratch root; tar shards
	// extract straight into the base directory.
	if src.Compressed {
		d.TargetDir = computeDir
	} else {
		d.TargetDir = d.BaseDir
	}

	if err := os.MkdirAll(d.BaseDir, 0o755); err != nil {
		return Dirs{}, fmt.Errorf("failed to create staging dir: %w", err)
	}
	return d, nil
}

// MoveToNode copies the dataset archive to node scratch. Single compressed
// archives go through rsync; sharded trees go through fpsync.
func (s *Stager) MoveToNode(ctx context.Context, src *Source, d Dirs) error {
	var cmd *exec.Cmd
	if src.Compressed {
		cmd = exec.CommandContext(ctx, "rsync", "-avh", "--progress", d.DataDir, d.ComputeDataDir)
	} else {
		cmd = exec.CommandContext(ctx, "fpsync",
			"-n", fmt.Sprint(s.FpsyncJobs),
			"-m", "tarify",
			"-s", "2000M",
			d.DataDir, d.ComputeDataDir,
		)
	}
	s.lg.Info("staging dataset", zap.String("dataset", src.Dataset.String()), zap.Strings("cmd", cmd.Args))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to sync data: %w: %s", err, out)
	}
	return nil
}

// Extract unpacks the staged archives, eight in parallel.
func (s *Stager) Extract(ctx context.Context, src *Source, d Dirs) error {
	sh := fmt.Sprintf("ls %s*.%s | xargs -n 1 -P %d -I @ tar -xf @ -C %s",
		d.ComputeDataDir+string(os.PathSeparator), src.ArchiveExt(), s.FpsyncJobs, d.TargetDir)
	cmd := exec.CommandContext(ctx, "sh", "-c", sh)
	s.lg.Info("extracting dataset", zap.String("dataset", src.Dataset.String()), zap.String("cmd", sh))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to extract data: %w: %s", err, out)
	}
	return nil
}

// ShipOutput moves a node-local output directory back to the experiment's
// directory on the shared filesystem.
func (s *Stager) ShipOutput(ctx context.Context, computeOutputDir, experimentOutputDir string) error {
	cmd := exec.CommandContext(ctx, "fpsync",
		"-n", fmt.Sprint(s.FpsyncJobs),
		"-m", "tarify",
		"-s", "2000M",
		computeOutputDir, experimentOutputDir,
	)
	s.lg.Info("shipping output", zap.String("to", experimentOutputDir))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to sync output: %w: %s", err, out)
	}
	return nil
}
