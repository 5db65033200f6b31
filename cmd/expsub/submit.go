package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"exp-orchestrator/config"
	"exp-orchestrator/core/datasets"
	"exp-orchestrator/core/executor"
	"exp-orchestrator/core/jobs"
	"exp-orchestrator/core/repository"
	"exp-orchestrator/core/spec"
	"exp-orchestrator/core/submission"
	"exp-orchestrator/pkg/logutil"
	"exp-orchestrator/storage"
	"exp-orchestrator/training/frameworks"
)

var submitYes bool

func newSubmitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit [campaign file]",
		Short: "Expand a campaign grid and dispatch the jobs not yet on disk",
		Run:   submitFunc,
	}
	cmd.PersistentFlags().BoolVar(&submitYes, "yes", false, "skip the confirmation prompt")
	return cmd
}

func submitFunc(cmd *cobra.Command, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "expected exactly one campaign file")
		os.Exit(1)
	}

	cfg := config.Load()
	lg, err := logutil.New(cfg.LogLevel, []string{"stderr"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	campaign, err := spec.LoadCampaign(args[0])
	if err != nil {
		lg.Fatal("failed to load campaign", zap.Error(err))
	}
	if campaign.Options.TimeoutMin == 0 {
		campaign.Options.TimeoutMin = cfg.TimeoutMin
	}

	sub, cleanup, err := buildSubmitter(lg, cfg)
	if err != nil {
		lg.Fatal("failed to build submitter", zap.Error(err))
	}
	defer cleanup()

	ctx := context.Background()
	switch campaign.Job {
	case submission.JobTraining:
		_, err = sub.SubmitTraining(ctx, submission.TrainingRequest{
			Options:           campaign.Options,
			Grid:              campaign.Grid,
			BatchSize:         campaign.BatchSize,
			WarmupEpochsRatio: campaign.WarmupEpochsRatio,
		})
	case submission.JobGrads:
		_, err = sub.SubmitGrads(ctx, submission.GradsRequest{
			Options:   campaign.Options,
			Grid:      campaign.Grid,
			BatchSize: campaign.BatchSize,
		})
	case submission.JobMeasurements:
		_, err = sub.SubmitMeasurements(ctx, submission.MeasurementsRequest{
			Options: campaign.Options,
			Grid:    campaign.Grid,
		})
	}
	if err != nil {
		lg.Fatal("submission failed", zap.String("job", campaign.Job), zap.Error(err))
	}
}

// buildRunner wires the compute-node side: dataset staging, the framework
// runner and the artifact stores.
func buildRunner(lg *zap.Logger, cfg *config.Config) *jobs.Runner {
	checkpoints := storage.NewCheckpointStore(cfg.CheckpointsRoot)
	outputs := storage.NewOutputStore(cfg.OutputRoot)
	stager := datasets.NewStager(lg, cfg.LocalDataDir, cfg.ComputeDataDir)
	torch := frameworks.NewPyTorchRunner(lg, cfg.Python, map[string]string{
		submission.JobTraining:     cfg.TrainScript,
		submission.JobGrads:        cfg.GradsScript,
		submission.JobMeasurements: cfg.MeasureScript,
	}, cfg.CheckpointsRoot)
	return jobs.NewRunner(lg, datasets.NewRegistry(), stager, torch, checkpoints, outputs, cfg.ComputeOutputDir)
}

// buildSubmitter wires the submission side on top of the runner. The
// returned cleanup closes the ledger database when one is configured.
func buildSubmitter(lg *zap.Logger, cfg *config.Config) (*submission.Submitter, func(), error) {
	checkpoints := storage.NewCheckpointStore(cfg.CheckpointsRoot)
	outputs := storage.NewOutputStore(cfg.OutputRoot)
	runner := buildRunner(lg, cfg)

	newExecutor := func(p executor.Parameters) executor.Executor {
		p.Folder = cfg.LogsFolder
		exe := executor.NewSlurmExecutor(lg, p, cfg.WorkerBinary)
		exe.Sbatch = cfg.SbatchBinary
		return exe
	}

	var confirm submission.Confirmer
	if submitYes {
		confirm = func(submission.Summary) bool { return true }
	} else {
		confirm = promptConfirm(os.Stdin, os.Stdout)
	}

	cleanup := func() {}
	var ledger submission.Ledger
	if cfg.DatabaseURL != "" {
		db, err := repository.NewDB(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to ledger database: %w", err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, nil, err
		}
		ledger = repository.NewSubmissionRepository(db)
		cleanup = func() { db.Close() }
	}

	sub := submission.NewSubmitter(
		lg,
		checkpoints,
		outputs,
		cfg.QuantsDir,
		newExecutor,
		confirm,
		runner.Funcs(),
		ledger,
	)
	return sub, cleanup, nil
}

// promptConfirm shows the distinct value count of every column plus the job
// total and proceeds only on a literal "y".
func promptConfirm(in io.Reader, out io.Writer) submission.Confirmer {
	return func(s submission.Summary) bool {
		fmt.Fprintf(out, "about to submit %q jobs\n", s.Job)
		for _, col := range s.Columns {
			fmt.Fprintf(out, "  %-24s %d\n", col, s.Nunique[col])
		}
		fmt.Fprintf(out, "total jobs: %d\n", s.Total)
		fmt.Fprint(out, "submit? [y/N] ")

		var answer string
		fmt.Fscanln(in, &answer)
		return answer == "y"
	}
}
