package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"exp-orchestrator/config"
	"exp-orchestrator/core/executor"
	"exp-orchestrator/pkg/logutil"
)

var (
	workerJob    string
	workerFolder string
	workerTaskID int
)

func newWorkerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run one task of an array submission on this node",
		Run:   workerFunc,
	}
	cmd.PersistentFlags().StringVar(&workerJob, "job", "", "job name to run")
	cmd.PersistentFlags().StringVar(&workerFolder, "folder", "", "submission folder holding the task files")
	cmd.PersistentFlags().IntVar(&workerTaskID, "task-id", -1, "index of this task within the array")
	return cmd
}

func workerFunc(cmd *cobra.Command, args []string) {
	if workerJob == "" || workerFolder == "" || workerTaskID < 0 {
		fmt.Fprintln(os.Stderr, "worker requires --job, --folder and --task-id")
		os.Exit(1)
	}

	cfg := config.Load()
	lg, err := logutil.New(cfg.LogLevel, []string{"stderr"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	lg = lg.With(zap.String("job", workerJob), zap.Int("task_id", workerTaskID))

	task, err := executor.ReadTask(workerFolder, workerTaskID)
	if err != nil {
		lg.Fatal("failed to read task", zap.Error(err))
	}

	fn, ok := buildRunner(lg, cfg).Funcs()[workerJob]
	if !ok {
		lg.Fatal("unknown job")
	}

	res, jobErr := fn(context.Background(), task)
	if jobErr != nil {
		lg.Error("task failed", zap.Error(jobErr))
		if err := executor.WriteError(workerFolder, workerTaskID, jobErr); err != nil {
			lg.Error("failed to write error file", zap.Error(err))
		}
		os.Exit(1)
	}

	if err := executor.WriteResult(workerFolder, workerTaskID, res); err != nil {
		lg.Fatal("failed to write result file", zap.Error(err))
	}
	lg.Info("task finished", zap.String("experiment", task.Prefix()))
}
