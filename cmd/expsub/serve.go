package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"exp-orchestrator/api/rest/routes"
	"exp-orchestrator/config"
	"exp-orchestrator/core/repository"
	"exp-orchestrator/pkg/logutil"
	"exp-orchestrator/storage"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the experiment status API",
		Run:   serveFunc,
	}
}

func serveFunc(cmd *cobra.Command, args []string) {
	cfg := config.Load()
	lg, err := logutil.New(cfg.LogLevel, []string{"stderr"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	checkpoints := storage.NewCheckpointStore(cfg.CheckpointsRoot)
	outputs := storage.NewOutputStore(cfg.OutputRoot)

	var submissions *repository.SubmissionRepository
	if cfg.DatabaseURL != "" {
		db, err := repository.NewDB(cfg.DatabaseURL)
		if err != nil {
			lg.Fatal("failed to connect to ledger database", zap.Error(err))
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			lg.Fatal("failed to migrate ledger", zap.Error(err))
		}
		submissions = repository.NewSubmissionRepository(db)
	}

	r := mux.NewRouter()
	routes.SetupRoutes(r, checkpoints, outputs, submissions)

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	go func() {
		lg.Info("starting status API", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Info("shutting down")
	if err := server.Shutdown(context.Background()); err != nil {
		lg.Fatal("forced shutdown", zap.Error(err))
	}
}
