package routes

import (
	"github.com/gorilla/mux"

	"exp-orchestrator/api/rest/handlers"
	"exp-orchestrator/core/repository"
	"exp-orchestrator/storage"
)

// SetupRoutes configures all API routes
func SetupRoutes(
	r *mux.Router,
	checkpoints *storage.CheckpointStore,
	outputs *storage.OutputStore,
	submissions *repository.SubmissionRepository,
) {
	expHandler := handlers.NewExperimentHandler(checkpoints, outputs, submissions)

	api := r.PathPrefix("/v1").Subrouter()

	// Experiment endpoints
	api.HandleFunc("/experiments/classify", expHandler.ClassifyGrid).Methods("POST")
	api.HandleFunc("/submissions", expHandler.ListSubmissions).Methods("GET")

	r.HandleFunc("/health", expHandler.Health).Methods("GET")
}
