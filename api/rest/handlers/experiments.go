package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"exp-orchestrator/core/repository"
	"exp-orchestrator/core/spec"
	"exp-orchestrator/core/submission"
	"exp-orchestrator/storage"
)

// ExperimentHandler answers status questions about experiment grids
type ExperimentHandler struct {
	checkpoints *storage.CheckpointStore
	outputs     *storage.OutputStore
	submissions *repository.SubmissionRepository // optional
}

// NewExperimentHandler creates a new experiment handler. submissions may be
// nil when no ledger database is configured.
func NewExperimentHandler(
	checkpoints *storage.CheckpointStore,
	outputs *storage.OutputStore,
	submissions *repository.SubmissionRepository,
) *ExperimentHandler {
	return &ExperimentHandler{
		checkpoints: checkpoints,
		outputs:     outputs,
		submissions: submissions,
	}
}

// ExperimentStatus is the classification of one experiment in a grid
type ExperimentStatus struct {
	Experiment     string `json:"experiment"`
	CheckpointPath string `json:"checkpoint_path"`
	OutputDir      string `json:"output_dir"`
	Trained        bool   `json:"trained"`
	OutputExists   bool   `json:"output_exists"`
}

// StatusResponse summarizes an entire grid
type StatusResponse struct {
	Total        int                `json:"total"`
	Trained      int                `json:"trained"`
	OutputExists int                `json:"output_exists"`
	Experiments  []ExperimentStatus `json:"experiments"`
}

// ClassifyGrid expands the campaign grid POSTed in the request body and
// reports each experiment against the checkpoint and output stores
func (h *ExperimentHandler) ClassifyGrid(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		http.Error(w, "Failed to read body: "+err.Error(), http.StatusBadRequest)
		return
	}

	campaign, err := spec.ParseCampaign(body)
	if err != nil {
		http.Error(w, "Invalid campaign: "+err.Error(), http.StatusBadRequest)
		return
	}

	resp := StatusResponse{Experiments: []ExperimentStatus{}}
	for _, p := range submission.Tasks(campaign.Grid.Expand()) {
		st := ExperimentStatus{
			Experiment:     p.Prefix(),
			CheckpointPath: h.checkpoints.Path(p),
			OutputDir:      h.outputs.Dir(p),
			Trained:        h.checkpoints.Exists(p),
			OutputExists:   h.outputs.Exists(p),
		}
		resp.Total++
		if st.Trained {
			resp.Trained++
		}
		if st.OutputExists {
			resp.OutputExists++
		}
		resp.Experiments = append(resp.Experiments, st)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// ListSubmissions returns recent ledger batches
func (h *ExperimentHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	if h.submissions == nil {
		http.Error(w, "No submission ledger configured", http.StatusNotFound)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := h.submissions.ListSubmissions(r.Context(), limit)
	if err != nil {
		http.Error(w, "Failed to list submissions: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"submissions": records})
}

// Health reports liveness
func (h *ExperimentHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
