// Package spec parses campaign specifications. A campaign file names a job
// and the hyperparameter grid to sweep; parsing converts every name into its
// closed variant so invalid values fail here rather than on a compute node.
package spec

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"exp-orchestrator/core/params"
	"exp-orchestrator/core/submission"
)

// CampaignSpec represents the YAML campaign specification
type CampaignSpec struct {
	Campaign CampaignSpecBody `yaml:"campaign"`
}

// CampaignSpecBody represents the campaign section of the spec
type CampaignSpecBody struct {
	Job     string              `yaml:"job"`
	Options CampaignSpecOptions `yaml:"options"`
	Grid    CampaignSpecGrid    `yaml:"grid"`
	// BatchSize maps activation names to batch sizes; training and grads
	// use it to size batches per activation.
	BatchSize map[string]int `yaml:"batch_size,omitempty"`
	// WarmupEpochsRatio derives warmup epochs from total epochs.
	WarmupEpochsRatio float64 `yaml:"warmup_epochs_ratio,omitempty"`
}

// CampaignSpecOptions represents submission options
type CampaignSpecOptions struct {
	BlockMain  bool `yaml:"block_main"`
	Port       *int `yaml:"port,omitempty"`
	TimeoutMin int  `yaml:"timeout_min"`
}

// CampaignSpecGrid represents the hyperparameter grid, one list per axis
type CampaignSpecGrid struct {
	Datasets          []string  `yaml:"datasets"`
	Models            []string  `yaml:"models"`
	Layers            [][]int   `yaml:"layers"`
	Activations       []string  `yaml:"activations"`
	Seeds             []int     `yaml:"seeds"`
	L2Regs            []float64 `yaml:"l2_regs"`
	ImgSizes          []int     `yaml:"img_sizes"`
	Epochs            []int     `yaml:"epochs,omitempty"`
	GaussianNoiseVars []float64 `yaml:"gaussian_noise_vars,omitempty"`
	GaussianBlurVars  []float64 `yaml:"gaussian_blur_vars,omitempty"`
	AddInverse        []bool    `yaml:"add_inverse,omitempty"`
}

// Campaign is a parsed, typed campaign ready for submission.
type Campaign struct {
	Job               string
	Options           submission.Options
	Grid              submission.Grid
	BatchSize         map[params.Activation]int
	WarmupEpochsRatio float64
}

// ParseCampaign parses a YAML campaign specification
func ParseCampaign(specYAML []byte) (*Campaign, error) {
	var s CampaignSpec
	if err := yaml.Unmarshal(specYAML, &s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	switch s.Campaign.Job {
	case submission.JobTraining, submission.JobGrads, submission.JobMeasurements:
	case "":
		return nil, fmt.Errorf("campaign has no job")
	default:
		return nil, fmt.Errorf("unknown job %q", s.Campaign.Job)
	}

	g, err := parseGrid(s.Campaign.Grid)
	if err != nil {
		return nil, err
	}

	batch := make(map[params.Activation]int, len(s.Campaign.BatchSize))
	for name, size := range s.Campaign.BatchSize {
		a, err := params.ActivationFromString(name)
		if err != nil {
			return nil, fmt.Errorf("batch_size: %w", err)
		}
		batch[a] = size
	}

	return &Campaign{
		Job: s.Campaign.Job,
		Options: submission.Options{
			BlockMain:  s.Campaign.Options.BlockMain,
			Port:       s.Campaign.Options.Port,
			TimeoutMin: s.Campaign.Options.TimeoutMin,
		},
		Grid:              g,
		BatchSize:         batch,
		WarmupEpochsRatio: s.Campaign.WarmupEpochsRatio,
	}, nil
}

// LoadCampaign reads and parses a campaign file
func LoadCampaign(path string) (*Campaign, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read campaign %s: %w", path, err)
	}
	return ParseCampaign(raw)
}

func parseGrid(g CampaignSpecGrid) (submission.Grid, error) {
	out := submission.Grid{
		Layers:            g.Layers,
		Seeds:             g.Seeds,
		L2Regs:            g.L2Regs,
		ImgSizes:          g.ImgSizes,
		Epochs:            g.Epochs,
		GaussianNoiseVars: g.GaussianNoiseVars,
		GaussianBlurVars:  g.GaussianBlurVars,
		AddInverse:        g.AddInverse,
	}

	for _, name := range g.Datasets {
		d, err := params.DatasetFromString(name)
		if err != nil {
			return submission.Grid{}, fmt.Errorf("datasets: %w", err)
		}
		out.Datasets = append(out.Datasets, d)
	}
	for _, name := range g.Models {
		m, err := params.ModelFromString(name)
		if err != nil {
			return submission.Grid{}, fmt.Errorf("models: %w", err)
		}
		out.Models = append(out.Models, m)
	}
	for _, name := range g.Activations {
		a, err := params.ActivationFromString(name)
		if err != nil {
			return submission.Grid{}, fmt.Errorf("activations: %w", err)
		}
		out.Activations = append(out.Activations, a)
	}
	return out, nil
}
