package jobs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"exp-orchestrator/core/datasets"
	"exp-orchestrator/core/experiment"
	"exp-orchestrator/core/params"
)

func TestReadQuants(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, QuantsJSONName)
	require.NoError(t, os.WriteFile(path, []byte(`{"accuracy": 0.925, "loss": 0.31, "converged": true}`), 0o644))

	res, err := ReadQuants(path)
	require.NoError(t, err)
	assert.Equal(t, "0.925", res["accuracy"])
	assert.Equal(t, "0.31", res["loss"])
	assert.Equal(t, "true", res["converged"])
}

func TestReadQuantsMissingFile(t *testing.T) {
	_, err := ReadQuants(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestWriteTransforms(t *testing.T) {
	r := &Runner{lg: zap.NewNop()}
	src := &datasets.Source{
		Dataset:        params.DatasetCIFAR10,
		DefaultImgSize: 32,
		Channels:       3,
	}
	dirs := datasets.Dirs{BaseDir: t.TempDir()}
	p := experiment.JobParams{
		Dataset: params.DatasetCIFAR10,
		ImgSize: 32,
	}

	require.NoError(t, r.writeTransforms(p, src, params.AugmentationTrain, dirs))

	raw, err := os.ReadFile(filepath.Join(dirs.BaseDir, TransformsFileName))
	require.NoError(t, err)

	var desc map[string]datasets.Pipeline
	require.NoError(t, json.Unmarshal(raw, &desc))
	require.Contains(t, desc, "train")
	require.Contains(t, desc, "test")
	assert.NotEqual(t, desc["train"], desc["test"])
}
