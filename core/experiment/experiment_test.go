package experiment

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exp-orchestrator/core/params"
)

func baseParams() JobParams {
	return JobParams{
		Dataset:    params.DatasetCIFAR10,
		Model:      params.ModelResNet18,
		Layers:     []int{64, 128, 256},
		Activation: params.ActivationSoftplusB1,
		Seed:       42,
		L2Reg:      0.0001,
		ImgSize:    32,
	}
}

func TestPrefixLayout(t *testing.T) {
	p := baseParams()
	want := filepath.Join("CIFAR10", "RESNET18::64_128_256::SOFTPLUS_B1::42::0.0001::32")
	assert.Equal(t, want, p.Prefix())
}

func TestPrefixDeterministic(t *testing.T) {
	a, b := baseParams(), baseParams()
	// Fields outside the identifier set must not affect the prefix.
	b.Epochs = 100
	b.BatchSize = 256
	b.TimeoutMin = 720
	b.BlockMain = true
	assert.Equal(t, a.Prefix(), b.Prefix())
}

func TestPrefixInjectiveOverIdentifierFields(t *testing.T) {
	base := baseParams()
	mutations := []func(*JobParams){
		func(p *JobParams) { p.Model = params.ModelResNet34 },
		func(p *JobParams) { p.Layers = []int{64, 128} },
		func(p *JobParams) { p.Activation = params.ActivationReLU },
		func(p *JobParams) { p.Seed = 43 },
		func(p *JobParams) { p.L2Reg = 0.001 },
		func(p *JobParams) { p.ImgSize = 64 },
		func(p *JobParams) { p.Dataset = params.DatasetMNIST },
	}
	for i, mutate := range mutations {
		p := baseParams()
		mutate(&p)
		assert.NotEqual(t, base.Prefix(), p.Prefix(), "mutation %d should change the prefix", i)
	}
}

func TestCheckpointPath(t *testing.T) {
	p := baseParams()
	got := p.CheckpointPath("checkpoints")
	require.True(t, filepath.IsLocal(got))
	assert.Equal(t, filepath.Join("checkpoints", p.Prefix()+".pt"), got)
}

func TestOutputDir(t *testing.T) {
	p := baseParams()
	assert.Equal(t, filepath.Join("/out", p.Prefix()), p.OutputDir("/out"))
}

func TestLocalModeAndDevice(t *testing.T) {
	p := baseParams()
	assert.False(t, p.LocalMode())
	assert.Equal(t, "cuda", p.Device())

	zero := 0
	p.Port = &zero
	assert.True(t, p.LocalMode())
	assert.Equal(t, "cpu", p.Device())

	remote := 5678
	p.Port = &remote
	assert.False(t, p.LocalMode())
	assert.Equal(t, "cuda", p.Device())
}
