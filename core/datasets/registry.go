// Package datasets describes the image datasets the pipeline trains on and
// stages them onto compute nodes. The registry is an explicit map from the
// closed dataset enumeration to constructor functions, built once at process
// start and handed to call sites; nothing registers itself at import time.
package datasets

import (
	"fmt"
	"os"
	"strings"

	"exp-orchestrator/core/params"
)

// Normalization constants, per channel.
var (
	cifar10Mean    = []float64{0.49139968, 0.48215841, 0.44653091}
	cifar10Std     = []float64{0.24703223, 0.24348513, 0.26158784}
	imagenetMean   = []float64{0.485, 0.456, 0.406}
	imagenetStd    = []float64{0.229, 0.224, 0.225}
	grayscaleMean  = []float64{0.5}
	grayscaleStd   = []float64{0.5}
)

// Source is a resolved dataset: where its archive lives, how it is packed
// and which constants its transform pipeline needs.
type Source struct {
	Dataset        params.Dataset
	RootPath       string // archive or tree on the shared filesystem
	Compressed     bool   // single .tgz vs a directory of .tar shards
	DefaultImgSize int
	Channels       int
	Mean           []float64
	Std            []float64
	// SupportsAddInverse is false for grayscale datasets, where the
	// add-inverse ablation is not implemented.
	SupportsAddInverse bool
}

// ArchiveExt returns the archive extension used when staging.
func (s *Source) ArchiveExt() string {
	if s.Compressed {
		return "tgz"
	}
	return "tar"
}

// BaseDir returns the directory name the archive unpacks into.
func (s *Source) BaseDir() string {
	base := s.RootPath
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	return strings.TrimSuffix(base, ".tgz")
}

// Constructor resolves one dataset from the environment.
type Constructor func() (*Source, error)

// Registry maps every known dataset to its constructor.
type Registry map[params.Dataset]Constructor

// NewRegistry builds the dataset registry. Roots come from per-dataset
// environment variables (CIFAR10_ROOT and friends).
func NewRegistry() Registry {
	return Registry{
		params.DatasetCIFAR10: func() (*Source, error) {
			return sourceFromEnv(params.DatasetCIFAR10, &Source{
				DefaultImgSize:     32,
				Channels:           3,
				Mean:               cifar10Mean,
				Std:                cifar10Std,
				SupportsAddInverse: true,
			})
		},
		params.DatasetMNIST: func() (*Source, error) {
			return sourceFromEnv(params.DatasetMNIST, &Source{
				DefaultImgSize: 28,
				Channels:       1,
				Mean:           grayscaleMean,
				Std:            grayscaleStd,
			})
		},
		params.DatasetFashionMNIST: func() (*Source, error) {
			return sourceFromEnv(params.DatasetFashionMNIST, &Source{
				DefaultImgSize: 28,
				Channels:       1,
				Mean:           grayscaleMean,
				Std:            grayscaleStd,
			})
		},
		params.DatasetImagenette: func() (*Source, error) {
			return sourceFromEnv(params.DatasetImagenette, &Source{
				DefaultImgSize:     224,
				Channels:           3,
				Mean:               imagenetMean,
				Std:                imagenetStd,
				SupportsAddInverse: true,
			})
		},
		params.DatasetImageNet: func() (*Source, error) {
			return sourceFromEnv(params.DatasetImageNet, &Source{
				DefaultImgSize:     224,
				Channels:           3,
				Mean:               imagenetMean,
				Std:                imagenetStd,
				SupportsAddInverse: true,
			})
		},
		params.DatasetGrads: func() (*Source, error) {
			// Gradient shards are produced by our own jobs; they are read
			// in place, never normalized or augmented.
			return sourceFromEnv(params.DatasetGrads, &Source{DefaultImgSize: 0})
		},
	}
}

// Resolve looks up and runs the constructor for a dataset.
func (r Registry) Resolve(d params.Dataset) (*Source, error) {
	ctor, ok := r[d]
	if !ok {
		return nil, fmt.Errorf("dataset %s not found in registry", d)
	}
	return ctor()
}

// rootEnvKey returns the environment variable holding a dataset's root.
func rootEnvKey(d params.Dataset) string {
	return string(d) + "_ROOT"
}

func sourceFromEnv(d params.Dataset, s *Source) (*Source, error) {
	root := os.Getenv(rootEnvKey(d))
	if root == "" {
		return nil, fmt.Errorf("%s is not set", rootEnvKey(d))
	}
	s.Dataset = d
	s.RootPath = root
	s.Compressed = strings.HasSuffix(root, ".tgz")
	return s, nil
}
