// Package params defines the closed hyperparameter enumerations used across
// the submission pipeline. Every enumeration converts from its string name
// with a descriptive error, so campaign specs and CLI flags fail loudly on
// typos instead of silently producing a new experiment namespace.
package params

import (
	"fmt"
	"sort"
	"strings"
)

// Dataset selects the image dataset an experiment runs on.
type Dataset string

const (
	DatasetCIFAR10      Dataset = "CIFAR10"
	DatasetMNIST        Dataset = "MNIST"
	DatasetFashionMNIST Dataset = "FASHION_MNIST"
	DatasetImagenette   Dataset = "IMAGENETTE"
	DatasetImageNet     Dataset = "IMAGENET"
	DatasetGrads        Dataset = "GRADS"
)

// Datasets lists every known dataset.
func Datasets() []Dataset {
	return []Dataset{
		DatasetCIFAR10,
		DatasetMNIST,
		DatasetFashionMNIST,
		DatasetImagenette,
		DatasetImageNet,
		DatasetGrads,
	}
}

// DatasetFromString converts a dataset name to its variant.
func DatasetFromString(s string) (Dataset, error) {
	for _, d := range Datasets() {
		if string(d) == s {
			return d, nil
		}
	}
	return "", unknownValueError("dataset", s, datasetNames())
}

func (d Dataset) String() string { return string(d) }

// Model selects the network architecture.
type Model string

const (
	ModelSimpleCNN           Model = "SIMPLE_CNN"
	ModelSimpleCNNDepth      Model = "SIMPLE_CNN_DEPTH"
	ModelSimpleCNNBN         Model = "SIMPLE_CNN_BN"
	ModelSimpleCNNSK         Model = "SIMPLE_CNN_SK"
	ModelSimpleCNNSKBN       Model = "SIMPLE_CNN_SK_BN"
	ModelResNet18            Model = "RESNET18"
	ModelResNet34            Model = "RESNET34"
	ModelResNet50            Model = "RESNET50"
	ModelResNetBasicBlock    Model = "RESNET_BASIC"
	ModelResNetBottleneck    Model = "RESNET_BOTTLENECK"
)

// Models lists every known model.
func Models() []Model {
	return []Model{
		ModelSimpleCNN,
		ModelSimpleCNNDepth,
		ModelSimpleCNNBN,
		ModelSimpleCNNSK,
		ModelSimpleCNNSKBN,
		ModelResNet18,
		ModelResNet34,
		ModelResNet50,
		ModelResNetBasicBlock,
		ModelResNetBottleneck,
	}
}

// ModelFromString converts a model name to its variant.
func ModelFromString(s string) (Model, error) {
	for _, m := range Models() {
		if string(m) == s {
			return m, nil
		}
	}
	return "", unknownValueError("model", s, modelNames())
}

func (m Model) String() string { return string(m) }

// Loss selects the training loss.
type Loss string

const (
	LossMSE Loss = "MSE"
	LossCE  Loss = "CE"
)

// LossFromString converts a loss name to its variant.
func LossFromString(s string) (Loss, error) {
	switch Loss(s) {
	case LossMSE, LossCE:
		return Loss(s), nil
	}
	return "", unknownValueError("loss", s, []string{string(LossMSE), string(LossCE)})
}

func (l Loss) String() string { return string(l) }

// Augmentation selects which transform pipeline a data loader builds.
type Augmentation string

const (
	// AugmentationExpVis is used by explanation methods to visualize the
	// original image.
	AugmentationExpVis Augmentation = "EXP_VIS"
	// AugmentationExpGen is used by explanation methods to generate heatmaps.
	AugmentationExpGen Augmentation = "EXP_GEN"
	// AugmentationTrain is the training-set pipeline.
	AugmentationTrain Augmentation = "TRAIN"
)

// AugmentationFromString converts an augmentation name to its variant.
func AugmentationFromString(s string) (Augmentation, error) {
	switch Augmentation(s) {
	case AugmentationExpVis, AugmentationExpGen, AugmentationTrain:
		return Augmentation(s), nil
	}
	return "", unknownValueError("augmentation", s, []string{
		string(AugmentationExpVis), string(AugmentationExpGen), string(AugmentationTrain),
	})
}

func (a Augmentation) String() string { return string(a) }

func datasetNames() []string {
	names := make([]string, 0, len(Datasets()))
	for _, d := range Datasets() {
		names = append(names, string(d))
	}
	return names
}

func modelNames() []string {
	names := make([]string, 0, len(Models()))
	for _, m := range Models() {
		names = append(names, string(m))
	}
	return names
}

func unknownValueError(kind, got string, valid []string) error {
	sorted := append([]string(nil), valid...)
	sort.Strings(sorted)
	return fmt.Errorf("invalid %s value %q, choose from %s", kind, got, strings.Join(sorted, ", "))
}
