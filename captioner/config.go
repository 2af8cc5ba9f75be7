package captioner

import (
	"github.com/Noofbiz/captionPrep/datasets"
)

// Config holds the hyperparameters of the captioning network.
type Config struct {
	// TargetHeight and TargetWidth of the input images. Both must be divisible
	// by 8, since the image branch halves them three times.
	TargetHeight, TargetWidth int

	// VocabularySize is the number of token indices, including the padding index 0.
	VocabularySize int

	// EmbeddingDim is the size of the token embeddings.
	EmbeddingDim int

	// HiddenSize of the LSTM. Defaults to 256.
	HiddenSize int

	// ImageEmbeddingDim is the output size of the image branch. Defaults to 256.
	ImageEmbeddingDim int

	// FusionDim is the size of the dense layer over the concatenated branches.
	// Defaults to 256.
	FusionDim int

	// DropoutRate applied, during training only, to the flattened image
	// features and to the embeddings. Defaults to 0.2, use a negative value to
	// disable it.
	DropoutRate float64
}

// ConvChannels are the output channels of the three convolution blocks.
var ConvChannels = []int{64, 128, 256}

// withDefaults fills in the zero valued optional fields.
func (c Config) withDefaults() Config {
	if c.HiddenSize == 0 {
		c.HiddenSize = 256
	}
	if c.ImageEmbeddingDim == 0 {
		c.ImageEmbeddingDim = 256
	}
	if c.FusionDim == 0 {
		c.FusionDim = 256
	}
	if c.DropoutRate == 0 {
		c.DropoutRate = 0.2
	}
	return c
}

// Validate checks the configuration, after defaults are applied.
func (c Config) Validate() error {
	c = c.withDefaults()
	if c.TargetHeight <= 0 || c.TargetWidth <= 0 || c.TargetHeight%8 != 0 || c.TargetWidth%8 != 0 {
		return datasets.Errorf(datasets.ErrValidation, "target size %dx%d must be positive and divisible by 8",
			c.TargetWidth, c.TargetHeight)
	}
	for _, field := range []struct {
		name  string
		value int
	}{
		{"vocabulary size", c.VocabularySize},
		{"embedding dim", c.EmbeddingDim},
		{"hidden size", c.HiddenSize},
		{"image embedding dim", c.ImageEmbeddingDim},
		{"fusion dim", c.FusionDim},
	} {
		if field.value <= 0 {
			return datasets.Errorf(datasets.ErrValidation, "%s must be positive, got %d", field.name, field.value)
		}
	}
	if c.DropoutRate >= 1 {
		return datasets.Errorf(datasets.ErrValidation, "dropout rate must be < 1, got %g", c.DropoutRate)
	}
	return nil
}
