package captioner

import (
	"image"
	"image/color"
	"testing"

	"github.com/Noofbiz/captionPrep/datasets"
	"github.com/disintegration/imaging"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{TargetHeight: 64, TargetWidth: 64, VocabularySize: 500, EmbeddingDim: 50}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, testConfig().Validate())
	for _, cfg := range []Config{
		{TargetHeight: 60, TargetWidth: 64, VocabularySize: 10, EmbeddingDim: 4},
		{TargetHeight: 64, TargetWidth: 0, VocabularySize: 10, EmbeddingDim: 4},
		{TargetHeight: 64, TargetWidth: 64, VocabularySize: 0, EmbeddingDim: 4},
		{TargetHeight: 64, TargetWidth: 64, VocabularySize: 10},
		{TargetHeight: 64, TargetWidth: 64, VocabularySize: 10, EmbeddingDim: 4, DropoutRate: 1},
	} {
		err := cfg.Validate()
		assert.True(t, errors.Is(err, datasets.ErrValidation), "config %+v: got %v", cfg, err)
	}
	cfg := testConfig().withDefaults()
	assert.Equal(t, 256, cfg.HiddenSize)
	assert.Equal(t, 256, cfg.ImageEmbeddingDim)
	assert.Equal(t, 256, cfg.FusionDim)
	assert.Equal(t, 0.2, cfg.DropoutRate)
}

func TestForwardShape(t *testing.T) {
	model, err := New(testConfig(), nil)
	require.NoError(t, err)

	images := tensors.FromFlatDataAndDimensions(make([]float32, 3*64*64), 1, 3, 64, 64)
	tokens := tensors.FromFlatDataAndDimensions([]int32{2, 17, 0, 499, 3}, 1, 5)
	logits, err := model.Forward(images, tokens)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 500}, logits.Shape().Dimensions)
	assert.Greater(t, model.NumParameters(), 0)

	// A single token prefix.
	tokens = tensors.FromFlatDataAndDimensions([]int32{2}, 1, 1)
	logits, err = model.Forward(images, tokens)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 500}, logits.Shape().Dimensions)

	predicted, err := Predict(logits)
	require.NoError(t, err)
	require.Len(t, predicted, 1)
	assert.True(t, predicted[0] >= 0 && predicted[0] < 500)
}

func TestForwardBatch(t *testing.T) {
	model, err := New(Config{TargetHeight: 16, TargetWidth: 8, VocabularySize: 20, EmbeddingDim: 4,
		HiddenSize: 8, ImageEmbeddingDim: 8, FusionDim: 8}, nil)
	require.NoError(t, err)
	imgs := []image.Image{
		imaging.New(8, 16, color.White),
		imaging.New(8, 16, color.Black),
	}
	batch, err := datasets.MakeImageBatchFlat(imgs)
	require.NoError(t, err)
	logits, err := model.ForwardBatch(batch, [][]int32{{0, 2, 5}, {2, 6, 7}})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 20}, logits.Shape().Dimensions)

	_, err = model.ForwardBatch(batch, [][]int32{{2, 5}})
	assert.True(t, errors.Is(err, datasets.ErrValidation))
}

func TestForwardValidation(t *testing.T) {
	model, err := New(Config{TargetHeight: 8, TargetWidth: 8, VocabularySize: 10, EmbeddingDim: 4,
		HiddenSize: 4, ImageEmbeddingDim: 4, FusionDim: 4}, nil)
	require.NoError(t, err)
	images := tensors.FromFlatDataAndDimensions(make([]float32, 3*8*8), 1, 3, 8, 8)
	tokens := tensors.FromFlatDataAndDimensions([]int32{2, 3}, 1, 2)

	for name, args := range map[string][2]*tensors.Tensor{
		"wrong size":       {tensors.FromFlatDataAndDimensions(make([]float32, 3*16*8), 1, 3, 16, 8), tokens},
		"channels last":    {tensors.FromFlatDataAndDimensions(make([]float32, 3*8*8), 1, 8, 8, 3), tokens},
		"int images":       {tensors.FromFlatDataAndDimensions(make([]int32, 3*8*8), 1, 3, 8, 8), tokens},
		"token too large":  {images, tensors.FromFlatDataAndDimensions([]int32{2, 10}, 1, 2)},
		"negative token":   {images, tensors.FromFlatDataAndDimensions([]int32{-1, 3}, 1, 2)},
		"batch mismatch":   {images, tensors.FromFlatDataAndDimensions([]int32{2, 3, 2, 3}, 2, 2)},
		"float tokens":     {images, tensors.FromFlatDataAndDimensions([]float32{2, 3}, 1, 2)},
		"missing tokens":   {images, nil},
		"rank 1 sequences": {images, tensors.FromFlatDataAndDimensions([]int32{2, 3}, 2)},
	} {
		_, err := model.Forward(args[0], args[1])
		assert.True(t, errors.Is(err, datasets.ErrValidation), "%s: got %v", name, err)
	}
	assert.Equal(t, 0, model.NumParameters(), "invalid inputs should never reach the graph")
}

// setEmbeddingRow overwrites row of the token embeddings table with value.
func setEmbeddingRow(t *testing.T, model *Model, row int, value float32) {
	t.Helper()
	for v := range model.Context().IterVariables() {
		if v.Name() != "embeddings" {
			continue
		}
		table := v.Value()
		dims := table.Shape().Dimensions
		data := tensors.CopyFlatData[float32](table)
		for i := range dims[1] {
			data[row*dims[1]+i] = value
		}
		v.SetValue(tensors.FromFlatDataAndDimensions(data, dims...))
		return
	}
	t.Fatalf("embeddings variable not found")
}

func TestForwardPaddingAndDeterminism(t *testing.T) {
	model, err := New(Config{TargetHeight: 8, TargetWidth: 8, VocabularySize: 12, EmbeddingDim: 4,
		HiddenSize: 16, ImageEmbeddingDim: 16, FusionDim: 32}, nil)
	require.NoError(t, err)
	pixels := make([]float32, 3*8*8)
	for i := range pixels {
		pixels[i] = float32(i%7) / 7
	}
	images := tensors.FromFlatDataAndDimensions(pixels, 1, 3, 8, 8)
	tokens := tensors.FromFlatDataAndDimensions([]int32{0, 0, 2, 5}, 1, 4)
	forward := func() []float32 {
		logits, err := model.Forward(images, tokens)
		require.NoError(t, err)
		return tensors.CopyFlatData[float32](logits)
	}

	// Dropout is off outside training: repeated calls agree.
	want := forward()
	require.Equal(t, want, forward())

	// The padding index contributes nothing, whatever its embedding.
	setEmbeddingRow(t, model, 0, 100)
	assert.Equal(t, want, forward())

	// A token that is used does change the output.
	setEmbeddingRow(t, model, 5, 100)
	assert.NotEqual(t, want, forward())
}
