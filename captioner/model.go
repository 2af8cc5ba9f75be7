// Package captioner implements the forward pass of a CNN+LSTM image captioning
// network on GoMLX: given an image and a caption prefix it returns the logits
// of the next token.
//
// There is no training loop here: the parameters live in a gomlx
// context.Context, see Model.Context, so any gomlx trainer can be plugged in
// with ModelGraph and a datasets.PairDataset.
package captioner

import (
	"fmt"

	"github.com/Noofbiz/captionPrep/datasets"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/backends/simplego"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/ml/layers/lstm"
	"github.com/gomlx/gopjrt/dtypes"
	"k8s.io/klog/v2"
)

// NewBackend returns the pure Go backend, which needs no native plugin.
func NewBackend() (backends.Backend, error) {
	backend, err := simplego.New("")
	if err != nil {
		return nil, datasets.Wrapf(datasets.ErrValidation, err, "creating %s backend", simplego.BackendName)
	}
	return backend, nil
}

// ModelGraph builds the network for images shaped [B, 3, H, W] (float) and
// tokens shaped [B, L] (int), and returns the logits shaped [B, VocabularySize].
//
// Shape mismatches panic, as usual while building a gomlx graph.
func ModelGraph(ctx *context.Context, cfg Config, images, tokens *graph.Node) *graph.Node {
	cfg = cfg.withDefaults()
	batchSize := images.Shape().Dim(0)
	dtype := images.DType()
	images.AssertDims(batchSize, datasets.NumChannels, cfg.TargetHeight, cfg.TargetWidth)
	tokens.AssertRank(2)

	// Image branch: convolutions run channels-last.
	x := graph.TransposeAllDims(images, 0, 2, 3, 1)
	for i, channels := range ConvChannels {
		x = layers.Convolution(ctx.Inf("%03d_conv", i), x).Channels(channels).KernelSize(3).PadSame().Done()
		x = activations.Relu(x)
		x = graph.MaxPool(x).Window(2).Done()
	}
	x.AssertDims(batchSize, cfg.TargetHeight/8, cfg.TargetWidth/8, ConvChannels[len(ConvChannels)-1])
	x = graph.Reshape(x, batchSize, -1)
	x = layers.DropoutStatic(ctx.In("image_dropout"), x, cfg.DropoutRate)
	x = layers.Dense(ctx.In("image_dense"), x, true, cfg.ImageEmbeddingDim)
	x = activations.Relu(x)

	// Sequence branch. The explicit last axis keeps [B, 1] tokens from being
	// taken as already indexed.
	seq := layers.Embedding(ctx.In("embedding"), graph.InsertAxes(tokens, -1), dtype, cfg.VocabularySize, cfg.EmbeddingDim)
	notPadding := graph.ConvertDType(graph.NotEqual(tokens, graph.ZerosLike(tokens)), dtype)
	seq = graph.Mul(seq, graph.InsertAxes(notPadding, -1))
	seq = layers.DropoutStatic(ctx.In("embedding_dropout"), seq, cfg.DropoutRate)
	_, lastHidden, _ := lstm.New(ctx.In("lstm"), seq, cfg.HiddenSize).Done()
	seq = graph.Reshape(lastHidden, batchSize, cfg.HiddenSize)

	// Fusion.
	logits := graph.Concatenate([]*graph.Node{x, seq}, -1)
	logits = layers.Dense(ctx.In("fusion_dense"), logits, true, cfg.FusionDim)
	logits = activations.Relu(logits)
	logits = layers.Dense(ctx.In("logits"), logits, true, cfg.VocabularySize)
	logits.AssertDims(batchSize, cfg.VocabularySize)
	return logits
}

// Model holds the parameters and the compiled forward pass of the network.
type Model struct {
	Config Config

	backend backends.Backend
	ctx     *context.Context
	exec    *context.Exec
}

// New creates a model with freshly initialized parameters. If backend is nil
// NewBackend is used.
func New(cfg Config, backend backends.Backend) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if backend == nil {
		var err error
		if backend, err = NewBackend(); err != nil {
			return nil, err
		}
	}
	m := &Model{Config: cfg, backend: backend, ctx: context.New()}
	exec, err := context.NewExec(backend, m.ctx, func(ctx *context.Context, images, tokens *graph.Node) *graph.Node {
		return ModelGraph(ctx, cfg, images, tokens)
	})
	if err != nil {
		return nil, datasets.Wrapf(datasets.ErrValidation, err, "compiling captioning model")
	}
	m.exec = exec
	klog.V(1).Infof("captioning model: %dx%d images, vocabulary %d, embedding %d, backend %s",
		cfg.TargetWidth, cfg.TargetHeight, cfg.VocabularySize, cfg.EmbeddingDim, backend.Name())
	return m, nil
}

// Context returns the gomlx context with the model parameters.
func (m *Model) Context() *context.Context { return m.ctx }

// NumParameters returns the number of scalar parameters. Parameters are
// created on the first Forward, before that it returns 0.
func (m *Model) NumParameters() int { return m.ctx.NumParameters() }

// Forward computes the next token logits, shaped [B, VocabularySize], for
// images shaped [B, 3, TargetHeight, TargetWidth] (float32) and tokens shaped
// [B, L] (int32, values in [0, VocabularySize)).
//
// Inputs are validated before executing anything; violations are ErrValidation.
func (m *Model) Forward(images, tokens *tensors.Tensor) (logits *tensors.Tensor, err error) {
	if err := m.validate(images, tokens); err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			logits, err = nil, datasets.Errorf(datasets.ErrValidation, "forward pass failed: %v", r)
		}
	}()
	logits, err = m.exec.Exec1(images, tokens)
	if err != nil {
		return nil, datasets.Wrapf(datasets.ErrValidation, err, "forward pass")
	}
	return logits, nil
}

func (m *Model) validate(images, tokens *tensors.Tensor) error {
	if images == nil || tokens == nil {
		return datasets.Errorf(datasets.ErrValidation, "images and tokens are required")
	}
	is, ts := images.Shape(), tokens.Shape()
	if is.DType != dtypes.Float32 || is.Rank() != 4 {
		return datasets.Errorf(datasets.ErrValidation, "images must be float32 [B, 3, H, W], got %s", is)
	}
	if is.Dimensions[1] != datasets.NumChannels || is.Dimensions[2] != m.Config.TargetHeight || is.Dimensions[3] != m.Config.TargetWidth {
		return datasets.Errorf(datasets.ErrValidation, "images must be [B, %d, %d, %d], got %s",
			datasets.NumChannels, m.Config.TargetHeight, m.Config.TargetWidth, is)
	}
	if ts.DType != dtypes.Int32 || ts.Rank() != 2 || ts.Dimensions[1] == 0 {
		return datasets.Errorf(datasets.ErrValidation, "tokens must be int32 [B, L] with L > 0, got %s", ts)
	}
	if ts.Dimensions[0] != is.Dimensions[0] {
		return datasets.Errorf(datasets.ErrValidation, "batch sizes differ: %d images, %d token sequences",
			is.Dimensions[0], ts.Dimensions[0])
	}
	for i, v := range tensors.CopyFlatData[int32](tokens) {
		if v < 0 || int(v) >= m.Config.VocabularySize {
			return datasets.Errorf(datasets.ErrValidation, "token %d at position %d is not in [0, %d)",
				v, i, m.Config.VocabularySize)
		}
	}
	return nil
}

// ForwardBatch runs Forward on a batch of images and equal length token sequences.
func (m *Model) ForwardBatch(batch *datasets.ImageBatchFlat, sequences [][]int32) (*tensors.Tensor, error) {
	if batch == nil || batch.BatchSize == 0 {
		return nil, datasets.Errorf(datasets.ErrValidation, "empty image batch")
	}
	if len(sequences) != batch.BatchSize {
		return nil, datasets.Errorf(datasets.ErrValidation, "%d images but %d token sequences", batch.BatchSize, len(sequences))
	}
	tokens, err := datasets.SequencesToGomlxTensor(sequences)
	if err != nil {
		return nil, err
	}
	return m.Forward(batch.ToGomlxTensor(), tokens)
}

// Predict returns, for each example, the index of the highest logit.
func Predict(logits *tensors.Tensor) ([]int32, error) {
	s := logits.Shape()
	if s.DType != dtypes.Float32 || s.Rank() != 2 {
		return nil, datasets.Errorf(datasets.ErrValidation, "logits must be float32 [B, V], got %s", s)
	}
	flat := tensors.CopyFlatData[float32](logits)
	batchSize, vocab := s.Dimensions[0], s.Dimensions[1]
	out := make([]int32, batchSize)
	for b := range batchSize {
		row := flat[b*vocab : (b+1)*vocab]
		best := 0
		for i, v := range row {
			if v > row[best] {
				best = i
			}
		}
		out[b] = int32(best)
	}
	return out, nil
}

// String implements fmt.Stringer.
func (m *Model) String() string {
	return fmt.Sprintf("captioner(%dx%d, vocab=%d, embedding=%d, hidden=%d)",
		m.Config.TargetWidth, m.Config.TargetHeight, m.Config.VocabularySize, m.Config.EmbeddingDim, m.Config.HiddenSize)
}
