package datasets

import (
	"image"
	"io"
	"math/rand"
	"path/filepath"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
)

// DirSource reads images from a folder on demand, e.g. one partition of a
// persisted split.
type DirSource struct {
	Dir string
}

// NewDirSource checks dir exists and returns a DirSource over it.
func NewDirSource(dir string) (*DirSource, error) {
	resolved, err := resolveDir(dir)
	if err != nil {
		return nil, err
	}
	return &DirSource{Dir: resolved}, nil
}

// Image implements ImageSource.
func (s *DirSource) Image(key string) (image.Image, error) {
	return DecodeImage(filepath.Join(s.Dir, key))
}

// pairRef points to the prefix seq[:t] of one encoded caption, whose next token is seq[t].
type pairRef struct {
	key string
	seq int
	t   int
}

// PairDataset streams (image, caption prefix) -> next token examples.
//
// Every caption encoded as [<start>, w1, ..., wn, <end>] contributes one
// example per position t in [1, len): the prefix seq[:t] left padded (or
// truncated to its last tokens) to MaxLen, and the label seq[t]. Images are
// requested from the ImageSource only when an example is read.
//
// Yield returns batches of BatchSize examples (the last one may be smaller)
// and io.EOF at the end of an epoch:
//
//	inputs = [images [B, 3, H, W] float32, prefixes [B, MaxLen] int32]
//	labels = [next [B] int32]
type PairDataset struct {
	// BatchSize for Yield.
	BatchSize int

	// MaxLen is the length of the token prefixes.
	MaxLen int

	// Transform, if set, is applied to every image read from the source,
	// typically a resize to the model input size.
	Transform func(image.Image) (image.Image, error)

	name      string
	source    ImageSource
	sequences [][]int32
	pairs     []pairRef
	order     []int
	pos       int
}

var (
	_ Dataset       = (*PairDataset)(nil)
	_ train.Dataset = (*PairDataset)(nil)
)

// NewPairDataset creates the dataset over the captions of source.
func NewPairDataset(name string, source ImageSource, captions Captions, enc Encoder, maxLen int) (*PairDataset, error) {
	if maxLen <= 0 {
		return nil, newKindError(ErrValidation, "max length must be positive, got %d", maxLen)
	}
	if source == nil || enc == nil {
		return nil, newKindError(ErrValidation, "pair dataset needs an image source and an encoder")
	}
	ds := &PairDataset{
		BatchSize: 32,
		MaxLen:    maxLen,
		name:      name,
		source:    source,
	}
	for _, key := range captions.Keys() {
		for _, caption := range captions[key] {
			seq := enc.Encode(caption)
			idx := len(ds.sequences)
			ds.sequences = append(ds.sequences, seq)
			for t := 1; t < len(seq); t++ {
				ds.pairs = append(ds.pairs, pairRef{key: key, seq: idx, t: t})
			}
		}
	}
	ds.order = make([]int, len(ds.pairs))
	for i := range ds.order {
		ds.order[i] = i
	}
	return ds, nil
}

// Name implements train.Dataset.
func (ds *PairDataset) Name() string { return ds.name }

// Len returns the number of examples in an epoch.
func (ds *PairDataset) Len() int { return len(ds.pairs) }

// Shuffle permutes the order of the examples. It also restarts the epoch.
func (ds *PairDataset) Shuffle(seed int64) {
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(ds.order), func(i, j int) { ds.order[i], ds.order[j] = ds.order[j], ds.order[i] })
	ds.pos = 0
}

// Reset implements train.Dataset.
func (ds *PairDataset) Reset() { ds.pos = 0 }

// Example returns the example at position i of the current order.
func (ds *PairDataset) Example(i int) (img image.Image, prefix []int32, next int32, err error) {
	if i < 0 || i >= len(ds.order) {
		return nil, nil, 0, newKindError(ErrRange, "example %d, dataset has %d", i, len(ds.order))
	}
	ref := ds.pairs[ds.order[i]]
	img, err = ds.source.Image(ref.key)
	if err != nil {
		return nil, nil, 0, err
	}
	if ds.Transform != nil {
		if img, err = ds.Transform(img); err != nil {
			return nil, nil, 0, err
		}
	}
	seq := ds.sequences[ref.seq]
	return img, PadLeft(seq[:ref.t], ds.MaxLen), seq[ref.t], nil
}

// Yield implements train.Dataset.
func (ds *PairDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if ds.pos >= len(ds.order) {
		return nil, nil, nil, io.EOF
	}
	batchSize := max(ds.BatchSize, 1)
	end := min(ds.pos+batchSize, len(ds.order))
	imgs := make([]image.Image, 0, end-ds.pos)
	prefixes := make([][]int32, 0, end-ds.pos)
	next := make([]int32, 0, end-ds.pos)
	for i := ds.pos; i < end; i++ {
		img, prefix, label, err := ds.Example(i)
		if err != nil {
			return nil, nil, nil, err
		}
		imgs = append(imgs, img)
		prefixes = append(prefixes, prefix)
		next = append(next, label)
	}
	ds.pos = end

	batch, err := MakeImageBatchFlat(imgs)
	if err != nil {
		return nil, nil, nil, err
	}
	tokens, err := SequencesToGomlxTensor(prefixes)
	if err != nil {
		return nil, nil, nil, err
	}
	inputs = []*tensors.Tensor{batch.ToGomlxTensor(), tokens}
	labels = []*tensors.Tensor{tensors.FromFlatDataAndDimensions(next, len(next))}
	return ds, inputs, labels, nil
}
