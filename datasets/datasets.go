package datasets

import (
	"image"
	"sort"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// This package loads an image captioning dataset (a folder of images plus a
// captions file) into memory, splits it into train/val/test partitions, persists
// those partitions and loads them back.
//
// Two representations are provided:
//
// Images / Captions
//   - Plain maps keyed by image filename, created fresh on every load.
//   - All pixel data is resident in memory; this is the simplest contract and
//     the one used by the splitter and the preprocessor.
//
// PairDataset
//   - A lazy, restartable stream of (image, partial caption) -> next token
//     examples built over an ImageSource, suitable for gomlx training loops.
//
// Go maps have no insertion order, so every index based helper and the
// splitter work on Keys(), the lexicographically sorted filenames.

// Images maps an image filename to its decoded pixels.
type Images map[string]image.Image

// Captions maps an image filename to its captions, in file order.
type Captions map[string][]string

// Keys returns the filenames in lexicographic order.
func (im Images) Keys() []string {
	keys := make([]string, 0, len(im))
	for k := range im {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Image implements ImageSource.
func (im Images) Image(key string) (image.Image, error) {
	img, ok := im[key]
	if !ok {
		return nil, newKindError(ErrIO, "image %q not loaded", key)
	}
	return img, nil
}

// Keys returns the filenames in lexicographic order.
func (c Captions) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a copy of the captions; caption slices are not shared.
func (c Captions) Clone() Captions {
	out := make(Captions, len(c))
	for k, v := range c {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// NumCaptions returns the total number of captions over all images.
func (c Captions) NumCaptions() int {
	n := 0
	for _, v := range c {
		n += len(v)
	}
	return n
}

// ImageSource returns decoded images by filename. Images (in memory) and
// DirSource (read from disk on demand) implement it.
type ImageSource interface {
	Image(key string) (image.Image, error)
}

// Encoder converts a caption into token indices. Index 0 is reserved for
// padding. preprocess.Index implements it.
type Encoder interface {
	Encode(caption string) []int32
	Size() int
}

// Dataset is the interface the pair dataset implements in order to interact
// with GoMLX training loops and batching utilities.
type Dataset interface {
	Len() int
	Example(i int) (img image.Image, prefix []int32, next int32, err error)
	Shuffle(seed int64)

	// To implement gomlx's train.Dataset interface
	Name() string
	Reset()
	Yield() (any, []*tensors.Tensor, []*tensors.Tensor, error)
}
