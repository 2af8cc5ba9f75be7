package datasets

import (
	"image"
	"image/draw"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// NumChannels of the image batches: RGB, alpha is dropped.
const NumChannels = 3

// ImageBatchFlat stores a batch of images in one contiguous channels-first
// buffer, [BatchSize, NumChannels, Height, Width], with values scaled to [0, 1].
type ImageBatchFlat struct {
	Pixels        []float32
	BatchSize     int
	Height, Width int
}

// MakeImageBatchFlat flattens images, which must all have the same size.
func MakeImageBatchFlat(imgs []image.Image) (*ImageBatchFlat, error) {
	if len(imgs) == 0 {
		return &ImageBatchFlat{}, nil
	}
	bounds := imgs[0].Bounds()
	height, width := bounds.Dy(), bounds.Dx()
	batch := &ImageBatchFlat{
		Pixels:    make([]float32, len(imgs)*NumChannels*height*width),
		BatchSize: len(imgs),
		Height:    height,
		Width:     width,
	}
	for i, img := range imgs {
		b := img.Bounds()
		if b.Dy() != height || b.Dx() != width {
			return nil, newKindError(ErrValidation, "inconsistent image size at example %d: expected %dx%d, got %dx%d",
				i, width, height, b.Dx(), b.Dy())
		}
		batch.fill(i, img)
	}
	return batch, nil
}

// fill writes example i of the batch.
func (b *ImageBatchFlat) fill(i int, img image.Image) {
	rgba, ok := img.(*image.NRGBA)
	if !ok || rgba.Bounds().Min != (image.Point{}) {
		rgba = image.NewNRGBA(image.Rect(0, 0, b.Width, b.Height))
		draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	}
	plane := b.Height * b.Width
	base := i * NumChannels * plane
	for y := range b.Height {
		row := rgba.Pix[y*rgba.Stride:]
		for x := range b.Width {
			pos := y*b.Width + x
			for c := range NumChannels {
				b.Pixels[base+c*plane+pos] = float32(row[x*4+c]) / 255
			}
		}
	}
}

// ToGomlxTensor converts the batch to a float32 tensor shaped [BatchSize, 3, Height, Width].
func (b *ImageBatchFlat) ToGomlxTensor() *tensors.Tensor {
	return tensors.FromFlatDataAndDimensions(b.Pixels, b.BatchSize, NumChannels, b.Height, b.Width)
}

// SequencesToGomlxTensor converts equal length token sequences to an int32
// tensor shaped [len(seqs), L].
func SequencesToGomlxTensor(seqs [][]int32) (*tensors.Tensor, error) {
	if len(seqs) == 0 {
		return nil, newKindError(ErrValidation, "empty batch of sequences")
	}
	length := len(seqs[0])
	if length == 0 {
		return nil, newKindError(ErrValidation, "empty token sequence")
	}
	flat := make([]int32, 0, len(seqs)*length)
	for i, seq := range seqs {
		if len(seq) != length {
			return nil, newKindError(ErrValidation, "inconsistent sequence length at example %d: expected %d, got %d",
				i, length, len(seq))
		}
		flat = append(flat, seq...)
	}
	return tensors.FromFlatDataAndDimensions(flat, len(seqs), length), nil
}

// PadLeft returns the last maxLen tokens of seq, left padded with 0 if shorter.
func PadLeft(seq []int32, maxLen int) []int32 {
	out := make([]int32, maxLen)
	if len(seq) >= maxLen {
		copy(out, seq[len(seq)-maxLen:])
		return out
	}
	copy(out[maxLen-len(seq):], seq)
	return out
}
