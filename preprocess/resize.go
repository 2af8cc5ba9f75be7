package preprocess

import (
	"image"

	"github.com/Noofbiz/captionPrep/datasets"
	"github.com/disintegration/imaging"
)

// Resize returns a new mapping with every image resized to size with bilinear
// interpolation. Keys are unchanged and the input is not modified.
func Resize(images datasets.Images, size Size) (datasets.Images, error) {
	if err := size.Validate(); err != nil {
		return nil, err
	}
	out := make(datasets.Images, len(images))
	for key, img := range images {
		out[key] = ResizeImage(img, size)
	}
	return out, nil
}

// ResizeImage resizes one image to size with bilinear interpolation.
func ResizeImage(img image.Image, size Size) image.Image {
	return imaging.Resize(img, size.Width, size.Height, imaging.Linear)
}

// Resizer returns a transform resizing images to size, in the form used by
// datasets.PairDataset.Transform.
func Resizer(size Size) func(image.Image) (image.Image, error) {
	return func(img image.Image) (image.Image, error) {
		if err := size.Validate(); err != nil {
			return nil, err
		}
		return ResizeImage(img, size), nil
	}
}
