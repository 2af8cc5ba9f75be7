// Package preprocess pads and resizes caption images and extracts the
// vocabulary of their captions.
package preprocess

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Noofbiz/captionPrep/datasets"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ErrNegativeSize is returned when the target size is smaller than the image.
// It wraps datasets.ErrValidation.
var ErrNegativeSize = errors.Wrap(datasets.ErrValidation, "target size smaller than image")

// Size of an image in pixels.
type Size struct {
	Width, Height int
}

// Validate checks both dimensions are positive.
func (s Size) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return datasets.Errorf(datasets.ErrValidation, "size must be positive, got %dx%d", s.Width, s.Height)
	}
	return nil
}

// Padding added to each side of an image by PadImage.
type Padding struct {
	Left, Right, Top, Bottom int
}

// Content returns the rectangle of the original image inside the padded one.
func (p Padding) Content(padded image.Rectangle) image.Rectangle {
	return image.Rect(padded.Min.X+p.Left, padded.Min.Y+p.Top, padded.Max.X-p.Right, padded.Max.Y-p.Bottom)
}

// PadImage centers img on a canvas of the given size filled with fill.
//
// With dw = size.Width - width, left gets dw/2 and right the remainder (the
// odd pixel goes to the right), and the same for top and bottom.
func PadImage(img image.Image, size Size, fill color.Color) (image.Image, Padding, error) {
	if err := size.Validate(); err != nil {
		return nil, Padding{}, err
	}
	b := img.Bounds()
	dw, dh := size.Width-b.Dx(), size.Height-b.Dy()
	if dw < 0 || dh < 0 {
		return nil, Padding{}, errors.Wrapf(ErrNegativeSize, "image %dx%d, target %dx%d", b.Dx(), b.Dy(), size.Width, size.Height)
	}
	pad := Padding{Left: dw / 2, Right: dw - dw/2, Top: dh / 2, Bottom: dh - dh/2}
	canvas := imaging.New(size.Width, size.Height, fill)
	return imaging.Paste(canvas, img, image.Pt(pad.Left, pad.Top)), pad, nil
}

// PadImages pads every image file of inputDir to size and writes it, with the
// same filename, to outputDir (created if missing). It returns the number of
// images written. Files that are not images are skipped.
func PadImages(inputDir, outputDir string, size Size, fill color.Color, opts ...datasets.Option) (int, error) {
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return 0, datasets.Wrapf(datasets.ErrIO, err, "listing %q", inputDir)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, datasets.Wrapf(datasets.ErrIO, err, "creating folder %q", outputDir)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isPaddable(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var count int
	for _, name := range names {
		img, err := datasets.DecodeImage(filepath.Join(inputDir, name))
		if err != nil {
			return count, err
		}
		padded, _, err := PadImage(img, size, fill)
		if err != nil {
			return count, errors.WithMessagef(err, "padding %q", name)
		}
		if err := datasets.EncodeImage(padded, filepath.Join(outputDir, name)); err != nil {
			return count, err
		}
		count++
	}
	klog.V(1).Infof("padded %d images from %s into %s (%dx%d)", count, inputDir, outputDir, size.Width, size.Height)
	return count, nil
}

// isPaddable reports whether name is a .png, .jpg or .jpeg file.
func isPaddable(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

// MaxSize returns the largest width and height over images, the smallest size
// every image can be padded to.
func MaxSize(images datasets.Images) Size {
	var s Size
	for _, img := range images {
		b := img.Bounds()
		s.Width = max(s.Width, b.Dx())
		s.Height = max(s.Height, b.Dy())
	}
	return s
}
