package datasets

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
)

// writeCSV writes a CSV file with the given header and rows to path.
func writeCSV(t *testing.T, path, header string, rows []string) {
	t.Helper()
	content := header + "\n" + strings.Join(rows, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write csv %s: %v", path, err)
	}
}

// testImage returns a w x h image with a gradient, so every pixel differs.
func testImage(w, h int) *image.NRGBA {
	img := imaging.New(w, h, color.Black)
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 17), G: uint8(y * 31), B: uint8(x + y), A: 255})
		}
	}
	return img
}

// writeImage saves a w x h test image as dir/name and returns it.
func writeImage(t *testing.T, dir, name string, w, h int) *image.NRGBA {
	t.Helper()
	img := testImage(w, h)
	if err := imaging.Save(img, filepath.Join(dir, name)); err != nil {
		t.Fatalf("failed to save image %s: %v", name, err)
	}
	return img
}

// samePixels reports whether a and b have the same size and RGBA values.
func samePixels(a, b image.Image) bool {
	ba, bb := a.Bounds(), b.Bounds()
	if ba.Dx() != bb.Dx() || ba.Dy() != bb.Dy() {
		return false
	}
	for y := range ba.Dy() {
		for x := range ba.Dx() {
			r1, g1, b1, a1 := a.At(ba.Min.X+x, ba.Min.Y+y).RGBA()
			r2, g2, b2, a2 := b.At(bb.Min.X+x, bb.Min.Y+y).RGBA()
			if r1 != r2 || g1 != g2 || b1 != b2 || a1 != a2 {
				return false
			}
		}
	}
	return true
}

// makeDataset writes n PNG images ("imga.png", "imgb.png", ...) under dir and returns them
// loaded in memory, with two captions each.
func makeDataset(t *testing.T, dir string, n int) (Images, Captions) {
	t.Helper()
	images := make(Images, n)
	captions := make(Captions, n)
	for i := range n {
		name := "img" + string(rune('a'+i%26)) + strings.Repeat("x", i/26) + ".png"
		images[name] = writeImage(t, dir, name, 4+i%3, 3+i%2)
		captions[name] = []string{"a dog runs.", "the dog is " + name}
	}
	return images, captions
}
