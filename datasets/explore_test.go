package datasets

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

func TestImageAtCaptionsAt(t *testing.T) {
	images := Images{"b.png": testImage(1, 1), "a.png": testImage(2, 2)}
	captions := Captions{"b.png": {"bee"}, "a.png": {"ay"}}

	name, img, err := ImageAt(images, 0)
	if err != nil {
		t.Fatalf("ImageAt(0) failed: %v", err)
	}
	if name != "a.png" || img.Bounds().Dx() != 2 {
		t.Fatalf("ImageAt(0) should be the first key in order, got %q", name)
	}
	caps, err := CaptionsAt(captions, 1)
	if err != nil || !reflect.DeepEqual(caps, []string{"bee"}) {
		t.Fatalf("CaptionsAt(1) = %v, %v", caps, err)
	}

	for _, index := range []int{-1, 2} {
		if _, _, err := ImageAt(images, index); !errors.Is(err, ErrRange) {
			t.Fatalf("ImageAt(%d): expected ErrRange, got %v", index, err)
		}
		if _, err := CaptionsAt(captions, index); !errors.Is(err, ErrRange) {
			t.Fatalf("CaptionsAt(%d): expected ErrRange, got %v", index, err)
		}
	}
}

func TestDescribeImages(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "a.png", 10, 20)
	writeImage(t, dir, "b.jpg", 30, 40)
	writeImage(t, dir, "c.bmp", 20, 30)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatal(err)
	}

	stats, err := DescribeImages(dir)
	if err != nil {
		t.Fatalf("DescribeImages failed: %v", err)
	}
	if stats.Count != 3 {
		t.Fatalf("expected 3 images, got %d", stats.Count)
	}
	if stats.MinWidth != 10 || stats.MaxWidth != 30 || stats.MeanWidth != 20 {
		t.Fatalf("unexpected width stats: %s", stats)
	}
	if stats.MinHeight != 20 || stats.MaxHeight != 40 || stats.MeanHeight != 30 {
		t.Fatalf("unexpected height stats: %s", stats)
	}
	if stats.TotalBytes <= 0 {
		t.Fatalf("expected positive total bytes, got %d", stats.TotalBytes)
	}

	plotPath := filepath.Join(t.TempDir(), "plots", "sizes.png")
	if err := PlotImageSizes(stats, plotPath); err != nil {
		t.Fatalf("PlotImageSizes failed: %v", err)
	}
	if info, err := os.Stat(plotPath); err != nil || info.Size() == 0 {
		t.Fatalf("plot not written: %v", err)
	}

	if _, err := DescribeImages(t.TempDir()); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty folder: expected ErrValidation, got %v", err)
	}
}

func TestSampleGrid(t *testing.T) {
	dir := t.TempDir()
	_, captions := makeDataset(t, dir, 5)
	out := filepath.Join(t.TempDir(), "grid.png")

	GridTileSize = 16
	samples, err := SampleGrid(dir, captions, 4, 7, out)
	if err != nil {
		t.Fatalf("SampleGrid failed: %v", err)
	}
	if len(samples) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(samples))
	}
	seen := make(map[string]bool)
	for _, s := range samples {
		if seen[s.Filename] {
			t.Fatalf("sample %q picked twice", s.Filename)
		}
		seen[s.Filename] = true
		if !reflect.DeepEqual(s.Captions, captions[s.Filename]) {
			t.Fatalf("captions of %q not attached", s.Filename)
		}
	}
	grid, err := imaging.Open(out)
	if err != nil {
		t.Fatalf("reading grid: %v", err)
	}
	if b := grid.Bounds(); b.Dx() != 32 || b.Dy() != 32 {
		t.Fatalf("expected a 2x2 grid of 16px tiles, got %dx%d", b.Dx(), b.Dy())
	}

	if _, err := SampleGrid(dir, captions, 9, 7, out); !errors.Is(err, ErrValidation) {
		t.Fatalf("too few images: expected ErrValidation, got %v", err)
	}
}
