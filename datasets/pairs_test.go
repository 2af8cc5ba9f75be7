package datasets

import (
	"image"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// wordEncoder encodes each word as its length, wrapped by start=2 and end=3.
type wordEncoder struct{}

func (wordEncoder) Encode(caption string) []int32 {
	seq := []int32{2}
	for _, w := range strings.Fields(caption) {
		seq = append(seq, int32(len(w)+3))
	}
	return append(seq, 3)
}

func (wordEncoder) Size() int { return 20 }

func TestPairDataset(t *testing.T) {
	images := Images{"a.png": testImage(4, 3), "b.png": testImage(4, 3)}
	captions := Captions{"a.png": {"aa b"}, "b.png": {"ccc"}}
	ds, err := NewPairDataset("pairs", images, captions, wordEncoder{}, 3)
	if err != nil {
		t.Fatalf("NewPairDataset failed: %v", err)
	}
	// "aa b" -> [2 5 4 3]: 3 pairs; "ccc" -> [2 6 3]: 2 pairs.
	if ds.Len() != 5 {
		t.Fatalf("expected 5 pairs, got %d", ds.Len())
	}

	img, prefix, next, err := ds.Example(2)
	if err != nil {
		t.Fatalf("Example(2) failed: %v", err)
	}
	if !samePixels(img, images["a.png"]) {
		t.Fatalf("Example(2) should use a.png")
	}
	if !reflect.DeepEqual(prefix, []int32{2, 5, 4}) || next != 3 {
		t.Fatalf("Example(2) = %v -> %d", prefix, next)
	}
	_, prefix, next, _ = ds.Example(0)
	if !reflect.DeepEqual(prefix, []int32{0, 0, 2}) || next != 5 {
		t.Fatalf("Example(0) = %v -> %d", prefix, next)
	}
	if _, _, _, err := ds.Example(5); !errors.Is(err, ErrRange) {
		t.Fatalf("Example(5): expected ErrRange, got %v", err)
	}

	ds.BatchSize = 2
	var numBatches, numExamples int
	for {
		_, inputs, labels, err := ds.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Yield failed: %v", err)
		}
		batch := labels[0].Shape().Dimensions[0]
		if dims := inputs[0].Shape().Dimensions; !reflect.DeepEqual(dims, []int{batch, 3, 3, 4}) {
			t.Fatalf("unexpected images dims %v", dims)
		}
		if dims := inputs[1].Shape().Dimensions; !reflect.DeepEqual(dims, []int{batch, 3}) {
			t.Fatalf("unexpected prefix dims %v", dims)
		}
		numBatches++
		numExamples += batch
	}
	if numBatches != 3 || numExamples != 5 {
		t.Fatalf("expected 3 batches with 5 examples, got %d batches, %d examples", numBatches, numExamples)
	}

	// Reset restarts the epoch.
	ds.Reset()
	if _, _, _, err := ds.Yield(); err != nil {
		t.Fatalf("Yield after Reset failed: %v", err)
	}
}

func TestPairDataset_ShuffleAndTransform(t *testing.T) {
	dir := t.TempDir()
	_, captions := makeDataset(t, dir, 3)
	source, err := NewDirSource(dir)
	if err != nil {
		t.Fatalf("NewDirSource failed: %v", err)
	}
	ds, err := NewPairDataset("dir", source, captions, wordEncoder{}, 4)
	if err != nil {
		t.Fatalf("NewPairDataset failed: %v", err)
	}
	ds.Transform = func(img image.Image) (image.Image, error) {
		return imaging.Resize(img, 8, 8, imaging.Linear), nil
	}

	before := make([][]int32, ds.Len())
	for i := range ds.Len() {
		_, prefix, _, err := ds.Example(i)
		if err != nil {
			t.Fatalf("Example(%d) failed: %v", i, err)
		}
		before[i] = prefix
	}
	ds.Shuffle(1)
	after := make([][]int32, ds.Len())
	for i := range ds.Len() {
		img, prefix, _, err := ds.Example(i)
		if err != nil {
			t.Fatalf("Example(%d) after shuffle failed: %v", i, err)
		}
		if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 8 {
			t.Fatalf("transform not applied: %v", b)
		}
		after[i] = prefix
	}
	if reflect.DeepEqual(before, after) {
		t.Fatalf("Shuffle did not change the order")
	}

	// Images of different sizes need the transform to be batched.
	ds.Transform = nil
	ds.BatchSize = ds.Len()
	ds.Reset()
	if _, _, _, err := ds.Yield(); !errors.Is(err, ErrValidation) {
		t.Fatalf("mixed image sizes: expected ErrValidation, got %v", err)
	}
}

func TestNewPairDataset_Errors(t *testing.T) {
	if _, err := NewPairDataset("x", Images{}, Captions{}, wordEncoder{}, 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("zero max length: expected ErrValidation, got %v", err)
	}
	if _, err := NewDirSource(t.TempDir() + "/missing"); !errors.Is(err, ErrIO) {
		t.Fatalf("missing folder: expected ErrIO, got %v", err)
	}
}
