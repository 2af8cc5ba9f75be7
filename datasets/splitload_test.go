package datasets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
)

func TestLoadSplitDataset_MissingPartition(t *testing.T) {
	root := t.TempDir()
	train := filepath.Join(root, TrainPartition)
	if err := os.Mkdir(train, 0755); err != nil {
		t.Fatal(err)
	}
	writeImage(t, train, "a.png", 3, 2)
	if err := os.WriteFile(filepath.Join(train, CaptionsFileName), []byte(`{"a.png": ["hello"]}`), 0644); err != nil {
		t.Fatal(err)
	}

	split, err := LoadSplitDataset(root)
	if err != nil {
		t.Fatalf("LoadSplitDataset failed: %v", err)
	}
	if split.Train.Len() != 1 {
		t.Fatalf("expected 1 train image, got %d", split.Train.Len())
	}
	if split.Val.Len() != 0 || split.Test.Len() != 0 || split.Val.Captions == nil || split.Test.Captions == nil {
		t.Fatalf("missing partitions should be empty (not nil), got val=%+v test=%+v", split.Val, split.Test)
	}
}

func TestLoadSplitDataset_Errors(t *testing.T) {
	root := t.TempDir()
	val := filepath.Join(root, ValPartition)
	if err := os.Mkdir(val, 0755); err != nil {
		t.Fatal(err)
	}

	// Partition folder without captions file.
	if _, err := LoadSplitDataset(root); !errors.Is(err, ErrIO) {
		t.Fatalf("missing captions file: expected ErrIO, got %v", err)
	}

	captionsPath := filepath.Join(val, CaptionsFileName)
	if err := os.WriteFile(captionsPath, []byte(`{"a.png": `), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSplitDataset(root); !errors.Is(err, ErrFormat) {
		t.Fatalf("malformed captions: expected ErrFormat, got %v", err)
	}

	if err := os.WriteFile(captionsPath, []byte(`{"gone.png": ["x"]}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSplitDataset(root); !errors.Is(err, ErrIO) {
		t.Fatalf("missing image: expected ErrIO, got %v", err)
	}

	if _, err := LoadSplitDataset(filepath.Join(root, "nope")); !errors.Is(err, ErrIO) {
		t.Fatalf("missing root: expected ErrIO, got %v", err)
	}
}
