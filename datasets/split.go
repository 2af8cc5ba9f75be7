package datasets

import (
	"encoding/json"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"
)

// Partition names, also the sub-folder names of a persisted split.
const (
	TrainPartition = "train"
	ValPartition   = "val"
	TestPartition  = "test"
)

// CaptionsFileName is the JSON file with the captions of a persisted partition.
const CaptionsFileName = "image_captions.json"

// DefaultSeed is the seed used by SplitData when SplitConfig.Seed is zero.
const DefaultSeed = 42

// SplitConfig configures SplitData.
type SplitConfig struct {
	// Train, Val and Test are the fractions of the dataset for each partition.
	// They must sum to 1. If all three and Seed are zero, the whole
	// DefaultSplitConfig is used.
	Train, Val, Test float64

	// Seed for the shuffle, used as given: 0 is a valid seed.
	Seed int64

	// SaveDir, if set, is where the partitions are persisted (see Split.Save).
	SaveDir string
}

// DefaultSplitConfig returns the 0.8/0.1/0.1 configuration.
func DefaultSplitConfig() SplitConfig {
	return SplitConfig{Train: 0.8, Val: 0.1, Test: 0.1, Seed: DefaultSeed}
}

// Validate checks the ratios.
func (c SplitConfig) Validate() error {
	for _, r := range []struct {
		name  string
		value float64
	}{{TrainPartition, c.Train}, {ValPartition, c.Val}, {TestPartition, c.Test}} {
		if math.IsNaN(r.value) || r.value < 0 || r.value > 1 {
			return newKindError(ErrValidation, "%s ratio must be in [0, 1], got %g", r.name, r.value)
		}
	}
	if sum := c.Train + c.Val + c.Test; math.Abs(sum-1) > 1e-9 {
		return newKindError(ErrValidation, "split ratios must sum to 1, got %g+%g+%g=%g", c.Train, c.Val, c.Test, sum)
	}
	return nil
}

// Partition is one subset of a split dataset.
type Partition struct {
	Images   Images
	Captions Captions
}

// Len returns the number of images in the partition.
func (p Partition) Len() int { return len(p.Images) }

func newPartition(n int) Partition {
	return Partition{Images: make(Images, n), Captions: make(Captions, n)}
}

// Split holds the three disjoint partitions of a dataset.
type Split struct {
	Train, Val, Test Partition
}

// Partitions returns the partitions keyed by their folder name.
func (s *Split) Partitions() map[string]*Partition {
	return map[string]*Partition{
		TrainPartition: &s.Train,
		ValPartition:   &s.Val,
		TestPartition:  &s.Test,
	}
}

// SplitData partitions images/captions into train, val and test.
//
// The split is done in two stages, the same way as successive train/test splits:
// first ceil((1-Train)*N) keys are held out, and the remaining ones form the
// train partition; then ceil(Test/(Val+Test)*held) of the held out keys form
// the test partition and the rest val. Keys are sorted and shuffled with the
// configured seed, so identical inputs and ratios always give the same split.
//
// If cfg.SaveDir is set the split is also persisted with Split.Save.
func SplitData(images Images, captions Captions, cfg SplitConfig) (*Split, error) {
	if cfg.Train == 0 && cfg.Val == 0 && cfg.Test == 0 && cfg.Seed == 0 {
		def := DefaultSplitConfig()
		cfg.Train, cfg.Val, cfg.Test, cfg.Seed = def.Train, def.Val, def.Test, def.Seed
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	keys := images.Keys()
	for _, key := range keys {
		if _, ok := captions[key]; !ok {
			return nil, newKindError(ErrValidation, "image %q has no captions", key)
		}
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	rng.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })

	n := len(keys)
	held := heldOutCount(n, 1-cfg.Train)
	trainKeys, rest := keys[:n-held], keys[n-held:]
	var valKeys, testKeys []string
	if len(rest) > 0 && cfg.Val+cfg.Test > 0 {
		rng = rand.New(rand.NewSource(cfg.Seed))
		rng.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
		numTest := heldOutCount(len(rest), cfg.Test/(cfg.Val+cfg.Test))
		valKeys, testKeys = rest[:len(rest)-numTest], rest[len(rest)-numTest:]
	}

	split := &Split{
		Train: subset(images, captions, trainKeys),
		Val:   subset(images, captions, valKeys),
		Test:  subset(images, captions, testKeys),
	}
	klog.V(1).Infof("split %d images into train=%d val=%d test=%d", n, split.Train.Len(), split.Val.Len(), split.Test.Len())

	if cfg.SaveDir != "" {
		if err := split.Save(cfg.SaveDir); err != nil {
			return nil, err
		}
	}
	return split, nil
}

// heldOutCount returns ceil(fraction*n) clamped to [0, n], tolerating the
// floating point noise of 1-0.8 and friends.
func heldOutCount(n int, fraction float64) int {
	count := int(math.Ceil(fraction*float64(n) - 1e-9))
	return min(max(count, 0), n)
}

func subset(images Images, captions Captions, keys []string) Partition {
	p := newPartition(len(keys))
	for _, key := range keys {
		p.Images[key] = images[key]
		p.Captions[key] = append([]string(nil), captions[key]...)
	}
	return p
}

// Save persists the split under dir as dir/{train,val,test}/<image files> plus
// dir/{train,val,test}/image_captions.json.
//
// Folders are created or reused and existing files are overwritten. A failure
// leaves whatever was already written in place.
func (s *Split) Save(dir string, opts ...Option) error {
	o := makeOptions(opts)
	if err := ensureDir(dir); err != nil {
		return err
	}
	for _, name := range []string{TrainPartition, ValPartition, TestPartition} {
		p := s.Partitions()[name]
		if err := p.save(filepath.Join(dir, name), o); err != nil {
			return err
		}
	}
	klog.V(1).Infof("saved split to %s", dir)
	return nil
}

func (p Partition) save(dir string, o options) error {
	if err := ensureDir(dir); err != nil {
		return err
	}
	bar := o.newBar(p.Len(), "Saving "+filepath.Base(dir))
	defer closeBar(bar)
	for _, key := range p.Images.Keys() {
		if err := EncodeImage(p.Images[key], filepath.Join(dir, key)); err != nil {
			return err
		}
		addBar(bar)
	}
	captions := p.Captions
	if captions == nil {
		captions = make(Captions)
	}
	data, err := json.Marshal(captions)
	if err != nil {
		return wrapKind(ErrFormat, err, "encoding captions for %q", dir)
	}
	path := filepath.Join(dir, CaptionsFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return wrapKind(ErrIO, err, "writing %q", path)
	}
	return nil
}
