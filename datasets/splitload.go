package datasets

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"k8s.io/klog/v2"
)

// LoadSplitDataset loads a split persisted by Split.Save.
//
// A missing train, val or test sub-folder gives an empty partition. Otherwise
// the sub-folder must have an image_captions.json file, and every image it
// names must exist in the same sub-folder.
func LoadSplitDataset(root string, opts ...Option) (*Split, error) {
	o := makeOptions(opts)
	dir, err := resolveDir(root)
	if err != nil {
		return nil, err
	}
	split := &Split{}
	for name, p := range split.Partitions() {
		sub := filepath.Join(dir, name)
		if !fsutil.MustFileExists(sub) {
			klog.V(1).Infof("no %s partition in %s", name, dir)
			*p = newPartition(0)
			continue
		}
		loaded, err := loadPartition(sub, o)
		if err != nil {
			return nil, err
		}
		*p = loaded
	}
	klog.V(1).Infof("loaded split from %s: train=%d val=%d test=%d", dir, split.Train.Len(), split.Val.Len(), split.Test.Len())
	return split, nil
}

// ReadPartitionCaptions reads the image_captions.json of a persisted partition folder.
func ReadPartitionCaptions(dir string) (Captions, error) {
	path := filepath.Join(dir, CaptionsFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapKind(ErrIO, err, "reading captions %q", path)
	}
	var captions Captions
	if err := json.Unmarshal(data, &captions); err != nil {
		return nil, wrapKind(ErrFormat, err, "parsing captions %q", path)
	}
	if captions == nil {
		captions = make(Captions)
	}
	return captions, nil
}

func loadPartition(dir string, o options) (Partition, error) {
	captions, err := ReadPartitionCaptions(dir)
	if err != nil {
		return Partition{}, err
	}
	p := Partition{Images: make(Images, len(captions)), Captions: captions}
	bar := o.newBar(len(captions), "Loading "+filepath.Base(dir))
	defer closeBar(bar)
	for _, key := range captions.Keys() {
		img, err := DecodeImage(filepath.Join(dir, key))
		if err != nil {
			return Partition{}, err
		}
		p.Images[key] = img
		addBar(bar)
	}
	return p, nil
}
