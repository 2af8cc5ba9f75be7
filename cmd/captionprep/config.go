package main

import (
	"encoding/json"
	"flag"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// defaultConfigJSON holds the default value of every tunable. A file given
// with -config is read on top of it, and flags set on the command line are
// applied last.
const defaultConfigJSON = `{
  "data": {
    "cache_dir": "~/.cache/captionprep",
    "dataset": "flickr8k",
    "dataset_dir": "data/flickr8k",
    "images_dir": "data/flickr8k/Images",
    "captions": "data/flickr8k/captions.txt",
    "overwrite": false
  },
  "explore": {
    "samples": 9,
    "seed": 42,
    "grid": "output/samples.png",
    "plot": "output/image_sizes.png",
    "index": -1
  },
  "pad": {
    "output_dir": "data/padded",
    "width": 0,
    "height": 0,
    "fill": "black"
  },
  "split": {
    "train": 0.8,
    "val": 0.1,
    "test": 0.1,
    "seed": 42,
    "output_dir": "data/split",
    "verify": false
  },
  "vocab": {
    "output": "output/vocabulary.json"
  },
  "model": {
    "partition": "train",
    "height": 224,
    "width": 224,
    "embedding_dim": 50,
    "hidden_size": 256,
    "max_len": 20,
    "batch_size": 8,
    "seed": 42
  }
}
`

// Config is the effective configuration of every command.
type Config struct {
	Data struct {
		CacheDir   string `json:"cache_dir"`
		Dataset    string `json:"dataset"`
		DatasetDir string `json:"dataset_dir"`
		ImagesDir  string `json:"images_dir"`
		Captions   string `json:"captions"`
		Overwrite  bool   `json:"overwrite"`
	} `json:"data"`
	Explore struct {
		Samples int    `json:"samples"`
		Seed    int64  `json:"seed"`
		Grid    string `json:"grid"`
		Plot    string `json:"plot"`
		Index   int    `json:"index"`
	} `json:"explore"`
	Pad struct {
		OutputDir string `json:"output_dir"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Fill      string `json:"fill"`
	} `json:"pad"`
	Split struct {
		Train     float64 `json:"train"`
		Val       float64 `json:"val"`
		Test      float64 `json:"test"`
		Seed      int64   `json:"seed"`
		OutputDir string  `json:"output_dir"`
		Verify    bool    `json:"verify"`
	} `json:"split"`
	Vocab struct {
		Output string `json:"output"`
	} `json:"vocab"`
	Model struct {
		Partition    string `json:"partition"`
		Height       int    `json:"height"`
		Width        int    `json:"width"`
		EmbeddingDim int    `json:"embedding_dim"`
		HiddenSize   int    `json:"hidden_size"`
		MaxLen       int    `json:"max_len"`
		BatchSize    int    `json:"batch_size"`
		Seed         int64  `json:"seed"`
	} `json:"model"`
}

// defaultConfig parses defaultConfigJSON.
func defaultConfig() *Config {
	cfg := &Config{}
	if err := json.Unmarshal([]byte(defaultConfigJSON), cfg); err != nil {
		panic(errors.Wrap(err, "invalid embedded default config"))
	}
	return cfg
}

// merge reads the JSON file at path over cfg, and then re-applies the flags
// explicitly set in fs, so the command line always wins. Flags in fs must be
// bound to fields of cfg.
func (cfg *Config) merge(fs *flag.FlagSet, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	set := make(map[string]string)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = f.Value.String() })

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading config %q", path)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return errors.Wrapf(err, "parsing config %q", path)
	}
	for name, value := range set {
		if err := fs.Set(name, value); err != nil {
			return errors.Wrapf(err, "re-applying flag -%s", name)
		}
	}
	return nil
}

// String returns the configuration as indented JSON.
func (cfg *Config) String() string {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(data)
}
