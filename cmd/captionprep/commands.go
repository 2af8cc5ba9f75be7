package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"strings"

	"github.com/Noofbiz/captionPrep/captioner"
	"github.com/Noofbiz/captionPrep/datasets"
	"github.com/Noofbiz/captionPrep/preprocess"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// sources are the datasets known by the download command.
var sources = map[string]datasets.Source{
	datasets.Flickr8k.Name: datasets.Flickr8k,
	datasets.GloVe.Name:    datasets.GloVe,
}

func downloadFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Data.Dataset, "dataset", cfg.Data.Dataset, "dataset to download: flickr8k or glove")
	fs.StringVar(&cfg.Data.CacheDir, "cache-dir", cfg.Data.CacheDir, "folder where archives are downloaded and extracted")
	fs.StringVar(&cfg.Data.DatasetDir, "dest", cfg.Data.DatasetDir, "folder the extracted dataset is copied to")
	fs.BoolVar(&cfg.Data.Overwrite, "overwrite", cfg.Data.Overwrite, "replace -dest if it already exists")
}

func runDownload(ctx context.Context, cfg *Config) error {
	src, ok := sources[strings.ToLower(cfg.Data.Dataset)]
	if !ok {
		return errors.Errorf("unknown dataset %q", cfg.Data.Dataset)
	}
	dst, err := datasets.Download(ctx, src, cfg.Data.CacheDir, cfg.Data.DatasetDir, cfg.Data.Overwrite)
	if err != nil {
		return err
	}
	klog.Infof("%s ready in %s", src.Name, dst)
	return nil
}

func statsFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Data.ImagesDir, "images", cfg.Data.ImagesDir, "folder with the images")
	fs.StringVar(&cfg.Explore.Plot, "plot", cfg.Explore.Plot, "if set, save a scatter plot of the image sizes to this path")
}

func runStats(_ context.Context, cfg *Config) error {
	stats, err := datasets.DescribeImages(cfg.Data.ImagesDir)
	if err != nil {
		return err
	}
	klog.Infof("%s: %s", cfg.Data.ImagesDir, stats)
	if cfg.Explore.Plot == "" {
		return nil
	}
	if err := datasets.PlotImageSizes(stats, cfg.Explore.Plot); err != nil {
		return err
	}
	klog.Infof("image sizes plot saved to %s", cfg.Explore.Plot)
	return nil
}

func exploreFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Data.ImagesDir, "images", cfg.Data.ImagesDir, "folder with the images")
	fs.StringVar(&cfg.Data.Captions, "captions", cfg.Data.Captions, "captions file (.csv, .txt or .json)")
	fs.IntVar(&cfg.Explore.Samples, "samples", cfg.Explore.Samples, "number of random images in the grid")
	fs.Int64Var(&cfg.Explore.Seed, "seed", cfg.Explore.Seed, "random seed used to pick the images")
	fs.StringVar(&cfg.Explore.Grid, "grid", cfg.Explore.Grid, "path of the saved grid image")
	fs.IntVar(&cfg.Explore.Index, "index", cfg.Explore.Index, "if >= 0, also load the dataset and show the image at this index")
}

func runExplore(_ context.Context, cfg *Config) error {
	captions, err := datasets.ReadCaptions(cfg.Data.Captions)
	if err != nil {
		return err
	}
	klog.Infof("%s: %d images with %d captions", cfg.Data.Captions, len(captions), captions.NumCaptions())

	samples, err := datasets.SampleGrid(cfg.Data.ImagesDir, captions, cfg.Explore.Samples, cfg.Explore.Seed, cfg.Explore.Grid)
	if err != nil {
		return err
	}
	for _, s := range samples {
		first := ""
		if len(s.Captions) > 0 {
			first = s.Captions[0]
		}
		klog.Infof("  %s (%dx%d): %q", s.Filename, s.Width, s.Height, first)
	}
	klog.Infof("grid of %d images saved to %s", len(samples), cfg.Explore.Grid)

	if cfg.Explore.Index < 0 {
		return nil
	}
	images, captions, err := datasets.LoadData(cfg.Data.ImagesDir, cfg.Data.Captions, datasets.WithProgressBar())
	if err != nil {
		return err
	}
	key, img, err := datasets.ImageAt(images, cfg.Explore.Index)
	if err != nil {
		return err
	}
	imgCaptions, err := datasets.CaptionsAt(captions, cfg.Explore.Index)
	if err != nil {
		return err
	}
	klog.Infof("image #%d %s: %dx%d", cfg.Explore.Index, key, img.Bounds().Dx(), img.Bounds().Dy())
	for _, c := range imgCaptions {
		klog.Infof("  %s", c)
	}
	return nil
}

func padFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Data.ImagesDir, "images", cfg.Data.ImagesDir, "folder with the images")
	fs.StringVar(&cfg.Pad.OutputDir, "out", cfg.Pad.OutputDir, "folder for the padded images")
	fs.IntVar(&cfg.Pad.Width, "width", cfg.Pad.Width, "target width, 0 for the largest width in -images")
	fs.IntVar(&cfg.Pad.Height, "height", cfg.Pad.Height, "target height, 0 for the largest height in -images")
	fs.StringVar(&cfg.Pad.Fill, "fill", cfg.Pad.Fill, "padding color: black, white or transparent")
}

func runPad(_ context.Context, cfg *Config) error {
	fill, err := parseFill(cfg.Pad.Fill)
	if err != nil {
		return err
	}
	size := preprocess.Size{Width: cfg.Pad.Width, Height: cfg.Pad.Height}
	if size.Width == 0 || size.Height == 0 {
		stats, err := datasets.DescribeImages(cfg.Data.ImagesDir)
		if err != nil {
			return err
		}
		if size.Width == 0 {
			size.Width = int(stats.MaxWidth)
		}
		if size.Height == 0 {
			size.Height = int(stats.MaxHeight)
		}
	}
	n, err := preprocess.PadImages(cfg.Data.ImagesDir, cfg.Pad.OutputDir, size, fill, datasets.WithProgressBar())
	if err != nil {
		return err
	}
	klog.Infof("padded %d images to %dx%d in %s", n, size.Width, size.Height, cfg.Pad.OutputDir)
	return nil
}

func splitFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Data.ImagesDir, "images", cfg.Data.ImagesDir, "folder with the images")
	fs.StringVar(&cfg.Data.Captions, "captions", cfg.Data.Captions, "captions file (.csv, .txt or .json)")
	fs.Float64Var(&cfg.Split.Train, "train", cfg.Split.Train, "fraction of the images in the train partition")
	fs.Float64Var(&cfg.Split.Val, "val", cfg.Split.Val, "fraction of the images in the val partition")
	fs.Float64Var(&cfg.Split.Test, "test", cfg.Split.Test, "fraction of the images in the test partition")
	fs.Int64Var(&cfg.Split.Seed, "seed", cfg.Split.Seed, "shuffling seed, used as given (0 is a valid seed)")
	fs.StringVar(&cfg.Split.OutputDir, "out", cfg.Split.OutputDir, "folder where the partitions are saved")
	fs.BoolVar(&cfg.Split.Verify, "verify", cfg.Split.Verify, "reload the saved split and check the partition sizes")
}

func runSplit(_ context.Context, cfg *Config) error {
	images, captions, err := datasets.LoadData(cfg.Data.ImagesDir, cfg.Data.Captions, datasets.WithProgressBar())
	if err != nil {
		return err
	}
	split, err := datasets.SplitData(images, captions, datasets.SplitConfig{
		Train:   cfg.Split.Train,
		Val:     cfg.Split.Val,
		Test:    cfg.Split.Test,
		Seed:    cfg.Split.Seed,
		SaveDir: cfg.Split.OutputDir,
	})
	if err != nil {
		return err
	}
	partitions := split.Partitions()
	for _, name := range []string{datasets.TrainPartition, datasets.ValPartition, datasets.TestPartition} {
		p := partitions[name]
		klog.Infof("%-5s %s images, %s captions", name, humanize.Comma(int64(p.Len())), humanize.Comma(int64(p.Captions.NumCaptions())))
	}
	klog.Infof("split saved to %s", cfg.Split.OutputDir)

	if !cfg.Split.Verify {
		return nil
	}
	reloaded, err := datasets.LoadSplitDataset(cfg.Split.OutputDir, datasets.WithProgressBar())
	if err != nil {
		return err
	}
	for name, p := range reloaded.Partitions() {
		if want := partitions[name].Len(); p.Len() != want {
			return datasets.Errorf(datasets.ErrValidation, "partition %s reloaded with %d images, saved %d", name, p.Len(), want)
		}
	}
	klog.Infof("split in %s verified", cfg.Split.OutputDir)
	return nil
}

func vocabFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Split.OutputDir, "split", cfg.Split.OutputDir, "folder with a saved split")
	fs.StringVar(&cfg.Vocab.Output, "out", cfg.Vocab.Output, "if set, save the indexed tokens as a JSON array to this path")
}

// trainIndex builds the token index from the train captions of the split in root.
func trainIndex(root string) (*preprocess.Vocabulary, *preprocess.Index, error) {
	captions, err := datasets.ReadPartitionCaptions(filepath.Join(root, datasets.TrainPartition))
	if err != nil {
		return nil, nil, err
	}
	vocab, err := preprocess.ExtractVocabulary(captions)
	if err != nil {
		return nil, nil, err
	}
	return vocab, vocab.Index(), nil
}

func runVocab(_ context.Context, cfg *Config) error {
	vocab, idx, err := trainIndex(cfg.Split.OutputDir)
	if err != nil {
		return err
	}
	klog.Infof("vocabulary: %s distinct tokens, index size %s",
		humanize.Comma(int64(vocab.Len())), humanize.Comma(int64(idx.Size())))
	if cfg.Vocab.Output == "" {
		return nil
	}
	tokens := make([]string, idx.Size())
	for i := range tokens {
		tokens[i] = idx.Token(int32(i))
	}
	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Vocab.Output), 0755); err != nil {
		return errors.Wrapf(err, "creating folder for %q", cfg.Vocab.Output)
	}
	if err := os.WriteFile(cfg.Vocab.Output, data, 0644); err != nil {
		return errors.Wrapf(err, "writing %q", cfg.Vocab.Output)
	}
	klog.Infof("tokens saved to %s", cfg.Vocab.Output)
	return nil
}

func forwardFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Split.OutputDir, "split", cfg.Split.OutputDir, "folder with a saved split")
	fs.StringVar(&cfg.Model.Partition, "partition", cfg.Model.Partition, "partition the batch is read from: train, val or test")
	fs.IntVar(&cfg.Model.Height, "height", cfg.Model.Height, "model input height, divisible by 8")
	fs.IntVar(&cfg.Model.Width, "width", cfg.Model.Width, "model input width, divisible by 8")
	fs.IntVar(&cfg.Model.EmbeddingDim, "embedding-dim", cfg.Model.EmbeddingDim, "token embedding size")
	fs.IntVar(&cfg.Model.HiddenSize, "hidden-size", cfg.Model.HiddenSize, "LSTM hidden size")
	fs.IntVar(&cfg.Model.MaxLen, "max-len", cfg.Model.MaxLen, "length of the caption prefixes")
	fs.IntVar(&cfg.Model.BatchSize, "batch-size", cfg.Model.BatchSize, "number of examples in the batch")
	fs.Int64Var(&cfg.Model.Seed, "seed", cfg.Model.Seed, "seed used to shuffle the examples")
}

func runForward(_ context.Context, cfg *Config) error {
	switch cfg.Model.Partition {
	case datasets.TrainPartition, datasets.ValPartition, datasets.TestPartition:
	default:
		return datasets.Errorf(datasets.ErrValidation, "unknown partition %q", cfg.Model.Partition)
	}
	_, idx, err := trainIndex(cfg.Split.OutputDir)
	if err != nil {
		return err
	}

	dir := filepath.Join(cfg.Split.OutputDir, cfg.Model.Partition)
	captions, err := datasets.ReadPartitionCaptions(dir)
	if err != nil {
		return err
	}
	source, err := datasets.NewDirSource(dir)
	if err != nil {
		return err
	}
	ds, err := datasets.NewPairDataset(cfg.Model.Partition, source, captions, idx, cfg.Model.MaxLen)
	if err != nil {
		return err
	}
	ds.BatchSize = cfg.Model.BatchSize
	ds.Transform = preprocess.Resizer(preprocess.Size{Width: cfg.Model.Width, Height: cfg.Model.Height})
	ds.Shuffle(cfg.Model.Seed)
	klog.Infof("%s: %s examples from %d images", ds.Name(), humanize.Comma(int64(ds.Len())), len(captions))

	_, inputs, labels, err := ds.Yield()
	if err != nil {
		return errors.WithMessagef(err, "reading the first batch of %s", ds.Name())
	}

	model, err := captioner.New(captioner.Config{
		TargetHeight:   cfg.Model.Height,
		TargetWidth:    cfg.Model.Width,
		VocabularySize: idx.Size(),
		EmbeddingDim:   cfg.Model.EmbeddingDim,
		HiddenSize:     cfg.Model.HiddenSize,
	}, nil)
	if err != nil {
		return err
	}
	logits, err := model.Forward(inputs[0], inputs[1])
	if err != nil {
		return err
	}
	klog.Infof("%s: %s parameters, logits %s", model, humanize.Comma(int64(model.NumParameters())), logits.Shape())

	predicted, err := captioner.Predict(logits)
	if err != nil {
		return err
	}
	prefixes := tensors.CopyFlatData[int32](inputs[1])
	next := tensors.CopyFlatData[int32](labels[0])
	maxLen := inputs[1].Shape().Dimensions[1]
	for i, p := range predicted {
		prefix := idx.Decode(prefixes[i*maxLen : (i+1)*maxLen])
		klog.Infof("  %q -> predicted %q, expected %q", prefix, idx.Token(p), idx.Token(next[i]))
	}
	return nil
}

func runBackend(_ context.Context, _ *Config) error {
	backend, err := captioner.NewBackend()
	if err != nil {
		return err
	}
	defer backend.Finalize()
	klog.Infof("backend: %s", backend.Name())
	return nil
}
