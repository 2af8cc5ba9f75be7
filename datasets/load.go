package datasets

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"k8s.io/klog/v2"
)

// Column names of the tabular captions file.
const (
	ImageColumn   = "image"
	CaptionColumn = "caption"
)

// ReadCaptions parses a captions file.
//
// Supported formats:
//   - ".csv" or ".txt": a header row with (at least) the columns "image" and
//     "caption", one row per caption. Rows sharing the same image contribute
//     one caption each, in file order.
//   - ".json": an object mapping an image filename to an array of captions.
//
// Anything else is an ErrFormat.
func ReadCaptions(path string) (Captions, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return readTabularCaptions(path)
	case ".json":
		return readJSONCaptions(path)
	default:
		return nil, newKindError(ErrFormat, "unsupported captions file %q, use .csv, .txt or .json", path)
	}
}

func readTabularCaptions(path string) (Captions, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, wrapKind(ErrIO, err, "opening captions %q", path)
	}
	defer file.Close()

	// The header row is read as data, so a file with only a header still
	// loads as a one row frame.
	df := dataframe.ReadCSV(file,
		dataframe.HasHeader(false),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(nil),
		dataframe.WithLazyQuotes(true))
	if df.Err != nil {
		return nil, wrapKind(ErrFormat, df.Err, "parsing captions %q", path)
	}
	records := df.Records()[1:]
	header := records[0]

	colIndex := make(map[string]int, len(header))
	for i, name := range header {
		colIndex[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, col := range []string{ImageColumn, CaptionColumn} {
		if _, ok := colIndex[col]; !ok {
			return nil, newKindError(ErrFormat, "required column %q not found in %q (columns: %v)", col, path, header)
		}
	}

	imageCol, captionCol := colIndex[ImageColumn], colIndex[CaptionColumn]
	captions := make(Captions)
	for _, row := range records[1:] {
		filename := strings.TrimSpace(row[imageCol])
		captions[filename] = append(captions[filename], row[captionCol])
	}
	return captions, nil
}

func readJSONCaptions(path string) (Captions, error) {
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

// LoadData loads all images of imagesDir that have at least one caption in
// captionsPath.
//
// Captions whose image is not in the folder are dropped, and images never
// referenced by a caption are not loaded, so both returned maps have the same
// keys. Every image is decoded eagerly: memory use is proportional to the whole
// dataset. See PairDataset with a DirSource for a lazy alternative.
func LoadData(imagesDir, captionsPath string, opts ...Option) (Images, Captions, error) {
	o := makeOptions(opts)
	dir, err := resolveDir(imagesDir)
	if err != nil {
		return nil, nil, err
	}
	captions, err := ReadCaptions(captionsPath)
	if err != nil {
		return nil, nil, err
	}
	files, err := listFiles(dir)
	if err != nil {
		return nil, nil, err
	}

	// Build a new mapping instead of deleting from the parsed one.
	kept := make(Captions, len(captions))
	var missing int
	for filename, caps := range captions {
		if !files.Has(filename) {
			missing++
			klog.V(1).Infof("dropping captions of %q: image not found in %s", filename, dir)
			continue
		}
		kept[filename] = caps
	}
	if missing > 0 {
		klog.Warningf("%d images referenced in %s are missing from %s", missing, captionsPath, dir)
	}

	images := make(Images, len(kept))
	bar := o.newBar(len(kept), "Loading images")
	defer closeBar(bar)
	for _, filename := range kept.Keys() {
		img, err := DecodeImage(filepath.Join(dir, filename))
		if err != nil {
			return nil, nil, err
		}
		images[filename] = img
		addBar(bar)
	}
	klog.V(1).Infof("loaded %d images and %d captions from %s", len(images), kept.NumCaptions(), dir)
	return images, kept, nil
}
