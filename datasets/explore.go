package datasets

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"k8s.io/klog/v2"
)

// ImageAt returns the filename and image at position index of images.Keys().
func ImageAt(images Images, index int) (string, image.Image, error) {
	keys := images.Keys()
	if index < 0 || index >= len(keys) {
		return "", nil, newKindError(ErrRange, "image index %d, dataset has %d images", index, len(keys))
	}
	return keys[index], images[keys[index]], nil
}

// CaptionsAt returns the captions at position index of captions.Keys().
func CaptionsAt(captions Captions, index int) ([]string, error) {
	keys := captions.Keys()
	if index < 0 || index >= len(keys) {
		return nil, newKindError(ErrRange, "captions index %d, dataset has %d images", index, len(keys))
	}
	return captions[keys[index]], nil
}

// ImageStats summarizes the sizes of the images of a folder.
type ImageStats struct {
	Count                            int
	MinWidth, MaxWidth, MeanWidth    float64
	MinHeight, MaxHeight, MeanHeight float64

	// TotalBytes is the size on disk of the image files.
	TotalBytes int64

	// Sizes has the (width, height) of every image, in filename order.
	Sizes []image.Point
}

// String implements fmt.Stringer.
func (s *ImageStats) String() string {
	return fmt.Sprintf("%d images (%s): width min=%g max=%g mean=%.1f, height min=%g max=%g mean=%.1f",
		s.Count, humanize.Bytes(uint64(s.TotalBytes)),
		s.MinWidth, s.MaxWidth, s.MeanWidth,
		s.MinHeight, s.MaxHeight, s.MeanHeight)
}

// DescribeImages reads the header of every image file in dir and returns the
// size statistics. A folder without images is an ErrValidation.
func DescribeImages(dir string) (*ImageStats, error) {
	dir, err := resolveDir(dir)
	if err != nil {
		return nil, err
	}
	names, err := imageFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, newKindError(ErrValidation, "no images in %q", dir)
	}
	stats := &ImageStats{
		MinWidth:  math.Inf(1),
		MaxWidth:  math.Inf(-1),
		MinHeight: math.Inf(1),
		MaxHeight: math.Inf(-1),
		Sizes:     make([]image.Point, 0, len(names)),
	}
	var sumW, sumH float64
	for _, name := range names {
		path := filepath.Join(dir, name)
		size, n, err := decodeSize(path)
		if err != nil {
			return nil, err
		}
		w, h := float64(size.X), float64(size.Y)
		stats.MinWidth, stats.MaxWidth = math.Min(stats.MinWidth, w), math.Max(stats.MaxWidth, w)
		stats.MinHeight, stats.MaxHeight = math.Min(stats.MinHeight, h), math.Max(stats.MaxHeight, h)
		sumW += w
		sumH += h
		stats.TotalBytes += n
		stats.Sizes = append(stats.Sizes, size)
	}
	stats.Count = len(names)
	stats.MeanWidth = sumW / float64(stats.Count)
	stats.MeanHeight = sumH / float64(stats.Count)
	klog.V(1).Infof("%s: %s", dir, stats)
	return stats, nil
}

// imageFiles returns the sorted image file names of dir.
func imageFiles(dir string) ([]string, error) {
	files, err := listFiles(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(files))
	for name := range files {
		if IsImageFile(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// decodeSize returns the image dimensions, reading only the header, and the file size.
func decodeSize(path string) (image.Point, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Point{}, 0, wrapKind(ErrIO, err, "opening %q", path)
	}
	defer func() { _ = f.Close() }()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return image.Point{}, 0, wrapKind(ErrFormat, err, "decoding header of %q", path)
	}
	info, err := f.Stat()
	if err != nil {
		return image.Point{}, 0, wrapKind(ErrIO, err, "stat %q", path)
	}
	return image.Pt(cfg.Width, cfg.Height), info.Size(), nil
}

// PlotImageSizes saves a width x height scatter plot of stats to path. The
// format is taken from the extension (.png, .svg, .pdf, ...).
func PlotImageSizes(stats *ImageStats, path string) error {
	if stats == nil || len(stats.Sizes) == 0 {
		return newKindError(ErrValidation, "no image sizes to plot")
	}
	xys := make(plotter.XYs, 0, len(stats.Sizes))
	for _, size := range stats.Sizes {
		xys = append(xys, plotter.XY{X: float64(size.X), Y: float64(size.Y)})
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Image sizes (%d images)", stats.Count)
	p.X.Label.Text = "width"
	p.Y.Label.Text = "height"
	scatter, err := plotter.NewScatter(xys)
	if err != nil {
		return wrapKind(ErrValidation, err, "scatter of image sizes")
	}
	scatter.GlyphStyle.Color = color.RGBA{R: 20, G: 80, B: 200, A: 160}
	scatter.GlyphStyle.Radius = vg.Points(2)
	p.Add(scatter, plotter.NewGrid())

	// Padded ranges, so a dataset of a single size is still visible.
	pad := func(lo, hi float64) (float64, float64) {
		d := (hi - lo) * 0.05
		if d == 0 {
			d = math.Max(1, lo*0.05)
		}
		return lo - d, hi + d
	}
	p.X.Min, p.X.Max = pad(stats.MinWidth, stats.MaxWidth)
	p.Y.Min, p.Y.Max = pad(stats.MinHeight, stats.MaxHeight)

	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return wrapKind(ErrIO, err, "saving plot %q", path)
	}
	klog.V(1).Infof("saved image sizes plot to %s", path)
	return nil
}

// Sample is one image picked by SampleGrid.
type Sample struct {
	Filename      string
	Width, Height int
	Captions      []string
}

// GridTileSize is the side, in pixels, of each tile of SampleGrid.
var GridTileSize = 224

// SampleGrid picks n random images of imagesDir (with the given seed), tiles
// them in a square-ish grid saved as outPath and returns the chosen samples with
// their captions (nil if the image has none).
//
// A folder with fewer than n images is an ErrValidation.
func SampleGrid(imagesDir string, captions Captions, n int, seed int64, outPath string) ([]Sample, error) {
	if n <= 0 {
		return nil, newKindError(ErrValidation, "number of samples must be positive, got %d", n)
	}
	dir, err := resolveDir(imagesDir)
	if err != nil {
		return nil, err
	}
	names, err := imageFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(names) < n {
		return nil, newKindError(ErrValidation, "not enough images in %q for %d samples, found %d", dir, n, len(names))
	}
	rng := rand.New(rand.NewSource(seed))
	picked := rng.Perm(len(names))[:n]

	cols := int(math.Ceil(math.Sqrt(float64(n))))
	rows := (n + cols - 1) / cols
	tile := GridTileSize
	grid := imaging.New(cols*tile, rows*tile, color.White)
	samples := make([]Sample, 0, n)
	for i, idx := range picked {
		name := names[idx]
		img, err := DecodeImage(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		bounds := img.Bounds()
		samples = append(samples, Sample{
			Filename: name,
			Width:    bounds.Dx(),
			Height:   bounds.Dy(),
			Captions: captions[name],
		})
		thumb := imaging.PasteCenter(imaging.New(tile, tile, color.White), imaging.Fit(img, tile, tile, imaging.Linear))
		grid = imaging.Paste(grid, thumb, image.Pt((i%cols)*tile, (i/cols)*tile))
	}
	if err := ensureDir(filepath.Dir(outPath)); err != nil {
		return nil, err
	}
	if err := EncodeImage(grid, outPath); err != nil {
		return nil, err
	}
	klog.V(1).Infof("saved %d samples grid to %s", n, outPath)
	return samples, nil
}
