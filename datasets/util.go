package datasets

import (
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	// BMP headers for image.DecodeConfig.
	_ "golang.org/x/image/bmp"
)

// ImageExtensions are the file extensions treated as images when scanning a folder.
var ImageExtensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".gif"}

// IsImageFile reports whether name has one of ImageExtensions (case-insensitive).
func IsImageFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range ImageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Option configures the loaders.
type Option func(*options)

type options struct {
	progressBar bool
}

// WithProgressBar shows a progress bar on the terminal while images are decoded or written.
func WithProgressBar() Option {
	return func(o *options) { o.progressBar = true }
}

func makeOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// newBar returns a progress bar, or nil if disabled.
func (o options) newBar(total int, description string) *progressbar.ProgressBar {
	if !o.progressBar || total == 0 {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionSetTheme(progressbar.ThemeUnicode),
	)
}

func closeBar(bar *progressbar.ProgressBar) {
	if bar != nil {
		_ = bar.Close()
	}
}

func addBar(bar *progressbar.ProgressBar) {
	if bar != nil {
		_ = bar.Add(1)
	}
}

// resolveDir replaces a leading "~" and checks the directory exists.
func resolveDir(dir string) (string, error) {
	resolved, err := fsutil.ReplaceTildeInDir(dir)
	if err != nil {
		return "", wrapKind(ErrIO, err, "resolving %q", dir)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", wrapKind(ErrIO, err, "folder %q", resolved)
	}
	if !info.IsDir() {
		return "", newKindError(ErrIO, "%q is not a folder", resolved)
	}
	return resolved, nil
}

// listFiles returns the set of regular file names in dir.
func listFiles(dir string) (sets.Set[string], error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, wrapKind(ErrIO, err, "listing %q", dir)
	}
	files := sets.Make[string](len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		files.Insert(entry.Name())
	}
	return files, nil
}

// DecodeImage opens and decodes the image at path.
func DecodeImage(path string) (image.Image, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, wrapKind(ErrIO, err, "image %q", path)
	}
	img, err := imaging.Open(path)
	if err != nil {
		return nil, wrapKind(ErrFormat, err, "decoding image %q", path)
	}
	return img, nil
}

// EncodeImage writes img to path, the format is taken from the file extension.
func EncodeImage(img image.Image, path string) error {
	if _, err := imaging.FormatFromFilename(path); err != nil {
		return wrapKind(ErrFormat, err, "saving image %q", path)
	}
	if err := imaging.Save(img, path); err != nil {
		return wrapKind(ErrIO, err, "saving image %q", path)
	}
	klog.V(2).Infof("wrote %s", path)
	return nil
}

// ensureDir creates dir (and parents) if needed.
func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return wrapKind(ErrIO, err, "creating folder %q", dir)
	}
	return nil
}
