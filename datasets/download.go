package datasets

import (
	"archive/zip"
	"context"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// Source is a hosted zip archive with a dataset.
type Source struct {
	// Name is used for the cached archive (Name.zip) and its extracted folder.
	Name string
	URL  string
}

// Hosted sources used by the captioning pipeline.
var (
	Flickr8k = Source{
		Name: "flickr8k",
		URL:  "https://www.kaggle.com/api/v1/datasets/download/adityajn105/flickr8k",
	}
	GloVe = Source{
		Name: "glove",
		URL:  "https://www.kaggle.com/api/v1/datasets/download/rtatman/glove-global-vectors-for-word-representation",
	}
)

// HTTPClient used by Fetch. Tests may replace it.
var HTTPClient = http.DefaultClient

// ShowDownloadProgress enables the progress bar in Fetch.
var ShowDownloadProgress = true

// Fetch makes sure src is downloaded and extracted under cacheDir and returns the
// extracted folder, cacheDir/<src.Name>.
//
// The archive is only downloaded if cacheDir/<src.Name>.zip is missing, and only
// extracted if the folder is missing, so calling it again is cheap.
func Fetch(ctx context.Context, src Source, cacheDir string) (string, error) {
	if src.Name == "" || src.URL == "" {
		return "", newKindError(ErrValidation, "source needs a name and a URL, got %+v", src)
	}
	cacheDir, err := fsutil.ReplaceTildeInDir(cacheDir)
	if err != nil {
		return "", wrapKind(ErrIO, err, "resolving %q", cacheDir)
	}
	if err := ensureDir(cacheDir); err != nil {
		return "", err
	}
	zipPath := filepath.Join(cacheDir, src.Name+".zip")
	targetDir := filepath.Join(cacheDir, src.Name)
	if fsutil.MustFileExists(targetDir) {
		klog.V(1).Infof("%s already extracted in %s", src.Name, targetDir)
		return targetDir, nil
	}
	if !fsutil.MustFileExists(zipPath) {
		klog.Infof("downloading %s from %s", src.Name, src.URL)
		size, err := download(ctx, src.URL, zipPath)
		if err != nil {
			return "", err
		}
		klog.Infof("downloaded %s (%s)", zipPath, humanize.Bytes(uint64(size)))
	}
	if err := unzip(zipPath, targetDir); err != nil {
		// Leave no half extracted folder behind, so the next call retries.
		_ = os.RemoveAll(targetDir)
		return "", err
	}
	return targetDir, nil
}

// download url to filePath. The file is written to a temporary name first, so
// an interrupted download is never taken as a cached archive.
func download(ctx context.Context, url, filePath string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, wrapKind(ErrValidation, err, "request for %q", url)
	}
	resp, err := HTTPClient.Do(req)
	if err != nil {
		return 0, wrapKind(ErrIO, err, "downloading %q", url)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return 0, newKindError(ErrIO, "downloading %q: status %s", url, resp.Status)
	}

	tmpPath := filePath + ".part"
	file, err := os.Create(tmpPath)
	if err != nil {
		return 0, wrapKind(ErrIO, err, "creating %q", tmpPath)
	}
	var w io.Writer = file
	var bar *progressbar.ProgressBar
	if ShowDownloadProgress {
		bar = progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetDescription(filepath.Base(filePath)),
			progressbar.OptionShowBytes(true),
			progressbar.OptionUseANSICodes(true),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetTheme(progressbar.ThemeUnicode),
		)
		w = io.MultiWriter(file, bar)
	}
	size, err := io.Copy(w, resp.Body)
	closeBar(bar)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return 0, wrapKind(ErrIO, err, "downloading %q to %q", url, filePath)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		return 0, wrapKind(ErrIO, err, "renaming %q", tmpPath)
	}
	return size, nil
}

// unzip extracts zipPath into dir. Entries escaping dir are rejected.
func unzip(zipPath, dir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return wrapKind(ErrFormat, err, "opening archive %q", zipPath)
	}
	defer func() { _ = r.Close() }()
	if err := ensureDir(dir); err != nil {
		return err
	}
	clean := filepath.Clean(dir)
	root := clean + string(os.PathSeparator)
	for _, f := range r.File {
		target := filepath.Join(dir, f.Name)
		if target != clean && !strings.HasPrefix(target, root) {
			return newKindError(ErrFormat, "archive %q: entry %q escapes the target folder", zipPath, f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := ensureDir(target); err != nil {
				return err
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	klog.V(1).Infof("extracted %d entries of %s into %s", len(r.File), zipPath, dir)
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := ensureDir(filepath.Dir(target)); err != nil {
		return err
	}
	in, err := f.Open()
	if err != nil {
		return wrapKind(ErrFormat, err, "reading archive entry %q", f.Name)
	}
	defer func() { _ = in.Close() }()
	out, err := os.Create(target)
	if err != nil {
		return wrapKind(ErrIO, err, "creating %q", target)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return wrapKind(ErrIO, err, "extracting %q", f.Name)
	}
	if err := out.Close(); err != nil {
		return wrapKind(ErrIO, err, "closing %q", target)
	}
	return nil
}

// CopyDataset copies the folder tree srcDir to dstDir.
//
// The folders must not overlap, or ErrValidation is returned before touching
// anything. If dstDir exists and overwrite is false it returns
// ErrDestinationExists. With overwrite, dstDir is removed before copying: if
// the copy then fails the old contents are gone.
func CopyDataset(srcDir, dstDir string, overwrite bool) error {
	src, err := resolveDir(srcDir)
	if err != nil {
		return err
	}
	dst, err := fsutil.ReplaceTildeInDir(dstDir)
	if err != nil {
		return wrapKind(ErrIO, err, "resolving %q", dstDir)
	}
	if err := checkDisjoint(src, dst); err != nil {
		return err
	}
	exists, err := fsutil.FileExists(dst)
	if err != nil {
		return wrapKind(ErrIO, err, "checking %q", dst)
	}
	if exists {
		if !overwrite {
			return wrapKind(ErrDestinationExists, nil, "copying %q to %q", src, dst)
		}
		klog.Warningf("removing existing %s", dst)
		if err := os.RemoveAll(dst); err != nil {
			return wrapKind(ErrIO, err, "removing %q", dst)
		}
	}

	var numFiles int
	var numBytes int64
	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return wrapKind(ErrIO, err, "walking %q", path)
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return wrapKind(ErrIO, err, "relative path of %q", path)
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return ensureDir(target)
		}
		n, err := copyFile(path, target)
		if err != nil {
			return err
		}
		numFiles++
		numBytes += n
		return nil
	})
	if err != nil {
		return err
	}
	klog.Infof("copied %d files (%s) from %s to %s", numFiles, humanize.Bytes(uint64(numBytes)), src, dst)
	return nil
}

// checkDisjoint fails if one of the folders is, or is inside, the other.
func checkDisjoint(src, dst string) error {
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return wrapKind(ErrIO, err, "resolving %q", src)
	}
	absDst, err := filepath.Abs(dst)
	if err != nil {
		return wrapKind(ErrIO, err, "resolving %q", dst)
	}
	if isWithin(absDst, absSrc) || isWithin(absSrc, absDst) {
		return newKindError(ErrValidation, "cannot copy %q to %q: the folders overlap", src, dst)
	}
	return nil
}

// isWithin reports whether path is dir or below it. Both must be absolute.
func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)))
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, wrapKind(ErrIO, err, "opening %q", src)
	}
	defer func() { _ = in.Close() }()
	out, err := os.Create(dst)
	if err != nil {
		return 0, wrapKind(ErrIO, err, "creating %q", dst)
	}
	n, err := io.Copy(out, in)
	if err != nil {
		_ = out.Close()
		return 0, wrapKind(ErrIO, err, "copying %q", src)
	}
	if err := out.Close(); err != nil {
		return 0, wrapKind(ErrIO, err, "closing %q", dst)
	}
	return n, nil
}

// Download fetches src into cacheDir and copies the extracted folder to dstDir.
func Download(ctx context.Context, src Source, cacheDir, dstDir string, overwrite bool) (string, error) {
	extracted, err := Fetch(ctx, src, cacheDir)
	if err != nil {
		return "", err
	}
	if err := CopyDataset(extracted, dstDir, overwrite); err != nil {
		return "", err
	}
	return dstDir, nil
}
