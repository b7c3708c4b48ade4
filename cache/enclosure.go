package cache

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CacheEnclosure downloads a filing's zip enclosure (SEC EDGAR ships one
// archive per submission) and extracts every member under the archive's
// directory mapping, so the instance document and its sibling schema and
// linkbases are addressable at their usual cache paths. It returns the
// directory the members were extracted into.
func (c *Cache) CacheEnclosure(ctx context.Context, enclosureURL string) (string, error) {
	if !strings.HasSuffix(enclosureURL, ".zip") {
		return "", eris.Errorf("cache: %s is not a zip enclosure", enclosureURL)
	}

	zipPath, err := c.Get(ctx, enclosureURL)
	if err != nil {
		return "", err
	}

	destDir := filepath.Dir(c.URLToPath(enclosureURL))
	n, err := extractZip(zipPath, destDir)
	if err != nil {
		return "", err
	}
	zap.L().Debug("cache: extracted enclosure",
		zap.String("url", enclosureURL),
		zap.Int("files", n),
	)
	return destDir, nil
}

func extractZip(zipPath, destDir string) (int, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return 0, eris.Wrapf(err, "cache: open archive %s", zipPath)
	}
	defer r.Close() //nolint:errcheck

	var n int
	for _, f := range r.File {
		if err := extractZipEntry(f, destDir); err != nil {
			return n, err
		}
		if !f.FileInfo().IsDir() {
			n++
		}
	}
	return n, nil
}

func extractZipEntry(f *zip.File, destDir string) error {
	// Sanitize against zip slip
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return eris.Errorf("cache: illegal archive path %q (zip slip attempt)", f.Name)
	}

	if f.FileInfo().IsDir() {
		return eris.Wrap(os.MkdirAll(destPath, 0o755), "cache: create directory")
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return eris.Wrap(err, "cache: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return eris.Wrap(err, "cache: open archive entry")
	}
	defer rc.Close() //nolint:errcheck

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".extract-*")
	if err != nil {
		return eris.Wrap(err, "cache: create temp file")
	}
	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()           //nolint:errcheck
		os.Remove(tmp.Name()) //nolint:errcheck
		return eris.Wrap(err, "cache: write archive entry")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return eris.Wrap(err, "cache: close temp file")
	}
	return eris.Wrap(os.Rename(tmp.Name(), destPath), "cache: rename archive entry")
}
