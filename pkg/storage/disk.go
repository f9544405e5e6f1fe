package storage

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
)

// DiskStore writes attachments under a base directory and serves them from
// a public base URL. Stored names are random; the original file name only
// survives in its extension and in the message row.
type DiskStore struct {
	baseDir string
	baseURL string
}

func NewDiskStore(baseDir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, pkgerrors.Wrapf(err, "create storage dir %s", baseDir)
	}
	return &DiskStore{
		baseDir: baseDir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

func (s *DiskStore) Upload(ctx context.Context, data []byte, folder, fileName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := uuid.New().String() + sanitizeExt(fileName)
	dir := filepath.Join(s.baseDir, filepath.Clean("/"+folder))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", pkgerrors.Wrapf(err, "create attachment folder %s", dir)
	}

	dst := filepath.Join(dir, name)
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", pkgerrors.Wrapf(err, "write attachment %s", dst)
	}

	return s.baseURL + path.Join("/", folder, name), nil
}

func (s *DiskStore) Delete(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rel, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok {
		return pkgerrors.Errorf("url %q is not served by this store", url)
	}
	target := filepath.Join(s.baseDir, filepath.Clean("/"+rel))
	return os.Remove(target)
}

// sanitizeExt keeps only a plausible file extension from a client-supplied
// name.
func sanitizeExt(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" || len(ext) > 10 || strings.ContainsAny(ext, "/\\") {
		return ""
	}
	return ext
}
