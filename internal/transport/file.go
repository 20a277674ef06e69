package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	ferrors "git.home.luguber.info/inful/relpub/internal/foundation/errors"
)

// FileRepository is a repository on the local filesystem, such as
// ~/.m2/repository or a build/repo directory.
type FileRepository struct {
	root string
}

// NewFileRepository returns a repository rooted at dir.
func NewFileRepository(dir string) *FileRepository {
	return &FileRepository{root: dir}
}

// FilePath returns the directory a file URL names. file://build/repo is read
// as the relative path build/repo; file:///srv/repo as an absolute path.
func FilePath(u *url.URL) string {
	if u.Host != "" && u.Host != "localhost" {
		return filepath.FromSlash(u.Host + u.Path)
	}
	return filepath.FromSlash(u.Path)
}

func (r *FileRepository) full(path string) string {
	return filepath.Join(r.root, filepath.FromSlash(path))
}

func (r *FileRepository) Location(path string) string {
	abs, err := filepath.Abs(r.full(path))
	if err != nil {
		abs = r.full(path)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}

func (r *FileRepository) Close() error { return nil }

func (r *FileRepository) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(r.full(path))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, ferrors.WrapError(err, ferrors.CategoryFileSystem, "stat repository file").Retryable().Build()
}

func (r *FileRepository) Get(_ context.Context, path string) ([]byte, bool, error) {
	data, err := os.ReadFile(r.full(path))
	if err == nil {
		return data, true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	return nil, false, ferrors.WrapError(err, ferrors.CategoryFileSystem, "read repository file").Retryable().Build()
}

// Put writes to a temporary file in the target directory and renames it into
// place so readers never observe a partial file.
func (r *FileRepository) Put(ctx context.Context, path string, body io.Reader, _ int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest := r.full(path)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return uploadFSError(dest, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return uploadFSError(dest, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, body); err != nil {
		_ = tmp.Close()
		return uploadFSError(dest, err)
	}
	if err := tmp.Close(); err != nil {
		return uploadFSError(dest, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil { //nolint:gosec // published artifacts are world-readable
		return uploadFSError(dest, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return uploadFSError(dest, err)
	}
	return nil
}

func uploadFSError(dest string, err error) error {
	return ferrors.WrapError(err, ferrors.CategoryUpload, fmt.Sprintf("write %s", dest)).
		Retryable().
		WithContext("path", dest).
		Build()
}
