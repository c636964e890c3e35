package store

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/kart-io/docqa/internal/pkg/rag/docutil"
	"github.com/kart-io/docqa/pkg/errors"
)

// LocalBlobStore 本地目录文件存储。文件与文件夹 ID 为相对根目录的 "/" 分隔路径，
// 空字符串表示根目录。
type LocalBlobStore struct {
	root string
}

var _ BlobStore = (*LocalBlobStore)(nil)

// NewLocalBlobStore 创建存储，根目录不存在时自动创建。
func NewLocalBlobStore(root string) (*LocalBlobStore, error) {
	if root == "" {
		return nil, errors.ErrConfigMissing.WithMessage("local blob root directory not set")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := docutil.EnsureDir(abs); err != nil {
		return nil, errors.ErrBlobAccess.WithCause(err)
	}
	return &LocalBlobStore{root: abs}, nil
}

// resolve 将 ID 转换为根目录内的绝对路径，拒绝越出根目录的路径。
func (l *LocalBlobStore) resolve(id string) (string, error) {
	clean := path.Clean("/" + filepath.ToSlash(id))
	p := filepath.Join(l.root, filepath.FromSlash(clean))
	if p != l.root && !strings.HasPrefix(p, l.root+string(filepath.Separator)) {
		return "", errors.ErrBlobNotFound.WithMessagef("path %q escapes blob root", id)
	}
	return p, nil
}

func (l *LocalBlobStore) id(p string) string {
	rel, err := filepath.Rel(l.root, p)
	if err != nil || rel == "." {
		return ""
	}
	return filepath.ToSlash(rel)
}

// ListFiles 列举目录下的文件；recursive 时包含子目录。
func (l *LocalBlobStore) ListFiles(_ context.Context, folderID string, recursive bool) ([]BlobFile, error) {
	dir, err := l.resolve(folderID)
	if err != nil {
		return nil, err
	}
	if !docutil.DirExists(dir) {
		return nil, errors.ErrBlobNotFound.WithMessagef("folder %q not found", folderID)
	}

	var paths []string
	if recursive {
		err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				paths = append(paths, p)
			}
			return nil
		})
	} else {
		var entries []os.DirEntry
		entries, err = os.ReadDir(dir)
		for _, e := range entries {
			if !e.IsDir() {
				paths = append(paths, filepath.Join(dir, e.Name()))
			}
		}
	}
	if err != nil {
		return nil, errors.ErrBlobAccess.WithCause(err)
	}

	files := make([]BlobFile, 0, len(paths))
	for _, p := range paths {
		rel, _ := filepath.Rel(dir, p)
		files = append(files, BlobFile{
			ID:       l.id(p),
			Name:     filepath.Base(p),
			MimeType: mime.TypeByExtension(filepath.Ext(p)),
			Path:     filepath.ToSlash(rel),
			URL:      "file://" + filepath.ToSlash(p),
		})
	}
	return files, nil
}

func (l *LocalBlobStore) Download(_ context.Context, fileID string) ([]byte, error) {
	p, err := l.resolve(fileID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, errors.ErrBlobNotFound.WithMessagef("file %q not found", fileID)
	}
	if err != nil {
		return nil, errors.ErrBlobAccess.WithCause(err)
	}
	return data, nil
}

func (l *LocalBlobStore) UploadBytes(_ context.Context, data []byte, name, folderID, _ string) (*UploadResult, error) {
	dir, err := l.resolve(folderID)
	if err != nil {
		return nil, err
	}
	if strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("file name %q must not contain path separators", name)
	}
	if err := docutil.EnsureDir(dir); err != nil {
		return nil, errors.ErrBlobAccess.WithCause(err)
	}

	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return nil, errors.ErrBlobAccess.WithCause(err)
	}
	return &UploadResult{FileID: l.id(p), Name: name, URL: "file://" + filepath.ToSlash(p)}, nil
}

func (l *LocalBlobStore) EnsureFolder(_ context.Context, name, parentID string) (string, error) {
	parent, err := l.resolve(parentID)
	if err != nil {
		return "", err
	}
	if !docutil.DirExists(parent) {
		return "", errors.ErrBlobNotFound.WithMessagef("parent folder %q not found", parentID)
	}
	p, err := l.resolve(l.id(filepath.Join(parent, name)))
	if err != nil {
		return "", err
	}
	if err := docutil.EnsureDir(p); err != nil {
		return "", errors.ErrBlobAccess.WithCause(err)
	}
	return l.id(p), nil
}

func (l *LocalBlobStore) FileExists(_ context.Context, name, folderID string) (string, error) {
	dir, err := l.resolve(folderID)
	if err != nil {
		return "", err
	}
	p := filepath.Join(dir, name)
	if docutil.FileExists(p) {
		return l.id(p), nil
	}
	return "", nil
}
