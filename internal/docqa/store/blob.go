package store

import (
	"context"
	"strings"
)

// FolderMimeType Google Drive 文件夹的 MIME 类型。
const FolderMimeType = "application/vnd.google-apps.folder"

// BlobFile 存储中的一个文件。Path 为相对于列举起点的路径，以 "/" 分隔。
type BlobFile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Path     string `json:"path"`
	URL      string `json:"url,omitempty"`
}

// UploadResult 上传结果。
type UploadResult struct {
	FileID string `json:"file_id"`
	Name   string `json:"name"`
	URL    string `json:"url,omitempty"`
}

// BlobStore 文件存储。文件夹以不透明的 ID 引用。
type BlobStore interface {
	ListFiles(ctx context.Context, folderID string, recursive bool) ([]BlobFile, error)
	Download(ctx context.Context, fileID string) ([]byte, error)
	// UploadBytes 上传文件，目标文件夹中已有同名文件时覆盖其内容。
	UploadBytes(ctx context.Context, data []byte, name, folderID, mimeType string) (*UploadResult, error)
	// EnsureFolder 返回 parentID 下名为 name 的文件夹，不存在时创建。
	EnsureFolder(ctx context.Context, name, parentID string) (string, error)
	// FileExists 返回同名文件的 ID，不存在时返回空字符串。
	FileExists(ctx context.Context, name, folderID string) (string, error)
}

// EnsureFolderPath 逐级创建 "a/b/c" 形式的路径，返回最深一级的文件夹 ID。
func EnsureFolderPath(ctx context.Context, bs BlobStore, folderPath, parentID string) (string, error) {
	current := parentID
	for _, part := range strings.Split(folderPath, "/") {
		if part == "" || part == "." {
			continue
		}
		id, err := bs.EnsureFolder(ctx, part, current)
		if err != nil {
			return "", err
		}
		current = id
	}
	return current, nil
}
