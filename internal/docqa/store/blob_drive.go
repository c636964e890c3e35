package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/logger"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/kart-io/docqa/pkg/errors"
	"github.com/kart-io/docqa/pkg/utils/json"
)

const driveFileFields = "id, name, mimeType, webViewLink"

// DriveCredentials Google Drive 凭据来源。
//
// CredentialsFile 可以是服务账号或 authorized_user JSON；
// 也可以只提供 TokenFile（含 refresh_token）配合 ClientID/ClientSecret。
type DriveCredentials struct {
	CredentialsFile string
	TokenFile       string
	ClientID        string
	ClientSecret    string
	// RPS 与 Burst 限制 API 调用速率，RPS 为 0 时不限速。
	RPS   float64
	Burst int
}

// DriveBlobStore 基于 Google Drive v3 的文件存储，支持共享盘。
//
// Drive 允许同名文件夹并存，同一 (parent, name) 的查找与创建经 singleflight 合并，
// 结果缓存在进程内，并发 worker 因此总是得到同一个文件夹。
type DriveBlobStore struct {
	svc     *drive.Service
	limiter *rate.Limiter

	folderCalls singleflight.Group
	folderMu    sync.RWMutex
	folderIDs   map[string]string
}

var _ BlobStore = (*DriveBlobStore)(nil)

// NewDriveBlobStore 创建 Drive 客户端。
func NewDriveBlobStore(ctx context.Context, creds DriveCredentials) (*DriveBlobStore, error) {
	ts, err := driveTokenSource(ctx, creds)
	if err != nil {
		return nil, errors.ErrConfigMissing.WithCause(err)
	}

	svc, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, errors.ErrBlobAccess.WithCause(fmt.Errorf("create drive service: %w", err))
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if creds.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(creds.RPS), max(creds.Burst, 1))
	}
	logger.Infow("google drive service initialized", "rps", creds.RPS)
	return &DriveBlobStore{svc: svc, limiter: limiter}, nil
}

// wait 在每次 API 调用前取得令牌，ctx 取消时返回其错误。
func (d *DriveBlobStore) wait(ctx context.Context) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return errors.ErrBlobAccess.WithCause(err)
	}
	return nil
}

func driveTokenSource(ctx context.Context, creds DriveCredentials) (oauth2.TokenSource, error) {
	if creds.CredentialsFile != "" {
		raw, err := os.ReadFile(creds.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read drive credentials: %w", err)
		}
		c, err := google.CredentialsFromJSON(ctx, raw, drive.DriveScope)
		if err != nil {
			return nil, fmt.Errorf("parse drive credentials: %w", err)
		}
		return c.TokenSource, nil
	}

	if creds.TokenFile == "" || creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("drive credentials file, or token file with client id and secret, is required")
	}

	raw, err := os.ReadFile(creds.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("read drive token: %w", err)
	}
	tok, err := parseToken(raw)
	if err != nil {
		return nil, err
	}

	cfg := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveScope},
	}
	return cfg.TokenSource(ctx, tok), nil
}

// parseToken 兼容 oauth2.Token 与 {"token": ..., "refresh_token": ..., "expiry": ...} 两种格式。
func parseToken(raw []byte) (*oauth2.Token, error) {
	var t struct {
		AccessToken  string    `json:"access_token"`
		Token        string    `json:"token"`
		RefreshToken string    `json:"refresh_token"`
		TokenType    string    `json:"token_type"`
		Expiry       time.Time `json:"expiry"`
	}
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("parse drive token: %w", err)
	}

	access := t.AccessToken
	if access == "" {
		access = t.Token
	}
	if access == "" && t.RefreshToken == "" {
		return nil, fmt.Errorf("drive token has neither access nor refresh token")
	}
	return &oauth2.Token{
		AccessToken:  access,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	}, nil
}

// escapeQuery 转义 Drive 查询字符串中的反斜杠与单引号。
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func (d *DriveBlobStore) list(ctx context.Context, q string, fn func(*drive.File)) error {
	call := d.svc.Files.List().
		Q(q).
		Fields(googleapi.Field("nextPageToken, files(" + driveFileFields + ")")).
		PageSize(1000).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true)

	if err := d.wait(ctx); err != nil {
		return err
	}
	return call.Pages(ctx, func(page *drive.FileList) error {
		for _, f := range page.Files {
			fn(f)
		}
		if page.NextPageToken == "" {
			return nil
		}
		return d.wait(ctx)
	})
}

// ListFiles 列举文件夹中的文件，recursive 时深度优先进入子文件夹。
func (d *DriveBlobStore) ListFiles(ctx context.Context, folderID string, recursive bool) ([]BlobFile, error) {
	var files []BlobFile
	if err := d.walk(ctx, folderID, "", recursive, &files); err != nil {
		return nil, err
	}
	logger.Infow("drive folder listed", "folder_id", folderID, "files", len(files))
	return files, nil
}

func (d *DriveBlobStore) walk(ctx context.Context, folderID, prefix string, recursive bool, out *[]BlobFile) error {
	var subfolders []*drive.File
	q := fmt.Sprintf("'%s' in parents and trashed=false", escapeQuery(folderID))
	err := d.list(ctx, q, func(f *drive.File) {
		if f.MimeType == FolderMimeType {
			subfolders = append(subfolders, f)
			return
		}
		*out = append(*out, BlobFile{
			ID:       f.Id,
			Name:     f.Name,
			MimeType: f.MimeType,
			Path:     path.Join(prefix, f.Name),
			URL:      f.WebViewLink,
		})
	})
	if err != nil {
		return errors.ErrBlobNotFound.WithCause(fmt.Errorf("list folder %s: %w", folderID, err))
	}

	if !recursive {
		return nil
	}
	for _, sub := range subfolders {
		if err := d.walk(ctx, sub.Id, path.Join(prefix, sub.Name), true, out); err != nil {
			return err
		}
	}
	return nil
}

// Download 下载文件内容。
func (d *DriveBlobStore) Download(ctx context.Context, fileID string) ([]byte, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := d.svc.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, errors.ErrBlobAccess.WithCause(fmt.Errorf("download %s: %w", fileID, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.ErrBlobAccess.WithCause(fmt.Errorf("read %s: %w", fileID, err))
	}
	return data, nil
}

// UploadBytes 上传或覆盖同名文件。
func (d *DriveBlobStore) UploadBytes(ctx context.Context, data []byte, name, folderID, mimeType string) (*UploadResult, error) {
	existing, err := d.FileExists(ctx, name, folderID)
	if err != nil {
		return nil, err
	}

	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	media := googleapi.ContentType(mimeType)
	var f *drive.File
	if existing != "" {
		f, err = d.svc.Files.Update(existing, &drive.File{}).
			Media(bytes.NewReader(data), media).
			SupportsAllDrives(true).
			Fields(driveFileFields).
			Context(ctx).
			Do()
	} else {
		f, err = d.svc.Files.Create(&drive.File{
			Name:     name,
			MimeType: mimeType,
			Parents:  []string{folderID},
		}).
			Media(bytes.NewReader(data), media).
			SupportsAllDrives(true).
			Fields(driveFileFields).
			Context(ctx).
			Do()
	}
	if err != nil {
		return nil, errors.ErrBlobAccess.WithCause(fmt.Errorf("upload %s: %w", name, err))
	}

	return &UploadResult{FileID: f.Id, Name: f.Name, URL: f.WebViewLink}, nil
}

// EnsureFolder 查找或创建文件夹；parentID 为空时使用 My Drive 根目录。
func (d *DriveBlobStore) EnsureFolder(ctx context.Context, name, parentID string) (string, error) {
	parent := parentID
	if parent == "" {
		parent = "root"
	}
	key := parent + "\x00" + name
	if id := d.cachedFolder(key); id != "" {
		return id, nil
	}

	v, err, _ := d.folderCalls.Do(key, func() (any, error) {
		if id := d.cachedFolder(key); id != "" {
			return id, nil
		}
		id, err := d.findOrCreateFolder(ctx, name, parent)
		if err != nil {
			return "", err
		}
		d.folderMu.Lock()
		if d.folderIDs == nil {
			d.folderIDs = make(map[string]string)
		}
		d.folderIDs[key] = id
		d.folderMu.Unlock()
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (d *DriveBlobStore) cachedFolder(key string) string {
	d.folderMu.RLock()
	defer d.folderMu.RUnlock()
	return d.folderIDs[key]
}

func (d *DriveBlobStore) findOrCreateFolder(ctx context.Context, name, parent string) (string, error) {
	q := fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false and '%s' in parents",
		escapeQuery(name), FolderMimeType, escapeQuery(parent))
	if id, err := d.first(ctx, q); err != nil || id != "" {
		return id, err
	}

	if err := d.wait(ctx); err != nil {
		return "", err
	}
	f, err := d.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: FolderMimeType,
		Parents:  []string{parent},
	}).SupportsAllDrives(true).Fields("id, name").Context(ctx).Do()
	if err != nil {
		return "", errors.ErrBlobAccess.WithCause(fmt.Errorf("create folder %s: %w", name, err))
	}
	logger.Infow("drive folder created", "name", name, "folder_id", f.Id)
	return f.Id, nil
}

// FileExists 查找文件夹中的同名文件。
func (d *DriveBlobStore) FileExists(ctx context.Context, name, folderID string) (string, error) {
	q := fmt.Sprintf("name='%s' and trashed=false and '%s' in parents and mimeType!='%s'",
		escapeQuery(name), escapeQuery(folderID), FolderMimeType)
	return d.first(ctx, q)
}

func (d *DriveBlobStore) first(ctx context.Context, q string) (string, error) {
	if err := d.wait(ctx); err != nil {
		return "", err
	}
	res, err := d.svc.Files.List().
		Q(q).
		Fields("files(id)").
		PageSize(1).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", errors.ErrBlobAccess.WithCause(err)
	}
	if len(res.Files) == 0 {
		return "", nil
	}
	return res.Files[0].Id, nil
}
