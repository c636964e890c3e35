package store

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/pkg/errors"
)

func newLocal(t *testing.T) (*LocalBlobStore, string) {
	t.Helper()
	root := t.TempDir()
	bs, err := NewLocalBlobStore(root)
	require.NoError(t, err)
	return bs, root
}

func writeFile(t *testing.T, p string, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(data), 0o644))
}

func TestLocalBlobStoreListFiles(t *testing.T) {
	ctx := context.Background()
	bs, root := newLocal(t)
	writeFile(t, filepath.Join(root, "cases", "a.pdf"), "a")
	writeFile(t, filepath.Join(root, "cases", "2024", "b.txt"), "b")

	files, err := bs.ListFiles(ctx, "cases", false)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "cases/a.pdf", files[0].ID)
	assert.Equal(t, "a.pdf", files[0].Path)
	assert.Equal(t, "application/pdf", files[0].MimeType)

	files, err = bs.ListFiles(ctx, "cases", true)
	require.NoError(t, err)
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	sort.Strings(paths)
	assert.Equal(t, []string{"2024/b.txt", "a.pdf"}, paths)

	_, err = bs.ListFiles(ctx, "missing", true)
	assert.True(t, errors.IsCode(err, errors.ErrBlobNotFound.Code))
}

func TestLocalBlobStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	bs, _ := newLocal(t)

	out, err := EnsureFolderPath(ctx, bs, "Optical Character Recognition/cases/2024", "")
	require.NoError(t, err)
	assert.Equal(t, "Optical Character Recognition/cases/2024", out)

	again, err := bs.EnsureFolder(ctx, "2024", "Optical Character Recognition/cases")
	require.NoError(t, err)
	assert.Equal(t, out, again, "重复创建返回同一文件夹")

	_, err = bs.EnsureFolder(ctx, "x", "no/such/parent")
	assert.True(t, errors.IsCode(err, errors.ErrBlobNotFound.Code))

	existing, err := bs.FileExists(ctx, "a.json", out)
	require.NoError(t, err)
	assert.Empty(t, existing)

	res, err := bs.UploadBytes(ctx, []byte("[]"), "a.json", out, "application/json")
	require.NoError(t, err)
	assert.Equal(t, out+"/a.json", res.FileID)

	existing, err = bs.FileExists(ctx, "a.json", out)
	require.NoError(t, err)
	assert.Equal(t, res.FileID, existing)

	_, err = bs.UploadBytes(ctx, []byte("[1]"), "a.json", out, "application/json")
	require.NoError(t, err)
	data, err := bs.Download(ctx, res.FileID)
	require.NoError(t, err)
	assert.Equal(t, "[1]", string(data), "同名文件被覆盖")

	_, err = bs.Download(ctx, "nope.pdf")
	assert.True(t, errors.IsCode(err, errors.ErrBlobNotFound.Code))
}

func TestLocalBlobStoreStaysInRoot(t *testing.T) {
	ctx := context.Background()
	bs, root := newLocal(t)
	writeFile(t, filepath.Join(filepath.Dir(root), "secret.txt"), "x")

	_, err := bs.Download(ctx, "../secret.txt")
	assert.Error(t, err)

	_, err = bs.UploadBytes(ctx, []byte("x"), "../evil", "", "")
	assert.Error(t, err)
}

func TestNewLocalBlobStoreRequiresRoot(t *testing.T) {
	_, err := NewLocalBlobStore("")
	assert.True(t, errors.IsCode(err, errors.ErrConfigMissing.Code))
}

func TestEscapeQuery(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"普通名称", "cases", "cases"},
		{"单引号", "O'Brien", `O\'Brien`},
		{"反斜杠先转义", `a\'b`, `a\\\'b`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, escapeQuery(tt.in))
		})
	}
}

func TestParseToken(t *testing.T) {
	tok, err := parseToken([]byte(`{"token":"abc","refresh_token":"r1","expiry":"2030-01-02T03:04:05Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "abc", tok.AccessToken)
	assert.Equal(t, "r1", tok.RefreshToken)
	assert.Equal(t, 2030, tok.Expiry.Year())

	tok, err = parseToken([]byte(`{"access_token":"x","token_type":"Bearer"}`))
	require.NoError(t, err)
	assert.Equal(t, "x", tok.AccessToken)

	_, err = parseToken([]byte(`{}`))
	assert.Error(t, err)
	_, err = parseToken([]byte(`not json`))
	assert.Error(t, err)
}

func TestFolderPrefix(t *testing.T) {
	assert.Equal(t, "", folderPrefix(""))
	assert.Equal(t, "a/b/", folderPrefix("/a/b/"))

	s := &S3BlobStore{bucket: "bkt", region: "us-east-1"}
	id, err := s.EnsureFolder(context.Background(), "cases", "Optical Character Recognition")
	require.NoError(t, err)
	assert.Equal(t, "Optical Character Recognition/cases", id)
	assert.Equal(t, "https://bkt.s3.us-east-1.amazonaws.com/k.json", s.url("k.json"))
}
