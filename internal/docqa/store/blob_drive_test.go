package store

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/kart-io/docqa/pkg/errors"
)

// newFakeDrive 模拟 files.list：根目录下一个 PDF 与一个子文件夹，子文件夹下一个 DOCX。
func newFakeDrive(t *testing.T, limiter *rate.Limiter) *DriveBlobStore {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		q := r.URL.Query().Get("q")
		switch {
		case strings.Contains(q, "name="):
			_, _ = w.Write([]byte(`{"files":[]}`))
		case strings.Contains(q, "'root' in parents"):
			_, _ = w.Write([]byte(`{"files":[
				{"id":"f1","name":"a.pdf","mimeType":"application/pdf","webViewLink":"https://drive/f1"},
				{"id":"d1","name":"2024","mimeType":"application/vnd.google-apps.folder"}]}`))
		case strings.Contains(q, "'d1' in parents"):
			_, _ = w.Write([]byte(`{"files":[{"id":"f2","name":"b.docx","mimeType":"application/msword"}]}`))
		default:
			_, _ = w.Write([]byte(`{"files":[]}`))
		}
	}))
	t.Cleanup(srv.Close)

	svc, err := drive.NewService(context.Background(),
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"),
	)
	require.NoError(t, err)
	return &DriveBlobStore{svc: svc, limiter: limiter}
}

func TestDriveBlobStoreListFiles(t *testing.T) {
	d := newFakeDrive(t, rate.NewLimiter(rate.Inf, 0))

	files, err := d.ListFiles(context.Background(), "root", true)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.pdf", files[0].Path)
	assert.Equal(t, "https://drive/f1", files[0].URL)
	assert.Equal(t, "2024/b.docx", files[1].Path)

	flat, err := d.ListFiles(context.Background(), "root", false)
	require.NoError(t, err)
	assert.Len(t, flat, 1)

	id, err := d.FileExists(context.Background(), "missing.json", "root")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestDriveBlobStoreRateLimited(t *testing.T) {
	// 令牌桶只有一个令牌，第二次调用在截止时间内拿不到令牌
	d := newFakeDrive(t, rate.NewLimiter(rate.Every(time.Hour), 1))

	_, err := d.FileExists(context.Background(), "a.json", "root")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = d.FileExists(ctx, "a.json", "root")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBlobAccess)
}

func TestDriveBlobStoreEnsureFolderConcurrent(t *testing.T) {
	var creates, lookups atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			n := creates.Add(1)
			_, _ = fmt.Fprintf(w, `{"id":"folder-%d","name":"sub"}`, n)
			return
		}
		lookups.Add(1)
		// 放大查找与创建之间的窗口
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte(`{"files":[]}`))
	}))
	t.Cleanup(srv.Close)

	svc, err := drive.NewService(context.Background(),
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"),
	)
	require.NoError(t, err)
	d := &DriveBlobStore{svc: svc, limiter: rate.NewLimiter(rate.Inf, 0)}

	const workers = 8
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := d.EnsureFolder(context.Background(), "sub", "out")
			assert.NoError(t, err)
			ids[i] = id
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), creates.Load(), "同名文件夹只创建一次")
	for _, id := range ids {
		assert.Equal(t, "folder-1", id)
	}

	id, err := d.EnsureFolder(context.Background(), "sub", "out")
	require.NoError(t, err)
	assert.Equal(t, "folder-1", id)
	assert.Equal(t, int32(1), lookups.Load(), "已解析的文件夹走缓存")

	other, err := d.EnsureFolder(context.Background(), "sub", "elsewhere")
	require.NoError(t, err)
	assert.Equal(t, "folder-2", other, "不同父目录各自创建")
}
