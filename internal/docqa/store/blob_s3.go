package store

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/pkg/errors"
)

// S3Config S3 连接参数。AccessKey 为空时使用默认凭据链。
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// S3BlobStore 以对象键前缀作为文件夹的文件存储。
type S3BlobStore struct {
	client *s3.Client
	bucket string
	region string
}

var _ BlobStore = (*S3BlobStore)(nil)

// NewS3BlobStore 创建 S3 客户端。
func NewS3BlobStore(ctx context.Context, cfg S3Config) (*S3BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.ErrConfigMissing.WithMessage("s3 bucket name not set")
	}
	if cfg.Region == "" {
		return nil, errors.ErrConfigMissing.WithMessage("s3 region not set")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.ErrConfigMissing.WithCause(fmt.Errorf("load aws config: %w", err))
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infow("s3 blob store initialized", "bucket", cfg.Bucket, "region", cfg.Region)

	return &S3BlobStore{client: client, bucket: cfg.Bucket, region: cfg.Region}, nil
}

func folderPrefix(folderID string) string {
	p := strings.Trim(folderID, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

func (s *S3BlobStore) url(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

// ListFiles 列举前缀下的对象；非递归时只返回直接子对象。
func (s *S3BlobStore) ListFiles(ctx context.Context, folderID string, recursive bool) ([]BlobFile, error) {
	prefix := folderPrefix(folderID)
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}
	if !recursive {
		input.Delimiter = aws.String("/")
	}

	var files []BlobFile
	pager := s3.NewListObjectsV2Paginator(s.client, input)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, errors.ErrBlobNotFound.WithCause(fmt.Errorf("list %s: %w", prefix, err))
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			files = append(files, BlobFile{
				ID:   key,
				Name: path.Base(key),
				Path: strings.TrimPrefix(key, prefix),
				URL:  s.url(key),
			})
		}
	}
	return files, nil
}

// Download 通过分片下载器读取整个对象。
func (s *S3BlobStore) Download(ctx context.Context, fileID string) ([]byte, error) {
	buf := manager.NewWriteAtBuffer(nil)
	downloader := manager.NewDownloader(s.client)
	if _, err := downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fileID),
	}); err != nil {
		return nil, errors.ErrBlobAccess.WithCause(fmt.Errorf("s3 get %s: %w", fileID, err))
	}
	return buf.Bytes(), nil
}

// UploadBytes 写入 folderID/name，同名对象被覆盖。
func (s *S3BlobStore) UploadBytes(ctx context.Context, data []byte, name, folderID, mimeType string) (*UploadResult, error) {
	key := folderPrefix(folderID) + name
	uploader := manager.NewUploader(s.client)

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if mimeType != "" {
		input.ContentType = aws.String(mimeType)
	}

	if _, err := uploader.Upload(ctx, input); err != nil {
		return nil, errors.ErrBlobAccess.WithCause(fmt.Errorf("s3 upload %s: %w", key, err))
	}
	return &UploadResult{FileID: key, Name: name, URL: s.url(key)}, nil
}

// EnsureFolder 文件夹只是键前缀，无需创建对象。
func (s *S3BlobStore) EnsureFolder(_ context.Context, name, parentID string) (string, error) {
	return strings.Trim(path.Join(parentID, name), "/"), nil
}

// FileExists 使用 HeadObject 判断对象是否存在。
func (s *S3BlobStore) FileExists(ctx context.Context, name, folderID string) (string, error) {
	key := folderPrefix(folderID) + name
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return key, nil
	}

	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if stderrors.As(err, &notFound) || stderrors.As(err, &noSuchKey) {
		return "", nil
	}
	return "", errors.ErrBlobAccess.WithCause(fmt.Errorf("s3 head %s: %w", key, err))
}
