package handler

import (
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/pkg/httputils"
	"github.com/kart-io/docqa/internal/pkg/rag/docproc"
	"github.com/kart-io/docqa/internal/pkg/rag/docutil"
	"github.com/kart-io/docqa/pkg/errors"
)

// ProcessDocument 处理 POST /v1/ocr/process：对上传的单个文件执行抽取、语言识别与分块。
// 表单字段 file 必填，doc_id 与 source_url 可选。
func (h *Handler) ProcessDocument(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		httputils.WriteResponse(c, errors.ErrDocQAInvalidRequest.WithMessage("file is required"), nil)
		return
	}
	data, err := readFormFile(fh)
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}

	res, err := h.deps.Processor.Process(c.Request.Context(), data, fh.Filename, docproc.ProcessOptions{
		DocID:     strings.TrimSpace(c.PostForm("doc_id")),
		MimeType:  fh.Header.Get("Content-Type"),
		SourceURL: c.PostForm("source_url"),
	})
	if err == nil && res.ChunksEmitted == 0 {
		err = errors.ErrExtraction.WithMessage("No extractable text found")
	}
	httputils.WriteResponse(c, err, res)
}

// UploadedFile 单个上传结果。
type UploadedFile struct {
	Filename string              `json:"filename"`
	Status   string              `json:"status"`
	Data     *store.UploadResult `json:"data,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// UploadResponse 上传响应。
type UploadResponse struct {
	Success           bool           `json:"success"`
	Message           string         `json:"message"`
	TotalFiles        int            `json:"total_files"`
	SuccessfulUploads int            `json:"successful_uploads"`
	FailedUploads     int            `json:"failed_uploads"`
	Files             []UploadedFile `json:"files"`
	DatasetFolderID   string         `json:"dataset_folder_id,omitempty"`
}

// Upload 处理 POST /v1/upload：将一个或多个文件写入存储。
// 指定 dataset_name 时在 folder_id 下创建同名数据集文件夹。全部失败时返回错误。
func (h *Handler) Upload(c *gin.Context) {
	ctx := c.Request.Context()

	form, err := c.MultipartForm()
	if err != nil || len(form.File["files"]) == 0 {
		httputils.WriteResponse(c, errors.ErrDocQAInvalidRequest.WithMessage("at least one file is required"), nil)
		return
	}
	files := form.File["files"]

	folderID := c.PostForm("folder_id")
	if folderID == "" {
		folderID = h.deps.DefaultFolderID
	}
	if folderID == "" {
		httputils.WriteResponse(c, errors.ErrConfigMissing.WithMessage("folder_id must be provided or configured"), nil)
		return
	}

	resp := UploadResponse{TotalFiles: len(files)}
	if dataset := strings.TrimSpace(c.PostForm("dataset_name")); dataset != "" {
		folderID, err = h.deps.Blobs.EnsureFolder(ctx, dataset, folderID)
		if err != nil {
			httputils.WriteResponse(c, err, nil)
			return
		}
		resp.DatasetFolderID = folderID
	}

	for _, fh := range files {
		item := UploadedFile{Filename: fh.Filename}
		contentType := fh.Header.Get("Content-Type")
		var data []byte
		if !docutil.IsSupported(fh.Filename, contentType) {
			err = errors.ErrUnsupportedFormat.WithMessagef("unsupported file type: %s", fh.Filename)
		} else if data, err = readFormFile(fh); err == nil {
			item.Data, err = h.deps.Blobs.UploadBytes(ctx, data, fh.Filename, folderID, contentType)
		}
		if err != nil {
			logger.Errorw("upload failed", "file", fh.Filename, "error", err.Error())
			item.Status, item.Error = "failed", err.Error()
			resp.FailedUploads++
		} else {
			item.Status = "success"
			resp.SuccessfulUploads++
		}
		resp.Files = append(resp.Files, item)
	}

	resp.Success = resp.FailedUploads == 0
	resp.Message = fmt.Sprintf("Uploaded %d of %d file(s)", resp.SuccessfulUploads, resp.TotalFiles)
	if resp.SuccessfulUploads == 0 {
		httputils.WriteResponse(c, errors.ErrBlobAccess.WithMessage(resp.Message), nil)
		return
	}
	httputils.WriteResponse(c, nil, resp)
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Filename == "" {
		return nil, errors.ErrDocQAInvalidRequest.WithMessage("file name is required")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, errors.ErrDocQAInvalidRequest.WithCause(err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.ErrRequestTooLarge.WithCause(err)
	}
	return data, nil
}
