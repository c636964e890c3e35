package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// docqa 服务错误码: 21
// 错误码格式: AABBCCC
// - AA: 21 (docqa 服务)
// - BB: 类别代码
// - CCC: 序号

func init() {
	RegisterService(ServiceDocQA, "docqa")
}

var (
	// 请求参数错误 (类别 01)
	ErrDocQAInvalidRequest = Register(New(MakeCode(ServiceDocQA, CategoryRequest, 1), http.StatusBadRequest, codes.InvalidArgument, "Invalid request parameters", "请求参数无效"))
	ErrUnsupportedFormat   = Register(New(MakeCode(ServiceDocQA, CategoryRequest, 2), http.StatusUnsupportedMediaType, codes.InvalidArgument, "Unsupported document format", "不支持的文档格式"))
	ErrEmptyMessage        = Register(New(MakeCode(ServiceDocQA, CategoryRequest, 3), http.StatusUnprocessableEntity, codes.InvalidArgument, "Message is required", "消息不能为空"))

	// 资源错误 (类别 04)
	ErrJobNotFound  = Register(New(MakeCode(ServiceDocQA, CategoryResource, 1), http.StatusNotFound, codes.NotFound, "Ingestion job not found", "摄取任务不存在"))
	ErrDocNotFound  = Register(New(MakeCode(ServiceDocQA, CategoryResource, 2), http.StatusNotFound, codes.NotFound, "Ingestion document not found", "摄取文档不存在"))
	ErrBlobNotFound = Register(New(MakeCode(ServiceDocQA, CategoryResource, 3), http.StatusNotFound, codes.NotFound, "Folder or file not found or inaccessible", "文件夹或文件不存在或无法访问"))

	// 冲突错误 (类别 05)
	ErrLedgerConflict = Register(New(MakeCode(ServiceDocQA, CategoryConflict, 1), http.StatusConflict, codes.AlreadyExists, "Ledger contains duplicate natural keys", "台账存在重复的业务主键"))

	// 内部错误 (类别 07)
	ErrExtraction      = Register(New(MakeCode(ServiceDocQA, CategoryInternal, 1), http.StatusUnprocessableEntity, codes.Internal, "Document text extraction failed", "文档文本提取失败"))
	ErrIngestion       = Register(New(MakeCode(ServiceDocQA, CategoryInternal, 2), http.StatusInternalServerError, codes.Internal, "Ingestion pipeline failed", "摄取流水线执行失败"))
	ErrInvalidEmbed    = Register(New(MakeCode(ServiceDocQA, CategoryInternal, 3), http.StatusInternalServerError, codes.Internal, "Invalid embedding state", "向量化状态无效"))
	ErrChatUnavailable = Register(New(MakeCode(ServiceDocQA, CategoryInternal, 4), http.StatusServiceUnavailable, codes.Unavailable, "Chat workflow is not available", "对话流程不可用"))

	// 网络错误 (类别 10)
	ErrRetrieval  = Register(New(MakeCode(ServiceDocQA, CategoryNetwork, 1), http.StatusBadGateway, codes.Unavailable, "Context retrieval failed", "上下文检索失败"))
	ErrGeneration = Register(New(MakeCode(ServiceDocQA, CategoryNetwork, 2), http.StatusBadGateway, codes.Unavailable, "Answer generation failed", "答案生成失败"))
	ErrBlobAccess = Register(New(MakeCode(ServiceDocQA, CategoryNetwork, 3), http.StatusBadGateway, codes.Unavailable, "Blob storage access failed", "对象存储访问失败"))

	// 配置错误 (类别 12)
	ErrConfigMissing = Register(New(MakeCode(ServiceDocQA, CategoryConfig, 1), http.StatusInternalServerError, codes.FailedPrecondition, "Missing required configuration", "缺少必需的配置"))
)
