package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/internal/pkg/httputils"
	"github.com/kart-io/docqa/pkg/errors"
	"github.com/kart-io/docqa/pkg/llm"
)

// ChatRequest 对话请求体。
type ChatRequest struct {
	Message     string        `json:"message"`
	DatasetName string        `json:"dataset_name" binding:"omitempty,max=255"`
	History     []llm.Message `json:"history"`
}

// Chat 处理 POST /v1/chat。
func (h *Handler) Chat(c *gin.Context) {
	if h.deps.Chat == nil {
		httputils.WriteResponse(c, errors.ErrChatUnavailable, nil)
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputils.WriteResponse(c, httputils.BindError(err), nil)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		httputils.WriteResponse(c, errors.ErrEmptyMessage, nil)
		return
	}

	res := h.deps.Chat.Chat(c.Request.Context(), biz.ChatRequest{
		Message:     req.Message,
		DatasetName: strings.TrimSpace(req.DatasetName),
		History:     req.History,
	})
	httputils.WriteResponse(c, nil, res)
}
