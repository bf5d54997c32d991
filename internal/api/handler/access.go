package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/marataitester/tarot_go_server/internal/model/dto"
	"github.com/marataitester/tarot_go_server/internal/pkg/response"
	"github.com/marataitester/tarot_go_server/internal/service"
)

type AccessHandler struct {
	accessService *service.AccessService
}

func NewAccessHandler(accessService *service.AccessService) *AccessHandler {
	return &AccessHandler{
		accessService: accessService,
	}
}

// 小程序早期版本用 GET + query，后来改成 POST + JSON，两种都收
func bindAccessRequest(c *gin.Context) (*dto.AccessRequest, bool) {
	var req dto.AccessRequest
	if c.Request.Method == http.MethodGet {
		if err := c.ShouldBindQuery(&req); err != nil {
			response.ParamError(c, err.Error())
			return nil, false
		}
		return &req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return nil, false
	}
	return &req, true
}

// Check 查询当前访问状态（不消耗配额）
// GET /api/v1/access/check?user_id=xxx
// POST /api/v1/access/check
func (h *AccessHandler) Check(c *gin.Context) {
	req, ok := bindAccessRequest(c)
	if !ok {
		return
	}

	info, err := h.accessService.Check(c.Request.Context(), req.UserID)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, info)
}

// Attempt 消耗一次抽牌尝试
// POST /api/v1/access/attempt
func (h *AccessHandler) Attempt(c *gin.Context) {
	req, ok := bindAccessRequest(c)
	if !ok {
		return
	}

	result, err := h.accessService.RecordAttempt(c.Request.Context(), req.UserID)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	if !result.Allowed {
		response.QuotaError(c, result)
		return
	}

	response.Success(c, result)
}
