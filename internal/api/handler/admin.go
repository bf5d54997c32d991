package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/marataitester/tarot_go_server/config"
	"github.com/marataitester/tarot_go_server/internal/model"
	"github.com/marataitester/tarot_go_server/internal/model/dto"
	"github.com/marataitester/tarot_go_server/internal/pkg/jwt"
	"github.com/marataitester/tarot_go_server/internal/pkg/response"
	"github.com/marataitester/tarot_go_server/internal/repository"
	"github.com/marataitester/tarot_go_server/internal/service"
)

type AdminHandler struct {
	accessService  *service.AccessService
	paymentService *service.PaymentService
	entRepo        *repository.EntitlementRepository
	cfg            *config.Config
}

func NewAdminHandler(
	accessService *service.AccessService,
	paymentService *service.PaymentService,
	entRepo *repository.EntitlementRepository,
	cfg *config.Config,
) *AdminHandler {
	return &AdminHandler{
		accessService:  accessService,
		paymentService: paymentService,
		entRepo:        entRepo,
		cfg:            cfg,
	}
}

// Login 管理员登录
// POST /api/v1/admin/login
func (h *AdminHandler) Login(c *gin.Context) {
	var req dto.AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	if req.Username != h.cfg.Admin.Username {
		response.AuthError(c, "Неверное имя пользователя или пароль")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h.cfg.Admin.PasswordHash), []byte(req.Password)); err != nil {
		response.AuthError(c, "Неверное имя пользователя или пароль")
		return
	}

	token, err := jwt.GenerateToken(req.Username, h.cfg.JWT.Secret, h.cfg.JWT.ExpireHours)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, dto.AdminLoginResponse{Token: token})
}

func parseUserID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "Некорректный идентификатор пользователя")
		return 0, false
	}
	return id, true
}

// GetUserAccess 查看用户的权限记录和当前评估结果
// GET /api/v1/admin/users/:id/access
func (h *AdminHandler) GetUserAccess(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	now := time.Now()
	rec, err := h.entRepo.GetByUserID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.Success(c, dto.UserAccessDetail{
				UserID:                userID,
				FreeAttemptsRemaining: h.cfg.Quota.DailyFreeLimit,
				Access:                h.accessService.Evaluate(nil, now),
			})
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, buildAccessDetail(rec, h.accessService.Evaluate(rec, now)))
}

func buildAccessDetail(rec *model.Entitlement, access *dto.AccessInfo) dto.UserAccessDetail {
	detail := dto.UserAccessDetail{
		UserID:                rec.UserID,
		FreeAttemptsRemaining: rec.FreeAttemptsRemaining,
		TotalAttempts:         rec.TotalAttempts,
		Access:                access,
	}
	if rec.WindowStart != nil {
		detail.WindowStart = rec.WindowStart.UTC().Format(time.RFC3339)
	}
	if rec.PaidUntil != nil {
		detail.PaidUntil = rec.PaidUntil.UTC().Format(time.RFC3339)
	}
	if rec.LastAttemptAt != nil {
		detail.LastAttemptAt = rec.LastAttemptAt.UTC().Format(time.RFC3339)
	}
	return detail
}

// ListUserPayments 查看用户的支付历史
// GET /api/v1/admin/users/:id/payments
func (h *AdminHandler) ListUserPayments(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	payments, err := h.paymentService.ListPayments(c.Request.Context(), userID)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, payments)
}

// Grant 手动补偿无限访问（客服处理支付纠纷用）
// POST /api/v1/admin/users/:id/grant
func (h *AdminHandler) Grant(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	var req dto.GrantAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	rec, err := h.paymentService.GrantAccess(c.Request.Context(), userID, req.Duration, req.Note)
	if err != nil {
		if errors.Is(err, service.ErrInvalidDuration) {
			response.ParamError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, buildAccessDetail(rec, h.accessService.Evaluate(rec, time.Now())))
}
