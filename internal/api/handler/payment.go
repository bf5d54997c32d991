package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/marataitester/tarot_go_server/internal/model/dto"
	"github.com/marataitester/tarot_go_server/internal/pkg/response"
	"github.com/marataitester/tarot_go_server/internal/service"
)

type PaymentHandler struct {
	paymentService *service.PaymentService
}

func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// CreateInvoice 为小程序内支付生成 Telegram Stars 账单链接
// POST /api/v1/payment/invoice
func (h *PaymentHandler) CreateInvoice(c *gin.Context) {
	var req dto.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	url, err := h.paymentService.CreateInvoice(c.Request.Context(), req.UserID, req.Duration)
	if err != nil {
		if errors.Is(err, service.ErrInvalidDuration) {
			response.ParamError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, dto.CreateInvoiceResponse{InvoiceURL: url})
}
