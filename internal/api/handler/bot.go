package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/marataitester/tarot_go_server/internal/service"
)

type BotHandler struct {
	botService    *service.BotService
	webhookSecret string
}

func NewBotHandler(botService *service.BotService, webhookSecret string) *BotHandler {
	return &BotHandler{
		botService:    botService,
		webhookSecret: webhookSecret,
	}
}

// Webhook Telegram webhook 入口
// POST /api/v1/bot/webhook
// 处理失败返回 5xx，Telegram 会重新投递该 update；
// 支付通知靠 charge_id 幂等，重投不会重复延长付费窗口。
func (h *BotHandler) Webhook(c *gin.Context) {
	if h.webhookSecret != "" {
		if c.GetHeader("X-Telegram-Bot-Api-Secret-Token") != h.webhookSecret {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
	}

	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		// 格式坏掉的 update 重投也没用，直接 200 吞掉
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	if err := h.botService.HandleUpdate(c.Request.Context(), &update); err != nil {
		log.Printf("failed to handle telegram update %d: %v", update.UpdateID, err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
