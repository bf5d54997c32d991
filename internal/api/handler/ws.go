package handler

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/marataitester/tarot_go_server/internal/pkg/ws"
	"github.com/marataitester/tarot_go_server/internal/service"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin 校验交给 CORS 配置，WebView 内的 Origin 不可控
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type WebSocketHandler struct {
	hub           *ws.Hub
	accessService *service.AccessService
}

func NewWebSocketHandler(hub *ws.Hub, accessService *service.AccessService) *WebSocketHandler {
	return &WebSocketHandler{
		hub:           hub,
		accessService: accessService,
	}
}

// Handle WebSocket 连接，连上后立刻推一份当前权限快照
// GET /api/v1/ws?user_id=xxx
func (h *WebSocketHandler) Handle(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	client := &ws.Client{
		UserID: userID,
		Conn:   conn,
	}

	h.hub.Register(client)

	if info, err := h.accessService.Check(c.Request.Context(), userID); err == nil {
		_ = h.hub.SendToUser(userID, &ws.Message{Type: "entitlement_update", Data: info})
	}

	// 保持连接，读取消息（主要用于检测断开）
	go func() {
		defer h.hub.Unregister(client)
		defer conn.Close()
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				break
			}
		}
	}()
}
