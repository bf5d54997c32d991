package api

import (
	"github.com/gin-gonic/gin"

	"github.com/marataitester/tarot_go_server/config"
	"github.com/marataitester/tarot_go_server/internal/api/handler"
	"github.com/marataitester/tarot_go_server/internal/api/middleware"
)

type Router struct {
	accessHandler    *handler.AccessHandler
	paymentHandler   *handler.PaymentHandler
	botHandler       *handler.BotHandler
	adminHandler     *handler.AdminHandler
	websocketHandler *handler.WebSocketHandler
	cfg              *config.Config
}

func NewRouter(
	accessHandler *handler.AccessHandler,
	paymentHandler *handler.PaymentHandler,
	botHandler *handler.BotHandler,
	adminHandler *handler.AdminHandler,
	websocketHandler *handler.WebSocketHandler,
	cfg *config.Config,
) *Router {
	return &Router{
		accessHandler:    accessHandler,
		paymentHandler:   paymentHandler,
		botHandler:       botHandler,
		adminHandler:     adminHandler,
		websocketHandler: websocketHandler,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	api := engine.Group("/api/v1")
	{
		// WebSocket
		api.GET("/ws", r.websocketHandler.Handle)

		// 小程序接口
		access := api.Group("/access")
		{
			access.GET("/check", r.accessHandler.Check)
			access.POST("/check", r.accessHandler.Check)
			access.POST("/attempt", r.accessHandler.Attempt)
		}

		// 支付
		api.POST("/payment/invoice", r.paymentHandler.CreateInvoice)

		// Telegram webhook
		api.POST("/bot/webhook", r.botHandler.Webhook)

		// 管理端
		admin := api.Group("/admin")
		{
			admin.POST("/login", r.adminHandler.Login)

			authenticated := admin.Group("")
			authenticated.Use(middleware.AdminAuth(r.cfg.JWT.Secret))
			{
				authenticated.GET("/users/:id/access", r.adminHandler.GetUserAccess)
				authenticated.GET("/users/:id/payments", r.adminHandler.ListUserPayments)
				authenticated.POST("/users/:id/grant", r.adminHandler.Grant)
			}
		}
	}

	return engine
}
