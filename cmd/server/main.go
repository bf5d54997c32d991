package main

import (
	"context"
	"fmt"
	"log"

	"github.com/marataitester/tarot_go_server/config"
	"github.com/marataitester/tarot_go_server/internal/api"
	"github.com/marataitester/tarot_go_server/internal/api/handler"
	"github.com/marataitester/tarot_go_server/internal/database"
	"github.com/marataitester/tarot_go_server/internal/pkg/cache"
	"github.com/marataitester/tarot_go_server/internal/pkg/pubsub"
	"github.com/marataitester/tarot_go_server/internal/pkg/telegram"
	"github.com/marataitester/tarot_go_server/internal/pkg/ws"
	"github.com/marataitester/tarot_go_server/internal/repository"
	"github.com/marataitester/tarot_go_server/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	log.Println("Database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	// 初始化 WebSocket Hub
	wsHub := ws.NewHub()

	// 初始化 Redis 镜像和发布/订阅
	statusCache := cache.NewStatusCache(rdb, cfg.Cache.StatusTTL())
	publisher := pubsub.NewPublisher(rdb)
	subscriber := pubsub.NewSubscriber(rdb)

	// 权限变更广播：订阅 Redis 频道，推给该用户的所有 WebSocket 连接
	go func() {
		err := subscriber.Subscribe(context.Background(), func(msg *pubsub.StatusMessage) {
			if err := wsHub.SendToUser(msg.UserID, &ws.Message{Type: msg.Type, Data: msg}); err != nil {
				log.Printf("failed to push entitlement update to user %d: %v", msg.UserID, err)
			}
		})
		if err != nil {
			log.Printf("entitlement subscriber stopped: %v", err)
		}
	}()
	log.Println("Entitlement update subscriber started")

	// 初始化 Telegram 客户端
	tgClient := telegram.NewClient(cfg.Telegram.BotToken)

	// 初始化 Repository
	entRepo := repository.NewEntitlementRepository(db, cfg.Quota.DailyFreeLimit)
	payRepo := repository.NewPaymentRepository(db)

	// 初始化 Service
	accessService := service.NewAccessService(entRepo, statusCache, publisher, cfg)
	paymentService := service.NewPaymentService(entRepo, payRepo, accessService, tgClient, cfg)
	botService := service.NewBotService(accessService, paymentService, tgClient, cfg)

	// 初始化 Handler
	accessHandler := handler.NewAccessHandler(accessService)
	paymentHandler := handler.NewPaymentHandler(paymentService)
	botHandler := handler.NewBotHandler(botService, cfg.Telegram.WebhookSecret)
	adminHandler := handler.NewAdminHandler(accessService, paymentService, entRepo, cfg)
	websocketHandler := handler.NewWebSocketHandler(wsHub, accessService)

	// 初始化 Router
	router := api.NewRouter(
		accessHandler,
		paymentHandler,
		botHandler,
		adminHandler,
		websocketHandler,
		cfg,
	)
	engine := router.Setup()

	// 启动服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s", addr)
	if err := engine.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
