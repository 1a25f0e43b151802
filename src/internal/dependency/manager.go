package dependency

import (
	"teamhub-realtime-svc/src/clients"
	"teamhub-realtime-svc/src/internal/cache"
	"teamhub-realtime-svc/src/internal/config"
	"teamhub-realtime-svc/src/internal/events"
	"teamhub-realtime-svc/src/internal/notification"
	"teamhub-realtime-svc/src/internal/realtime"

	"github.com/gin-gonic/gin"
)

type Manager struct {
	Router                 *gin.Engine
	Config                 *config.Configuration
	Mongodb                *clients.MongoDB
	Redis                  *clients.RedisClient
	RabbitMQ               *clients.RabbitMQ
	CacheService           cache.Service
	Registry               *realtime.Registry
	Admission              *realtime.Admission
	Monitor                *realtime.Monitor
	Fanout                 *realtime.Fanout
	Gateway                *realtime.Gateway
	RealtimeHandler        realtime.Handler
	NotificationRepository notification.Repository
	NotificationService    notification.Service
	NotificationHandler    notification.Handler
	EventConsumer          *events.Consumer
}

func NewDependencyManager(router *gin.Engine,
	mongodb *clients.MongoDB,
	redisClient *clients.RedisClient,
	rabbitMQ *clients.RabbitMQ,
	cfg *config.Configuration) *Manager {
	cacheService := cache.NewCacheService(redisClient.Client, cfg)

	registry := realtime.NewRegistry()
	admission := realtime.NewAdmission(registry, &cfg.Realtime)
	monitor := realtime.NewMonitor(registry, &cfg.Realtime)
	fanout := realtime.NewFanout(registry)
	gateway := realtime.NewGateway(registry, admission, monitor, &cfg.Realtime)
	realtimeHandler := realtime.NewHandler(cfg, registry, fanout, cacheService)

	notificationRepo := notification.NewRepository(mongodb, cfg.Database.NotificationCollection)
	notificationService := notification.NewService(notificationRepo, cacheService, cfg)
	notificationHandler := notification.NewHandler(cfg, notificationService)

	eventConsumer := events.NewConsumer(rabbitMQ, notificationService, fanout, cfg)

	return &Manager{
		Router:                 router,
		Config:                 cfg,
		Mongodb:                mongodb,
		Redis:                  redisClient,
		RabbitMQ:               rabbitMQ,
		CacheService:           cacheService,
		Registry:               registry,
		Admission:              admission,
		Monitor:                monitor,
		Fanout:                 fanout,
		Gateway:                gateway,
		RealtimeHandler:        realtimeHandler,
		NotificationRepository: notificationRepo,
		NotificationService:    notificationService,
		NotificationHandler:    notificationHandler,
		EventConsumer:          eventConsumer,
	}
}
