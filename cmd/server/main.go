// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"shopchat-go/internal/config"
	"shopchat-go/internal/handler"
	"shopchat-go/internal/repository"
	"shopchat-go/internal/service"
	"shopchat-go/pkg/backend"
	"shopchat-go/pkg/database"
	"shopchat-go/pkg/es"
	"shopchat-go/pkg/kafka"
	"shopchat-go/pkg/log"
	"shopchat-go/pkg/schedule"
	"shopchat-go/pkg/storage"
	"shopchat-go/pkg/token"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath, cfg.Log.DebugBufferSize)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化存储。没有配置 Redis 时对话只保存在内存中
	var (
		conversationRepo repository.ConversationRepository
		preferenceRepo   repository.PreferenceRepository
		counter          kafka.AttemptCounter
	)
	if cfg.Database.Redis.Addr != "" {
		database.InitRedis(cfg.Database.Redis)
		conversationRepo = repository.NewConversationRepository(database.RDB, cfg.Database.Redis.TTL)
		preferenceRepo = repository.NewPreferenceRepository(database.RDB, cfg.Database.Redis.TTL)
		counter = kafka.RedisCounter{RDB: database.RDB}
	} else {
		log.Warnw("未配置 Redis，对话记录仅保存在内存中")
		conversationRepo = repository.NewMemoryConversationRepository()
		preferenceRepo = repository.NewMemoryPreferenceRepository()
		counter = kafka.NewMemoryCounter()
	}

	// 4. 可选组件：Elasticsearch 检索、MySQL 归档、MinIO 导出
	var (
		indexer        service.EntryIndexer
		searchService  service.SearchService
		archiveService service.ArchiveService
	)
	if cfg.Elasticsearch.Enabled {
		if err := es.InitES(cfg.Elasticsearch); err != nil {
			log.Errorf("es 初始化失败 %s", err)
			return
		}
		entryIndex := es.NewEntryIndex(cfg.Elasticsearch.IndexName)
		indexer = entryIndex
		searchService = service.NewSearchService(entryIndex)
	}
	if cfg.Database.MySQL.Enabled {
		database.InitMySQL(cfg.Database.MySQL.DSN)
		archiveService = service.NewArchiveService(repository.NewArchiveRepository(database.DB), indexer)
	}

	// 5. 对话事件：Kafka 启用时经 Kafka 异步归档，否则直接交给归档服务
	var publisher service.EventPublisher = service.NopPublisher{}
	var producer *kafka.Producer
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	switch {
	case cfg.Kafka.Enabled:
		producer = kafka.NewProducer(cfg.Kafka)
		publisher = producer
		if archiveService != nil {
			go kafka.StartConsumer(consumerCtx, cfg.Kafka, archiveService, counter)
		}
	case archiveService != nil:
		publisher = service.PublisherFunc(archiveService.Handle)
	}

	// 6. 初始化 Service (依赖注入)
	welcome, err := service.LoadWelcome(cfg.Chat)
	if err != nil {
		log.Errorf("加载欢迎消息失败: %v", err)
		return
	}
	var jwtManager *token.JWTManager
	if cfg.JWT.Enabled {
		jwtManager = token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	} else {
		log.Warnw("未启用 JWT，所有请求都以默认用户身份处理", "userId", cfg.Chat.UserID)
	}
	chatService := service.NewChatService(
		backend.NewClient(cfg.Backend),
		schedule.NewTicker(),
		conversationRepo,
		preferenceRepo,
		publisher,
		cfg.Chat,
		cfg.Backend,
		welcome,
	)
	var exportService service.ExportService
	if cfg.MinIO.Enabled {
		storage.InitMinIO(cfg.MinIO)
		exportService = service.NewExportService(chatService, storage.NewBucketStore(cfg.MinIO.BucketName), cfg.MinIO.URLExpiry)
	}

	// 7. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(handler.Deps{
		ChatService:    chatService,
		ArchiveService: archiveService,
		SearchService:  searchService,
		ExportService:  exportService,
		JWTManager:     jwtManager,
		DefaultUserID:  cfg.Chat.UserID,
		LogRing:        log.Recent(),
	})

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infow("服务启动", "addr", srv.Addr, "sendUrl", cfg.Backend.SendURL, "resultUrl", cfg.Backend.ResultURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	// 先停掉轮询并写完剩余条目，再关闭生产者和消费者
	chatService.Close()
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Warnw("关闭 Kafka 生产者失败", "error", err)
		}
	}
	stopConsumer()
	log.Info("服务已优雅关闭")
}
