// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatbot-go/internal/config"
	"chatbot-go/internal/handler"
	"chatbot-go/internal/pipeline"
	"chatbot-go/internal/repository"
	"chatbot-go/internal/service"
	"chatbot-go/pkg/database"
	"chatbot-go/pkg/es"
	"chatbot-go/pkg/kafka"
	"chatbot-go/pkg/llm"
	"chatbot-go/pkg/log"
	"chatbot-go/pkg/stt"
	"chatbot-go/pkg/token"
	"chatbot-go/pkg/tts"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	if err := cfg.Validate(); err != nil {
		log.Fatal("配置校验失败", err)
	}

	// 3. 初始化数据库和 Redis
	database.InitDB(cfg.Database.DSN)
	rdb := database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	// 4. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.DB)

	var sessionCache repository.SessionCache
	ttl := time.Duration(cfg.Cache.TTLMinutes) * time.Minute
	if cfg.Cache.Backend == "redis" {
		sessionCache = repository.NewRedisSessionCache(rdb, ttl)
	} else {
		sessionCache = repository.NewMemorySessionCache(cfg.Cache.MaxEntries, ttl)
	}
	var blacklist repository.TokenBlacklist
	if rdb != nil {
		blacklist = repository.NewRedisTokenBlacklist(rdb)
	} else {
		blacklist = repository.NewMemoryTokenBlacklist()
	}

	// 5. 初始化外部服务客户端
	llmClient, err := llm.NewClient(rootCtx, cfg.LLM)
	if err != nil {
		log.Fatal("初始化 LLM 客户端失败", err)
	}

	var ttsClient tts.Client
	if cfg.TTS.APIKey != "" {
		ttsClient = tts.NewClient(cfg.TTS)
	} else {
		log.Warnf("tts.api_key 未配置，语音合成不可用")
	}

	var sttClient stt.Client
	if c, err := stt.NewGoogleClient(rootCtx, cfg.STT); err != nil {
		log.Warnf("初始化语音识别客户端失败，语音识别不可用: %v", err)
	} else {
		sttClient = c
		if closer, ok := c.(io.Closer); ok {
			defer closer.Close()
		}
	}

	var historyIndex service.HistoryIndex
	var indexer pipeline.MessageIndexer
	if cfg.Elasticsearch.Addresses != "" {
		index, err := es.InitES(cfg.Elasticsearch)
		if err != nil {
			log.Errorf("es 初始化失败，历史搜索不可用: %v", err)
		} else {
			historyIndex = index
			indexer = index
		}
	}

	// 6. 初始化消息事件处理管道
	processor := pipeline.NewProcessor(indexer)
	var events service.EventPublisher = service.EventPublisherFunc(processor.Process)
	if cfg.Kafka.Brokers != "" {
		publisher := kafka.NewPublisher(cfg.Kafka)
		defer publisher.Close()
		events = publisher
		// 后台 Kafka 消费者，rootCtx 取消时退出
		go kafka.StartConsumer(rootCtx, cfg.Kafka, processor)
	}

	// 7. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	userService := service.NewUserService(userRepo, blacklist, jwtManager)
	conversationService := service.NewConversationService(conversationRepo, sessionCache, historyIndex, cfg.LLM.SystemPrompt)
	chatService := service.NewChatService(conversationService, sessionCache, llmClient, events,
		time.Duration(cfg.LLM.TimeoutSeconds)*time.Second)
	speechService := service.NewSpeechService(ttsClient, sttClient)
	searchService := service.NewSearchService(historyIndex)

	if cfg.LLM.MigrateOnStart {
		if _, err := conversationService.MigrateSystemPrompt(rootCtx); err != nil {
			log.Fatal("系统提示迁移失败", err)
		}
	}

	// 8. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(handler.RouterDeps{
		UserService:         userService,
		ConversationService: conversationService,
		ChatService:         chatService,
		SpeechService:       speechService,
		SearchService:       searchService,
		AllowedOrigins:      cfg.CORS.AllowedOrigins,
		MaxUploadBytes:      int64(cfg.STT.MaxUploadMB) << 20,
	})

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	// 停止 Kafka 消费者
	cancelRoot()
	log.Info("服务已优雅关闭")
}
