// Command migrate 把所有对话的 system 消息校正为当前配置的系统提示后退出。
package main

import (
	"context"
	"flag"
	"time"

	"chatbot-go/internal/config"
	"chatbot-go/internal/repository"
	"chatbot-go/internal/service"
	"chatbot-go/pkg/database"
	"chatbot-go/pkg/log"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	timeout := flag.Duration("timeout", 10*time.Minute, "迁移的最长执行时间")
	flag.Parse()

	config.Init(*configPath)
	cfg := config.Conf

	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()

	database.InitDB(cfg.Database.DSN)
	rdb := database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)

	// 迁移后需要清理的是服务实际使用的缓存；内存缓存随进程消失，无需处理
	var cache repository.SessionCache = repository.NewMemorySessionCache(1, 0)
	if cfg.Cache.Backend == "redis" && rdb != nil {
		cache = repository.NewRedisSessionCache(rdb, 0)
	}

	svc := service.NewConversationService(repository.NewConversationRepository(database.DB), cache, nil, cfg.LLM.SystemPrompt)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	report, err := svc.MigrateSystemPrompt(ctx)
	if err != nil {
		log.Fatal("系统提示迁移失败", err)
	}
	log.Infof("系统提示迁移完成: updated=%d inserted=%d removed=%d", report.Updated, report.Inserted, report.Removed)
}
