// Package main 启动本地联调用的模拟对话后端。
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
	"shopchat-go/internal/service"
	"shopchat-go/internal/stub"
	"shopchat-go/pkg/log"
)

func main() {
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath, cfg.Log.DebugBufferSize)
	defer log.Sync()

	// 商品类问题复用欢迎消息的示例商品
	welcome, err := service.LoadWelcome(cfg.Chat)
	if err != nil {
		log.Errorf("加载示例商品失败: %v", err)
		return
	}

	gin.SetMode(cfg.Server.Mode)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Stub.Port),
		Handler: stub.NewServer(cfg.Stub.PendingPolls, welcome.Products).Router(),
	}

	go func() {
		log.Infow("模拟后端启动", "addr", srv.Addr, "pendingPolls", cfg.Stub.PendingPolls)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("模拟后端关闭失败: %v", err)
	}
	log.Info("模拟后端已关闭")
}
