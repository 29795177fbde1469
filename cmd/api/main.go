package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"fund-watch-server/internal/api"
	"fund-watch-server/internal/config"
	"fund-watch-server/internal/db"
	"fund-watch-server/internal/service"
	"fund-watch-server/internal/store"
	"fund-watch-server/internal/trace"
	"fund-watch-server/internal/watchlist"
	"fund-watch-server/internal/ws"

	"github.com/gin-gonic/gin"
)

func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

func main() {
	cfg := config.Load()
	database := db.Init(cfg.PGDSN)
	kv := store.NewGormStore(database)

	mgr := watchlist.NewManager(kv)
	if err := mgr.Load(); err != nil {
		log.Fatal("❌ 自选列表加载失败: ", err)
	}
	fetcher := service.NewFetcher()
	ctrl := watchlist.NewController(fetcher, mgr)
	sched := watchlist.NewScheduler(ctrl, mgr, kv)
	hub := ws.NewHub()
	mgr.OnUpdate(hub.BroadcastFunds)
	mgr.OnMembership(sched.Rearm)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go hub.Run(ctx)
	go sched.Run(ctx)

	// 启动先刷一轮，不用等第一个定时周期
	if codes := mgr.Codes(); len(codes) > 0 {
		go ctrl.Refresh(trace.WithTraceID(ctx, trace.NewTraceID()), codes)
	}

	h := api.New(database, mgr, ctrl, sched, fetcher, []byte(cfg.JWTSecret))

	r := gin.Default()
	r.Use(Cors())

	r.POST("/register", h.Register)
	r.POST("/login", h.Login)
	r.GET("/search", h.Search)
	r.GET("/ws", hub.Handle)

	auth := r.Group("/")
	auth.Use(h.AuthMiddleware())
	{
		auth.GET("/funds", h.ListFunds)
		auth.POST("/add", h.AddFunds)
		auth.POST("/delete", h.DeleteFund)
		auth.GET("/refresh", h.Refresh)
		auth.GET("/settings", h.GetSettings)
		auth.POST("/settings", h.SaveSettings)
		auth.GET("/export", h.Export)
		auth.POST("/import", h.Import)
	}

	fmt.Println("🚀 服务端已启动: http://localhost" + cfg.Addr)
	if err := r.Run(cfg.Addr); err != nil {
		log.Fatal(err)
	}
}
