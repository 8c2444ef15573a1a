package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Swaggermuffin64/vim-racing-sub000/internal/auth"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/config"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/fabric"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/http/middleware"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/limiter"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/logger"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/matchmaker"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/task"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/ws"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_JSON") == "true")
	cfg := config.Load()

	limiter.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	var fab fabric.RoomFabric
	if cfg.FabricEnabled() {
		fab = fabric.NewHathoraClient(cfg.HathoraAppID, cfg.HathoraToken)
	} else {
		gamePort, err := strconv.Atoi(cfg.GamePort)
		if err != nil {
			gamePort = 3001
		}
		fab = fabric.NewLocalFabric("localhost", gamePort)
	}

	secret := cfg.MatchTokenSecret
	if secret == "" {
		secret = cfg.AuthTokenSecret
	}
	authSvc := auth.NewService(secret, cfg.RequireAuth)
	mm := matchmaker.New(fab, authSvc, cfg.PlayersPerMatch)
	conns := limiter.NewConnLimiter()
	gateway := ws.NewMatchmakingGateway(mm, authSvc, conns, cfg.FrontendURLs)
	gen := task.NewGenerator()

	if cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(cfg.FrontendURLs))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "vim-racing-matchmaking"})
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"queueDepth": mm.Depth()})
	})
	r.GET("/api/task/practice", limiter.HTTPRateLimit(30, time.Minute), func(c *gin.Context) {
		session := gen.Session(task.DefaultNumTasks)
		c.JSON(http.StatusOK, gin.H{
			"tasks":     session.Tasks,
			"numTasks":  session.NumTasks,
			"startTime": session.StartTime,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws/matchmaking", gateway.Handle())
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	srv := &http.Server{
		Addr:    ":" + cfg.MatchmakerPort,
		Handler: r,
	}

	go func() {
		logger.Info("matchmaker started", "port", cfg.MatchmakerPort, "fabric", cfg.FabricEnabled())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down matchmaker")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", "error", err)
	}
	logger.Info("matchmaker exited")
}
