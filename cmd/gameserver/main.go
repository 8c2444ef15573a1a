package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Swaggermuffin64/vim-racing-sub000/internal/auth"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/config"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/db"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/fabric"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/game"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/http/middleware"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/limiter"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/logger"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/repository"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/task"
	"github.com/Swaggermuffin64/vim-racing-sub000/internal/ws"
)

// lobbyAdapter bridges the registry's lobby callback onto the fabric API.
type lobbyAdapter struct {
	fab fabric.RoomFabric
}

func (a lobbyAdapter) SetLobbyState(ctx context.Context, roomID string, status string, playerCount, maxPlayers int) error {
	return a.fab.SetLobbyState(ctx, roomID, fabric.LobbyState{
		Status:      status,
		PlayerCount: playerCount,
		MaxPlayers:  maxPlayers,
	})
}

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_JSON") == "true")
	cfg := config.Load()

	regCfg := game.RegistryConfig{
		Timings:    game.DefaultTimings(),
		FabricMode: cfg.FabricEnabled(),
		Exit:       os.Exit,
	}

	if cfg.DatabaseURL != "" {
		pool := db.Connect(cfg.DatabaseURL)
		defer pool.Close()
		regCfg.Results = repository.NewRaceResultRepository(pool)
	}
	if cfg.FabricEnabled() {
		regCfg.Lobby = lobbyAdapter{fab: fabric.NewHathoraClient(cfg.HathoraAppID, cfg.HathoraToken)}
	}

	registry := game.NewRegistry(task.NewGenerator(), regCfg)
	registry.Start()

	secret := cfg.MatchTokenSecret
	if secret == "" {
		secret = cfg.AuthTokenSecret
	}
	authSvc := auth.NewService(secret, cfg.RequireAuth)
	conns := limiter.NewConnLimiter()
	gateway := ws.NewGameGateway(registry, authSvc, conns, cfg.FrontendURLs)

	if cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(cfg.FrontendURLs))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "vim-racing-game"})
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"activeRooms": registry.RoomCount()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws/game", gateway.Handle())
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	srv := &http.Server{
		Addr:    ":" + cfg.GamePort,
		Handler: r,
	}

	go func() {
		logger.Info("game server started", "port", cfg.GamePort, "fabric", cfg.FabricEnabled())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down game server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", "error", err)
	}
	logger.Info("game server exited")
}
