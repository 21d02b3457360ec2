// Package bootstrap 负责装配整个应用：配置、日志、Redis、
// 仓库、服务、Hub、路由和优雅关闭。
// 所有依赖都通过构造函数显式传递，没有全局状态。
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	httpHandler "github.com/metacurb/nestjs-websocket-starter/internal/handler/http"
	wsHandler "github.com/metacurb/nestjs-websocket-starter/internal/handler/websocket"
	"github.com/metacurb/nestjs-websocket-starter/internal/hub"
	redisstore "github.com/metacurb/nestjs-websocket-starter/internal/infra/store/redis"
	"github.com/metacurb/nestjs-websocket-starter/internal/middleware"
	"github.com/metacurb/nestjs-websocket-starter/internal/roomcode"
	"github.com/metacurb/nestjs-websocket-starter/internal/service"
)

// App 持有应用的全部组件。
type App struct {
	Config      *Config
	Log         *logrus.Logger
	RedisClient *redis.Client
	Hub         *hub.Hub
	HTTPServer  *http.Server
}

// NewApp 创建并装配应用的所有组件。
func NewApp() (*App, error) {
	// 1. 配置
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. 日志
	log := logrus.StandardLogger()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel)
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	log.Info("Configuration loaded")

	// 3. Redis。连接/命令超时在这里配置：超时表现为 store 不可用错误，
	//    任何操作都不会无限阻塞。
	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  cfg.RedisConnectTimeout,
		ReadTimeout:  cfg.RedisCommandTimeout,
		WriteTimeout: cfg.RedisCommandTimeout,
		PoolSize:     20,
		MinIdleConns: 5,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), cfg.RedisConnectTimeout)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info("Redis connected")

	// 4. 仓库
	store := redisstore.NewStore(redisClient, cfg.RedisKeyPrefix)
	roomRepo := redisstore.NewRoomRepository(store)
	userRepo := redisstore.NewUserRepository(store)

	// 5. 服务
	tokens, err := service.NewTokenService(cfg.JWTSecret, cfg.JWTExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to create TokenService: %w", err)
	}
	codes := roomcode.NewGenerator(cfg.RoomCodeAlphabet, cfg.RoomCodeLength, cfg.RoomCodeMaxAttempts, nil)
	roomService := service.NewRoomService(roomRepo, userRepo, tokens, codes, cfg.RoomTTL, cfg.RoomCodeReserveAttempts)

	// 6. Hub
	hubInstance := hub.NewHub(roomService)

	// 7. Handlers
	roomHandler := httpHandler.NewRoomHandler(roomService, cfg.DisplayNameMinLength, cfg.DisplayNameMaxLength, cfg.RoomMaxUsers)
	websocketHandler := wsHandler.NewHandler(hubInstance, tokens, roomService)

	// 8. 路由
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(log))
	router.Use(corsMiddleware(cfg.CORSAllowedOrigin))
	router.Use(middleware.RateLimit(store, cfg.RateLimitMax, cfg.RateLimitWindow))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	rooms := api.Group("/rooms")
	{
		rooms.POST("", roomHandler.CreateRoom)
		rooms.POST("/:code/join", roomHandler.JoinRoom)
		rooms.POST("/:code/rejoin", middleware.SessionAuth(tokens), roomHandler.RejoinRoom)
		rooms.GET("/:code", roomHandler.GetRoom)
	}
	router.GET("/ws/rooms", websocketHandler.HandleConnection)

	httpServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	return &App{
		Config:      cfg,
		Log:         log,
		RedisClient: redisClient,
		Hub:         hubInstance,
		HTTPServer:  httpServer,
	}, nil
}

// Run 启动 Hub 和 HTTP 服务，阻塞直到服务退出。
func (a *App) Run() error {
	go a.Hub.Run()
	a.Log.Infof("Server starting on :%s", a.Config.ServerPort)
	if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown 优雅关闭：先停 HTTP 入口，再断开全部 WebSocket 客户端，最后关 Redis。
func (a *App) Shutdown(ctx context.Context) {
	a.Log.Info("Shutting down...")
	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		a.Log.WithError(err).Warn("HTTP server shutdown error")
	}
	a.Hub.Shutdown()
	if err := a.RedisClient.Close(); err != nil {
		a.Log.WithError(err).Warn("Redis close error")
	}
	a.Log.Info("Shutdown complete")
}

// RequestLogger 返回记录每个 HTTP 请求的中间件。
func RequestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"ip":      c.ClientIP(),
		}).Info("Request handled")
	}
}

func corsMiddleware(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
