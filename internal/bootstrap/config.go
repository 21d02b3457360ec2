package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config 保存从环境变量（可选 .env 文件）加载的全部配置。
type Config struct {
	ServerPort string
	AppEnv     string // development / production
	LogLevel   string

	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	RedisKeyPrefix      string
	RedisConnectTimeout time.Duration
	RedisCommandTimeout time.Duration

	JWTSecret string
	JWTExpiry time.Duration

	RoomCodeAlphabet        string
	RoomCodeLength          int
	RoomCodeMaxAttempts     int // 生成侧：脏词拒绝的重试预算
	RoomCodeReserveAttempts int // 预留侧：SETNX 冲突的重试预算
	RoomTTL                 time.Duration
	RoomMaxUsers            int // 创建时未指定上限的默认值，0 表示不限制

	DisplayNameMinLength int
	DisplayNameMaxLength int

	RateLimitMax    int
	RateLimitWindow time.Duration

	CORSAllowedOrigin string
}

// LoadConfig 从环境变量加载配置。
// 除 REDIS_ADDR 和 JWT_SECRET 外全部有默认值。
func LoadConfig() (*Config, error) {
	// 优先加载 .env（如果存在），允许只用环境变量
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:    envOr("SERVER_PORT", "8080"),
		AppEnv:        envOr("APP_ENV", "development"),
		LogLevel:      envOr("LOG_LEVEL", "info"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envIntOr("REDIS_DB", 0),

		RedisKeyPrefix:      envOr("REDIS_KEY_PREFIX", "party:"),
		RedisConnectTimeout: envMillisOr("REDIS_CONNECT_TIMEOUT_MS", 5*time.Second),
		RedisCommandTimeout: envMillisOr("REDIS_COMMAND_TIMEOUT_MS", 3*time.Second),

		JWTSecret: os.Getenv("JWT_SECRET"),
		JWTExpiry: time.Duration(envIntOr("JWT_EXPIRY_MINUTES", 60)) * time.Minute,

		RoomCodeAlphabet:        envOr("ROOM_CODE_ALPHABET", "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"),
		RoomCodeLength:          envIntOr("ROOM_CODE_LENGTH", 4),
		RoomCodeMaxAttempts:     envIntOr("ROOM_CODE_MAX_ATTEMPTS", 10000),
		RoomCodeReserveAttempts: envIntOr("ROOM_CODE_RESERVE_ATTEMPTS", 10),
		RoomTTL:                 time.Duration(envIntOr("ROOM_TTL_SECONDS", 7200)) * time.Second,
		RoomMaxUsers:            envIntOr("ROOM_MAX_USERS", 8),

		DisplayNameMinLength: envIntOr("DISPLAY_NAME_MIN_LENGTH", 1),
		DisplayNameMaxLength: envIntOr("DISPLAY_NAME_MAX_LENGTH", 32),

		RateLimitMax:    envIntOr("RATE_LIMIT_MAX", 100),
		RateLimitWindow: envMillisOr("RATE_LIMIT_WINDOW_MS", time.Second),

		CORSAllowedOrigin: envOr("CORS_ALLOWED_ORIGIN", "*"),
	}

	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("environment variable REDIS_ADDR must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("environment variable JWT_SECRET must be set")
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logrus.Warnf("Invalid %s '%s', using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func envMillisOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		logrus.Warnf("Invalid %s '%s', using default %s", key, v, fallback)
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
