// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ストアAPIのベースURL。APP_ENVで切り替え、STORE_API_URLで上書きできる。
const (
	ProductionStoreAPIURL  = "https://e-commerce-be-x33o.onrender.com"
	DevelopmentStoreAPIURL = "http://localhost:5000"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Store API
	AppEnv          string
	StoreAPIURL     string
	StoreAPITimeout time.Duration

	// Session
	SessionSecret      string
	SessionMaxAge      int
	LoginRedirectDelay time.Duration

	// Cart
	CartRequireLogin  bool
	CartInflightGuard bool
	RedisURL          string

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitAuth    int

	// Image proxy
	ImageProxyEnabled bool
	ImageFetchTimeout time.Duration
	ImageMaxSize      int64
	ImageCacheTTL     time.Duration

	// Server
	ServerPort string
	BaseURL    string
	LogLevel   string

	// Cookie
	CookieSecure bool
	CookieDomain string
}

// LoadDotEnv は指定パスの.envファイルを環境変数に読み込む。
// 既に設定済みの環境変数は上書きしない。ファイルが存在しない場合はfalseを返す。
func LoadDotEnv(path string) (bool, error) {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return true, nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.AppEnv = getEnvString("APP_ENV", "development")
	cfg.StoreAPIURL = resolveStoreAPIURL(cfg.AppEnv, os.Getenv("STORE_API_URL"))
	cfg.StoreAPITimeout = getEnvDuration("STORE_API_TIMEOUT", 10*time.Second)
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.LoginRedirectDelay = getEnvDuration("LOGIN_REDIRECT_DELAY", 1500*time.Millisecond)
	cfg.CartRequireLogin = getEnvBool("CART_REQUIRE_LOGIN", false)
	cfg.CartInflightGuard = getEnvBool("CART_INFLIGHT_GUARD", true)
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.ImageProxyEnabled = getEnvBool("IMAGE_PROXY_ENABLED", true)
	cfg.ImageFetchTimeout = getEnvDuration("IMAGE_FETCH_TIMEOUT", 5*time.Second)
	cfg.ImageMaxSize = getEnvInt64("IMAGE_MAX_SIZE", 2097152)
	cfg.ImageCacheTTL = getEnvDuration("IMAGE_CACHE_TTL", 7*24*time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")

	return cfg, nil
}

// IsProduction は本番モードで起動しているかを返す。
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// resolveStoreAPIURL はストアAPIのベースURLを決定する。
// 明示指定があればそれを優先し、なければモードに応じた既定値を返す。
func resolveStoreAPIURL(appEnv, override string) string {
	if override != "" {
		return strings.TrimRight(override, "/")
	}
	if appEnv == "production" {
		return ProductionStoreAPIURL
	}
	return DevelopmentStoreAPIURL
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}
