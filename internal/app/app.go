// Package app はストアフロントの起動処理と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/storefront/internal/auth"
	"github.com/hitoshi/storefront/internal/cart"
	"github.com/hitoshi/storefront/internal/config"
	"github.com/hitoshi/storefront/internal/database"
	"github.com/hitoshi/storefront/internal/flash"
	"github.com/hitoshi/storefront/internal/guard"
	"github.com/hitoshi/storefront/internal/handler"
	"github.com/hitoshi/storefront/internal/imageproxy"
	"github.com/hitoshi/storefront/internal/logger"
	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/repository"
	"github.com/hitoshi/storefront/internal/security"
	"github.com/hitoshi/storefront/internal/storeapi"
	"github.com/hitoshi/storefront/internal/validation"
	"github.com/hitoshi/storefront/internal/worker/cleanup"
)

// dotEnvPath は起動時に読み込む.envファイルのパス。
const dotEnvPath = ".env"

// Init はアプリケーションの初期化を行う。
// .envを読み込んでから環境変数でConfigを構築し、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. 設定読み込み前でもログを使えるようにする
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. .envの読み込み（存在しなくてもよい）
	loaded, err := config.LoadDotEnv(dotEnvPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", dotEnvPath, err)
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 4. 設定されたログレベルで再セットアップ
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	if loaded {
		slog.Debug("loaded environment from file", slog.String("path", dotEnvPath))
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("app_env", cfg.AppEnv),
		slog.String("store_api_url", cfg.StoreAPIURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(context.Background(), db, 5*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newCartGuard は設定に応じたカート操作の実行中ガードを生成する。
// 戻り値のcloseは使用後に呼び出す。
func newCartGuard(cfg *config.Config) (guard.Guard, func(), error) {
	if !cfg.CartInflightGuard {
		return guard.NoopGuard{}, func() {}, nil
	}
	if cfg.RedisURL == "" {
		return guard.NewMemoryGuard(), func() {}, nil
	}

	client, err := guard.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	// ストアAPIのタイムアウトより長く保持し、応答待ちの間に期限切れにならないようにする
	ttl := 2 * cfg.StoreAPITimeout
	slog.Info("using redis in-flight guard", slog.Duration("ttl", ttl))
	return guard.NewRedisGuard(client, ttl), func() { client.Close() }, nil
}

// runServe はHTTPサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// 3. ストアAPIクライアント
	store := storeapi.NewClient(cfg.StoreAPIURL, storeapi.NewHTTPClient(cfg.StoreAPITimeout), slog.Default(), collector)

	// 4. リポジトリ・セキュリティ
	sessionRepo := repository.NewPostgresSessionRepo(db)
	sanitizer := security.NewTextSanitizer()

	// 5. ドメインサービス
	authService := auth.NewService(
		store, sessionRepo, validation.New(), collector,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)

	cartGuard, closeGuard, err := newCartGuard(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up cart guard: %w", err)
	}
	defer closeGuard()
	cartService := cart.NewService(store, cartGuard, collector, sanitizer)

	// 6. 画面・ルーター
	renderCfg := handler.RenderConfig{}
	var imageSigner *imageproxy.Signer
	if cfg.ImageProxyEnabled {
		imageSigner = imageproxy.NewSigner(cfg.SessionSecret)
		renderCfg.ImageURLs = imageSigner
	}
	renderer, err := handler.NewRenderer(renderCfg)
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	cookie := middleware.CookieConfig{Secure: cfg.CookieSecure, Domain: cfg.CookieDomain}
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth))
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:        slog.Default(),
		SessionFinder: authService,
		Cookie:        cookie,
		RateLimiter:   rateLimiter,

		Renderer:    renderer,
		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			Cookie:             cookie,
			LoginRedirectDelay: cfg.LoginRedirectDelay,
		},
		CartService:      cartService,
		Flash:            flash.NewStore(cfg.SessionSecret, flash.Options{Secure: cfg.CookieSecure, Domain: cfg.CookieDomain}),
		CartRequireLogin: cfg.CartRequireLogin,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(registry),
	}

	if cfg.ImageProxyEnabled {
		ssrfGuard := security.NewSSRFGuard()
		deps.ImageSource = imageproxy.New(
			repository.NewPostgresImageCacheRepo(db),
			ssrfGuard,
			ssrfGuard.NewSafeClient(cfg.ImageFetchTimeout),
			collector,
			imageproxy.Config{MaxSize: cfg.ImageMaxSize, CacheTTL: cfg.ImageCacheTTL},
		)
		deps.ImageVerifier = imageSigner
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.StoreAPITimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("storefront server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	slog.Info("shutting down storefront server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("storefront server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションと古い画像キャッシュのクリーンアップを日次で実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	var images cleanup.ImagePurger
	if cfg.ImageProxyEnabled {
		images = repository.NewPostgresImageCacheRepo(db)
	}
	job := cleanup.NewCleanupJob(repository.NewPostgresSessionRepo(db), images, slog.Default())
	job.ImageTTL = cfg.ImageCacheTTL

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting", slog.Duration("image_ttl", cfg.ImageCacheTTL))

	// 起動直後に1回、その後は日次で実行（ブロッキング）
	job.Start(ctx, 24*time.Hour)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
