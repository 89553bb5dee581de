package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/argonath/internal/auth"
	"github.com/hitoshi/argonath/internal/config"
	"github.com/hitoshi/argonath/internal/database"
	"github.com/hitoshi/argonath/internal/handler"
	"github.com/hitoshi/argonath/internal/item"
	"github.com/hitoshi/argonath/internal/logger"
	"github.com/hitoshi/argonath/internal/metrics"
	"github.com/hitoshi/argonath/internal/middleware"
	"github.com/hitoshi/argonath/internal/repository"
	"github.com/hitoshi/argonath/internal/security"
	"github.com/hitoshi/argonath/internal/telemetry"
)

// ServiceName はトレースやログで使うサービス名。
const ServiceName = "argonath"

const defaultEnvFile = ".env"

// Init はアプリケーションの初期化を行う。
// dotenvファイルと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. dotenvファイルの読み込み。既に設定済みの環境変数は上書きしない。
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 4. ログレベルを反映
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetupDefaultWithLevel(w, level)

	return cfg, nil
}

// loadEnvFile はENV_FILE（未指定時は.env）を読み込む。
// デフォルトのファイルが存在しない場合は何もしない。
func loadEnvFile() error {
	path := os.Getenv("ENV_FILE")
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}

	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "3000"
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
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. トレーシング
	shutdownTracing, err := telemetry.Setup(ctx, ServiceName, cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Error("failed to shut down tracing", slog.String("error", err.Error()))
		}
	}()

	// 2. DB接続
	db, dialect, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.DatabaseMaxConns)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established", slog.String("dialect", string(dialect)))

	// 3. 依存関係のワイヤリング
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	guard := security.NewOutboundGuard()
	router, rateLimiter, err := buildHandler(cfg, db, dialect, reg, guard.NewClient(cfg.GitHubRequestTimeout), guard)
	if err != nil {
		return err
	}
	defer rateLimiter.Stop()

	// 4. HTTPサーバーの起動
	// WriteTimeoutはGraphQLのページング全体（ページごとにGITHUB_REQUEST_TIMEOUT）を収める
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// endpointValidator は外向き通信先URLの静的検証に必要なインターフェース。
type endpointValidator interface {
	ValidateEndpoint(rawURL string) error
}

// buildHandler はストア、GitHubクライアント、メトリクスを組み立ててルーターを返す。
// 返されたRateLimiterは呼び出し元がStopする。
func buildHandler(
	cfg *config.Config,
	db *sql.DB,
	dialect database.Dialect,
	reg *prometheus.Registry,
	httpClient *http.Client,
	validator endpointValidator,
) (http.Handler, *middleware.RateLimiter, error) {
	// 1. GitHubのエンドポイント検証（GitHub Enterprise向けの上書きを含む）
	for _, endpoint := range []string{cfg.GitHubOAuthURL, cfg.GitHubAPIURL} {
		if err := validator.ValidateEndpoint(endpoint); err != nil {
			return nil, nil, fmt.Errorf("invalid GitHub endpoint %s: %w", endpoint, err)
		}
	}

	// 2. リポジトリの初期化
	stores := repository.NewStores(db, dialect)

	// 3. ドメインサービスの初期化
	collector := metrics.NewCollector(reg)

	oauthClient := auth.NewGitHubOAuthClient(auth.GitHubOAuthConfig{
		RedirectURL:  cfg.GitHubRedirectURL,
		OAuthBaseURL: cfg.GitHubOAuthURL,
		APIBaseURL:   cfg.GitHubAPIURL,
		HTTPClient:   httpClient,
		Timeout:      cfg.GitHubRequestTimeout,
		Metrics:      collector,
	})
	authService := auth.NewService(oauthClient, stores.Users, stores.Sessions, auth.ServiceConfig{
		ClientID:     cfg.GitHubClientID,
		ClientSecret: cfg.GitHubClientSecret,
	})

	fetcher := item.NewFetcher(item.FetcherConfig{
		APIBaseURL:    cfg.GitHubAPIURL,
		TaskTypeField: cfg.TaskTypeField,
		HTTPClient:    auth.WithGitHubHeaders(httpClient),
		Timeout:       cfg.GitHubRequestTimeout,
		Logger:        slog.Default(),
		Metrics:       collector,
	})

	// 4. ルーターの構築（レート制限はreq/minで設定しreq/secに変換する）
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitProjectFetch),
	)

	router := handler.NewRouter(&handler.RouterDeps{
		SessionFinder: stores.Sessions,
		SessionGuard: middleware.SessionGuardConfig{
			EnforceExpiry: cfg.SessionEnforceExpiry,
			Metrics:       collector,
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
		},

		ItemFetcher: fetcher,
		UserService: authService,

		HealthChecker:   db,
		MetricsGatherer: reg,
	})

	return router, rateLimiter, nil
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

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
