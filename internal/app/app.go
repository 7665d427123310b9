package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/giftman/internal/bot"
	"github.com/hitoshi/giftman/internal/collector"
	"github.com/hitoshi/giftman/internal/config"
	"github.com/hitoshi/giftman/internal/database"
	"github.com/hitoshi/giftman/internal/handler"
	"github.com/hitoshi/giftman/internal/logger"
	"github.com/hitoshi/giftman/internal/metrics"
	"github.com/hitoshi/giftman/internal/middleware"
	"github.com/hitoshi/giftman/internal/notify"
	"github.com/hitoshi/giftman/internal/person"
	"github.com/hitoshi/giftman/internal/repository"
	"github.com/hitoshi/giftman/internal/security"
	"github.com/hitoshi/giftman/internal/session"
	"github.com/hitoshi/giftman/internal/transfer"
	"github.com/hitoshi/giftman/internal/wish"
	"github.com/hitoshi/giftman/internal/worker/purge"
	"github.com/hitoshi/giftman/internal/worker/schedule"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
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
		slog.String("timezone", cfg.Timezone),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はwebhookサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	personRepo := repository.NewPostgresPersonRepo(db)
	adminRepo := repository.NewPostgresAdminRepo(db)
	collectorRepo := repository.NewPostgresCollectorRepo(db)
	serviceUserRepo := repository.NewPostgresServiceUserRepo(db)
	wishRepo := repository.NewPostgresWishRepo(db)
	transferRepo := repository.NewPostgresTransferRepo(db)
	greetingRepo := repository.NewPostgresGreetingRepo(db)

	// 3. メトリクス・セキュリティ・チャネル送信の初期化
	registry := prometheus.NewRegistry()
	collectorMetrics := metrics.NewCollector(registry)

	sanitizer := security.NewTextSanitizer()
	linkGuard := security.NewLinkGuard(cfg.LinkCheckEnabled)

	sender := bot.NewHTTPSender(cfg.ChannelAPIURL, cfg.ChannelToken)

	// 4. ドメインサービスの初期化
	personService := person.NewService(personRepo, slog.Default())
	wishService := wish.NewService(wishRepo, sanitizer, linkGuard, slog.Default())
	collectorManager := collector.NewManager(collectorRepo, collectorMetrics, slog.Default())
	transferService := transfer.NewService(
		transferRepo, greetingRepo, personRepo, collectorRepo,
		sanitizer, sender, collectorMetrics, slog.Default(),
	)

	// 5. サービスユーザーの初期設定
	if err := bootstrapServiceUser(context.Background(), cfg.ServiceUserID, personRepo, serviceUserRepo); err != nil {
		return fmt.Errorf("failed to bootstrap service user: %w", err)
	}

	// 6. セッション・レート制限の初期化
	sessions := session.NewStore(cfg.SessionTTL)
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:            rate.Limit(float64(cfg.RateLimitPerMinute) / 60.0),
		Burst:           cfg.RateLimitBurst,
		CleanupInterval: 5 * time.Minute,
	})
	defer rateLimiter.Stop()

	// 7. ディスパッチャとルーターの構築
	dispatcher := handler.NewBotDispatcher(&handler.BotDeps{
		Logger:      slog.Default(),
		Sender:      sender,
		Sessions:    sessions,
		RateLimiter: rateLimiter,

		Persons:      personRepo,
		Admins:       adminRepo,
		Collectors:   collectorRepo,
		ServiceUsers: serviceUserRepo,

		PersonService:    personService,
		WishService:      wishService,
		CollectorManager: collectorManager,
		TransferService:  transferService,

		Sanitizer: sanitizer,
		LinkGuard: linkGuard,

		AdminSecretPhrase:   cfg.AdminSecretPhrase,
		ServiceSecretPhrase: cfg.ServiceSecretPhrase,
	})

	router := handler.NewRouter(&handler.RouterDeps{
		Dispatcher:    dispatcher,
		DB:            db,
		Logger:        slog.Default(),
		Metrics:       metrics.Handler(registry),
		WebhookSecret: cfg.WebhookSecret,
	})

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("webhook server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down webhook server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("webhook server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 通知ファンアウトと期限切れ記録の削除をcronスケジュールで実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. 依存関係のワイヤリング
	personRepo := repository.NewPostgresPersonRepo(db)
	collectorRepo := repository.NewPostgresCollectorRepo(db)
	transferRepo := repository.NewPostgresTransferRepo(db)
	greetingRepo := repository.NewPostgresGreetingRepo(db)

	registry := prometheus.NewRegistry()
	collectorMetrics := metrics.NewCollector(registry)

	sender := bot.NewHTTPSender(cfg.ChannelAPIURL, cfg.ChannelToken)
	sanitizer := security.NewTextSanitizer()

	transferService := transfer.NewService(
		transferRepo, greetingRepo, personRepo, collectorRepo,
		sanitizer, sender, collectorMetrics, slog.Default(),
	)

	notifier := notify.NewNotifier(
		personRepo, transferService, sender, collectorMetrics, slog.Default(), cfg.Location,
	)
	purgeJob := purge.NewJob(db, collectorMetrics, slog.Default(), cfg.Location)

	// 3. スケジューラの起動
	scheduler, err := schedule.NewScheduler(notifier, purgeJob, slog.Default(), cfg.Location, cfg.NotifyAt)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	scheduler.Start()
	slog.Info("worker started",
		slog.String("notify_at", cfg.NotifyAt),
		slog.String("timezone", cfg.Timezone),
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down worker...")
	scheduler.Stop()

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

// bootstrapServiceUser はSERVICE_USER_IDで指定されたメンバーを
// サービスユーザーとして登録する。まだ指定がない場合のみ設定し、
// 指定のメンバーが未登録の場合は登録後の /get_service_user に委ねる。
func bootstrapServiceUser(
	ctx context.Context,
	serviceUserID int64,
	persons repository.PersonRepository,
	serviceUsers repository.ServiceUserRepository,
) error {
	person, err := persons.FindByID(ctx, serviceUserID)
	if err != nil {
		return fmt.Errorf("failed to find service user person: %w", err)
	}
	if person == nil {
		slog.Warn("configured service user is not registered yet",
			slog.Int64("service_user_id", serviceUserID),
		)
		return nil
	}

	if err := serviceUsers.Init(ctx, serviceUserID); err != nil {
		return fmt.Errorf("failed to init service user: %w", err)
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
