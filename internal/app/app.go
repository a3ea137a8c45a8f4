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
	"golang.org/x/time/rate"

	"github.com/simbiat/fftracker/internal/asset"
	"github.com/simbiat/fftracker/internal/authz"
	"github.com/simbiat/fftracker/internal/config"
	"github.com/simbiat/fftracker/internal/crest"
	"github.com/simbiat/fftracker/internal/database"
	"github.com/simbiat/fftracker/internal/handler"
	"github.com/simbiat/fftracker/internal/jobs"
	"github.com/simbiat/fftracker/internal/lodestone"
	"github.com/simbiat/fftracker/internal/logger"
	"github.com/simbiat/fftracker/internal/metrics"
	"github.com/simbiat/fftracker/internal/middleware"
	"github.com/simbiat/fftracker/internal/repository"
	"github.com/simbiat/fftracker/internal/security"
	"github.com/simbiat/fftracker/internal/tracker"
	"github.com/simbiat/fftracker/internal/worker/cleanup"
	"github.com/simbiat/fftracker/internal/worker/refresh"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w, slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗しました: %w", err)
	}

	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
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
		return runHealthcheck(fmt.Sprintf("http://localhost:%s/health", port))
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("初期化に失敗しました: %w", err)
	}

	slog.Info("アプリケーションを起動します",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.Bool("strict", cfg.StrictMode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandRefresh:
		return runRefresh(ctx, cfg, args[1:])
	default:
		return runServe(ctx, cfg)
	}
}

// core はserveとworkerで共有する依存関係。
type core struct {
	db        *sql.DB
	registry  *prometheus.Registry
	collector *metrics.Collector
	jobRepo   *repository.PostgresJobRepo
	userRepo  *repository.PostgresUserRepo
	tracker   *tracker.Tracker
}

// buildCore はDB接続を開き、同期エンジンまでの依存関係をワイヤリングする。
// 呼び出し側はcore.dbをCloseする。
func buildCore(cfg *config.Config, pool database.PoolConfig, log *slog.Logger) (*core, error) {
	db, err := database.OpenWithPool(cfg.DatabaseURL, pool)
	if err != nil {
		return nil, fmt.Errorf("データベースのオープンに失敗しました: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("データベースへの接続に失敗しました: %w", err)
	}
	log.Info("データベースに接続しました")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	entityRepo := repository.NewPostgresEntityRepo(db)
	loader := repository.NewPostgresEntityLoader(db)
	jobRepo := repository.NewPostgresJobRepo(db)
	userRepo := repository.NewPostgresUserRepo(db)

	guard := security.NewSSRFGuard(cfg.LodestoneAllowedHosts...)
	httpClient := guard.NewSafeClient(cfg.LodestoneTimeout)

	source := lodestone.NewClient(httpClient, lodestone.Config{
		BaseURL:       cfg.LodestoneBaseURL,
		UserAgent:     cfg.LodestoneUserAgent,
		MaxBodySize:   cfg.LodestoneMaxSize,
		RatePerSecond: cfg.LodestoneRatePerSecond,
		Burst:         cfg.LodestoneBurst,
	}, collector, log)

	store := asset.NewFileStore(cfg.AssetDir, httpClient, cfg.LodestoneMaxSize, log).WithValidator(guard)
	crests := crest.NewNormalizer(store, cfg.AssetPublicPrefix, log)
	queue := jobs.NewQueue(jobRepo, collector, log)

	trackerCfg := tracker.DefaultConfig()
	trackerCfg.Cooldown = cfg.RefreshCooldown
	trackerCfg.ThrottleWait = cfg.ThrottleWait
	trackerCfg.Strict = cfg.StrictMode

	t := tracker.New(tracker.Deps{
		Repo:      entityRepo,
		Loader:    loader,
		Users:     userRepo,
		Source:    source,
		Jobs:      queue,
		Crests:    crests,
		Icons:     store,
		Recorder:  collector,
		Logger:    log,
		Sanitizer: security.NewProfileSanitizer(),
	}, trackerCfg)

	return &core{
		db:        db,
		registry:  registry,
		collector: collector,
		jobRepo:   jobRepo,
		userRepo:  userRepo,
		tracker:   t,
	}, nil
}

// metricsService は/metricsを公開するHTTPサーバーのサービスを返す。
func (c *core) metricsService(port string) *HTTPServerService {
	return NewHTTPServerService("metrics-server", newHTTPServer(port, metrics.SetupMetricsRoute(c.registry)), 10*time.Second)
}

// rateLimiterConfig はRATE_LIMIT_*（1分あたり）をレートリミッターの設定に変換する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rl := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitPublic > 0 {
		rl.PublicPerMinute = cfg.RateLimitPublic
	}
	if cfg.RateLimitRefresh > 0 {
		rl.RefreshRate = rate.Limit(float64(cfg.RateLimitRefresh) / 60)
		rl.RefreshBurst = cfg.RateLimitRefresh
	}
	return rl
}

// workerPoolConfig は同時実行数に合わせたワーカー用のプール設定を返す。
// 1ジョブはLodestone取得後に1トランザクションを使う。
func workerPoolConfig(cfg *config.Config) database.PoolConfig {
	pool := database.DefaultPoolConfig()
	pool.MaxOpenConns = cfg.WorkerMaxConcurrent + 4
	pool.MaxIdleConns = cfg.WorkerMaxConcurrent
	return pool
}

// runServe はAPIサーバーモードで起動する。
// APIサーバーとメトリクスサーバーをスーパーバイザー配下で実行し、
// SIGINTまたはSIGTERMでグレースフルシャットダウンする。
func runServe(ctx context.Context, cfg *config.Config) error {
	log := slog.Default()

	c, err := buildCore(cfg, database.DefaultPoolConfig(), log)
	if err != nil {
		return err
	}
	defer c.db.Close()

	limiter := middleware.NewRateLimiter(rateLimiterConfig(cfg), log)
	defer limiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		SessionFinder:     repository.NewPostgresSessionRepo(c.db),
		SessionCookieName: cfg.SessionCookieName,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:   limiter,
		Logger:        log,
		Opener:        c.tracker,
		Linker:        c.tracker,
		Authorizer:    authz.NewAuthorizer(c.userRepo, log),
		HealthChecker: c.db,
	})

	root := newSupervisor("fftracker-serve", log, DefaultTreeConfig())
	root.Add(NewHTTPServerService("api-server", newHTTPServer(cfg.ServerPort, router), 30*time.Second))
	root.Add(c.metricsService(cfg.MetricsPort))

	log.Info("APIサーバーを起動します",
		slog.String("port", cfg.ServerPort),
		slog.String("metrics_port", cfg.MetricsPort),
	)
	return serveUntilDone(ctx, root.Serve, log)
}

// runWorker はワーカーモードで起動する。
// 更新ジョブのランナーと保守ジョブをスーパーバイザー配下で実行する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	log := slog.Default()

	c, err := buildCore(cfg, workerPoolConfig(cfg), log)
	if err != nil {
		return err
	}
	defer c.db.Close()

	runner := refresh.NewRunner(c.jobRepo, c.tracker, c.collector, log, refresh.Config{
		Interval:       cfg.WorkerInterval,
		BatchSize:      cfg.WorkerBatchSize,
		MaxConcurrency: cfg.WorkerMaxConcurrent,
		MaxAttempts:    cfg.WorkerMaxAttempts,
		ThrottleDelay:  cfg.ThrottleWait,
	})

	cleanupJob := cleanup.NewCleanupJob(c.db, c.tracker, log)
	cleanupJob.Interval = cfg.CleanupInterval
	cleanupJob.PruneBatchSize = cfg.PruneBatchSize

	root := newSupervisor("fftracker-worker", log, DefaultTreeConfig())
	root.Add(runner)
	root.Add(cleanupJob)
	root.Add(c.metricsService(cfg.MetricsPort))

	log.Info("ワーカーを起動します",
		slog.Duration("interval", cfg.WorkerInterval),
		slog.Int("max_concurrent", cfg.WorkerMaxConcurrent),
	)
	return serveUntilDone(ctx, root.Serve, log)
}

// serveUntilDone はスーパーバイザーを実行し、シグナルによる停止を正常終了として扱う。
func serveUntilDone(ctx context.Context, serve func(context.Context) error, log *slog.Logger) error {
	err := serve(ctx)
	if ctx.Err() != nil {
		log.Info("グレースフルシャットダウンしました")
		return nil
	}
	if err != nil {
		return fmt.Errorf("スーパーバイザーが停止しました: %w", err)
	}
	return nil
}

// runRefresh は1件のエンティティをLodestoneから取得してDBに反映する。
// スロットリングされた場合は待機してから1回だけ再試行する。
func runRefresh(ctx context.Context, cfg *config.Config, args []string) error {
	target, err := ParseRefreshTarget(args)
	if err != nil {
		return err
	}

	log := slog.Default()
	c, err := buildCore(cfg, database.DefaultPoolConfig(), log)
	if err != nil {
		return err
	}
	defer c.db.Close()

	entity, err := c.tracker.Open(target.Kind, target.ID)
	if err != nil {
		return fmt.Errorf("エンティティの生成に失敗しました: %w", err)
	}
	err = entity.Update(ctx, true)
	if errors.Is(err, tracker.ErrThrottled) {
		log.Warn("スロットリングの待機後に再試行します",
			slog.String("kind", string(target.Kind)),
			slog.String("entity_id", target.ID),
		)
		err = entity.Update(ctx, false)
	}
	if err != nil {
		return fmt.Errorf("%s %sの更新に失敗しました: %w", target.Kind, target.ID, err)
	}

	log.Info("エンティティを更新しました",
		slog.String("kind", string(target.Kind)),
		slog.String("entity_id", target.ID),
	)
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("マイグレーションを実行します",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	v, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("マイグレーションに失敗しました: %w", err)
	}

	slog.Info("マイグレーションが完了しました", slog.Uint64("version", uint64(v)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(url string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("ヘルスチェックに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ヘルスチェックのステータスが異常です: %d", resp.StatusCode)
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

// compile-time interface check
var (
	_ tracker.Recorder   = (*metrics.Collector)(nil)
	_ lodestone.Recorder = (*metrics.Collector)(nil)
	_ jobs.Recorder      = (*metrics.Collector)(nil)
	_ refresh.Recorder   = (*metrics.Collector)(nil)
	_ refresh.Opener     = (*tracker.Tracker)(nil)
	_ cleanup.Pruner     = (*tracker.Tracker)(nil)
)
