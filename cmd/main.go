package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"listing_studio_v1/internal/config"
	"listing_studio_v1/internal/controller"
	"listing_studio_v1/internal/middleware"
	"listing_studio_v1/internal/model"
	"listing_studio_v1/internal/pipeline"
	"listing_studio_v1/internal/repository"
	"listing_studio_v1/internal/router"
	"listing_studio_v1/internal/service"
	"listing_studio_v1/internal/task"
	"listing_studio_v1/pkg/database"
	"listing_studio_v1/pkg/logger"
	"listing_studio_v1/pkg/utils"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load(getEnv("LISTING_CONFIG", ""))
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	log := logger.Must(cfg.Server.Env, cfg.Server.LogLevel)
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("配置校验失败", zap.Error(err))
	}

	// 2. 初始化数据库
	db := initDatabase(cfg, log)

	// 3. 初始化依赖
	deps, err := initDependencies(cfg, db, log)
	if err != nil {
		log.Fatal("初始化依赖失败", zap.Error(err))
	}

	// 4. 启动定时任务
	cleanup := initTasks(cfg, deps, log)

	// 5. 初始化路由
	if isRelease(cfg.Server.Env) {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	if !isRelease(cfg.Server.Env) {
		r.Use(gin.Logger())
	}
	router.InitRoutes(r, deps.Controllers.Listing, deps.Limiter, router.Options{
		UploadsDir: deps.UploadsDir,
		EnableSeed: !isRelease(cfg.Server.Env),
	})

	// 6. 启动服务
	startServer(cfg, r, deps, cleanup, log)
}

// ==================== 依赖容器 ====================

// Dependencies 依赖容器
type Dependencies struct {
	DB          *gorm.DB
	Repos       *Repositories
	Services    *Services
	Controllers *Controllers
	Manager     *pipeline.SessionManager
	Limiter     *middleware.CallRateLimiter
	// UploadsDir 本地存储时对外提供的目录
	UploadsDir string
}

// Repositories 仓库集合
type Repositories struct {
	ListingUow  *repository.ListingUnitOfWork
	Connections repository.PlatformConnectionRepository
	AiCallLog   repository.AICallLogRepository
}

// Services 服务集合
type Services struct {
	Storage    pipeline.BlobStore
	MediaRead  *service.MediaReader
	Recorder   *service.CallRecorder
	ListingAI  *service.ListingAIService
	Generator  pipeline.Generator
	Publish    *service.PublishService
	DraftStore *service.DraftStoreService
	Listing    *service.ListingService
}

// Controllers 控制器集合
type Controllers struct {
	Listing *controller.ListingController
}

// ==================== 初始化函数 ====================

// initDatabase 初始化数据库
func initDatabase(cfg *config.Config, log *zap.Logger) *gorm.DB {
	db, err := database.InitDB(cfg.Database.URL, database.Options{
		Debug:   cfg.Server.Env == "debug",
		Migrate: cfg.Database.AutoMigrate,
	}, log, model.AllModels()...)
	if err != nil {
		log.Fatal("数据库初始化失败", zap.Error(err))
	}
	return db
}

// initDependencies 初始化所有依赖
func initDependencies(cfg *config.Config, db *gorm.DB, log *zap.Logger) (*Dependencies, error) {
	// -------- Repo 层 --------
	repos := &Repositories{
		ListingUow:  repository.NewListingUnitOfWork(db),
		Connections: repository.NewPlatformConnectionRepository(db),
		AiCallLog:   repository.NewAICallLogRepository(db),
	}

	// -------- 存储 & 媒体 --------
	storage, err := service.NewStorageProvider(&service.StorageConfig{
		Provider:    cfg.Storage.Provider,
		Bucket:      cfg.Storage.Bucket,
		Region:      cfg.Storage.Region,
		AccessKey:   cfg.Storage.AccessKey,
		SecretKey:   cfg.Storage.SecretKey,
		Endpoint:    cfg.Storage.Endpoint,
		CDNDomain:   cfg.Storage.CDNDomain,
		BasePath:    cfg.Storage.BasePath,
		SupabaseURL: cfg.Storage.SupabaseURL,
		SupabaseKey: cfg.Storage.SupabaseKey,
	})
	if err != nil {
		return nil, fmt.Errorf("存储服务初始化失败: %w", err)
	}
	var uploadsDir string
	if local, ok := storage.(*service.LocalStorage); ok {
		uploadsDir = local.Dir()
	}

	stagingDir := cfg.Pipeline.StagingDir
	if stagingDir == "" {
		stagingDir = filepath.Join(os.TempDir(), "listing-studio-staging")
	}
	debug := cfg.Server.Env == "debug"
	mediaClient := utils.NewAPIClient("", "", cfg.AI.Timeout, false).SetHeader("Accept", "*/*")
	reader := service.NewMediaReader(mediaClient, stagingDir, 0)
	compressor := utils.NewJPEGCompressor(cfg.Pipeline.JPEGQuality, cfg.Pipeline.MaxImageEdge)
	uploader := pipeline.NewUploadService(storage, reader, compressor, nil, log)

	// -------- 远程调用 --------
	recorder := service.NewCallRecorder(repos.AiCallLog, log)
	apiClient := utils.NewAPIClient(cfg.AI.BaseURL, cfg.AI.Token, cfg.AI.Timeout, debug)
	listingAI := service.NewListingAIService(apiClient, recorder, log)
	publishSvc := service.NewPublishService(apiClient, recorder, log)

	var generator pipeline.Generator = listingAI
	if cfg.AI.Generator == "gemini" {
		generator = service.NewGeminiGenerator(cfg.AI.GeminiKey, cfg.AI.GeminiModel, reader, recorder, log)
	}

	// -------- 会话 --------
	draftStore := service.NewDraftStoreService(repos.ListingUow, repos.Connections, log)
	manager := pipeline.NewSessionManager(pipeline.MachineDeps{
		Uploader:  uploader,
		Analyzer:  listingAI,
		Generator: generator,
		Publisher: pipeline.NewPublishOrchestrator(publishSvc, cfg.Platforms.LocationRequired, log),
		Store:     draftStore,
		Log:       log,
	}, pipeline.MachineConfig{
		MaxMedia:        cfg.Pipeline.MaxMedia,
		UploadByteLimit: cfg.Pipeline.UploadByteLimit,
		DefaultPlatform: cfg.Pipeline.DefaultPlatform,
		CallTimeout:     cfg.Pipeline.CallTimeout,
		AutoSave: pipeline.AutoSaveConfig{
			FieldDelay:     cfg.AutoSave.FieldDelay,
			InventoryDelay: cfg.AutoSave.InventoryDelay,
			MaxWait:        cfg.AutoSave.MaxWait,
			WriteTimeout:   cfg.AutoSave.WriteTimeout,
		},
	}, draftStore)

	// 暂存上限与上传上限一致，0 表示不限
	listingSvc := service.NewListingService(manager, draftStore, repos.AiCallLog, stagingDir, int64(cfg.Pipeline.UploadByteLimit), log)

	// -------- 鉴权 & 限流 --------
	middleware.SetJWTConfig(&middleware.JWTConfig{
		SecretKey:      cfg.JWT.Secret,
		AccessTokenTTL: cfg.JWT.AccessTokenTTL,
		Issuer:         cfg.JWT.Issuer,
	})

	return &Dependencies{
		DB:    db,
		Repos: repos,
		Services: &Services{
			Storage:    storage,
			MediaRead:  reader,
			Recorder:   recorder,
			ListingAI:  listingAI,
			Generator:  generator,
			Publish:    publishSvc,
			DraftStore: draftStore,
			Listing:    listingSvc,
		},
		Controllers: &Controllers{
			Listing: controller.NewListingController(listingSvc, log),
		},
		Manager:    manager,
		Limiter:    middleware.NewCallRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		UploadsDir: uploadsDir,
	}, nil
}

// ==================== 定时任务 ====================

// initTasks 初始化定时任务
func initTasks(cfg *config.Config, deps *Dependencies, log *zap.Logger) *task.SessionCleanupTask {
	cleanup := task.NewSessionCleanupTask(deps.Manager, deps.Services.Listing, cfg.Sessions.IdleTTL, cfg.Sessions.CleanupCron, log)
	if err := cleanup.Start(); err != nil {
		log.Fatal("无法启动会话清理任务", zap.Error(err))
	}
	log.Info("定时任务已启动")
	return cleanup
}

// ==================== 服务启动 ====================

// startServer 启动服务，退出前写入所有会话的待保存修改
func startServer(cfg *config.Config, r *gin.Engine, deps *Dependencies, cleanup *task.SessionCleanupTask, log *zap.Logger) {
	port := cfg.Server.Port

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	// 异步启动服务
	go func() {
		log.Info("服务启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("服务启动失败", zap.Error(err))
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("正在关闭服务...")

	// 优雅关闭，最多等待 30 秒
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("服务强制关闭", zap.Error(err))
	}

	<-cleanup.Stop().Done()
	deps.Manager.Shutdown(ctx)

	if sqlDB, err := deps.DB.DB(); err == nil {
		sqlDB.Close()
	}
	log.Info("服务已退出")
}

// ==================== 工具函数 ====================

func isRelease(env string) bool {
	return env == "release" || env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
