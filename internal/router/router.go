package router

import (
	"net/http"

	"listing_studio_v1/internal/controller"
	"listing_studio_v1/internal/middleware"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "listing_studio_v1/docs"
)

// Options 路由可选项
type Options struct {
	// UploadsDir 本地存储目录，非空时以 /uploads 对外提供
	UploadsDir string
	// EnableSeed 注册调试用的 seed 接口
	EnableSeed bool
}

// InitRoutes 注册所有路由
func InitRoutes(r *gin.Engine, listingCtl *controller.ListingController, limiter *middleware.CallRateLimiter, opts Options) {
	// 1. Swagger 文档路由
	// 访问 http://localhost:8080/swagger/index.html 即可查看
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": 0, "message": "ok"})
	})

	if opts.UploadsDir != "" {
		r.Static("/uploads", opts.UploadsDir)
	}

	// 2. API 路由组，全部需要登录
	api := r.Group("/api", middleware.JWTAuth())
	{
		// GET /api/listing-usage?days=30
		api.GET("/listing-usage", listingCtl.GetUsage)

		sessions := api.Group("/listing-sessions")
		{
			sessions.POST("", listingCtl.CreateSession)
			sessions.POST("/resume", listingCtl.ResumeSession)
			sessions.GET("/:id", listingCtl.GetSession)
			sessions.DELETE("/:id", listingCtl.DeleteSession)
			if opts.EnableSeed {
				sessions.POST("/:id/seed", listingCtl.SeedSession)
			}

			// 平台
			sessions.POST("/:id/platforms", listingCtl.ConfirmPlatforms)
			sessions.POST("/:id/platforms/:platform", listingCtl.AddPlatform)
			sessions.DELETE("/:id/platforms/:platform", listingCtl.RemovePlatform)
			sessions.PUT("/:id/connections/:platform", listingCtl.SetConnection)
			sessions.PUT("/:id/active-platform", listingCtl.SetActivePlatform)

			// 媒体
			sessions.POST("/:id/media", listingCtl.AddMedia)
			sessions.POST("/:id/media/upload", listingCtl.UploadMedia)
			sessions.PUT("/:id/media/order", listingCtl.ReorderMedia)
			sessions.PUT("/:id/media/cover", listingCtl.SetCover)
			sessions.POST("/:id/media/edit", listingCtl.EditMedia)
			sessions.POST("/:id/media/edit/finish", middleware.CallRateLimit(limiter, "upload"), listingCtl.FinishMediaEdit)
			sessions.DELETE("/:id/media/:media_id", listingCtl.RemoveMedia)

			// 分析与生成（远程调用，按用户限流）
			sessions.POST("/:id/analyze", middleware.CallRateLimit(limiter, "analyze"), listingCtl.StartAnalysis)
			sessions.PUT("/:id/candidate", listingCtl.SelectCandidate)
			sessions.POST("/:id/generate", middleware.CallRateLimit(limiter, "generate"), listingCtl.Generate)

			// 表单与库存
			sessions.PATCH("/:id/fields", listingCtl.UpdateField)
			sessions.GET("/:id/locations/:platform", middleware.CallRateLimit(limiter, "locations"), listingCtl.LoadLocations)
			sessions.PUT("/:id/inventory", listingCtl.SetQuantity)

			// 发布与保存
			sessions.POST("/:id/publish", middleware.CallRateLimit(limiter, "publish"), listingCtl.Publish)
			sessions.POST("/:id/save", listingCtl.SaveDraft)
			sessions.POST("/:id/abandon", listingCtl.Abandon)
			sessions.POST("/:id/recover", listingCtl.Recover)
			sessions.GET("/:id/calls", listingCtl.GetSessionCalls)
		}
	}
}
