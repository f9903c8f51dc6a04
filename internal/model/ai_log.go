package model

// AICallLog 远端 AI / 发布调用日志，每次调用一行
type AICallLog struct {
	BaseModel

	// 关联
	UserID    string `gorm:"size:64;index;comment:用户ID"`
	SessionID string `gorm:"size:36;index;comment:上架会话ID"`
	VariantID string `gorm:"size:36;index;comment:变体ID"`

	// 调用信息
	CallType string `gorm:"size:32;index;comment:调用类型(analyze/generate/publish/locations)"`
	Provider string `gorm:"size:32;comment:服务提供方(http/gemini)"`
	Platform string `gorm:"size:32;comment:发布平台"`

	// 性能
	DurationMs int64 `gorm:"comment:耗时(毫秒)"`

	// 状态
	Status   string `gorm:"size:32;index;default:success;comment:状态(success/failed/no_match)"`
	ErrorMsg string `gorm:"size:1024;comment:错误信息"`
}

func (AICallLog) TableName() string {
	return "ai_call_logs"
}

// ==================== 调用类型常量 ====================

const (
	AICallTypeAnalyze   = "analyze"
	AICallTypeGenerate  = "generate"
	AICallTypePublish   = "publish"
	AICallTypeLocations = "locations"
)

// ==================== 状态常量 ====================

const (
	AICallStatusSuccess = "success"
	AICallStatusFailed  = "failed"
	AICallStatusNoMatch = "no_match"
)

// AllModels 需要自动迁移的表
func AllModels() []interface{} {
	return []interface{}{
		&Product{},
		&ProductVariant{},
		&ProductImage{},
		&ProductVariantLocation{},
		&PlatformConnection{},
		&AICallLog{},
	}
}
