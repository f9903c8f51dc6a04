package dto

import (
	"time"

	"listing_studio_v1/internal/pipeline"
)

// ==================== 会话 ====================

// ResumeSessionRequest 从已保存变体恢复
type ResumeSessionRequest struct {
	VariantID string `json:"variant_id" binding:"required"`
	ReturnTo  string `json:"return_to"`
}

// SaveDraftResponse 保存后的去向与会话
type SaveDraftResponse struct {
	Result  pipeline.SaveResult  `json:"result"`
	Session pipeline.SessionView `json:"session"`
}

// SeedSessionRequest 调试用：直接带草稿进入表单页
type SeedSessionRequest struct {
	Identity  pipeline.ProductIdentity `json:"identity" binding:"required"`
	Drafts    pipeline.DraftMap        `json:"drafts"`
	Platforms []string                 `json:"platforms"`
}

// ==================== 平台 ====================

// ConfirmPlatformsRequest 确认平台
type ConfirmPlatformsRequest struct {
	Platforms []string `json:"platforms"`
}

// SetConnectionRequest 绑定平台连接
type SetConnectionRequest struct {
	ConnectionID string `json:"connection_id" binding:"required"`
}

// SetActivePlatformRequest 切换当前平台
type SetActivePlatformRequest struct {
	Platform string `json:"platform" binding:"required"`
}

// ==================== 媒体 ====================

// AddMediaRequest 添加媒体（URI 形式）
type AddMediaRequest struct {
	Items []pipeline.MediaInput `json:"items" binding:"required"`
}

// AddMediaResponse 添加结果与会话
type AddMediaResponse struct {
	Result  pipeline.AddResult   `json:"result"`
	Session pipeline.SessionView `json:"session"`
}

// ReorderMediaRequest 媒体新顺序
type ReorderMediaRequest struct {
	Order []string `json:"order" binding:"required"`
}

// SetCoverRequest 设置封面
type SetCoverRequest struct {
	MediaID string `json:"media_id" binding:"required"`
}

// ==================== 视觉匹配与生成 ====================

// SelectCandidateRequest 选择候选
type SelectCandidateRequest struct {
	Position int `json:"position" binding:"required"`
}

// GenerateRequest images_only=true 时跳过候选直接按图片生成
type GenerateRequest struct {
	ImagesOnly bool `json:"images_only"`
}

// ==================== 表单与库存 ====================

// UpdateFieldRequest 修改单个字段，value 为表单原始输入
type UpdateFieldRequest struct {
	Platform string `json:"platform"`
	Field    string `json:"field" binding:"required"`
	Value    string `json:"value"`
}

// SetQuantityRequest 修改仓库数量
type SetQuantityRequest struct {
	Platform   string `json:"platform" binding:"required"`
	LocationID string `json:"location_id" binding:"required"`
	Quantity   *int   `json:"quantity" binding:"required"`
}

// LocationsResponse 平台仓库列表与会话
type LocationsResponse struct {
	Locations []pipeline.LocationInventory `json:"locations"`
	Session   pipeline.SessionView         `json:"session"`
}

// CallLogItem 会话内一次远端调用
type CallLogItem struct {
	ID         int64     `json:"id"`
	CallType   string    `json:"call_type"`
	Provider   string    `json:"provider"`
	Platform   string    `json:"platform,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Status     string    `json:"status"`
	ErrorMsg   string    `json:"error_msg,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
