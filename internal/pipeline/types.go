package pipeline

import "time"

// ==================== 媒体 ====================

// MediaKind 媒体类型
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// MediaInput 采集端提交的原始媒体
type MediaInput struct {
	URI    string    `json:"uri"`
	Kind   MediaKind `json:"kind"`
	Width  int       `json:"width,omitempty"`
	Height int       `json:"height,omitempty"`
}

// MediaItem 会话中的一个媒体，ID 在排序/删除后保持不变
type MediaItem struct {
	ID       string    `json:"id"`
	URI      string    `json:"uri"`
	Kind     MediaKind `json:"kind"`
	Width    int       `json:"width,omitempty"`
	Height   int       `json:"height,omitempty"`
	Position int       `json:"position"`
	IsCover  bool      `json:"is_cover"`
}

// UploadedAsset 上传成功的远端资源，创建后不可变
type UploadedAsset struct {
	SourceMediaID string `json:"source_media_id"`
	RemoteURL     string `json:"remote_url"`
	MimeType      string `json:"mime_type"`
	ByteSize      int    `json:"byte_size"`
	StoragePath   string `json:"storage_path"`
}

// ==================== 商品标识 ====================

// ProductIdentity 分析服务返回的后端商品/变体 ID
type ProductIdentity struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
}

// Known 两个 ID 都已知
func (p ProductIdentity) Known() bool {
	return p.ProductID != "" && p.VariantID != ""
}

// ==================== 视觉匹配 ====================

// VisualMatchCandidate 视觉搜索候选商品
type VisualMatchCandidate struct {
	Position     int    `json:"position"`
	Title        string `json:"title"`
	SourceLabel  string `json:"source"`
	Link         string `json:"link"`
	PriceHint    string `json:"price,omitempty"`
	ThumbnailURL string `json:"thumbnail"`
}

// ==================== 库存 ====================

// LocationInventory 某个仓库位置的库存
type LocationInventory struct {
	LocationID  string `json:"location_id"`
	DisplayName string `json:"name"`
	Address     string `json:"address,omitempty"`
	Quantity    int    `json:"quantity"`
}

// ==================== 持久化记录 ====================

// VariantDraftRecord 字段通道写入的变体记录
type VariantDraftRecord struct {
	VariantID      string
	Options        []byte
	Title          string
	Description    string
	Price          *float64
	Sku            string
	Barcode        string
	CompareAtPrice *float64
	Weight         *float64
	WeightUnit     string
	UpdatedAt      time.Time
}

// InventoryRecord 库存通道 upsert 的一行
type InventoryRecord struct {
	VariantID            string
	PlatformConnectionID string
	PlatformLocationID   string
	Quantity             int
	UpdatedAt            time.Time
}
