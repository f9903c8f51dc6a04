package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 商品相关表由后端服务共享，沿用其 PascalCase 表名与列名，主键为 UUID 字符串

// ==================== 商品 ====================

// Product 商品，分析服务创建，UserId 为所属用户
type Product struct {
	ID        string    `gorm:"column:Id;primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"column:UserId;size:64;index" json:"user_id"`
	Title     string    `gorm:"column:Title" json:"title"`
	CreatedAt time.Time `gorm:"column:CreatedAt" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:UpdatedAt" json:"updated_at"`
}

func (Product) TableName() string {
	return "Products"
}

// ==================== 变体 ====================

// ProductVariant 变体；Options 保存完整的多平台草稿 JSON，其余列为当前平台的投影
type ProductVariant struct {
	ID             string         `gorm:"column:Id;primaryKey;size:36" json:"id"`
	ProductID      string         `gorm:"column:ProductId;size:36;index" json:"product_id"`
	Options        datatypes.JSON `gorm:"column:Options" json:"options"`
	Title          string         `gorm:"column:Title" json:"title"`
	Description    string         `gorm:"column:Description;type:text" json:"description"`
	Price          *float64       `gorm:"column:Price" json:"price"`
	Sku            string         `gorm:"column:Sku;size:128" json:"sku"`
	Barcode        string         `gorm:"column:Barcode;size:128" json:"barcode"`
	CompareAtPrice *float64       `gorm:"column:CompareAtPrice" json:"compare_at_price"`
	Weight         *float64       `gorm:"column:Weight" json:"weight"`
	WeightUnit     string         `gorm:"column:WeightUnit;size:16" json:"weight_unit"`
	CreatedAt      time.Time      `gorm:"column:CreatedAt" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"column:UpdatedAt" json:"updated_at"`
}

func (ProductVariant) TableName() string {
	return "ProductVariants"
}

// ==================== 图片 ====================

// ProductImage 变体图片，Position 0 为封面
type ProductImage struct {
	ID               string    `gorm:"column:Id;primaryKey;size:36" json:"id"`
	ProductVariantID string    `gorm:"column:ProductVariantId;size:36;index" json:"product_variant_id"`
	ImageURL         string    `gorm:"column:ImageUrl;size:1024" json:"image_url"`
	Position         int       `gorm:"column:Position" json:"position"`
	CreatedAt        time.Time `gorm:"column:CreatedAt" json:"created_at"`
}

func (ProductImage) TableName() string {
	return "ProductImages"
}

func (i *ProductImage) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

// ==================== 库存 ====================

// ProductVariantLocation 变体在某个平台仓库的库存，三列联合主键
type ProductVariantLocation struct {
	ProductVariantID     string    `gorm:"column:ProductVariantId;primaryKey;size:36" json:"product_variant_id"`
	PlatformConnectionID string    `gorm:"column:PlatformConnectionId;primaryKey;size:36" json:"platform_connection_id"`
	PlatformLocationID   string    `gorm:"column:PlatformLocationId;primaryKey;size:128" json:"platform_location_id"`
	Quantity             int       `gorm:"column:Quantity" json:"quantity"`
	UpdatedAt            time.Time `gorm:"column:UpdatedAt" json:"updated_at"`
}

func (ProductVariantLocation) TableName() string {
	return "ProductVariantLocations"
}

// ==================== 平台连接 ====================

// PlatformConnection 用户已授权的销售平台账号
type PlatformConnection struct {
	ID          string    `gorm:"column:Id;primaryKey;size:36" json:"id"`
	UserID      string    `gorm:"column:UserId;size:64;index" json:"user_id"`
	Platform    string    `gorm:"column:Platform;size:32;index" json:"platform"`
	DisplayName string    `gorm:"column:DisplayName" json:"display_name"`
	IsEnabled   bool      `gorm:"column:IsEnabled;default:true" json:"is_enabled"`
	CreatedAt   time.Time `gorm:"column:CreatedAt" json:"created_at"`
}

func (PlatformConnection) TableName() string {
	return "PlatformConnections"
}
