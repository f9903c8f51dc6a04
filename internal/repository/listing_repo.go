package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"listing_studio_v1/internal/model"
)

// ErrVariantNotFound 变体不存在或不属于当前用户
var ErrVariantNotFound = errors.New("product variant not found")

// ==================== 仓储接口 ====================

// VariantRepository 变体仓储接口
type VariantRepository interface {
	Create(ctx context.Context, variant *model.ProductVariant) error
	GetByID(ctx context.Context, id string) (*model.ProductVariant, error)
	// GetOwned 只返回属于 userID 的变体
	GetOwned(ctx context.Context, userID, variantID string) (*model.ProductVariant, error)
	// UpdateDraft 写入草稿列，fields 的键为列名
	UpdateDraft(ctx context.Context, variantID string, fields map[string]interface{}) error
}

// ProductImageRepository 变体图片仓储接口
type ProductImageRepository interface {
	CreateBatch(ctx context.Context, images []model.ProductImage) error
	ListByVariant(ctx context.Context, variantID string) ([]model.ProductImage, error)
	DeleteByVariant(ctx context.Context, variantID string) error
}

// InventoryRepository 仓库库存仓储接口
type InventoryRepository interface {
	// Upsert 按 (变体, 平台连接, 仓库) 插入或更新数量
	Upsert(ctx context.Context, rows []model.ProductVariantLocation) error
	ListByVariant(ctx context.Context, variantID string) ([]model.ProductVariantLocation, error)
}

// PlatformConnectionRepository 平台连接仓储接口
type PlatformConnectionRepository interface {
	Create(ctx context.Context, conn *model.PlatformConnection) error
	GetByID(ctx context.Context, id string) (*model.PlatformConnection, error)
	ListEnabledByUser(ctx context.Context, userID string) ([]model.PlatformConnection, error)
}

// ==================== ProductVariant 仓储实现 ====================

type variantRepo struct {
	db *gorm.DB
}

// NewVariantRepository 创建变体仓储
func NewVariantRepository(db *gorm.DB) VariantRepository {
	return &variantRepo{db: db}
}

func (r *variantRepo) Create(ctx context.Context, variant *model.ProductVariant) error {
	return r.db.WithContext(ctx).Create(variant).Error
}

func (r *variantRepo) GetByID(ctx context.Context, id string) (*model.ProductVariant, error) {
	var v model.ProductVariant
	if err := r.db.WithContext(ctx).Where(`"Id" = ?`, id).First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVariantNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (r *variantRepo) GetOwned(ctx context.Context, userID, variantID string) (*model.ProductVariant, error) {
	var v model.ProductVariant
	err := r.db.WithContext(ctx).
		Joins(`JOIN "Products" ON "Products"."Id" = "ProductVariants"."ProductId"`).
		Where(`"ProductVariants"."Id" = ? AND "Products"."UserId" = ?`, variantID, userID).
		First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVariantNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (r *variantRepo) UpdateDraft(ctx context.Context, variantID string, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&model.ProductVariant{}).
		Where(`"Id" = ?`, variantID).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVariantNotFound
	}
	return nil
}

// ==================== ProductImage 仓储实现 ====================

type productImageRepo struct {
	db *gorm.DB
}

// NewProductImageRepository 创建图片仓储
func NewProductImageRepository(db *gorm.DB) ProductImageRepository {
	return &productImageRepo{db: db}
}

func (r *productImageRepo) CreateBatch(ctx context.Context, images []model.ProductImage) error {
	if len(images) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&images).Error
}

func (r *productImageRepo) ListByVariant(ctx context.Context, variantID string) ([]model.ProductImage, error) {
	var images []model.ProductImage
	err := r.db.WithContext(ctx).
		Where(`"ProductVariantId" = ?`, variantID).
		Order(`"Position" ASC`).
		Find(&images).Error
	return images, err
}

func (r *productImageRepo) DeleteByVariant(ctx context.Context, variantID string) error {
	return r.db.WithContext(ctx).
		Where(`"ProductVariantId" = ?`, variantID).
		Delete(&model.ProductImage{}).Error
}

// ==================== ProductVariantLocation 仓储实现 ====================

type inventoryRepo struct {
	db *gorm.DB
}

// NewInventoryRepository 创建库存仓储
func NewInventoryRepository(db *gorm.DB) InventoryRepository {
	return &inventoryRepo{db: db}
}

func (r *inventoryRepo) Upsert(ctx context.Context, rows []model.ProductVariantLocation) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "ProductVariantId"},
			{Name: "PlatformConnectionId"},
			{Name: "PlatformLocationId"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"Quantity", "UpdatedAt"}),
	}).Create(&rows).Error
}

func (r *inventoryRepo) ListByVariant(ctx context.Context, variantID string) ([]model.ProductVariantLocation, error) {
	var rows []model.ProductVariantLocation
	err := r.db.WithContext(ctx).
		Where(`"ProductVariantId" = ?`, variantID).
		Order(`"PlatformConnectionId" ASC, "PlatformLocationId" ASC`).
		Find(&rows).Error
	return rows, err
}

// ==================== PlatformConnection 仓储实现 ====================

type platformConnectionRepo struct {
	db *gorm.DB
}

// NewPlatformConnectionRepository 创建平台连接仓储
func NewPlatformConnectionRepository(db *gorm.DB) PlatformConnectionRepository {
	return &platformConnectionRepo{db: db}
}

func (r *platformConnectionRepo) Create(ctx context.Context, conn *model.PlatformConnection) error {
	return r.db.WithContext(ctx).Create(conn).Error
}

func (r *platformConnectionRepo) GetByID(ctx context.Context, id string) (*model.PlatformConnection, error) {
	var conn model.PlatformConnection
	if err := r.db.WithContext(ctx).Where(`"Id" = ?`, id).First(&conn).Error; err != nil {
		return nil, err
	}
	return &conn, nil
}

func (r *platformConnectionRepo) ListEnabledByUser(ctx context.Context, userID string) ([]model.PlatformConnection, error) {
	var conns []model.PlatformConnection
	err := r.db.WithContext(ctx).
		Where(`"UserId" = ? AND "IsEnabled" = ?`, userID, true).
		Order(`"CreatedAt" ASC`).
		Find(&conns).Error
	return conns, err
}

// ==================== 事务支持 ====================

// ListingUnitOfWork 上架草稿工作单元（事务）
type ListingUnitOfWork struct {
	db        *gorm.DB
	Variants  VariantRepository
	Images    ProductImageRepository
	Inventory InventoryRepository
}

// NewListingUnitOfWork 创建工作单元
func NewListingUnitOfWork(db *gorm.DB) *ListingUnitOfWork {
	return &ListingUnitOfWork{
		db:        db,
		Variants:  NewVariantRepository(db),
		Images:    NewProductImageRepository(db),
		Inventory: NewInventoryRepository(db),
	}
}

// Transaction 执行事务
func (u *ListingUnitOfWork) Transaction(ctx context.Context, fn func(uow *ListingUnitOfWork) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewListingUnitOfWork(tx))
	})
}
