package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"listing_studio_v1/internal/model"
	"listing_studio_v1/internal/pipeline"
	"listing_studio_v1/internal/repository"
)

// ErrDraftNotFound 变体不存在或不属于当前用户
var ErrDraftNotFound = errors.New("draft not found")

// DraftStoreService 自动保存与草稿恢复的关系库适配器
type DraftStoreService struct {
	uow   *repository.ListingUnitOfWork
	conns repository.PlatformConnectionRepository
	log   *zap.Logger
}

func NewDraftStoreService(uow *repository.ListingUnitOfWork, conns repository.PlatformConnectionRepository, log *zap.Logger) *DraftStoreService {
	if log == nil {
		log = zap.NewNop()
	}
	return &DraftStoreService{uow: uow, conns: conns, log: log.Named("DraftStore")}
}

// ==================== 写入 ====================

// SaveVariantDraft 字段通道：整份草稿写入 Options，当前平台投影写入顶层列
func (s *DraftStoreService) SaveVariantDraft(ctx context.Context, rec pipeline.VariantDraftRecord) error {
	fields := map[string]interface{}{
		"Options":        datatypes.JSON(rec.Options),
		"Title":          rec.Title,
		"Description":    rec.Description,
		"Price":          rec.Price,
		"Sku":            rec.Sku,
		"Barcode":        rec.Barcode,
		"CompareAtPrice": rec.CompareAtPrice,
		"Weight":         rec.Weight,
		"WeightUnit":     rec.WeightUnit,
		"UpdatedAt":      rec.UpdatedAt,
	}
	if err := s.uow.Variants.UpdateDraft(ctx, rec.VariantID, fields); err != nil {
		return fmt.Errorf("保存变体草稿失败: %w", err)
	}
	return nil
}

// ReplaceVariantImages 先删后建，同一事务内完成
func (s *DraftStoreService) ReplaceVariantImages(ctx context.Context, variantID string, urls []string) error {
	return s.uow.Transaction(ctx, func(tx *repository.ListingUnitOfWork) error {
		if err := tx.Images.DeleteByVariant(ctx, variantID); err != nil {
			return fmt.Errorf("删除旧图片失败: %w", err)
		}
		images := make([]model.ProductImage, 0, len(urls))
		for i, url := range urls {
			images = append(images, model.ProductImage{
				ProductVariantID: variantID,
				ImageURL:         url,
				Position:         i,
			})
		}
		if err := tx.Images.CreateBatch(ctx, images); err != nil {
			return fmt.Errorf("写入图片失败: %w", err)
		}
		return nil
	})
}

// UpsertInventory 库存通道：按 (变体, 平台连接, 仓库) upsert，不删除其他行
func (s *DraftStoreService) UpsertInventory(ctx context.Context, rows []pipeline.InventoryRecord) error {
	records := make([]model.ProductVariantLocation, 0, len(rows))
	for _, r := range rows {
		records = append(records, model.ProductVariantLocation{
			ProductVariantID:     r.VariantID,
			PlatformConnectionID: r.PlatformConnectionID,
			PlatformLocationID:   r.PlatformLocationID,
			Quantity:             r.Quantity,
			UpdatedAt:            r.UpdatedAt,
		})
	}
	if err := s.uow.Inventory.Upsert(ctx, records); err != nil {
		return fmt.Errorf("保存库存失败: %w", err)
	}
	return nil
}

// ==================== 读取 ====================

// LoadDraft 读取变体、图片、库存和用户的平台连接，用于恢复会话
func (s *DraftStoreService) LoadDraft(ctx context.Context, ownerID, variantID string) (*pipeline.StoredDraft, error) {
	variant, err := s.uow.Variants.GetOwned(ctx, ownerID, variantID)
	if err != nil {
		if errors.Is(err, repository.ErrVariantNotFound) {
			return nil, ErrDraftNotFound
		}
		return nil, err
	}

	images, err := s.uow.Images.ListByVariant(ctx, variantID)
	if err != nil {
		return nil, fmt.Errorf("读取图片失败: %w", err)
	}
	rows, err := s.uow.Inventory.ListByVariant(ctx, variantID)
	if err != nil {
		return nil, fmt.Errorf("读取库存失败: %w", err)
	}
	connections, err := s.Connections(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	stored := &pipeline.StoredDraft{
		Identity: pipeline.ProductIdentity{ProductID: variant.ProductID, VariantID: variant.ID},
		Options:  []byte(variant.Options),
		Fallback: pipeline.BaseFields{
			Title:          variant.Title,
			Description:    variant.Description,
			Price:          variant.Price,
			CompareAtPrice: variant.CompareAtPrice,
			Sku:            variant.Sku,
			Barcode:        variant.Barcode,
			Weight:         variant.Weight,
			WeightUnit:     variant.WeightUnit,
		},
		Connections: connections,
		Inventory:   map[string][]pipeline.LocationInventory{},
	}
	for _, img := range images {
		stored.ImageURLs = append(stored.ImageURLs, img.ImageURL)
	}

	platformOf := make(map[string]string, len(connections))
	for platform, id := range connections {
		platformOf[id] = platform
	}
	for _, r := range rows {
		platform, ok := platformOf[r.PlatformConnectionID]
		if !ok {
			s.log.Warn("库存行的平台连接已失效", zap.String("connection", r.PlatformConnectionID))
			continue
		}
		stored.Inventory[platform] = append(stored.Inventory[platform], pipeline.LocationInventory{
			LocationID: r.PlatformLocationID,
			Quantity:   r.Quantity,
		})
	}
	return stored, nil
}

// Connections 用户每个平台的首个已启用连接
func (s *DraftStoreService) Connections(ctx context.Context, ownerID string) (map[string]string, error) {
	conns, err := s.conns.ListEnabledByUser(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("读取平台连接失败: %w", err)
	}
	out := make(map[string]string, len(conns))
	for _, c := range conns {
		if _, ok := out[c.Platform]; !ok {
			out[c.Platform] = c.ID
		}
	}
	return out, nil
}
