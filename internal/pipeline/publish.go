package pipeline

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ==================== 接口定义 ====================

// PublishOptions 发布选项
type PublishOptions struct {
	Status      string   `json:"status"`
	Vendor      string   `json:"vendor,omitempty"`
	ProductType string   `json:"productType,omitempty"`
	Tags        []string `json:"tags"`
}

// LocationQuantity 发布时提交的仓库数量
type LocationQuantity struct {
	LocationID string `json:"locationId"`
	Quantity   int    `json:"quantity"`
}

// PublishRequest 单平台发布请求
type PublishRequest struct {
	ProductID            string
	Platform             string
	PlatformConnectionID string
	Locations            []LocationQuantity
	Options              PublishOptions
}

// PublishResult 单平台发布响应
type PublishResult struct {
	Success     bool   `json:"success"`
	ProductID   string `json:"productId"`
	OperationID string `json:"operationId"`
}

// Publisher 远端发布服务
type Publisher interface {
	Publish(ctx context.Context, req PublishRequest) (*PublishResult, error)
	Locations(ctx context.Context, platform, connectionID string) ([]LocationInventory, error)
}

// ==================== 编排 ====================

// PublishInput 发布所需的会话快照
type PublishInput struct {
	Identity    ProductIdentity
	Platforms   []string
	Drafts      DraftMap
	Connections map[string]string
	Inventory   map[string][]LocationInventory
	// AlreadyPublished 上次部分成功的平台，重试时跳过
	AlreadyPublished map[string]bool
}

// PlatformOutcome 单平台发布结果
type PlatformOutcome struct {
	Platform    string `json:"platform"`
	Success     bool   `json:"success"`
	OperationID string `json:"operation_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// PublishReport 多平台发布结果
type PublishReport struct {
	Outcomes []PlatformOutcome `json:"outcomes"`
}

// Failed 失败的平台
func (r PublishReport) Failed() []PlatformOutcome {
	var out []PlatformOutcome
	for _, o := range r.Outcomes {
		if !o.Success {
			out = append(out, o)
		}
	}
	return out
}

// PublishOrchestrator 本地校验后并发发布到每个平台
type PublishOrchestrator struct {
	publisher        Publisher
	locationRequired map[string]bool
	concurrency      int
	log              *zap.Logger
}

// NewPublishOrchestrator 创建发布编排器
func NewPublishOrchestrator(publisher Publisher, locationRequired []string, log *zap.Logger) *PublishOrchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	req := make(map[string]bool, len(locationRequired))
	for _, p := range locationRequired {
		req[p] = true
	}
	return &PublishOrchestrator{
		publisher:        publisher,
		locationRequired: req,
		concurrency:      4,
		log:              log.Named("Publish"),
	}
}

// RequiresLocations 平台是否需要仓库库存
func (o *PublishOrchestrator) RequiresLocations(platform string) bool {
	return o.locationRequired[platform]
}

// Locations 透传仓库查询
func (o *PublishOrchestrator) Locations(ctx context.Context, platform, connectionID string) ([]LocationInventory, error) {
	return o.publisher.Locations(ctx, platform, connectionID)
}

// Validate 本地校验，不发起任何网络请求
func (o *PublishOrchestrator) Validate(in PublishInput) error {
	if !in.Identity.Known() {
		return ErrIdentityRequired
	}
	if len(in.Platforms) == 0 {
		return ErrNoPlatforms
	}
	for _, p := range in.Platforms {
		if in.AlreadyPublished[p] {
			continue
		}
		if in.Connections[p] == "" {
			return fmt.Errorf("%w: %s", ErrMissingConnection, p)
		}
		if !o.locationRequired[p] {
			continue
		}
		hasStock := false
		for _, loc := range in.Inventory[p] {
			if loc.Quantity > 0 {
				hasStock = true
				break
			}
		}
		if !hasStock {
			return ErrNoInventoryQuantity
		}
	}
	return nil
}

// Publish 校验通过后并发发布，单平台失败记录在报告中
func (o *PublishOrchestrator) Publish(ctx context.Context, in PublishInput) (PublishReport, error) {
	if err := o.Validate(in); err != nil {
		return PublishReport{}, err
	}

	var (
		mu     sync.Mutex
		report PublishReport
		g      errgroup.Group
	)
	g.SetLimit(o.concurrency)

	for _, platform := range in.Platforms {
		if in.AlreadyPublished[platform] {
			mu.Lock()
			report.Outcomes = append(report.Outcomes, PlatformOutcome{Platform: platform, Success: true})
			mu.Unlock()
			continue
		}
		platform := platform
		req := PublishRequest{
			ProductID:            in.Identity.ProductID,
			Platform:             platform,
			PlatformConnectionID: in.Connections[platform],
			Locations:            locationsFor(in.Inventory[platform]),
			Options:              optionsFor(in.Drafts[platform]),
		}
		g.Go(func() error {
			outcome := PlatformOutcome{Platform: platform}
			res, err := o.publisher.Publish(ctx, req)
			switch {
			case err != nil:
				outcome.Error = err.Error()
			case res == nil || !res.Success:
				outcome.Error = "publish was not accepted"
			default:
				outcome.Success = true
				outcome.OperationID = res.OperationID
			}
			if outcome.Success {
				o.log.Info("平台发布成功", zap.String("platform", platform), zap.String("operation_id", outcome.OperationID))
			} else {
				o.log.Warn("平台发布失败", zap.String("platform", platform), zap.String("error", outcome.Error))
			}
			mu.Lock()
			report.Outcomes = append(report.Outcomes, outcome)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	// 恢复平台原始顺序
	ordered := make([]PlatformOutcome, 0, len(report.Outcomes))
	for _, p := range in.Platforms {
		for _, oc := range report.Outcomes {
			if oc.Platform == p {
				ordered = append(ordered, oc)
				break
			}
		}
	}
	report.Outcomes = ordered
	return report, nil
}

func locationsFor(locs []LocationInventory) []LocationQuantity {
	out := make([]LocationQuantity, 0, len(locs))
	for _, l := range locs {
		out = append(out, LocationQuantity{LocationID: l.LocationID, Quantity: l.Quantity})
	}
	return out
}

func optionsFor(d *PlatformDraft) PublishOptions {
	opts := PublishOptions{Status: DefaultDraftStatus, Tags: []string{}}
	if d == nil {
		return opts
	}
	if d.Base.Status != "" {
		opts.Status = d.Base.Status
	}
	if d.Shopify != nil {
		opts.Vendor = d.Shopify.Vendor
		opts.ProductType = d.Shopify.ProductType
	}
	if tags := d.Tags(); tags != nil {
		opts.Tags = tags
	}
	return opts
}
