package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"listing_studio_v1/internal/model"
	"listing_studio_v1/internal/pipeline"
)

// PublishService 调用后端的多平台发布与仓库查询接口
type PublishService struct {
	client   *resty.Client
	recorder *CallRecorder
	log      *zap.Logger
}

func NewPublishService(client *resty.Client, recorder *CallRecorder, log *zap.Logger) *PublishService {
	if log == nil {
		log = zap.NewNop()
	}
	return &PublishService{client: client, recorder: recorder, log: log.Named("PublishAPI")}
}

// ==================== 发布 ====================

type publishBody struct {
	PlatformConnectionID string                      `json:"platformConnectionId"`
	Locations            []pipeline.LocationQuantity `json:"locations"`
	Options              pipeline.PublishOptions     `json:"options"`
}

func (s *PublishService) Publish(ctx context.Context, req pipeline.PublishRequest) (res *pipeline.PublishResult, err error) {
	start := time.Now()
	defer func() {
		s.recorder.Record(ctx, CallEntry{
			CallType: model.AICallTypePublish,
			Provider: "http",
			Platform: req.Platform,
			Started:  start,
			Err:      err,
		})
	}()

	locations := req.Locations
	if locations == nil {
		locations = []pipeline.LocationQuantity{}
	}

	var result pipeline.PublishResult
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"productId": req.ProductID,
			"platform":  req.Platform,
		}).
		SetBody(publishBody{
			PlatformConnectionID: req.PlatformConnectionID,
			Locations:            locations,
			Options:              req.Options,
		}).
		SetResult(&result).
		Post("/products/{productId}/publish/{platform}")
	if err != nil {
		return nil, fmt.Errorf("发布请求发送失败: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("发布到 %s 失败 (Status %d): %s", req.Platform, resp.StatusCode(), truncate(resp.String(), 300))
	}
	if !result.Success {
		return &result, fmt.Errorf("发布到 %s 未被接受", req.Platform)
	}
	return &result, nil
}

// ==================== 仓库 ====================

type remoteLocation struct {
	ID          string          `json:"id"`
	LocationID  string          `json:"locationId"`
	Name        string          `json:"name"`
	DisplayName string          `json:"displayName"`
	Address     json.RawMessage `json:"address"`
	Quantity    int             `json:"quantity"`
}

type locationsResp struct {
	Locations []remoteLocation `json:"locations"`
}

func (s *PublishService) Locations(ctx context.Context, platform, connectionID string) (out []pipeline.LocationInventory, err error) {
	start := time.Now()
	defer func() {
		s.recorder.Record(ctx, CallEntry{
			CallType: model.AICallTypeLocations,
			Provider: "http",
			Platform: platform,
			Started:  start,
			Err:      err,
		})
	}()

	var body locationsResp
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("platform", platform).
		SetQueryParam("platformConnectionId", connectionID).
		SetResult(&body).
		Get("/products/{platform}/locations")
	if err != nil {
		return nil, fmt.Errorf("仓库查询发送失败: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("仓库查询失败 (Status %d): %s", resp.StatusCode(), truncate(resp.String(), 300))
	}

	out = make([]pipeline.LocationInventory, 0, len(body.Locations))
	for _, l := range body.Locations {
		id := l.LocationID
		if id == "" {
			id = l.ID
		}
		if id == "" {
			continue
		}
		name := l.DisplayName
		if name == "" {
			name = l.Name
		}
		out = append(out, pipeline.LocationInventory{
			LocationID:  id,
			DisplayName: name,
			Address:     formatAddress(l.Address),
			Quantity:    l.Quantity,
		})
	}
	return out, nil
}

// formatAddress 地址可能是字符串或对象
func formatAddress(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	var parts []string
	for _, k := range []string{"address1", "address2", "city", "province", "zip", "country"} {
		if v, ok := obj[k].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}
