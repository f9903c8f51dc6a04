package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"listing_studio_v1/internal/model"
	"listing_studio_v1/internal/pipeline"
)

// noMatchMarkers 分析服务表示“没有视觉匹配”的消息片段
var noMatchMarkers = []string{"no visual matches", "no matches found", "no visual match"}

// ListingAIService 调用上架后端的分析与生成接口
type ListingAIService struct {
	client   *resty.Client
	recorder *CallRecorder
	log      *zap.Logger
}

// NewListingAIService client 需已设置 BaseURL 与鉴权
func NewListingAIService(client *resty.Client, recorder *CallRecorder, log *zap.Logger) *ListingAIService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ListingAIService{client: client, recorder: recorder, log: log.Named("ListingAI")}
}

// ==================== 分析 ====================

type analyzeResp struct {
	Product struct {
		ID string `json:"Id"`
	} `json:"product"`
	Variant struct {
		ID string `json:"Id"`
	} `json:"variant"`
	Analysis struct {
		GeneratedText string `json:"GeneratedText"`
	} `json:"analysis"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Analyze 404 或“无匹配”消息视为成功的空结果
func (s *ListingAIService) Analyze(ctx context.Context, req pipeline.AnalyzeRequest) (res *pipeline.AnalyzeResult, err error) {
	start := time.Now()
	status := ""
	defer func() {
		s.recorder.Record(ctx, CallEntry{
			CallType: model.AICallTypeAnalyze,
			Provider: "http",
			Status:   status,
			Started:  start,
			Err:      err,
		})
	}()

	var body analyzeResp
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&body).
		SetError(&body).
		Post("/analyze")
	if err != nil {
		return nil, fmt.Errorf("分析请求发送失败: %w", err)
	}

	identity := pipeline.ProductIdentity{ProductID: body.Product.ID, VariantID: body.Variant.ID}
	if resp.StatusCode() == http.StatusNotFound || isNoMatch(body.Message, body.Error) {
		status = model.AICallStatusNoMatch
		s.log.Info("分析服务未找到视觉匹配", zap.Int("status", resp.StatusCode()))
		return &pipeline.AnalyzeResult{Identity: identity, NoMatches: true}, nil
	}
	if resp.IsError() {
		return nil, fmt.Errorf("分析服务错误 (Status %d): %s", resp.StatusCode(), truncate(resp.String(), 300))
	}

	return &pipeline.AnalyzeResult{
		Identity:      identity,
		GeneratedText: body.Analysis.GeneratedText,
	}, nil
}

func isNoMatch(texts ...string) bool {
	for _, t := range texts {
		t = strings.ToLower(t)
		for _, m := range noMatchMarkers {
			if strings.Contains(t, m) {
				return true
			}
		}
	}
	return false
}

// ==================== 生成 ====================

type generateResp struct {
	GeneratedDetails json.RawMessage `json:"generatedDetails"`
}

// Generate 返回 generatedDetails 原文，由调用方解析
func (s *ListingAIService) Generate(ctx context.Context, req pipeline.GenerateRequest) (raw json.RawMessage, err error) {
	start := time.Now()
	defer func() {
		s.recorder.Record(ctx, CallEntry{
			CallType:  model.AICallTypeGenerate,
			Provider:  "http",
			VariantID: req.VariantID,
			Started:   start,
			Err:       err,
		})
	}()

	var body generateResp
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&body).
		Post("/generate-details")
	if err != nil {
		return nil, fmt.Errorf("生成请求发送失败: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("生成服务错误 (Status %d): %s", resp.StatusCode(), truncate(resp.String(), 300))
	}
	if len(body.GeneratedDetails) == 0 || string(body.GeneratedDetails) == "null" {
		return nil, pipeline.ErrInvalidGeneration
	}
	return body.GeneratedDetails, nil
}
