package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidGeneration 生成结果不是对象
var ErrInvalidGeneration = errors.New("generation service returned no listing details")

// MatchContext 发送给生成服务的精简候选
type MatchContext struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	Link     string `json:"link"`
	Source   string `json:"source"`
}

// GenerateRequest 生成请求
type GenerateRequest struct {
	ProductID         string        `json:"productId"`
	VariantID         string        `json:"variantId"`
	ImageURIs         []string      `json:"imageUris"`
	CoverImageIndex   int           `json:"coverImageIndex"`
	SelectedPlatforms []string      `json:"selectedPlatforms"`
	SelectedMatch     *MatchContext `json:"selectedMatch,omitempty"`
}

// Generator 远端生成服务，返回 generatedDetails 原文
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (json.RawMessage, error)
}

// MinimizeCandidate 只保留 position/title/link/source
func MinimizeCandidate(c *VisualMatchCandidate) *MatchContext {
	if c == nil {
		return nil
	}
	return &MatchContext{Position: c.Position, Title: c.Title, Link: c.Link, Source: c.SourceLabel}
}

// DecodeGenerated 校验并解析生成结果，缺失的已选平台补空草稿
func DecodeGenerated(raw json.RawMessage, platforms []string) (DraftMap, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrInvalidGeneration
	}
	var drafts DraftMap
	if err := json.Unmarshal(trimmed, &drafts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGeneration, err)
	}
	for _, p := range platforms {
		if drafts[p] == nil {
			drafts[p] = NewPlatformDraft(p)
		}
	}
	return drafts, nil
}
