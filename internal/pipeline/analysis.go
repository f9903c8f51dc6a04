package pipeline

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
)

// AnalyzeRequest 分析请求
type AnalyzeRequest struct {
	ImageURIs         []string `json:"imageUris"`
	SelectedPlatforms []string `json:"selectedPlatforms"`
}

// AnalyzeResult 分析结果；NoMatches 表示服务明确返回无视觉匹配
type AnalyzeResult struct {
	Identity      ProductIdentity
	GeneratedText string
	NoMatches     bool
}

// Analyzer 远端分析服务
type Analyzer interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error)
}

// ParseVisualMatches 解析分析服务返回的视觉匹配文本。
// 支持裸数组、{visual_matches:[...]} 包装以及 markdown 代码块包裹。
func ParseVisualMatches(text string) ([]VisualMatchCandidate, error) {
	text = stripCodeFence(strings.TrimSpace(text))
	if text == "" {
		return nil, nil
	}

	var list []rawMatch
	if strings.HasPrefix(text, "[") {
		if err := json.Unmarshal([]byte(text), &list); err != nil {
			return nil, err
		}
	} else {
		var wrapped struct {
			VisualMatches []rawMatch `json:"visual_matches"`
			Matches       []rawMatch `json:"visualMatches"`
		}
		if err := json.Unmarshal([]byte(text), &wrapped); err != nil {
			return nil, err
		}
		list = wrapped.VisualMatches
		if len(list) == 0 {
			list = wrapped.Matches
		}
	}

	out := make([]VisualMatchCandidate, 0, len(list))
	for i, m := range list {
		pos := m.Position.int()
		if pos <= 0 {
			pos = i + 1
		}
		out = append(out, VisualMatchCandidate{
			Position:     pos,
			Title:        m.Title,
			SourceLabel:  m.Source,
			Link:         m.Link,
			PriceHint:    m.Price.text(),
			ThumbnailURL: m.Thumbnail,
		})
	}
	return out, nil
}

type rawMatch struct {
	Position  looseInt   `json:"position"`
	Title     string     `json:"title"`
	Source    string     `json:"source"`
	Link      string     `json:"link"`
	Price     loosePrice `json:"price"`
	Thumbnail string     `json:"thumbnail"`
}

// looseInt 接受数字或数字字符串
type looseInt json.RawMessage

func (l *looseInt) UnmarshalJSON(b []byte) error {
	*l = append((*l)[:0], b...)
	return nil
}

func (l looseInt) int() int {
	s := strings.Trim(string(l), `" `)
	n, err := strconv.Atoi(s)
	if err != nil {
		if f, ferr := strconv.ParseFloat(s, 64); ferr == nil {
			return int(f)
		}
		return 0
	}
	return n
}

// loosePrice 接受字符串或 {value, extracted_value} 对象
type loosePrice struct {
	value string
}

func (p *loosePrice) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		p.value = s
		return nil
	}
	var obj struct {
		Value          string  `json:"value"`
		ExtractedValue float64 `json:"extracted_value"`
		Currency       string  `json:"currency"`
	}
	if err := json.Unmarshal(b, &obj); err == nil {
		p.value = obj.Value
		if p.value == "" && obj.ExtractedValue > 0 {
			p.value = strconv.FormatFloat(obj.ExtractedValue, 'f', 2, 64)
		}
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		p.value = strconv.FormatFloat(f, 'f', 2, 64)
	}
	return nil
}

func (p loosePrice) text() string { return p.value }

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
