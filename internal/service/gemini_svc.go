package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"listing_studio_v1/internal/model"
	"listing_studio_v1/internal/pipeline"
)

// GeminiGenerator 直接用 Gemini 生成多平台草稿，替代后端的 /generate-details
type GeminiGenerator struct {
	apiKey   string
	model    string
	reader   pipeline.MediaReader
	recorder *CallRecorder
	log      *zap.Logger
}

// NewGeminiGenerator reader 用于读取封面图作为多模态输入，可为 nil
func NewGeminiGenerator(apiKey, modelName string, reader pipeline.MediaReader, recorder *CallRecorder, log *zap.Logger) *GeminiGenerator {
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &GeminiGenerator{
		apiKey:   apiKey,
		model:    modelName,
		reader:   reader,
		recorder: recorder,
		log:      log.Named("Gemini"),
	}
}

func (g *GeminiGenerator) Generate(ctx context.Context, req pipeline.GenerateRequest) (raw json.RawMessage, err error) {
	start := time.Now()
	defer func() {
		g.recorder.Record(ctx, CallEntry{
			CallType:  model.AICallTypeGenerate,
			Provider:  "gemini",
			VariantID: req.VariantID,
			Started:   start,
			Err:       err,
		})
	}()

	if g.apiKey == "" {
		return nil, fmt.Errorf("Gemini API Key 未配置")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return nil, fmt.Errorf("Gemini 初始化失败: %w", err)
	}
	defer client.Close()

	modelAI := client.GenerativeModel(g.model)
	modelAI.ResponseMIMEType = "application/json"

	parts := []genai.Part{genai.Text(buildGenerationPrompt(req))}
	if cover := g.coverImage(ctx, req); cover != nil {
		parts = append(parts, cover)
	}

	resp, err := modelAI.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("AI 生成失败: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("AI 返回为空")
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text = string(txt)
			break
		}
	}
	return cleanModelJSON(text)
}

// coverImage 读取失败时退化为纯文本提示
func (g *GeminiGenerator) coverImage(ctx context.Context, req pipeline.GenerateRequest) genai.Part {
	if g.reader == nil || len(req.ImageURIs) == 0 {
		return nil
	}
	idx := req.CoverImageIndex
	if idx < 0 || idx >= len(req.ImageURIs) {
		idx = 0
	}
	uri := req.ImageURIs[idx]
	data, err := g.reader.Read(ctx, uri)
	if err != nil {
		g.log.Warn("读取封面图失败", zap.String("uri", uri), zap.Error(err))
		return nil
	}
	format := strings.TrimPrefix(pipeline.MimeTypeOf(extFromURI(uri), pipeline.MediaImage), "image/")
	return genai.ImageData(format, data)
}

func buildGenerationPrompt(req pipeline.GenerateRequest) string {
	var b strings.Builder
	b.WriteString("You write marketplace listings. Produce one listing draft per platform for the product in the photos.\n")
	fmt.Fprintf(&b, "Platforms: %s\n", strings.Join(req.SelectedPlatforms, ", "))
	if m := req.SelectedMatch; m != nil {
		fmt.Fprintf(&b, "The seller identified the product as: %q (source: %s, %s)\n", m.Title, m.Source, m.Link)
	} else {
		b.WriteString("No reference product was selected; rely on the images only.\n")
	}
	if len(req.ImageURIs) > 0 {
		fmt.Fprintf(&b, "Image URLs (cover first): %s\n", strings.Join(req.ImageURIs, ", "))
	}
	b.WriteString(`
Output Schema (JSON object keyed by platform):
{
  "<platform>": {
    "title": "string", "description": "string", "price": number,
    "compareAtPrice": number, "sku": "string", "barcode": "string",
    "status": "draft", "brand": "string", "condition": "string",
    "weight": number, "weightUnit": "string", "categorySuggestion": "string",
    "vendor": "string", "productType": "string", "tags": ["string"],
    "bulletPoints": ["string"], "searchTerms": ["string"]
  }
}
Only include vendor/productType/tags for shopify and bulletPoints/searchTerms for amazon.`)
	return b.String()
}

// cleanModelJSON 去掉可能存在的 markdown 代码块
func cleanModelJSON(text string) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if !json.Valid([]byte(text)) {
		return nil, fmt.Errorf("%w: %s", pipeline.ErrInvalidGeneration, truncate(text, 200))
	}
	return json.RawMessage(text), nil
}

func extFromURI(uri string) string {
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		uri = uri[:i]
	}
	if i := strings.LastIndex(uri, "."); i >= 0 && !strings.Contains(uri[i:], "/") {
		return strings.ToLower(uri[i:])
	}
	return ""
}
