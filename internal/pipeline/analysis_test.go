package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVisualMatches(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantLen   int
		wantFirst VisualMatchCandidate
		wantErr   bool
	}{
		{
			name:    "裸数组",
			text:    `[{"position":1,"title":"Mug","source":"Etsy","link":"https://x/1","price":"$9"}]`,
			wantLen: 1,
			wantFirst: VisualMatchCandidate{
				Position: 1, Title: "Mug", SourceLabel: "Etsy", Link: "https://x/1", PriceHint: "$9",
			},
		},
		{
			name:      "visual_matches 包装与字符串 position",
			text:      `{"visual_matches":[{"position":"3","title":"Lamp","price":{"extracted_value":12.5}}]}`,
			wantLen:   1,
			wantFirst: VisualMatchCandidate{Position: 3, Title: "Lamp", PriceHint: "12.50"},
		},
		{
			name:      "驼峰包装",
			text:      `{"visualMatches":[{"title":"Cup","thumbnail":"https://t/1.jpg"}]}`,
			wantLen:   1,
			wantFirst: VisualMatchCandidate{Position: 1, Title: "Cup", ThumbnailURL: "https://t/1.jpg"},
		},
		{
			name:      "代码块包裹",
			text:      "```json\n[{\"position\":2,\"title\":\"Vase\",\"price\":30}]\n```",
			wantLen:   1,
			wantFirst: VisualMatchCandidate{Position: 2, Title: "Vase", PriceHint: "30.00"},
		},
		{name: "空文本", text: "   ", wantLen: 0},
		{name: "非 JSON", text: "no matches here", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVisualMatches(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, got, tt.wantLen)
			if tt.wantLen > 0 {
				assert.Equal(t, tt.wantFirst, got[0])
			}
		})
	}
}

func TestMinimizeCandidate(t *testing.T) {
	assert.Nil(t, MinimizeCandidate(nil))

	c := &VisualMatchCandidate{Position: 4, Title: "Bowl", SourceLabel: "Shop", Link: "https://b", PriceHint: "$3", ThumbnailURL: "https://t"}
	raw, err := json.Marshal(MinimizeCandidate(c))
	require.NoError(t, err)
	assert.JSONEq(t, `{"position":4,"title":"Bowl","link":"https://b","source":"Shop"}`, string(raw))
}

func TestDecodeGenerated(t *testing.T) {
	t.Run("补齐缺失平台", func(t *testing.T) {
		drafts, err := DecodeGenerated(json.RawMessage(`{"shopify":{"title":"Mug","vendor":"Acme"}}`), []string{PlatformShopify, PlatformAmazon})
		require.NoError(t, err)
		require.Len(t, drafts, 2)
		assert.Equal(t, "Mug", drafts[PlatformShopify].Base.Title)
		require.NotNil(t, drafts[PlatformShopify].Shopify)
		assert.Equal(t, "Acme", drafts[PlatformShopify].Shopify.Vendor)
		assert.Equal(t, PlatformAmazon, drafts[PlatformAmazon].Platform)
	})

	t.Run("单个平台非对象时补空草稿", func(t *testing.T) {
		raw := json.RawMessage(`{"shopify":{"title":"Mug"},"amazon":"","ebay":null,"etsy":[1]}`)
		drafts, err := DecodeGenerated(raw, []string{PlatformShopify, PlatformAmazon})
		require.NoError(t, err)
		assert.Equal(t, "Mug", drafts[PlatformShopify].Base.Title)
		for _, p := range []string{PlatformAmazon, "ebay", "etsy"} {
			require.NotNil(t, drafts[p], p)
			assert.Equal(t, p, drafts[p].Platform)
			assert.Empty(t, drafts[p].Base.Title)
		}
	})

	t.Run("非对象拒绝", func(t *testing.T) {
		for _, raw := range []string{``, `null`, `[]`, `"text"`} {
			_, err := DecodeGenerated(json.RawMessage(raw), []string{PlatformShopify})
			assert.ErrorIs(t, err, ErrInvalidGeneration, raw)
		}
	})
}
