package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fptr(f float64) *float64 { return &f }

func TestCoerce(t *testing.T) {
	tests := []struct {
		name  string
		field string
		raw   string
		want  any
	}{
		{"价格数字", "price", "19.99", fptr(19.99)},
		{"价格带空白", "price", " 5 ", fptr(5)},
		{"价格非法", "price", "abc", (*float64)(nil)},
		{"价格为空", "price", "", (*float64)(nil)},
		{"拒绝 NaN", "weight", "NaN", (*float64)(nil)},
		{"拒绝 Inf", "compareAtPrice", "Inf", (*float64)(nil)},
		{"标签列表", "tags", "a, b,,c", []string{"a", "b", "c"}},
		{"空列表", "searchTerms", " , ", []string{}},
		{"普通字符串", "title", "  Mug  ", "  Mug  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Coerce(tt.field, tt.raw))
			// 纯函数：两次结果一致
			assert.Equal(t, Coerce(tt.field, tt.raw), Coerce(tt.field, tt.raw))
		})
	}
}

func TestListingFormState_UpdateField(t *testing.T) {
	f := NewListingFormState(PlatformShopify)
	f.SetPlatforms([]string{PlatformShopify, PlatformAmazon})

	require.NoError(t, f.UpdateField(PlatformShopify, "price", "abc"))
	d, _ := f.Draft(PlatformShopify)
	assert.Nil(t, d.Base.Price)

	require.NoError(t, f.UpdateField(PlatformShopify, "tags", "a, b,,c"))
	assert.Equal(t, []string{"a", "b", "c"}, d.Shopify.Tags)

	require.NoError(t, f.UpdateField(PlatformAmazon, "bulletPoints", "soft, warm"))
	a, _ := f.Draft(PlatformAmazon)
	assert.Equal(t, []string{"soft", "warm"}, a.Amazon.BulletPoints)

	// 其他平台的扩展字段落入 Extra
	require.NoError(t, f.UpdateField(PlatformAmazon, "vendor", "Acme"))
	assert.Equal(t, "Acme", a.Extra["vendor"])

	err := f.UpdateField(PlatformEbay, "title", "x")
	assert.ErrorIs(t, err, ErrUnknownPlatform)
}

func TestListingFormState_AddRemovePlatform(t *testing.T) {
	f := NewListingFormState(PlatformShopify)
	f.SetPlatforms([]string{PlatformShopify})
	require.NoError(t, f.UpdateField(PlatformShopify, "title", "Mug"))
	require.NoError(t, f.UpdateField(PlatformShopify, "price", "12"))
	require.NoError(t, f.UpdateField(PlatformShopify, "vendor", "Acme"))

	require.NoError(t, f.AddPlatform(PlatformAmazon))
	a, ok := f.Draft(PlatformAmazon)
	require.True(t, ok)
	assert.Equal(t, "Mug", a.Base.Title)
	assert.Equal(t, 12.0, *a.Base.Price)
	assert.Equal(t, DefaultDraftStatus, a.Base.Status)
	assert.Nil(t, a.Extra, "平台专属字段不复制")

	assert.Equal(t, []string{PlatformShopify, PlatformAmazon}, f.Platforms())

	require.NoError(t, f.RemovePlatform(PlatformShopify))
	assert.Equal(t, []string{PlatformAmazon}, f.Platforms())
	assert.Equal(t, PlatformAmazon, f.Active())
	assert.ErrorIs(t, f.RemovePlatform(PlatformAmazon), ErrLastPlatform)
}

func TestListingFormState_InitializeFrom(t *testing.T) {
	tests := []struct {
		name       string
		src        InitSource
		wantKeys   []string
		checkTitle map[string]string
	}{
		{
			name: "平台键控 Options",
			src: InitSource{
				Kind:      SourceStored,
				Options:   []byte(`{"shopify":{"title":"A","price":"9.5","tags":["x"]},"amazon":{"title":"B","bulletPoints":"p1, p2","custom":1}}`),
				Platforms: []string{PlatformShopify},
			},
			wantKeys:   []string{PlatformShopify, PlatformAmazon},
			checkTitle: map[string]string{PlatformShopify: "A", PlatformAmazon: "B"},
		},
		{
			name: "旧版扁平结构归到第一个已选平台",
			src: InitSource{
				Kind:      SourceStored,
				Options:   []byte(`{"title":"Legacy","price":3}`),
				Platforms: []string{PlatformAmazon, PlatformShopify},
			},
			wantKeys:   []string{PlatformAmazon, PlatformShopify},
			checkTitle: map[string]string{PlatformAmazon: "Legacy", PlatformShopify: ""},
		},
		{
			name: "Options 为空时使用顶层列",
			src: InitSource{
				Kind:     SourceStored,
				Fallback: BaseFields{Title: "Column"},
			},
			wantKeys:   []string{PlatformShopify},
			checkTitle: map[string]string{PlatformShopify: "Column"},
		},
		{
			name: "调试种子",
			src: InitSource{
				Kind:      SourceSeed,
				Drafts:    DraftMap{PlatformEbay: {Platform: PlatformEbay, Base: BaseFields{Title: "Seed"}}},
				Platforms: []string{PlatformShopify},
			},
			wantKeys:   []string{PlatformShopify, PlatformEbay},
			checkTitle: map[string]string{PlatformEbay: "Seed", PlatformShopify: ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewListingFormState(PlatformShopify)
			require.NoError(t, f.InitializeFrom(tt.src))

			assert.Equal(t, tt.wantKeys, f.Platforms())
			for _, p := range f.Platforms() {
				d, ok := f.Draft(p)
				assert.True(t, ok)
				assert.NotNil(t, d, "已选平台必须有草稿")
			}
			for p, title := range tt.checkTitle {
				d, _ := f.Draft(p)
				assert.Equal(t, title, d.Base.Title)
			}
		})
	}
}

func TestPlatformDraft_JSONRoundTripKeepsExtras(t *testing.T) {
	f := NewListingFormState(PlatformShopify)
	require.NoError(t, f.InitializeFrom(InitSource{
		Kind:    SourceStored,
		Options: []byte(`{"amazon":{"title":"B","bulletPoints":"p1, p2","custom":1}}`),
	}))

	a, _ := f.Draft(PlatformAmazon)
	assert.Equal(t, []string{"p1", "p2"}, a.Amazon.BulletPoints)
	assert.Equal(t, float64(1), a.Extra["custom"])

	data, err := f.Options()
	require.NoError(t, err)

	var back map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "B", back["amazon"]["title"])
	assert.Equal(t, float64(1), back["amazon"]["custom"])
	assert.Equal(t, []any{"p1", "p2"}, back["amazon"]["bulletPoints"])
}
