package pipeline

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// ==================== 平台常量 ====================

const (
	PlatformShopify = "shopify"
	PlatformAmazon  = "amazon"
	PlatformEbay    = "ebay"
	PlatformEtsy    = "etsy"
)

// DefaultDraftStatus 新增平台时的默认状态
const DefaultDraftStatus = "draft"

// ==================== 草稿结构 ====================

// BaseFields 所有平台共有字段
type BaseFields struct {
	Title              string   `json:"title,omitempty"`
	Description        string   `json:"description,omitempty"`
	Price              *float64 `json:"price,omitempty"`
	CompareAtPrice     *float64 `json:"compareAtPrice,omitempty"`
	Sku                string   `json:"sku,omitempty"`
	Barcode            string   `json:"barcode,omitempty"`
	Status             string   `json:"status,omitempty"`
	Brand              string   `json:"brand,omitempty"`
	Condition          string   `json:"condition,omitempty"`
	Weight             *float64 `json:"weight,omitempty"`
	WeightUnit         string   `json:"weightUnit,omitempty"`
	CategorySuggestion string   `json:"categorySuggestion,omitempty"`
}

// ShopifyFields Shopify 扩展字段
type ShopifyFields struct {
	Vendor      string   `json:"vendor,omitempty"`
	ProductType string   `json:"productType,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// AmazonFields Amazon 扩展字段
type AmazonFields struct {
	BulletPoints []string `json:"bulletPoints,omitempty"`
	SearchTerms  []string `json:"searchTerms,omitempty"`
}

// PlatformDraft 单个平台的可编辑草稿：共有字段 + 平台扩展 + 未识别字段
type PlatformDraft struct {
	Platform string         `json:"-"`
	Base     BaseFields     `json:"-"`
	Shopify  *ShopifyFields `json:"-"`
	Amazon   *AmazonFields  `json:"-"`
	Extra    map[string]any `json:"-"`
}

// NewPlatformDraft 创建空草稿
func NewPlatformDraft(platform string) *PlatformDraft {
	d := &PlatformDraft{Platform: platform}
	switch platform {
	case PlatformShopify:
		d.Shopify = &ShopifyFields{}
	case PlatformAmazon:
		d.Amazon = &AmazonFields{}
	}
	return d
}

// Clone 深拷贝
func (d *PlatformDraft) Clone() *PlatformDraft {
	if d == nil {
		return nil
	}
	out := &PlatformDraft{Platform: d.Platform, Base: d.Base}
	out.Base.Price = cloneFloat(d.Base.Price)
	out.Base.CompareAtPrice = cloneFloat(d.Base.CompareAtPrice)
	out.Base.Weight = cloneFloat(d.Base.Weight)
	if d.Shopify != nil {
		s := *d.Shopify
		s.Tags = append([]string(nil), d.Shopify.Tags...)
		out.Shopify = &s
	}
	if d.Amazon != nil {
		a := *d.Amazon
		a.BulletPoints = append([]string(nil), d.Amazon.BulletPoints...)
		a.SearchTerms = append([]string(nil), d.Amazon.SearchTerms...)
		out.Amazon = &a
	}
	if d.Extra != nil {
		out.Extra = make(map[string]any, len(d.Extra))
		for k, v := range d.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Tags 发布时使用的标签
func (d *PlatformDraft) Tags() []string {
	if d.Shopify != nil {
		return d.Shopify.Tags
	}
	switch v := d.Extra["tags"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Apply 写入已转换的字段值；不属于本平台的扩展字段与未知字段进入 Extra
func (d *PlatformDraft) Apply(field string, value any) {
	owner := fieldOwner(field)
	if owner == "" || (owner != "*" && owner != d.Platform) {
		if d.Extra == nil {
			d.Extra = map[string]any{}
		}
		d.Extra[field] = value
		return
	}
	d.set(field, value)
}

// MarshalJSON 扁平化输出，扩展字段和未知字段与共有字段同级
func (d *PlatformDraft) MarshalJSON() ([]byte, error) {
	flat := map[string]any{}
	for k, v := range d.Extra {
		flat[k] = v
	}
	if err := mergeInto(flat, d.Base); err != nil {
		return nil, err
	}
	if d.Shopify != nil {
		if err := mergeInto(flat, d.Shopify); err != nil {
			return nil, err
		}
	}
	if d.Amazon != nil {
		if err := mergeInto(flat, d.Amazon); err != nil {
			return nil, err
		}
	}
	return json.Marshal(flat)
}

// UnmarshalJSON 宽松解析：价格等数值字段接受数字或数字字符串，列表字段接受数组或逗号分隔字符串。
// 调用前需设置 Platform 以决定扩展字段归属。
func (d *PlatformDraft) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	platform := d.Platform
	*d = *NewPlatformDraft(platform)

	for key, value := range raw {
		if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			continue
		}
		owner := fieldOwner(key)
		switch {
		case owner == "" || (owner != "*" && owner != platform):
			if d.Extra == nil {
				d.Extra = map[string]any{}
			}
			var v any
			if err := json.Unmarshal(value, &v); err != nil {
				return err
			}
			d.Extra[key] = v
		default:
			d.set(key, decodeLoose(fieldClassOf(key), value))
		}
	}
	return nil
}

// set 写入已识别字段，值已按字段类别转换
func (d *PlatformDraft) set(field string, value any) {
	b := &d.Base
	switch field {
	case "title":
		b.Title, _ = value.(string)
	case "description":
		b.Description, _ = value.(string)
	case "price":
		b.Price, _ = value.(*float64)
	case "compareAtPrice":
		b.CompareAtPrice, _ = value.(*float64)
	case "sku":
		b.Sku, _ = value.(string)
	case "barcode":
		b.Barcode, _ = value.(string)
	case "status":
		b.Status, _ = value.(string)
	case "brand":
		b.Brand, _ = value.(string)
	case "condition":
		b.Condition, _ = value.(string)
	case "weight":
		b.Weight, _ = value.(*float64)
	case "weightUnit":
		b.WeightUnit, _ = value.(string)
	case "categorySuggestion":
		b.CategorySuggestion, _ = value.(string)
	case "vendor", "productType", "tags":
		if d.Shopify == nil {
			d.Shopify = &ShopifyFields{}
		}
		switch field {
		case "vendor":
			d.Shopify.Vendor, _ = value.(string)
		case "productType":
			d.Shopify.ProductType, _ = value.(string)
		case "tags":
			d.Shopify.Tags, _ = value.([]string)
		}
	case "bulletPoints", "searchTerms":
		if d.Amazon == nil {
			d.Amazon = &AmazonFields{}
		}
		if field == "bulletPoints" {
			d.Amazon.BulletPoints, _ = value.([]string)
		} else {
			d.Amazon.SearchTerms, _ = value.([]string)
		}
	default:
		if d.Extra == nil {
			d.Extra = map[string]any{}
		}
		d.Extra[field] = value
	}
}

// fieldOwner 字段归属：* 为共有字段，平台名为扩展字段，空串为未知字段
func fieldOwner(field string) string {
	switch field {
	case "title", "description", "price", "compareAtPrice", "sku", "barcode",
		"status", "brand", "condition", "weight", "weightUnit", "categorySuggestion":
		return "*"
	case "vendor", "productType", "tags":
		return PlatformShopify
	case "bulletPoints", "searchTerms":
		return PlatformAmazon
	}
	return ""
}

// decodeLoose 按字段类别宽松解码服务端返回值
func decodeLoose(class FieldClass, value json.RawMessage) any {
	switch class {
	case ClassNumeric:
		var f float64
		if err := json.Unmarshal(value, &f); err == nil {
			return CoerceNumeric(strconv.FormatFloat(f, 'f', -1, 64))
		}
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			return CoerceNumeric(s)
		}
		return (*float64)(nil)
	case ClassList:
		var list []string
		if err := json.Unmarshal(value, &list); err == nil {
			return cleanList(list)
		}
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			return CoerceList(s)
		}
		return []string(nil)
	default:
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			return s
		}
		// 非字符串标量直接保留字面量
		return strings.Trim(string(value), `"`)
	}
}

func mergeInto(dst map[string]any, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	for k, val := range m {
		dst[k] = val
	}
	return nil
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// ==================== 草稿集合 ====================

// DraftMap 平台 -> 草稿
type DraftMap map[string]*PlatformDraft

// Clone 深拷贝
func (m DraftMap) Clone() DraftMap {
	out := make(DraftMap, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}

// Platforms 有序平台列表
func (m DraftMap) Platforms() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// UnmarshalJSON 逐平台解析，平台键决定扩展字段归属
func (m *DraftMap) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(DraftMap, len(raw))
	for platform, value := range raw {
		// 非对象（null、空串等）按空草稿处理
		trimmed := bytes.TrimSpace(value)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			out[platform] = NewPlatformDraft(platform)
			continue
		}
		d := &PlatformDraft{Platform: platform}
		if err := d.UnmarshalJSON(trimmed); err != nil {
			return err
		}
		out[platform] = d
	}
	*m = out
	return nil
}
