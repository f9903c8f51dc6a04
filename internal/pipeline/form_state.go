package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SourceKind 表单初始化来源
type SourceKind string

const (
	SourceGenerated SourceKind = "generated" // 新扫描生成结果
	SourceStored    SourceKind = "stored"    // 恢复已存草稿
	SourceSeed      SourceKind = "seed"      // 调试种子数据
)

// InitSource 表单初始化输入
type InitSource struct {
	Kind SourceKind
	// Options 已存储的 Options 列，可能是平台键控结构，也可能是旧版扁平结构
	Options []byte
	// Fallback Options 为空时使用的顶层列
	Fallback BaseFields
	Drafts   DraftMap
	// Platforms 已选平台，顺序有意义
	Platforms []string
}

// ListingFormState 每平台草稿的唯一内存写入方
type ListingFormState struct {
	drafts          DraftMap
	platforms       []string
	active          string
	defaultPlatform string
}

// NewListingFormState 创建表单状态
func NewListingFormState(defaultPlatform string) *ListingFormState {
	if defaultPlatform == "" {
		defaultPlatform = PlatformShopify
	}
	return &ListingFormState{drafts: DraftMap{}, defaultPlatform: defaultPlatform}
}

// SetPlatforms 平台选择阶段设置已选平台，为每个平台保证有草稿
func (f *ListingFormState) SetPlatforms(platforms []string) {
	f.platforms = dedupe(platforms)
	next := DraftMap{}
	for _, p := range f.platforms {
		if d, ok := f.drafts[p]; ok {
			next[p] = d
		} else {
			next[p] = NewPlatformDraft(p)
		}
	}
	f.drafts = next
	f.fixActive()
}

// UpdateField 修改单个字段，按字段类别转换输入
func (f *ListingFormState) UpdateField(platform, field, raw string) error {
	d, ok := f.drafts[platform]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlatform, platform)
	}
	d.Apply(field, Coerce(field, raw))
	return nil
}

// AddPlatform 新增平台，复制首个平台的标题/描述/价格/状态
func (f *ListingFormState) AddPlatform(key string) error {
	if key == "" {
		return ErrUnknownPlatform
	}
	if _, ok := f.drafts[key]; ok {
		return nil
	}
	d := NewPlatformDraft(key)
	d.Base.Status = DefaultDraftStatus
	if len(f.platforms) > 0 {
		if first := f.drafts[f.platforms[0]]; first != nil {
			d.Base.Title = first.Base.Title
			d.Base.Description = first.Base.Description
			d.Base.Price = cloneFloat(first.Base.Price)
			if first.Base.Status != "" {
				d.Base.Status = first.Base.Status
			}
		}
	}
	f.drafts[key] = d
	f.platforms = append(f.platforms, key)
	f.fixActive()
	return nil
}

// RemovePlatform 删除平台草稿与选择项
func (f *ListingFormState) RemovePlatform(key string) error {
	if _, ok := f.drafts[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlatform, key)
	}
	if len(f.platforms) <= 1 {
		return ErrLastPlatform
	}
	delete(f.drafts, key)
	kept := f.platforms[:0]
	for _, p := range f.platforms {
		if p != key {
			kept = append(kept, p)
		}
	}
	f.platforms = kept
	f.fixActive()
	return nil
}

// Replace 生成成功后整体替换草稿，缺失的已选平台补空草稿
func (f *ListingFormState) Replace(drafts DraftMap) {
	f.drafts = drafts.Clone()
	f.ensureSelected()
}

// InitializeFrom 从生成结果、已存草稿或调试种子初始化
func (f *ListingFormState) InitializeFrom(src InitSource) error {
	f.platforms = dedupe(src.Platforms)

	switch src.Kind {
	case SourceStored:
		drafts, err := f.decodeStored(src)
		if err != nil {
			return err
		}
		f.drafts = drafts
	default:
		f.drafts = src.Drafts.Clone()
		if f.drafts == nil {
			f.drafts = DraftMap{}
		}
	}

	for _, p := range f.drafts.Platforms() {
		if !contains(f.platforms, p) {
			f.platforms = append(f.platforms, p)
		}
	}
	if len(f.platforms) == 0 {
		f.platforms = []string{f.defaultPlatform}
	}
	f.ensureSelected()
	f.active = ""
	f.fixActive()
	return nil
}

func (f *ListingFormState) decodeStored(src InitSource) (DraftMap, error) {
	target := f.defaultPlatform
	if len(f.platforms) > 0 {
		target = f.platforms[0]
	}

	trimmed := bytes.TrimSpace(src.Options)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}")) {
		d := NewPlatformDraft(target)
		d.Base = src.Fallback
		return DraftMap{target: d}, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("解析草稿 Options 失败: %w", err)
	}
	if isPlatformKeyed(raw) {
		var drafts DraftMap
		if err := json.Unmarshal(trimmed, &drafts); err != nil {
			return nil, fmt.Errorf("解析平台草稿失败: %w", err)
		}
		return drafts, nil
	}

	// 旧版扁平结构，归到默认平台下
	d := &PlatformDraft{Platform: target}
	if err := d.UnmarshalJSON(trimmed); err != nil {
		return nil, fmt.Errorf("解析扁平草稿失败: %w", err)
	}
	return DraftMap{target: d}, nil
}

// isPlatformKeyed 所有值都是对象且没有任何已知字段名作键
func isPlatformKeyed(raw map[string]json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	for k, v := range raw {
		if fieldOwner(k) != "" {
			return false
		}
		v = bytes.TrimSpace(v)
		if len(v) == 0 || (v[0] != '{' && !bytes.Equal(v, []byte("null"))) {
			return false
		}
	}
	return true
}

// SetActive 设置用于顶层列投影的平台
func (f *ListingFormState) SetActive(platform string) error {
	if _, ok := f.drafts[platform]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlatform, platform)
	}
	f.active = platform
	return nil
}

// Active 当前活动平台
func (f *ListingFormState) Active() string { return f.active }

// ActiveDraft 活动平台草稿
func (f *ListingFormState) ActiveDraft() *PlatformDraft { return f.drafts[f.active] }

// Draft 指定平台草稿
func (f *ListingFormState) Draft(platform string) (*PlatformDraft, bool) {
	d, ok := f.drafts[platform]
	return d, ok
}

// Drafts 草稿深拷贝
func (f *ListingFormState) Drafts() DraftMap { return f.drafts.Clone() }

// Platforms 已选平台
func (f *ListingFormState) Platforms() []string {
	return append([]string(nil), f.platforms...)
}

// Options 整个草稿集合的 JSON，写入 Options 列
func (f *ListingFormState) Options() ([]byte, error) {
	return json.Marshal(f.drafts)
}

func (f *ListingFormState) ensureSelected() {
	for _, p := range f.platforms {
		if f.drafts[p] == nil {
			f.drafts[p] = NewPlatformDraft(p)
		}
	}
}

func (f *ListingFormState) fixActive() {
	if _, ok := f.drafts[f.active]; ok && f.active != "" {
		return
	}
	f.active = ""
	if len(f.platforms) > 0 {
		f.active = f.platforms[0]
	}
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if p != "" && !contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
