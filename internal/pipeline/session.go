package pipeline

import (
	"time"
)

// SessionOrigin 会话来源
type SessionOrigin string

const (
	OriginNew     SessionOrigin = "new"
	OriginResumed SessionOrigin = "resumed"
)

// PipelineSession 一次上架流程的全部内存状态，只由 StageMachine 在持锁时修改
type PipelineSession struct {
	ID       string
	OwnerID  string
	Origin   SessionOrigin
	ReturnTo string

	Stage     Stage
	Loading   string
	LastError *PipelineError

	Media    *MediaStore
	Uploaded []UploadedAsset
	// uploadedBy 媒体 ID -> 已上传资源，避免重复上传
	uploadedBy map[string]UploadedAsset
	// LastSkipped 最近一次上传批次中未成功的项
	LastSkipped []ItemResult
	// coverRejected 封面上传失败后必须重新选择封面
	coverRejected bool
	// editingMedia 从表单页回到图片页补充媒体
	editingMedia bool
	// coverChosen 用户显式指定过封面
	coverChosen bool

	Identity   ProductIdentity
	Candidates []VisualMatchCandidate
	// Selected 选中的候选 position，0 表示未选
	Selected int

	Form        *ListingFormState
	Inventory   map[string][]LocationInventory
	Connections map[string]string
	Published   map[string]bool
	LastPublish *PublishReport

	CreatedAt time.Time
	UpdatedAt time.Time
}

func newSession(id, owner string, maxMedia int, defaultPlatform string, now time.Time) *PipelineSession {
	return &PipelineSession{
		ID:          id,
		OwnerID:     owner,
		Origin:      OriginNew,
		Stage:       StagePlatformSelection,
		Media:       NewMediaStore(maxMedia),
		uploadedBy:  map[string]UploadedAsset{},
		Form:        NewListingFormState(defaultPlatform),
		Inventory:   map[string][]LocationInventory{},
		Connections: map[string]string{},
		Published:   map[string]bool{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ==================== 视觉匹配选择 ====================

// ToggleCandidate 选择候选；再次选择同一候选取消选择
func (s *PipelineSession) ToggleCandidate(position int) error {
	if s.candidate(position) == nil {
		return ErrCandidateNotFound
	}
	if s.Selected == position {
		s.Selected = 0
		return nil
	}
	s.Selected = position
	return nil
}

// SelectedCandidate 当前选中的候选
func (s *PipelineSession) SelectedCandidate() *VisualMatchCandidate {
	if s.Selected == 0 {
		return nil
	}
	return s.candidate(s.Selected)
}

func (s *PipelineSession) candidate(position int) *VisualMatchCandidate {
	for i := range s.Candidates {
		if s.Candidates[i].Position == position {
			return &s.Candidates[i]
		}
	}
	return nil
}

// ==================== 图片顺序 ====================

// ImageURLs 当前上传资源顺序，下标 0 为封面
func (s *PipelineSession) ImageURLs() []string {
	urls := make([]string, 0, len(s.Uploaded))
	for _, a := range s.Uploaded {
		urls = append(urls, a.RemoteURL)
	}
	return urls
}

// rebuildUploaded 按封面优先的媒体顺序重建资源列表。
// 恢复草稿时带入的历史图片保持原封面，除非用户重新指定了封面。
func (s *PipelineSession) rebuildUploaded() {
	var stored []UploadedAsset
	for _, a := range s.Uploaded {
		if a.SourceMediaID == "" {
			stored = append(stored, a)
		}
	}

	out := make([]UploadedAsset, 0, len(s.Uploaded))
	items := s.Media.CoverFirst()
	rest := items
	if len(stored) > 0 && !s.coverChosen {
		out = append(out, stored...)
		for _, it := range items {
			if a, ok := s.uploadedBy[it.ID]; ok {
				out = append(out, a)
			}
		}
		s.Uploaded = out
		return
	}
	if cover, ok := s.Media.Cover(); ok {
		if a, ok := s.uploadedBy[cover.ID]; ok {
			out = append(out, a)
		}
		rest = items[1:]
	}
	out = append(out, stored...)
	for _, it := range rest {
		if a, ok := s.uploadedBy[it.ID]; ok {
			out = append(out, a)
		}
	}
	s.Uploaded = out
}

// pendingUploads 尚未上传的媒体，封面优先
func (s *PipelineSession) pendingUploads() []MediaItem {
	var out []MediaItem
	for _, it := range s.Media.CoverFirst() {
		if _, ok := s.uploadedBy[it.ID]; !ok {
			out = append(out, it)
		}
	}
	return out
}

// dropAsset 删除媒体时同步移除其上传结果
func (s *PipelineSession) dropAsset(mediaID string) {
	delete(s.uploadedBy, mediaID)
	kept := s.Uploaded[:0]
	for _, a := range s.Uploaded {
		if a.SourceMediaID != mediaID {
			kept = append(kept, a)
		}
	}
	s.Uploaded = kept
}

// ==================== 库存 ====================

// MergeLocations 用平台返回的仓库列表刷新库存，保留已编辑的数量
func (s *PipelineSession) MergeLocations(platform string, locations []LocationInventory) {
	prev := make(map[string]int, len(s.Inventory[platform]))
	for _, l := range s.Inventory[platform] {
		prev[l.LocationID] = l.Quantity
	}
	merged := make([]LocationInventory, 0, len(locations))
	for _, l := range locations {
		if q, ok := prev[l.LocationID]; ok {
			l.Quantity = q
		}
		if l.Quantity < 0 {
			l.Quantity = 0
		}
		merged = append(merged, l)
	}
	s.Inventory[platform] = merged
}

// SetQuantity 修改单个仓库数量
func (s *PipelineSession) SetQuantity(platform, locationID string, quantity int) error {
	if quantity < 0 {
		return ErrNegativeQuantity
	}
	locs := s.Inventory[platform]
	for i := range locs {
		if locs[i].LocationID == locationID {
			locs[i].Quantity = quantity
			return nil
		}
	}
	return ErrLocationNotFound
}

// ==================== 视图 ====================

// SessionView 前端渲染用的只读投影
type SessionView struct {
	ID                string                         `json:"id"`
	Origin            SessionOrigin                  `json:"origin"`
	ReturnTo          string                         `json:"return_to,omitempty"`
	Stage             Stage                          `json:"stage"`
	Loading           string                         `json:"loading,omitempty"`
	Error             *PipelineError                 `json:"error,omitempty"`
	EditingMedia      bool                           `json:"editing_media"`
	NeedsCover        bool                           `json:"needs_cover"`
	Platforms         []string                       `json:"platforms"`
	ActivePlatform    string                         `json:"active_platform,omitempty"`
	Media             []MediaItem                    `json:"media"`
	Uploaded          []UploadedAsset                `json:"uploaded"`
	Skipped           []ItemResult                   `json:"skipped,omitempty"`
	Identity          ProductIdentity                `json:"identity"`
	Candidates        []VisualMatchCandidate         `json:"candidates"`
	SelectedCandidate int                            `json:"selected_candidate"`
	Drafts            DraftMap                       `json:"drafts"`
	Inventory         map[string][]LocationInventory `json:"inventory"`
	Connections       map[string]string              `json:"connections"`
	Published         map[string]bool                `json:"published,omitempty"`
	LastPublish       *PublishReport                 `json:"last_publish,omitempty"`
	Warnings          []SaveWarning                  `json:"warnings,omitempty"`
	SaveFailures      int                            `json:"save_failures"`
	UpdatedAt         time.Time                      `json:"updated_at"`
}

func (s *PipelineSession) view() SessionView {
	v := SessionView{
		ID:                s.ID,
		Origin:            s.Origin,
		ReturnTo:          s.ReturnTo,
		Stage:             s.Stage,
		Loading:           s.Loading,
		EditingMedia:      s.editingMedia,
		NeedsCover:        s.coverRejected,
		Platforms:         s.Form.Platforms(),
		ActivePlatform:    s.Form.Active(),
		Media:             s.Media.Items(),
		Uploaded:          append([]UploadedAsset{}, s.Uploaded...),
		Skipped:           append([]ItemResult(nil), s.LastSkipped...),
		Identity:          s.Identity,
		Candidates:        append([]VisualMatchCandidate{}, s.Candidates...),
		SelectedCandidate: s.Selected,
		Drafts:            s.Form.Drafts(),
		Inventory:         make(map[string][]LocationInventory, len(s.Inventory)),
		Connections:       make(map[string]string, len(s.Connections)),
		LastPublish:       s.LastPublish,
		UpdatedAt:         s.UpdatedAt,
	}
	if s.LastError != nil {
		e := *s.LastError
		v.Error = &e
	}
	for k, locs := range s.Inventory {
		v.Inventory[k] = append([]LocationInventory{}, locs...)
	}
	for k, c := range s.Connections {
		v.Connections[k] = c
	}
	if len(s.Published) > 0 {
		v.Published = make(map[string]bool, len(s.Published))
		for k, ok := range s.Published {
			v.Published[k] = ok
		}
	}
	return v
}
