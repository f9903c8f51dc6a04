package pipeline

import (
	"github.com/google/uuid"
)

// DefaultMaxMedia 单个商品最多媒体数
const DefaultMaxMedia = 10

// AddResult 批量添加结果
type AddResult struct {
	Accepted []MediaItem `json:"accepted"`
	Dropped  int         `json:"dropped"`
}

// MediaStore 有序媒体集合，维护封面不变量：非空时恰好一个封面
type MediaStore struct {
	items   []MediaItem
	coverID string
	max     int
}

// NewMediaStore 创建媒体集合
func NewMediaStore(max int) *MediaStore {
	if max <= 0 {
		max = DefaultMaxMedia
	}
	return &MediaStore{max: max}
}

// Add 追加媒体，超出上限的部分丢弃并计数
func (s *MediaStore) Add(inputs []MediaInput) (AddResult, error) {
	var result AddResult
	for _, in := range inputs {
		if len(s.items) >= s.max {
			result.Dropped++
			continue
		}
		kind := in.Kind
		if kind == "" {
			kind = MediaImage
		}
		item := MediaItem{
			ID:     uuid.New().String(),
			URI:    in.URI,
			Kind:   kind,
			Width:  in.Width,
			Height: in.Height,
		}
		s.items = append(s.items, item)
		result.Accepted = append(result.Accepted, item)
	}
	if s.coverID == "" && len(s.items) > 0 {
		s.coverID = s.items[0].ID
	}
	s.renumber()

	for i := range result.Accepted {
		result.Accepted[i] = s.mustGet(result.Accepted[i].ID)
	}
	if len(result.Accepted) == 0 && result.Dropped > 0 {
		return result, ErrMediaLimitReached
	}
	return result, nil
}

// Remove 删除媒体；删除封面时第一项成为新封面
func (s *MediaStore) Remove(id string) error {
	idx := s.indexOf(id)
	if idx < 0 {
		return ErrMediaNotFound
	}
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	if s.coverID == id {
		s.coverID = ""
		if len(s.items) > 0 {
			s.coverID = s.items[0].ID
		}
	}
	s.renumber()
	return nil
}

// Reorder 按给定 ID 顺序重排，必须是当前集合的一个排列
func (s *MediaStore) Reorder(order []string) error {
	if len(order) != len(s.items) {
		return ErrInvalidOrder
	}
	byID := make(map[string]MediaItem, len(s.items))
	for _, it := range s.items {
		byID[it.ID] = it
	}
	next := make([]MediaItem, 0, len(order))
	for _, id := range order {
		it, ok := byID[id]
		if !ok {
			return ErrInvalidOrder
		}
		delete(byID, id)
		next = append(next, it)
	}
	s.items = next
	s.renumber()
	return nil
}

// SetCover 指定封面
func (s *MediaStore) SetCover(id string) error {
	if s.indexOf(id) < 0 {
		return ErrMediaNotFound
	}
	s.coverID = id
	s.renumber()
	return nil
}

// Items 当前有序快照
func (s *MediaStore) Items() []MediaItem {
	out := make([]MediaItem, len(s.items))
	copy(out, s.items)
	return out
}

// Cover 当前封面
func (s *MediaStore) Cover() (MediaItem, bool) {
	if s.coverID == "" {
		return MediaItem{}, false
	}
	return s.mustGet(s.coverID), true
}

// Len 媒体数量
func (s *MediaStore) Len() int { return len(s.items) }

// CoverFirst 上传批次顺序：封面在前，其余保持原顺序
func (s *MediaStore) CoverFirst() []MediaItem {
	out := make([]MediaItem, 0, len(s.items))
	if cover, ok := s.Cover(); ok {
		out = append(out, cover)
	}
	for _, it := range s.items {
		if it.ID != s.coverID {
			out = append(out, it)
		}
	}
	return out
}

func (s *MediaStore) renumber() {
	for i := range s.items {
		s.items[i].Position = i
		s.items[i].IsCover = s.items[i].ID == s.coverID
	}
}

func (s *MediaStore) indexOf(id string) int {
	for i, it := range s.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (s *MediaStore) mustGet(id string) MediaItem {
	if idx := s.indexOf(id); idx >= 0 {
		return s.items[idx]
	}
	return MediaItem{}
}
