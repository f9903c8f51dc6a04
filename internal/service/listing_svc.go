package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"listing_studio_v1/internal/model"
	"listing_studio_v1/internal/pipeline"
	"listing_studio_v1/internal/repository"
	"listing_studio_v1/pkg/utils"
)

var (
	ErrStagingDisabled = errors.New("staging dir not configured")
	ErrMediaTooLarge   = errors.New("media exceeds upload limit")
)

var videoExts = map[string]bool{".mp4": true, ".mov": true, ".webm": true, ".m4v": true}

// ListingService 上架会话入口：创建/恢复会话、暂存上传文件、统计调用量
type ListingService struct {
	manager    *pipeline.SessionManager
	drafts     *DraftStoreService
	usage      repository.AICallLogRepository
	stagingDir string
	maxBytes   int64
	log        *zap.Logger
}

func NewListingService(
	manager *pipeline.SessionManager,
	drafts *DraftStoreService,
	usage repository.AICallLogRepository,
	stagingDir string,
	maxBytes int64,
	log *zap.Logger,
) *ListingService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ListingService{
		manager:    manager,
		drafts:     drafts,
		usage:      usage,
		stagingDir: stagingDir,
		maxBytes:   maxBytes,
		log:        log.Named("ListingService"),
	}
}

// ==================== 会话 ====================

// Create 新建会话，并带入用户已启用的平台连接
func (s *ListingService) Create(ctx context.Context, owner string) (*pipeline.StageMachine, error) {
	conns, err := s.drafts.Connections(ctx, owner)
	if err != nil {
		return nil, err
	}
	m := s.manager.Create(owner)
	for platform, id := range conns {
		if err := m.SetConnection(platform, id); err != nil {
			s.log.Warn("绑定平台连接失败", zap.String("platform", platform), zap.Error(err))
		}
	}
	return m, nil
}

// Resume 从已保存的变体恢复会话
func (s *ListingService) Resume(ctx context.Context, owner, variantID, returnTo string) (*pipeline.StageMachine, error) {
	return s.manager.Resume(ctx, owner, variantID, returnTo)
}

// Session 获取本人的会话
func (s *ListingService) Session(owner, id string) (*pipeline.StageMachine, error) {
	return s.manager.Get(owner, id)
}

// Drop 关闭会话，未保存的修改被丢弃
func (s *ListingService) Drop(owner, id string) error {
	return s.manager.Drop(owner, id)
}

// ==================== 暂存 ====================

// Stage 把上传的文件写入用户暂存目录，返回可交给会话的媒体输入
func (s *ListingService) Stage(owner, filename string, r io.Reader) (pipeline.MediaInput, error) {
	if s.stagingDir == "" {
		return pipeline.MediaInput{}, ErrStagingDisabled
	}
	dir := filepath.Join(s.stagingDir, safeSegment(owner))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return pipeline.MediaInput{}, fmt.Errorf("创建暂存目录失败: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	path := filepath.Join(dir, uuid.NewString()+ext)
	f, err := os.Create(path)
	if err != nil {
		return pipeline.MediaInput{}, fmt.Errorf("创建暂存文件失败: %w", err)
	}

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.maxBytes > 0 && n > s.maxBytes {
		err = ErrMediaTooLarge
	}
	if err != nil {
		os.Remove(path)
		return pipeline.MediaInput{}, err
	}

	in := pipeline.MediaInput{URI: "file://" + filepath.ToSlash(path), Kind: pipeline.MediaImage}
	if videoExts[ext] {
		in.Kind = pipeline.MediaVideo
		return in, nil
	}
	// 尺寸读不出时保持为空，由上传阶段判定是否可读
	if data, err := os.ReadFile(path); err == nil {
		if w, h, err := utils.DecodeSize(data); err == nil {
			in.Width, in.Height = w, h
		}
	}
	return in, nil
}

// CleanStaging 删除 before 之前写入的暂存文件
func (s *ListingService) CleanStaging(before time.Time) (int, error) {
	if s.stagingDir == "" {
		return 0, nil
	}
	removed := 0
	err := filepath.WalkDir(s.stagingDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(before) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
		return nil
	})
	return removed, err
}

func safeSegment(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
	if s == "" {
		return "_"
	}
	return s
}

// ==================== 统计 ====================

// SessionCalls 会话内的远端调用记录，按时间先后
func (s *ListingService) SessionCalls(ctx context.Context, owner, id string) ([]model.AICallLog, error) {
	if _, err := s.manager.Get(owner, id); err != nil {
		return nil, err
	}
	return s.usage.ListBySession(ctx, id)
}

// Usage 用户在时间范围内的远程调用统计
func (s *ListingService) Usage(ctx context.Context, owner string, start, end time.Time) (*repository.AIUsageStats, error) {
	return s.usage.GetUsageByUser(ctx, owner, start, end)
}
