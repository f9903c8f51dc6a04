package pipeline

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ==================== 接口定义 ====================

// BlobStore 对象存储适配器
type BlobStore interface {
	// Upload 写入对象，返回实际存储路径
	Upload(ctx context.Context, storagePath string, data []byte, mimeType string) (string, error)
	// PublicURL 解析可公开访问的 URL
	PublicURL(ctx context.Context, storagePath string) (string, error)
	Remove(ctx context.Context, storagePath string) error
}

// MediaReader 读取本地可访问的媒体字节
type MediaReader interface {
	Read(ctx context.Context, uri string) ([]byte, error)
}

// ImageCompressor 固定质量的一次性压缩
type ImageCompressor interface {
	Compress(data []byte) ([]byte, error)
}

// ==================== 结果类型 ====================

// Outcome 单项上传结果
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// 跳过/失败原因
const (
	ReasonUnreadable          = "unreadable"
	ReasonTooLarge            = "too large"
	ReasonTooLargeCompressed  = "too large after compression"
	ReasonUploadFailed        = "upload failed"
	ReasonPublicURLUnresolved = "public url unavailable"
)

// DefaultUploadByteLimit 单文件上传上限
const DefaultUploadByteLimit = 5 * 1024 * 1024

// ItemResult 单个媒体的上传结果
type ItemResult struct {
	MediaID string         `json:"media_id"`
	Outcome Outcome        `json:"outcome"`
	Reason  string         `json:"reason,omitempty"`
	Err     error          `json:"-"`
	Asset   *UploadedAsset `json:"asset,omitempty"`
}

// UploadReport 整批结果，Uploaded 保持输入顺序
type UploadReport struct {
	Results  []ItemResult    `json:"results"`
	Uploaded []UploadedAsset `json:"uploaded"`
}

// Skipped 所有非成功项
func (r UploadReport) Skipped() []ItemResult {
	var out []ItemResult
	for _, res := range r.Results {
		if res.Outcome != OutcomeOK {
			out = append(out, res)
		}
	}
	return out
}

// AssetFor 查找某个媒体的上传结果
func (r UploadReport) AssetFor(mediaID string) (UploadedAsset, bool) {
	for _, a := range r.Uploaded {
		if a.SourceMediaID == mediaID {
			return a, true
		}
	}
	return UploadedAsset{}, false
}

// ==================== 上传服务 ====================

// UploadService 逐项读取、限制大小、压缩并上传媒体
type UploadService struct {
	store      BlobStore
	reader     MediaReader
	compressor ImageCompressor
	clock      Clock
	log        *zap.Logger
}

// NewUploadService 创建上传服务
func NewUploadService(store BlobStore, reader MediaReader, compressor ImageCompressor, clock Clock, log *zap.Logger) *UploadService {
	if clock == nil {
		clock = RealClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &UploadService{
		store:      store,
		reader:     reader,
		compressor: compressor,
		clock:      clock,
		log:        log.Named("Upload"),
	}
}

// UploadAll 按输入顺序上传，单项失败不影响其他项
func (s *UploadService) UploadAll(ctx context.Context, owner string, items []MediaItem, byteLimit int) UploadReport {
	if byteLimit <= 0 {
		byteLimit = DefaultUploadByteLimit
	}
	batch := s.clock.Now().UTC().Format("20060102T150405")
	report := UploadReport{Results: make([]ItemResult, 0, len(items))}

	for _, item := range items {
		res := s.uploadOne(ctx, owner, batch, item, byteLimit)
		if res.Outcome == OutcomeOK {
			report.Uploaded = append(report.Uploaded, *res.Asset)
		} else {
			s.log.Warn("媒体未上传",
				zap.String("media_id", item.ID),
				zap.String("reason", res.Reason),
				zap.Error(res.Err))
		}
		report.Results = append(report.Results, res)
	}

	s.log.Info("上传批次完成",
		zap.String("owner", owner),
		zap.Int("total", len(items)),
		zap.Int("uploaded", len(report.Uploaded)))
	return report
}

func (s *UploadService) uploadOne(ctx context.Context, owner, batch string, item MediaItem, byteLimit int) ItemResult {
	res := ItemResult{MediaID: item.ID}

	data, err := s.reader.Read(ctx, item.URI)
	if err != nil {
		return skip(res, ReasonUnreadable, err)
	}

	ext := extOf(item.URI)
	if len(data) > byteLimit {
		if item.Kind == MediaVideo {
			return skip(res, ReasonTooLarge, fmt.Errorf("视频大小 %d 超过上限 %d", len(data), byteLimit))
		}
		compressed, err := s.compressor.Compress(data)
		if err != nil {
			return skip(res, ReasonUnreadable, err)
		}
		if len(compressed) > byteLimit {
			return skip(res, ReasonTooLargeCompressed, fmt.Errorf("压缩后 %d 仍超过上限 %d", len(compressed), byteLimit))
		}
		data = compressed
		ext = ".jpg"
	}

	storagePath := fmt.Sprintf("users/%s/listings/%s/%s%s", owner, batch, uuid.New().String(), ext)
	mimeType := MimeTypeOf(ext, item.Kind)

	stored, err := s.store.Upload(ctx, storagePath, data, mimeType)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Reason = ReasonUploadFailed
		res.Err = err
		return res
	}

	publicURL, err := s.store.PublicURL(ctx, stored)
	if err != nil || publicURL == "" {
		// 无法引用的对象不算上传成功，尽力删除
		if rmErr := s.store.Remove(ctx, stored); rmErr != nil {
			s.log.Warn("清理无公开地址的对象失败", zap.String("path", stored), zap.Error(rmErr))
		}
		return skip(res, ReasonPublicURLUnresolved, err)
	}

	res.Outcome = OutcomeOK
	res.Asset = &UploadedAsset{
		SourceMediaID: item.ID,
		RemoteURL:     publicURL,
		MimeType:      mimeType,
		ByteSize:      len(data),
		StoragePath:   stored,
	}
	return res
}

func skip(res ItemResult, reason string, err error) ItemResult {
	res.Outcome = OutcomeSkipped
	res.Reason = reason
	res.Err = err
	return res
}

// extOf 从 URI 推断扩展名，忽略查询串
func extOf(uri string) string {
	p := uri
	if u, err := url.Parse(uri); err == nil && u.Path != "" {
		p = u.Path
	}
	return strings.ToLower(path.Ext(p))
}

var mimeByExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
	".heic": "image/heic",
	".heif": "image/heif",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".m4v":  "video/x-m4v",
	".webm": "video/webm",
}

// MimeTypeOf 由扩展名推断 MIME
func MimeTypeOf(ext string, kind MediaKind) string {
	ext = strings.ToLower(ext)
	if m, ok := mimeByExt[ext]; ok {
		return m
	}
	if m := mime.TypeByExtension(ext); m != "" {
		return m
	}
	if kind == MediaVideo {
		return "video/mp4"
	}
	return "image/jpeg"
}
