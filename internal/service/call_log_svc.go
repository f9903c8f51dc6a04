package service

import (
	"context"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"listing_studio_v1/internal/model"
	"listing_studio_v1/internal/pipeline"
	"listing_studio_v1/internal/repository"
)

// CallRecorder 记录每一次远端调用，写库失败只打日志
type CallRecorder struct {
	repo repository.AICallLogRepository
	log  *zap.Logger
}

// NewCallRecorder repo 为 nil 时只打日志
func NewCallRecorder(repo repository.AICallLogRepository, log *zap.Logger) *CallRecorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &CallRecorder{repo: repo, log: log.Named("CallLog")}
}

// CallEntry 单次调用
type CallEntry struct {
	CallType  string
	Provider  string
	Platform  string
	VariantID string
	Status    string
	Started   time.Time
	Err       error
}

func (r *CallRecorder) Record(ctx context.Context, e CallEntry) {
	if r == nil {
		return
	}
	scope := pipeline.CallScopeFrom(ctx)
	status := e.Status
	if status == "" {
		status = model.AICallStatusSuccess
		if e.Err != nil {
			status = model.AICallStatusFailed
		}
	}
	variantID := e.VariantID
	if variantID == "" {
		variantID = scope.VariantID
	}

	entry := &model.AICallLog{
		UserID:     scope.OwnerID,
		SessionID:  scope.SessionID,
		VariantID:  variantID,
		CallType:   e.CallType,
		Provider:   e.Provider,
		Platform:   e.Platform,
		DurationMs: time.Since(e.Started).Milliseconds(),
		Status:     status,
	}
	if e.Err != nil {
		entry.ErrorMsg = truncate(e.Err.Error(), 1000)
	}

	r.log.Debug("远端调用",
		zap.String("type", e.CallType),
		zap.String("status", status),
		zap.Int64("duration_ms", entry.DurationMs))

	if r.repo == nil {
		return
	}
	// 调用方 ctx 可能已超时，日志写入单独计时
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.repo.Create(writeCtx, entry); err != nil {
		r.log.Warn("写入调用日志失败", zap.Error(err))
	}
}

// truncate 按字节截断，不拆开多字节字符
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
