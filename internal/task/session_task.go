package task

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SessionSweeper 清理闲置会话，SessionManager 实现
type SessionSweeper interface {
	DropIdle(ctx context.Context, before time.Time) int
}

// StagingCleaner 清理过期暂存文件，ListingService 实现
type StagingCleaner interface {
	CleanStaging(before time.Time) (int, error)
}

// SessionCleanupTask 定时清理闲置会话和暂存文件
type SessionCleanupTask struct {
	sessions SessionSweeper
	staging  StagingCleaner
	idleTTL  time.Duration
	spec     string
	timeout  time.Duration
	now      func() time.Time
	log      *zap.Logger

	Cron *cron.Cron
}

func NewSessionCleanupTask(sessions SessionSweeper, staging StagingCleaner, idleTTL time.Duration, spec string, log *zap.Logger) *SessionCleanupTask {
	if log == nil {
		log = zap.NewNop()
	}
	if spec == "" {
		spec = "0 */10 * * * *"
	}
	return &SessionCleanupTask{
		sessions: sessions,
		staging:  staging,
		idleTTL:  idleTTL,
		spec:     spec,
		timeout:  2 * time.Minute,
		now:      time.Now,
		log:      log.Named("SessionCleanupTask"),
		Cron:     cron.New(cron.WithSeconds()), // 支持秒级控制
	}
}

// Start 启动定时任务，首轮立即执行
func (t *SessionCleanupTask) Start() error {
	if t.idleTTL <= 0 {
		t.log.Info("未配置会话闲置时长，跳过清理任务")
		return nil
	}

	if _, err := t.Cron.AddFunc(t.spec, t.runWithTimeout); err != nil {
		return fmt.Errorf("无法注册会话清理任务: %w", err)
	}

	go t.runWithTimeout()

	t.Cron.Start()
	t.log.Info("会话清理任务已启动", zap.String("spec", t.spec), zap.Duration("idle_ttl", t.idleTTL))
	return nil
}

// Stop 停止调度，返回的 context 在进行中的任务结束后关闭
func (t *SessionCleanupTask) Stop() context.Context {
	return t.Cron.Stop()
}

func (t *SessionCleanupTask) runWithTimeout() {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	t.RunOnce(ctx)
}

// RunOnce 执行一轮清理，返回清理的会话数与文件数
func (t *SessionCleanupTask) RunOnce(ctx context.Context) (sessions, files int) {
	before := t.now().Add(-t.idleTTL)

	if t.sessions != nil {
		sessions = t.sessions.DropIdle(ctx, before)
	}
	if t.staging != nil {
		n, err := t.staging.CleanStaging(before)
		if err != nil {
			t.log.Warn("清理暂存文件失败", zap.Error(err))
		}
		files = n
	}

	if sessions > 0 || files > 0 {
		t.log.Info("清理完成", zap.Int("sessions", sessions), zap.Int("files", files))
	}
	return sessions, files
}
