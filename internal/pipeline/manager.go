package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StoredDraft 从数据库恢复的草稿
type StoredDraft struct {
	Identity    ProductIdentity
	Options     []byte
	Fallback    BaseFields
	Platforms   []string
	ImageURLs   []string
	Connections map[string]string
	Inventory   map[string][]LocationInventory
}

// DraftLoader 读取已保存的变体草稿
type DraftLoader interface {
	LoadDraft(ctx context.Context, ownerID, variantID string) (*StoredDraft, error)
}

// SessionManager 管理所有进行中的上架会话，每个会话只属于一个用户
type SessionManager struct {
	mu       sync.RWMutex
	machines map[string]*StageMachine

	deps   MachineDeps
	cfg    MachineConfig
	loader DraftLoader
	log    *zap.Logger
}

// NewSessionManager 创建会话管理器
func NewSessionManager(deps MachineDeps, cfg MachineConfig, loader DraftLoader) *SessionManager {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = RealClock()
	}
	return &SessionManager{
		machines: make(map[string]*StageMachine),
		deps:     deps,
		cfg:      cfg,
		loader:   loader,
		log:      deps.Log.Named("SessionManager"),
	}
}

// Create 新建会话
func (sm *SessionManager) Create(owner string) *StageMachine {
	id := uuid.NewString()
	m := NewStageMachine(id, owner, sm.deps, sm.cfg)

	sm.mu.Lock()
	sm.machines[id] = m
	sm.mu.Unlock()

	sm.log.Info("创建上架会话", zap.String("session", id), zap.String("owner", owner))
	return m
}

// Resume 从已保存的变体草稿恢复会话，保存后返回 returnTo
func (sm *SessionManager) Resume(ctx context.Context, owner, variantID, returnTo string) (*StageMachine, error) {
	stored, err := sm.loader.LoadDraft(ctx, owner, variantID)
	if err != nil {
		return nil, err
	}
	m := sm.Create(owner)
	if err := m.Resume(stored, returnTo); err != nil {
		sm.Drop(owner, m.Snapshot().ID)
		return nil, err
	}
	return m, nil
}

// Get 获取会话，非本人会话视为不存在
func (sm *SessionManager) Get(owner, id string) (*StageMachine, error) {
	sm.mu.RLock()
	m, ok := sm.machines[id]
	sm.mu.RUnlock()
	if !ok || m.Owner() != owner {
		return nil, ErrSessionNotFound
	}
	return m, nil
}

// Drop 删除会话，丢弃未保存修改
func (sm *SessionManager) Drop(owner, id string) error {
	sm.mu.Lock()
	m, ok := sm.machines[id]
	if !ok || m.Owner() != owner {
		sm.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(sm.machines, id)
	sm.mu.Unlock()

	m.Close()
	return nil
}

// Len 当前会话数
func (sm *SessionManager) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.machines)
}

// DropIdle 清理 before 之前无活动的会话，清理前先写入待保存的修改
func (sm *SessionManager) DropIdle(ctx context.Context, before time.Time) int {
	sm.mu.Lock()
	var idle []*StageMachine
	for id, m := range sm.machines {
		if m.LastActivity().Before(before) {
			idle = append(idle, m)
			delete(sm.machines, id)
		}
	}
	sm.mu.Unlock()

	for _, m := range idle {
		if err := m.Flush(ctx); err != nil {
			sm.log.Warn("清理前保存失败", zap.Error(err))
		}
		m.Close()
	}
	if len(idle) > 0 {
		sm.log.Info("清理闲置会话", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// Shutdown 关闭前写入所有会话的待保存修改
func (sm *SessionManager) Shutdown(ctx context.Context) {
	sm.mu.Lock()
	machines := make([]*StageMachine, 0, len(sm.machines))
	for _, m := range sm.machines {
		machines = append(machines, m)
	}
	sm.mu.Unlock()

	for _, m := range machines {
		m.Wait()
		if err := m.Flush(ctx); err != nil {
			sm.log.Warn("关闭前保存失败", zap.Error(err))
		}
		m.Close()
	}
}
