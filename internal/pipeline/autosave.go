package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ==================== 接口定义 ====================

// DraftStore 关系库持久化适配器
type DraftStore interface {
	SaveVariantDraft(ctx context.Context, rec VariantDraftRecord) error
	// ReplaceVariantImages 删除后按顺序重建图片关联，需在一个事务内完成
	ReplaceVariantImages(ctx context.Context, variantID string, urls []string) error
	UpsertInventory(ctx context.Context, rows []InventoryRecord) error
}

// FieldSnapshot 字段通道写入时读取的状态
type FieldSnapshot struct {
	Identity  ProductIdentity
	Record    VariantDraftRecord
	ImageURLs []string
}

// InventorySnapshot 库存通道写入时读取的状态
type InventorySnapshot struct {
	VariantID string
	Rows      []InventoryRecord
	// MissingConnection 有库存行但缺少平台连接 ID
	MissingConnection bool
}

// SnapshotSource 由会话持有方实现，返回写入时刻的最新状态
type SnapshotSource interface {
	FieldSnapshot() (FieldSnapshot, error)
	InventorySnapshot() InventorySnapshot
}

// ==================== 配置 ====================

// AutoSaveConfig 防抖参数
type AutoSaveConfig struct {
	FieldDelay     time.Duration
	InventoryDelay time.Duration
	// MaxWait 持续编辑时的最长合并窗口，0 表示不限
	MaxWait      time.Duration
	WriteTimeout time.Duration
}

// DefaultAutoSaveConfig 默认参数
func DefaultAutoSaveConfig() AutoSaveConfig {
	return AutoSaveConfig{
		FieldDelay:     1500 * time.Millisecond,
		InventoryDelay: 1000 * time.Millisecond,
		MaxWait:        10 * time.Second,
		WriteTimeout:   15 * time.Second,
	}
}

// SaveWarning 非阻塞的自动保存告警
type SaveWarning struct {
	Channel string    `json:"channel"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

const (
	ChannelFields    = "fields"
	ChannelInventory = "inventory"
	ChannelImages    = "images"

	maxWarnings = 5
)

// errMissingIDs 必需 ID 未就绪，本次写入为空操作
var errMissingIDs = errors.New("required ids are not known yet")

// ==================== 自动保存协调器 ====================

// AutoSaveCoordinator 字段与库存两个独立防抖通道
type AutoSaveCoordinator struct {
	store  DraftStore
	source SnapshotSource
	clock  Clock
	cfg    AutoSaveConfig
	log    *zap.Logger

	fields    *saveChannel
	inventory *saveChannel

	mu       sync.Mutex
	warnings []SaveWarning
	failures int
}

// NewAutoSaveCoordinator 创建协调器
func NewAutoSaveCoordinator(store DraftStore, source SnapshotSource, clock Clock, cfg AutoSaveConfig, log *zap.Logger) *AutoSaveCoordinator {
	if clock == nil {
		clock = RealClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultAutoSaveConfig().WriteTimeout
	}
	c := &AutoSaveCoordinator{
		store:  store,
		source: source,
		clock:  clock,
		cfg:    cfg,
		log:    log.Named("AutoSave"),
	}
	c.fields = newSaveChannel(ChannelFields, c, c.writeFields)
	c.inventory = newSaveChannel(ChannelInventory, c, c.writeInventory)
	c.fields.deb = NewDebouncer(clock, cfg.FieldDelay, cfg.MaxWait, c.fields.fire)
	c.inventory.deb = NewDebouncer(clock, cfg.InventoryDelay, cfg.MaxWait, c.inventory.fire)
	return c
}

// NotifyFieldChange 字段变更后重新计时
func (c *AutoSaveCoordinator) NotifyFieldChange() { c.fields.deb.Trigger() }

// NotifyInventoryChange 库存变更后重新计时
func (c *AutoSaveCoordinator) NotifyInventoryChange() { c.inventory.deb.Trigger() }

// Rearm 标识或连接 ID 到位后，重新触发之前因缺 ID 跳过的通道
func (c *AutoSaveCoordinator) Rearm() {
	for _, ch := range []*saveChannel{c.fields, c.inventory} {
		if ch.takeSkipped() {
			ch.deb.Trigger()
		}
	}
}

// SaveFieldsNow 同步写入字段通道（生成后的基线保存）
func (c *AutoSaveCoordinator) SaveFieldsNow(ctx context.Context) error {
	c.fields.deb.Cancel()
	return c.fields.runSync(ctx)
}

// FlushAll 保存草稿：取消计时并同步写入两个通道，返回确定结果
func (c *AutoSaveCoordinator) FlushAll(ctx context.Context) error {
	c.fields.deb.Cancel()
	c.inventory.deb.Cancel()
	fieldErr := c.fields.runSync(ctx)
	invErr := c.inventory.runSync(ctx)
	if errors.Is(fieldErr, errMissingIDs) {
		fieldErr = ErrIdentityRequired
	}
	if errors.Is(invErr, errMissingIDs) {
		invErr = ErrIdentityRequired
	}
	return errors.Join(fieldErr, invErr)
}

// Stop 丢弃所有待执行写入
func (c *AutoSaveCoordinator) Stop() {
	c.fields.deb.Cancel()
	c.inventory.deb.Cancel()
}

// Pending 是否有待执行写入
func (c *AutoSaveCoordinator) Pending() bool {
	return c.fields.deb.Pending() || c.inventory.deb.Pending()
}

// Warnings 最近的告警
func (c *AutoSaveCoordinator) Warnings() []SaveWarning {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SaveWarning(nil), c.warnings...)
}

// Report 记录通道之外的保存失败（如分析后的图片关联）
func (c *AutoSaveCoordinator) Report(channel string, err error) {
	if err != nil {
		c.warn(channel, err)
	}
}

// Failures 累计失败次数
func (c *AutoSaveCoordinator) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}

func (c *AutoSaveCoordinator) writeFields(ctx context.Context) error {
	snap, err := c.source.FieldSnapshot()
	if err != nil {
		return err
	}
	if !snap.Identity.Known() {
		return errMissingIDs
	}
	rec := snap.Record
	rec.VariantID = snap.Identity.VariantID
	rec.UpdatedAt = c.clock.Now()
	if err := c.store.SaveVariantDraft(ctx, rec); err != nil {
		return err
	}
	if len(snap.ImageURLs) == 0 {
		return nil
	}
	return c.store.ReplaceVariantImages(ctx, rec.VariantID, snap.ImageURLs)
}

func (c *AutoSaveCoordinator) writeInventory(ctx context.Context) error {
	snap := c.source.InventorySnapshot()
	if snap.VariantID == "" || (snap.MissingConnection && len(snap.Rows) == 0) {
		return errMissingIDs
	}
	if len(snap.Rows) == 0 {
		return nil
	}
	now := c.clock.Now()
	for i := range snap.Rows {
		snap.Rows[i].VariantID = snap.VariantID
		snap.Rows[i].UpdatedAt = now
	}
	if err := c.store.UpsertInventory(ctx, snap.Rows); err != nil {
		return err
	}
	if snap.MissingConnection {
		return errMissingIDs
	}
	return nil
}

func (c *AutoSaveCoordinator) warn(channel string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	c.warnings = append(c.warnings, SaveWarning{Channel: channel, Message: err.Error(), At: c.clock.Now()})
	if len(c.warnings) > maxWarnings {
		c.warnings = c.warnings[len(c.warnings)-maxWarnings:]
	}
}

// ==================== 单通道 ====================

// saveChannel 单飞写入：写入进行中再次触发只标记脏，写完后用最新状态补写一次
type saveChannel struct {
	name  string
	owner *AutoSaveCoordinator
	write func(ctx context.Context) error
	deb   *Debouncer

	writeMu sync.Mutex

	mu      sync.Mutex
	dirty   bool
	skipped bool
}

func newSaveChannel(name string, owner *AutoSaveCoordinator, write func(ctx context.Context) error) *saveChannel {
	return &saveChannel{name: name, owner: owner, write: write}
}

// fire 防抖到期回调，在定时器 goroutine 中执行
func (ch *saveChannel) fire() {
	for {
		// 先标脏再抢锁，避免与正在收尾的写入错过补写
		ch.setDirty(true)
		if !ch.writeMu.TryLock() {
			return
		}
		ch.setDirty(false)
		err := ch.do(context.Background())
		ch.writeMu.Unlock()
		ch.record(err)
		if !ch.takeDirty() {
			return
		}
	}
}

// runSync 等待进行中的写入结束后同步写入
func (ch *saveChannel) runSync(ctx context.Context) error {
	ch.writeMu.Lock()
	ch.setDirty(false)
	err := ch.do(ctx)
	ch.writeMu.Unlock()
	ch.record(err)
	return err
}

func (ch *saveChannel) do(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ch.owner.cfg.WriteTimeout)
	defer cancel()
	return ch.write(ctx)
}

func (ch *saveChannel) record(err error) {
	log := ch.owner.log
	switch {
	case err == nil:
		log.Debug("自动保存完成", zap.String("channel", ch.name))
	case errors.Is(err, errMissingIDs) || errors.Is(err, ErrIdentityRequired):
		ch.mu.Lock()
		ch.skipped = true
		ch.mu.Unlock()
		log.Warn("标识未就绪，跳过自动保存", zap.String("channel", ch.name))
	default:
		ch.owner.warn(ch.name, err)
		log.Warn("自动保存失败", zap.String("channel", ch.name), zap.Error(err))
	}
}

func (ch *saveChannel) setDirty(v bool) {
	ch.mu.Lock()
	ch.dirty = v
	ch.mu.Unlock()
}

func (ch *saveChannel) takeDirty() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	d := ch.dirty
	ch.dirty = false
	return d
}

func (ch *saveChannel) takeSkipped() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	s := ch.skipped
	ch.skipped = false
	return s
}
