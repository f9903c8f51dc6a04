package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Stage 上架流程阶段
type Stage string

const (
	StagePlatformSelection Stage = "platform_selection"
	StageImageInput        Stage = "image_input"
	StageAnalyzing         Stage = "analyzing"
	StageVisualMatch       Stage = "visual_match"
	StageGenerating        Stage = "generating"
	StageFormReview        Stage = "form_review"
	StagePublishing        Stage = "publishing"
)

// 加载中提示
const (
	LabelUploading  = "Uploading photos"
	LabelAnalyzing  = "Analyzing your product"
	LabelGenerating = "Writing listing details"
	LabelPublishing = "Publishing listing"
	LabelSaving     = "Saving draft"
)

// ==================== 依赖与配置 ====================

// Uploader 上传批次，UploadService 实现
type Uploader interface {
	UploadAll(ctx context.Context, owner string, items []MediaItem, byteLimit int) UploadReport
}

// MachineDeps 状态机依赖
type MachineDeps struct {
	Uploader  Uploader
	Analyzer  Analyzer
	Generator Generator
	Publisher *PublishOrchestrator
	Store     DraftStore
	Clock     Clock
	Log       *zap.Logger
}

// MachineConfig 状态机参数
type MachineConfig struct {
	MaxMedia        int
	UploadByteLimit int
	DefaultPlatform string
	// CallTimeout 单次异步调用（上传+分析、生成、发布）的超时
	CallTimeout time.Duration
	AutoSave    AutoSaveConfig
}

// DefaultMachineConfig 默认参数
func DefaultMachineConfig() MachineConfig {
	return MachineConfig{
		MaxMedia:        DefaultMaxMedia,
		UploadByteLimit: DefaultUploadByteLimit,
		DefaultPlatform: PlatformShopify,
		CallTimeout:     3 * time.Minute,
		AutoSave:        DefaultAutoSaveConfig(),
	}
}

// SaveResult 保存草稿后的去向
type SaveResult struct {
	Next     Stage  `json:"next"`
	ReturnTo string `json:"return_to,omitempty"`
}

// ==================== 状态机 ====================

// StageMachine 持有一个 PipelineSession，串行化主流程调用并丢弃过期响应
type StageMachine struct {
	mu   sync.Mutex
	deps MachineDeps
	cfg  MachineConfig
	log  *zap.Logger

	session *PipelineSession
	saver   *AutoSaveCoordinator

	// seq 每次发起异步调用或重置时递增，响应回来时比对
	seq      uint64
	inflight bool
	wg       sync.WaitGroup
}

// NewStageMachine 创建状态机，会话从平台选择开始
func NewStageMachine(id, owner string, deps MachineDeps, cfg MachineConfig) *StageMachine {
	if deps.Clock == nil {
		deps.Clock = RealClock()
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultMachineConfig().CallTimeout
	}
	m := &StageMachine{
		deps: deps,
		cfg:  cfg,
		log:  deps.Log.Named("StageMachine").With(zap.String("session", id)),
	}
	m.install(newSession(id, owner, cfg.MaxMedia, cfg.DefaultPlatform, deps.Clock.Now()))
	return m
}

// install 挂载新会话，每个会话有独立的自动保存协调器
func (m *StageMachine) install(s *PipelineSession) {
	if m.saver != nil {
		m.saver.Stop()
	}
	m.session = s
	m.saver = NewAutoSaveCoordinator(m.deps.Store, sessionSource{m: m, s: s}, m.deps.Clock, m.cfg.AutoSave, m.deps.Log)
}

// reset 丢弃内存会话回到平台选择，已在途的响应都会被判定为过期
func (m *StageMachine) reset() {
	old := m.session
	m.seq++
	m.inflight = false
	m.install(newSession(old.ID, old.OwnerID, m.cfg.MaxMedia, m.cfg.DefaultPlatform, m.deps.Clock.Now()))
	m.log.Info("会话已重置")
}

// ==================== 查询 ====================

// Snapshot 当前会话视图
func (m *StageMachine) Snapshot() SessionView {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.session.view()
	v.Warnings = m.saver.Warnings()
	v.SaveFailures = m.saver.Failures()
	return v
}

// Stage 当前阶段
func (m *StageMachine) Stage() Stage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Stage
}

// Owner 会话所属用户
func (m *StageMachine) Owner() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.OwnerID
}

// LastActivity 最近一次修改时间
func (m *StageMachine) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.UpdatedAt
}

// Wait 等待所有异步调用结束（测试与关闭时使用）
func (m *StageMachine) Wait() { m.wg.Wait() }

// ==================== 平台选择 ====================

// ConfirmPlatforms 平台选择 → 图片输入
func (m *StageMachine) ConfirmPlatforms(platforms []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.require("confirm platforms", StagePlatformSelection); err != nil {
		return err
	}
	platforms = dedupe(platforms)
	if len(platforms) == 0 {
		return ErrNoPlatforms
	}
	s := m.session
	s.Form.SetPlatforms(platforms)
	s.Stage = StageImageInput
	m.touch()
	return nil
}

// SetConnection 绑定平台连接 ID；此前因缺 ID 跳过的保存会重新触发
func (m *StageMachine) SetConnection(platform, connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if platform == "" || connectionID == "" {
		return ErrMissingConnection
	}
	m.session.Connections[platform] = connectionID
	m.touch()
	m.saver.Rearm()
	return nil
}

// ==================== 媒体 ====================

// AddMedia 添加媒体
func (m *StageMachine) AddMedia(inputs []MediaInput) (AddResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.require("add media", StageImageInput); err != nil {
		return AddResult{}, err
	}
	res, err := m.session.Media.Add(inputs)
	if res.Dropped > 0 {
		m.log.Warn("超出媒体上限，部分媒体被丢弃", zap.Int("dropped", res.Dropped))
	}
	m.touch()
	return res, err
}

// RemoveMedia 删除媒体及其上传结果
func (m *StageMachine) RemoveMedia(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.require("remove media", StageImageInput); err != nil {
		return err
	}
	s := m.session
	if err := s.Media.Remove(id); err != nil {
		return err
	}
	s.dropAsset(id)
	if _, ok := s.Media.Cover(); !ok {
		s.coverRejected = false
	}
	m.touch()
	return nil
}

// ReorderMedia 重排媒体
func (m *StageMachine) ReorderMedia(order []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.require("reorder media", StageImageInput); err != nil {
		return err
	}
	if err := m.session.Media.Reorder(order); err != nil {
		return err
	}
	m.touch()
	return nil
}

// SetCover 指定封面，同时解除封面上传失败后的重选要求
func (m *StageMachine) SetCover(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.require("set cover", StageImageInput); err != nil {
		return err
	}
	if err := m.session.Media.SetCover(id); err != nil {
		return err
	}
	m.session.coverRejected = false
	m.session.coverChosen = true
	m.touch()
	return nil
}

// ==================== 分析 ====================

// StartAnalysis 图片输入 → 分析中：上传（封面优先）后调用分析服务
func (m *StageMachine) StartAnalysis() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.require("analyze", StageImageInput); err != nil {
		return err
	}
	s := m.session
	if s.editingMedia {
		return &StageError{Op: "analyze", Stage: s.Stage}
	}
	if err := m.mediaReady(); err != nil {
		return err
	}

	s.LastError = nil
	s.Stage = StageAnalyzing
	owner := s.OwnerID
	items := s.pendingUploads()
	platforms := s.Form.Platforms()
	m.touch()
	m.launch(LabelUploading, func(ctx context.Context, seq uint64) {
		m.runAnalysis(ctx, seq, s, owner, items, platforms)
	})
	return nil
}

func (m *StageMachine) runAnalysis(ctx context.Context, seq uint64, s *PipelineSession, owner string, items []MediaItem, platforms []string) {
	report := m.deps.Uploader.UploadAll(ctx, owner, items, m.cfg.UploadByteLimit)

	m.mu.Lock()
	if !m.current(seq, s, StageAnalyzing) {
		m.mu.Unlock()
		m.log.Info("忽略过期的上传结果")
		return
	}
	if err := m.applyUploads(report); err != nil {
		m.fail("upload", StageImageInput, uploadFailureMessage(err))
		m.mu.Unlock()
		return
	}
	s.Loading = LabelAnalyzing
	req := AnalyzeRequest{ImageURIs: s.ImageURLs(), SelectedPlatforms: platforms}
	m.mu.Unlock()

	res, err := m.deps.Analyzer.Analyze(ctx, req)

	m.mu.Lock()
	if !m.current(seq, s, StageAnalyzing) {
		m.mu.Unlock()
		m.log.Info("忽略过期的分析结果")
		return
	}
	if err != nil || res == nil {
		m.log.Error("商品分析失败", zap.Error(err))
		m.fail("analyze", StageImageInput, "Product analysis failed. Your photos were kept, please try again.")
		m.mu.Unlock()
		return
	}

	s.Identity = res.Identity
	s.Candidates = nil
	s.Selected = 0
	if !res.NoMatches {
		candidates, perr := ParseVisualMatches(res.GeneratedText)
		if perr != nil {
			m.log.Warn("视觉匹配解析失败，按无匹配处理", zap.Error(perr))
		} else {
			s.Candidates = candidates
		}
	}
	s.Stage = StageVisualMatch
	m.finishOp()
	m.touch()
	identity := s.Identity
	urls := s.ImageURLs()
	found := len(s.Candidates)
	saver := m.saver
	m.mu.Unlock()

	m.log.Info("商品分析完成",
		zap.String("variant_id", identity.VariantID),
		zap.Int("candidates", found))

	if !identity.Known() {
		m.log.Warn("分析结果缺少商品标识")
		return
	}
	if err := m.deps.Store.ReplaceVariantImages(ctx, identity.VariantID, urls); err != nil {
		m.log.Warn("关联变体图片失败", zap.Error(err))
		saver.Report(ChannelImages, err)
	}
	saver.Rearm()
}

// applyUploads 合并上传结果；封面失败时要求重新选择封面
func (m *StageMachine) applyUploads(report UploadReport) error {
	s := m.session
	for _, a := range report.Uploaded {
		if s.Media.indexOf(a.SourceMediaID) >= 0 {
			s.uploadedBy[a.SourceMediaID] = a
		}
	}
	s.LastSkipped = report.Skipped()
	s.rebuildUploaded()

	cover, ok := s.Media.Cover()
	if ok {
		if _, uploaded := s.uploadedBy[cover.ID]; !uploaded {
			s.coverRejected = true
			return ErrCoverUploadFailed
		}
	}
	if len(s.Uploaded) == 0 {
		return ErrNothingUploaded
	}
	return nil
}

func uploadFailureMessage(err error) string {
	if errors.Is(err, ErrCoverUploadFailed) {
		return "The cover image could not be uploaded. Choose another cover and try again."
	}
	return "None of your photos could be uploaded. Your photos were kept, please try again."
}

// ==================== 视觉匹配 ====================

// SelectCandidate 切换候选选择
func (m *StageMachine) SelectCandidate(position int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.require("select match", StageVisualMatch); err != nil {
		return err
	}
	if err := m.session.ToggleCandidate(position); err != nil {
		return err
	}
	m.touch()
	return nil
}

// Generate 视觉匹配 → 生成中，带上当前选中的候选
func (m *StageMachine) Generate() error { return m.generate(false) }

// UseImagesOnly 忽略候选，仅凭图片生成
func (m *StageMachine) UseImagesOnly() error { return m.generate(true) }

func (m *StageMachine) generate(imagesOnly bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.require("generate", StageVisualMatch); err != nil {
		return err
	}
	s := m.session
	if !s.Identity.Known() {
		m.log.Warn("缺少商品标识，跳过生成")
		s.LastError = &PipelineError{
			Op:      "generate",
			Message: "The product could not be identified. Start again from your photos.",
			Recover: StageImageInput,
		}
		return ErrIdentityRequired
	}
	if imagesOnly {
		s.Selected = 0
	}

	req := GenerateRequest{
		ProductID:         s.Identity.ProductID,
		VariantID:         s.Identity.VariantID,
		ImageURIs:         s.ImageURLs(),
		CoverImageIndex:   0,
		SelectedPlatforms: s.Form.Platforms(),
		SelectedMatch:     MinimizeCandidate(s.SelectedCandidate()),
	}
	identity := s.Identity
	s.LastError = nil
	s.Stage = StageGenerating
	m.touch()
	m.launch(LabelGenerating, func(ctx context.Context, seq uint64) {
		m.runGeneration(ctx, seq, s, identity, req)
	})
	return nil
}

func (m *StageMachine) runGeneration(ctx context.Context, seq uint64, s *PipelineSession, identity ProductIdentity, req GenerateRequest) {
	raw, err := m.deps.Generator.Generate(ctx, req)
	var drafts DraftMap
	if err == nil {
		drafts, err = DecodeGenerated(raw, req.SelectedPlatforms)
	}

	m.mu.Lock()
	if !m.current(seq, s, StageGenerating) || s.Identity != identity {
		m.mu.Unlock()
		m.log.Info("忽略过期的生成结果")
		return
	}
	if err != nil {
		m.log.Error("生成商品详情失败", zap.Error(err))
		m.fail("generate", StageVisualMatch, "Listing generation failed. Your photos and product match were kept, please try again.")
		m.mu.Unlock()
		return
	}
	s.Form.Replace(drafts)
	s.Stage = StageFormReview
	m.finishOp()
	m.touch()
	saver := m.saver
	m.mu.Unlock()

	// 基线保存，之后的防抖保存都在此基础上覆盖
	if err := saver.SaveFieldsNow(ctx); err != nil {
		m.log.Warn("基线保存失败", zap.Error(err))
	}
	m.refreshLocations(ctx, s)
}

// ==================== 表单 ====================

// UpdateField 修改字段并重启字段通道计时
func (m *StageMachine) UpdateField(platform, field, raw string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireForm("update field"); err != nil {
		return err
	}
	if err := m.session.Form.UpdateField(platform, field, raw); err != nil {
		return err
	}
	m.touch()
	m.saver.NotifyFieldChange()
	return nil
}

// AddPlatform 新增平台
func (m *StageMachine) AddPlatform(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireForm("add platform"); err != nil {
		return err
	}
	if err := m.session.Form.AddPlatform(key); err != nil {
		return err
	}
	m.touch()
	m.saver.NotifyFieldChange()
	return nil
}

// RemovePlatform 删除平台及其库存
func (m *StageMachine) RemovePlatform(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireForm("remove platform"); err != nil {
		return err
	}
	s := m.session
	if err := s.Form.RemovePlatform(key); err != nil {
		return err
	}
	delete(s.Inventory, key)
	delete(s.Published, key)
	m.touch()
	m.saver.NotifyFieldChange()
	return nil
}

// SetActivePlatform 切换顶层列投影所用的平台
func (m *StageMachine) SetActivePlatform(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireForm("set active platform"); err != nil {
		return err
	}
	if err := m.session.Form.SetActive(key); err != nil {
		return err
	}
	m.touch()
	m.saver.NotifyFieldChange()
	return nil
}

// ==================== 库存 ====================

// SetQuantity 修改仓库数量并重启库存通道计时
func (m *StageMachine) SetQuantity(platform, locationID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireForm("set quantity"); err != nil {
		return err
	}
	if err := m.session.SetQuantity(platform, locationID, quantity); err != nil {
		return err
	}
	m.touch()
	m.saver.NotifyInventoryChange()
	return nil
}

// LoadLocations 拉取平台仓库列表，与已编辑数量合并
func (m *StageMachine) LoadLocations(ctx context.Context, platform string) ([]LocationInventory, error) {
	m.mu.Lock()
	s := m.session
	if _, ok := s.Form.Draft(platform); !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, platform)
	}
	conn := s.Connections[platform]
	ctx = WithCallScope(ctx, s.scope())
	m.mu.Unlock()
	if conn == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingConnection, platform)
	}

	locations, err := m.deps.Publisher.Locations(ctx, platform, conn)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != s {
		return nil, ErrSessionNotFound
	}
	s.MergeLocations(platform, locations)
	m.touch()
	return append([]LocationInventory(nil), s.Inventory[platform]...), nil
}

// refreshLocations 生成完成后为需要库存的平台预取仓库，失败只记录日志
func (m *StageMachine) refreshLocations(ctx context.Context, s *PipelineSession) {
	m.mu.Lock()
	var platforms []string
	for _, p := range s.Form.Platforms() {
		if m.deps.Publisher.RequiresLocations(p) && s.Connections[p] != "" && len(s.Inventory[p]) == 0 {
			platforms = append(platforms, p)
		}
	}
	m.mu.Unlock()

	for _, p := range platforms {
		if _, err := m.LoadLocations(ctx, p); err != nil {
			m.log.Warn("获取仓库列表失败", zap.String("platform", p), zap.Error(err))
		}
	}
}

// ==================== 补充媒体 ====================

// EditMedia 表单页 → 图片页，保留表单数据
func (m *StageMachine) EditMedia() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.require("edit media", StageFormReview); err != nil {
		return err
	}
	s := m.session
	s.editingMedia = true
	s.Stage = StageImageInput
	m.touch()
	return nil
}

// FinishMediaEdit 只上传新增媒体，刷新图片顺序后回到表单页
func (m *StageMachine) FinishMediaEdit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.require("finish media edit", StageImageInput); err != nil {
		return err
	}
	s := m.session
	if !s.editingMedia {
		return &StageError{Op: "finish media edit", Stage: s.Stage}
	}
	if s.Media.Len() == 0 && len(s.Uploaded) == 0 {
		return ErrNoMedia
	}
	if s.coverRejected {
		return ErrNoCover
	}

	items := s.pendingUploads()
	if len(items) == 0 {
		s.rebuildUploaded()
		m.backToForm()
		return nil
	}

	s.LastError = nil
	owner := s.OwnerID
	m.touch()
	m.launch(LabelUploading, func(ctx context.Context, seq uint64) {
		report := m.deps.Uploader.UploadAll(ctx, owner, items, m.cfg.UploadByteLimit)

		m.mu.Lock()
		defer m.mu.Unlock()
		if !m.current(seq, s, StageImageInput) || !s.editingMedia {
			m.log.Info("忽略过期的上传结果")
			return
		}
		if err := m.applyUploads(report); err != nil {
			m.fail("upload", StageImageInput, uploadFailureMessage(err))
			return
		}
		m.finishOp()
		m.backToForm()
	})
	return nil
}

func (m *StageMachine) backToForm() {
	s := m.session
	s.editingMedia = false
	s.Stage = StageFormReview
	m.touch()
	m.saver.NotifyFieldChange()
}

// ==================== 发布 ====================

// Publish 表单页 → 发布中；本地校验失败时不发起任何请求
func (m *StageMachine) Publish() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.require("publish", StageFormReview); err != nil {
		return err
	}
	s := m.session
	in := PublishInput{
		Identity:         s.Identity,
		Platforms:        s.Form.Platforms(),
		Drafts:           s.Form.Drafts(),
		Connections:      make(map[string]string, len(s.Connections)),
		Inventory:        make(map[string][]LocationInventory, len(s.Inventory)),
		AlreadyPublished: make(map[string]bool, len(s.Published)),
	}
	for k, v := range s.Connections {
		in.Connections[k] = v
	}
	for k, v := range s.Inventory {
		in.Inventory[k] = append([]LocationInventory(nil), v...)
	}
	for k, v := range s.Published {
		in.AlreadyPublished[k] = v
	}
	if err := m.deps.Publisher.Validate(in); err != nil {
		return err
	}

	s.LastError = nil
	s.Stage = StagePublishing
	saver := m.saver
	m.touch()
	m.launch(LabelPublishing, func(ctx context.Context, seq uint64) {
		if err := saver.FlushAll(ctx); err != nil {
			m.log.Warn("发布前保存草稿失败", zap.Error(err))
		}
		report, err := m.deps.Publisher.Publish(ctx, in)

		m.mu.Lock()
		defer m.mu.Unlock()
		if !m.current(seq, s, StagePublishing) {
			m.log.Info("忽略过期的发布结果")
			return
		}
		if err != nil {
			m.log.Error("发布失败", zap.Error(err))
			m.fail("publish", StageFormReview, "Publishing failed. Your listing was kept, please try again.")
			return
		}
		for _, o := range report.Outcomes {
			if o.Success {
				s.Published[o.Platform] = true
			}
		}
		if failed := report.Failed(); len(failed) > 0 {
			names := make([]string, 0, len(failed))
			for _, f := range failed {
				names = append(names, f.Platform)
			}
			s.LastPublish = &report
			m.fail("publish", StageFormReview,
				fmt.Sprintf("Publishing failed for %s. Your listing was kept, please try again.", strings.Join(names, ", ")))
			return
		}
		m.log.Info("发布完成", zap.String("product_id", in.Identity.ProductID))
		m.reset()
		m.session.LastPublish = &report
	})
	return nil
}

// ==================== 保存 / 放弃 / 恢复 ====================

// SaveDraft 同步保存草稿并结束会话；新会话回到平台选择，恢复的会话返回调用方页面
func (m *StageMachine) SaveDraft(ctx context.Context) (SaveResult, error) {
	m.mu.Lock()
	if err := m.requireForm("save draft"); err != nil {
		m.mu.Unlock()
		return SaveResult{}, err
	}
	s := m.session
	if !s.Identity.Known() {
		m.mu.Unlock()
		m.log.Warn("缺少商品标识，无法保存草稿")
		return SaveResult{}, ErrIdentityRequired
	}
	saver := m.saver
	m.inflight = true
	s.Loading = LabelSaving
	m.mu.Unlock()

	err := saver.FlushAll(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != s {
		return SaveResult{}, ErrSessionNotFound
	}
	m.finishOp()
	if err != nil {
		m.log.Warn("保存草稿失败", zap.Error(err))
		return SaveResult{}, err
	}

	res := SaveResult{Next: StagePlatformSelection}
	if s.Origin == OriginResumed {
		res.ReturnTo = s.ReturnTo
	}
	m.reset()
	return res, nil
}

// Abandon 放弃会话，丢弃未写入的修改
func (m *StageMachine) Abandon() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
}

// Recover 清除错误并回到错误指定的阶段
func (m *StageMachine) Recover() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.session
	if s.LastError == nil {
		return nil
	}
	if m.inflight {
		return &StageError{Op: "recover", Stage: s.Stage}
	}
	s.Stage = s.LastError.Recover
	if s.Stage != StageImageInput {
		s.editingMedia = false
	}
	s.LastError = nil
	m.touch()
	return nil
}

// Resume 以已存草稿初始化会话，直接进入表单页
func (m *StageMachine) Resume(stored *StoredDraft, returnTo string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.require("resume", StagePlatformSelection); err != nil {
		return err
	}
	s := m.session
	if err := s.Form.InitializeFrom(InitSource{
		Kind:      SourceStored,
		Options:   stored.Options,
		Fallback:  stored.Fallback,
		Platforms: stored.Platforms,
	}); err != nil {
		return err
	}
	s.Origin = OriginResumed
	s.ReturnTo = returnTo
	s.Identity = stored.Identity
	for i, url := range stored.ImageURLs {
		s.Uploaded = append(s.Uploaded, UploadedAsset{RemoteURL: url, MimeType: MimeTypeOf(extOf(url), MediaImage), StoragePath: fmt.Sprintf("stored/%d", i)})
	}
	for platform, conn := range stored.Connections {
		s.Connections[platform] = conn
	}
	for platform, locs := range stored.Inventory {
		s.Inventory[platform] = append([]LocationInventory(nil), locs...)
	}
	s.Stage = StageFormReview
	m.touch()
	return nil
}

// Seed 调试入口：用给定草稿直接进入表单页
func (m *StageMachine) Seed(identity ProductIdentity, drafts DraftMap, platforms []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.require("seed", StagePlatformSelection); err != nil {
		return err
	}
	s := m.session
	if err := s.Form.InitializeFrom(InitSource{Kind: SourceSeed, Drafts: drafts, Platforms: platforms}); err != nil {
		return err
	}
	s.Identity = identity
	s.Stage = StageFormReview
	m.touch()
	return nil
}

// Flush 同步写入待保存的修改（会话清理前调用）
func (m *StageMachine) Flush(ctx context.Context) error {
	m.mu.Lock()
	saver := m.saver
	m.mu.Unlock()
	if !saver.Pending() {
		return nil
	}
	err := saver.FlushAll(ctx)
	if errors.Is(err, ErrIdentityRequired) {
		return nil
	}
	return err
}

// Close 停止计时器
func (m *StageMachine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.saver.Stop()
}

// ==================== 内部工具 ====================

// require 阶段校验；有异步调用在途时拒绝一切主流程操作
func (m *StageMachine) require(op string, stages ...Stage) error {
	s := m.session
	if m.inflight {
		return &StageError{Op: op, Stage: s.Stage}
	}
	for _, st := range stages {
		if s.Stage == st {
			return nil
		}
	}
	return &StageError{Op: op, Stage: s.Stage}
}

// requireForm 表单页，或从表单页回到图片页补充媒体时
func (m *StageMachine) requireForm(op string) error {
	if err := m.require(op, StageFormReview, StageImageInput); err != nil {
		return err
	}
	if m.session.Stage == StageImageInput && !m.session.editingMedia {
		return &StageError{Op: op, Stage: StageImageInput}
	}
	return nil
}

func (m *StageMachine) mediaReady() error {
	s := m.session
	if s.Media.Len() == 0 {
		return ErrNoMedia
	}
	if _, ok := s.Media.Cover(); !ok || s.coverRejected {
		return ErrNoCover
	}
	return nil
}

// launch 发起异步调用，持锁调用
func (m *StageMachine) launch(label string, fn func(ctx context.Context, seq uint64)) {
	m.seq++
	seq := m.seq
	m.inflight = true
	m.session.Loading = label
	timeout := m.cfg.CallTimeout
	scope := m.session.scope()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(WithCallScope(context.Background(), scope), timeout)
		defer cancel()
		fn(ctx, seq)
	}()
}

// current 响应是否仍属于当前会话、当前调用和预期阶段
func (m *StageMachine) current(seq uint64, s *PipelineSession, stage Stage) bool {
	return m.seq == seq && m.session == s && s.Stage == stage
}

func (m *StageMachine) finishOp() {
	m.inflight = false
	m.session.Loading = ""
}

func (m *StageMachine) fail(op string, stage Stage, message string) {
	s := m.session
	s.Stage = stage
	s.LastError = &PipelineError{Op: op, Message: message, Recover: stage}
	m.finishOp()
	m.touch()
}

func (m *StageMachine) touch() {
	m.session.UpdatedAt = m.deps.Clock.Now()
}

// ==================== 自动保存快照 ====================

// sessionSource 绑定到某一个会话，会话被重置后返回空快照
type sessionSource struct {
	m *StageMachine
	s *PipelineSession
}

func (src sessionSource) FieldSnapshot() (FieldSnapshot, error) {
	src.m.mu.Lock()
	defer src.m.mu.Unlock()
	if src.m.session != src.s {
		return FieldSnapshot{}, nil
	}
	s := src.s
	opts, err := s.Form.Options()
	if err != nil {
		return FieldSnapshot{}, err
	}
	rec := VariantDraftRecord{Options: opts}
	if d := s.Form.ActiveDraft(); d != nil {
		rec.Title = d.Base.Title
		rec.Description = d.Base.Description
		rec.Price = cloneFloat(d.Base.Price)
		rec.Sku = d.Base.Sku
		rec.Barcode = d.Base.Barcode
		rec.CompareAtPrice = cloneFloat(d.Base.CompareAtPrice)
		rec.Weight = cloneFloat(d.Base.Weight)
		rec.WeightUnit = d.Base.WeightUnit
	}
	return FieldSnapshot{Identity: s.Identity, Record: rec, ImageURLs: s.ImageURLs()}, nil
}

func (src sessionSource) InventorySnapshot() InventorySnapshot {
	src.m.mu.Lock()
	defer src.m.mu.Unlock()
	if src.m.session != src.s {
		return InventorySnapshot{}
	}
	s := src.s
	snap := InventorySnapshot{VariantID: s.Identity.VariantID}

	platforms := make([]string, 0, len(s.Inventory))
	for p := range s.Inventory {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)

	for _, p := range platforms {
		locs := s.Inventory[p]
		conn := s.Connections[p]
		if conn == "" {
			if len(locs) > 0 {
				snap.MissingConnection = true
			}
			continue
		}
		for _, l := range locs {
			snap.Rows = append(snap.Rows, InventoryRecord{
				PlatformConnectionID: conn,
				PlatformLocationID:   l.LocationID,
				Quantity:             l.Quantity,
			})
		}
	}
	return snap
}
