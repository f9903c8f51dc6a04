package controller

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"listing_studio_v1/internal/api/dto"
	"listing_studio_v1/internal/middleware"
	"listing_studio_v1/internal/pipeline"
	"listing_studio_v1/internal/service"
)

// ==================== 控制器 ====================

// ListingController 上架会话控制器
type ListingController struct {
	listingService *service.ListingService
	log            *zap.Logger
}

func NewListingController(listingService *service.ListingService, log *zap.Logger) *ListingController {
	if log == nil {
		log = zap.NewNop()
	}
	return &ListingController{listingService: listingService, log: log.Named("ListingController")}
}

// ==================== 响应辅助 ====================

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"code":    0,
		"message": "success",
		"data":    data,
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"code":    400,
		"message": message,
	})
}

// fail 按错误类别映射状态码
func (ctrl *ListingController) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case pipeline.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, pipeline.ErrSessionNotFound),
		errors.Is(err, service.ErrDraftNotFound),
		errors.Is(err, pipeline.ErrMediaNotFound),
		errors.Is(err, pipeline.ErrCandidateNotFound),
		errors.Is(err, pipeline.ErrLocationNotFound):
		status = http.StatusNotFound
	case pipeline.IsStageError(err),
		errors.Is(err, pipeline.ErrIdentityRequired),
		errors.Is(err, pipeline.ErrCoverUploadFailed),
		errors.Is(err, pipeline.ErrNothingUploaded):
		status = http.StatusConflict
	case errors.Is(err, service.ErrMediaTooLarge):
		status = http.StatusRequestEntityTooLarge
	}
	if status == http.StatusInternalServerError {
		ctrl.log.Error("请求处理失败", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{
		"code":    status,
		"message": err.Error(),
	})
}

// session 取路径中的会话，不存在时已写入响应
func (ctrl *ListingController) session(c *gin.Context) (*pipeline.StageMachine, bool) {
	m, err := ctrl.listingService.Session(middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		ctrl.fail(c, err)
		return nil, false
	}
	return m, true
}

// apply 执行一次会话操作并返回最新视图
func (ctrl *ListingController) apply(c *gin.Context, status int, op func(m *pipeline.StageMachine) error) {
	m, found := ctrl.session(c)
	if !found {
		return
	}
	if err := op(m); err != nil {
		ctrl.fail(c, err)
		return
	}
	ok(c, status, m.Snapshot())
}

// ==================== 会话 ====================

// CreateSession 新建上架会话
// @Summary 新建上架会话
// @Tags Listing
// @Produce json
// @Success 201 {object} pipeline.SessionView
// @Router /api/listing-sessions [post]
func (ctrl *ListingController) CreateSession(c *gin.Context) {
	m, err := ctrl.listingService.Create(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		ctrl.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, m.Snapshot())
}

// ResumeSession 从已保存变体恢复会话
// @Summary 恢复已保存的变体草稿
// @Tags Listing
// @Accept json
// @Param body body dto.ResumeSessionRequest true "恢复请求"
// @Success 201 {object} pipeline.SessionView
// @Router /api/listing-sessions/resume [post]
func (ctrl *ListingController) ResumeSession(c *gin.Context) {
	var req dto.ResumeSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "参数错误: "+err.Error())
		return
	}
	m, err := ctrl.listingService.Resume(c.Request.Context(), middleware.GetUserID(c), req.VariantID, req.ReturnTo)
	if err != nil {
		ctrl.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, m.Snapshot())
}

// GetSession 会话当前视图
// @Summary 获取会话
// @Tags Listing
// @Param id path string true "会话ID"
// @Success 200 {object} pipeline.SessionView
// @Router /api/listing-sessions/{id} [get]
func (ctrl *ListingController) GetSession(c *gin.Context) {
	m, found := ctrl.session(c)
	if !found {
		return
	}
	ok(c, http.StatusOK, m.Snapshot())
}

// DeleteSession 关闭会话，未保存的修改被丢弃
// @Summary 关闭会话
// @Tags Listing
// @Param id path string true "会话ID"
// @Success 200 {object} map[string]interface{}
// @Router /api/listing-sessions/{id} [delete]
func (ctrl *ListingController) DeleteSession(c *gin.Context) {
	if err := ctrl.listingService.Drop(middleware.GetUserID(c), c.Param("id")); err != nil {
		ctrl.fail(c, err)
		return
	}
	ok(c, http.StatusOK, nil)
}

// SeedSession 调试入口
// @Summary 用给定草稿直接进入表单页
// @Tags Listing
// @Accept json
// @Param id path string true "会话ID"
// @Param body body dto.SeedSessionRequest true "草稿"
// @Success 200 {object} pipeline.SessionView
// @Router /api/listing-sessions/{id}/seed [post]
func (ctrl *ListingController) SeedSession(c *gin.Context) {
	var req dto.SeedSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "参数错误: "+err.Error())
		return
	}
	ctrl.apply(c, http.StatusOK, func(m *pipeline.StageMachine) error {
		return m.Seed(req.Identity, req.Drafts, req.Platforms)
	})
}

// ==================== 平台 ====================

// ConfirmPlatforms 确认平台，进入图片输入
// @Summary 确认平台
// @Tags Listing
// @Accept json
// @Param id path string true "会话ID"
// @Param body body dto.ConfirmPlatformsRequest true "平台列表"
// @Success 200 {object} pipeline.SessionView
// @Router /api/listing-sessions/{id}/platforms [post]
func (ctrl *ListingController) ConfirmPlatforms(c *gin.Context) {
	var req dto.ConfirmPlatformsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "参数错误: "+err.Error())
		return
	}
	ctrl.apply(c, http.StatusOK, func(m *pipeline.StageMachine) error {
		return m.ConfirmPlatforms(req.Platforms)
	})
}

// SetConnection 绑定平台连接
// @Summary 绑定平台连接
// @Tags Listing
// @Accept json
// @Param id path string true "会话ID"
// @Param platform path string true "平台"
// @Param body body dto.SetConnectionRequest true "连接"
// @Success 200 {object} pipeline.SessionView
// @Router /api/listing-sessions/{id}/connections/{platform} [put]
func (ctrl *ListingController) SetConnection(c *gin.Context) {
	var req dto.SetConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "参数错误: "+err.Error())
		return
	}
	ctrl.apply(c, http.StatusOK, func(m *pipeline.StageMachine) error {
		return m.SetConnection(c.Param("platform"), req.ConnectionID)
	})
}

// AddPlatform 表单页新增平台
// @Summary 新增平台
// @Tags Listing
// @Param id path string true "会话ID"
// @Param platform path string true "平台"
// @Success 200 {object} pipeline.SessionView
// @Router /api/listing-sessions/{id}/platforms/{platform} [post]
func (ctrl *ListingController) AddPlatform(c *gin.Context) {
	ctrl.apply(c, http.StatusOK, func(m *pipeline.StageMachine) error {
		return m.AddPlatform(c.Param("platform"))
	})
}

// RemovePlatform 表单页移除平台
// @Summary 移除平台
// @Tags Listing
// @Param id path string true "会话ID"
// @Param platform path string true "平台"
// @Success 200 {object} pipeline.SessionView
// @Router /api/listing-sessions/{id}/platforms/{platform} [delete]
func (ctrl *ListingController) RemovePlatform(c *gin.Context) {
	ctrl.apply(c, http.StatusOK, func(m *pipeline.StageMachine) error {
		return m.RemovePlatform(c.Param("platform"))
	})
}

// SetActivePlatform 切换当前编辑的平台
// @Summary 切换当前平台
// @Tags Listing
// @Accept json
// @Param id path string true "会话ID"
// @Param body body dto.SetActivePlatformRequest true "平台"
// @Success 200 {object} pipeline.SessionView
// @Router /api/listing-sessions/{id}/active-platform [put]
func (ctrl *ListingController) SetActivePlatform(c *gin.Context) {
	var req dto.SetActivePlatformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "参数错误: "+err.Error())
		return
	}
	ctrl.apply(c, http.StatusOK, func(m *pipeline.StageMachine) error {
		return m.SetActivePlatform(req.Platform)
	})
}

// ==================== 媒体 ====================

// AddMedia 按 URI 添加媒体
// @Summary 添加媒体
// @Tags Listing
// @Accept json
// @Param id path string true "会话ID"
// @Param body body dto.AddMediaRequest true "媒体"
// @Success 200 {object} dto.AddMediaResponse
// @Router /api/listing-sessions/{id}/media [post]
func (ctrl *ListingController) AddMedia(c *gin.Context) {
	var req dto.AddMediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "参数错误: "+err.Error())
		return
	}
	ctrl.addMedia(c, req.Items)
}

// UploadMedia 上传文件到暂存目录后加入会话
// @Summary 上传媒体文件
// @Tags Listing
// @Accept multipart/form-data
// @Param id path string true "会话ID"
// @Param files formData file true "图片或视频，可多个"
// @Success 200 {object} dto.AddMediaResponse
// @Router /api/listing-sessions/{id}/media/upload [post]
func (ctrl *ListingController) UploadMedia(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "参数错误: "+err.Error())
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		badRequest(c, "未上传文件")
		return
	}

	owner := middleware.GetUserID(c)
	inputs := make([]pipeline.MediaInput, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			ctrl.fail(c, err)
			return
		}
		in, err := ctrl.listingService.Stage(owner, fh.Filename, f)
		f.Close()
		if err != nil {
			ctrl.fail(c, err)
			return
		}
		inputs = append(inputs, in)
	}
	ctrl.addMedia(c, inputs)
}

func (ctrl *ListingController) addMedia(c *gin.Context, inputs []pipeline.MediaInput) {
	m, found := ctrl.session(c)
	if !found {
		return
	}
	res, err := m.AddMedia(inputs)
	if err != nil {
		ctrl.fail(c, err)
		return
	}
	ok(c, http.StatusOK, dto.AddMediaResponse{Result: res, Session: m.Snapshot()})
}

// RemoveMedia 删除媒体
// @Summary 删除媒体
// @Tags Listing
// @Param id path string true "会话ID"
// @Param media_id path string true "媒体ID"
// @Success 200 {object} pipeline.SessionView
// @Router /api/listing-sessions/{id}/media/{media_id} [delete]
func (ctrl *ListingController) RemoveMedia(c *gin.Context) {
	ctrl.apply(c, http.StatusOK, func(m *pipeline.StageMachine) error {
		return m.RemoveMedia(c.Param("media_id"))
	})
}

// ReorderMedia 调整媒体顺序
// @Summary 调整媒体顺序
// @Tags Listing
// @Accept json
// @Param id path string true "会话ID"
// @Param body body dto.ReorderMediaRequest true "新顺序"
// @Success 200 {object} pipeline.SessionView
// @Router /api/listing-sessions/{id}/media/order [put]
func (ctrl *ListingController) ReorderMedia(c *gin.Context) {
	var req dto.ReorderMediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "参数错误: "+err.Error())
		return
	}
	ctrl.apply(c, http.StatusOK, func(m *pipeline.StageMachine) error {
		return m.ReorderMedia(req.Order)
	})
}

// SetCover 设置封面
// @Summary 设置封面
// @Tags Listing
// @Accept json
// @Param id path string true "会话ID"
// @Param body body dto.SetCoverRequest true "封面"
// @Success 200 {object} pipeline.SessionView
// @Router /api/listing-sessions/{id}/media/cover [put]
func (ctrl *ListingController) SetCover(c *gin.Context) {
	var req dto.SetCoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "参数错误: "+err.Error())
		return
	}
	ctrl.apply(c, http.StatusOK, func(m *pipeline.StageMachine) error {
		return m.SetCover(req.MediaID)
	})
}

// EditMedia 从表单页回到图片页
// @Summary 编辑媒体
// @Tags Listing
// @Param id path string true "会话ID"
// @Success 200 {object} pipeline.SessionView
// @Router /api/listing-sessions/{id}/media/edit [post]
func (ctrl *ListingController) EditMedia(c *gin.Context) {
	ctrl.apply(c, http.StatusOK, func(m *pipeline.StageMachine) error {
		return m.EditMedia()
	})
}

// FinishMediaEdit 上传新增媒体后回到表单页
// @Summary 完成媒体编辑
// @Tags Listing
// @Param id path string true "会话ID"
// @Success 202 {object} pipeline.SessionView
// @Router /api/listing-sessions/{id}/media/edit/finish [post]
func (ctrl *ListingController) FinishMediaEdit(c *gin.Context) {
	ctrl.apply(c, http.StatusAccepted, func(m *pipeline.StageMachine) error {
		return m.FinishMediaEdit()
	})
}

// ==================== 分析与生成 ====================

// StartAnalysis 上传媒体并发起视觉匹配，结果异步写入会话
// @Summary 开始分析
// @Tags Listing
// @Param id path string true "会话ID"
// @Success 202 {object} pipeline.SessionView
// @Failure 429 {object} map[string]interface{}
// @Router /api/listing-sessions/{id}/analyze [post]
func (ctrl *ListingController) StartAnalysis(c *gin.Context) {
	ctrl.apply(c, http.StatusAccepted, func(m *pipeline.StageMachine) error {
		return m.StartAnalysis()
	})
}

// SelectCandidate 选择或取消选择视觉匹配候选
// @Summary 选择候选
// @Tags Listing
// @Accept json
// @Param id path string true "会话ID"
// @Param body body dto.SelectCandidateRequest true "候选"
// @Success 200 {object} pipeline.SessionView
// @Router /api/listing-sessions/{id}/candidate [put]
func (ctrl *ListingController) SelectCandidate(c *gin.Context) {
	var req dto.SelectCandidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "参数错误: "+err.Error())
		return
	}
	ctrl.apply(c, http.StatusOK, func(m *pipeline.StageMachine) error {
		return m.SelectCandidate(req.Position)
	})
}

// Generate 生成上架详情，结果异步写入会话
// @Summary 生成详情
// @Tags Listing
// @Accept json
// @Param id path string true "会话ID"
// @Param body body dto.GenerateRequest false "生成选项"
// @Success 202 {object} pipeline.SessionView
// @Failure 429 {object} map[string]interface{}
// @Router /api/listing-sessions/{id}/generate [post]
func (ctrl *ListingController) Generate(c *gin.Context) {
	var req dto.GenerateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "参数错误: "+err.Error())
			return
		}
	}
	ctrl.apply(c, http.StatusAccepted, func(m *pipeline.StageMachine) error {
		if req.ImagesOnly {
			return m.UseImagesOnly()
		}
		return m.Generate()
	})
}

// ==================== 表单与库存 ====================

// UpdateField 修改表单字段，platform 为空时使用当前平台
// @Summary 修改字段
// @Tags Listing
// @Accept json
// @Param id path string true "会话ID"
// @Param body body dto.UpdateFieldRequest true "字段"
// @Success 200 {object} pipeline.SessionView
// @Router /api/listing-sessions/{id}/fields [patch]
func (ctrl *ListingController) UpdateField(c *gin.Context) {
	var req dto.UpdateFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "参数错误: "+err.Error())
		return
	}
	ctrl.apply(c, http.StatusOK, func(m *pipeline.StageMachine) error {
		platform := req.Platform
		if platform == "" {
			platform = m.Snapshot().ActivePlatform
		}
		return m.UpdateField(platform, req.Field, req.Value)
	})
}

// LoadLocations 拉取平台仓库并合并到库存
// @Summary 拉取仓库
// @Tags Listing
// @Param id path string true "会话ID"
// @Param platform path string true "平台"
// @Success 200 {object} dto.LocationsResponse
// @Router /api/listing-sessions/{id}/locations/{platform} [get]
func (ctrl *ListingController) LoadLocations(c *gin.Context) {
	m, found := ctrl.session(c)
	if !found {
		return
	}
	locs, err := m.LoadLocations(c.Request.Context(), c.Param("platform"))
	if err != nil {
		ctrl.fail(c, err)
		return
	}
	ok(c, http.StatusOK, dto.LocationsResponse{Locations: locs, Session: m.Snapshot()})
}

// SetQuantity 修改仓库数量
// @Summary 修改库存
// @Tags Listing
// @Accept json
// @Param id path string true "会话ID"
// @Param body body dto.SetQuantityRequest true "库存"
// @Success 200 {object} pipeline.SessionView
// @Router /api/listing-sessions/{id}/inventory [put]
func (ctrl *ListingController) SetQuantity(c *gin.Context) {
	var req dto.SetQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "参数错误: "+err.Error())
		return
	}
	ctrl.apply(c, http.StatusOK, func(m *pipeline.StageMachine) error {
		return m.SetQuantity(req.Platform, req.LocationID, *req.Quantity)
	})
}

// ==================== 发布与保存 ====================

// Publish 发布到所有已选平台，结果异步写入会话
// @Summary 发布
// @Tags Listing
// @Param id path string true "会话ID"
// @Success 202 {object} pipeline.SessionView
// @Failure 429 {object} map[string]interface{}
// @Router /api/listing-sessions/{id}/publish [post]
func (ctrl *ListingController) Publish(c *gin.Context) {
	ctrl.apply(c, http.StatusAccepted, func(m *pipeline.StageMachine) error {
		return m.Publish()
	})
}

// SaveDraft 立即保存并结束会话
// @Summary 保存草稿
// @Tags Listing
// @Param id path string true "会话ID"
// @Success 200 {object} dto.SaveDraftResponse
// @Router /api/listing-sessions/{id}/save [post]
func (ctrl *ListingController) SaveDraft(c *gin.Context) {
	m, found := ctrl.session(c)
	if !found {
		return
	}
	res, err := m.SaveDraft(c.Request.Context())
	if err != nil {
		ctrl.fail(c, err)
		return
	}
	ok(c, http.StatusOK, dto.SaveDraftResponse{Result: res, Session: m.Snapshot()})
}

// Abandon 放弃当前会话内容，回到平台选择
// @Summary 放弃
// @Tags Listing
// @Param id path string true "会话ID"
// @Success 200 {object} pipeline.SessionView
// @Router /api/listing-sessions/{id}/abandon [post]
func (ctrl *ListingController) Abandon(c *gin.Context) {
	ctrl.apply(c, http.StatusOK, func(m *pipeline.StageMachine) error {
		m.Abandon()
		return nil
	})
}

// Recover 清除错误，回到可重试的阶段
// @Summary 从错误恢复
// @Tags Listing
// @Param id path string true "会话ID"
// @Success 200 {object} pipeline.SessionView
// @Router /api/listing-sessions/{id}/recover [post]
func (ctrl *ListingController) Recover(c *gin.Context) {
	ctrl.apply(c, http.StatusOK, func(m *pipeline.StageMachine) error {
		return m.Recover()
	})
}

// ==================== 统计 ====================

// GetUsage 远程调用统计
// @Summary 调用统计
// @Tags Listing
// @Param days query int false "统计天数，默认 30"
// @Success 200 {object} repository.AIUsageStats
// @Router /api/listing-usage [get]
func (ctrl *ListingController) GetUsage(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil || days <= 0 {
		badRequest(c, "无效的天数")
		return
	}
	end := time.Now()
	stats, err := ctrl.listingService.Usage(c.Request.Context(), middleware.GetUserID(c), end.AddDate(0, 0, -days), end)
	if err != nil {
		ctrl.fail(c, err)
		return
	}
	ok(c, http.StatusOK, stats)
}

// GetSessionCalls 会话内的远端调用记录
// @Summary 会话调用记录
// @Tags Listing
// @Param id path string true "会话ID"
// @Success 200 {array} dto.CallLogItem
// @Router /api/listing-sessions/{id}/calls [get]
func (ctrl *ListingController) GetSessionCalls(c *gin.Context) {
	logs, err := ctrl.listingService.SessionCalls(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		ctrl.fail(c, err)
		return
	}
	items := make([]dto.CallLogItem, 0, len(logs))
	for _, l := range logs {
		items = append(items, dto.CallLogItem{
			ID:         l.ID,
			CallType:   l.CallType,
			Provider:   l.Provider,
			Platform:   l.Platform,
			DurationMs: l.DurationMs,
			Status:     l.Status,
			ErrorMsg:   l.ErrorMsg,
			CreatedAt:  l.CreatedAt,
		})
	}
	ok(c, http.StatusOK, items)
}
