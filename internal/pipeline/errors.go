package pipeline

import (
	"errors"
	"fmt"
)

// ==================== 校验类错误（本地拦截，不发请求） ====================

var (
	ErrNoPlatforms         = errors.New("select at least one platform")
	ErrNoMedia             = errors.New("add at least one photo or video")
	ErrNoCover             = errors.New("choose a cover image")
	ErrNoInventoryQuantity = errors.New("set inventory quantity for at least one location")
	ErrMissingConnection   = errors.New("platform is not connected")
	ErrMediaLimitReached   = errors.New("media limit reached")
	ErrMediaNotFound       = errors.New("media item not found")
	ErrInvalidOrder        = errors.New("order must contain every media item exactly once")
	ErrUnknownPlatform     = errors.New("platform is not part of this listing")
	ErrLastPlatform        = errors.New("a listing needs at least one platform")
	ErrCandidateNotFound   = errors.New("visual match not found")
	ErrLocationNotFound    = errors.New("location not found")
	ErrNegativeQuantity    = errors.New("quantity cannot be negative")
)

// ==================== 前置条件 / 状态错误 ====================

var (
	// ErrIdentityRequired 缺少 productId/variantId 时调用生成或保存
	ErrIdentityRequired = errors.New("product identity is not known yet")
	// ErrCoverUploadFailed 封面上传失败，需要重新选择封面
	ErrCoverUploadFailed = errors.New("cover image failed to upload, choose another cover")
	// ErrNothingUploaded 整批上传全部失败
	ErrNothingUploaded = errors.New("no media could be uploaded")
	ErrSessionNotFound = errors.New("listing session not found")
)

// StageError 当前阶段不允许该操作
type StageError struct {
	Op    string
	Stage Stage
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s is not allowed in stage %s", e.Op, e.Stage)
}

// IsStageError 判断是否为阶段错误
func IsStageError(err error) bool {
	var se *StageError
	return errors.As(err, &se)
}

// IsValidation 判断是否为本地校验错误（前端可直接提示）
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrNoPlatforms, ErrNoMedia, ErrNoCover, ErrNoInventoryQuantity,
		ErrMissingConnection, ErrMediaLimitReached, ErrInvalidOrder,
		ErrUnknownPlatform, ErrLastPlatform, ErrNegativeQuantity,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// PipelineError 异步调用失败后挂在会话上的错误投影
type PipelineError struct {
	Op      string `json:"op"`
	Message string `json:"message"`
	Recover Stage  `json:"recover_to"`
}
