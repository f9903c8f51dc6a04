package middleware

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// CallRateLimit 远程调用限流中间件，按登录用户计数，须挂在 JWTAuth 之后
//
// 使用示例:
//
//	sessions.POST("/:id/analyze", middleware.CallRateLimit(limiter, "analyze"), ctl.Analyze)
func CallRateLimit(limiter *CallRateLimiter, callType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		key := "user:" + GetUserID(c) + ":" + callType
		result := limiter.Check(key)
		if !result.Allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code":    429,
				"message": formatRetryMessage(result.RetryAfter),
				"data": gin.H{
					"retry_after": int(math.Ceil(result.RetryAfter.Seconds())),
					"call_type":   callType,
				},
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// formatRetryMessage 格式化重试提示信息
func formatRetryMessage(d time.Duration) string {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 60 {
		return fmt.Sprintf("请求过于频繁，请 %d 秒后重试", seconds)
	}

	minutes := seconds / 60
	remainingSeconds := seconds % 60
	if remainingSeconds == 0 {
		return fmt.Sprintf("请求过于频繁，请 %d 分钟后重试", minutes)
	}
	return fmt.Sprintf("请求过于频繁，请 %d 分 %d 秒后重试", minutes, remainingSeconds)
}
