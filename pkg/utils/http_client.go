package utils

import (
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// NewAPIClient 创建访问上架后端的 Resty 客户端，统一超时、UA 与鉴权头
func NewAPIClient(baseURL, token string, timeout time.Duration, debug bool) *resty.Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetDebug(debug).
		SetTimeout(timeout).
		SetHeader("User-Agent", "Listing-Studio/1.0").
		SetHeader("Accept", "application/json")

	if token != "" {
		client.SetAuthToken(token)
	}
	return client
}
