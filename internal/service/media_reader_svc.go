package service

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-resty/resty/v2"
)

// MediaReader 读取媒体字节：http(s) 走 Resty，本地路径只允许暂存目录内的文件
type MediaReader struct {
	client     *resty.Client
	stagingDir string
	maxBytes   int64
}

// NewMediaReader stagingDir 为空时拒绝所有本地路径
func NewMediaReader(client *resty.Client, stagingDir string, maxBytes int64) *MediaReader {
	if stagingDir != "" {
		if abs, err := filepath.Abs(stagingDir); err == nil {
			stagingDir = abs
		}
	}
	return &MediaReader{client: client, stagingDir: stagingDir, maxBytes: maxBytes}
}

func (r *MediaReader) Read(ctx context.Context, uri string) ([]byte, error) {
	u, err := url.Parse(uri)
	if err == nil {
		switch u.Scheme {
		case "http", "https":
			return r.readRemote(ctx, uri)
		case "file":
			return r.readLocal(u.Path)
		}
	}
	return r.readLocal(uri)
}

func (r *MediaReader) readRemote(ctx context.Context, uri string) ([]byte, error) {
	resp, err := r.client.R().SetContext(ctx).Get(uri)
	if err != nil {
		return nil, fmt.Errorf("下载媒体失败: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("下载媒体失败 (Status %d)", resp.StatusCode())
	}
	body := resp.Body()
	if r.maxBytes > 0 && int64(len(body)) > r.maxBytes {
		return nil, fmt.Errorf("媒体大小 %d 超过读取上限", len(body))
	}
	return body, nil
}

func (r *MediaReader) readLocal(path string) ([]byte, error) {
	if r.stagingDir == "" {
		return nil, fmt.Errorf("不允许读取本地文件: %s", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(abs, r.stagingDir+string(filepath.Separator)) {
		return nil, fmt.Errorf("文件不在暂存目录内: %s", path)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("读取媒体失败: %w", err)
	}
	if r.maxBytes > 0 && info.Size() > r.maxBytes {
		return nil, fmt.Errorf("媒体大小 %d 超过读取上限", info.Size())
	}
	return os.ReadFile(abs)
}
