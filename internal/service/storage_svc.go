package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	storage "github.com/supabase-community/storage-go"

	"listing_studio_v1/internal/pipeline"
)

// ==================== 配置 ====================

type StorageConfig struct {
	Provider    string // "supabase" | "s3" | "local"
	Bucket      string
	Region      string
	AccessKey   string
	SecretKey   string
	Endpoint    string // 自定义端点 (S3 兼容存储)；local 时为访问前缀
	CDNDomain   string // CDN域名 (可选)
	BasePath    string // 基础路径前缀；local 时为本地目录
	SupabaseURL string
	SupabaseKey string
}

// ==================== 工厂方法 ====================

// NewStorageProvider 按配置创建对象存储，返回值满足 pipeline.BlobStore
func NewStorageProvider(cfg *StorageConfig) (pipeline.BlobStore, error) {
	switch cfg.Provider {
	case "supabase":
		return NewSupabaseStorage(cfg)
	case "s3":
		return NewS3Storage(cfg)
	case "local":
		return NewLocalStorage(cfg)
	default:
		return nil, fmt.Errorf("不支持的存储提供者: %s", cfg.Provider)
	}
}

// ==================== Supabase 实现 ====================

type SupabaseStorage struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

func NewSupabaseStorage(cfg *StorageConfig) (*SupabaseStorage, error) {
	if cfg.SupabaseURL == "" || cfg.SupabaseKey == "" {
		return nil, fmt.Errorf("缺少 Supabase 地址或密钥")
	}
	baseURL := strings.TrimRight(cfg.SupabaseURL, "/")
	return &SupabaseStorage{
		client:  storage.NewClient(baseURL+"/storage/v1", cfg.SupabaseKey, nil),
		bucket:  cfg.Bucket,
		baseURL: baseURL,
	}, nil
}

func (s *SupabaseStorage) Upload(ctx context.Context, storagePath string, data []byte, mimeType string) (string, error) {
	upsert := false
	_, err := s.client.UploadFile(s.bucket, storagePath, bytes.NewReader(data), storage.FileOptions{
		ContentType: &mimeType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("上传Supabase失败: %w", err)
	}
	return storagePath, nil
}

func (s *SupabaseStorage) PublicURL(ctx context.Context, storagePath string) (string, error) {
	if storagePath == "" {
		return "", fmt.Errorf("存储路径为空")
	}
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, storagePath), nil
}

func (s *SupabaseStorage) Remove(ctx context.Context, storagePath string) error {
	_, err := s.client.RemoveFile(s.bucket, []string{storagePath})
	return err
}

// ==================== S3 实现 ====================

type S3Storage struct {
	client    *s3.Client
	bucket    string
	region    string
	endpoint  string
	cdnDomain string
	basePath  string
}

// NewS3Storage 创建 S3 存储；配置 Endpoint 时按路径风格访问 S3 兼容服务
func NewS3Storage(cfg *StorageConfig) (*S3Storage, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	}
	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("加载AWS配置失败: %w", err)
	}

	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Storage{
		client:    client,
		bucket:    cfg.Bucket,
		region:    cfg.Region,
		endpoint:  endpoint,
		cdnDomain: cfg.CDNDomain,
		basePath:  strings.Trim(cfg.BasePath, "/"),
	}, nil
}

func (s *S3Storage) Upload(ctx context.Context, storagePath string, data []byte, mimeType string) (string, error) {
	key := s.key(storagePath)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return "", fmt.Errorf("上传S3失败: %w", err)
	}
	return key, nil
}

func (s *S3Storage) PublicURL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("存储路径为空")
	}
	switch {
	case s.cdnDomain != "":
		return fmt.Sprintf("https://%s/%s", s.cdnDomain, key), nil
	case s.endpoint != "":
		return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, key), nil
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key), nil
	}
}

func (s *S3Storage) Remove(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}

func (s *S3Storage) key(storagePath string) string {
	if s.basePath != "" {
		return s.basePath + "/" + storagePath
	}
	return storagePath
}

// ==================== 本地存储 (开发测试用) ====================

type LocalStorage struct {
	basePath string
	baseURL  string
}

func NewLocalStorage(cfg *StorageConfig) (*LocalStorage, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "./uploads"
	}
	baseURL := strings.TrimRight(cfg.Endpoint, "/")
	if baseURL == "" {
		baseURL = "http://localhost:8080/uploads"
	}
	return &LocalStorage{basePath: basePath, baseURL: baseURL}, nil
}

// Dir 本地存储根目录，供路由挂载静态文件
func (s *LocalStorage) Dir() string { return s.basePath }

func (s *LocalStorage) Upload(ctx context.Context, storagePath string, data []byte, mimeType string) (string, error) {
	full, err := s.resolve(storagePath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("创建目录失败: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("写入文件失败: %w", err)
	}
	return storagePath, nil
}

func (s *LocalStorage) PublicURL(ctx context.Context, storagePath string) (string, error) {
	if _, err := s.resolve(storagePath); err != nil {
		return "", err
	}
	return s.baseURL + "/" + storagePath, nil
}

func (s *LocalStorage) Remove(ctx context.Context, storagePath string) error {
	full, err := s.resolve(storagePath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// resolve 拒绝越出根目录的路径
func (s *LocalStorage) resolve(storagePath string) (string, error) {
	clean := filepath.Clean("/" + storagePath)
	if storagePath == "" || clean == "/" {
		return "", fmt.Errorf("存储路径为空")
	}
	return filepath.Join(s.basePath, filepath.FromSlash(clean)), nil
}
