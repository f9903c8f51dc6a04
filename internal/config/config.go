// Package config 负责加载服务配置：默认值 < config.yaml < 环境变量
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 服务全部配置
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	AI        AIConfig        `mapstructure:"ai"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	AutoSave  AutoSaveConfig  `mapstructure:"autosave"`
	Platforms PlatformsConfig `mapstructure:"platforms"`
	Sessions  SessionsConfig  `mapstructure:"sessions"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
}

type DatabaseConfig struct {
	URL         string `mapstructure:"url"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// StorageConfig 对象存储，provider 取 supabase / s3 / local
type StorageConfig struct {
	Provider    string `mapstructure:"provider"`
	Bucket      string `mapstructure:"bucket"`
	Region      string `mapstructure:"region"`
	AccessKey   string `mapstructure:"access_key"`
	SecretKey   string `mapstructure:"secret_key"`
	Endpoint    string `mapstructure:"endpoint"`
	CDNDomain   string `mapstructure:"cdn_domain"`
	BasePath    string `mapstructure:"base_path"`
	SupabaseURL string `mapstructure:"supabase_url"`
	SupabaseKey string `mapstructure:"supabase_key"`
}

// AIConfig 分析/生成/发布后端；generator 为 gemini 时生成走 Gemini
type AIConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Token       string        `mapstructure:"token"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Generator   string        `mapstructure:"generator"`
	GeminiKey   string        `mapstructure:"gemini_key"`
	GeminiModel string        `mapstructure:"gemini_model"`
}

type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

type PipelineConfig struct {
	MaxMedia        int           `mapstructure:"max_media"`
	UploadByteLimit int           `mapstructure:"upload_byte_limit"`
	DefaultPlatform string        `mapstructure:"default_platform"`
	CallTimeout     time.Duration `mapstructure:"call_timeout"`
	StagingDir      string        `mapstructure:"staging_dir"`
	JPEGQuality     int           `mapstructure:"jpeg_quality"`
	MaxImageEdge    int           `mapstructure:"max_image_edge"`
}

type AutoSaveConfig struct {
	FieldDelay     time.Duration `mapstructure:"field_delay"`
	InventoryDelay time.Duration `mapstructure:"inventory_delay"`
	MaxWait        time.Duration `mapstructure:"max_wait"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

type PlatformsConfig struct {
	LocationRequired []string `mapstructure:"location_required"`
}

// SessionsConfig 闲置会话清理
type SessionsConfig struct {
	IdleTTL     time.Duration `mapstructure:"idle_ttl"`
	CleanupCron string        `mapstructure:"cleanup_cron"`
}

// RateLimitConfig 每个用户对远端调用接口的限流
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.env", "debug")
	v.SetDefault("server.log_level", "")

	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("storage.provider", "supabase")
	v.SetDefault("storage.bucket", "product-images")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.base_path", "")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.cdn_domain", "")

	v.SetDefault("ai.base_url", "")
	v.SetDefault("ai.timeout", 3*time.Minute)
	v.SetDefault("ai.generator", "http")
	v.SetDefault("ai.gemini_model", "gemini-2.0-flash")

	v.SetDefault("jwt.issuer", "listing-studio")
	v.SetDefault("jwt.access_token_ttl", 2*time.Hour)

	v.SetDefault("pipeline.max_media", 10)
	v.SetDefault("pipeline.upload_byte_limit", 0)
	v.SetDefault("pipeline.default_platform", "shopify")
	v.SetDefault("pipeline.call_timeout", 3*time.Minute)
	v.SetDefault("pipeline.staging_dir", "")
	v.SetDefault("pipeline.jpeg_quality", 80)
	v.SetDefault("pipeline.max_image_edge", 2048)

	v.SetDefault("autosave.field_delay", 1500*time.Millisecond)
	v.SetDefault("autosave.inventory_delay", time.Second)
	v.SetDefault("autosave.max_wait", 10*time.Second)
	v.SetDefault("autosave.write_timeout", 15*time.Second)

	v.SetDefault("platforms.location_required", []string{"shopify"})

	v.SetDefault("sessions.idle_ttl", 2*time.Hour)
	v.SetDefault("sessions.cleanup_cron", "0 */10 * * * *")

	v.SetDefault("rate_limit.rps", 0.5)
	v.SetDefault("rate_limit.burst", 3)
}

// Load 读取配置；path 为空时在当前目录查找 config.yaml，找不到不算错误
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("LISTING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 常见的无前缀密钥变量
	_ = v.BindEnv("server.port", "LISTING_SERVER_PORT", "PORT")
	_ = v.BindEnv("database.url", "LISTING_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("storage.supabase_url", "LISTING_STORAGE_SUPABASE_URL", "SUPABASE_URL")
	_ = v.BindEnv("storage.supabase_key", "LISTING_STORAGE_SUPABASE_KEY", "SUPABASE_SERVICE_KEY")
	_ = v.BindEnv("storage.access_key", "LISTING_STORAGE_ACCESS_KEY", "AWS_ACCESS_KEY_ID")
	_ = v.BindEnv("storage.secret_key", "LISTING_STORAGE_SECRET_KEY", "AWS_SECRET_ACCESS_KEY")
	_ = v.BindEnv("storage.region", "LISTING_STORAGE_REGION", "AWS_REGION")
	_ = v.BindEnv("jwt.secret", "LISTING_JWT_SECRET", "JWT_SECRET")
	_ = v.BindEnv("ai.token", "LISTING_AI_TOKEN", "AI_API_TOKEN")
	_ = v.BindEnv("ai.gemini_key", "LISTING_AI_GEMINI_KEY", "GEMINI_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate 启动服务前检查必填项
func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "database.url")
	}
	if c.JWT.Secret == "" {
		missing = append(missing, "jwt.secret")
	}
	if c.AI.BaseURL == "" {
		missing = append(missing, "ai.base_url")
	}
	switch c.Storage.Provider {
	case "supabase":
		if c.Storage.SupabaseURL == "" || c.Storage.SupabaseKey == "" {
			missing = append(missing, "storage.supabase_url/supabase_key")
		}
	case "s3", "local":
	default:
		return fmt.Errorf("unsupported storage provider: %s", c.Storage.Provider)
	}
	if c.AI.Generator == "gemini" && c.AI.GeminiKey == "" {
		missing = append(missing, "ai.gemini_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}
