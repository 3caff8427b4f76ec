package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/any-hub/blobcache/internal/storage"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述进程级运行参数：日志、监听端口与缓存存储。
type GlobalConfig struct {
	ListenPort    int      `mapstructure:"ListenPort"`
	LogLevel      string   `mapstructure:"LogLevel"`
	LogFilePath   string   `mapstructure:"LogFilePath"`
	LogMaxSize    int      `mapstructure:"LogMaxSize"`
	LogMaxBackups int      `mapstructure:"LogMaxBackups"`
	LogCompress   bool     `mapstructure:"LogCompress"`
	Driver        string   `mapstructure:"Driver"`
	StoragePath   string   `mapstructure:"StoragePath"`
	FallbackPath  string   `mapstructure:"FallbackPath"`
	CacheFolder   string   `mapstructure:"CacheFolder"`
	DefaultTTL    Duration `mapstructure:"DefaultTTL"`
	SweepInterval Duration `mapstructure:"SweepInterval"`
}

// MinioConfig 对应 [Minio] 段，仅在 Driver = "minio" 时生效。
type MinioConfig struct {
	Endpoint  string `mapstructure:"Endpoint"`
	AccessKey string `mapstructure:"AccessKey"`
	SecretKey string `mapstructure:"SecretKey"`
	Bucket    string `mapstructure:"Bucket"`
	Prefix    string `mapstructure:"Prefix"`
	Region    string `mapstructure:"Region"`
	UseSSL    bool   `mapstructure:"UseSSL"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Minio  MinioConfig  `mapstructure:"Minio"`
}

// StorageParams 将配置转换为存储驱动工厂参数。
func (c *Config) StorageParams() storage.Params {
	return storage.Params{
		Root: c.Global.StoragePath,
		Minio: storage.MinioOptions{
			Endpoint:  c.Minio.Endpoint,
			AccessKey: c.Minio.AccessKey,
			SecretKey: c.Minio.SecretKey,
			Bucket:    c.Minio.Bucket,
			Prefix:    c.Minio.Prefix,
			Region:    c.Minio.Region,
			UseSSL:    c.Minio.UseSSL,
		},
	}
}

// FallbackParams 返回回退目录的驱动参数；未配置 FallbackPath 时 ok 为 false。
// 回退目录总是本地磁盘。
func (c *Config) FallbackParams() (storage.Params, bool) {
	if c.Global.FallbackPath == "" {
		return storage.Params{}, false
	}
	return storage.Params{Root: c.Global.FallbackPath}, true
}
