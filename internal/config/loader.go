package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/any-hub/blobcache/internal/storage"
)

const (
	defaultListenPort    = 5000
	defaultCacheFolder   = "blobcache"
	defaultTTL           = 30 * 24 * time.Hour
	defaultSweepInterval = 10 * time.Minute
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := resolvePaths(&cfg.Global); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", defaultListenPort)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("Driver", storage.DefaultDriverKey())
	v.SetDefault("StoragePath", storage.DefaultRoot())
	v.SetDefault("FallbackPath", "")
	v.SetDefault("CacheFolder", defaultCacheFolder)
	v.SetDefault("DefaultTTL", defaultTTL.String())
	v.SetDefault("SweepInterval", defaultSweepInterval.String())
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = defaultListenPort
	}
	g.Driver = strings.ToLower(strings.TrimSpace(g.Driver))
	if g.Driver == "" {
		g.Driver = storage.DefaultDriverKey()
	}
	if strings.TrimSpace(g.CacheFolder) == "" {
		g.CacheFolder = defaultCacheFolder
	}
	if g.DefaultTTL.DurationValue() == 0 {
		g.DefaultTTL = Duration(defaultTTL)
	}
}

// resolvePaths 将本地目录转换为绝对路径，MinIO 驱动不使用 StoragePath。
func resolvePaths(g *GlobalConfig) error {
	if g.StoragePath != "" {
		abs, err := filepath.Abs(g.StoragePath)
		if err != nil {
			return fmt.Errorf("无法解析缓存目录: %w", err)
		}
		g.StoragePath = abs
	}
	if g.FallbackPath != "" {
		abs, err := filepath.Abs(g.FallbackPath)
		if err != nil {
			return fmt.Errorf("无法解析回退目录: %w", err)
		}
		g.FallbackPath = abs
	}
	return nil
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
