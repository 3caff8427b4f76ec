package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/any-hub/blobcache/internal/storage"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.DefaultTTL.DurationValue() <= 0 {
		return newFieldError("Global.DefaultTTL", "必须大于 0")
	}
	if g.SweepInterval.DurationValue() < 0 {
		return newFieldError("Global.SweepInterval", "不能为负数")
	}
	if err := storage.ValidateName(g.CacheFolder); err != nil {
		return newFieldError("Global.CacheFolder", "必须是单级目录名")
	}

	meta, ok := storage.Resolve(g.Driver)
	if !ok {
		return newFieldError("Global.Driver", fmt.Sprintf("仅支持 %s", strings.Join(storage.Keys(), "|")))
	}

	switch meta.Key {
	case "disk":
		if g.StoragePath == "" {
			return newFieldError("Global.StoragePath", "不能为空")
		}
	case "minio":
		if err := c.validateMinio(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) validateMinio() error {
	m := c.Minio
	if strings.TrimSpace(m.Endpoint) == "" {
		return newFieldError(minioField("Endpoint"), "不能为空")
	}
	if strings.Contains(m.Endpoint, "://") {
		return newFieldError(minioField("Endpoint"), "不应包含协议头，使用 UseSSL 控制")
	}
	if strings.TrimSpace(m.Bucket) == "" {
		return newFieldError(minioField("Bucket"), "不能为空")
	}
	if (m.AccessKey == "") != (m.SecretKey == "") {
		return newFieldError(minioField("AccessKey/SecretKey"), "必须同时提供或同时留空")
	}
	return nil
}
