package cache

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/blobcache/internal/storage"
)

// initialize 只执行一次：打开目录并由对象列表重建索引；失败时在回退后端上
// 删除同名旧目录并新建空目录。无论走哪条分支，最后都会异步触发一次过期清理。
func (c *Cache) initialize() {
	ctx := context.Background()
	defer func() {
		close(c.initDone)
		go c.Sweep(ctx)
	}()

	fields := logrus.Fields{
		"action": "cache_init",
		"root":   c.backend.Root(),
		"folder": c.folderName,
	}

	folder, err := c.backend.OpenFolder(ctx, c.folderName)
	if err == nil {
		var loaded int
		loaded, err = c.loadEntries(ctx, folder)
		if err == nil {
			c.handle.set(c.backend, folder)
			fields["entries"] = loaded
			c.logger.WithFields(fields).Info("cache folder ready")
			return
		}
	}
	c.logger.WithError(err).WithFields(fields).Warn("cache folder unusable, recreating")

	if dErr := c.fallback.DeleteFolder(ctx, c.folderName); dErr != nil {
		c.logger.WithError(dErr).WithFields(fields).Debug("delete stale cache folder failed")
	}
	folder, fErr := c.fallback.OpenFolder(ctx, c.folderName)
	if fErr != nil {
		c.initErr = fmt.Errorf("%w: %v", ErrInitialization, fErr)
		c.logger.WithError(fErr).WithFields(fields).Error("cache disabled: folder could not be created")
		return
	}
	c.handle.set(c.fallback, folder)
	fields["root"] = c.fallback.Root()
	c.logger.WithFields(fields).Info("cache folder recreated")
}

// loadEntries 将对象列表转换为索引条目，Origin 取对象在存储中的时间戳。
func (c *Cache) loadEntries(ctx context.Context, folder storage.Folder) (int, error) {
	objects, err := folder.List(ctx)
	if err != nil {
		return 0, err
	}

	loaded := 0
	for _, obj := range objects {
		key, ttl := parseFileName(obj.Name, c.defaultTTL)
		if key == "" {
			continue
		}
		if c.index.insertIfAbsent(key, Entry{Origin: obj.Created.UTC(), TTL: ttl, FileName: obj.Name}) {
			loaded++
		}
	}
	return loaded, nil
}
