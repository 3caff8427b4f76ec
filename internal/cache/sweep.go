package cache

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/blobcache/internal/logging"
)

// Sweep 删除所有 Origin+TTL 早于当前时间的条目及其对象，返回删除的条目数。
// 删除失败被忽略。
func (c *Cache) Sweep(ctx context.Context) int {
	if c.awaitInit(ctx) != nil {
		return 0
	}

	now := c.now()
	expired := make(map[string]Entry)
	for key, entry := range c.index.snapshot() {
		if entry.Expired(now) {
			expired[key] = entry
		}
	}
	if len(expired) == 0 {
		return 0
	}

	if err := c.permit.Acquire(ctx, 1); err != nil {
		return 0
	}
	defer c.permit.Release(1)

	ctx = context.WithoutCancel(ctx)
	removed := 0
	for key, entry := range expired {
		// 快照之后被重新写入的 key 已经是新条目，跳过。
		if !c.index.removeIfSame(key, entry) {
			continue
		}
		removed++
		c.logger.WithFields(logging.CacheFields("cache_sweep", key)).
			WithField("file", entry.FileName).
			Debug("removing expired entry")
		c.deleteObject(ctx, key, entry, "cache_sweep")
	}

	if removed > 0 {
		c.logger.WithFields(logrus.Fields{
			"action":  "cache_sweep",
			"removed": removed,
		}).Info("expired entries removed")
	}
	return removed
}

// RunSweeper 每隔 interval 执行一次 Sweep，直到 ctx 结束。interval <= 0 时立即返回。
// 缓存本身不会启动定时清理，由嵌入方决定是否调用。
func (c *Cache) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}
