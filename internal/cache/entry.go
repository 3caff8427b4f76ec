package cache

import (
	"strconv"
	"strings"
	"time"
)

// Entry 描述索引中的一个缓存条目。
type Entry struct {
	// Origin 是条目写入（或启动时从存储读取到的创建）时间，UTC。
	Origin time.Time
	// TTL 为条目存活时长。
	TTL time.Duration
	// FileName 为存储中的对象名，通常等于 FileName(key, TTL)。
	FileName string
}

// ExpiresAt 返回条目的过期时间点。
func (e Entry) ExpiresAt() time.Time {
	return e.Origin.Add(e.TTL)
}

// Expired 当 Origin+TTL 严格早于 now 时返回 true。
func (e Entry) Expired(now time.Time) bool {
	return e.ExpiresAt().Before(now)
}

// FileName 生成 <key>.<ttl 秒数> 形式的对象名，秒数向零截断。
func FileName(key string, ttl time.Duration) string {
	return key + "." + strconv.FormatInt(int64(ttl/time.Second), 10)
}

// parseFileName 从对象名还原 key 与 TTL：key 取最后一个 '.' 之前的部分，
// 后缀缺失或无法解析为整数时 TTL 回退为 fallback。
func parseFileName(name string, fallback time.Duration) (string, time.Duration) {
	idx := strings.LastIndexByte(name, '.')
	if idx <= 0 {
		return name, fallback
	}

	key, suffix := name[:idx], name[idx+1:]
	seconds, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil {
		return key, fallback
	}
	return key, time.Duration(seconds) * time.Second
}
