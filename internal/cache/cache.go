package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/any-hub/blobcache/internal/logging"
	"github.com/any-hub/blobcache/internal/storage"
)

const (
	// DefaultFolderName 是未配置时使用的缓存目录名。
	DefaultFolderName = "blobcache"
	// DefaultTTL 用于无法从对象名解析出 TTL 的条目。
	DefaultTTL = 30 * 24 * time.Hour
)

// ErrInitialization 表示主目录与回退目录都无法建立可用的 Folder。
var ErrInitialization = errors.New("cache folder could not be initialized")

var (
	// ErrInvalidKey 表示 key 为空、含路径分隔符或占用了临时对象前缀。
	ErrInvalidKey = errors.New("invalid cache key")
	// ErrInvalidTTL 表示 TTL 不足 1 秒，无法编码进对象名。
	ErrInvalidTTL = errors.New("cache ttl must be at least 1s")
)

// Options 控制 Cache 的构建。
type Options struct {
	// Backend 为主存储；为空时使用 storage.DefaultRoot() 下的磁盘目录。
	Backend storage.Backend
	// Fallback 在主目录无法打开时用于删除并重建同名目录；为空时复用 Backend。
	Fallback storage.Backend
	// FolderName 为缓存目录名，为空时使用 DefaultFolderName。
	FolderName string
	// DefaultTTL 为空时使用包级 DefaultTTL。
	DefaultTTL time.Duration
	Logger     *logrus.Logger
	// Now 可注入时钟，默认 time.Now。
	Now func() time.Time
}

// Stats 是缓存的瞬时状态，供诊断端使用。
type Stats struct {
	Entries int    `json:"entries"`
	Pending int    `json:"pending"`
	Healthy bool   `json:"healthy"`
	Root    string `json:"root"`
	Folder  string `json:"folder"`
}

// Cache 是磁盘 blob 缓存的门面。所有方法都可并发调用。
type Cache struct {
	backend    storage.Backend
	fallback   storage.Backend
	folderName string
	defaultTTL time.Duration
	logger     *logrus.Logger
	now        func() time.Time

	initDone chan struct{}
	initErr  error

	handle  folderHandle
	index   *index
	pending *pendingSet
	queue   *writeQueue
	// permit 保证同一时刻只有一个写入（或删除批次）触达存储。
	permit *semaphore.Weighted
	closed atomic.Bool
}

// New 构建 Cache 并在后台启动初始化，返回时初始化可能尚未完成。
// 只有参数错误会返回 error；存储故障会让缓存进入降级状态而不是失败。
func New(opts Options) (*Cache, error) {
	backend := opts.Backend
	if backend == nil {
		disk, err := storage.NewDisk(storage.DefaultRoot())
		if err != nil {
			return nil, err
		}
		backend = disk
	}
	fallback := opts.Fallback
	if fallback == nil {
		fallback = backend
	}

	folderName := opts.FolderName
	if folderName == "" {
		folderName = DefaultFolderName
	}
	if err := storage.ValidateName(folderName); err != nil {
		return nil, fmt.Errorf("folder name: %w", err)
	}

	defaultTTL := opts.DefaultTTL
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	c := &Cache{
		backend:    backend,
		fallback:   fallback,
		folderName: folderName,
		defaultTTL: defaultTTL,
		logger:     logger,
		now:        now,
		initDone:   make(chan struct{}),
		index:      newIndex(),
		pending:    newPendingSet(),
		queue:      newWriteQueue(),
		permit:     semaphore.NewWeighted(1),
	}
	go c.initialize()
	return c, nil
}

// Exists 报告索引中是否存在 key，不访问存储。
func (c *Cache) Exists(ctx context.Context, key string) bool {
	if c.awaitInit(ctx) != nil {
		return false
	}
	return c.index.has(key)
}

// Lookup 返回 key 的索引条目，不访问存储。
func (c *Cache) Lookup(ctx context.Context, key string) (Entry, bool) {
	if c.awaitInit(ctx) != nil {
		return Entry{}, false
	}
	return c.index.get(key)
}

// GetFilePath 返回 key 对应对象在存储中的路径。
func (c *Cache) GetFilePath(ctx context.Context, key string) (string, bool) {
	if c.awaitInit(ctx) != nil {
		return "", false
	}
	entry, ok := c.index.get(key)
	if !ok {
		return "", false
	}
	folder := c.handle.get()
	if folder == nil {
		return "", false
	}
	return folder.Path(entry.FileName), true
}

// TryGetStream 等待 key 的在途写入完成后打开对象。任何失败都按未命中处理；
// 索引存在而对象缺失时会重建目录并丢弃该索引项。
func (c *Cache) TryGetStream(ctx context.Context, key string) (io.ReadCloser, bool) {
	if c.awaitInit(ctx) != nil {
		return nil, false
	}
	if c.pending.wait(ctx, key) != nil {
		return nil, false
	}

	entry, ok := c.index.get(key)
	if !ok {
		return nil, false
	}
	folder := c.handle.get()
	if folder == nil {
		return nil, false
	}

	r, err := folder.Open(ctx, entry.FileName)
	switch {
	case err == nil:
		return r, true
	case errors.Is(err, storage.ErrNotFound):
		c.logger.WithFields(logging.CacheFields("cache_entry_missing", key)).
			WithField("file", entry.FileName).
			Warn("indexed object missing from storage")
		c.index.removeIfSame(key, entry)
		if _, rErr := c.handle.reopen(ctx, c.backend, c.folderName); rErr != nil {
			c.logger.WithError(rErr).WithFields(logging.CacheFields("cache_folder_reopen", key)).Warn("reopen cache folder failed")
		}
		return nil, false
	default:
		c.logger.WithError(err).WithFields(logging.CacheFields("cache_read", key)).Warn("cache read failed")
		return nil, false
	}
}

// Get 读取 key 的完整内容。
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	r, ok := c.TryGetStream(ctx, key)
	if !ok {
		return nil, false
	}
	defer r.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		c.logger.WithError(err).WithFields(logging.CacheFields("cache_read", key)).Warn("cache read failed")
		return nil, false
	}
	return buf.Bytes(), true
}

// ValidateKey 检查 key 能否无损地编码为对象名并在重启后还原。
func ValidateKey(key string) error {
	if err := storage.ValidateName(key); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if storage.IsReservedName(key) {
		return fmt.Errorf("%w: %q uses a reserved prefix", ErrInvalidKey, key)
	}
	return nil
}

// ValidateTTL 检查 ttl 是否可编码为整数秒。
func ValidateTTL(ttl time.Duration) error {
	if ttl < time.Second {
		return fmt.Errorf("%w: %s", ErrInvalidTTL, ttl)
	}
	return nil
}

// AddToSavingQueueIfNotExists 将写入排入全局队列后立即返回。若 key 已有在途写入，
// 本次调用被忽略。非法 key 或不足 1 秒的 ttl 记录日志后丢弃；ttl 按整秒截断。
// 写入成功后调用 onFinished（可为 nil）；失败只记录日志。
// ctx 只约束等待初始化的过程，已入队的写入总会执行完毕。
//
// onFinished 在写队列内执行，后续写入要等它返回才开始，因此它不得调用
// Flush 或 Close，也不应长时间阻塞；读取操作可以安全调用。
func (c *Cache) AddToSavingQueueIfNotExists(ctx context.Context, key string, data []byte, ttl time.Duration, onFinished func()) {
	fields := logging.CacheFields("cache_write", key)
	if err := ValidateKey(key); err != nil {
		c.logger.WithError(err).WithFields(fields).Warn("invalid key, write dropped")
		return
	}
	if err := ValidateTTL(ttl); err != nil {
		c.logger.WithError(err).WithFields(fields).Warn("invalid ttl, write dropped")
		return
	}
	ttl = ttl.Truncate(time.Second)

	if c.awaitInit(ctx) != nil {
		return
	}
	if c.closed.Load() {
		c.logger.WithFields(fields).Debug("cache closed, write dropped")
		return
	}
	if !c.pending.tryAdd(key) {
		return
	}

	payload := append([]byte(nil), data...)
	c.queue.enqueue(func() {
		c.runWrite(key, payload, ttl, onFinished)
	})
}

func (c *Cache) runWrite(key string, data []byte, ttl time.Duration, onFinished func()) {
	written := c.writeEntry(key, data, ttl)
	c.pending.done(key)
	if written && onFinished != nil {
		c.notify(key, onFinished)
	}
}

// writeEntry 在写许可下确保目录存在并写入对象，成功后更新索引。
func (c *Cache) writeEntry(key string, data []byte, ttl time.Duration) (written bool) {
	fields := logging.CacheFields("cache_write", key)
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithFields(fields).Errorf("cache write panicked: %v", r)
			written = false
		}
	}()

	ctx := context.Background()
	_ = c.awaitInit(ctx)

	if err := c.permit.Acquire(ctx, 1); err != nil {
		return false
	}
	defer c.permit.Release(1)

	folder, err := c.handle.reopen(ctx, c.backend, c.folderName)
	if err != nil {
		c.logger.WithError(err).WithFields(fields).Warn("cache folder unavailable, write dropped")
		return false
	}

	name := FileName(key, ttl)
	fields["file"] = name
	if err := folder.Write(ctx, name, data); err != nil {
		c.logger.WithError(err).WithFields(fields).Warn("cache write failed")
		return false
	}

	c.index.upsert(key, Entry{Origin: c.now().UTC(), TTL: ttl, FileName: name})
	fields["size"] = len(data)
	c.logger.WithFields(fields).Debug("cache entry written")
	return true
}

func (c *Cache) notify(key string, onFinished func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithFields(logging.CacheFields("cache_write_callback", key)).Errorf("write callback panicked: %v", r)
		}
	}()
	onFinished()
}

// Remove 等待 key 的在途写入后删除条目与对象。对象删除失败被忽略。
// 仅在 ctx 结束导致放弃等待时返回 error。
func (c *Cache) Remove(ctx context.Context, key string) error {
	if err := c.awaitInit(ctx); err != nil {
		return err
	}
	if err := c.pending.wait(ctx, key); err != nil {
		return err
	}
	if err := c.permit.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.permit.Release(1)

	entry, ok := c.index.pop(key)
	if !ok {
		return nil
	}
	c.deleteObject(context.WithoutCancel(ctx), key, entry, "cache_remove")
	return nil
}

// Clear 等待全部在途写入结束，在写许可下删除目录中的所有对象并清空索引。
// 仅在 ctx 结束导致放弃等待时返回 error。
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.awaitInit(ctx); err != nil {
		return err
	}
	if err := c.pending.waitAll(ctx); err != nil {
		return err
	}
	if err := c.permit.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.permit.Release(1)
	defer c.index.reset()

	ctx = context.WithoutCancel(ctx)
	folder := c.handle.get()
	if folder == nil {
		return nil
	}

	objects, err := folder.List(ctx)
	if err != nil {
		c.logger.WithError(err).WithField("action", "cache_clear").Warn("list cache folder failed")
		if _, rErr := c.handle.reopen(ctx, c.backend, c.folderName); rErr != nil {
			c.logger.WithError(rErr).WithField("action", "cache_folder_reopen").Warn("reopen cache folder failed")
		}
		return nil
	}

	for _, obj := range objects {
		if err := folder.Delete(ctx, obj.Name); err != nil && !errors.Is(err, storage.ErrNotFound) {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"action": "cache_clear",
				"file":   obj.Name,
			}).Warn("delete cache object failed")
		}
	}
	c.logger.WithFields(logrus.Fields{
		"action":  "cache_clear",
		"removed": len(objects),
	}).Info("cache cleared")
	return nil
}

// Flush 等待调用之前入队的全部写入完成。
func (c *Cache) Flush(ctx context.Context) error {
	return c.queue.flush(ctx)
}

// Close 拒绝后续写入并等待已入队写入完成。可重复调用。
func (c *Cache) Close(ctx context.Context) error {
	c.closed.Store(true)
	return c.Flush(ctx)
}

// Healthy 报告当前是否持有可用的 Folder。
func (c *Cache) Healthy() bool {
	select {
	case <-c.initDone:
	default:
		return false
	}
	return c.handle.get() != nil
}

// InitErr 返回初始化结果；初始化尚未结束时返回 nil。
func (c *Cache) InitErr() error {
	select {
	case <-c.initDone:
		return c.initErr
	default:
		return nil
	}
}

// Stats 返回缓存的瞬时计数。
func (c *Cache) Stats() Stats {
	stats := Stats{
		Entries: c.index.len(),
		Pending: c.pending.len(),
		Healthy: c.Healthy(),
		Root:    c.backend.Root(),
	}
	if folder := c.handle.get(); folder != nil {
		stats.Folder = folder.Name()
	}
	return stats
}

func (c *Cache) awaitInit(ctx context.Context) error {
	select {
	case <-c.initDone:
		return nil
	default:
	}
	select {
	case <-c.initDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Cache) deleteObject(ctx context.Context, key string, entry Entry, action string) {
	folder := c.handle.get()
	if folder == nil {
		return
	}
	if err := folder.Delete(ctx, entry.FileName); err != nil && !errors.Is(err, storage.ErrNotFound) {
		c.logger.WithError(err).WithFields(logging.CacheFields(action, key)).
			WithField("file", entry.FileName).
			Debug("delete cache object failed")
	}
}
