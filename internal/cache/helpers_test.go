package cache

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/blobcache/internal/storage"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestCache(t *testing.T, opts Options) *Cache {
	t.Helper()
	if opts.Backend == nil {
		opts.Backend = storage.NewMemory()
	}
	if opts.FolderName == "" {
		opts.FolderName = "images"
	}
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	c, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})
	return c
}

// writeAndWait 排入写入并等待完成回调。
func writeAndWait(t *testing.T, c *Cache, key string, data []byte, ttl time.Duration) {
	t.Helper()
	done := make(chan struct{})
	c.AddToSavingQueueIfNotExists(context.Background(), key, data, ttl, func() { close(done) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("write for %q did not finish", key)
	}
}

func listNames(t *testing.T, c *Cache) []string {
	t.Helper()
	folder := c.handle.get()
	require.NotNil(t, folder)
	objects, err := folder.List(context.Background())
	require.NoError(t, err)
	names := make([]string, 0, len(objects))
	for _, obj := range objects {
		names = append(names, obj.Name)
	}
	return names
}

// brokenBackend 模拟无法建立目录的存储。
type brokenBackend struct {
	gate chan struct{}
}

var errBroken = errors.New("storage offline")

func (b *brokenBackend) Root() string { return "broken://" }

func (b *brokenBackend) OpenFolder(ctx context.Context, _ string) (storage.Folder, error) {
	if b.gate != nil {
		select {
		case <-b.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, errBroken
}

func (b *brokenBackend) DeleteFolder(context.Context, string) error { return errBroken }
