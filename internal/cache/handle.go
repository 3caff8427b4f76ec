package cache

import (
	"context"
	"sync"

	"github.com/any-hub/blobcache/internal/storage"
)

// folderHandle 是 Folder 的间接引用。Folder 可能在任意时刻因外部删除而被重建，
// 因此调用方每次使用都重新 get，不跨等待点缓存指针。
type folderHandle struct {
	mu      sync.RWMutex
	backend storage.Backend
	folder  storage.Folder
}

func (h *folderHandle) get() storage.Folder {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.folder
}

func (h *folderHandle) set(backend storage.Backend, folder storage.Folder) {
	h.mu.Lock()
	h.backend = backend
	h.folder = folder
	h.mu.Unlock()
}

// reopen 通过产生当前 Folder 的后端重新“打开或创建”目录并替换引用；
// 尚无可用 Folder 时使用 primary。替换在 h.mu 下串行进行。
func (h *folderHandle) reopen(ctx context.Context, primary storage.Backend, name string) (storage.Folder, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	backend := h.backend
	if backend == nil {
		backend = primary
	}
	folder, err := backend.OpenFolder(ctx, name)
	if err != nil {
		return nil, err
	}
	h.backend = backend
	h.folder = folder
	return folder, nil
}
