package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound 表示对象（或其所在 Folder）不存在。
var ErrNotFound = errors.New("storage object not found")

// ErrInvalidName 表示对象名或目录名包含路径分隔符等非法内容。
var ErrInvalidName = errors.New("invalid storage name")

// tempPrefix 标记写入中的临时对象，List 会跳过这些名称。
const tempPrefix = ".blobcache-"

// ObjectInfo 描述 Folder 中的单个对象。Created 为后端记录的时间戳（UTC）。
type ObjectInfo struct {
	Name    string
	Size    int64
	Created time.Time
}

// Folder 是一个已打开的扁平容器。实现需保证 Write 的原子性：读者要么看到旧内容，
// 要么看到完整的新内容。
type Folder interface {
	// Name 返回 Folder 名称。
	Name() string

	// Path 返回对象在后端中的可定位路径（磁盘上为绝对路径）。
	Path(name string) string

	// List 列出全部对象；Folder 已被外部删除时返回 ErrNotFound。
	List(ctx context.Context) ([]ObjectInfo, error)

	// Write 以 name 写入 data，已存在时整体替换。
	Write(ctx context.Context, name string, data []byte) error

	// Open 打开对象用于读取，不存在时返回 ErrNotFound。
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Delete 删除对象；不存在时返回 ErrNotFound（后端无法区分时返回 nil）。
	Delete(ctx context.Context, name string) error
}

// Backend 负责在根位置下打开或删除 Folder。
type Backend interface {
	// Root 返回后端根位置，用于日志与诊断。
	Root() string

	// OpenFolder 打开名为 name 的 Folder，不存在时创建。
	OpenFolder(ctx context.Context, name string) (Folder, error)

	// DeleteFolder 删除同名 Folder 及其全部对象，不存在时返回 nil。
	DeleteFolder(ctx context.Context, name string) error
}

// DefaultRoot 返回未显式配置根目录时使用的位置：系统临时目录下的 blobcache。
func DefaultRoot() string {
	return filepath.Join(os.TempDir(), "blobcache")
}

// ValidateName 拒绝空名、"."、".." 以及包含路径分隔符的名称，避免逃逸出 Folder。
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: contains NUL", ErrInvalidName)
	}
	return nil
}

// IsReservedName 报告 name 是否落在写入临时对象的命名空间内。
// 这类名称会被 List 跳过，调用方不应以其作为对象名。
func IsReservedName(name string) bool {
	return strings.HasPrefix(name, tempPrefix)
}

func isTempName(name string) bool {
	return IsReservedName(name)
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
