package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// FSBackend 基于 billy.Filesystem 实现 Backend，磁盘与内存驱动共用同一份逻辑。
type FSBackend struct {
	bfs  billy.Filesystem
	root string
}

// NewDisk 以 root 为根目录构建磁盘后端；root 为空时使用 DefaultRoot。
func NewDisk(root string) (*FSBackend, error) {
	if root == "" {
		root = DefaultRoot()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &FSBackend{bfs: osfs.New(abs), root: abs}, nil
}

// NewMemory 构建进程内存后端，进程退出即丢失，主要用于测试与临时场景。
func NewMemory() *FSBackend {
	return &FSBackend{bfs: memfs.New(), root: "/"}
}

// NewFS 包装任意 billy.Filesystem，root 仅用于 Path 输出。
func NewFS(bfs billy.Filesystem, root string) *FSBackend {
	if root == "" {
		root = bfs.Root()
	}
	return &FSBackend{bfs: bfs, root: root}
}

// Unwrap 返回底层 billy.Filesystem，便于测试直接篡改文件布局。
func (b *FSBackend) Unwrap() billy.Filesystem {
	return b.bfs
}

func (b *FSBackend) Root() string {
	return b.root
}

func (b *FSBackend) OpenFolder(ctx context.Context, name string) (Folder, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	if err := b.bfs.MkdirAll(name, 0o755); err != nil {
		return nil, fmt.Errorf("create folder %s: %w", name, err)
	}
	info, err := b.bfs.Stat(name)
	if err != nil {
		return nil, fmt.Errorf("stat folder %s: %w", name, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("folder %s is not a directory", name)
	}

	return &fsFolder{bfs: b.bfs, dir: name, root: b.root}, nil
}

func (b *FSBackend) DeleteFolder(ctx context.Context, name string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := util.RemoveAll(b.bfs, name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove folder %s: %w", name, err)
	}
	return nil
}

// fsFolder 的所有路径都相对 billy 根目录拼接，写入沿用“临时文件 + rename”。
type fsFolder struct {
	bfs  billy.Filesystem
	dir  string
	root string
}

func (f *fsFolder) Name() string {
	return f.dir
}

func (f *fsFolder) Path(name string) string {
	if f.root == "/" {
		return path.Join("/", f.dir, name)
	}
	return filepath.Join(f.root, f.dir, name)
}

func (f *fsFolder) List(ctx context.Context) ([]ObjectInfo, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	infos, err := f.bfs.ReadDir(f.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: folder %s", ErrNotFound, f.dir)
		}
		return nil, err
	}

	objects := make([]ObjectInfo, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() || isTempName(info.Name()) {
			continue
		}
		objects = append(objects, ObjectInfo{
			Name:    info.Name(),
			Size:    info.Size(),
			Created: info.ModTime().UTC(),
		})
	}
	return objects, nil
}

func (f *fsFolder) Write(ctx context.Context, name string, data []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := checkContext(ctx); err != nil {
		return err
	}

	tmp, err := util.TempFile(f.bfs, f.dir, tempPrefix)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = f.bfs.Remove(tmpName)
		return err
	}

	if err := f.bfs.Rename(tmpName, f.bfs.Join(f.dir, name)); err != nil {
		_ = f.bfs.Remove(tmpName)
		return err
	}
	return nil
}

func (f *fsFolder) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	target := f.bfs.Join(f.dir, name)
	info, err := f.bfs.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}

	file, err := f.bfs.Open(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return file, nil
}

func (f *fsFolder) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := checkContext(ctx); err != nil {
		return err
	}
	if err := f.bfs.Remove(f.bfs.Join(f.dir, name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
