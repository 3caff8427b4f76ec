package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

const defaultDriverKey = "disk"

// Params 是驱动工厂可用的全部参数，由配置层填充。
type Params struct {
	Root  string
	Minio MinioOptions
}

// Factory 根据参数构建一个 Backend。
type Factory func(Params) (Backend, error)

// DriverMetadata 记录驱动的静态信息，供配置校验与诊断端使用。
type DriverMetadata struct {
	Key         string
	Description string
	// Persistent 为 false 的驱动在进程重启后不保留任何数据。
	Persistent bool
	Factory    Factory
}

var globalRegistry = newRegistry()

func init() {
	MustRegister(DriverMetadata{
		Key:         "disk",
		Description: "本地目录，基于 billy osfs",
		Persistent:  true,
		Factory: func(p Params) (Backend, error) {
			return NewDisk(p.Root)
		},
	})
	MustRegister(DriverMetadata{
		Key:         "memory",
		Description: "进程内存，基于 billy memfs",
		Persistent:  false,
		Factory: func(Params) (Backend, error) {
			return NewMemory(), nil
		},
	})
	MustRegister(DriverMetadata{
		Key:         "minio",
		Description: "S3 兼容对象存储，基于 minio-go",
		Persistent:  true,
		Factory: func(p Params) (Backend, error) {
			return NewMinio(p.Minio)
		},
	})
}

type registry struct {
	mu      sync.RWMutex
	drivers map[string]DriverMetadata
}

func newRegistry() *registry {
	return &registry{drivers: make(map[string]DriverMetadata)}
}

// Register 将驱动加入全局注册表，重复键会返回错误。
func Register(meta DriverMetadata) error {
	return globalRegistry.register(meta)
}

// MustRegister 在注册失败时 panic，适合 init() 中调用。
func MustRegister(meta DriverMetadata) {
	if err := Register(meta); err != nil {
		panic(err)
	}
}

// Resolve 返回指定键的驱动元数据，大小写不敏感。
func Resolve(key string) (DriverMetadata, bool) {
	return globalRegistry.resolve(key)
}

// List 返回按键排序的驱动列表。
func List() []DriverMetadata {
	return globalRegistry.list()
}

// Keys 返回全部已注册驱动键。
func Keys() []string {
	items := List()
	result := make([]string, len(items))
	for i, meta := range items {
		result[i] = meta.Key
	}
	return result
}

// DefaultDriverKey 返回未配置 Driver 时使用的键。
func DefaultDriverKey() string {
	return defaultDriverKey
}

// Open 按驱动键构建 Backend。
func Open(key string, params Params) (Backend, error) {
	meta, ok := Resolve(key)
	if !ok {
		return nil, fmt.Errorf("storage driver %q is not registered", key)
	}
	if meta.Factory == nil {
		return nil, fmt.Errorf("storage driver %q has no factory", meta.Key)
	}
	return meta.Factory(params)
}

func (r *registry) normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (r *registry) register(meta DriverMetadata) error {
	key := r.normalizeKey(meta.Key)
	if key == "" {
		return fmt.Errorf("driver key is required")
	}
	meta.Key = key

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.drivers[key]; exists {
		return fmt.Errorf("driver %s already registered", key)
	}
	r.drivers[key] = meta
	return nil
}

func (r *registry) resolve(key string) (DriverMetadata, bool) {
	normalized := r.normalizeKey(key)
	if normalized == "" {
		return DriverMetadata{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	meta, ok := r.drivers[normalized]
	return meta, ok
}

func (r *registry) list() []DriverMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.drivers) == 0 {
		return nil
	}

	keys := make([]string, 0, len(r.drivers))
	for key := range r.drivers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]DriverMetadata, 0, len(keys))
	for _, key := range keys {
		result = append(result, r.drivers[key])
	}
	return result
}
