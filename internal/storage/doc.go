// Package storage 抽象缓存所依赖的“目录式”后端：一个扁平 Folder 内按名称
// 创建、列举、读取、删除字节对象。磁盘与内存实现基于 go-billy，S3 兼容实现
// 基于 minio-go；各驱动在 init() 中注册到驱动表，配置层按键选择。
//
// 布局约定：
//
//	<Root>/<Folder>/<object>      # 单个对象
//	<Root>/<Folder>/.blobcache-*  # 写入中的临时文件，List 时忽略
package storage
