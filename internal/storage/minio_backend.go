package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioOptions 描述 S3 兼容存储的连接参数。Folder 映射为 <Prefix>/<name>/ 前缀。
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Region    string
	UseSSL    bool
}

// MinioBackend 将 Folder 映射到 bucket 内的对象前缀。S3 的 PutObject 天然原子，
// 因此无需临时对象。
type MinioBackend struct {
	client *minio.Client
	bucket string
	prefix string
	region string
}

// NewMinio 根据连接参数构建客户端。
func NewMinio(opts MinioOptions) (*MinioBackend, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("minio endpoint required")
	}
	if opts.Bucket == "" {
		return nil, errors.New("minio bucket required")
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return NewMinioWithClient(client, opts.Bucket, opts.Prefix, opts.Region), nil
}

// NewMinioWithClient 复用调用方已有的客户端。
func NewMinioWithClient(client *minio.Client, bucket, prefix, region string) *MinioBackend {
	return &MinioBackend{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		region: region,
	}
}

func (b *MinioBackend) Root() string {
	return b.client.EndpointURL().String() + "/" + path.Join(b.bucket, b.prefix)
}

func (b *MinioBackend) OpenFolder(ctx context.Context, name string) (Folder, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", b.bucket, err)
	}
	if !exists {
		if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{Region: b.region}); err != nil {
			// 并发创建时另一方可能已抢先成功。
			if resp := minio.ToErrorResponse(err); resp.Code != "BucketAlreadyOwnedByYou" {
				return nil, fmt.Errorf("create bucket %s: %w", b.bucket, err)
			}
		}
	}

	return &minioFolder{
		client: b.client,
		bucket: b.bucket,
		name:   name,
		dir:    path.Join(b.prefix, name),
	}, nil
}

func (b *MinioBackend) DeleteFolder(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", b.bucket, err)
	}
	if !exists {
		return nil
	}

	objects := b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:    path.Join(b.prefix, name) + "/",
		Recursive: true,
	})
	var firstErr error
	for rErr := range b.client.RemoveObjects(ctx, b.bucket, objects, minio.RemoveObjectsOptions{}) {
		if rErr.Err != nil && firstErr == nil {
			firstErr = fmt.Errorf("purge folder %s: %w", name, rErr.Err)
		}
	}
	return firstErr
}

type minioFolder struct {
	client *minio.Client
	bucket string
	name   string
	dir    string
}

func (f *minioFolder) key(name string) string {
	return path.Join(f.dir, name)
}

func (f *minioFolder) Name() string {
	return f.name
}

func (f *minioFolder) Path(name string) string {
	return f.client.EndpointURL().String() + "/" + path.Join(f.bucket, f.key(name))
}

func (f *minioFolder) List(ctx context.Context) ([]ObjectInfo, error) {
	prefix := f.dir + "/"
	var objects []ObjectInfo
	for obj := range f.client.ListObjects(ctx, f.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			if isMinioNotFound(obj.Err) {
				return nil, fmt.Errorf("%w: bucket %s", ErrNotFound, f.bucket)
			}
			return nil, obj.Err
		}
		name := strings.TrimPrefix(obj.Key, prefix)
		if name == "" || strings.Contains(name, "/") || isTempName(name) {
			continue
		}
		objects = append(objects, ObjectInfo{
			Name:    name,
			Size:    obj.Size,
			Created: obj.LastModified.UTC(),
		})
	}
	return objects, nil
}

func (f *minioFolder) Write(ctx context.Context, name string, data []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	_, err := f.client.PutObject(ctx, f.bucket, f.key(name), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return err
}

func (f *minioFolder) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if _, err := f.client.StatObject(ctx, f.bucket, f.key(name), minio.StatObjectOptions{}); err != nil {
		if isMinioNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	obj, err := f.client.GetObject(ctx, f.bucket, f.key(name), minio.GetObjectOptions{})
	if err != nil {
		if isMinioNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return obj, nil
}

func (f *minioFolder) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	err := f.client.RemoveObject(ctx, f.bucket, f.key(name), minio.RemoveObjectOptions{})
	if err != nil && isMinioNotFound(err) {
		return ErrNotFound
	}
	return err
}

func isMinioNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound", "NoSuchBucket":
		return true
	}
	return false
}
