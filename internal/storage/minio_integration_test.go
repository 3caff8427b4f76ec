package storage

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 需要一个可访问的 MinIO/S3 服务，例如：
//
//	docker run -p 9000:9000 minio/minio server /data
//	BLOBCACHE_MINIO_ENDPOINT=127.0.0.1:9000 go test ./internal/storage -run Minio
func minioBackendForTest(t *testing.T) *MinioBackend {
	t.Helper()
	endpoint := os.Getenv("BLOBCACHE_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("BLOBCACHE_MINIO_ENDPOINT not set")
	}
	accessKey := os.Getenv("BLOBCACHE_MINIO_ACCESS_KEY")
	if accessKey == "" {
		accessKey = "minioadmin"
	}
	secretKey := os.Getenv("BLOBCACHE_MINIO_SECRET_KEY")
	if secretKey == "" {
		secretKey = "minioadmin"
	}

	backend, err := NewMinio(MinioOptions{
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		Bucket:    "blobcache-test",
		Prefix:    "run-" + uuid.NewString(),
	})
	require.NoError(t, err)
	return backend
}

func TestMinioFolderRoundTrip(t *testing.T) {
	backend := minioBackendForTest(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	folder, err := backend.OpenFolder(ctx, "images")
	require.NoError(t, err)

	require.NoError(t, folder.Write(ctx, "img1.60", []byte{0x01, 0x02}))

	r, err := folder.Open(ctx, "img1.60")
	require.NoError(t, err)
	body, err := io.ReadAll(r)
	require.NoError(t, r.Close())
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, body)

	objects, err := folder.List(ctx)
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "img1.60", objects[0].Name)
	assert.False(t, objects[0].Created.IsZero())

	_, err = folder.Open(ctx, "missing.1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, backend.DeleteFolder(ctx, "images"))
	fresh, err := backend.OpenFolder(ctx, "images")
	require.NoError(t, err)
	objects, err = fresh.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, objects)
}
