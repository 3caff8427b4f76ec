package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/blobcache/internal/cache"
	"github.com/any-hub/blobcache/internal/logging"
)

// BlobStore 是 HTTP 层依赖的缓存能力，*cache.Cache 满足该接口。
type BlobStore interface {
	Exists(ctx context.Context, key string) bool
	Lookup(ctx context.Context, key string) (cache.Entry, bool)
	TryGetStream(ctx context.Context, key string) (io.ReadCloser, bool)
	AddToSavingQueueIfNotExists(ctx context.Context, key string, data []byte, ttl time.Duration, onFinished func())
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Flush(ctx context.Context) error
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger *logrus.Logger
	Store  BlobStore
	// DefaultTTL 用于未携带 ttl 查询参数的写入。
	DefaultTTL time.Duration
	// BodyLimit 为 PUT 请求体上限，0 表示使用 Fiber 默认值。
	BodyLimit int
}

const (
	contextKeyRequestID = "_blobcache_request_id"
	contextKeyCacheHit  = "_blobcache_cache_hit"
)

// NewApp builds a Fiber application with panic recovery, request IDs, access
// logging and the /blobs routes.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Store == nil {
		return nil, errors.New("blob store is required")
	}
	if opts.DefaultTTL <= 0 {
		return nil, fmt.Errorf("invalid default ttl: %s", opts.DefaultTTL)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		BodyLimit:     opts.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts.Logger))

	registerBlobRoutes(app, opts)

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID，并在请求结束后输出访问日志。
func requestContextMiddleware(logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		started := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			status = fiberErr.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}

		path := string(c.Request().URI().Path())
		entry := logger.WithFields(logging.RequestFields(reqID, c.Method(), path, status, cacheHit(c))).
			WithField("elapsed_ms", time.Since(started).Milliseconds())
		if err != nil {
			entry = entry.WithError(err)
		}
		if isDiagnosticsPath(path) {
			entry.Debug("request handled")
		} else {
			entry.Info("request handled")
		}
		return err
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func markCacheHit(c fiber.Ctx, hit bool) {
	c.Locals(contextKeyCacheHit, hit)
}

func cacheHit(c fiber.Ctx) bool {
	if value := c.Locals(contextKeyCacheHit); value != nil {
		if hit, ok := value.(bool); ok {
			return hit
		}
	}
	return false
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}

// requestContext 返回请求级 context，Fiber 未提供时退回 Background。
func requestContext(c fiber.Ctx) context.Context {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}
