package server

import (
	"io"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/blobcache/internal/cache"
	"github.com/any-hub/blobcache/internal/config"
)

func registerBlobRoutes(app *fiber.App, opts AppOptions) {
	h := &blobHandler{store: opts.Store, defaultTTL: opts.DefaultTTL}

	app.Head("/blobs/:key", h.head)
	app.Get("/blobs/:key", h.get)
	app.Put("/blobs/:key", h.put)
	app.Delete("/blobs/:key", h.remove)
	app.Delete("/blobs", h.clear)
}

type blobHandler struct {
	store      BlobStore
	defaultTTL time.Duration
}

func (h *blobHandler) head(c fiber.Ctx) error {
	key, err := blobKey(c)
	if err != nil {
		return err
	}
	hit := h.store.Exists(requestContext(c), key)
	markCacheHit(c, hit)
	if !hit {
		return c.SendStatus(fiber.StatusNotFound)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (h *blobHandler) get(c fiber.Ctx) error {
	key, err := blobKey(c)
	if err != nil {
		return err
	}
	reader, ok := h.store.TryGetStream(requestContext(c), key)
	markCacheHit(c, ok)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "blob_not_found"})
	}
	defer reader.Close()

	c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	c.Status(fiber.StatusOK)
	if _, err := io.Copy(c.Response().BodyWriter(), reader); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "read blob failed: "+err.Error())
	}
	return nil
}

// put 将请求体排入写队列。wait=true 时等待写入结束：成功返回 201；
// 被同 key 的在途写入吸收且该写入成功时返回 200；否则返回 503，
// 即使索引中仍留有该 key 更早的版本。
func (h *blobHandler) put(c fiber.Ctx) error {
	key, err := blobKey(c)
	if err != nil {
		return err
	}
	ttl, err := h.parseTTL(c.Query("ttl"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_ttl", "detail": err.Error()})
	}

	ctx := requestContext(c)
	wait, _ := strconv.ParseBool(c.Query("wait"))
	var previous cache.Entry
	if wait {
		previous, _ = h.store.Lookup(ctx, key)
	}

	body := append([]byte(nil), c.Body()...)
	written := make(chan struct{})
	h.store.AddToSavingQueueIfNotExists(ctx, key, body, ttl, func() { close(written) })

	if !wait {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"key": key, "ttl_seconds": int64(ttl / time.Second)})
	}

	if err := h.store.Flush(ctx); err != nil {
		return fiber.NewError(fiber.StatusGatewayTimeout, "wait for write: "+err.Error())
	}
	select {
	case <-written:
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"key": key, "ttl_seconds": int64(ttl / time.Second)})
	default:
	}
	if current, ok := h.store.Lookup(ctx, key); ok && current != previous {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"key": key, "deduplicated": true})
	}
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "write_failed"})
}

func (h *blobHandler) remove(c fiber.Ctx) error {
	key, err := blobKey(c)
	if err != nil {
		return err
	}
	if err := h.store.Remove(requestContext(c), key); err != nil {
		return fiber.NewError(fiber.StatusGatewayTimeout, err.Error())
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *blobHandler) clear(c fiber.Ctx) error {
	if err := h.store.Clear(requestContext(c)); err != nil {
		return fiber.NewError(fiber.StatusGatewayTimeout, err.Error())
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// parseTTL 复用配置层的 Duration 语法：Go duration 字符串或整数秒。
func (h *blobHandler) parseTTL(raw string) (time.Duration, error) {
	if raw == "" {
		return h.defaultTTL, nil
	}
	var d config.Duration
	if err := d.UnmarshalText([]byte(raw)); err != nil {
		return 0, err
	}
	if err := cache.ValidateTTL(d.DurationValue()); err != nil {
		return 0, err
	}
	return d.DurationValue(), nil
}

func blobKey(c fiber.Ctx) (string, error) {
	key := c.Params("key")
	if err := cache.ValidateKey(key); err != nil {
		return "", fiber.NewError(fiber.StatusBadRequest, "invalid blob key")
	}
	return key, nil
}
