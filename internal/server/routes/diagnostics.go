package routes

import (
	"context"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/blobcache/internal/cache"
	"github.com/any-hub/blobcache/internal/storage"
	"github.com/any-hub/blobcache/internal/version"
)

// Diagnostics 是诊断接口依赖的缓存能力，*cache.Cache 满足该接口。
type Diagnostics interface {
	Stats() cache.Stats
	Sweep(ctx context.Context) int
	GetFilePath(ctx context.Context, key string) (string, bool)
	Healthy() bool
	InitErr() error
}

// RegisterDiagnosticRoutes 暴露 /-/ 下的诊断接口，供运维查询缓存状态与驱动列表。
func RegisterDiagnosticRoutes(app *fiber.App, diag Diagnostics, driverKey string) {
	if app == nil || diag == nil {
		return
	}

	app.Get("/-/healthz", func(c fiber.Ctx) error {
		payload := fiber.Map{
			"healthy": diag.Healthy(),
			"version": version.Full(),
		}
		if err := diag.InitErr(); err != nil {
			payload["error"] = err.Error()
		}
		if !diag.Healthy() {
			return c.Status(fiber.StatusServiceUnavailable).JSON(payload)
		}
		return c.JSON(payload)
	})

	app.Get("/-/stats", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"driver": driverKey,
			"cache":  diag.Stats(),
		})
	})

	app.Post("/-/sweep", func(c fiber.Ctx) error {
		removed := diag.Sweep(c.Context())
		return c.JSON(fiber.Map{"removed": removed})
	})

	app.Get("/-/path/:key", func(c fiber.Ctx) error {
		path, ok := diag.GetFilePath(c.Context(), c.Params("key"))
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "blob_not_found"})
		}
		return c.JSON(fiber.Map{"path": path})
	})

	app.Get("/-/drivers", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"active":  driverKey,
			"drivers": encodeDrivers(storage.List()),
		})
	})
}

type driverPayload struct {
	Key         string `json:"key"`
	Description string `json:"description"`
	Persistent  bool   `json:"persistent"`
}

func encodeDrivers(drivers []storage.DriverMetadata) []driverPayload {
	if len(drivers) == 0 {
		return nil
	}
	result := make([]driverPayload, 0, len(drivers))
	for _, meta := range drivers {
		result = append(result, driverPayload{
			Key:         meta.Key,
			Description: meta.Description,
			Persistent:  meta.Persistent,
		})
	}
	return result
}
