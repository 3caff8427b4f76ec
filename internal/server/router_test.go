package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/blobcache/internal/cache"
	"github.com/any-hub/blobcache/internal/storage"
)

func TestPutWaitThenGet(t *testing.T) {
	app, _ := newTestApp(t)

	resp := doRequest(t, app, "PUT", "/blobs/img1?ttl=60&wait=true", "\x01\x02")
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if reqID := resp.Header.Get("X-Request-ID"); reqID == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}

	resp = doRequest(t, app, "GET", "/blobs/img1", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "\x01\x02" {
		t.Fatalf("unexpected body %q", body)
	}

	resp = doRequest(t, app, "HEAD", "/blobs/img1", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected HEAD 200, got %d", resp.StatusCode)
	}
}

func TestQueuedPutIsVisibleToReaders(t *testing.T) {
	app, store := newTestApp(t)

	resp := doRequest(t, app, "PUT", "/blobs/queued?ttl=5m", "payload")
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["ttl_seconds"] != float64(300) {
		t.Fatalf("unexpected ttl_seconds: %v", payload["ttl_seconds"])
	}

	resp = doRequest(t, app, "GET", "/blobs/queued", "")
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK || string(body) != "payload" {
		t.Fatalf("expected queued payload, got %d %q", resp.StatusCode, body)
	}

	path, ok := store.GetFilePath(context.Background(), "queued")
	if !ok || !strings.HasSuffix(path, "queued.300") {
		t.Fatalf("unexpected object path %q", path)
	}
}

func TestGetMissingBlob(t *testing.T) {
	app, _ := newTestApp(t)

	resp := doRequest(t, app, "GET", "/blobs/missing", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"blob_not_found"`) {
		t.Fatalf("expected blob_not_found error, got %s", body)
	}

	resp = doRequest(t, app, "HEAD", "/blobs/missing", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected HEAD 404, got %d", resp.StatusCode)
	}
}

func TestPutRejectsInvalidTTL(t *testing.T) {
	app, _ := newTestApp(t)

	for _, ttl := range []string{"boom", "0", "500ms"} {
		resp := doRequest(t, app, "PUT", "/blobs/k?ttl="+ttl, "v")
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Fatalf("ttl %q: expected 400, got %d", ttl, resp.StatusCode)
		}
	}
}

func TestPutRejectsReservedKey(t *testing.T) {
	app, store := newTestApp(t)

	resp := doRequest(t, app, "PUT", "/blobs/.blobcache-avatar?wait=true", "v")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if entries := store.Stats().Entries; entries != 0 {
		t.Fatalf("reserved key must not be stored, got %d entries", entries)
	}
}

func TestPutWaitReportsFailureBehindOlderEntry(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	stale := cache.Entry{Origin: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), TTL: time.Hour, FileName: "k.3600"}
	app, err := NewApp(AppOptions{Logger: logger, Store: &staleStore{entry: stale}, DefaultTTL: time.Minute})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	resp := doRequest(t, app, "PUT", "/blobs/k?wait=true", "v")
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("an unchanged older entry must not count as success, got %d", resp.StatusCode)
	}
}

func TestDeleteBlobAndClear(t *testing.T) {
	app, store := newTestApp(t)

	for _, key := range []string{"a", "b", "c"} {
		if resp := doRequest(t, app, "PUT", "/blobs/"+key+"?wait=true", key); resp.StatusCode != fiber.StatusCreated {
			t.Fatalf("put %s: expected 201, got %d", key, resp.StatusCode)
		}
	}

	if resp := doRequest(t, app, "DELETE", "/blobs/a", ""); resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if resp := doRequest(t, app, "HEAD", "/blobs/a", ""); resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("deleted blob should be gone, got %d", resp.StatusCode)
	}

	if resp := doRequest(t, app, "DELETE", "/blobs", ""); resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if entries := store.Stats().Entries; entries != 0 {
		t.Fatalf("expected empty cache after clear, got %d entries", entries)
	}
}

func TestPutWaitReportsFailedWrite(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	store, err := cache.New(cache.Options{Backend: offlineBackend{}, FolderName: "images", Logger: logger})
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	app, err := NewApp(AppOptions{Logger: logger, Store: store, DefaultTTL: time.Minute})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	resp := doRequest(t, app, "PUT", "/blobs/k?wait=true", "v")
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestRecoverFromHandlerPanic(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	app, err := NewApp(AppOptions{Logger: logger, Store: panicStore{}, DefaultTTL: time.Minute})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	resp := doRequest(t, app, "HEAD", "/blobs/k", "")
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
}

func TestNewAppValidatesOptions(t *testing.T) {
	logger := logrus.New()
	cases := []AppOptions{
		{Store: panicStore{}, DefaultTTL: time.Minute},
		{Logger: logger, DefaultTTL: time.Minute},
		{Logger: logger, Store: panicStore{}},
	}
	for i, opts := range cases {
		if _, err := NewApp(opts); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func newTestApp(t *testing.T) (*fiber.App, *cache.Cache) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store, err := cache.New(cache.Options{
		Backend:    storage.NewMemory(),
		FolderName: "images",
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	app, err := NewApp(AppOptions{
		Logger:     logger,
		Store:      store,
		DefaultTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	return app, store
}

func doRequest(t *testing.T, app *fiber.App, method, target, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, "http://blobcache.local"+target, reader)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

type offlineBackend struct{}

func (offlineBackend) Root() string { return "offline://" }

func (offlineBackend) OpenFolder(context.Context, string) (storage.Folder, error) {
	return nil, storage.ErrNotFound
}

func (offlineBackend) DeleteFolder(context.Context, string) error { return nil }

type panicStore struct{}

func (panicStore) Exists(context.Context, string) bool { panic("store exploded") }

func (panicStore) Lookup(context.Context, string) (cache.Entry, bool) { panic("store exploded") }

func (panicStore) TryGetStream(context.Context, string) (io.ReadCloser, bool) {
	panic("store exploded")
}

func (panicStore) AddToSavingQueueIfNotExists(context.Context, string, []byte, time.Duration, func()) {
	panic("store exploded")
}

func (panicStore) Remove(context.Context, string) error { panic("store exploded") }

func (panicStore) Clear(context.Context) error { panic("store exploded") }

func (panicStore) Flush(context.Context) error { panic("store exploded") }

// staleStore 持有一个旧条目，且所有新写入都被同 key 的失败写入吸收。
type staleStore struct {
	entry cache.Entry
}

func (s *staleStore) Exists(context.Context, string) bool { return true }

func (s *staleStore) Lookup(context.Context, string) (cache.Entry, bool) { return s.entry, true }

func (s *staleStore) TryGetStream(context.Context, string) (io.ReadCloser, bool) { return nil, false }

func (s *staleStore) AddToSavingQueueIfNotExists(context.Context, string, []byte, time.Duration, func()) {
}

func (s *staleStore) Remove(context.Context, string) error { return nil }

func (s *staleStore) Clear(context.Context) error { return nil }

func (s *staleStore) Flush(context.Context) error { return nil }
