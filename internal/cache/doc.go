// Package cache implements the key-addressed blob cache engine. An in-memory
// index mirrors a flat storage Folder whose object names encode the key and
// TTL (<key>.<ttl-seconds>), so the index is rebuilt from a listing at startup
// without a manifest. Initialization runs once in the background and every
// public operation waits for its outcome. Writes are fire-and-forget: they are
// deduplicated per key, chained in issue order and executed one at a time
// under an exclusive permit, and readers of a key wait for its pending write
// before touching storage. Storage faults never surface to callers; they
// degrade to cache misses or no-op writes and are logged.
package cache
