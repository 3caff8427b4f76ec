// Package server exposes the blob cache over a small Fiber HTTP API: blob
// reads, queued writes and removals under /blobs, plus the shared middleware
// chain (panic recovery, request IDs, access logging). Diagnostic endpoints
// under /-/ live in the routes subpackage and are attached by the binary.
package server
