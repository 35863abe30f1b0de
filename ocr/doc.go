// Package ocr defines the streaming capability contract for recognition
// engines and the domain types shared by every backend: jobs, per-page
// results, normalized bounding boxes, and the typed errors of the engine
// protocol. The contract is deliberately transport-agnostic so backends can
// be long-lived helper subprocesses, native libraries, or remote services
// without leaking provider-specific concerns into callers.
package ocr
