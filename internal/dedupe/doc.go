// Package dedupe provides a TTL-based seen-id cache used to make message
// delivery observably idempotent. Fan-out is at-least-once across client
// reconnects, so each connection checks persisted envelope ids here and
// drops repeats.
package dedupe
