// Package dedupe provides chat turn deduplication using a time-based
// cache, so client retries with the same idempotency key are absorbed
// instead of producing duplicate turns.
package dedupe
