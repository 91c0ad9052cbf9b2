/*
Responsibilities
- Define the storage port ContentCache's policy layer sits on top of
- Let MemoryBackend and DiskBackend be swapped without touching
  freshness/validator/force-refresh logic

A Backend is pure key-value storage for model.FetchRecord values; it
has no opinion on TTLs, validators, or staleness. That policy lives in
ContentCache (cache.go), one layer up.
*/
package cache

import (
	"github.com/aerc-harvest/harvester/internal/model"
	"github.com/aerc-harvest/harvester/pkg/failure"
)

// Backend is the port interface for cache storage: key->FetchRecord,
// so a single entry can carry Expires/ETag/ContentHash alongside the
// payload bytes.
type Backend interface {
	// Get retrieves a record by key. Returns the record and true if
	// found, or a zero record and false if not present. Read-only.
	Get(key string) (model.FetchRecord, bool, failure.ClassifiedError)

	// Put stores a record under key, overwriting any existing entry.
	// Entries are immutable once written; an update is always a
	// whole-entry replacement, never a partial patch.
	Put(key string, record model.FetchRecord) failure.ClassifiedError

	// Delete removes a key. It is not an error to delete a missing key.
	Delete(key string) failure.ClassifiedError
}
