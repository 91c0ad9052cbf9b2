package model

import "time"

// FetchRecord is ContentCache's unit of storage: the raw bytes of one
// successful fetch plus enough metadata to decide freshness and support
// conditional refetches.
type FetchRecord struct {
	URL         string
	FetchedAt   time.Time
	Expires     time.Time
	ETag        string
	ContentHash string
	Payload     []byte
}

// Fresh reports whether the record is still usable without a validator
// check: now must be before Expires. Validator predicates are applied
// by the cache on top of this, per ContentCache's freshness contract.
func (f FetchRecord) Fresh(now time.Time) bool {
	return now.Before(f.Expires)
}
