package cache

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"syscall"

	"github.com/aerc-harvest/harvester/internal/model"
	"github.com/aerc-harvest/harvester/pkg/failure"
	"github.com/aerc-harvest/harvester/pkg/fileutil"
	"github.com/aerc-harvest/harvester/pkg/hashutil"
)

// DiskBackend is a content-addressed Backend that survives process
// restarts: a deterministic filename derived from
// hashutil.HashBytes, fileutil.EnsureDir before writing, and
// syscall.ENOSPC detection on write failure. Where LocalSink writes a
// normalized Markdown document once, DiskBackend additionally supports
// read and delete, since cache entries are looked up and evicted.
type DiskBackend struct {
	dir      string
	hashAlgo hashutil.HashAlgo
}

func NewDiskBackend(dir string, hashAlgo hashutil.HashAlgo) *DiskBackend {
	return &DiskBackend{dir: dir, hashAlgo: hashAlgo}
}

var _ Backend = (*DiskBackend)(nil)

func (b *DiskBackend) pathFor(key string) (string, *CacheError) {
	keyHash, err := hashutil.HashBytes([]byte(key), b.hashAlgo)
	if err != nil {
		return "", &CacheError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseHashComputationFailed,
			Key:       key,
		}
	}
	return filepath.Join(b.dir, keyHash[:12]+".json"), nil
}

func (b *DiskBackend) Get(key string) (model.FetchRecord, bool, failure.ClassifiedError) {
	path, cacheErr := b.pathFor(key)
	if cacheErr != nil {
		return model.FetchRecord{}, false, cacheErr
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.FetchRecord{}, false, nil
		}
		return model.FetchRecord{}, false, &CacheError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseReadFailure,
			Key:       key,
		}
	}

	var record model.FetchRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return model.FetchRecord{}, false, &CacheError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseCorruptEntry,
			Key:       key,
		}
	}
	return record, true, nil
}

func (b *DiskBackend) Put(key string, record model.FetchRecord) failure.ClassifiedError {
	if err := fileutil.EnsureDir(b.dir); err != nil {
		return &CacheError{
			Message:   err.Error(),
			Retryable: true,
			Cause:     ErrCausePathError,
			Key:       key,
		}
	}

	path, cacheErr := b.pathFor(key)
	if cacheErr != nil {
		return cacheErr
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return &CacheError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseCorruptEntry,
			Key:       key,
		}
	}

	if err := os.WriteFile(path, raw, 0644); err != nil {
		cause := ErrCauseWriteFailure
		retryable := false
		if errors.Is(err, syscall.ENOSPC) {
			cause = ErrCauseDiskFull
			retryable = true
		}
		return &CacheError{
			Message:   err.Error(),
			Retryable: retryable,
			Cause:     cause,
			Key:       key,
		}
	}
	return nil
}

func (b *DiskBackend) Delete(key string) failure.ClassifiedError {
	path, cacheErr := b.pathFor(key)
	if cacheErr != nil {
		return cacheErr
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &CacheError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseWriteFailure,
			Key:       key,
		}
	}
	return nil
}
