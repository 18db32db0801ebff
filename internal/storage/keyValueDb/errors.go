package keyValueDb

import "errors"

var (
	// ErrDBClosed is returned when operating on a closed keyValueDb.
	ErrDBClosed = errors.New("keyValueDb is closed")

	// ErrKeyNotFound is returned when a key doesn't exist.
	ErrKeyNotFound = errors.New("key not found")

	// ErrBatchOperationFailed is returned when a batch operation fails.
	ErrBatchOperationFailed = errors.New("batch operation failed")
)
