// Package storage fetches attachment bytes from object storage and issues
// presigned upload and download URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrObjectNotFound is returned when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// TooLargeError reports an object over the caller's byte ceiling.
type TooLargeError struct {
	Size  int64
	Limit int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("object is %d bytes, limit is %d", e.Size, e.Limit)
}

// PresignedRequest describes a presigned HTTP request.
type PresignedRequest struct {
	URL     string
	Method  string
	Headers map[string]string
}

// ObjectStore is the object storage collaborator.
type ObjectStore interface {
	// Fetch returns the object body. A maxBytes of zero or less disables the ceiling.
	Fetch(ctx context.Context, key string, maxBytes int64) ([]byte, error)
	PresignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (*PresignedRequest, error)
	PresignDownload(ctx context.Context, key string, ttl time.Duration) (*PresignedRequest, error)
}
