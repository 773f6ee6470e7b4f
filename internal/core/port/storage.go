package port

import (
	"context"
	"io"
)

// StoredObject describes an uploaded object.
type StoredObject struct {
	Key         string
	URL         string
	ContentType string
	Size        int64
}

// ObjectStorage uploads public assets such as product images.
type ObjectStorage interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (StoredObject, error)
	Delete(ctx context.Context, key string) error
}
