package port

import (
	"context"
	"io"
	"time"
)

// ImageUpload is a collection image on its way into the image store.
type ImageUpload struct {
	Bucket      string
	Key         string
	Body        io.Reader
	ContentType string
	Size        int64 // 0 when unknown
}

// StoredImage describes an image the store accepted.
type StoredImage struct {
	Key      string
	Location string
	ETag     string
}

// ImageStore holds collection images. Keys are owned by the caller; the store
// never serves objects directly, only presigned GET URLs.
type ImageStore interface {
	Put(ctx context.Context, img ImageUpload) (*StoredImage, error)
	Remove(ctx context.Context, bucket, key string) error
	PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}
