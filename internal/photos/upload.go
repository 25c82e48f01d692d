// Package photos compresses journal photos, reads their capture date and
// stores them in the Firebase Storage bucket.
package photos

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"

	journal "io.winapps.triptracker/internal/models/journal"
)

// Objects is the blob storage the uploader writes to.
type Objects interface {
	Put(ctx context.Context, path string, data []byte, contentType string) (url string, err error)
	Delete(ctx context.Context, path string) error
}

// BucketObjects stores photos in a Cloud Storage bucket with a Firebase
// download token, so the returned URL is publicly fetchable.
type BucketObjects struct {
	bucket *storage.BucketHandle
	name   string
}

func NewBucketObjects(bucket *storage.BucketHandle, name string) *BucketObjects {
	return &BucketObjects{bucket: bucket, name: name}
}

func (b *BucketObjects) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	token := uuid.NewString()

	w := b.bucket.Object(path).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=31536000"
	w.Metadata = map[string]string{"firebaseStorageDownloadTokens": token}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finish %s: %w", path, err)
	}

	return fmt.Sprintf("https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		b.name, url.PathEscape(path), token), nil
}

func (b *BucketObjects) Delete(ctx context.Context, path string) error {
	err := b.bucket.Object(path).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}

type Uploader struct {
	objects Objects
	logger  *zap.SugaredLogger
	now     func() time.Time
}

func NewUploader(objects Objects, logger *zap.SugaredLogger) *Uploader {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Uploader{objects: objects, logger: logger, now: time.Now}
}

// Upload is the result of storing one photo.
type Upload struct {
	Photo journal.Photo `json:"photo"`
	// TakenOn is the EXIF capture day, empty when the file has none.
	TakenOn string `json:"takenOn,omitempty"`
}

// Path builds the object path for a photo by author on date.
func Path(date, author string, at time.Time) string {
	author = strings.Map(func(r rune) rune {
		if r == '/' || r == ' ' {
			return '_'
		}
		return r
	}, author)
	return fmt.Sprintf("photos/%s/%s_%d_%s.jpg", date, author, at.UnixMilli(), uuid.NewString()[:6])
}

// Upload compresses data and stores it under the photos/<date>/ prefix. The
// EXIF date is read from the original bytes since re-encoding drops it.
func (u *Uploader) Upload(ctx context.Context, data []byte, author, date string) (Upload, error) {
	var out Upload
	if d, ok := ExtractDate(data); ok {
		out.TakenOn = d.Key
	}

	img, err := Compress(data)
	if err != nil {
		return out, err
	}

	path := Path(date, author, u.now())
	link, err := u.objects.Put(ctx, path, img.Data, "image/jpeg")
	if err != nil {
		return out, fmt.Errorf("failed to upload photo: %w", err)
	}

	u.logger.Infow("photo uploaded", "path", path, "bytes", len(img.Data), "width", img.Width, "height", img.Height)
	out.Photo = journal.Photo{URL: link, Path: path, Width: img.Width, Height: img.Height}
	return out, nil
}

// Delete removes a stored photo. Missing objects are not an error.
func (u *Uploader) Delete(ctx context.Context, path string) error {
	return u.objects.Delete(ctx, path)
}
