// Package imagestore persists image renditions in a blob bucket and hands
// back the public URL map embedded in aggregate state. The transcoder that
// produces the renditions runs elsewhere; this package only stores bytes and
// derives URLs.
package imagestore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/asaskevich/govalidator"
	"gocloud.dev/blob"

	"github.com/slapcommerce/core-sub014/pkg/domain"
)

// Rendition is one transcoded variant of an uploaded image.
type Rendition struct {
	Size        domain.ImageSize
	Format      domain.ImageFormat
	ContentType string
	Data        []byte
}

// Store persists image renditions and resolves their public URLs.
type Store interface {
	// Put writes all renditions of one image and returns the URL map to
	// embed in aggregate state.
	Put(ctx context.Context, imageID string, renditions []Rendition) (domain.URLMap, error)

	// Delete removes every rendition of an image.
	Delete(ctx context.Context, imageID string) error
}

// BlobStore is the bucket-backed Store. The bucket is driver-agnostic:
// s3://, gs://, azblob:// or file:// for development, chosen by the opener.
type BlobStore struct {
	bucket  *blob.Bucket
	cdnBase string
}

// NewBlobStore creates a store over an open bucket. cdnBase is the public
// prefix served in front of the bucket, e.g. "https://cdn.example.com".
func NewBlobStore(bucket *blob.Bucket, cdnBase string) (*BlobStore, error) {
	cdnBase = strings.TrimSuffix(cdnBase, "/")
	if !govalidator.IsURL(cdnBase) {
		return nil, fmt.Errorf("invalid CDN base URL %q", cdnBase)
	}
	return &BlobStore{bucket: bucket, cdnBase: cdnBase}, nil
}

// Put writes each rendition under images/<imageID>/<size>.<format> and
// returns the corresponding public URLs.
func (s *BlobStore) Put(ctx context.Context, imageID string, renditions []Rendition) (domain.URLMap, error) {
	if imageID == "" {
		return nil, domain.Validationf("image id is required")
	}
	if len(renditions) == 0 {
		return nil, domain.Validationf("at least one rendition is required")
	}

	urls := make(domain.URLMap)
	for _, r := range renditions {
		key := renditionKey(imageID, r.Size, r.Format)
		opts := &blob.WriterOptions{ContentType: r.ContentType}
		if err := s.bucket.WriteAll(ctx, key, r.Data, opts); err != nil {
			return nil, fmt.Errorf("failed to write rendition %s: %w", key, err)
		}
		if urls[r.Size] == nil {
			urls[r.Size] = make(map[domain.ImageFormat]string)
		}
		urls[r.Size][r.Format] = s.cdnBase + "/" + key
	}
	return urls, nil
}

// Delete removes every object under the image's prefix.
func (s *BlobStore) Delete(ctx context.Context, imageID string) error {
	if imageID == "" {
		return domain.Validationf("image id is required")
	}
	iter := s.bucket.List(&blob.ListOptions{Prefix: "images/" + imageID + "/"})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to list image objects: %w", err)
		}
		if err := s.bucket.Delete(ctx, obj.Key); err != nil {
			return fmt.Errorf("failed to delete %s: %w", obj.Key, err)
		}
	}
}

func renditionKey(imageID string, size domain.ImageSize, format domain.ImageFormat) string {
	ext := string(format)
	if format == domain.ImageFormatOriginal {
		ext = "img"
	}
	return fmt.Sprintf("images/%s/%s.%s", imageID, size, ext)
}
