package imagestore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"

	"github.com/slapcommerce/core-sub014/pkg/domain"
	"github.com/slapcommerce/core-sub014/pkg/imagestore"
)

func TestBlobStorePut(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	t.Cleanup(func() { bucket.Close() })
	ctx := context.Background()

	store, err := imagestore.NewBlobStore(bucket, "https://cdn.example.com/")
	require.NoError(t, err)

	urls, err := store.Put(ctx, "img-1", []imagestore.Rendition{
		{Size: domain.ImageSizeThumbnail, Format: domain.ImageFormatWebP, ContentType: "image/webp", Data: []byte("thumb")},
		{Size: domain.ImageSizeOriginal, Format: domain.ImageFormatOriginal, ContentType: "image/jpeg", Data: []byte("full")},
	})
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/images/img-1/thumbnail.webp",
		urls[domain.ImageSizeThumbnail][domain.ImageFormatWebP])
	assert.Equal(t, "https://cdn.example.com/images/img-1/original.img",
		urls[domain.ImageSizeOriginal][domain.ImageFormatOriginal])

	data, err := bucket.ReadAll(ctx, "images/img-1/thumbnail.webp")
	require.NoError(t, err)
	assert.Equal(t, []byte("thumb"), data)

	t.Run("NoRenditions", func(t *testing.T) {
		_, err := store.Put(ctx, "img-2", nil)
		assert.Equal(t, domain.KindValidationFailed, domain.KindOf(err))
	})
}

func TestBlobStoreDelete(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	t.Cleanup(func() { bucket.Close() })
	ctx := context.Background()

	store, err := imagestore.NewBlobStore(bucket, "https://cdn.example.com")
	require.NoError(t, err)

	_, err = store.Put(ctx, "img-1", []imagestore.Rendition{
		{Size: domain.ImageSizeSmall, Format: domain.ImageFormatWebP, ContentType: "image/webp", Data: []byte("a")},
		{Size: domain.ImageSizeLarge, Format: domain.ImageFormatAVIF, ContentType: "image/avif", Data: []byte("b")},
	})
	require.NoError(t, err)
	_, err = store.Put(ctx, "img-2", []imagestore.Rendition{
		{Size: domain.ImageSizeSmall, Format: domain.ImageFormatWebP, ContentType: "image/webp", Data: []byte("c")},
	})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "img-1"))

	exists, err := bucket.Exists(ctx, "images/img-1/small.webp")
	require.NoError(t, err)
	assert.False(t, exists)

	// Other images untouched.
	exists, err = bucket.Exists(ctx, "images/img-2/small.webp")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestNewBlobStoreRejectsBadCDNBase(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	t.Cleanup(func() { bucket.Close() })

	_, err := imagestore.NewBlobStore(bucket, "not a url")
	assert.Error(t, err)
}
