package domain

// ImageSize is a rendition size produced by the transcoder.
type ImageSize string

const (
	ImageSizeThumbnail ImageSize = "thumbnail"
	ImageSizeSmall     ImageSize = "small"
	ImageSizeMedium    ImageSize = "medium"
	ImageSizeLarge     ImageSize = "large"
	ImageSizeOriginal  ImageSize = "original"
)

// ImageSizes lists all renditions in ascending order.
var ImageSizes = []ImageSize{
	ImageSizeThumbnail, ImageSizeSmall, ImageSizeMedium, ImageSizeLarge, ImageSizeOriginal,
}

// ImageFormat is an encoding produced by the transcoder.
type ImageFormat string

const (
	ImageFormatOriginal ImageFormat = "original"
	ImageFormatWebP     ImageFormat = "webp"
	ImageFormatAVIF     ImageFormat = "avif"
)

// ImageFormats lists all encodings.
var ImageFormats = []ImageFormat{ImageFormatOriginal, ImageFormatWebP, ImageFormatAVIF}

// URLMap maps size then format to a public URL.
type URLMap map[ImageSize]map[ImageFormat]string

// Image is embedded in product, variant and collection state; it is not an
// aggregate of its own.
type Image struct {
	ImageID string `json:"imageId"`
	URLs    URLMap `json:"urls"`
	AltText string `json:"altText"`
}

// imageIndex returns the position of imageID in images, or -1.
func imageIndex(images []Image, imageID string) int {
	for i, img := range images {
		if img.ImageID == imageID {
			return i
		}
	}
	return -1
}

// reorderImages returns images rearranged to the given id order, or an error
// if order is not a permutation of the current image ids.
func reorderImages(images []Image, order []string) ([]Image, error) {
	if len(order) != len(images) {
		return nil, Validationf("image order must contain exactly %d ids", len(images))
	}
	byID := make(map[string]Image, len(images))
	for _, img := range images {
		byID[img.ImageID] = img
	}
	out := make([]Image, 0, len(order))
	seen := make(map[string]bool, len(order))
	for _, id := range order {
		img, ok := byID[id]
		if !ok || seen[id] {
			return nil, Validationf("unknown or duplicate image id %q in order", id)
		}
		seen[id] = true
		out = append(out, img)
	}
	return out, nil
}
