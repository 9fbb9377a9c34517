package domain

// Aggregate type names. These are the first token of every event name, so
// they are lowerCamel by convention.
const (
	AggregateTypeProduct                    = "product"
	AggregateTypeDropshipProduct            = "dropshipProduct"
	AggregateTypeVariant                    = "variant"
	AggregateTypeVariantPositions           = "variantPositionsWithinProduct"
	AggregateTypeCollection                 = "collection"
	AggregateTypeCollectionProductPositions = "collectionProductPositions"
	AggregateTypeSlugReservation            = "slugReservation"
	AggregateTypeSchedule                   = "schedule"
	AggregateTypeFulfillment                = "fulfillment"
)

// Metadata is the SEO title/description pair carried by products and collections.
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}
