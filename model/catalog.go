package model

import "time"

// CatalogItem represents a rentable unit of content. An item is rentable
// only once EntryMetadataID is non-nil: that pointer is the head of the
// segment metadata chain in the entity store and is set at the end of a
// successful upload pipeline.
type CatalogItem struct {
	ID              string    `json:"id" gorm:"primaryKey;size:36"`
	Type            string    `json:"type" gorm:"size:10"` // "audio" or "video"
	Title           string    `json:"title"`
	Artist          string    `json:"artist"`
	Description     string    `json:"description"`
	CoverURL        string    `json:"coverUrl"`
	EntryMetadataID *string   `json:"entryMetadataId"`                        // head of the segment metadata chain
	PriceETH        string    `json:"priceEth" gorm:"type:decimal(18,10)"`    // decimal string, compared in wei
	DurationSeconds int       `json:"durationSeconds"`
	Category        string    `json:"category"`
	CreatedBy       string    `json:"createdBy" gorm:"size:42;index"`
	CreatedAt       time.Time `json:"createdAt"`
}

func (CatalogItem) TableName() string {
	return "catalog_items"
}

// Rentable reports whether the item's content graph is complete.
func (c *CatalogItem) Rentable() bool {
	return c.EntryMetadataID != nil && *c.EntryMetadataID != ""
}

// CatalogSegment is one fixed-duration slice of transcoded media. Each
// segment's metadata record in the entity store carries a pointer to the
// metadata record of the segment with sequence+1; the tail's pointer is nil.
type CatalogSegment struct {
	ID            string     `json:"id" gorm:"primaryKey;size:36"`
	CatalogItemID string     `json:"catalogItemId" gorm:"size:36;index;uniqueIndex:uq_item_sequence,priority:1"`
	Sequence      int        `json:"sequence" gorm:"uniqueIndex:uq_item_sequence,priority:2"`
	DataEntityID  string     `json:"dataEntityId"`         // payload bytes in the entity store
	MetaEntityID  string     `json:"metaEntityId"`         // this segment's metadata record
	NextMetaID    *string    `json:"nextMetaId"`           // metadata record of sequence+1, nil for the tail
	SizeBytes     int64      `json:"sizeBytes"`
	ExpiresAt     *time.Time `json:"expiresAt"` // nil for master segments
	CreatedAt     time.Time  `json:"createdAt"`
}

func (CatalogSegment) TableName() string {
	return "catalog_segments"
}
