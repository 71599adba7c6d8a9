package repository

import (
	"fmt"
	"time"

	"ChainFM/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SegmentRepository defines the interface for segment row operations. The
// rows are a local index of the metadata chain living in the entity store;
// the chain itself stays authoritative.
type SegmentRepository interface {
	CreateBatch(segments []*model.CatalogSegment) error
	ListByItem(catalogItemID string) ([]*model.CatalogSegment, error)
	CountByItem(catalogItemID string) (int64, error)
}

type gormSegmentRepository struct {
	db *gorm.DB
}

// NewSegmentRepository creates a GORM-backed SegmentRepository.
func NewSegmentRepository(db *gorm.DB) SegmentRepository {
	return &gormSegmentRepository{db: db}
}

func (r *gormSegmentRepository) CreateBatch(segments []*model.CatalogSegment) error {
	if len(segments) == 0 {
		return nil
	}
	now := time.Now()
	for _, seg := range segments {
		if seg.ID == "" {
			seg.ID = uuid.New().String()
		}
		if seg.CreatedAt.IsZero() {
			seg.CreatedAt = now
		}
	}
	if err := r.db.Create(&segments).Error; err != nil {
		return fmt.Errorf("failed to insert %d segments: %w", len(segments), err)
	}
	return nil
}

// ListByItem returns the item's segments ordered by sequence.
func (r *gormSegmentRepository) ListByItem(catalogItemID string) ([]*model.CatalogSegment, error) {
	segments := make([]*model.CatalogSegment, 0)
	err := r.db.Where("catalog_item_id = ?", catalogItemID).
		Order("sequence ASC").Find(&segments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list segments for item %s: %w", catalogItemID, err)
	}
	return segments, nil
}

func (r *gormSegmentRepository) CountByItem(catalogItemID string) (int64, error) {
	var count int64
	err := r.db.Model(&model.CatalogSegment{}).
		Where("catalog_item_id = ?", catalogItemID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count segments for item %s: %w", catalogItemID, err)
	}
	return count, nil
}
