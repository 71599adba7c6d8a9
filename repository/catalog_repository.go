package repository

import (
	"errors"
	"fmt"
	"time"

	"ChainFM/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CatalogFilters narrows catalog listings.
type CatalogFilters struct {
	Type     string
	Category string
}

// CatalogRepository defines the interface for catalog item data operations.
type CatalogRepository interface {
	GetItem(id string) (*model.CatalogItem, error)
	ListItems(filters CatalogFilters) ([]*model.CatalogItem, error)
	ListByCreator(wallet string) ([]*model.CatalogItem, error)
	CreateItem(item *model.CatalogItem) error
	SetEntryMetadata(itemID, entryMetadataID string) error
}

type gormCatalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository creates a GORM-backed CatalogRepository.
func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &gormCatalogRepository{db: db}
}

func (r *gormCatalogRepository) GetItem(id string) (*model.CatalogItem, error) {
	var item model.CatalogItem
	err := r.db.Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog item %s: %w", id, err)
	}
	return &item, nil
}

func (r *gormCatalogRepository) ListItems(filters CatalogFilters) ([]*model.CatalogItem, error) {
	query := r.db.Model(&model.CatalogItem{})
	if filters.Type != "" {
		query = query.Where("type = ?", filters.Type)
	}
	if filters.Category != "" {
		query = query.Where("category = ?", filters.Category)
	}

	items := make([]*model.CatalogItem, 0)
	if err := query.Order("created_at DESC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list catalog items: %w", err)
	}
	return items, nil
}

func (r *gormCatalogRepository) ListByCreator(wallet string) ([]*model.CatalogItem, error) {
	items := make([]*model.CatalogItem, 0)
	err := r.db.Where("LOWER(created_by) = LOWER(?)", wallet).
		Order("created_at DESC").Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog items for %s: %w", wallet, err)
	}
	return items, nil
}

func (r *gormCatalogRepository) CreateItem(item *model.CatalogItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	if err := r.db.Create(item).Error; err != nil {
		return fmt.Errorf("failed to create catalog item %q: %w", item.Title, err)
	}
	return nil
}

func (r *gormCatalogRepository) SetEntryMetadata(itemID, entryMetadataID string) error {
	err := r.db.Model(&model.CatalogItem{}).Where("id = ?", itemID).
		Update("entry_metadata_id", entryMetadataID).Error
	if err != nil {
		return fmt.Errorf("failed to set entry metadata for item %s: %w", itemID, err)
	}
	return nil
}
