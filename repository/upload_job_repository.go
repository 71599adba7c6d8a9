package repository

import (
	"errors"
	"fmt"
	"time"

	"ChainFM/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UploadJobRepository defines the interface for upload job tracking.
type UploadJobRepository interface {
	Create(job *model.UploadJob) error
	Get(id string) (*model.UploadJob, error)
	ListByWallet(wallet string) ([]*model.UploadJob, error)
	SetProgress(id string, status string, progress int) error
	MarkCompleted(id string, catalogItemID string) error
	MarkFailed(id string, message string) error
}

type gormUploadJobRepository struct {
	db *gorm.DB
}

// NewUploadJobRepository creates a GORM-backed UploadJobRepository.
func NewUploadJobRepository(db *gorm.DB) UploadJobRepository {
	return &gormUploadJobRepository{db: db}
}

func (r *gormUploadJobRepository) Create(job *model.UploadJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = model.JobProcessing
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if err := r.db.Create(job).Error; err != nil {
		return fmt.Errorf("failed to create upload job for %s: %w", job.FileName, err)
	}
	return nil
}

func (r *gormUploadJobRepository) Get(id string) (*model.UploadJob, error) {
	var job model.UploadJob
	err := r.db.Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query upload job %s: %w", id, err)
	}
	return &job, nil
}

func (r *gormUploadJobRepository) ListByWallet(wallet string) ([]*model.UploadJob, error) {
	jobs := make([]*model.UploadJob, 0)
	err := r.db.Where("LOWER(wallet_address) = LOWER(?)", wallet).
		Order("created_at DESC").Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list upload jobs for %s: %w", wallet, err)
	}
	return jobs, nil
}

func (r *gormUploadJobRepository) SetProgress(id string, status string, progress int) error {
	err := r.db.Model(&model.UploadJob{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "progress": progress}).Error
	if err != nil {
		return fmt.Errorf("failed to update upload job %s: %w", id, err)
	}
	return nil
}

func (r *gormUploadJobRepository) MarkCompleted(id string, catalogItemID string) error {
	now := time.Now()
	err := r.db.Model(&model.UploadJob{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          model.JobCompleted,
			"progress":        100,
			"catalog_item_id": catalogItemID,
			"completed_at":    &now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to complete upload job %s: %w", id, err)
	}
	return nil
}

func (r *gormUploadJobRepository) MarkFailed(id string, message string) error {
	now := time.Now()
	err := r.db.Model(&model.UploadJob{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        model.JobFailed,
			"error_message": message,
			"completed_at":  &now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to fail upload job %s: %w", id, err)
	}
	return nil
}
