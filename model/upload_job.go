package model

import "time"

// Upload job statuses.
const (
	JobProcessing = "processing"
	JobSegmenting = "segmenting"
	JobUploading  = "uploading"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// UploadJob tracks a detached media upload pipeline. Callers poll it (or
// subscribe over websocket) for progress; the pipeline is never awaited by
// the request that started it.
type UploadJob struct {
	ID            string     `json:"id" gorm:"primaryKey;size:36"`
	WalletAddress string     `json:"walletAddress" gorm:"size:42;index"`
	FileName      string     `json:"fileName"`
	FileSize      int64      `json:"fileSize"`
	Status        string     `json:"status" gorm:"size:20"`
	Progress      int        `json:"progress"` // 0-100
	ErrorMessage  string     `json:"errorMessage"`
	CatalogItemID *string    `json:"catalogItemId"`
	CreatedAt     time.Time  `json:"createdAt"`
	CompletedAt   *time.Time `json:"completedAt"`
}

func (UploadJob) TableName() string {
	return "upload_jobs"
}

// Terminal reports whether the job has finished, successfully or not.
func (j *UploadJob) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}
