// Package upload runs the detached media ingestion pipeline: transcode,
// segment, upload the segment graph to the entity store, then publish the
// catalog item. The request that starts a job never waits for it.
package upload

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"ChainFM/core/entitystore"
	"ChainFM/core/segmentgraph"
	"ChainFM/logger"
	"ChainFM/model"
	"ChainFM/repository"
)

// Notifier pushes job progress to subscribed clients. Implementations
// must not block; a nil Pipeline notifier disables pushes.
type Notifier interface {
	Notify(jobID, status string, progress int)
}

// ItemDraft carries the catalog metadata submitted with an upload. The
// catalog item itself is only created after the segment graph is fully
// stored, so a failed upload never leaves a half-published item.
type ItemDraft struct {
	Type        string
	Title       string
	Artist      string
	Description string
	Category    string
	CoverURL    string
	PriceETH    string
}

// Pipeline drives upload jobs to completion in the background.
type Pipeline struct {
	jobs      repository.UploadJobRepository
	catalog   repository.CatalogRepository
	segments  repository.SegmentRepository
	builder   *segmentgraph.Builder
	segmenter Segmenter
	notifier  Notifier
	expiry    int64
}

// NewPipeline creates a Pipeline. expirySeconds applies to every entity
// written to the store; zero means the store default.
func NewPipeline(
	jobs repository.UploadJobRepository,
	catalog repository.CatalogRepository,
	segments repository.SegmentRepository,
	store entitystore.Store,
	segmenter Segmenter,
	notifier Notifier,
	expirySeconds int64,
) *Pipeline {
	return &Pipeline{
		jobs:      jobs,
		catalog:   catalog,
		segments:  segments,
		builder:   segmentgraph.NewBuilder(store),
		segmenter: segmenter,
		notifier:  notifier,
		expiry:    expirySeconds,
	}
}

// Start creates the job row and kicks off Run in its own goroutine,
// returning the job immediately.
func (p *Pipeline) Start(wallet, inputPath, fileName string, fileSize int64, draft ItemDraft) (*model.UploadJob, error) {
	job := &model.UploadJob{
		ID:            uuid.NewString(),
		WalletAddress: wallet,
		FileName:      fileName,
		FileSize:      fileSize,
		Status:        model.JobProcessing,
		CreatedAt:     time.Now(),
	}
	if err := p.jobs.Create(job); err != nil {
		return nil, err
	}

	go p.Run(context.Background(), job.ID, wallet, inputPath, draft)

	return job, nil
}

// Run executes one job end to end. The scratch input and segment files
// are removed on every exit path; entities already written to the store
// before a failure are left to expire.
func (p *Pipeline) Run(ctx context.Context, jobID, wallet, inputPath string, draft ItemDraft) {
	workDir, err := os.MkdirTemp("", "chainfm-job-")
	if err != nil {
		p.fail(jobID, fmt.Errorf("create work dir: %w", err))
		return
	}
	defer func() {
		os.RemoveAll(workDir)
		os.Remove(inputPath)
	}()

	p.progress(jobID, model.JobSegmenting, 10)
	files, duration, err := p.segmenter.Segment(ctx, inputPath, workDir)
	if err != nil {
		p.fail(jobID, err)
		return
	}
	logger.Info("Media segmented",
		logger.String("jobId", jobID),
		logger.Int("segments", len(files)),
		logger.Float64("duration", duration))

	p.progress(jobID, model.JobUploading, 40)
	payloads := make([]segmentgraph.SegmentPayload, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			p.fail(jobID, fmt.Errorf("read segment %d: %w", f.Sequence, err))
			return
		}
		payloads = append(payloads, segmentgraph.SegmentPayload{
			Sequence:      f.Sequence,
			Data:          data,
			ExpirySeconds: p.expiry,
		})
	}

	result, err := p.builder.Build(ctx, payloads)
	if err != nil {
		p.fail(jobID, fmt.Errorf("build segment graph: %w", err))
		return
	}

	p.progress(jobID, model.JobUploading, 85)
	item, err := p.publish(wallet, draft, duration, result)
	if err != nil {
		p.fail(jobID, err)
		return
	}

	if err := p.jobs.MarkCompleted(jobID, item.ID); err != nil {
		logger.Error("Failed to mark job completed",
			logger.String("jobId", jobID),
			logger.ErrorField(err))
		return
	}
	p.notify(jobID, model.JobCompleted, 100)
	logger.Info("Upload job completed",
		logger.String("jobId", jobID),
		logger.String("catalogItemId", item.ID),
		logger.String("entryMetadataId", result.EntryMetadataID))
}

// publish creates the catalog item and its segment index rows. The entry
// pointer is set in the same insert, so the item is rentable the moment
// it becomes visible.
func (p *Pipeline) publish(wallet string, draft ItemDraft, duration float64, result *segmentgraph.GraphResult) (*model.CatalogItem, error) {
	entryID := result.EntryMetadataID
	item := &model.CatalogItem{
		ID:              uuid.NewString(),
		Type:            draft.Type,
		Title:           draft.Title,
		Artist:          draft.Artist,
		Description:     draft.Description,
		CoverURL:        draft.CoverURL,
		EntryMetadataID: &entryID,
		PriceETH:        draft.PriceETH,
		DurationSeconds: int(duration),
		Category:        draft.Category,
		CreatedBy:       wallet,
		CreatedAt:       time.Now(),
	}
	if err := p.catalog.CreateItem(item); err != nil {
		return nil, fmt.Errorf("create catalog item: %w", err)
	}

	rows := make([]*model.CatalogSegment, 0, len(result.Records))
	for _, rec := range result.Records {
		rows = append(rows, &model.CatalogSegment{
			ID:            uuid.NewString(),
			CatalogItemID: item.ID,
			Sequence:      rec.Sequence,
			DataEntityID:  rec.DataEntityID,
			MetaEntityID:  rec.MetaEntityID,
			NextMetaID:    rec.NextMetaID,
			SizeBytes:     rec.SizeBytes,
			CreatedAt:     time.Now(),
		})
	}
	if err := p.segments.CreateBatch(rows); err != nil {
		return nil, fmt.Errorf("index segments: %w", err)
	}
	return item, nil
}

func (p *Pipeline) progress(jobID, status string, pct int) {
	if err := p.jobs.SetProgress(jobID, status, pct); err != nil {
		logger.Warn("Failed to persist job progress",
			logger.String("jobId", jobID),
			logger.String("status", status),
			logger.ErrorField(err))
	}
	p.notify(jobID, status, pct)
}

func (p *Pipeline) fail(jobID string, cause error) {
	logger.Error("Upload job failed",
		logger.String("jobId", jobID),
		logger.ErrorField(cause))
	if err := p.jobs.MarkFailed(jobID, cause.Error()); err != nil {
		logger.Error("Failed to mark job failed",
			logger.String("jobId", jobID),
			logger.ErrorField(err))
	}
	p.notify(jobID, model.JobFailed, 0)
}

func (p *Pipeline) notify(jobID, status string, pct int) {
	if p.notifier != nil {
		p.notifier.Notify(jobID, status, pct)
	}
}
