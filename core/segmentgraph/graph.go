// Package segmentgraph builds and traverses the singly linked list of
// per-segment metadata records in the entity store. Each record embeds the
// entity id of the next record, so the chain can only be written
// tail-to-head: segment i's next pointer is unknown until segment i+1's
// record exists.
package segmentgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"ChainFM/core/entitystore"
	"ChainFM/logger"
)

var (
	// ErrChunkNotFound is returned when a chain walk breaks before
	// reaching the requested sequence.
	ErrChunkNotFound = errors.New("segment chain broken before target sequence")

	// ErrEmptyGraph is returned when Build is called with no segments.
	ErrEmptyGraph = errors.New("no segments to build")
)

// MetaRecord is the JSON body of one metadata entity. EntityId mirrors
// DataEntityId for compatibility with existing stored records.
type MetaRecord struct {
	EntityID     string  `json:"entityId"`
	DataEntityID string  `json:"dataEntityId"`
	NextBlockID  *string `json:"nextBlockId"`
	Sequence     int     `json:"sequence"`
}

// SegmentPayload is one segment's bytes queued for upload.
type SegmentPayload struct {
	Sequence      int
	Data          []byte
	ExpirySeconds int64
}

// SegmentRecord is the build output for one segment.
type SegmentRecord struct {
	Sequence     int
	DataEntityID string
	MetaEntityID string
	NextMetaID   *string
	SizeBytes    int64
}

// GraphResult is the outcome of a complete build.
type GraphResult struct {
	EntryMetadataID string
	Records         []SegmentRecord
}

// Builder uploads segment payloads and threads their metadata chain.
type Builder struct {
	store entitystore.Store
}

// NewBuilder creates a Builder on the given store.
func NewBuilder(store entitystore.Store) *Builder {
	return &Builder{store: store}
}

// Build uploads every payload, then writes the metadata chain in reverse
// sequence order and returns the record for sequence 0 as the entry point.
// Any single store failure aborts the whole build; partially written
// entities are left behind as orphans (the store expires them) and the
// caller must not mark the content ready.
func (b *Builder) Build(ctx context.Context, segments []SegmentPayload) (*GraphResult, error) {
	if len(segments) == 0 {
		return nil, ErrEmptyGraph
	}

	// The payload pass has no cross-segment dependency; the reverse pass
	// below requires sequence order, so sort up front.
	ordered := make([]SegmentPayload, len(segments))
	copy(ordered, segments)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Sequence < ordered[j].Sequence })

	records := make([]SegmentRecord, len(ordered))
	for i, seg := range ordered {
		dataID, _, err := b.store.Put(ctx, seg.Data, entitystore.ContentTypeChunk, seg.ExpirySeconds)
		if err != nil {
			return nil, fmt.Errorf("uploading payload for sequence %d: %w", seg.Sequence, err)
		}
		records[i] = SegmentRecord{
			Sequence:     seg.Sequence,
			DataEntityID: dataID,
			SizeBytes:    int64(len(seg.Data)),
		}
	}

	// Reverse pass: the tail record is written first so every earlier
	// record can embed its successor's id.
	var nextMetaID *string
	for i := len(records) - 1; i >= 0; i-- {
		record := MetaRecord{
			EntityID:     records[i].DataEntityID,
			DataEntityID: records[i].DataEntityID,
			NextBlockID:  nextMetaID,
			Sequence:     records[i].Sequence,
		}
		body, err := json.Marshal(record)
		if err != nil {
			return nil, fmt.Errorf("encoding metadata for sequence %d: %w", records[i].Sequence, err)
		}

		metaID, _, err := b.store.PutText(ctx, string(body), entitystore.ContentTypeMetadata, ordered[i].ExpirySeconds)
		if err != nil {
			return nil, fmt.Errorf("uploading metadata for sequence %d: %w", records[i].Sequence, err)
		}

		records[i].MetaEntityID = metaID
		records[i].NextMetaID = nextMetaID
		id := metaID
		nextMetaID = &id
	}

	logger.Info("Segment graph built",
		logger.Int("segments", len(records)),
		logger.String("entryMetadataId", records[0].MetaEntityID))

	return &GraphResult{
		EntryMetadataID: records[0].MetaEntityID,
		Records:         records,
	}, nil
}

// Resolver walks a metadata chain from its head.
type Resolver struct {
	store entitystore.Store
}

// NewResolver creates a Resolver on the given store.
func NewResolver(store entitystore.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve follows next pointers from headID until targetSeq hops have been
// taken and returns that record. The chain in the store is authoritative:
// local indexes are conveniences, and this walk revalidates the structure.
func (r *Resolver) Resolve(ctx context.Context, headID string, targetSeq int) (*MetaRecord, error) {
	if targetSeq < 0 {
		return nil, fmt.Errorf("%w: negative sequence %d", ErrChunkNotFound, targetSeq)
	}

	visited := make(map[string]bool)
	currentID := headID
	for hop := 0; ; hop++ {
		if visited[currentID] {
			return nil, fmt.Errorf("%w: cycle at %s", ErrChunkNotFound, currentID)
		}
		visited[currentID] = true

		record, err := r.fetchRecord(ctx, currentID)
		if err != nil {
			return nil, err
		}

		if hop == targetSeq {
			return record, nil
		}
		if record.NextBlockID == nil || *record.NextBlockID == "" {
			return nil, fmt.Errorf("%w: chain ends at hop %d, wanted %d", ErrChunkNotFound, hop, targetSeq)
		}
		currentID = *record.NextBlockID
	}
}

// Walk visits the whole chain from headID and returns the records in
// order. Used by integrity checks.
func (r *Resolver) Walk(ctx context.Context, headID string) ([]MetaRecord, error) {
	visited := make(map[string]bool)
	records := make([]MetaRecord, 0)
	currentID := headID
	for {
		if visited[currentID] {
			return nil, fmt.Errorf("%w: cycle at %s", ErrChunkNotFound, currentID)
		}
		visited[currentID] = true

		record, err := r.fetchRecord(ctx, currentID)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)

		if record.NextBlockID == nil || *record.NextBlockID == "" {
			return records, nil
		}
		currentID = *record.NextBlockID
	}
}

func (r *Resolver) fetchRecord(ctx context.Context, metaID string) (*MetaRecord, error) {
	body, err := r.store.GetText(ctx, metaID)
	if err != nil {
		if errors.Is(err, entitystore.ErrEntityNotFound) {
			return nil, fmt.Errorf("%w: missing record %s", ErrChunkNotFound, metaID)
		}
		return nil, fmt.Errorf("fetching record %s: %w", metaID, err)
	}

	var record MetaRecord
	if err := json.Unmarshal([]byte(body), &record); err != nil {
		return nil, fmt.Errorf("%w: malformed record %s: %v", ErrChunkNotFound, metaID, err)
	}
	return &record, nil
}
