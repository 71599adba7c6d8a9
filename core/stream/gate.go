// Package stream gates playback behind rental ownership and liveness, and
// generates the per-request playback manifest. Every segment reference in
// a manifest loops back into this gate, so each byte fetch is
// independently re-authorized.
package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ChainFM/core/entitystore"
	"ChainFM/core/segmentgraph"
	"ChainFM/logger"
	"ChainFM/model"
	"ChainFM/repository"
)

var (
	ErrRentalNotFound = errors.New("rental not found")
	ErrForbidden      = errors.New("wallet does not own this rental")
	ErrRentalExpired  = errors.New("rental expired")
	ErrRentalInactive = errors.New("rental inactive")
	ErrNoContent      = errors.New("no content for this rental")
)

// SegmentCache is an optional read-through cache in front of the chain
// walk and the entity store. Misses are not errors; a nil Gate cache
// disables caching entirely.
type SegmentCache interface {
	GetResolved(ctx context.Context, itemID string, sequence int) (string, bool)
	SetResolved(ctx context.Context, itemID string, sequence int, dataEntityID string)
	GetBytes(ctx context.Context, dataEntityID string) ([]byte, bool)
	SetBytes(ctx context.Context, dataEntityID string, data []byte)
}

// Gate enforces rental access and serves manifests and segment bytes.
type Gate struct {
	rentals    repository.RentalRepository
	catalog    repository.CatalogRepository
	segments   repository.SegmentRepository
	store      entitystore.Store
	resolver   *segmentgraph.Resolver
	cache      SegmentCache
	segmentSec int
	now        func() time.Time
}

// NewGate creates a Gate. cache may be nil; now is injectable for
// deterministic expiry tests.
func NewGate(
	rentals repository.RentalRepository,
	catalog repository.CatalogRepository,
	segments repository.SegmentRepository,
	store entitystore.Store,
	resolver *segmentgraph.Resolver,
	cache SegmentCache,
	segmentSec int,
	now func() time.Time,
) *Gate {
	if now == nil {
		now = time.Now
	}
	if segmentSec <= 0 {
		segmentSec = 10
	}
	return &Gate{
		rentals:    rentals,
		catalog:    catalog,
		segments:   segments,
		store:      store,
		resolver:   resolver,
		cache:      cache,
		segmentSec: segmentSec,
		now:        now,
	}
}

// AuthorizeAccess checks ownership and liveness for one rental. Ownership
// is checked before liveness so a wrong wallet always gets ErrForbidden,
// never a hint about the rental's state. The first access observing
// now >= expiresAt durably flips the rental inactive; the transition is
// one-way.
func (g *Gate) AuthorizeAccess(ctx context.Context, rentalID, claimedWallet string) (*model.Rental, error) {
	rental, err := g.rentals.GetByID(rentalID)
	if err != nil {
		return nil, err
	}
	if rental == nil {
		return nil, ErrRentalNotFound
	}
	if !rental.OwnedBy(claimedWallet) {
		return nil, ErrForbidden
	}

	if !g.now().Before(rental.ExpiresAt) {
		if rental.IsActive {
			if err := g.rentals.Deactivate(rental.ID); err != nil {
				return nil, err
			}
			logger.Info("Rental expired",
				logger.String("rentalId", rental.ID),
				logger.String("wallet", rental.WalletAddress))
		}
		return nil, ErrRentalExpired
	}
	if !rental.IsActive {
		return nil, ErrRentalInactive
	}
	return rental, nil
}

// GenerateManifest authorizes the request and emits a playlist whose
// entries re-enter this gate. Manifests are generated per request, never
// pre-stored.
func (g *Gate) GenerateManifest(ctx context.Context, rentalID, claimedWallet, baseURL string) (string, error) {
	rental, err := g.AuthorizeAccess(ctx, rentalID, claimedWallet)
	if err != nil {
		return "", err
	}

	segs, err := g.segments.ListByItem(rental.CatalogItemID)
	if err != nil {
		return "", err
	}
	if len(segs) == 0 {
		return "", ErrNoContent
	}

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", g.segmentSec)
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	for _, seg := range segs {
		fmt.Fprintf(&b, "#EXTINF:%d.0,\n", g.segmentSec)
		fmt.Fprintf(&b, "%s/stream/%s/segment/%d?wallet=%s\n", baseURL, rental.ID, seg.Sequence, claimedWallet)
	}
	b.WriteString("#EXT-X-ENDLIST\n")

	return b.String(), nil
}

// FetchSegment authorizes the request, resolves the segment by walking
// the metadata chain from the rental's entry point, and returns the
// segment's bytes. The chain in the entity store is authoritative: the
// local segment rows only cross-check the walk. A cache hit on a
// previously validated sequence skips the re-walk.
func (g *Gate) FetchSegment(ctx context.Context, rentalID, claimedWallet string, sequence int) ([]byte, error) {
	rental, err := g.AuthorizeAccess(ctx, rentalID, claimedWallet)
	if err != nil {
		return nil, err
	}

	item, err := g.catalog.GetItem(rental.CatalogItemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrNoContent
	}

	dataEntityID, err := g.resolveData(ctx, rental, item, sequence)
	if err != nil {
		return nil, err
	}

	if g.cache != nil {
		if data, ok := g.cache.GetBytes(ctx, dataEntityID); ok {
			return data, nil
		}
	}

	data, err := g.store.Get(ctx, dataEntityID)
	if err != nil {
		if errors.Is(err, entitystore.ErrEntityNotFound) {
			return nil, fmt.Errorf("%w: payload %s", segmentgraph.ErrChunkNotFound, dataEntityID)
		}
		return nil, err
	}
	if g.cache != nil {
		g.cache.SetBytes(ctx, dataEntityID, data)
	}
	return data, nil
}

// resolveData maps a sequence number to its payload entity id, walking
// the chain on first access and consulting the cache afterwards.
func (g *Gate) resolveData(ctx context.Context, rental *model.Rental, item *model.CatalogItem, sequence int) (string, error) {
	if g.cache != nil {
		if dataID, ok := g.cache.GetResolved(ctx, item.ID, sequence); ok {
			return dataID, nil
		}
	}

	headID := g.entryPoint(rental, item)
	if headID == "" {
		return "", ErrNoContent
	}

	record, err := g.resolver.Resolve(ctx, headID, sequence)
	if err != nil {
		return "", err
	}

	// Cross-check the walked record against the local index when a row
	// for this sequence exists. A disagreement means either the chain or
	// the index was tampered with; fail closed.
	segs, err := g.segments.ListByItem(item.ID)
	if err != nil {
		return "", err
	}
	for _, seg := range segs {
		if seg.Sequence == sequence && seg.DataEntityID != record.DataEntityID {
			logger.Error("Segment chain disagrees with local index",
				logger.String("itemId", item.ID),
				logger.Int("sequence", sequence),
				logger.String("walked", record.DataEntityID),
				logger.String("indexed", seg.DataEntityID))
			return "", fmt.Errorf("%w: index mismatch at sequence %d", segmentgraph.ErrChunkNotFound, sequence)
		}
	}

	if g.cache != nil {
		g.cache.SetResolved(ctx, item.ID, sequence, record.DataEntityID)
	}
	return record.DataEntityID, nil
}

// entryPoint prefers the rental's private clone and falls back to the
// master graph when cloning failed at rental creation (degraded mode).
func (g *Gate) entryPoint(rental *model.Rental, item *model.CatalogItem) string {
	if rental.EntryCloneID != nil && *rental.EntryCloneID != "" {
		return *rental.EntryCloneID
	}
	if item.EntryMetadataID != nil {
		return *item.EntryMetadataID
	}
	return ""
}
