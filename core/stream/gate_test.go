package stream

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChainFM/core/entitystore"
	"ChainFM/core/segmentgraph"
	"ChainFM/model"
	"ChainFM/repository"
)

const (
	ownerWallet = "0x000000000000000000000000000000000000aaaa"
	otherWallet = "0x000000000000000000000000000000000000bbbb"
)

type fakeRentals struct {
	rentals     map[string]*model.Rental
	deactivated int
}

func (f *fakeRentals) GetByID(id string) (*model.Rental, error) {
	if rental, ok := f.rentals[id]; ok {
		clone := *rental
		return &clone, nil
	}
	return nil, nil
}
func (f *fakeRentals) GetByTxHash(txHash string) (*model.Rental, error) { return nil, nil }
func (f *fakeRentals) ListActiveByWallet(wallet string, now time.Time) ([]*model.Rental, error) {
	return nil, nil
}
func (f *fakeRentals) Create(rental *model.Rental) error { return nil }
func (f *fakeRentals) Deactivate(id string) error {
	if rental, ok := f.rentals[id]; ok {
		rental.IsActive = false
		f.deactivated++
	}
	return nil
}

type fakeCatalog struct {
	items map[string]*model.CatalogItem
}

func (f *fakeCatalog) GetItem(id string) (*model.CatalogItem, error) {
	if item, ok := f.items[id]; ok {
		return item, nil
	}
	return nil, nil
}
func (f *fakeCatalog) ListItems(filters repository.CatalogFilters) ([]*model.CatalogItem, error) {
	return nil, nil
}
func (f *fakeCatalog) ListByCreator(wallet string) ([]*model.CatalogItem, error) { return nil, nil }
func (f *fakeCatalog) CreateItem(item *model.CatalogItem) error                  { return nil }
func (f *fakeCatalog) SetEntryMetadata(itemID, entryMetadataID string) error     { return nil }

type fakeSegments struct {
	rows []*model.CatalogSegment
}

func (f *fakeSegments) CreateBatch(segments []*model.CatalogSegment) error { return nil }
func (f *fakeSegments) ListByItem(catalogItemID string) ([]*model.CatalogSegment, error) {
	return f.rows, nil
}
func (f *fakeSegments) CountByItem(catalogItemID string) (int64, error) {
	return int64(len(f.rows)), nil
}

type gateFixture struct {
	store    *entitystore.MemStore
	rentals  *fakeRentals
	catalog  *fakeCatalog
	segments *fakeSegments
	now      time.Time
	rental   *model.Rental
	item     *model.CatalogItem
	result   *segmentgraph.GraphResult
}

// newGateFixture builds a five-segment chain in the store, indexes it,
// clones the entry for the rental and grants 24 hours of access.
func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	store := entitystore.NewMemStore()
	ctx := context.Background()

	payloads := make([]segmentgraph.SegmentPayload, 5)
	for i := range payloads {
		payloads[i] = segmentgraph.SegmentPayload{
			Sequence: i,
			Data:     []byte(fmt.Sprintf("segment-%d", i)),
		}
	}
	result, err := segmentgraph.NewBuilder(store).Build(ctx, payloads)
	require.NoError(t, err)

	entryID := result.EntryMetadataID
	item := &model.CatalogItem{
		ID:              "item-1",
		Title:           "Gated Album",
		EntryMetadataID: &entryID,
	}

	rows := make([]*model.CatalogSegment, len(result.Records))
	for i, rec := range result.Records {
		rows[i] = &model.CatalogSegment{
			CatalogItemID: item.ID,
			Sequence:      rec.Sequence,
			DataEntityID:  rec.DataEntityID,
			MetaEntityID:  rec.MetaEntityID,
			NextMetaID:    rec.NextMetaID,
		}
	}

	cloneID, _, err := store.Clone(ctx, entryID, 0)
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rental := &model.Rental{
		ID:            "rental-1",
		WalletAddress: ownerWallet,
		CatalogItemID: item.ID,
		ExpiresAt:     now.Add(24 * time.Hour),
		EntryCloneID:  &cloneID,
		IsActive:      true,
	}

	return &gateFixture{
		store:    store,
		rentals:  &fakeRentals{rentals: map[string]*model.Rental{rental.ID: rental}},
		catalog:  &fakeCatalog{items: map[string]*model.CatalogItem{item.ID: item}},
		segments: &fakeSegments{rows: rows},
		now:      now,
		rental:   rental,
		item:     item,
		result:   result,
	}
}

func (f *gateFixture) gate() *Gate {
	return NewGate(f.rentals, f.catalog, f.segments, f.store,
		segmentgraph.NewResolver(f.store), nil, 10, func() time.Time { return f.now })
}

func TestAuthorizeAccessUnknownRental(t *testing.T) {
	f := newGateFixture(t)

	_, err := f.gate().AuthorizeAccess(context.Background(), "missing", ownerWallet)
	assert.ErrorIs(t, err, ErrRentalNotFound)
}

func TestAuthorizeAccessWrongWallet(t *testing.T) {
	f := newGateFixture(t)

	_, err := f.gate().AuthorizeAccess(context.Background(), f.rental.ID, otherWallet)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAuthorizeAccessWrongWalletOnExpiredRental(t *testing.T) {
	f := newGateFixture(t)
	f.now = f.rental.ExpiresAt.Add(time.Hour)

	// A wrong wallet learns nothing about the rental's state.
	_, err := f.gate().AuthorizeAccess(context.Background(), f.rental.ID, otherWallet)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, 0, f.rentals.deactivated)
}

func TestAuthorizeAccessOwnerCaseInsensitive(t *testing.T) {
	f := newGateFixture(t)

	rental, err := f.gate().AuthorizeAccess(context.Background(), f.rental.ID, strings.ToUpper(ownerWallet))
	require.NoError(t, err)
	assert.Equal(t, f.rental.ID, rental.ID)
}

func TestAuthorizeAccessExpiryFlipsOnce(t *testing.T) {
	f := newGateFixture(t)
	gate := f.gate()
	ctx := context.Background()
	f.now = f.rental.ExpiresAt

	// First access past the end time flips the rental inactive.
	_, err := gate.AuthorizeAccess(ctx, f.rental.ID, ownerWallet)
	assert.ErrorIs(t, err, ErrRentalExpired)
	assert.Equal(t, 1, f.rentals.deactivated)
	assert.False(t, f.rentals.rentals[f.rental.ID].IsActive)

	// Later accesses see the same error without another write.
	_, err = gate.AuthorizeAccess(ctx, f.rental.ID, ownerWallet)
	assert.ErrorIs(t, err, ErrRentalExpired)
	assert.Equal(t, 1, f.rentals.deactivated)
}

func TestAuthorizeAccessInactiveRental(t *testing.T) {
	f := newGateFixture(t)
	f.rentals.rentals[f.rental.ID].IsActive = false

	_, err := f.gate().AuthorizeAccess(context.Background(), f.rental.ID, ownerWallet)
	assert.ErrorIs(t, err, ErrRentalInactive)
}

func TestGenerateManifestListsAllSegmentsInOrder(t *testing.T) {
	f := newGateFixture(t)

	manifest, err := f.gate().GenerateManifest(context.Background(), f.rental.ID, ownerWallet, "http://localhost:8080")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(manifest, "#EXTM3U\n"))
	assert.Contains(t, manifest, "#EXT-X-TARGETDURATION:10")
	assert.True(t, strings.HasSuffix(manifest, "#EXT-X-ENDLIST\n"))

	lines := strings.Split(strings.TrimSpace(manifest), "\n")
	var urls []string
	for _, line := range lines {
		if strings.HasPrefix(line, "http://") {
			urls = append(urls, line)
		}
	}
	require.Len(t, urls, 5)
	for i, url := range urls {
		assert.Equal(t,
			fmt.Sprintf("http://localhost:8080/stream/%s/segment/%d?wallet=%s", f.rental.ID, i, ownerWallet),
			url)
	}
}

func TestGenerateManifestDeniedForNonOwner(t *testing.T) {
	f := newGateFixture(t)

	_, err := f.gate().GenerateManifest(context.Background(), f.rental.ID, otherWallet, "http://localhost:8080")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestGenerateManifestNoSegments(t *testing.T) {
	f := newGateFixture(t)
	f.segments.rows = nil

	_, err := f.gate().GenerateManifest(context.Background(), f.rental.ID, ownerWallet, "http://localhost:8080")
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestFetchSegmentReturnsBytes(t *testing.T) {
	f := newGateFixture(t)
	gate := f.gate()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		data, err := gate.FetchSegment(ctx, f.rental.ID, ownerWallet, i)
		require.NoError(t, err)
		assert.Equal(t, []byte(fmt.Sprintf("segment-%d", i)), data)
	}
}

func TestFetchSegmentDegradedModeReadsMasterGraph(t *testing.T) {
	f := newGateFixture(t)
	f.rentals.rentals[f.rental.ID].EntryCloneID = nil

	data, err := f.gate().FetchSegment(context.Background(), f.rental.ID, ownerWallet, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("segment-2"), data)
}

func TestFetchSegmentPastEndOfChain(t *testing.T) {
	f := newGateFixture(t)

	_, err := f.gate().FetchSegment(context.Background(), f.rental.ID, ownerWallet, 9)
	assert.ErrorIs(t, err, segmentgraph.ErrChunkNotFound)
}

func TestFetchSegmentIndexMismatchFailsClosed(t *testing.T) {
	f := newGateFixture(t)
	f.segments.rows[2].DataEntityID = "tampered"

	_, err := f.gate().FetchSegment(context.Background(), f.rental.ID, ownerWallet, 2)
	assert.ErrorIs(t, err, segmentgraph.ErrChunkNotFound)
}

func TestFetchSegmentDeniedForNonOwner(t *testing.T) {
	f := newGateFixture(t)

	_, err := f.gate().FetchSegment(context.Background(), f.rental.ID, otherWallet, 0)
	assert.ErrorIs(t, err, ErrForbidden)
}
