package rental

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChainFM/core/entitystore"
	"ChainFM/model"
	"ChainFM/repository"
)

var (
	contractAddr = common.HexToAddress("0x00000000000000000000000000000000c0471ac1")
	renterAddr   = common.HexToAddress("0x0000000000000000000000000000000000a11ce0")
	relayAddr    = common.HexToAddress("0x000000000000000000000000000000000de1a7e0")
)

// fakeChain serves canned receipts and transactions.
type fakeChain struct {
	receipts map[common.Hash]*types.Receipt
	txs      map[common.Hash]*types.Transaction
	head     uint64
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		receipts: make(map[common.Hash]*types.Receipt),
		txs:      make(map[common.Hash]*types.Transaction),
		head:     100,
	}
}

func (c *fakeChain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	receipt, ok := c.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (c *fakeChain) TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error) {
	tx, ok := c.txs[txHash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	return tx, false, nil
}

func (c *fakeChain) BlockNumber(ctx context.Context) (uint64, error) {
	return c.head, nil
}

// memRentals enforces the tx_hash uniqueness the database index provides.
type memRentals struct {
	mu      sync.Mutex
	rentals map[string]*model.Rental
}

func newMemRentals() *memRentals {
	return &memRentals{rentals: make(map[string]*model.Rental)}
}

func (r *memRentals) GetByID(id string) (*model.Rental, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rental := range r.rentals {
		if rental.ID == id {
			clone := *rental
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *memRentals) GetByTxHash(txHash string) (*model.Rental, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rental, ok := r.rentals[txHash]; ok {
		clone := *rental
		return &clone, nil
	}
	return nil, nil
}

func (r *memRentals) ListActiveByWallet(wallet string, now time.Time) ([]*model.Rental, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Rental, 0)
	for _, rental := range r.rentals {
		if strings.EqualFold(rental.WalletAddress, wallet) && rental.IsActive && rental.ExpiresAt.After(now) {
			clone := *rental
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *memRentals) Create(rental *model.Rental) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rentals[rental.TxHash]; exists {
		return repository.ErrDuplicateTxHash
	}
	if rental.ID == "" {
		rental.ID = uuid.New().String()
	}
	clone := *rental
	r.rentals[rental.TxHash] = &clone
	return nil
}

func (r *memRentals) Deactivate(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rental := range r.rentals {
		if rental.ID == id {
			rental.IsActive = false
		}
	}
	return nil
}

func (r *memRentals) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rentals)
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

type fakeProfiles struct{}

func (fakeProfiles) GetByWallet(wallet string) (*model.Profile, error) { return nil, nil }
func (fakeProfiles) Create(profile *model.Profile) error               { return nil }
func (fakeProfiles) Update(wallet string, displayName, avatarURL *string) (*model.Profile, error) {
	return nil, nil
}
func (fakeProfiles) GetOrCreate(wallet string) (*model.Profile, error) {
	return &model.Profile{WalletAddress: strings.ToLower(wallet)}, nil
}

// purchaseReceipt builds a successful receipt carrying one
// RentalPurchased log from the rental contract.
func purchaseReceipt(t *testing.T, itemID string, paidWei, endTime *big.Int) *types.Receipt {
	t.Helper()
	data, err := PackPurchaseEventData(itemID, paidWei, endTime)
	require.NoError(t, err)

	return &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(90),
		Logs: []*types.Log{
			{
				Address: contractAddr,
				Topics: []common.Hash{
					RentalPurchasedTopic(),
					common.HexToHash("0x01"),
					common.BytesToHash(renterAddr.Bytes()),
				},
				Data: data,
			},
		},
	}
}

type verifierFixture struct {
	chain   *fakeChain
	store   *entitystore.MemStore
	rentals *memRentals
	catalog *fakeCatalog
	now     time.Time
	item    *model.CatalogItem
	entryID string
}

// newFixture seeds a rentable catalog item whose entry record lives in
// the store, priced at 0.0001 ETH.
func newFixture(t *testing.T) *verifierFixture {
	t.Helper()
	store := entitystore.NewMemStore()
	entryID, _, err := store.PutText(context.Background(),
		`{"entityId":"d0","dataEntityId":"d0","nextBlockId":null,"sequence":0}`,
		entitystore.ContentTypeMetadata, 0)
	require.NoError(t, err)

	item := &model.CatalogItem{
		ID:              "item-1",
		Title:           "Test Album",
		PriceETH:        "0.0001",
		EntryMetadataID: &entryID,
	}

	return &verifierFixture{
		chain:   newFakeChain(),
		store:   store,
		rentals: newMemRentals(),
		catalog: &fakeCatalog{items: map[string]*model.CatalogItem{item.ID: item}},
		now:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		item:    item,
		entryID: entryID,
	}
}

func (f *verifierFixture) verifier() *Verifier {
	return NewVerifier(f.chain, f.store, f.rentals, f.catalog, fakeProfiles{},
		contractAddr.Hex(), 5*time.Second, func() time.Time { return f.now })
}

func (f *verifierFixture) seedTx(t *testing.T, txHash string, paidWei *big.Int, endTime time.Time) {
	t.Helper()
	f.chain.receipts[common.HexToHash(txHash)] = purchaseReceipt(t, f.item.ID, paidWei, big.NewInt(endTime.Unix()))
}

const testTxHash = "0x1111111111111111111111111111111111111111111111111111111111111111"

func exactPriceWei(t *testing.T, price string) *big.Int {
	t.Helper()
	wei, err := EtherToWei(price)
	require.NoError(t, err)
	return wei
}

func TestVerifyCreates30DayRental(t *testing.T) {
	f := newFixture(t)
	end := f.now.Add(30 * 24 * time.Hour)
	f.seedTx(t, testTxHash, exactPriceWei(t, "0.0001"), end)

	rental, err := f.verifier().VerifyAndCreateRental(context.Background(), testTxHash, renterAddr.Hex(), "")
	require.NoError(t, err)

	assert.Equal(t, strings.ToLower(renterAddr.Hex()), rental.WalletAddress)
	assert.Equal(t, f.item.ID, rental.CatalogItemID)
	assert.Equal(t, testTxHash, rental.TxHash)
	assert.Equal(t, 30, rental.DurationDays)
	assert.Equal(t, "0.0001", rental.PaidETH)
	assert.True(t, rental.IsActive)
	assert.True(t, rental.ExpiresAt.Equal(end))

	// The rental got its own clone of the entry record.
	require.NotNil(t, rental.EntryCloneID)
	assert.NotEqual(t, f.entryID, *rental.EntryCloneID)
	body, err := f.store.GetText(context.Background(), *rental.EntryCloneID)
	require.NoError(t, err)
	assert.Contains(t, body, `"sequence":0`)
}

func TestVerifyDuplicateTxReturnsExistingRental(t *testing.T) {
	f := newFixture(t)
	f.seedTx(t, testTxHash, exactPriceWei(t, "0.0001"), f.now.Add(24*time.Hour))
	v := f.verifier()
	ctx := context.Background()

	first, err := v.VerifyAndCreateRental(ctx, testTxHash, renterAddr.Hex(), "")
	require.NoError(t, err)

	second, err := v.VerifyAndCreateRental(ctx, testTxHash, renterAddr.Hex(), "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.rentals.count())
}

func TestVerifyConcurrentSameTxCreatesOneRental(t *testing.T) {
	f := newFixture(t)
	f.seedTx(t, testTxHash, exactPriceWei(t, "0.0001"), f.now.Add(24*time.Hour))
	v := f.verifier()

	const callers = 8
	results := make([]*model.Rental, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = v.VerifyAndCreateRental(context.Background(), testTxHash, renterAddr.Hex(), "")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].ID, results[i].ID)
	}
	assert.Equal(t, 1, f.rentals.count())
}

func TestVerifyOverpaymentAccepted(t *testing.T) {
	f := newFixture(t)
	paid := new(big.Int).Mul(exactPriceWei(t, "0.0001"), big.NewInt(3))
	f.seedTx(t, testTxHash, paid, f.now.Add(24*time.Hour))

	rental, err := f.verifier().VerifyAndCreateRental(context.Background(), testTxHash, renterAddr.Hex(), "")
	require.NoError(t, err)
	assert.Equal(t, "0.0003", rental.PaidETH)
}

func TestVerifyUnderpaymentRejected(t *testing.T) {
	f := newFixture(t)
	paid := new(big.Int).Sub(exactPriceWei(t, "0.0001"), big.NewInt(1))
	f.seedTx(t, testTxHash, paid, f.now.Add(24*time.Hour))

	_, err := f.verifier().VerifyAndCreateRental(context.Background(), testTxHash, renterAddr.Hex(), "")
	assert.ErrorIs(t, err, ErrPriceTooLow)
	assert.Equal(t, 0, f.rentals.count())
}

func TestVerifyTxNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.verifier().VerifyAndCreateRental(context.Background(), testTxHash, renterAddr.Hex(), "")
	assert.ErrorIs(t, err, ErrTxNotFound)
}

func TestVerifyFailedTxRejected(t *testing.T) {
	f := newFixture(t)
	receipt := purchaseReceipt(t, f.item.ID, exactPriceWei(t, "0.0001"), big.NewInt(f.now.Add(time.Hour).Unix()))
	receipt.Status = types.ReceiptStatusFailed
	f.chain.receipts[common.HexToHash(testTxHash)] = receipt

	_, err := f.verifier().VerifyAndCreateRental(context.Background(), testTxHash, renterAddr.Hex(), "")
	assert.ErrorIs(t, err, ErrTxFailed)
}

func TestVerifyWrongContractRejected(t *testing.T) {
	f := newFixture(t)
	hash := common.HexToHash(testTxHash)
	f.chain.receipts[hash] = &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(90),
	}
	f.chain.txs[hash] = types.NewTx(&types.LegacyTx{To: &relayAddr})

	_, err := f.verifier().VerifyAndCreateRental(context.Background(), testTxHash, renterAddr.Hex(), "")
	assert.ErrorIs(t, err, ErrWrongContract)
}

func TestVerifyDirectCallWithoutEvent(t *testing.T) {
	f := newFixture(t)
	hash := common.HexToHash(testTxHash)
	f.chain.receipts[hash] = &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(90),
	}
	f.chain.txs[hash] = types.NewTx(&types.LegacyTx{To: &contractAddr})

	_, err := f.verifier().VerifyAndCreateRental(context.Background(), testTxHash, renterAddr.Hex(), "")
	assert.ErrorIs(t, err, ErrEventMissing)
}

func TestVerifyRelayedTxAccepted(t *testing.T) {
	f := newFixture(t)
	// Outer call goes to a relay, but the contract still emitted the
	// purchase event, so the log check accepts it without ever looking at
	// tx.To().
	f.seedTx(t, testTxHash, exactPriceWei(t, "0.0001"), f.now.Add(24*time.Hour))

	_, err := f.verifier().VerifyAndCreateRental(context.Background(), testTxHash, renterAddr.Hex(), "")
	assert.NoError(t, err)
}

func TestVerifyRenterMismatch(t *testing.T) {
	f := newFixture(t)
	f.seedTx(t, testTxHash, exactPriceWei(t, "0.0001"), f.now.Add(24*time.Hour))

	_, err := f.verifier().VerifyAndCreateRental(context.Background(), testTxHash, relayAddr.Hex(), "")
	assert.ErrorIs(t, err, ErrRenterMismatch)
}

func TestVerifyCatalogMismatch(t *testing.T) {
	f := newFixture(t)
	f.seedTx(t, testTxHash, exactPriceWei(t, "0.0001"), f.now.Add(24*time.Hour))

	_, err := f.verifier().VerifyAndCreateRental(context.Background(), testTxHash, renterAddr.Hex(), "other-item")
	assert.ErrorIs(t, err, ErrCatalogMismatch)
}

func TestVerifyUnknownItemRejected(t *testing.T) {
	f := newFixture(t)
	f.catalog.items = map[string]*model.CatalogItem{}
	f.seedTx(t, testTxHash, exactPriceWei(t, "0.0001"), f.now.Add(24*time.Hour))

	_, err := f.verifier().VerifyAndCreateRental(context.Background(), testTxHash, renterAddr.Hex(), "")
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestVerifyCloneFailureDegradesToMasterGraph(t *testing.T) {
	f := newFixture(t)
	f.seedTx(t, testTxHash, exactPriceWei(t, "0.0001"), f.now.Add(24*time.Hour))
	f.store.FailPuts = true

	rental, err := f.verifier().VerifyAndCreateRental(context.Background(), testTxHash, renterAddr.Hex(), "")
	require.NoError(t, err)
	assert.Nil(t, rental.EntryCloneID)
	assert.True(t, rental.IsActive)
}

func TestVerifyPastEndTimeClampsDuration(t *testing.T) {
	f := newFixture(t)
	f.seedTx(t, testTxHash, exactPriceWei(t, "0.0001"), f.now.Add(-time.Hour))

	rental, err := f.verifier().VerifyAndCreateRental(context.Background(), testTxHash, renterAddr.Hex(), "")
	require.NoError(t, err)
	assert.Equal(t, 0, rental.DurationDays)
}

func TestVerifyPartialDayRoundsUp(t *testing.T) {
	f := newFixture(t)
	f.seedTx(t, testTxHash, exactPriceWei(t, "0.0001"), f.now.Add(36*time.Hour))

	rental, err := f.verifier().VerifyAndCreateRental(context.Background(), testTxHash, renterAddr.Hex(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, rental.DurationDays)
}

func TestConfirmationCount(t *testing.T) {
	f := newFixture(t)
	f.seedTx(t, testTxHash, exactPriceWei(t, "0.0001"), f.now.Add(time.Hour))
	f.chain.head = 92 // receipt is in block 90

	count, err := f.verifier().ConfirmationCount(context.Background(), testTxHash)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
}

func TestConfirmationCountUnknownTx(t *testing.T) {
	f := newFixture(t)

	count, err := f.verifier().ConfirmationCount(context.Background(), testTxHash)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}
