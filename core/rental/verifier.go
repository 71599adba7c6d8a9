// Package rental converts on-chain payment transactions into authoritative
// rental grants. A transaction hash alone proves that a payment happened,
// not that it paid this service for this item at this price: every fact is
// re-derived from the transaction's receipt and event log, and any
// inconsistency aborts without a partial rental.
package rental

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ChainFM/core/entitystore"
	"ChainFM/logger"
	"ChainFM/model"
	"ChainFM/repository"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Verification failure modes. Each check in VerifyAndCreateRental is a
// hard gate mapping to exactly one of these.
var (
	ErrTxNotFound       = errors.New("transaction not found on chain")
	ErrTxFailed         = errors.New("transaction failed on chain")
	ErrWrongContract    = errors.New("transaction is not for the rental contract")
	ErrEventMissing     = errors.New("no rental purchase event in transaction logs")
	ErrRenterMismatch   = errors.New("renter address does not match claimed wallet")
	ErrCatalogMismatch  = errors.New("catalog item does not match expectation")
	ErrPriceTooLow      = errors.New("paid amount is less than the required price")
	ErrItemNotFound     = errors.New("catalog item not found")
	ErrChainUnavailable = errors.New("chain RPC unavailable")
)

const secondsPerDay = 86400

// Verifier re-derives rental facts from chain state and persists grants.
type Verifier struct {
	chain    ChainReader
	store    entitystore.Store
	rentals  repository.RentalRepository
	catalog  repository.CatalogRepository
	profiles repository.ProfileRepository
	contract common.Address
	callTTL  time.Duration
	now      func() time.Time
}

// NewVerifier creates a Verifier. callTTL bounds each chain RPC call; now
// is injectable for deterministic expiry tests.
func NewVerifier(
	chain ChainReader,
	store entitystore.Store,
	rentals repository.RentalRepository,
	catalog repository.CatalogRepository,
	profiles repository.ProfileRepository,
	contract string,
	callTTL time.Duration,
	now func() time.Time,
) *Verifier {
	if now == nil {
		now = time.Now
	}
	return &Verifier{
		chain:    chain,
		store:    store,
		rentals:  rentals,
		catalog:  catalog,
		profiles: profiles,
		contract: common.HexToAddress(contract),
		callTTL:  callTTL,
		now:      now,
	}
}

// VerifyAndCreateRental validates the payment transaction and persists a
// rental grant. Duplicate submissions of the same hash are idempotent:
// the existing rental is returned, never an error, so client retries are
// safe. claimedItemID may be empty when the caller has no expectation.
func (v *Verifier) VerifyAndCreateRental(ctx context.Context, txHash, claimedWallet, claimedItemID string) (*model.Rental, error) {
	// Idempotent short-circuit: one transaction funds at most one rental.
	existing, err := v.rentals.GetByTxHash(txHash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logger.Info("Rental already exists for transaction",
			logger.String("txHash", txHash),
			logger.String("rentalId", existing.ID))
		return existing, nil
	}

	hash := common.HexToHash(txHash)

	callCtx, cancel := context.WithTimeout(ctx, v.callTTL)
	defer cancel()

	receipt, err := v.chain.TransactionReceipt(callCtx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, ErrTxNotFound
		}
		return nil, fmt.Errorf("%w: fetching receipt: %v", ErrChainUnavailable, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, ErrTxFailed
	}

	if err := v.checkContract(ctx, hash, receipt); err != nil {
		return nil, err
	}

	eventLog := findPurchaseEvent(receipt, v.contract)
	if eventLog == nil {
		return nil, ErrEventMissing
	}
	event, err := decodePurchaseEvent(eventLog)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEventMissing, err)
	}

	if !strings.EqualFold(event.Renter.Hex(), claimedWallet) {
		logger.Warn("Renter mismatch",
			logger.String("claimed", claimedWallet),
			logger.String("onChain", event.Renter.Hex()))
		return nil, ErrRenterMismatch
	}

	if claimedItemID != "" && event.CatalogItemID != claimedItemID {
		logger.Warn("Catalog item mismatch",
			logger.String("expected", claimedItemID),
			logger.String("onChain", event.CatalogItemID))
		return nil, ErrCatalogMismatch
	}

	item, err := v.catalog.GetItem(event.CatalogItemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrItemNotFound
	}

	priceWei, err := EtherToWei(item.PriceETH)
	if err != nil {
		return nil, fmt.Errorf("catalog item %s has malformed price: %w", item.ID, err)
	}
	// Overpayment is allowed; underpayment never is.
	if event.PaidAmount.Cmp(priceWei) < 0 {
		return nil, ErrPriceTooLow
	}

	// The wallet proved payment on chain; make sure it has a profile even
	// if it never went through signature sign-in.
	if _, err := v.profiles.GetOrCreate(claimedWallet); err != nil {
		return nil, err
	}

	now := v.now()
	endTime := time.Unix(event.RentalEndTime.Int64(), 0)
	durationSeconds := event.RentalEndTime.Int64() - now.Unix()
	durationDays := int((durationSeconds + secondsPerDay - 1) / secondsPerDay)
	if durationDays < 0 {
		durationDays = 0
	}

	// A private clone of the entry record gives the rental its own
	// expiring copy. Clone failure is tolerated: content is then served
	// from the master graph, a documented degraded mode.
	var entryCloneID *string
	if item.Rentable() {
		cloneID, _, cloneErr := v.store.Clone(ctx, *item.EntryMetadataID, durationSeconds)
		if cloneErr != nil {
			logger.Warn("Entry clone failed, rental will read the master graph",
				logger.String("itemId", item.ID),
				logger.ErrorField(cloneErr))
		} else {
			entryCloneID = &cloneID
		}
	}

	rental := &model.Rental{
		WalletAddress: strings.ToLower(claimedWallet),
		CatalogItemID: item.ID,
		TxHash:        txHash,
		ExpiresAt:     endTime,
		PaidETH:       WeiToEther(event.PaidAmount),
		DurationDays:  durationDays,
		EntryCloneID:  entryCloneID,
		IsActive:      true,
	}
	if err := v.rentals.Create(rental); err != nil {
		if errors.Is(err, repository.ErrDuplicateTxHash) {
			// Lost a concurrent race for the same hash: return the winner.
			winner, readErr := v.rentals.GetByTxHash(txHash)
			if readErr != nil {
				return nil, readErr
			}
			if winner != nil {
				return winner, nil
			}
		}
		return nil, err
	}

	logger.Info("Rental created",
		logger.String("rentalId", rental.ID),
		logger.String("wallet", rental.WalletAddress),
		logger.String("itemId", rental.CatalogItemID),
		logger.String("txHash", txHash),
		logger.Int("durationDays", durationDays))
	return rental, nil
}

// checkContract accepts the transaction when it targets the rental
// contract directly, or when any log originates from it. The latter
// covers relayed and sponsored transactions, where the outer call goes
// through a relay but the purchase still executes on the contract.
func (v *Verifier) checkContract(ctx context.Context, hash common.Hash, receipt *types.Receipt) error {
	for _, log := range receipt.Logs {
		if log.Address == v.contract {
			return nil
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, v.callTTL)
	defer cancel()

	tx, _, err := v.chain.TransactionByHash(callCtx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return ErrTxNotFound
		}
		return fmt.Errorf("%w: fetching transaction: %v", ErrChainUnavailable, err)
	}
	if tx.To() == nil || *tx.To() != v.contract {
		return ErrWrongContract
	}
	return nil
}

// ConfirmationCount reports how many blocks have sealed the transaction.
// Zero means not found or not yet mined.
func (v *Verifier) ConfirmationCount(ctx context.Context, txHash string) (uint64, error) {
	callCtx, cancel := context.WithTimeout(ctx, v.callTTL)
	defer cancel()

	receipt, err := v.chain.TransactionReceipt(callCtx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: fetching receipt: %v", ErrChainUnavailable, err)
	}

	head, err := v.chain.BlockNumber(callCtx)
	if err != nil {
		return 0, fmt.Errorf("%w: fetching head: %v", ErrChainUnavailable, err)
	}
	if receipt.BlockNumber == nil || head < receipt.BlockNumber.Uint64() {
		return 0, nil
	}
	return head - receipt.BlockNumber.Uint64() + 1, nil
}
