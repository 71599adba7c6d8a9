package rental

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ABI fragment for the rental contract's purchase event. The rental id
// and renter are indexed; the catalog item id stays in the data section
// so its literal value can be cross-checked (an indexed string only
// exposes its hash).
const rentalABIJSON = `[
  {
    "type": "event",
    "name": "RentalPurchased",
    "inputs": [
      {"name": "rentalId", "type": "bytes32", "indexed": true},
      {"name": "renter", "type": "address", "indexed": true},
      {"name": "catalogItemId", "type": "string", "indexed": false},
      {"name": "paidAmount", "type": "uint256", "indexed": false},
      {"name": "rentalEndTime", "type": "uint256", "indexed": false}
    ]
  }
]`

var (
	rentalABI            abi.ABI
	rentalPurchasedTopic common.Hash
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(rentalABIJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid rental ABI: %v", err))
	}
	rentalABI = parsed
	rentalPurchasedTopic = parsed.Events["RentalPurchased"].ID
}

// PurchaseEvent carries the decoded facts of one RentalPurchased log.
// Every field is re-derived from chain state; nothing here comes from
// client-supplied JSON.
type PurchaseEvent struct {
	RentalID      common.Hash
	Renter        common.Address
	CatalogItemID string
	PaidAmount    *big.Int
	RentalEndTime *big.Int
}

// RentalPurchasedTopic returns the event signature hash. Exposed for
// tests that assemble receipts.
func RentalPurchasedTopic() common.Hash {
	return rentalPurchasedTopic
}

// PackPurchaseEventData ABI-encodes the event's non-indexed fields.
// Test helper for building logs.
func PackPurchaseEventData(catalogItemID string, paidAmount, rentalEndTime *big.Int) ([]byte, error) {
	args := rentalABI.Events["RentalPurchased"].Inputs.NonIndexed()
	return args.Pack(catalogItemID, paidAmount, rentalEndTime)
}

// decodePurchaseEvent extracts the purchase facts from a matching log.
func decodePurchaseEvent(log *types.Log) (*PurchaseEvent, error) {
	if len(log.Topics) < 3 {
		return nil, fmt.Errorf("purchase event has %d topics, want 3", len(log.Topics))
	}

	values, err := rentalABI.Unpack("RentalPurchased", log.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack purchase event data: %w", err)
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("purchase event data has %d values, want 3", len(values))
	}

	catalogItemID, ok := values[0].(string)
	if !ok {
		return nil, fmt.Errorf("catalogItemId is %T, want string", values[0])
	}
	paidAmount, ok := values[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("paidAmount is %T, want *big.Int", values[1])
	}
	rentalEndTime, ok := values[2].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("rentalEndTime is %T, want *big.Int", values[2])
	}

	return &PurchaseEvent{
		RentalID:      log.Topics[1],
		Renter:        common.BytesToAddress(log.Topics[2].Bytes()),
		CatalogItemID: catalogItemID,
		PaidAmount:    paidAmount,
		RentalEndTime: rentalEndTime,
	}, nil
}

// findPurchaseEvent scans receipt logs for a RentalPurchased event emitted
// by the rental contract.
func findPurchaseEvent(receipt *types.Receipt, contract common.Address) *types.Log {
	for _, log := range receipt.Logs {
		if log.Address == contract && len(log.Topics) > 0 && log.Topics[0] == rentalPurchasedTopic {
			return log
		}
	}
	return nil
}
