package rental

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ChainReader is the collaborator interface for the chain RPC. The
// production implementation is go-ethereum's ethclient; tests inject a
// fake seeded with receipts.
type ChainReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, txHash common.Hash) (tx *types.Transaction, isPending bool, err error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// ethclient.Client satisfies ChainReader as-is.
var _ ChainReader = (*ethclient.Client)(nil)

// DialChain connects to the chain RPC endpoint.
func DialChain(rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial chain RPC %s: %w", rpcURL, err)
	}
	return client, nil
}
