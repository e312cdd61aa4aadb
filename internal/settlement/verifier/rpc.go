package verifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	settlementerrors "robopay/internal/settlement/errors"
	"robopay/pkg/retry"
)

const invalidParamsCode = -32602

// TransactionFetcher loads a confirmed transaction by signature.
type TransactionFetcher interface {
	Fetch(ctx context.Context, signature solana.Signature) (*Transaction, error)
}

type RPCFetcher struct {
	client *rpc.Client
}

func NewRPCFetcher(endpoint string) *RPCFetcher {
	return &RPCFetcher{client: rpc.New(endpoint)}
}

// Fetch calls getTransaction with jsonParsed encoding at confirmed commitment.
// A null result is ErrTransactionNotFound; the node may not have seen it yet.
func (f *RPCFetcher) Fetch(ctx context.Context, signature solana.Signature) (*Transaction, error) {
	maxVersion := uint64(0)
	params := []interface{}{
		signature.String(),
		map[string]interface{}{
			"encoding":                       "jsonParsed",
			"commitment":                     string(rpc.CommitmentConfirmed),
			"maxSupportedTransactionVersion": maxVersion,
		},
	}

	var out *Transaction
	if err := f.client.RPCCallForInto(ctx, &out, "getTransaction", params); err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, settlementerrors.ErrTransactionNotFound
		}
		var rpcErr *jsonrpc.RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == invalidParamsCode {
			return nil, retry.Permanent(fmt.Errorf("%w: %s", settlementerrors.ErrInvalidSignature, rpcErr.Message))
		}
		return nil, fmt.Errorf("getTransaction failed: %w", err)
	}
	if out == nil {
		return nil, settlementerrors.ErrTransactionNotFound
	}
	return out, nil
}
