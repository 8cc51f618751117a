package exchange

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/xtreamly/tradekeeper/pkg/custody"
)

// TradeAction returns the decrypt-and-trade implementation run on every
// quorum node. All nodes reconstruct the key, build and sign the identical
// order, and verify each other's results through output agreement; only the
// nonce fetch and the order submission — the externally stateful steps — go
// through the run-once election.
func TradeAction(c *Client) custody.ActionFunc {
	return func(ctx context.Context, ro custody.RunOncer, keyHex string, params custody.ActionParams) ([]byte, error) {
		if params.Order == nil {
			return nil, fmt.Errorf("decrypt-and-trade: missing order")
		}
		order := *params.Order

		signer, err := NewSignerFromHex(keyHex)
		if err != nil {
			return nil, fmt.Errorf("decrypt-and-trade: %w", err)
		}
		owner := signer.Address().Hex()

		nonceBytes, err := ro.RunOnce(ctx, "fetch-nonce", func(ctx context.Context) ([]byte, error) {
			n, err := c.Nonce(ctx, owner)
			if err != nil {
				return nil, err
			}
			var buf [8]byte
			binary.BigEndian.PutUint64(buf[:], n)
			return buf[:], nil
		})
		if err != nil {
			return nil, err
		}
		nonce := binary.BigEndian.Uint64(nonceBytes)

		// Read-only lookup, safe to repeat on every node.
		assetIndex, err := c.AssetIndex(ctx, order.Symbol)
		if err != nil {
			return nil, err
		}

		action := MarketOrderAction(assetIndex, order.Side == "buy", order.Amount)
		sig, err := SignL1Action(signer, action, nonce)
		if err != nil {
			return nil, err
		}
		sub := SignedSubmission{Action: action, Nonce: nonce, Signature: sig}

		return ro.RunOnce(ctx, "submit-order", func(ctx context.Context) ([]byte, error) {
			raw, err := c.SubmitSigned(ctx, sub)
			if err != nil {
				return nil, err
			}
			return raw, nil
		})
	}
}
