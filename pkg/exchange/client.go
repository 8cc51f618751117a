// Package exchange is the Hyperliquid-style venue client: metadata and nonce
// queries, L1-action signing, and order submission. Request and response
// shapes are owned by the exchange.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Order is one exchange order in wire form.
type Order struct {
	Asset      int       `json:"a"`
	IsBuy      bool      `json:"b"`
	Price      string    `json:"p"`
	Size       string    `json:"s"`
	ReduceOnly bool      `json:"r"`
	Type       OrderType `json:"t"`
}

type OrderType struct {
	Limit *LimitType `json:"limit,omitempty"`
}

type LimitType struct {
	Tif string `json:"tif"`
}

// OrderAction is the signed body of an order submission.
type OrderAction struct {
	Type     string  `json:"type"`
	Orders   []Order `json:"orders"`
	Grouping string  `json:"grouping"`
}

// SignedSubmission is the full /exchange request body.
type SignedSubmission struct {
	Action    OrderAction `json:"action"`
	Nonce     uint64      `json:"nonce"`
	Signature RSV         `json:"signature"`
}

type Client struct {
	baseURL string
	client  *http.Client
	log     *zap.SugaredLogger
}

func NewClient(baseURL string, timeout time.Duration, log *zap.SugaredLogger) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Nonce fetches the caller's next nonce from the exchange. Monotonic and
// externally stateful: fetching it twice for one order double-spends it.
func (c *Client) Nonce(ctx context.Context, user string) (uint64, error) {
	var out struct {
		Result uint64 `json:"result"`
	}
	if err := c.info(ctx, map[string]string{"type": "nonce", "user": user}, &out); err != nil {
		return 0, fmt.Errorf("fetch nonce: %w", err)
	}
	return out.Result, nil
}

type metaResponse struct {
	Universe []struct {
		Name string `json:"name"`
	} `json:"universe"`
}

// AssetIndex resolves a symbol to the exchange's asset index. Perp symbols
// may carry a -PERP suffix; spot symbols a -SPOT suffix offset by 10000.
func (c *Client) AssetIndex(ctx context.Context, symbol string) (int, error) {
	spot := strings.HasSuffix(symbol, "-SPOT")
	name := strings.TrimSuffix(strings.TrimSuffix(symbol, "-PERP"), "-SPOT")

	body := map[string]string{"type": "meta"}
	if spot {
		body["type"] = "spotMeta"
	}

	var meta metaResponse
	if err := c.info(ctx, body, &meta); err != nil {
		return 0, fmt.Errorf("fetch meta: %w", err)
	}
	for i, asset := range meta.Universe {
		if asset.Name == name {
			if spot {
				return 10000 + i, nil
			}
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown symbol %q", symbol)
}

// MarketOrderAction builds an immediate-or-cancel market order action.
// Size strings carry no trailing zeros; the exchange rejects them otherwise.
func MarketOrderAction(assetIndex int, isBuy bool, size decimal.Decimal) OrderAction {
	return OrderAction{
		Type: "order",
		Orders: []Order{{
			Asset:      assetIndex,
			IsBuy:      isBuy,
			Price:      "0",
			Size:       size.String(),
			ReduceOnly: false,
			Type:       OrderType{Limit: &LimitType{Tif: "Ioc"}},
		}},
		Grouping: "na",
	}
}

// SubmitSigned posts a signed submission to /exchange and returns the raw
// venue response.
func (c *Client) SubmitSigned(ctx context.Context, sub SignedSubmission) (json.RawMessage, error) {
	body, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("marshal submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/exchange", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit order: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read exchange response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("exchange rejected order: status %d: %s", resp.StatusCode, data)
	}

	c.log.Infow("order_submitted", "nonce", sub.Nonce, "orders", len(sub.Action.Orders))
	return json.RawMessage(data), nil
}

func (c *Client) info(ctx context.Context, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/info", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("info query failed: status %d: %s", resp.StatusCode, data)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
