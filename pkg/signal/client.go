// Package signal fetches volatility predictions from the external signal
// provider.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// ErrSignalUnavailable reports a transport or parse failure fetching the
// signal. It aborts the current symbol's tick only; the caller never trades
// on a missing signal.
var ErrSignalUnavailable = errors.New("volatility signal unavailable")

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *zap.SugaredLogger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, log *zap.SugaredLogger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

type volatilityResponse struct {
	Volatility float64 `json:"volatility"`
}

// VolatilityPrediction returns the predicted volatility for symbol over the
// given horizon (minutes).
func (c *Client) VolatilityPrediction(ctx context.Context, symbol string, horizon int) (float64, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("horizon", strconv.Itoa(horizon))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/volatility_prediction?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSignalUnavailable, err)
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSignalUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("%w: status %d: %s", ErrSignalUnavailable, resp.StatusCode, body)
	}

	var vr volatilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return 0, fmt.Errorf("%w: decode: %v", ErrSignalUnavailable, err)
	}

	c.log.Debugw("volatility_prediction", "symbol", symbol, "horizon", horizon, "volatility", vr.Volatility)
	return vr.Volatility, nil
}
