package api

import (
	"encoding/json"

	"github.com/xtreamly/tradekeeper/pkg/trade"
)

// SignupRequest enrolls (or re-enrolls) a user.
type SignupRequest struct {
	Address            string          `json:"address"`
	CustodyKeyRef      string          `json:"custodyKeyRef"`
	SessionCredentials json.RawMessage `json:"sessionCredentials"`
}

type SignupResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// TestTradeResponse reports a synchronous single-user fan-out.
type TestTradeResponse struct {
	Success   bool            `json:"success"`
	Symbol    string          `json:"symbol"`
	Side      trade.Side      `json:"side"`
	Amount    string          `json:"amount"`
	Succeeded []string        `json:"succeeded"`
	Failed    []FailureDetail `json:"failed"`
}

type FailureDetail struct {
	Address string `json:"address"`
	Error   string `json:"error"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// TradeEvent is broadcast to websocket clients after each execution.
type TradeEvent struct {
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Amount    string `json:"amount"`
	Address   string `json:"address"`
	Status    string `json:"status"` // "ok" or "failed"
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}
