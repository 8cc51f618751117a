// Package api is the administrative HTTP surface: signup, synchronous test
// trades, health, and a websocket stream of trade outcomes.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xtreamly/tradekeeper/pkg/custody"
	"github.com/xtreamly/tradekeeper/pkg/storage"
	"github.com/xtreamly/tradekeeper/pkg/trade"
)

type Server struct {
	store  *storage.UserStore
	trader *trade.Trader
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
}

func NewServer(store *storage.UserStore, trader *trade.Trader, log *zap.SugaredLogger) *Server {
	s := &Server{
		store:  store,
		trader: trader,
		router: mux.NewRouter(),
		hub:    newHub(log),
		log:    log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/signup", s.handleSignup).Methods("POST")
	s.router.HandleFunc("/test_trade", s.handleTestTrade).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Handler exposes the route table without binding a listener.
func (s *Server) Handler() http.Handler { return s.router }

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	go s.hub.run()

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})

	s.log.Infow("api_server_starting", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// BroadcastReport fans a completed fan-out to websocket subscribers.
func (s *Server) BroadcastReport(symbol string, intent trade.Intent, report trade.Report) {
	now := time.Now().UnixMilli()
	for _, addr := range report.Succeeded {
		s.hub.broadcastEvent(TradeEvent{
			Symbol: symbol, Side: string(intent.Side), Amount: intent.Amount.String(),
			Address: addr, Status: "ok", Timestamp: now,
		})
	}
	for _, f := range report.Failed {
		s.hub.broadcastEvent(TradeEvent{
			Symbol: symbol, Side: string(intent.Side), Amount: intent.Amount.String(),
			Address: f.Address, Status: "failed", Error: f.Err.Error(), Timestamp: now,
		})
	}
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Address == "" || req.CustodyKeyRef == "" || len(req.SessionCredentials) == 0 {
		respondError(w, http.StatusBadRequest, "missing address, custodyKeyRef or sessionCredentials", "")
		return
	}
	if !common.IsHexAddress(req.Address) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}

	var set custody.SessionCredentialSet
	if err := json.Unmarshal(req.SessionCredentials, &set); err != nil {
		respondError(w, http.StatusBadRequest, "invalid session credentials", err.Error())
		return
	}
	if set.Len() == 0 {
		respondError(w, http.StatusBadRequest, "empty session credential set", "")
		return
	}

	user := &storage.User{
		Address:            req.Address,
		CustodyKeyRef:      req.CustodyKeyRef,
		SessionCredentials: &set,
	}
	if err := s.store.Upsert(user); err != nil {
		s.log.Errorw("signup_failed", "address", req.Address, "err", err)
		respondError(w, http.StatusInternalServerError, "failed to signup", "")
		return
	}

	s.log.Infow("user_enrolled", "address", req.Address, "key_ref", req.CustodyKeyRef)
	respondJSON(w, SignupResponse{Success: true, Message: "successful signup: " + req.Address})
}

func (s *Server) handleTestTrade(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	address := q.Get("address")
	symbol := q.Get("symbol")
	side := trade.Side(q.Get("side"))

	if address == "" || symbol == "" {
		respondError(w, http.StatusBadRequest, "missing trade parameters", "")
		return
	}
	if side != trade.Buy && side != trade.Sell {
		respondError(w, http.StatusBadRequest, "side must be buy or sell", "")
		return
	}
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil || !amount.IsPositive() {
		respondError(w, http.StatusBadRequest, "amount must be a positive number", "")
		return
	}

	user, err := s.store.Get(address)
	if err != nil {
		respondError(w, http.StatusNotFound, "user not found", "")
		return
	}

	intent := trade.Intent{Symbol: symbol, Side: side, Amount: amount}
	report := s.trader.TradeForUsers(r.Context(), []storage.User{*user}, intent)
	s.BroadcastReport(symbol, intent, report)

	resp := TestTradeResponse{
		Success:   len(report.Failed) == 0,
		Symbol:    symbol,
		Side:      side,
		Amount:    amount.String(),
		Succeeded: report.Succeeded,
		Failed:    make([]FailureDetail, 0, len(report.Failed)),
	}
	for _, f := range report.Failed {
		resp.Failed = append(resp.Failed, FailureDetail{Address: f.Address, Error: f.Err.Error()})
	}
	respondJSON(w, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: error, Message: message})
}
