// Package rpc provides the JSON-RPC 2.0 surface for the folio daemon.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/foliolabs/folio/internal/aggregator"
	"github.com/foliolabs/folio/internal/asset"
	"github.com/foliolabs/folio/internal/config"
	"github.com/foliolabs/folio/internal/discovery"
	"github.com/foliolabs/folio/internal/driver"
	"github.com/foliolabs/folio/internal/history"
	"github.com/foliolabs/folio/internal/library"
	"github.com/foliolabs/folio/internal/price"
	"github.com/foliolabs/folio/internal/storage"
	"github.com/foliolabs/folio/pkg/logging"
)

// Services bundles the daemon subsystems the RPC surface exposes.
type Services struct {
	Store      *storage.Storage
	Drivers    *driver.Manager
	Aggregator *aggregator.Aggregator
	Prices     *price.Engine
	Library    *library.Library
	Discovery  *discovery.Engine
	Assets     *asset.Service
	Scheduler  *history.Scheduler
}

// Server is a JSON-RPC 2.0 server.
type Server struct {
	cfg       *config.Config
	store     *storage.Storage
	drivers   *driver.Manager
	agg       *aggregator.Aggregator
	prices    *price.Engine
	lib       *library.Library
	discovery *discovery.Engine
	assets    *asset.Service
	scheduler *history.Scheduler
	log       *logging.Logger
	wsHub     *WSHub
	started   time.Time

	server   *http.Server
	listener net.Listener

	handlers map[string]Handler
	mu       sync.RWMutex
}

// Handler is a JSON-RPC method handler.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Standard error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// NewServer creates a new JSON-RPC server.
func NewServer(cfg *config.Config, svc *Services) *Server {
	s := &Server{
		cfg:       cfg,
		store:     svc.Store,
		drivers:   svc.Drivers,
		agg:       svc.Aggregator,
		prices:    svc.Prices,
		lib:       svc.Library,
		discovery: svc.Discovery,
		assets:    svc.Assets,
		scheduler: svc.Scheduler,
		log:       logging.GetDefault().Component("rpc"),
		started:   time.Now(),
		handlers:  make(map[string]Handler),
	}

	// Register handlers
	s.registerHandlers()

	return s
}

// registerHandlers registers all JSON-RPC method handlers.
func (s *Server) registerHandlers() {
	// Node methods
	s.handlers["node_info"] = s.nodeInfo
	s.handlers["node_status"] = s.nodeStatus

	// Asset methods
	s.handlers["assets_add"] = s.assetsAdd
	s.handlers["assets_quickAdd"] = s.assetsQuickAdd
	s.handlers["assets_batchAdd"] = s.assetsBatchAdd
	s.handlers["assets_update"] = s.assetsUpdate
	s.handlers["assets_delete"] = s.assetsDelete
	s.handlers["assets_list"] = s.assetsList
	s.handlers["assets_summary"] = s.assetsSummary

	// Token library methods
	s.handlers["tokens_add"] = s.tokensAdd
	s.handlers["tokens_list"] = s.tokensList
	s.handlers["tokens_update"] = s.tokensUpdate
	s.handlers["tokens_delete"] = s.tokensDelete
	s.handlers["tokens_search"] = s.tokensSearch
	s.handlers["tokens_stats"] = s.tokensStats

	// Discovery methods
	s.handlers["discovery_wallet"] = s.discoveryWallet
	s.handlers["discovery_batch"] = s.discoveryBatch
	s.handlers["discovery_addToken"] = s.discoveryAddToken

	// History methods
	s.handlers["history_prices"] = s.historyPrices
	s.handlers["history_balances"] = s.historyBalances
	s.handlers["history_assetTrend"] = s.historyAssetTrend
	s.handlers["history_update"] = s.historyUpdate
	s.handlers["history_status"] = s.historyStatus
	s.handlers["history_cleanup"] = s.historyCleanup

	// Price methods
	s.handlers["prices_get"] = s.pricesGet
	s.handlers["prices_refresh"] = s.pricesRefresh
	s.handlers["prices_stats"] = s.pricesStats

	// Admin and chain methods
	s.handlers["admin_clearCaches"] = s.adminClearCaches
	s.handlers["admin_resetProviders"] = s.adminResetProviders
	s.handlers["admin_clearDatabase"] = s.adminClearDatabase
	s.handlers["admin_reinitSchema"] = s.adminReinitSchema
	s.handlers["admin_reconnectChain"] = s.adminReconnectChain
	s.handlers["chains_status"] = s.chainsStatus
	s.handlers["chains_list"] = s.chainsList
}

// Start starts the RPC server.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	// Initialize WebSocket hub
	s.wsHub = NewWSHub()
	go s.wsHub.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /", s.handleRPC)
	mux.HandleFunc("POST /{$}", s.handleRPC)
	mux.HandleFunc("OPTIONS /", s.handleCORS)
	mux.HandleFunc("OPTIONS /{$}", s.handleCORS)
	if s.cfg.RPC.EnableWS {
		mux.HandleFunc("GET /ws", s.handleWS)
		mux.HandleFunc("GET /ws/", s.handleWS)
	}

	s.server = &http.Server{
		Handler:      corsMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("RPC server error", "error", err)
		}
	}()

	s.log.Info("RPC server started", "addr", addr, "ws", "ws://"+addr+"/ws")
	return nil
}

// Stop stops the RPC server.
func (s *Server) Stop() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleRPC handles incoming JSON-RPC requests.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, nil, ParseError, "Parse error", nil)
		return
	}

	if req.JSONRPC != "2.0" {
		s.writeError(w, req.ID, InvalidRequest, "Invalid Request", nil)
		return
	}

	s.mu.RLock()
	handler, ok := s.handlers[req.Method]
	s.mu.RUnlock()

	if !ok {
		s.writeError(w, req.ID, MethodNotFound, "Method not found", req.Method)
		return
	}

	result, err := handler(r.Context(), req.Params)
	if err != nil {
		s.writeError(w, req.ID, InternalError, err.Error(), nil)
		return
	}

	s.writeResult(w, req.ID, result)
}

// writeResult writes a successful response.
func (s *Server) writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, id interface{}, code int, message string, data interface{}) {
	resp := Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID: id,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// WSHub returns the WebSocket hub.
func (s *Server) WSHub() *WSHub {
	return s.wsHub
}

// broadcast emits a WebSocket event when the hub is running.
func (s *Server) broadcast(eventType EventType, data interface{}) {
	if s.wsHub != nil {
		s.wsHub.Broadcast(eventType, data)
	}
}

// handleCORS handles CORS preflight requests.
func (s *Server) handleCORS(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// corsMiddleware adds CORS headers to all responses.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Allow requests from any origin (for Electron apps and web clients)
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "86400") // Cache preflight for 24 hours

		// Handle preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
