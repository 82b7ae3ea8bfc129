package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/foliolabs/folio/internal/chain"
	"github.com/foliolabs/folio/internal/driver"
	"github.com/foliolabs/folio/internal/history"
	"github.com/foliolabs/folio/internal/price"
	"github.com/foliolabs/folio/internal/provider"
)

// Version of the daemon
const Version = "0.1.0-dev"

// ========================================
// Node handlers
// ========================================

// NodeInfoResult is the response for node_info.
type NodeInfoResult struct {
	Version    string   `json:"version"`
	DataDir    string   `json:"data_dir"`
	ListenAddr string   `json:"listen_addr"`
	Uptime     string   `json:"uptime"`
	Chains     []string `json:"chains"`
	WSEnabled  bool     `json:"ws_enabled"`
}

func (s *Server) nodeInfo(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return &NodeInfoResult{
		Version:    Version,
		DataDir:    s.cfg.Storage.DataDir,
		ListenAddr: s.cfg.RPC.Listen,
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Chains:     chain.List(),
		WSEnabled:  s.cfg.RPC.EnableWS,
	}, nil
}

// NodeStatusResult is the response for node_status.
type NodeStatusResult struct {
	Running         bool                  `json:"running"`
	Uptime          string                `json:"uptime"`
	ChainsConnected int                   `json:"chains_connected"`
	ChainsTotal     int                   `json:"chains_total"`
	Providers       []*provider.Health    `json:"providers"`
	Scheduler       history.Stats         `json:"scheduler"`
	PricesDegraded  bool                  `json:"prices_degraded"`
	WSClients       int                   `json:"ws_clients"`
	Chains          []*driver.ChainStatus `json:"chains"`
}

func (s *Server) nodeStatus(ctx context.Context, params json.RawMessage) (interface{}, error) {
	statuses := s.drivers.Status()
	connected := 0
	for _, st := range statuses {
		if st.Connected {
			connected++
		}
	}

	wsClients := 0
	if s.wsHub != nil {
		wsClients = s.wsHub.ClientCount()
	}

	return &NodeStatusResult{
		Running:         true,
		Uptime:          time.Since(s.started).Round(time.Second).String(),
		ChainsConnected: connected,
		ChainsTotal:     len(statuses),
		Providers:       s.agg.ProviderHealth(),
		Scheduler:       s.scheduler.Stats(),
		PricesDegraded:  s.prices.Degraded(),
		WSClients:       wsClients,
		Chains:          statuses,
	}, nil
}

// ========================================
// Chain handlers
// ========================================

func (s *Server) chainsStatus(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return s.drivers.Status(), nil
}

// ChainInfo describes one supported blockchain.
type ChainInfo struct {
	Name           string `json:"name"`
	DisplayName    string `json:"display_name"`
	Family         string `json:"family"`
	ChainID        uint64 `json:"chain_id,omitempty"`
	NativeToken    string `json:"native_token"`
	NativeDecimals uint8  `json:"native_decimals"`
	ExplorerURL    string `json:"explorer_url,omitempty"`
}

// ChainsListResult is the response for chains_list.
type ChainsListResult struct {
	Chains []ChainInfo `json:"chains"`
	Count  int         `json:"count"`
}

func (s *Server) chainsList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	names := chain.List()
	chains := make([]ChainInfo, 0, len(names))
	for _, name := range names {
		p, ok := chain.Get(name)
		if !ok {
			continue
		}
		chains = append(chains, ChainInfo{
			Name:           p.Name,
			DisplayName:    p.DisplayName,
			Family:         string(p.Family),
			ChainID:        p.ChainID,
			NativeToken:    p.NativeToken,
			NativeDecimals: p.NativeDecimals,
			ExplorerURL:    p.ExplorerURL,
		})
	}

	return &ChainsListResult{Chains: chains, Count: len(chains)}, nil
}

// ========================================
// Admin handlers
// ========================================

func (s *Server) adminClearCaches(ctx context.Context, params json.RawMessage) (interface{}, error) {
	s.prices.Refresh()
	s.agg.ClearCache()
	s.discovery.ClearCache()
	s.log.Info("all caches cleared")

	return map[string]interface{}{
		"success": true,
		"cleared": []string{"prices", "aggregator", "discovery"},
	}, nil
}

func (s *Server) adminResetProviders(ctx context.Context, params json.RawMessage) (interface{}, error) {
	s.agg.ResetProviders()
	s.log.Info("provider health reset")

	return map[string]interface{}{
		"success":   true,
		"providers": s.agg.ProviderHealth(),
	}, nil
}

func (s *Server) adminClearDatabase(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if err := s.store.ClearAll(); err != nil {
		return nil, fmt.Errorf("failed to clear database: %w", err)
	}
	if err := s.lib.Seed(); err != nil {
		return nil, fmt.Errorf("failed to reseed library: %w", err)
	}
	s.log.Warn("database cleared")

	return map[string]interface{}{"success": true}, nil
}

func (s *Server) adminReinitSchema(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if err := s.store.ReinitSchema(); err != nil {
		return nil, fmt.Errorf("failed to reinit schema: %w", err)
	}
	if err := s.lib.Seed(); err != nil {
		return nil, fmt.Errorf("failed to reseed library: %w", err)
	}
	s.log.Warn("database schema reinitialized")

	return map[string]interface{}{"success": true}, nil
}

// ReconnectChainParams is the parameters for admin_reconnectChain.
type ReconnectChainParams struct {
	Chain string `json:"chain"`
}

func (s *Server) adminReconnectChain(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p ReconnectChainParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.Chain == "" {
		return nil, fmt.Errorf("chain is required")
	}

	if err := s.drivers.Reconnect(p.Chain); err != nil {
		return nil, fmt.Errorf("failed to reconnect %s: %w", p.Chain, err)
	}

	return map[string]interface{}{
		"success": true,
		"chain":   p.Chain,
	}, nil
}

// ========================================
// Price handlers
// ========================================

// PriceGetParams is the parameters for prices_get.
type PriceGetParams struct {
	Symbol string `json:"symbol"`
	Chain  string `json:"chain,omitempty"`
}

// PriceGetResult is the response for prices_get.
type PriceGetResult struct {
	Symbol   string  `json:"symbol"`
	Chain    string  `json:"chain,omitempty"`
	PriceUSD float64 `json:"price_usd"`
}

func (s *Server) pricesGet(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p PriceGetParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	priceUSD, err := s.prices.GetPrice(ctx, p.Symbol, p.Chain)
	if err != nil {
		return nil, err
	}

	return &PriceGetResult{
		Symbol:   p.Symbol,
		Chain:    p.Chain,
		PriceUSD: priceUSD,
	}, nil
}

func (s *Server) pricesRefresh(ctx context.Context, params json.RawMessage) (interface{}, error) {
	s.prices.Refresh()

	// Re-value tracked assets against fresh prices in the background;
	// the scheduler pass also rewrites this hour's snapshot rows.
	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if err := s.scheduler.RunOnce(runCtx, false); err != nil {
			s.log.Warn("revaluation after price refresh failed", "error", err)
		}
	}()

	s.broadcast(EventPricesRefreshed, map[string]interface{}{
		"refreshed_at": time.Now().Unix(),
	})

	return map[string]interface{}{"success": true, "revaluing": true}, nil
}

// PriceStatsResult is the response for prices_stats.
type PriceStatsResult struct {
	Stats    price.Stats `json:"stats"`
	Degraded bool        `json:"degraded"`
}

func (s *Server) pricesStats(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return &PriceStatsResult{
		Stats:    s.prices.Stats(),
		Degraded: s.prices.Degraded(),
	}, nil
}
