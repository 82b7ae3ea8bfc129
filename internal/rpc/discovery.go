package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/foliolabs/folio/internal/discovery"
	"github.com/foliolabs/folio/internal/driver"
)

// ========================================
// Discovery handlers
// ========================================

// DiscoveryWalletParams is the parameters for discovery_wallet.
type DiscoveryWalletParams struct {
	Address     string  `json:"address"`
	Chain       string  `json:"chain"`
	IncludeZero bool    `json:"include_zero,omitempty"`
	MinValueUSD float64 `json:"min_value_usd,omitempty"`
}

// DiscoveryWalletResult is the response for discovery_wallet.
type DiscoveryWalletResult struct {
	Address string                    `json:"address"`
	Chain   string                    `json:"chain"`
	Tokens  []*driver.DiscoveredToken `json:"tokens"`
	Count   int                       `json:"count"`
}

func (s *Server) discoveryWallet(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p DiscoveryWalletParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.Address == "" || p.Chain == "" {
		return nil, fmt.Errorf("address and chain are required")
	}

	tokens, err := s.discovery.Discover(ctx, p.Address, p.Chain, p.IncludeZero, p.MinValueUSD)
	if err != nil {
		return nil, err
	}

	result := &DiscoveryWalletResult{
		Address: p.Address,
		Chain:   p.Chain,
		Tokens:  tokens,
		Count:   len(tokens),
	}
	s.broadcast(EventDiscoveryCompleted, map[string]interface{}{
		"address": p.Address,
		"chain":   p.Chain,
		"tokens":  len(tokens),
	})
	return result, nil
}

// DiscoveryBatchParams is the parameters for discovery_batch.
type DiscoveryBatchParams struct {
	Addresses   []string `json:"addresses"`
	Chain       string   `json:"chain"`
	IncludeZero bool     `json:"include_zero,omitempty"`
	MinValueUSD float64  `json:"min_value_usd,omitempty"`
}

// DiscoveryBatchResult is the response for discovery_batch.
type DiscoveryBatchResult struct {
	Chain   string                  `json:"chain"`
	Wallets []*discovery.BatchResult `json:"wallets"`
	Count   int                     `json:"count"`
}

func (s *Server) discoveryBatch(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p DiscoveryBatchParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if len(p.Addresses) == 0 || p.Chain == "" {
		return nil, fmt.Errorf("addresses and chain are required")
	}

	wallets := s.discovery.BatchDiscover(ctx, p.Addresses, p.Chain, p.IncludeZero, p.MinValueUSD)

	s.broadcast(EventDiscoveryCompleted, map[string]interface{}{
		"chain":   p.Chain,
		"wallets": len(wallets),
	})
	return &DiscoveryBatchResult{
		Chain:   p.Chain,
		Wallets: wallets,
		Count:   len(wallets),
	}, nil
}

// DiscoveryAddTokenParams is the parameters for discovery_addToken.
type DiscoveryAddTokenParams struct {
	Address  string `json:"address"`
	Chain    string `json:"chain"`
	Contract string `json:"contract"`
	Symbol   string `json:"symbol,omitempty"`
}

func (s *Server) discoveryAddToken(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p DiscoveryAddTokenParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.Address == "" || p.Chain == "" || p.Contract == "" {
		return nil, fmt.Errorf("address, chain and contract are required")
	}

	token, err := s.discovery.AddManualToken(ctx, p.Address, p.Chain, p.Contract, p.Symbol)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"found": token != nil,
		"token": token,
	}, nil
}
