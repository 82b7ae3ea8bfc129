package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/foliolabs/folio/internal/storage"
)

// ========================================
// Token library handlers
// ========================================

// TokenAddParams is the parameters for tokens_add.
type TokenAddParams struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name,omitempty"`
	Chain    string `json:"chain"`
	Contract string `json:"contract"`
	Decimals uint8  `json:"decimals,omitempty"`
	PriceID  string `json:"price_id,omitempty"`
}

func (s *Server) tokensAdd(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p TokenAddParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.Symbol == "" || p.Chain == "" {
		return nil, fmt.Errorf("symbol and chain are required")
	}
	if p.Name == "" {
		p.Name = p.Symbol
	}

	token, err := s.lib.AddCustomToken(p.Symbol, p.Name, p.Chain, p.Contract, p.Decimals, p.PriceID)
	if err != nil {
		return nil, err
	}
	return token, nil
}

// TokenListParams is the parameters for tokens_list.
type TokenListParams struct {
	Chain      string `json:"chain,omitempty"`
	ActiveOnly bool   `json:"active_only,omitempty"`
}

// TokenListResult is the response for tokens_list and tokens_search.
type TokenListResult struct {
	Tokens []*storage.Token `json:"tokens"`
	Count  int              `json:"count"`
}

func (s *Server) tokensList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p TokenListParams
	if params != nil {
		json.Unmarshal(params, &p)
	}

	tokens, err := s.lib.List(p.Chain, p.ActiveOnly)
	if err != nil {
		return nil, err
	}
	return &TokenListResult{Tokens: tokens, Count: len(tokens)}, nil
}

// TokenUpdateParams is the parameters for tokens_update.
type TokenUpdateParams struct {
	ID       int64  `json:"id"`
	Name     string `json:"name,omitempty"`
	Decimals uint8  `json:"decimals,omitempty"`
	PriceID  string `json:"price_id,omitempty"`
}

func (s *Server) tokensUpdate(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p TokenUpdateParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.ID == 0 {
		return nil, fmt.Errorf("id is required")
	}

	token, err := s.lib.Update(p.ID, p.Name, p.Decimals, p.PriceID)
	if err != nil {
		return nil, err
	}
	return token, nil
}

// TokenDeleteParams is the parameters for tokens_delete.
type TokenDeleteParams struct {
	ID int64 `json:"id"`
}

func (s *Server) tokensDelete(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p TokenDeleteParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.ID == 0 {
		return nil, fmt.Errorf("id is required")
	}

	if err := s.lib.Delete(p.ID); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success": true,
		"id":      p.ID,
	}, nil
}

// TokenSearchParams is the parameters for tokens_search.
type TokenSearchParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

func (s *Server) tokensSearch(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p TokenSearchParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if p.Limit <= 0 {
		p.Limit = 50
	}

	tokens, err := s.lib.Search(p.Query, p.Limit)
	if err != nil {
		return nil, err
	}
	return &TokenListResult{Tokens: tokens, Count: len(tokens)}, nil
}

func (s *Server) tokensStats(ctx context.Context, params json.RawMessage) (interface{}, error) {
	stats, err := s.lib.Stats()
	if err != nil {
		return nil, err
	}
	return stats, nil
}
