package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/foliolabs/folio/internal/asset"
	"github.com/foliolabs/folio/internal/storage"
)

// ========================================
// Asset handlers
// ========================================

func (s *Server) assetsAdd(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p asset.AddRequest
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.Address == "" || p.Chain == "" || p.Symbol == "" {
		return nil, fmt.Errorf("address, chain and symbol are required")
	}

	result, err := s.assets.Add(ctx, &p)
	if err != nil {
		return nil, err
	}

	s.broadcast(EventAssetAdded, result)
	return result, nil
}

// QuickAddParams is the parameters for assets_quickAdd.
type QuickAddParams struct {
	Address string `json:"address"`
	Chain   string `json:"chain"`
	Symbol  string `json:"symbol"`
	Tag     string `json:"tag,omitempty"`
}

func (s *Server) assetsQuickAdd(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p QuickAddParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.Address == "" || p.Chain == "" || p.Symbol == "" {
		return nil, fmt.Errorf("address, chain and symbol are required")
	}

	result, err := s.assets.QuickAdd(ctx, p.Address, p.Chain, p.Symbol, p.Tag)
	if err != nil {
		return nil, err
	}

	s.broadcast(EventAssetAdded, result)
	return result, nil
}

// BatchAddParams is the parameters for assets_batchAdd.
type BatchAddParams struct {
	Assets []*asset.AddRequest `json:"assets"`
}

func (s *Server) assetsBatchAdd(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p BatchAddParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if len(p.Assets) == 0 {
		return nil, fmt.Errorf("assets is required")
	}

	result := s.assets.BatchAdd(ctx, p.Assets)
	for _, added := range result.Added {
		s.broadcast(EventAssetAdded, added)
	}
	return result, nil
}

// AssetUpdateParams is the parameters for assets_update.
type AssetUpdateParams struct {
	ID  string `json:"id"`
	Tag string `json:"tag"`
}

func (s *Server) assetsUpdate(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p AssetUpdateParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("id is required")
	}

	row, err := s.assets.UpdateTag(p.ID, p.Tag)
	if err != nil {
		return nil, err
	}
	return row, nil
}

// AssetDeleteParams is the parameters for assets_delete.
type AssetDeleteParams struct {
	ID string `json:"id"`
}

func (s *Server) assetsDelete(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p AssetDeleteParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("id is required")
	}

	if err := s.assets.Delete(p.ID); err != nil {
		return nil, err
	}

	s.broadcast(EventAssetDeleted, map[string]string{"id": p.ID})
	return map[string]interface{}{
		"success": true,
		"id":      p.ID,
	}, nil
}

// AssetListParams is the parameters for assets_list.
type AssetListParams struct {
	Chain   string `json:"chain,omitempty"`
	Address string `json:"address,omitempty"`
	Tag     string `json:"tag,omitempty"`
}

// AssetListResult is the response for assets_list.
type AssetListResult struct {
	Assets []*asset.Valuation `json:"assets"`
	Count  int                `json:"count"`
}

func (s *Server) assetsList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p AssetListParams
	if params != nil {
		json.Unmarshal(params, &p)
	}

	filter := &storage.AssetFilter{
		Blockchain: p.Chain,
		Address:    p.Address,
		Tag:        p.Tag,
	}
	valuations, err := s.assets.Portfolio(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &AssetListResult{Assets: valuations, Count: len(valuations)}, nil
}

func (s *Server) assetsSummary(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p AssetListParams
	if params != nil {
		json.Unmarshal(params, &p)
	}

	filter := &storage.AssetFilter{
		Blockchain: p.Chain,
		Address:    p.Address,
		Tag:        p.Tag,
	}
	summary, err := s.assets.Summarize(ctx, filter)
	if err != nil {
		return nil, err
	}
	return summary, nil
}
