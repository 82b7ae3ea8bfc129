// Package library manages the token catalog: the predefined per-chain
// registry seeded into the store at startup, plus user-added custom
// tokens with family-specific contract validation.
package library

import (
	"errors"
	"fmt"
	"strings"

	"github.com/foliolabs/folio/internal/chain"
	"github.com/foliolabs/folio/internal/driver"
	"github.com/foliolabs/folio/internal/storage"
	"github.com/foliolabs/folio/pkg/logging"
)

// ErrTokenInUse is returned when a delete targets a token that active
// assets still reference.
var ErrTokenInUse = errors.New("token has active assets")

// Library is the token catalog service.
type Library struct {
	store *storage.Storage
	log   *logging.Logger
}

// New creates a token library over the store.
func New(store *storage.Storage, log *logging.Logger) *Library {
	return &Library{store: store, log: log.Component("library")}
}

// Seed writes every registered chain and its predefined tokens into the
// store. Idempotent: re-running refreshes metadata but never flips a
// user's active flags.
func (l *Library) Seed() error {
	for _, name := range chain.List() {
		params, _ := chain.Get(name)
		b := &storage.Blockchain{
			Name:        params.Name,
			DisplayName: params.DisplayName,
			RPCURL:      params.RPCURLs[0],
			ExplorerURL: params.ExplorerURL,
			ChainType:   string(params.Family),
			IsActive:    true,
		}
		if err := l.store.UpsertBlockchain(b); err != nil {
			return fmt.Errorf("failed to seed chain %s: %w", name, err)
		}

		for _, info := range chain.ListTokens(name) {
			t := &storage.Token{
				Symbol:     info.Symbol,
				Name:       info.Name,
				Blockchain: name,
				Contract:   info.Contract,
				Decimals:   info.Decimals,
				PriceID:    info.PriceID,
			}
			if err := l.store.UpsertPredefinedToken(t); err != nil {
				return fmt.Errorf("failed to seed token %s on %s: %w", info.Symbol, name, err)
			}
		}
	}
	l.log.Info("token catalog seeded", "chains", len(chain.List()))
	return nil
}

// AddCustomToken validates and registers a user token. Adding a token
// that already exists returns the existing row: an active exact match
// as-is, an inactive exact match reactivated.
func (l *Library) AddCustomToken(symbol, name, chainName, contract string, decimals uint8, priceID string) (*storage.Token, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("token symbol is required")
	}

	params, ok := chain.Get(chainName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", driver.ErrUnsupportedChain, chainName)
	}

	contract = strings.TrimSpace(contract)
	if contract != "" {
		if params.Family == chain.FamilyBitcoin {
			return nil, fmt.Errorf("bitcoin has no token contracts")
		}
		if err := chain.ValidateAddress(params.Family, contract); err != nil {
			return nil, fmt.Errorf("invalid contract: %w", err)
		}
		contract = chain.NormalizeAddress(params.Family, contract)
	}

	existing, err := l.store.GetToken(symbol, chainName, contract)
	switch {
	case err == nil && existing.IsActive:
		return existing, nil
	case err == nil:
		if err := l.store.SetTokenActive(existing.ID, true); err != nil {
			return nil, err
		}
		l.log.Info("reactivated token", "symbol", symbol, "chain", chainName)
		return l.store.GetTokenByID(existing.ID)
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	if name == "" {
		name = symbol
	}
	token, err := l.store.InsertToken(&storage.Token{
		Symbol:     symbol,
		Name:       name,
		Blockchain: chainName,
		Contract:   contract,
		Decimals:   decimals,
		PriceID:    priceID,
	})
	if err != nil {
		return nil, err
	}
	l.log.Info("added custom token", "symbol", symbol, "chain", chainName, "contract", contract)
	return token, nil
}

// Get returns a token row by id.
func (l *Library) Get(id int64) (*storage.Token, error) {
	return l.store.GetTokenByID(id)
}

// Resolve returns the active token for (symbol, chain), preferring
// predefined rows.
func (l *Library) Resolve(symbol, chainName string) (*storage.Token, error) {
	return l.store.FindToken(symbol, chainName)
}

// List returns catalog rows, optionally filtered by chain.
func (l *Library) List(chainName string, activeOnly bool) ([]*storage.Token, error) {
	return l.store.ListTokens(chainName, activeOnly)
}

// Search matches active tokens by symbol prefix, then name substring.
func (l *Library) Search(query string, limit int) ([]*storage.Token, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query is required")
	}
	return l.store.SearchTokens(query, limit)
}

// Update changes a token's mutable attributes and returns the fresh row.
func (l *Library) Update(id int64, name string, decimals uint8, priceID string) (*storage.Token, error) {
	if err := l.store.UpdateToken(id, name, decimals, priceID); err != nil {
		return nil, err
	}
	return l.store.GetTokenByID(id)
}

// Delete removes a custom token, or deactivates a predefined one.
// Tokens that active assets reference are refused either way.
func (l *Library) Delete(id int64) error {
	token, err := l.store.GetTokenByID(id)
	if err != nil {
		return err
	}

	count, err := l.store.CountActiveAssetsForToken(id)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: %d assets reference %s", ErrTokenInUse, count, token.Symbol)
	}

	if token.IsPredefined {
		l.log.Info("deactivating predefined token", "symbol", token.Symbol, "chain", token.Blockchain)
		return l.store.SetTokenActive(id, false)
	}
	l.log.Info("deleting custom token", "symbol", token.Symbol, "chain", token.Blockchain)
	return l.store.DeleteToken(id)
}

// Stats summarizes the catalog.
func (l *Library) Stats() (*storage.TokenStats, error) {
	return l.store.GetTokenStats()
}
