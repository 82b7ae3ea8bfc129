// Package driver - Manager owns one lazily initialized driver per
// chain.
package driver

import (
	"context"
	"fmt"
	"sync"

	"github.com/foliolabs/folio/internal/chain"
	"github.com/foliolabs/folio/internal/config"
	"github.com/foliolabs/folio/pkg/logging"
)

// ChainStatus reports one chain's connection state.
type ChainStatus struct {
	Chain     string `json:"chain"`
	Family    string `json:"family"`
	Connected bool   `json:"connected"`
	RPCURL    string `json:"rpc_url,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// slot holds one chain's driver and its last connection outcome.
// initMu serializes build+Connect for the chain, so concurrent first
// uses dial exactly once; the field reads and writes themselves stay
// under the manager mutex.
type slot struct {
	initMu  sync.Mutex
	driver  Driver
	lastErr error
}

// Manager creates drivers on first use and caches them per chain.
// Initialization includes a connectivity probe, so a cached driver has
// answered at least once.
type Manager struct {
	cfg   *config.Config
	sleep sleepFunc
	log   *logging.Logger

	// build is replaceable in tests.
	build func(params *chain.Params) (Driver, error)

	mu    sync.Mutex
	slots map[string]*slot
}

// NewManager creates a driver manager.
func NewManager(cfg *config.Config, log *logging.Logger) *Manager {
	m := &Manager{
		cfg:   cfg,
		log:   log.Component("driver"),
		slots: make(map[string]*slot),
	}
	m.build = m.buildDriver
	return m
}

// Driver returns the connected driver for a chain, initializing it on
// first use. Failed initializations are remembered and retried on the
// next call.
func (m *Manager) Driver(ctx context.Context, chainName string) (Driver, error) {
	params, ok := chain.Get(chainName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChain, chainName)
	}

	m.mu.Lock()
	s, ok := m.slots[params.Name]
	if !ok {
		s = &slot{}
		m.slots[params.Name] = s
	}
	if s.driver != nil {
		d := s.driver
		m.mu.Unlock()
		return d, nil
	}
	m.mu.Unlock()

	// The per-chain init lock keeps a slow connection probe from
	// serializing other chains while still dialing each chain once.
	s.initMu.Lock()
	defer s.initMu.Unlock()

	m.mu.Lock()
	if d := s.driver; d != nil {
		m.mu.Unlock()
		return d, nil
	}
	m.mu.Unlock()

	d, err := m.build(params)
	if err == nil {
		err = d.Connect(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		s.lastErr = err
		m.log.Warn("chain connection failed", "chain", params.Name, "error", err)
		return nil, fmt.Errorf("failed to connect %s: %w", params.Name, err)
	}
	s.driver = d
	s.lastErr = nil
	m.log.Info("chain connected", "chain", params.Name, "endpoint", d.ActiveEndpoint())
	return d, nil
}

// Reconnect drops a chain's cached driver; the next call dials fresh.
func (m *Manager) Reconnect(chainName string) error {
	params, ok := chain.Get(chainName)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedChain, chainName)
	}
	m.mu.Lock()
	if s, ok := m.slots[params.Name]; ok {
		s.driver = nil
		s.lastErr = nil
	}
	m.mu.Unlock()
	m.log.Info("chain reset", "chain", params.Name)
	return nil
}

// Status reports every registered chain: connected chains with their
// active endpoint, failed ones with the last error, untouched ones as
// simply not connected.
func (m *Manager) Status() []*ChainStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*ChainStatus
	for _, name := range chain.List() {
		params, _ := chain.Get(name)
		status := &ChainStatus{Chain: name, Family: string(params.Family)}
		if s, ok := m.slots[name]; ok {
			if s.driver != nil {
				status.Connected = true
				status.RPCURL = s.driver.ActiveEndpoint()
			} else if s.lastErr != nil {
				status.LastError = s.lastErr.Error()
			}
		}
		out = append(out, status)
	}
	return out
}

// buildDriver constructs the family-appropriate driver with any
// configured endpoint overrides applied.
func (m *Manager) buildDriver(params *chain.Params) (Driver, error) {
	urls := m.endpointsFor(params)
	log := m.log.Component(params.Name)

	switch params.Family {
	case chain.FamilyEVM:
		return NewEVMDriver(params, urls, m.sleep, log), nil
	case chain.FamilySolana:
		return NewSolanaDriver(params, urls, m.sleep, log), nil
	case chain.FamilySui:
		return NewSuiDriver(params, urls, m.sleep, log), nil
	case chain.FamilyBitcoin:
		return NewBitcoinDriver(params, urls, m.sleep, log), nil
	default:
		return nil, fmt.Errorf("%w: family %s", ErrUnsupportedChain, params.Family)
	}
}

// endpointsFor merges config overrides into the built-in endpoint
// list: a configured primary replaces the first entry, configured
// backups go after the built-in ones.
func (m *Manager) endpointsFor(params *chain.Params) []string {
	urls := params.Endpoints()
	override := m.cfg.ChainOverride(params.Name)
	if override == nil {
		return urls
	}
	if override.RPCURL != "" {
		if len(urls) == 0 {
			urls = []string{override.RPCURL}
		} else {
			urls[0] = override.RPCURL
		}
	}
	return append(urls, override.BackupRPCURLs...)
}
