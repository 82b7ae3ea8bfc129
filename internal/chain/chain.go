// Package chain defines the supported blockchains, their RPC endpoint
// lists, back-off tuning, address rules, and the predefined token
// catalog. All chain-specific values are hardcoded here - no external
// configuration needed.
package chain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/mr-tron/base58"
)

// Family represents the blockchain family. It governs address format,
// balance semantics, and the enumeration strategy.
type Family string

const (
	FamilyEVM     Family = "evm"     // Ethereum and EVM chains
	FamilySolana  Family = "solana"  // Solana
	FamilySui     Family = "sui"     // Sui
	FamilyBitcoin Family = "bitcoin" // Bitcoin
)

// Params contains all parameters for a blockchain.
type Params struct {
	// Identity
	Name        string // registry key: ethereum, bsc, solana, ...
	DisplayName string
	Family      Family
	ChainID     uint64 // EVM chain id; 0 for non-EVM chains

	// Native token
	NativeToken    string // ETH, BNB, SOL, ...
	NativeDecimals uint8

	// RPCURLs are tried strictly in order for every logical call.
	// The first entry is the primary endpoint; the rest are backups.
	RPCURLs []string

	// ExplorerURL is the public explorer front end.
	ExplorerURL string

	// ExplorerAPI is the etherscan-family account API base; empty
	// when the chain has no such API.
	ExplorerAPI string

	// Per-endpoint retry tuning.
	MaxRetries    int
	BaseDelay     time.Duration
	RateLimitWait time.Duration // extra wait added on a rate-limit response
}

// IsEVM reports whether the chain belongs to the EVM family.
func (p *Params) IsEVM() bool {
	return p.Family == FamilyEVM
}

// Endpoints returns a copy of the ordered endpoint list.
func (p *Params) Endpoints() []string {
	out := make([]string, len(p.RPCURLs))
	copy(out, p.RPCURLs)
	return out
}

// Registry holds all chain parameters indexed by name, with a stable
// registration order for deterministic listings.
var (
	registry = make(map[string]*Params)
	names    []string
)

// Register adds chain params to the registry, applying retry defaults.
func Register(params *Params) {
	if params.MaxRetries == 0 {
		params.MaxRetries = 3
	}
	if params.BaseDelay == 0 {
		params.BaseDelay = time.Second
	}
	if params.RateLimitWait == 0 {
		params.RateLimitWait = 30 * time.Second
	}
	if _, exists := registry[params.Name]; !exists {
		names = append(names, params.Name)
	}
	registry[params.Name] = params
}

// Get returns chain params by name.
func Get(name string) (*Params, bool) {
	params, ok := registry[strings.ToLower(name)]
	return params, ok
}

// List returns all registered chain names in registration order.
func List() []string {
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// ListByFamily returns all chains of a specific family.
func ListByFamily(family Family) []string {
	var out []string
	for _, name := range names {
		if registry[name].Family == family {
			out = append(out, name)
		}
	}
	return out
}

// IsSupported returns true if the chain is registered.
func IsSupported(name string) bool {
	_, ok := registry[strings.ToLower(name)]
	return ok
}

// GetByChainID returns chain params for an EVM chain ID.
func GetByChainID(chainID uint64) (*Params, bool) {
	for _, name := range names {
		p := registry[name]
		if p.Family == FamilyEVM && p.ChainID == chainID {
			return p, true
		}
	}
	return nil, false
}

// ErrInvalidAddress is returned when an address fails the family's
// format rules. Validation never performs network I/O.
type ErrInvalidAddress struct {
	Family  Family
	Address string
	Reason  string
}

func (e *ErrInvalidAddress) Error() string {
	return fmt.Sprintf("invalid %s address %q: %s", e.Family, e.Address, e.Reason)
}

var evmAddressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
var suiAddressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// ValidateAddress checks an address against its family's format rules.
func ValidateAddress(family Family, addr string) error {
	switch family {
	case FamilyEVM:
		if !evmAddressRe.MatchString(addr) {
			return &ErrInvalidAddress{family, addr, "want 0x followed by 40 hex chars"}
		}
	case FamilySolana:
		if len(addr) < 32 || len(addr) > 44 {
			return &ErrInvalidAddress{family, addr, "length outside 32-44"}
		}
		if _, err := base58.Decode(addr); err != nil {
			return &ErrInvalidAddress{family, addr, "not base58"}
		}
	case FamilySui:
		if !suiAddressRe.MatchString(addr) {
			return &ErrInvalidAddress{family, addr, "want 0x followed by 64 hex chars"}
		}
	case FamilyBitcoin:
		if err := validateBitcoinShape(addr); err != nil {
			return err
		}
		if _, err := btcutil.DecodeAddress(addr, &chaincfg.MainNetParams); err != nil {
			return &ErrInvalidAddress{family, addr, "checksum or encoding invalid"}
		}
	default:
		return &ErrInvalidAddress{family, addr, "unknown chain family"}
	}
	return nil
}

func validateBitcoinShape(addr string) error {
	switch {
	case strings.HasPrefix(addr, "bc1"):
		if len(addr) < 39 {
			return &ErrInvalidAddress{FamilyBitcoin, addr, "bech32 address too short"}
		}
	case strings.HasPrefix(addr, "1"), strings.HasPrefix(addr, "3"):
		if len(addr) < 25 || len(addr) > 34 {
			return &ErrInvalidAddress{FamilyBitcoin, addr, "length outside 25-34"}
		}
	default:
		return &ErrInvalidAddress{FamilyBitcoin, addr, "unknown prefix"}
	}
	return nil
}

// NormalizeAddress returns the canonical form used as a storage and
// cache key: lowercased for EVM, unchanged otherwise (base58 and
// bech32 are case-sensitive or already canonical).
func NormalizeAddress(family Family, addr string) string {
	if family == FamilyEVM {
		return strings.ToLower(addr)
	}
	return addr
}
