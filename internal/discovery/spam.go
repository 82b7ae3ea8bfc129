package discovery

import (
	"strings"

	"github.com/foliolabs/folio/internal/driver"
)

// spamSymbols lists known airdrop-spam symbols per chain, uppercased.
var spamSymbols = map[string]map[string]bool{
	"ethereum": {
		"ZEPE":     true,
		"BEZOGE":   true,
		"MINEREUM": true,
	},
	"bsc": {
		"BSCTOKEN": true,
		"AIRDROPX": true,
		"SAFEMARS": true,
	},
	"solana": {
		"SOLAREUM": true,
		"FLUXB":    true,
	},
	"polygon": {
		"PLQ":   true,
		"GPOOL": true,
	},
}

// suspiciousSubstrings flag scam names that lure holders to a website.
var suspiciousSubstrings = []string{
	"visit", "claim", "airdrop", "free", "gift", "scam",
	"reward", ".com", ".io", ".net",
}

const maxSymbolLen = 20

// isSpam applies the symbol and name heuristics for one token.
func isSpam(chainName string, t *driver.DiscoveredToken) bool {
	symbol := strings.ToUpper(strings.TrimSpace(t.Symbol))
	if symbol == "" || symbol == "UNKNOWN" {
		return true
	}
	if len(symbol) > maxSymbolLen {
		return true
	}
	if strings.HasPrefix(symbol, "TEST") || strings.HasSuffix(symbol, "TEST") {
		return true
	}
	if spamSymbols[chainName][symbol] {
		return true
	}

	name := strings.ToLower(t.Name)
	for _, marker := range suspiciousSubstrings {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

// filterSpam drops spam tokens. Idempotent.
func filterSpam(tokens []*driver.DiscoveredToken, chainName string) []*driver.DiscoveredToken {
	out := tokens[:0]
	for _, t := range tokens {
		if isSpam(chainName, t) {
			continue
		}
		out = append(out, t)
	}
	return out
}
