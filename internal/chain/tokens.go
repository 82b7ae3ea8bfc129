package chain

import (
	"sort"
	"strings"
)

// TokenInfo describes a predefined token on a chain.
type TokenInfo struct {
	Symbol   string
	Name     string
	Contract string // empty means native token
	Decimals uint8
	PriceID  string // external price API id
	Native   bool
}

// tokenRegistry maps chain name -> symbol -> token info.
var tokenRegistry = make(map[string]map[string]*TokenInfo)

// registerToken adds a token to the registry.
func registerToken(chainName string, token *TokenInfo) {
	if tokenRegistry[chainName] == nil {
		tokenRegistry[chainName] = make(map[string]*TokenInfo)
	}
	tokenRegistry[chainName][token.Symbol] = token
}

func init() {
	// ===== Ethereum =====
	registerToken("ethereum", &TokenInfo{
		Symbol: "ETH", Name: "Ethereum", Decimals: 18,
		PriceID: "ethereum", Native: true,
	})
	registerToken("ethereum", &TokenInfo{
		Symbol: "USDC", Name: "USD Coin",
		Contract: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		Decimals: 6, PriceID: "usd-coin",
	})
	registerToken("ethereum", &TokenInfo{
		Symbol: "USDT", Name: "Tether USD",
		Contract: "0xdAC17F958D2ee523a2206206994597C13D831ec7",
		Decimals: 6, PriceID: "tether",
	})
	registerToken("ethereum", &TokenInfo{
		Symbol: "DAI", Name: "Dai Stablecoin",
		Contract: "0x6B175474E89094C44Da98b954EedeAC495271d0F",
		Decimals: 18, PriceID: "dai",
	})
	registerToken("ethereum", &TokenInfo{
		Symbol: "WBTC", Name: "Wrapped Bitcoin",
		Contract: "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599",
		Decimals: 8, PriceID: "wrapped-bitcoin",
	})
	registerToken("ethereum", &TokenInfo{
		Symbol: "LINK", Name: "Chainlink",
		Contract: "0x514910771AF9Ca656af840dff83E8264EcF986CA",
		Decimals: 18, PriceID: "chainlink",
	})
	registerToken("ethereum", &TokenInfo{
		Symbol: "UNI", Name: "Uniswap",
		Contract: "0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984",
		Decimals: 18, PriceID: "uniswap",
	})
	registerToken("ethereum", &TokenInfo{
		Symbol: "AAVE", Name: "Aave",
		Contract: "0x7Fc66500c84A76Ad7e9c93437bFc5Ac33E2DDaE9",
		Decimals: 18, PriceID: "aave",
	})
	registerToken("ethereum", &TokenInfo{
		Symbol: "SHIB", Name: "Shiba Inu",
		Contract: "0x95aD61b0a150d79219dCF64E1E6Cc01f0B64C4cE",
		Decimals: 18, PriceID: "shiba-inu",
	})

	// ===== Arbitrum One =====
	registerToken("arbitrum", &TokenInfo{
		Symbol: "ETH", Name: "Ethereum", Decimals: 18,
		PriceID: "ethereum", Native: true,
	})
	registerToken("arbitrum", &TokenInfo{
		Symbol: "USDC", Name: "USD Coin",
		Contract: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
		Decimals: 6, PriceID: "usd-coin",
	})
	registerToken("arbitrum", &TokenInfo{
		Symbol: "USDT", Name: "Tether USD",
		Contract: "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9",
		Decimals: 6, PriceID: "tether",
	})

	// ===== Base =====
	registerToken("base", &TokenInfo{
		Symbol: "ETH", Name: "Ethereum", Decimals: 18,
		PriceID: "ethereum", Native: true,
	})
	registerToken("base", &TokenInfo{
		Symbol: "USDC", Name: "USD Coin",
		Contract: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		Decimals: 6, PriceID: "usd-coin",
	})
	registerToken("base", &TokenInfo{
		Symbol: "USDT", Name: "Tether USD",
		Contract: "0xfde4C96c8593536E31F229EA8f37b2ADa2699bb2",
		Decimals: 6, PriceID: "tether",
	})

	// ===== Polygon =====
	registerToken("polygon", &TokenInfo{
		Symbol: "MATIC", Name: "Polygon", Decimals: 18,
		PriceID: "matic-network", Native: true,
	})

	// ===== BNB Smart Chain =====
	registerToken("bsc", &TokenInfo{
		Symbol: "BNB", Name: "BNB", Decimals: 18,
		PriceID: "binancecoin", Native: true,
	})
	// Stablecoins. BSC-pegged USDT/USDC carry 18 decimals, unlike
	// their 6-decimal mainnet counterparts.
	registerToken("bsc", &TokenInfo{
		Symbol: "USDT", Name: "Tether USD",
		Contract: "0x55d398326f99059fF775485246999027B3197955",
		Decimals: 18, PriceID: "tether",
	})
	registerToken("bsc", &TokenInfo{
		Symbol: "USDC", Name: "USD Coin",
		Contract: "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d",
		Decimals: 18, PriceID: "usd-coin",
	})
	registerToken("bsc", &TokenInfo{
		Symbol: "BUSD", Name: "Binance USD",
		Contract: "0xe9e7CEA3DedcA5984780Bafc599bD69ADd087D56",
		Decimals: 18, PriceID: "binance-usd",
	})
	registerToken("bsc", &TokenInfo{
		Symbol: "USDF", Name: "USD Fiat",
		Contract: "0x05faf555522Fa3F93959F86B41A3808666093210",
		Decimals: 18, PriceID: "usd-fiat",
	})
	// Liquid staking
	registerToken("bsc", &TokenInfo{
		Symbol: "ASBNB", Name: "Ankr Staked BNB",
		Contract: "0x52F24a5e03aee338Da5fd9Df68D2b6FAe1178827",
		Decimals: 18, PriceID: "ankr-staked-bnb",
	})
	registerToken("bsc", &TokenInfo{
		Symbol: "STKBNB", Name: "Staked BNB",
		Contract: "0xc2E9d07F66A89c44062459A47a0D2Dc038E4fb16",
		Decimals: 18, PriceID: "staked-bnb",
	})
	// DeFi
	registerToken("bsc", &TokenInfo{
		Symbol: "CAKE", Name: "PancakeSwap Token",
		Contract: "0x0E09FaBB73Bd3Ade0a17ECC321fD13a19e81cE82",
		Decimals: 18, PriceID: "pancakeswap-token",
	})
	registerToken("bsc", &TokenInfo{
		Symbol: "XVS", Name: "Venus",
		Contract: "0xcF6BB5389c92Bdda8a3747Ddb454cB7a64626C63",
		Decimals: 18, PriceID: "venus",
	})
	registerToken("bsc", &TokenInfo{
		Symbol: "ALPACA", Name: "Alpaca Finance",
		Contract: "0x8F0528cE5eF7B51152A59745bEfDD91D97091d2F",
		Decimals: 18, PriceID: "alpaca-finance",
	})
	// Bridged majors
	registerToken("bsc", &TokenInfo{
		Symbol: "ETH", Name: "Ethereum Token",
		Contract: "0x2170Ed0880ac9A755fd29B2688956BD959F933F8",
		Decimals: 18, PriceID: "ethereum",
	})
	registerToken("bsc", &TokenInfo{
		Symbol: "BTCB", Name: "Bitcoin BEP2",
		Contract: "0x7130d2A12B9BCbFAe4f2634d864A1Ee1Ce3Ead9c",
		Decimals: 18, PriceID: "bitcoin",
	})
	registerToken("bsc", &TokenInfo{
		Symbol: "ADA", Name: "Cardano Token",
		Contract: "0x3EE2200Efb3400fAbB9AacF31297cBdD1d435D47",
		Decimals: 18, PriceID: "cardano",
	})
	registerToken("bsc", &TokenInfo{
		Symbol: "DOT", Name: "Polkadot Token",
		Contract: "0x7083609fCE4d1d8Dc0C979AAb8c869Ea2C873402",
		Decimals: 18, PriceID: "polkadot",
	})
	// Meme
	registerToken("bsc", &TokenInfo{
		Symbol: "DOGE", Name: "Dogecoin",
		Contract: "0xbA2aE424d960c26247Dd6c32edC70B295c744C43",
		Decimals: 8, PriceID: "dogecoin",
	})
	registerToken("bsc", &TokenInfo{
		Symbol: "SHIB", Name: "SHIBA INU",
		Contract: "0x2859e4544C4bB03966803b044A93563Bd2D0DD4D",
		Decimals: 18, PriceID: "shiba-inu",
	})
	// Gaming
	registerToken("bsc", &TokenInfo{
		Symbol: "AXS", Name: "Axie Infinity Shard",
		Contract: "0x715D400F88C167884bbCc41C5FeA407ed4D2f8A0",
		Decimals: 18, PriceID: "axie-infinity",
	})
	registerToken("bsc", &TokenInfo{
		Symbol: "SLP", Name: "Smooth Love Potion",
		Contract: "0x070a08BeEF8d36734dD67A491202fF35a6A16d97",
		Decimals: 0, PriceID: "smooth-love-potion",
	})

	// ===== Solana =====
	registerToken("solana", &TokenInfo{
		Symbol: "SOL", Name: "Solana", Decimals: 9,
		PriceID: "solana", Native: true,
	})
	registerToken("solana", &TokenInfo{
		Symbol: "USDC", Name: "USD Coin",
		Contract: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		Decimals: 6, PriceID: "usd-coin",
	})
	registerToken("solana", &TokenInfo{
		Symbol: "USDT", Name: "Tether USD",
		Contract: "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB",
		Decimals: 6, PriceID: "tether",
	})
	registerToken("solana", &TokenInfo{
		Symbol: "JUP", Name: "Jupiter",
		Contract: "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN",
		Decimals: 6, PriceID: "jupiter-exchange-solana",
	})
	registerToken("solana", &TokenInfo{
		Symbol: "RAY", Name: "Raydium",
		Contract: "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R",
		Decimals: 6, PriceID: "raydium",
	})
	registerToken("solana", &TokenInfo{
		Symbol: "BONK", Name: "Bonk",
		Contract: "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263",
		Decimals: 5, PriceID: "bonk",
	})
	registerToken("solana", &TokenInfo{
		Symbol: "WIF", Name: "dogwifhat",
		Contract: "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm",
		Decimals: 6, PriceID: "dogwifhat",
	})
	registerToken("solana", &TokenInfo{
		Symbol: "PYTH", Name: "Pyth Network",
		Contract: "HZ1JovNiVvGrGNiiYvEozEVgZ58xaU3RKwX8eACQBCt3",
		Decimals: 6, PriceID: "pyth-network",
	})
	registerToken("solana", &TokenInfo{
		Symbol: "JTO", Name: "Jito",
		Contract: "jtojtomepa8beP8AuQc6eXt5FriJwfFMwQx2v2f9mCL",
		Decimals: 9, PriceID: "jito-governance-token",
	})
	registerToken("solana", &TokenInfo{
		Symbol: "ORCA", Name: "Orca",
		Contract: "orcaEKTdK7LKz57vaAYr9QeNsVEPfiu6QeMU1kektZE",
		Decimals: 6, PriceID: "orca",
	})
	registerToken("solana", &TokenInfo{
		Symbol: "SLAYER", Name: "Solayer",
		Contract: "LAYER4xPpTCb3QL8S9u41EAhAX7mhBn8Q6xMTwY2Yzc",
		Decimals: 9, PriceID: "solayer",
	})
	registerToken("solana", &TokenInfo{
		Symbol: "POPCAT", Name: "Popcat",
		Contract: "7GCihgDB8fe6KNjn2MYtkzZcRjQy3t9GHdC8uHYmW2hr",
		Decimals: 9, PriceID: "popcat",
	})
	registerToken("solana", &TokenInfo{
		Symbol: "MEW", Name: "cat in a dogs world",
		Contract: "MEW1gQWJ3nEXg2qgERiKu7FAFj79PHvQVREQUzScPP5",
		Decimals: 5, PriceID: "cat-in-a-dogs-world",
	})
	registerToken("solana", &TokenInfo{
		Symbol: "GRASS", Name: "Grass",
		Contract: "Grass7B4RdKfBCjTKgSqnXkqjwiGvQyFbuSCUJr3XXjs",
		Decimals: 9, PriceID: "grass",
	})
	registerToken("solana", &TokenInfo{
		Symbol: "HONEY", Name: "Hivemapper",
		Contract: "4vMsoUT2BWatFweudnQM1xedRLfJgJ7hswhcpz4xgBTy",
		Decimals: 9, PriceID: "hivemapper",
	})
	registerToken("solana", &TokenInfo{
		Symbol: "PENGU", Name: "Pudgy Penguins",
		Contract: "2zMMhcVQEXDtdE6vsFS7S7D5oUodfJHE8vd1gnBouauv",
		Decimals: 6, PriceID: "pudgy-penguins",
	})

	// ===== Sui =====
	registerToken("sui", &TokenInfo{
		Symbol: "SUI", Name: "Sui", Decimals: 9,
		PriceID: "sui", Native: true,
	})
	registerToken("sui", &TokenInfo{
		Symbol: "USDC", Name: "USD Coin",
		Contract: "0xdba34672e30cb065b1f93e3ab55318768fd6fef66c15942c9f7cb846e2f900e7::usdc::USDC",
		Decimals: 6, PriceID: "usd-coin",
	})
	registerToken("sui", &TokenInfo{
		Symbol: "USDT", Name: "Tether USD",
		Contract: "0xc060006111016b8a020ad5b33834984a437aaa7d3c74c18e09a95d48aceab08c::coin::COIN",
		Decimals: 6, PriceID: "tether",
	})

	// ===== Bitcoin =====
	registerToken("bitcoin", &TokenInfo{
		Symbol: "BTC", Name: "Bitcoin", Decimals: 8,
		PriceID: "bitcoin", Native: true,
	})
}

// GetToken returns token info for a chain and symbol.
func GetToken(chainName, symbol string) (*TokenInfo, bool) {
	tokens, ok := tokenRegistry[strings.ToLower(chainName)]
	if !ok {
		return nil, false
	}
	token, ok := tokens[strings.ToUpper(symbol)]
	return token, ok
}

// GetTokenByContract returns token info for a chain and contract
// address. Comparison is case-insensitive for hex contracts.
func GetTokenByContract(chainName, contract string) (*TokenInfo, bool) {
	tokens, ok := tokenRegistry[strings.ToLower(chainName)]
	if !ok {
		return nil, false
	}
	for _, token := range tokens {
		if token.Contract == "" {
			continue
		}
		if strings.EqualFold(token.Contract, contract) {
			return token, true
		}
	}
	return nil, false
}

// NativeToken returns the native token for a chain.
func NativeToken(chainName string) (*TokenInfo, bool) {
	tokens, ok := tokenRegistry[strings.ToLower(chainName)]
	if !ok {
		return nil, false
	}
	for _, token := range tokens {
		if token.Native {
			return token, true
		}
	}
	return nil, false
}

// ListTokens returns all predefined tokens for a chain, native first,
// then by symbol for determinism.
func ListTokens(chainName string) []*TokenInfo {
	tokens, ok := tokenRegistry[strings.ToLower(chainName)]
	if !ok {
		return nil
	}
	out := make([]*TokenInfo, 0, len(tokens))
	for _, token := range tokens {
		out = append(out, token)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Native != out[j].Native {
			return out[i].Native
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// IsTokenSupported returns true when a predefined entry exists.
func IsTokenSupported(chainName, symbol string) bool {
	_, ok := GetToken(chainName, symbol)
	return ok
}

// GetTokenDecimals returns a token's decimals, defaulting to the
// chain's native decimals when unknown.
func GetTokenDecimals(chainName, symbol string) uint8 {
	if token, ok := GetToken(chainName, symbol); ok {
		return token.Decimals
	}
	if params, ok := Get(chainName); ok {
		return params.NativeDecimals
	}
	return 18
}
