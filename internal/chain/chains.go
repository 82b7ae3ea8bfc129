package chain

import "time"

func init() {
	// Ethereum
	Register(&Params{
		Name:           "ethereum",
		DisplayName:    "Ethereum",
		Family:         FamilyEVM,
		ChainID:        1,
		NativeToken:    "ETH",
		NativeDecimals: 18,
		RPCURLs: []string{
			"https://eth.llamarpc.com",
			"https://ethereum.publicnode.com",
			"https://rpc.ankr.com/eth",
			"https://eth.public-rpc.com",
			"https://ethereum-rpc.publicnode.com",
		},
		ExplorerURL: "https://etherscan.io",
		ExplorerAPI: "https://api.etherscan.io/api",
	})

	// Arbitrum One
	Register(&Params{
		Name:           "arbitrum",
		DisplayName:    "Arbitrum One",
		Family:         FamilyEVM,
		ChainID:        42161,
		NativeToken:    "ETH", // Arbitrum uses ETH as native token
		NativeDecimals: 18,
		RPCURLs: []string{
			"https://arb1.arbitrum.io/rpc",
			"https://arbitrum-one.publicnode.com",
			"https://arbitrum.llamarpc.com",
			"https://rpc.ankr.com/arbitrum",
			"https://arbitrum-one.public.blastapi.io",
		},
		ExplorerURL: "https://arbiscan.io",
		ExplorerAPI: "https://api.arbiscan.io/api",
	})

	// Base
	Register(&Params{
		Name:           "base",
		DisplayName:    "Base",
		Family:         FamilyEVM,
		ChainID:        8453,
		NativeToken:    "ETH",
		NativeDecimals: 18,
		RPCURLs: []string{
			"https://mainnet.base.org",
			"https://base.llamarpc.com",
			"https://base.publicnode.com",
			"https://rpc.ankr.com/base",
		},
		ExplorerURL: "https://basescan.org",
		ExplorerAPI: "https://api.basescan.org/api",
	})

	// Polygon
	Register(&Params{
		Name:           "polygon",
		DisplayName:    "Polygon",
		Family:         FamilyEVM,
		ChainID:        137,
		NativeToken:    "MATIC",
		NativeDecimals: 18,
		RPCURLs: []string{
			"https://polygon-rpc.com",
			"https://polygon.llamarpc.com",
			"https://polygon.publicnode.com",
			"https://rpc.ankr.com/polygon",
		},
		ExplorerURL: "https://polygonscan.com",
		ExplorerAPI: "https://api.polygonscan.com/api",
	})

	// BNB Smart Chain. Public dataseed nodes rate-limit aggressively,
	// hence the deep backup list and the shorter rate-limit wait.
	Register(&Params{
		Name:           "bsc",
		DisplayName:    "BNB Smart Chain",
		Family:         FamilyEVM,
		ChainID:        56,
		NativeToken:    "BNB",
		NativeDecimals: 18,
		RPCURLs: []string{
			"https://bsc-dataseed.binance.org",
			"https://bsc.publicnode.com",
			"https://rpc.ankr.com/bsc",
			"https://bsc-dataseed1.defibit.io",
			"https://bsc-dataseed1.ninicoin.io",
			"https://bsc-dataseed1.binance.org",
			"https://bsc-dataseed2.binance.org",
			"https://bsc-dataseed2.defibit.io",
		},
		ExplorerURL:   "https://bscscan.com",
		ExplorerAPI:   "https://api.bscscan.com/api",
		MaxRetries:    3,
		BaseDelay:     time.Second,
		RateLimitWait: 10 * time.Second,
	})

	// Solana. Public mainnet-beta throttles hard; back-off starts at
	// two seconds and rate-limit responses wait a full 30 seconds.
	Register(&Params{
		Name:           "solana",
		DisplayName:    "Solana",
		Family:         FamilySolana,
		NativeToken:    "SOL",
		NativeDecimals: 9,
		RPCURLs: []string{
			"https://api.mainnet-beta.solana.com",
			"https://solana-api.projectserum.com",
			"https://rpc.ankr.com/solana",
			"https://solana-mainnet.g.alchemy.com/v2/demo",
			"https://mainnet.helius-rpc.com/?api-key=demo",
		},
		ExplorerURL:   "https://solscan.io",
		MaxRetries:    3,
		BaseDelay:     2 * time.Second,
		RateLimitWait: 30 * time.Second,
	})

	// Sui
	Register(&Params{
		Name:           "sui",
		DisplayName:    "Sui",
		Family:         FamilySui,
		NativeToken:    "SUI",
		NativeDecimals: 9,
		RPCURLs: []string{
			"https://fullnode.mainnet.sui.io",
		},
		ExplorerURL: "https://suiscan.xyz",
	})

	// Bitcoin. REST endpoints, not JSON-RPC.
	Register(&Params{
		Name:           "bitcoin",
		DisplayName:    "Bitcoin",
		Family:         FamilyBitcoin,
		NativeToken:    "BTC",
		NativeDecimals: 8,
		RPCURLs: []string{
			"https://blockstream.info/api",
			"https://mempool.space/api",
		},
		ExplorerURL: "https://blockstream.info",
	})
}
