package reserves

import "github.com/gagliardetto/solana-go"

// Reserves of the Solend main market.
var defaultAssets = []Asset{
	{Reserve: solana.MustPublicKeyFromBase58("8PbodeaosQP19SjYFx855UMqWxH2HynZLdBXmsrbac36"), Symbol: "SOL", Decimals: 9},
	{Reserve: solana.MustPublicKeyFromBase58("BgxfHJDzm44T7XG68MYKx7YisTjZu73tVovyZSjJMpmw"), Symbol: "USDC", Decimals: 6},
	{Reserve: solana.MustPublicKeyFromBase58("3PArRsZQ6SLkr1WERZWyC6AqsajtALMq4C66ZMYz4dKQ"), Symbol: "ETH", Decimals: 6},
	{Reserve: solana.MustPublicKeyFromBase58("GYzjMCXTDue12eUGKKWAqtF5jcBYNmewr6Db6LaguEaX"), Symbol: "BTC", Decimals: 6},
	{Reserve: solana.MustPublicKeyFromBase58("5suXmvdbKQ98VonxGCXqViuWRu8k4zgZRxndYKsH2fJg"), Symbol: "SRM", Decimals: 6},
	{Reserve: solana.MustPublicKeyFromBase58("8K9WC8xoh2rtQNY7iEGXtPvfbDCi563SdWhCAhuMP2xE"), Symbol: "USDT", Decimals: 6},
	{Reserve: solana.MustPublicKeyFromBase58("2dC4V23zJxuv521iYQj8c471jrxYLNQFaGS6YPwtTHMd"), Symbol: "FTT", Decimals: 6},
	{Reserve: solana.MustPublicKeyFromBase58("9n2exoMQwMTzfw6NFoFFujxYPndWVLtKREJePssrKb36"), Symbol: "RAY", Decimals: 6},
}

// DefaultTable returns a fresh table of the Solend main market reserves.
func DefaultTable() *Table {
	return MustNewTable(defaultAssets)
}
