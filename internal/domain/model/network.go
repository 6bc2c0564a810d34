package model

// Network identifies a blockchain network a wallet is tracked on.
type Network string

const (
	NetworkEthereum Network = "ethereum"
	NetworkPolygon  Network = "polygon"
	NetworkArbitrum Network = "arbitrum"
	NetworkBase     Network = "base"
	NetworkBSC      Network = "bsc"
	NetworkSolana   Network = "solana"
)

// UsesBlockTime reports whether raw transactions on this network embed the
// block timestamp directly instead of requiring block-number estimation.
func (n Network) UsesBlockTime() bool {
	return n == NetworkSolana
}
