package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ledgerkit/txledger/internal/domain/model"
)

// AssetRegistry holds per-network asset knowledge loaded from YAML: the set
// of known stablecoin contracts, the per-contract external coin ids, and the
// native asset of each network. Contract lookups are case-insensitive.
type AssetRegistry struct {
	stablecoins map[string]struct{}
	coinIDs     map[string]string
	native      map[model.Network]NativeAsset
	anchors     map[model.Network]BlockAnchor
}

// NativeAsset describes a network's gas asset.
type NativeAsset struct {
	Symbol   string `yaml:"symbol"`
	Contract string `yaml:"contract"`
	CoinID   string `yaml:"coin_id"`
}

// BlockAnchor is a block-time calibration point for networks whose payloads
// do not embed timestamps.
type BlockAnchor struct {
	BlockNumber     int64     `yaml:"block_number"`
	Timestamp       time.Time `yaml:"timestamp"`
	AvgBlockSeconds float64   `yaml:"avg_block_seconds"`
}

type registryFile struct {
	Stablecoins []string               `yaml:"stablecoins"`
	CoinIDs     map[string]string      `yaml:"coin_ids"`
	Native      map[string]NativeAsset `yaml:"native"`
	Anchors     map[string]BlockAnchor `yaml:"block_anchors"`
}

// LoadAssetRegistry reads the registry YAML from path.
func LoadAssetRegistry(path string) (*AssetRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read asset registry: %w", err)
	}
	return ParseAssetRegistry(data)
}

// ParseAssetRegistry parses registry YAML content.
func ParseAssetRegistry(data []byte) (*AssetRegistry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse asset registry: %w", err)
	}

	r := &AssetRegistry{
		stablecoins: make(map[string]struct{}, len(file.Stablecoins)),
		coinIDs:     make(map[string]string, len(file.CoinIDs)),
		native:      make(map[model.Network]NativeAsset, len(file.Native)),
		anchors:     make(map[model.Network]BlockAnchor, len(file.Anchors)),
	}
	for _, c := range file.Stablecoins {
		r.stablecoins[strings.ToLower(c)] = struct{}{}
	}
	for contract, id := range file.CoinIDs {
		r.coinIDs[strings.ToLower(contract)] = id
	}
	for network, asset := range file.Native {
		r.native[model.Network(network)] = asset
	}
	for network, anchor := range file.Anchors {
		r.anchors[model.Network(network)] = anchor
	}
	return r, nil
}

// NewAssetRegistry builds a registry from explicit maps, used by tests.
func NewAssetRegistry(stablecoins []string, coinIDs map[string]string, native map[model.Network]NativeAsset) *AssetRegistry {
	r := &AssetRegistry{
		stablecoins: make(map[string]struct{}, len(stablecoins)),
		coinIDs:     make(map[string]string, len(coinIDs)),
		native:      native,
		anchors:     make(map[model.Network]BlockAnchor),
	}
	if r.native == nil {
		r.native = make(map[model.Network]NativeAsset)
	}
	for _, c := range stablecoins {
		r.stablecoins[strings.ToLower(c)] = struct{}{}
	}
	for contract, id := range coinIDs {
		r.coinIDs[strings.ToLower(contract)] = id
	}
	return r
}

// IsStablecoin reports whether the contract is a known USD stablecoin.
func (r *AssetRegistry) IsStablecoin(contract string) bool {
	_, ok := r.stablecoins[strings.ToLower(contract)]
	return ok
}

// CoinID returns the external API coin id configured for the contract.
func (r *AssetRegistry) CoinID(contract string) (string, bool) {
	id, ok := r.coinIDs[strings.ToLower(contract)]
	return id, ok
}

// Native returns the native asset for a network.
func (r *AssetRegistry) Native(network model.Network) (NativeAsset, bool) {
	a, ok := r.native[network]
	return a, ok
}

// Anchors returns the configured block-time calibration points.
func (r *AssetRegistry) Anchors() map[model.Network]BlockAnchor {
	out := make(map[model.Network]BlockAnchor, len(r.anchors))
	for k, v := range r.anchors {
		out[k] = v
	}
	return out
}
