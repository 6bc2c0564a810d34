// Package blocktime estimates block timestamps for networks whose raw
// payloads do not embed one. Estimates are linear extrapolations from known
// (block, timestamp, average block time) anchors.
package blocktime

import (
	"fmt"
	"sync"
	"time"

	"github.com/ledgerkit/txledger/internal/domain/model"
)

// Anchor is one calibration point for a network.
type Anchor struct {
	BlockNumber     int64
	Timestamp       time.Time
	AvgBlockSeconds float64
}

// Estimator resolves (network, block number) to an estimated UTC instant.
type Estimator interface {
	Estimate(network model.Network, blockNumber int64) (time.Time, error)
}

// AnchorEstimator extrapolates from per-network anchors. Anchors can be
// recalibrated at runtime as fresher chain data arrives.
type AnchorEstimator struct {
	mu      sync.RWMutex
	anchors map[model.Network]Anchor
}

func NewAnchorEstimator() *AnchorEstimator {
	return &AnchorEstimator{anchors: make(map[model.Network]Anchor)}
}

// Calibrate installs or replaces the anchor for a network.
func (e *AnchorEstimator) Calibrate(network model.Network, a Anchor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.anchors[network] = a
}

// Estimate returns the estimated UTC timestamp of the given block. Networks
// without a calibrated anchor return an error; the classification stage
// marks such transactions FAILED and moves on.
func (e *AnchorEstimator) Estimate(network model.Network, blockNumber int64) (time.Time, error) {
	e.mu.RLock()
	a, ok := e.anchors[network]
	e.mu.RUnlock()
	if !ok {
		return time.Time{}, fmt.Errorf("no block time anchor for network %s", network)
	}
	deltaBlocks := blockNumber - a.BlockNumber
	offset := time.Duration(float64(deltaBlocks) * a.AvgBlockSeconds * float64(time.Second))
	return a.Timestamp.Add(offset).UTC(), nil
}
