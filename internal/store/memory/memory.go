// Package memory provides mutex-guarded in-memory implementations of the
// store interfaces. They carry the same merge semantics as the postgres
// repositories and back the pipeline tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ledgerkit/txledger/internal/domain/model"
	"github.com/ledgerkit/txledger/internal/store"
)

type rawKey struct {
	TxHash string
	Net    model.Network
	Wallet string
}

type eventKey struct {
	TxHash string
	Net    model.Network
	Wallet string
	Asset  string
}

// RawTransactionStore is an in-memory RawTransactionRepository.
type RawTransactionStore struct {
	mu   sync.Mutex
	rows map[rawKey]*model.RawTransaction
}

func NewRawTransactionStore() *RawTransactionStore {
	return &RawTransactionStore{rows: make(map[rawKey]*model.RawTransaction)}
}

func (s *RawTransactionStore) Upsert(_ context.Context, t *model.RawTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := rawKey{t.TxHash, t.NetworkID, t.WalletAddress}
	if existing, ok := s.rows[k]; ok {
		existing.BlockNumber = t.BlockNumber
		existing.RawData = t.RawData
		return nil
	}
	cp := *t
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	s.rows[k] = &cp
	return nil
}

func (s *RawTransactionStore) ListPending(_ context.Context, wallet string, network model.Network, limit int) ([]*model.RawTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.RawTransaction
	for _, t := range s.rows {
		if t.WalletAddress == wallet && t.NetworkID == network && t.ClassificationStatus == model.ClassificationPending {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		bi, bj := out[i].BlockNumber, out[j].BlockNumber
		switch {
		case bi == nil && bj == nil:
			return out[i].TxHash < out[j].TxHash
		case bi == nil:
			return false
		case bj == nil:
			return true
		case *bi != *bj:
			return *bi < *bj
		default:
			return out[i].TxHash < out[j].TxHash
		}
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *RawTransactionStore) SetClassificationStatus(_ context.Context, txHash string, network model.Network, wallet string, status model.ClassificationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.rows[rawKey{txHash, network, wallet}]; ok {
		t.ClassificationStatus = status
	}
	return nil
}

// Status returns the stored classification status, for assertions.
func (s *RawTransactionStore) Status(txHash string, network model.Network, wallet string) model.ClassificationStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.rows[rawKey{txHash, network, wallet}]; ok {
		return t.ClassificationStatus
	}
	return ""
}

// EconomicEventStore is an in-memory EconomicEventRepository.
type EconomicEventStore struct {
	mu       sync.Mutex
	byKey    map[eventKey]*model.EconomicEvent
	byClient map[string]*model.EconomicEvent
}

func NewEconomicEventStore() *EconomicEventStore {
	return &EconomicEventStore{
		byKey:    make(map[eventKey]*model.EconomicEvent),
		byClient: make(map[string]*model.EconomicEvent),
	}
}

func (s *EconomicEventStore) Upsert(_ context.Context, e *model.EconomicEvent) (store.UpsertOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing *model.EconomicEvent
	if e.ClientID != nil {
		existing = s.byClient[*e.ClientID]
	} else {
		existing = s.byKey[eventKey{e.TxHash, e.NetworkID, e.WalletAddress, e.AssetContract}]
	}

	if existing == nil {
		cp := *e
		if cp.ID == uuid.Nil {
			cp.ID = uuid.New()
		}
		if cp.ClientID != nil {
			s.byClient[*cp.ClientID] = &cp
		} else {
			s.byKey[eventKey{cp.TxHash, cp.NetworkID, cp.WalletAddress, cp.AssetContract}] = &cp
		}
		return store.UpsertOutcome{Inserted: true}, nil
	}

	existing.BlockTimestamp = e.BlockTimestamp
	existing.EventType = e.EventType
	existing.AssetSymbol = e.AssetSymbol
	existing.QuantityDelta = e.QuantityDelta
	existing.PriceUsd = e.PriceUsd
	existing.PriceSource = e.PriceSource
	existing.TotalValueUsd = e.TotalValueUsd
	existing.GasCostUsd = e.GasCostUsd
	existing.GasIncludedInBasis = e.GasIncludedInBasis
	existing.FlagCode = e.FlagCode
	existing.FlagResolved = e.FlagResolved
	return store.UpsertOutcome{Merged: true}, nil
}

func (s *EconomicEventStore) ListByTxHash(_ context.Context, txHash string, network model.Network, wallet string) ([]*model.EconomicEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.EconomicEvent
	for _, e := range s.byKey {
		if e.TxHash == txHash && e.NetworkID == network && e.WalletAddress == wallet {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetContract < out[j].AssetContract })
	return out, nil
}

// Len returns the number of stored events.
func (s *EconomicEventStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey) + len(s.byClient)
}

// NormalizedTransactionStore is an in-memory NormalizedTransactionRepository.
type NormalizedTransactionStore struct {
	mu       sync.Mutex
	clock    store.Clock
	byKey    map[rawKey]*model.NormalizedTransaction
	byClient map[string]*model.NormalizedTransaction
}

func NewNormalizedTransactionStore(clock store.Clock) *NormalizedTransactionStore {
	return &NormalizedTransactionStore{
		clock:    clock,
		byKey:    make(map[rawKey]*model.NormalizedTransaction),
		byClient: make(map[string]*model.NormalizedTransaction),
	}
}

func (s *NormalizedTransactionStore) Upsert(_ context.Context, t *model.NormalizedTransaction) (store.UpsertOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing *model.NormalizedTransaction
	if t.ClientID != nil {
		existing = s.byClient[*t.ClientID]
	} else {
		existing = s.byKey[rawKey{t.TxHash, t.NetworkID, t.WalletAddress}]
	}

	if existing == nil {
		cp := *t
		if cp.ID == uuid.Nil {
			cp.ID = uuid.New()
		}
		if cp.ClientID != nil {
			s.byClient[*cp.ClientID] = &cp
		} else {
			s.byKey[rawKey{cp.TxHash, cp.NetworkID, cp.WalletAddress}] = &cp
		}
		return store.UpsertOutcome{Inserted: true}, nil
	}

	blocked := existing.Status.Immutable()
	existing.Merge(t, s.clock.Now())
	return store.UpsertOutcome{Merged: !blocked}, nil
}

func (s *NormalizedTransactionStore) ListByStatus(_ context.Context, status model.TxStatus, limit int) ([]*model.NormalizedTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.NormalizedTransaction
	for _, t := range s.byKey {
		if t.Status == status {
			cp := *t
			out = append(out, &cp)
		}
	}
	for _, t := range s.byClient {
		if t.Status == status {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockTimestamp.Before(out[j].BlockTimestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *NormalizedTransactionStore) Update(_ context.Context, t *model.NormalizedTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	cp.UpdatedAt = s.clock.Now()
	if cp.ClientID != nil {
		s.byClient[*cp.ClientID] = &cp
	} else {
		s.byKey[rawKey{cp.TxHash, cp.NetworkID, cp.WalletAddress}] = &cp
	}
	return nil
}

// Get returns a copy of the stored transaction for assertions.
func (s *NormalizedTransactionStore) Get(txHash string, network model.Network, wallet string) *model.NormalizedTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.byKey[rawKey{txHash, network, wallet}]; ok {
		cp := *t
		return &cp
	}
	return nil
}

// SyncStatusStore is an in-memory SyncStatusRepository.
type SyncStatusStore struct {
	mu   sync.Mutex
	rows map[string]*model.SyncStatus
}

func NewSyncStatusStore() *SyncStatusStore {
	return &SyncStatusStore{rows: make(map[string]*model.SyncStatus)}
}

func syncKey(wallet string, network model.Network) string {
	return wallet + "|" + string(network)
}

func (s *SyncStatusStore) Get(_ context.Context, wallet string, network model.Network) (*model.SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[syncKey(wallet, network)]; ok {
		cp := *row
		return &cp, nil
	}
	return nil, nil
}

func (s *SyncStatusStore) List(_ context.Context) ([]*model.SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.SyncStatus, 0, len(s.rows))
	for _, row := range s.rows {
		cp := *row
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WalletAddress != out[j].WalletAddress {
			return out[i].WalletAddress < out[j].WalletAddress
		}
		return out[i].NetworkID < out[j].NetworkID
	})
	return out, nil
}

func (s *SyncStatusStore) EnsureExists(_ context.Context, wallet string, network model.Network) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := syncKey(wallet, network)
	if _, ok := s.rows[k]; !ok {
		s.rows[k] = &model.SyncStatus{
			ID:            uuid.New(),
			WalletAddress: wallet,
			NetworkID:     network,
			Status:        model.SyncPending,
		}
	}
	return nil
}

func (s *SyncStatusStore) Save(_ context.Context, status *model.SyncStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *status
	s.rows[syncKey(status.WalletAddress, status.NetworkID)] = &cp
	return nil
}
