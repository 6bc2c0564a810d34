package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkit/txledger/internal/domain/model"
)

const testWallet = "0xwallet"

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

func normalizedTx(txHash string, status model.TxStatus) *model.NormalizedTransaction {
	return &model.NormalizedTransaction{
		TxHash:         txHash,
		NetworkID:      model.NetworkEthereum,
		WalletAddress:  testWallet,
		BlockTimestamp: time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC),
		Type:           model.TxTypeSwap,
		Status:         status,
	}
}

func TestNormalizedTransactionStore_UpsertIdempotent(t *testing.T) {
	s := NewNormalizedTransactionStore(fixedClock{at: time.Now()})

	out, err := s.Upsert(context.Background(), normalizedTx("0xa", model.TxStatusPendingPrice))
	require.NoError(t, err)
	assert.True(t, out.Inserted)

	out, err = s.Upsert(context.Background(), normalizedTx("0xa", model.TxStatusPendingPrice))
	require.NoError(t, err)
	assert.False(t, out.Inserted)
	assert.True(t, out.Merged)

	rows, err := s.ListByStatus(context.Background(), model.TxStatusPendingPrice, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "re-upsert must not duplicate the row")
}

func TestNormalizedTransactionStore_StatusNeverRegresses(t *testing.T) {
	s := NewNormalizedTransactionStore(fixedClock{at: time.Now()})

	_, err := s.Upsert(context.Background(), normalizedTx("0xa", model.TxStatusPendingStat))
	require.NoError(t, err)
	_, err = s.Upsert(context.Background(), normalizedTx("0xa", model.TxStatusPendingClarification))
	require.NoError(t, err)

	got := s.Get("0xa", model.NetworkEthereum, testWallet)
	require.NotNil(t, got)
	assert.Equal(t, model.TxStatusPendingStat, got.Status)
}

func TestNormalizedTransactionStore_ImmutableBlocksRewrite(t *testing.T) {
	clock := fixedClock{at: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	s := NewNormalizedTransactionStore(clock)

	confirmed := normalizedTx("0xa", model.TxStatusConfirmed)
	confirmed.Legs = []model.Leg{{Role: model.LegRoleBuy, AssetContract: "0xweth", QuantityDelta: decimal.NewFromInt(1)}}
	_, err := s.Upsert(context.Background(), confirmed)
	require.NoError(t, err)

	incoming := normalizedTx("0xa", model.TxStatusPendingPrice)
	incoming.Legs = nil
	out, err := s.Upsert(context.Background(), incoming)
	require.NoError(t, err)
	assert.False(t, out.Merged, "confirmed rows reject merges")

	got := s.Get("0xa", model.NetworkEthereum, testWallet)
	require.NotNil(t, got)
	assert.Equal(t, model.TxStatusConfirmed, got.Status)
	assert.Len(t, got.Legs, 1)
	assert.Equal(t, clock.at, got.UpdatedAt, "touch timestamp even when blocked")
}

func TestNormalizedTransactionStore_ClientIDIdentity(t *testing.T) {
	s := NewNormalizedTransactionStore(fixedClock{at: time.Now()})

	clientID := "manual-001"
	first := normalizedTx("", model.TxStatusPendingPrice)
	first.ClientID = &clientID
	_, err := s.Upsert(context.Background(), first)
	require.NoError(t, err)

	second := normalizedTx("0xlate", model.TxStatusPendingStat)
	second.ClientID = &clientID
	out, err := s.Upsert(context.Background(), second)
	require.NoError(t, err)
	assert.True(t, out.Merged, "client id wins over natural identity")
}

func eventFor(txHash, contract string, qty string) *model.EconomicEvent {
	return &model.EconomicEvent{
		TxHash:        txHash,
		NetworkID:     model.NetworkEthereum,
		WalletAddress: testWallet,
		EventType:     model.EventSwapBuy,
		AssetContract: contract,
		QuantityDelta: decimal.RequireFromString(qty),
		PriceSource:   model.PriceSourceUnknown,
	}
}

func TestEconomicEventStore_CompositeIdentity(t *testing.T) {
	s := NewEconomicEventStore()

	out, err := s.Upsert(context.Background(), eventFor("0xa", "0xweth", "1"))
	require.NoError(t, err)
	assert.True(t, out.Inserted)

	out, err = s.Upsert(context.Background(), eventFor("0xa", "0xweth", "2"))
	require.NoError(t, err)
	assert.True(t, out.Merged)

	out, err = s.Upsert(context.Background(), eventFor("0xa", "0xusdc", "-16"))
	require.NoError(t, err)
	assert.True(t, out.Inserted, "different asset contract is a distinct event")

	events, err := s.ListByTxHash(context.Background(), "0xa", model.NetworkEthereum, testWallet)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "0xusdc", events[0].AssetContract, "sorted by contract")
	assert.True(t, events[1].QuantityDelta.Equal(decimal.NewFromInt(2)), "merge took the newer delta")
}

func TestEconomicEventStore_ClientIDIdentity(t *testing.T) {
	s := NewEconomicEventStore()

	clientID := "manual-evt-1"
	e := eventFor("0xa", "0xweth", "1")
	e.ClientID = &clientID
	out, err := s.Upsert(context.Background(), e)
	require.NoError(t, err)
	assert.True(t, out.Inserted)

	e2 := eventFor("0xb", "0xusdc", "5")
	e2.ClientID = &clientID
	out, err = s.Upsert(context.Background(), e2)
	require.NoError(t, err)
	assert.True(t, out.Merged)
	assert.Equal(t, 1, s.Len())
}

func TestRawTransactionStore_ListPendingOrder(t *testing.T) {
	s := NewRawTransactionStore()

	for _, row := range []struct {
		hash  string
		block int64
	}{
		{"0xc", 300},
		{"0xa", 100},
		{"0xb", 200},
	} {
		bn := row.block
		require.NoError(t, s.Upsert(context.Background(), &model.RawTransaction{
			TxHash:               row.hash,
			WalletAddress:        testWallet,
			NetworkID:            model.NetworkEthereum,
			BlockNumber:          &bn,
			ClassificationStatus: model.ClassificationPending,
		}))
	}

	rows, err := s.ListPending(context.Background(), testWallet, model.NetworkEthereum, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "0xa", rows[0].TxHash)
	assert.Equal(t, "0xb", rows[1].TxHash)
}

func TestRawTransactionStore_ReupsertKeepsStatus(t *testing.T) {
	s := NewRawTransactionStore()

	bn := int64(100)
	raw := &model.RawTransaction{
		TxHash:               "0xa",
		WalletAddress:        testWallet,
		NetworkID:            model.NetworkEthereum,
		BlockNumber:          &bn,
		ClassificationStatus: model.ClassificationPending,
	}
	require.NoError(t, s.Upsert(context.Background(), raw))
	require.NoError(t, s.SetClassificationStatus(context.Background(), "0xa", model.NetworkEthereum, testWallet, model.ClassificationComplete))

	require.NoError(t, s.Upsert(context.Background(), raw))
	assert.Equal(t, model.ClassificationComplete, s.Status("0xa", model.NetworkEthereum, testWallet),
		"re-delivery of a processed raw must not reopen it")
}

func TestSyncStatusStore_EnsureAndList(t *testing.T) {
	s := NewSyncStatusStore()

	require.NoError(t, s.EnsureExists(context.Background(), "0xb", model.NetworkEthereum))
	require.NoError(t, s.EnsureExists(context.Background(), "0xa", model.NetworkSolana))
	require.NoError(t, s.EnsureExists(context.Background(), "0xa", model.NetworkEthereum))
	require.NoError(t, s.EnsureExists(context.Background(), "0xa", model.NetworkEthereum))

	rows, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3, "EnsureExists is idempotent")
	assert.Equal(t, "0xa", rows[0].WalletAddress)
	assert.Equal(t, model.NetworkEthereum, rows[0].NetworkID)
	assert.Equal(t, model.SyncPending, rows[0].Status)
}
