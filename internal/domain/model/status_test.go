package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTxStatus_RankOrdering(t *testing.T) {
	ordered := []TxStatus{
		TxStatusPendingClarification,
		TxStatusPendingPrice,
		TxStatusPendingStat,
		TxStatusConfirmed,
		TxStatusNeedsReview,
	}
	for i := 1; i < len(ordered); i++ {
		assert.Greater(t, ordered[i].Rank(), ordered[i-1].Rank(),
			"%s should outrank %s", ordered[i], ordered[i-1])
	}
	assert.Equal(t, 0, TxStatus("BOGUS").Rank())
}

func TestTxStatus_ImmutableSet(t *testing.T) {
	testCases := []struct {
		status    TxStatus
		immutable bool
	}{
		{TxStatusPendingClarification, false},
		{TxStatusPendingPrice, false},
		{TxStatusPendingStat, true},
		{TxStatusConfirmed, true},
		{TxStatusNeedsReview, true},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(string(tc.status), func(t *testing.T) {
			assert.Equal(t, tc.immutable, tc.status.Immutable())
		})
	}
}

func TestMaxStatus(t *testing.T) {
	assert.Equal(t, TxStatusPendingStat, MaxStatus(TxStatusPendingPrice, TxStatusPendingStat))
	assert.Equal(t, TxStatusPendingStat, MaxStatus(TxStatusPendingStat, TxStatusPendingPrice))
	assert.Equal(t, TxStatusNeedsReview, MaxStatus(TxStatusNeedsReview, TxStatusConfirmed))
	assert.Equal(t, TxStatusConfirmed, MaxStatus(TxStatusConfirmed, TxStatusConfirmed))
}
