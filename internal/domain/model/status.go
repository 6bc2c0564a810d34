package model

// TxStatus is the lifecycle state of a NormalizedTransaction.
type TxStatus string

const (
	TxStatusPendingClarification TxStatus = "PENDING_CLARIFICATION"
	TxStatusPendingPrice         TxStatus = "PENDING_PRICE"
	TxStatusPendingStat          TxStatus = "PENDING_STAT"
	TxStatusConfirmed            TxStatus = "CONFIRMED"
	TxStatusNeedsReview          TxStatus = "NEEDS_REVIEW"
)

// Rank returns the explicit total order of a status. Merge logic relies on
// this function rather than declaration order: an incoming write may never
// move a transaction to a lower-ranked status.
func (s TxStatus) Rank() int {
	switch s {
	case TxStatusPendingClarification:
		return 1
	case TxStatusPendingPrice:
		return 2
	case TxStatusPendingStat:
		return 3
	case TxStatusConfirmed:
		return 4
	case TxStatusNeedsReview:
		return 5
	default:
		return 0
	}
}

// Immutable reports whether a transaction in this status must not be
// rewritten by a re-classification merge. Once a transaction has reached
// consistency checking, classification output is stale by definition.
func (s TxStatus) Immutable() bool {
	switch s {
	case TxStatusPendingStat, TxStatusConfirmed, TxStatusNeedsReview:
		return true
	default:
		return false
	}
}

// MaxStatus returns the higher-ranked of two statuses.
func MaxStatus(a, b TxStatus) TxStatus {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ClassificationStatus is the processing state of a RawTransaction.
type ClassificationStatus string

const (
	ClassificationPending  ClassificationStatus = "PENDING"
	ClassificationComplete ClassificationStatus = "COMPLETE"
	ClassificationFailed   ClassificationStatus = "FAILED"
)

// SyncState is the overall ingestion state of a wallet/network pair.
type SyncState string

const (
	SyncPending  SyncState = "PENDING"
	SyncRunning  SyncState = "RUNNING"
	SyncComplete SyncState = "COMPLETE"
	SyncFailed   SyncState = "FAILED"
)
