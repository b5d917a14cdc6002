package allocation

import "time"

// State is the allocation status of a student as derived from the ledger.
type State string

const (
	StateNone                      State = "none"
	StatePending                   State = "pending"
	StateApproved                  State = "approved"
	StateApprovedWithPendingChange State = "approved_with_pending_change"
	StateRejected                  State = "rejected"
	StateCancelled                 State = "cancelled"
)

// Snapshot is the derived state together with the requests it was derived from.
type Snapshot struct {
	State     State
	Approved  *Request
	Pending   *Request
	Rejected  *Request
	Cancelled *Request
}

// DeriveState computes a student's state from the latest active request of
// each status. A cancellation only wins when it is newer than every other
// active request; otherwise presence decides, in the order approved (with a
// pending room change), approved, pending, rejected.
func DeriveState(ledger *Ledger) Snapshot {
	var snap Snapshot
	if ledger == nil {
		snap.State = StateNone
		return snap
	}
	snap.Approved = latest(ledger, StatusApproved)
	snap.Pending = latest(ledger, StatusPending)
	snap.Rejected = latest(ledger, StatusRejected)
	snap.Cancelled = latest(ledger, StatusCancelled)

	if snap.Cancelled != nil && cancellationWins(snap) {
		snap.State = StateCancelled
		return snap
	}

	switch {
	case snap.Approved != nil && snap.Pending != nil && snap.Pending.IsRoomChange:
		snap.State = StateApprovedWithPendingChange
	case snap.Approved != nil:
		snap.State = StateApproved
	case snap.Pending != nil:
		snap.State = StatePending
	case snap.Rejected != nil:
		snap.State = StateRejected
	default:
		snap.State = StateNone
	}
	return snap
}

func latest(ledger *Ledger, status Status) *Request {
	req, ok := ledger.LatestActive(status)
	if !ok {
		return nil
	}
	return &req
}

func cancellationWins(snap Snapshot) bool {
	cancelledAt := snap.Cancelled.LastActivity()
	var newest time.Time
	for _, other := range []*Request{snap.Approved, snap.Pending, snap.Rejected} {
		if other == nil {
			continue
		}
		if at := other.LastActivity(); at.After(newest) {
			newest = at
		}
	}
	return cancelledAt.After(newest)
}
