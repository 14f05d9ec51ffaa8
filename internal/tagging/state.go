package tagging

// State is the scheduler's position in its loop.
type State string

const (
	StateIdle      State = "idle"
	StatePopping   State = "popping"
	StateCalling   State = "calling"
	StateMerging   State = "merging"
	StateRequeuing State = "requeuing"
	StateFlushing  State = "flushing"
	StateDraining  State = "draining"
	StateSleeping  State = "sleeping"
)

// StopReason says why an epoch ended.
type StopReason string

const (
	StopEmpty       StopReason = "table_empty"
	StopQuota       StopReason = "quota_reserve"
	StopBudget      StopReason = "epoch_complete"
	StopRateLimited StopReason = "rate_limited"
	StopNetwork     StopReason = "network"
	StopCancelled   StopReason = "cancelled"
)

// EpochStats summarizes one epoch.
type EpochStats struct {
	Epoch    int64
	Calls    int
	Cached   int
	Tagged   int
	Dropped  int
	Deferred int
	Stop     StopReason
	Covered  int
	Total    int
}
