package domain

import "time"

// LaunchState is the lifecycle state of a virtual-curve public launch.
type LaunchState string

const (
	LaunchStateActive    LaunchState = "active"
	LaunchStateGraduated LaunchState = "graduated"
	LaunchStateExpired   LaunchState = "expired"
)

// LaunchCommitment is one participant's accumulated contribution to a launch,
// held off the real reserves until graduation.
type LaunchCommitment struct {
	Participant string `json:"participant"`
	AmountYes   int64  `json:"amount_yes"`
	AmountNo    int64  `json:"amount_no"`

	// LP share entitlement fixed at graduation; vests linearly afterwards.
	EntitledYes int64 `json:"entitled_yes"`
	EntitledNo  int64 `json:"entitled_no"`
	ClaimedYes  int64 `json:"claimed_yes"`
	ClaimedNo   int64 `json:"claimed_no"`
}

// LaunchInfo is the launch read model.
type LaunchInfo struct {
	ID            string      `json:"id"`
	MarketID      string      `json:"market_id"`
	State         LaunchState `json:"state"`
	TotalYes      int64       `json:"total_yes"`
	TotalNo       int64       `json:"total_no"`
	Participants  int         `json:"participants"`
	GraduatedAt   *time.Time  `json:"graduated_at,omitempty"`
	VestingWindow string      `json:"vesting_window"`
}
