package model

// EventKind names the operation that produced an Event.
type EventKind string

const (
	EventCreatePool EventKind = "create_pool"
	EventDeposit    EventKind = "deposit_stake"
	EventWithdraw   EventKind = "withdraw_stake"
	EventClaim      EventKind = "claim_reward"
	EventSync       EventKind = "sync_rewards"
	EventCredit     EventKind = "credit"
)

// Event is the journal record of one committed operation.
type Event struct {
	ID          string    `json:"id"`
	Kind        EventKind `json:"kind"`
	Pool        string    `json:"pool,omitempty"`
	Participant string    `json:"participant,omitempty"`
	Account     string    `json:"account,omitempty"`
	Amount      uint64    `json:"amount"`
	RewardPaid  uint64    `json:"reward_paid"`
	Accumulator string    `json:"accumulator,omitempty"`
	TotalStaked string    `json:"total_staked,omitempty"`
	Timestamp   int64     `json:"timestamp"`
}
