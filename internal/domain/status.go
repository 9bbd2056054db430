package domain

// TaskStatus is the closed status enum of a MusicTask. Remote provider codes
// are mapped into this set at the API client boundary; raw provider strings
// never travel past it.
//
// Lifecycle: pending -> processing -> success | error | timeout. The three
// terminal states are final; a terminal task is never polled or mutated
// again.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusSuccess    TaskStatus = "success"
	TaskStatusError      TaskStatus = "error"
	TaskStatusTimeout    TaskStatus = "timeout"
)

// Terminal reports whether the status is final. Terminal tasks are excluded
// from poll scans.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusSuccess, TaskStatusError, TaskStatusTimeout:
		return true
	}
	return false
}

// rank orders statuses for monotonicity checks: a task's observed status
// sequence must be non-decreasing.
func (s TaskStatus) rank() int {
	switch s {
	case TaskStatusPending:
		return 0
	case TaskStatusProcessing:
		return 1
	case TaskStatusSuccess, TaskStatusError, TaskStatusTimeout:
		return 2
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next respects the forward
// direction of the state machine. Staying on the same status is allowed
// (a retryable error keeps "processing" while the error counter increments).
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	if s.Terminal() {
		return false
	}
	return next.rank() >= s.rank()
}

// UserRole gates privileged commands.
type UserRole string

const (
	RoleUser    UserRole = "user"
	RoleAdmin   UserRole = "admin"
	RoleSupport UserRole = "support"
)

// TransactionStatus tracks the progress of a Transaction. Withdrawal
// requests walk pending -> assigned -> completed|failed; top-ups and
// referral bonuses are inserted already in "success".
type TransactionStatus string

const (
	TxStatusPending   TransactionStatus = "pending"
	TxStatusAssigned  TransactionStatus = "assigned"
	TxStatusCompleted TransactionStatus = "completed"
	TxStatusFailed    TransactionStatus = "failed"
	TxStatusSuccess   TransactionStatus = "success"
	TxStatusRefunded  TransactionStatus = "refunded"
)

// TransactionType distinguishes balance-affecting events.
type TransactionType string

const (
	TxTypeTopup           TransactionType = "topup"
	TxTypeReferralBonus   TransactionType = "referral_bonus"
	TxTypeWithdrawRequest TransactionType = "withdraw_request"
)

// UsageEventType labels billable actions recorded for analytics.
type UsageEventType string

const (
	UsageAIText       UsageEventType = "ai_text"
	UsageManualText   UsageEventType = "manual_text"
	UsageInstrumental UsageEventType = "instrumental"
)
