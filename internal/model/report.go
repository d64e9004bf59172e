package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CycleState is a step of the reconciliation cycle.
type CycleState string

const (
	StateIdle       CycleState = "IDLE"
	StateCancelling CycleState = "CANCELLING"
	StateRefreshing CycleState = "REFRESHING"
	StateProposing  CycleState = "PROPOSING"
	StateGating     CycleState = "GATING"
	StateSubmitting CycleState = "SUBMITTING"
	StateRecording  CycleState = "RECORDING"
)

// CycleReport 单次对账周期的结果汇总
type CycleReport struct {
	ID           string     `json:"id"`
	Currency     string     `json:"currency"`
	Strategy     string     `json:"strategy"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   time.Time  `json:"finished_at"`
	ReachedState CycleState `json:"reached_state"`
	Success      bool       `json:"success"`
	Error        string     `json:"error,omitempty"`

	CancelRequested int `json:"cancel_requested"`
	CancelSucceeded int `json:"cancel_succeeded"`

	Total     decimal.Decimal `json:"total"`
	Available decimal.Decimal `json:"available"`

	Proposed        int             `json:"proposed"`
	Decision        string          `json:"decision,omitempty"`
	DecisionReason  string          `json:"decision_reason,omitempty"`
	Submitted       int             `json:"submitted"`
	SubmitSucceeded int             `json:"submit_succeeded"`
	PlacedAmount    decimal.Decimal `json:"placed_amount"`

	Recorded        int `json:"recorded"`
	NewPayments     int `json:"new_payments"`
	Inconsistencies int `json:"inconsistencies"`

	// 已吸收的非致命问题
	Warnings []string `json:"warnings,omitempty"`
}

// Degraded reports a successful cycle that still needs operator attention.
func (r CycleReport) Degraded() bool {
	if !r.Success {
		return false
	}
	return r.CancelSucceeded < r.CancelRequested ||
		r.SubmitSucceeded < r.Submitted ||
		r.Inconsistencies > 0 ||
		len(r.Warnings) > 0 ||
		r.Decision == "DENY" || r.Decision == "REDUCE"
}

// SettlementReport is the outcome of one settlement run.
type SettlementReport struct {
	Date     time.Time     `json:"date"`
	Currency string        `json:"currency"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Summary  *DailySummary `json:"summary,omitempty"`
}
