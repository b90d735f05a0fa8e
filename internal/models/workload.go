package models

import "time"

// TAWorkload tracks the proctoring hours credited to a TA. Hours are
// credited when an assignment is accepted and reduced when an accepted
// assignment is swapped away.
type TAWorkload struct {
	TAID         string    `db:"ta_id" json:"ta_id"`
	TotalMinutes int       `db:"total_minutes" json:"total_minutes"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// WorkloadAction enumerates the adjustments applied to a TA workload row.
type WorkloadAction string

const (
	WorkloadActionCredit WorkloadAction = "CREDIT"
	WorkloadActionSwap   WorkloadAction = "SWAP"
)
