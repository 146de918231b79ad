// Package trader turns deduplicated strategy signals into reconciled
// order pairs. Each signal runs through an independent, cancellable
// multi-step workflow: validate instrument, open, wait for fill, watch
// the live price for an exit, close, wait for fill. Failures never
// escape a single signal; they are recorded on its realization.
package trader

import (
	"fmt"
	"sync"

	"wick/internal/robot"
)

type RealizationStatus string

const (
	StatusProcessing RealizationStatus = "processing"
	StatusFailed     RealizationStatus = "failed"
	StatusSuccessful RealizationStatus = "successful"
)

type FailureReason string

const (
	// ReasonPostOpenOrder covers failures placing or filling the
	// opening leg.
	ReasonPostOpenOrder FailureReason = "post-open-order"
	// ReasonPostCloseOrder covers failures placing or filling the
	// closing leg.
	ReasonPostCloseOrder FailureReason = "post-close-order"
	// ReasonFatal covers structural failures: instrument not tradable,
	// lookup errors, mid-flight cancellation.
	ReasonFatal FailureReason = "fatal"
)

type RealizationError struct {
	Reason  FailureReason `json:"reason"`
	Message string        `json:"message"`
}

// Realization tracks one signal's end-to-end execution. Status moves
// PROCESSING -> FAILED or PROCESSING -> SUCCESSFUL and never backward.
// It lives for the whole process; the final report is built from it.
type Realization struct {
	mu sync.Mutex

	signal       robot.Signal
	openOrderID  string
	closeOrderID string
	status       RealizationStatus
	err          *RealizationError
}

func NewRealization(signal robot.Signal) *Realization {
	return &Realization{
		signal: signal,
		status: StatusProcessing,
	}
}

// SetOpenOrderID records the opening leg immediately after posting,
// before its fill is confirmed, so a crash mid-wait leaves an auditable
// partial state.
func (r *Realization) SetOpenOrderID(orderID string) {
	r.mu.Lock()
	r.openOrderID = orderID
	r.mu.Unlock()
}

// SetCloseOrderID records the confirmed closing leg and flips the
// realization to SUCCESSFUL. It rejects the call when no open order was
// recorded or the realization already reached a terminal status.
func (r *Realization) SetCloseOrderID(orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.openOrderID == "" {
		return fmt.Errorf("close order %s assigned before any open order", orderID)
	}
	if r.status != StatusProcessing {
		return fmt.Errorf("close order %s assigned to %s realization", orderID, r.status)
	}
	r.closeOrderID = orderID
	r.status = StatusSuccessful
	return nil
}

// Fail records the failure reason. A terminal realization is left
// untouched; transitions are monotonic.
func (r *Realization) Fail(reason FailureReason, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusProcessing {
		return
	}
	r.status = StatusFailed
	r.err = &RealizationError{
		Reason:  reason,
		Message: err.Error(),
	}
}

func (r *Realization) Status() RealizationStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Snapshot is the immutable, report-friendly view of a realization.
type Snapshot struct {
	Signal       robot.Signal      `json:"signal"`
	OpenOrderID  string            `json:"open_order_id,omitempty"`
	CloseOrderID string            `json:"close_order_id,omitempty"`
	Status       RealizationStatus `json:"status"`
	Error        *RealizationError `json:"error,omitempty"`
}

func (r *Realization) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		Signal:       r.signal,
		OpenOrderID:  r.openOrderID,
		CloseOrderID: r.closeOrderID,
		Status:       r.status,
	}
	if r.err != nil {
		errCopy := *r.err
		snap.Error = &errCopy
	}
	return snap
}
