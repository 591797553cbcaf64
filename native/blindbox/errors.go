package blindbox

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrNilState               = errors.New("blindbox engine: state not configured")
	ErrNotInitialised         = errors.New("blindbox engine: contract not initialised")
	ErrAlreadyInitialised     = errors.New("blindbox engine: contract already initialised")
	ErrUnauthorized           = errors.New("blindbox engine: unauthorized")
	ErrInvalidState           = errors.New("blindbox engine: invalid state")
	ErrInvalidStateTransition = errors.New("blindbox engine: invalid state transition")
	ErrOutsideWindow          = errors.New("blindbox engine: outside window")
	ErrCommitNotActive        = errors.New("blindbox engine: commit phase not active")
	ErrRevealNotActive        = errors.New("blindbox engine: reveal phase not active")
	ErrNothingToReveal        = errors.New("blindbox engine: nothing to reveal")
	ErrNoUnitsAvailable       = errors.New("blindbox engine: no units available")
	ErrTooManyVoters          = errors.New("blindbox engine: too many voters")
	ErrInvalidAddress         = errors.New("blindbox engine: invalid address")
	ErrCommitmentMismatch     = errors.New("blindbox engine: commitment mismatch")
	ErrInsufficientFunds      = errors.New("blindbox engine: insufficient base sent")
	ErrInvalidPrice           = errors.New("blindbox engine: invalid base price")
	ErrInvalidScale           = errors.New("blindbox engine: invalid scale")
	ErrInvalidTier            = errors.New("blindbox engine: invalid tier")
	ErrLedgerNotConfigured    = errors.New("blindbox engine: external ledger not configured")
	ErrDelegatedLedger        = errors.New("blindbox engine: ownership kept by external ledger")
	ErrUnitNotFound           = errors.New("blindbox engine: unit not found")
	ErrSupplyBelowCursor      = errors.New("blindbox engine: supply below issued units")
	ErrAmountOverflow         = errors.New("blindbox engine: amount overflow")

	// errApprovalNotHeld marks a revoke that named a spender the unit was not
	// approved for. The engine treats it as a no-op.
	errApprovalNotHeld = errors.New("blindbox engine: approval not held")
)

// InvalidStateTransitionError reports a rejected phase change.
type InvalidStateTransitionError struct {
	From Phase
	To   Phase
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("%s: from %s to %s", ErrInvalidStateTransition, e.From, e.To)
}

func (e *InvalidStateTransitionError) Unwrap() error { return ErrInvalidStateTransition }

// OutsideWindowError reports the block position and the bounds it missed.
// Unset bounds are reported as 0 (start) and math.MaxUint64 (end).
type OutsideWindowError struct {
	Window      WindowKind
	Height      uint64
	Time        uint64
	StartHeight uint64
	EndHeight   uint64
	StartTime   uint64
	EndTime     uint64
}

func newOutsideWindowError(kind WindowKind, w PhaseWindow, height, time uint64) *OutsideWindowError {
	err := &OutsideWindowError{
		Window:    kind,
		Height:    height,
		Time:      time,
		EndHeight: math.MaxUint64,
		EndTime:   math.MaxUint64,
	}
	if w.StartHeight != nil {
		err.StartHeight = *w.StartHeight
	}
	if w.EndHeight != nil {
		err.EndHeight = *w.EndHeight
	}
	if w.StartTime != nil {
		err.StartTime = *w.StartTime
	}
	if w.EndTime != nil {
		err.EndTime = *w.EndTime
	}
	return err
}

func (e *OutsideWindowError) Error() string {
	return fmt.Sprintf("%s: %s window, height %d not in [%d, %d] or time %d not in [%d, %d]",
		ErrOutsideWindow, e.Window, e.Height, e.StartHeight, e.EndHeight, e.Time, e.StartTime, e.EndTime)
}

func (e *OutsideWindowError) Unwrap() error { return ErrOutsideWindow }

// TooManyVotersError reports a settlement that exceeds the voter cap.
// Counting stops at the first reveal past the cap, so Count is Max+1 and
// means "more than Max".
type TooManyVotersError struct {
	Count int
	Max   int
}

func (e *TooManyVotersError) Error() string {
	return fmt.Sprintf("%s: more than %d", ErrTooManyVoters, e.Max)
}

func (e *TooManyVotersError) Unwrap() error { return ErrTooManyVoters }
