package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers a missing current tournament, player or membership.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateTournament is returned when a tournament already exists for the date.
	ErrDuplicateTournament = errors.New("tournament already exists for this date")
	// ErrAlreadyClaimed is returned on a second claim of the same membership.
	ErrAlreadyClaimed = errors.New("reward already claimed")
	// ErrNotEligible is returned when the settled rank earns no reward.
	ErrNotEligible = errors.New("not eligible for a reward")
	// ErrInsufficientFunds is returned when a debit would make coins negative.
	ErrInsufficientFunds = errors.New("insufficient coins")
	// ErrPlayerExists is returned when registering a taken username or external id.
	ErrPlayerExists = errors.New("player already exists")
	// ErrInvalidInput wraps request validation failures.
	ErrInvalidInput = errors.New("invalid input")
)

// RejectReason identifies why a tournament entry was refused.
type RejectReason string

const (
	ReasonWrongDate         RejectReason = "wrong_date"
	ReasonCutoffPassed      RejectReason = "cutoff_passed"
	ReasonAlreadyEntered    RejectReason = "already_entered"
	ReasonInsufficientCoins RejectReason = "insufficient_coins"
	ReasonInsufficientLevel RejectReason = "insufficient_level"
)

// AdmissionError is the structured rejection of a tournament entry.
type AdmissionError struct {
	Reason  RejectReason
	Message string
}

func (e *AdmissionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("entry rejected: %s", e.Reason)
}

func reject(reason RejectReason, format string, args ...any) error {
	return &AdmissionError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// IsRejected reports whether err is an admission rejection with the given reason.
func IsRejected(err error, reason RejectReason) bool {
	var adm *AdmissionError
	return errors.As(err, &adm) && adm.Reason == reason
}
