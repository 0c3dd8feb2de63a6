package loan

import "errors"

// ErrIllegalTransition is returned for any loan status change outside the
// transition table.
var ErrIllegalTransition = errors.New("illegal loan transition")

type Status string

const (
	StatusPending     Status = "pending"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusDisbursed   Status = "disbursed"
	StatusActive      Status = "active"
	StatusCompleted   Status = "completed"
	StatusDefaulted   Status = "defaulted"
	StatusCancelled   Status = "cancelled"
)

// allowedTransitions is the lifecycle table. Cancelled is additionally
// reachable from every pre-disbursement state, handled in CanTransition.
var allowedTransitions = map[Status][]Status{
	StatusPending:     {StatusUnderReview, StatusApproved, StatusRejected},
	StatusUnderReview: {StatusApproved, StatusRejected},
	StatusApproved:    {StatusDisbursed},
	StatusDisbursed:   {StatusActive},
	StatusActive:      {StatusCompleted, StatusDefaulted},
	StatusRejected:    {},
	StatusCompleted:   {},
	StatusDefaulted:   {},
	StatusCancelled:   {},
}

func ValidStatus(status Status) bool {
	_, ok := allowedTransitions[status]
	return ok
}

func preDisbursement(status Status) bool {
	switch status {
	case StatusPending, StatusUnderReview, StatusApproved:
		return true
	}
	return false
}

func CanTransition(from, to Status) bool {
	if to == StatusCancelled {
		return preDisbursement(from)
	}
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition validates a status change and returns the new status, or
// ErrIllegalTransition if the table forbids it.
func Transition(from, to Status) (Status, error) {
	if !ValidStatus(from) || !ValidStatus(to) {
		return from, ErrIllegalTransition
	}
	if !CanTransition(from, to) {
		return from, ErrIllegalTransition
	}
	return to, nil
}

func Terminal(status Status) bool {
	transitions, ok := allowedTransitions[status]
	return ok && len(transitions) == 0
}
