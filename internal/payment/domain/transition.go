package domain

// TransitionResult classifies a requested status change.
type TransitionResult string

const (
	// TransitionApplied means the change is legal and moves the record forward.
	TransitionApplied TransitionResult = "applied"
	// TransitionNoop means the record is already in the requested state;
	// side effects must not re-fire.
	TransitionNoop TransitionResult = "noop"
	// TransitionIllegal means the change would revert or skip a state.
	TransitionIllegal TransitionResult = "illegal"
)

// Transition evaluates the one-way state machine:
// pending -> {approved, rejected}, approved -> refunded.
// Reapplying the current status is a no-op so that re-delivered processor
// notifications converge without double side effects.
func Transition(current, next Status) TransitionResult {
	if current == next {
		return TransitionNoop
	}
	switch next {
	case StatusApproved, StatusRejected:
		if current == StatusPending {
			return TransitionApplied
		}
	case StatusRefunded:
		if current == StatusApproved {
			return TransitionApplied
		}
	}
	return TransitionIllegal
}

// TransitionSources returns the statuses a record may hold immediately before
// moving to next. Repositories use it as the guard set of the compare-and-set
// UPDATE so concurrent notifications cannot revert a terminal state.
func TransitionSources(next Status) []Status {
	switch next {
	case StatusApproved, StatusRejected:
		return []Status{StatusPending}
	case StatusRefunded:
		return []Status{StatusApproved}
	default:
		return nil
	}
}
