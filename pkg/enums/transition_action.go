package enums

import "fmt"

// TransitionAction names an operation the state engine can apply.
type TransitionAction string

const (
	ActionPlace          TransitionAction = "place"
	ActionAccept         TransitionAction = "accept"
	ActionReject         TransitionAction = "reject"
	ActionMarkReady      TransitionAction = "mark_ready"
	ActionDeliverEvent   TransitionAction = "deliver_event"
	ActionPaymentEvent   TransitionAction = "payment_event"
	ActionCancel         TransitionAction = "cancel"
	ActionSettleRefund   TransitionAction = "settle_refund"
	ActionMarkForRefund  TransitionAction = "mark_for_refund"
	ActionRate           TransitionAction = "rate"
	ActionRecordDispatch TransitionAction = "record_dispatch"
)

var validTransitionActions = []TransitionAction{
	ActionPlace,
	ActionAccept,
	ActionReject,
	ActionMarkReady,
	ActionDeliverEvent,
	ActionPaymentEvent,
	ActionCancel,
	ActionSettleRefund,
	ActionMarkForRefund,
	ActionRate,
	ActionRecordDispatch,
}

// String implements fmt.Stringer.
func (t TransitionAction) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransitionAction.
func (t TransitionAction) IsValid() bool {
	for _, candidate := range validTransitionActions {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransitionAction converts raw input into a TransitionAction.
func ParseTransitionAction(value string) (TransitionAction, error) {
	for _, candidate := range validTransitionActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transition action %q", value)
}
