package enums

import "fmt"

// Actor identifies who requested a transition.
type Actor string

const (
	ActorCustomer Actor = "customer"
	ActorVendor   Actor = "vendor"
	ActorAdmin    Actor = "admin"
	ActorSystem   Actor = "system"
)

var validActors = []Actor{
	ActorCustomer,
	ActorVendor,
	ActorAdmin,
	ActorSystem,
}

// String implements fmt.Stringer.
func (a Actor) String() string {
	return string(a)
}

// IsValid reports whether the value is a known Actor.
func (a Actor) IsValid() bool {
	for _, candidate := range validActors {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseActor converts raw input into a Actor.
func ParseActor(value string) (Actor, error) {
	for _, candidate := range validActors {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor %q", value)
}

// CancelledBy maps the acting party to the cancellation attribution.
func (a Actor) CancelledBy() CancelledBy {
	switch a {
	case ActorCustomer:
		return CancelledByCustomer
	case ActorVendor:
		return CancelledByVendor
	case ActorAdmin:
		return CancelledByAdmin
	default:
		return CancelledByNone
	}
}
