package enums

import "fmt"

// OrderEventOutcome labels an audit row as applied or dropped.
type OrderEventOutcome string

const (
	OrderEventOutcomeApplied OrderEventOutcome = "applied"
	OrderEventOutcomeDropped OrderEventOutcome = "dropped"
)

var validOrderEventOutcomes = []OrderEventOutcome{
	OrderEventOutcomeApplied,
	OrderEventOutcomeDropped,
}

// String implements fmt.Stringer.
func (o OrderEventOutcome) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderEventOutcome.
func (o OrderEventOutcome) IsValid() bool {
	for _, candidate := range validOrderEventOutcomes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOrderEventOutcome converts raw input into a OrderEventOutcome.
func ParseOrderEventOutcome(value string) (OrderEventOutcome, error) {
	for _, candidate := range validOrderEventOutcomes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order event outcome %q", value)
}
