package enums

import "fmt"

// AcceptanceStatus captures the vendor's decision on a placed order.
type AcceptanceStatus string

const (
	AcceptanceStatusPending  AcceptanceStatus = "pending"
	AcceptanceStatusAccepted AcceptanceStatus = "accepted"
	AcceptanceStatusRejected AcceptanceStatus = "rejected"
)

var validAcceptanceStatuses = []AcceptanceStatus{
	AcceptanceStatusPending,
	AcceptanceStatusAccepted,
	AcceptanceStatusRejected,
}

// String implements fmt.Stringer.
func (a AcceptanceStatus) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AcceptanceStatus.
func (a AcceptanceStatus) IsValid() bool {
	for _, candidate := range validAcceptanceStatuses {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAcceptanceStatus converts raw input into a AcceptanceStatus.
func ParseAcceptanceStatus(value string) (AcceptanceStatus, error) {
	for _, candidate := range validAcceptanceStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid acceptance status %q", value)
}
