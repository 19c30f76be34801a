package enums

import "fmt"

// PaymentSessionStatus tracks a gateway session created before an order exists.
type PaymentSessionStatus string

const (
	PaymentSessionStatusPending  PaymentSessionStatus = "pending"
	PaymentSessionStatusCaptured PaymentSessionStatus = "captured"
	PaymentSessionStatusExpired  PaymentSessionStatus = "expired"
)

var validPaymentSessionStatuses = []PaymentSessionStatus{
	PaymentSessionStatusPending,
	PaymentSessionStatusCaptured,
	PaymentSessionStatusExpired,
}

// String implements fmt.Stringer.
func (p PaymentSessionStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentSessionStatus.
func (p PaymentSessionStatus) IsValid() bool {
	for _, candidate := range validPaymentSessionStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentSessionStatus converts raw input into a PaymentSessionStatus.
func ParsePaymentSessionStatus(value string) (PaymentSessionStatus, error) {
	for _, candidate := range validPaymentSessionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment session status %q", value)
}
