package enums

import "fmt"

// CancelledBy records which party cancelled an order.
type CancelledBy string

const (
	CancelledByCustomer        CancelledBy = "customer"
	CancelledByVendor          CancelledBy = "vendor"
	CancelledByAdmin           CancelledBy = "admin"
	CancelledByDeliveryPartner CancelledBy = "delivery_partner"
	CancelledByNone            CancelledBy = "none"
)

var validCancelledBys = []CancelledBy{
	CancelledByCustomer,
	CancelledByVendor,
	CancelledByAdmin,
	CancelledByDeliveryPartner,
	CancelledByNone,
}

// String implements fmt.Stringer.
func (c CancelledBy) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CancelledBy.
func (c CancelledBy) IsValid() bool {
	for _, candidate := range validCancelledBys {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCancelledBy converts raw input into a CancelledBy.
func ParseCancelledBy(value string) (CancelledBy, error) {
	for _, candidate := range validCancelledBys {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cancelled by %q", value)
}
