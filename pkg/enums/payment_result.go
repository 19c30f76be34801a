package enums

import "fmt"

// PaymentResult is the canonical gateway outcome for a payment.
type PaymentResult string

const (
	PaymentResultPending    PaymentResult = "pending"
	PaymentResultAuthorized PaymentResult = "authorized"
	PaymentResultCaptured   PaymentResult = "captured"
	PaymentResultFailed     PaymentResult = "failed"
	PaymentResultRefunded   PaymentResult = "refunded"
)

var validPaymentResults = []PaymentResult{
	PaymentResultPending,
	PaymentResultAuthorized,
	PaymentResultCaptured,
	PaymentResultFailed,
	PaymentResultRefunded,
}

// String implements fmt.Stringer.
func (p PaymentResult) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentResult.
func (p PaymentResult) IsValid() bool {
	for _, candidate := range validPaymentResults {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentResult converts raw input into a PaymentResult.
func ParsePaymentResult(value string) (PaymentResult, error) {
	for _, candidate := range validPaymentResults {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment result %q", value)
}
