package enums

import (
	"fmt"
	"slices"
)

// RefundStatus tracks refund settlement for a cancelled or disputed order.
type RefundStatus string

const (
	RefundStatusNone    RefundStatus = "none"
	RefundStatusPending RefundStatus = "pending"
	RefundStatusSettled RefundStatus = "settled"
)

var validRefundStatuses = []RefundStatus{
	RefundStatusNone,
	RefundStatusPending,
	RefundStatusSettled,
}

func (r RefundStatus) String() string {
	return string(r)
}

func (r RefundStatus) IsValid() bool {
	return slices.Contains(validRefundStatuses, r)
}

// IsOpen reports whether an admin still has to settle the refund split.
func (r RefundStatus) IsOpen() bool {
	return r == RefundStatusPending
}

func ParseRefundStatus(value string) (RefundStatus, error) {
	if r := RefundStatus(value); r.IsValid() {
		return r, nil
	}
	return "", fmt.Errorf("invalid refund status %q", value)
}
