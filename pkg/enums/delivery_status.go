package enums

import "fmt"

// DeliveryStatus is the canonical stage of physical fulfillment.
type DeliveryStatus string

const (
	DeliveryStatusPending           DeliveryStatus = "pending"
	DeliveryStatusAllotted          DeliveryStatus = "allotted"
	DeliveryStatusArrived           DeliveryStatus = "arrived"
	DeliveryStatusDispatched        DeliveryStatus = "dispatched"
	DeliveryStatusArrivedAtDoorstep DeliveryStatus = "arrived_at_doorstep"
	DeliveryStatusDelivered         DeliveryStatus = "delivered"
	DeliveryStatusCancelled         DeliveryStatus = "cancelled"
)

var validDeliveryStatuses = []DeliveryStatus{
	DeliveryStatusPending,
	DeliveryStatusAllotted,
	DeliveryStatusArrived,
	DeliveryStatusDispatched,
	DeliveryStatusArrivedAtDoorstep,
	DeliveryStatusDelivered,
	DeliveryStatusCancelled,
}

// String implements fmt.Stringer.
func (d DeliveryStatus) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DeliveryStatus.
func (d DeliveryStatus) IsValid() bool {
	for _, candidate := range validDeliveryStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDeliveryStatus converts raw input into a DeliveryStatus.
func ParseDeliveryStatus(value string) (DeliveryStatus, error) {
	for _, candidate := range validDeliveryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery status %q", value)
}

var deliveryStatusRank = map[DeliveryStatus]int{
	DeliveryStatusPending:           0,
	DeliveryStatusAllotted:          1,
	DeliveryStatusArrived:           2,
	DeliveryStatusDispatched:        3,
	DeliveryStatusArrivedAtDoorstep: 4,
	DeliveryStatusDelivered:         5,
}

// Rank positions the status in the fulfillment order. Cancelled has no rank
// and reports -1.
func (d DeliveryStatus) Rank() int {
	if rank, ok := deliveryStatusRank[d]; ok {
		return rank
	}
	return -1
}

// IsTerminal reports whether the status can no longer advance.
func (d DeliveryStatus) IsTerminal() bool {
	return d == DeliveryStatusDelivered || d == DeliveryStatusCancelled
}

// Before reports whether d strictly precedes other in the fulfillment order.
func (d DeliveryStatus) Before(other DeliveryStatus) bool {
	dr, or := d.Rank(), other.Rank()
	if dr < 0 || or < 0 {
		return false
	}
	return dr < or
}
