package enums

import "fmt"

// DeliveryService selects the delivery provider adapter for an order.
type DeliveryService string

const (
	DeliveryServiceFleet     DeliveryService = "fleet"
	DeliveryServiceShadowfax DeliveryService = "shadowfax"
)

var validDeliveryServices = []DeliveryService{
	DeliveryServiceFleet,
	DeliveryServiceShadowfax,
}

// String implements fmt.Stringer.
func (d DeliveryService) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DeliveryService.
func (d DeliveryService) IsValid() bool {
	for _, candidate := range validDeliveryServices {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDeliveryService converts raw input into a DeliveryService.
func ParseDeliveryService(value string) (DeliveryService, error) {
	for _, candidate := range validDeliveryServices {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery service %q", value)
}
