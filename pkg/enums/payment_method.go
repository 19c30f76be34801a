package enums

import (
	"fmt"
	"slices"
)

// PaymentMethod is how the customer pays for an order.
type PaymentMethod string

const (
	PaymentMethodOnline        PaymentMethod = "online"
	PaymentMethodPayOnDelivery PaymentMethod = "pay_on_delivery"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodOnline,
	PaymentMethodPayOnDelivery,
}

func (p PaymentMethod) String() string {
	return string(p)
}

func (p PaymentMethod) IsValid() bool {
	return slices.Contains(validPaymentMethods, p)
}

// CollectsCash reports whether the rider collects the bill at the door.
func (p PaymentMethod) CollectsCash() bool {
	return p == PaymentMethodPayOnDelivery
}

// IsPrepaid reports whether money moved through the gateway at checkout and
// can be refunded there.
func (p PaymentMethod) IsPrepaid() bool {
	return p == PaymentMethodOnline
}

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	if p := PaymentMethod(value); p.IsValid() {
		return p, nil
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
