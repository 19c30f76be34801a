// Package payments is the payment adapter: it creates gateway payments,
// reads their outcome and issues refunds, mapping gateway states onto
// PaymentResult.
package payments

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// IntentRequest describes a payment to collect for a payment session.
type IntentRequest struct {
	PaymentID  uuid.UUID
	CustomerID uuid.UUID
	VendorID   uuid.UUID
	Amount     decimal.Decimal
	Currency   string
}

// Intent is the gateway-side payment created for a session.
type Intent struct {
	GatewayReference string
	ClientSecret     string
	Result           enums.PaymentResult
}

// Outcome is the current state of a gateway payment.
type Outcome struct {
	GatewayReference string
	Result           enums.PaymentResult
	Amount           decimal.Decimal
	Currency         string
}

// Captured reports whether funds were captured.
func (o *Outcome) Captured() bool {
	return o != nil && o.Result == enums.PaymentResultCaptured
}

// RefundRequest refunds part or all of a captured payment.
type RefundRequest struct {
	OrderID          uuid.UUID
	GatewayReference string
	Amount           decimal.Decimal
	Currency         string
	Reason           string
}

// Refund is the gateway's record of a refund.
type Refund struct {
	ID     string
	Result enums.PaymentResult
}

// Gateway is implemented by payment providers.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	FetchOutcome(ctx context.Context, gatewayReference string) (*Outcome, error)
	Refund(ctx context.Context, req RefundRequest) (*Refund, error)
}
