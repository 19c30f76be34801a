package payments

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/refund"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/retry"
	pkgstripe "github.com/angelmondragon/orderflow-backend/pkg/stripe"
)

// MetadataPaymentID is the PaymentIntent metadata key carrying our payment_id.
const MetadataPaymentID = "payment_id"

var minorUnits = decimal.NewFromInt(100)

// stripeAPI is the subset of Stripe calls the gateway makes.
type stripeAPI interface {
	CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	CreateRefund(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClientWrapper struct{}

func (w *stripeClientWrapper) CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	params.Context = ctx
	return paymentintent.New(params)
}

func (w *stripeClientWrapper) GetPaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	params.Context = ctx
	return paymentintent.Get(id, params)
}

func (w *stripeClientWrapper) CreateRefund(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error) {
	params.Context = ctx
	return refund.New(params)
}

// StripeGateway collects payments through Stripe PaymentIntents.
type StripeGateway struct {
	api    stripeAPI
	policy retry.Policy
}

var _ Gateway = (*StripeGateway)(nil)

// NewStripeGateway requires an initialized Stripe client so the API key is set.
func NewStripeGateway(client *pkgstripe.Client, policy retry.Policy) (*StripeGateway, error) {
	if client == nil {
		return nil, errors.New("stripe client is required")
	}
	return &StripeGateway{api: &stripeClientWrapper{}, policy: policy}, nil
}

func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if !req.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toMinor(req.Amount)),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata(MetadataPaymentID, req.PaymentID.String())
	params.AddMetadata("customer_id", req.CustomerID.String())
	params.AddMetadata("vendor_id", req.VendorID.String())
	params.SetIdempotencyKey("payment-session-" + req.PaymentID.String())

	var pi *stripe.PaymentIntent
	if err := g.do(ctx, func(ctx context.Context) error {
		var err error
		pi, err = g.api.CreatePaymentIntent(ctx, params)
		return err
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe payment intent")
	}
	return &Intent{
		GatewayReference: pi.ID,
		ClientSecret:     pi.ClientSecret,
		Result:           resultForIntent(pi),
	}, nil
}

func (g *StripeGateway) FetchOutcome(ctx context.Context, gatewayReference string) (*Outcome, error) {
	ref := strings.TrimSpace(gatewayReference)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway reference is required")
	}
	params := &stripe.PaymentIntentParams{}
	params.AddExpand("latest_charge")

	var pi *stripe.PaymentIntent
	if err := g.do(ctx, func(ctx context.Context) error {
		var err error
		pi, err = g.api.GetPaymentIntent(ctx, ref, params)
		return err
	}); err != nil {
		if isStripeNotFound(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "stripe payment intent not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch stripe payment intent")
	}
	return &Outcome{
		GatewayReference: pi.ID,
		Result:           resultForIntent(pi),
		Amount:           fromMinor(pi.AmountReceived),
		Currency:         string(pi.Currency),
	}, nil
}

func (g *StripeGateway) Refund(ctx context.Context, req RefundRequest) (*Refund, error) {
	if strings.TrimSpace(req.GatewayReference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway reference is required")
	}
	if !req.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.GatewayReference),
		Amount:        stripe.Int64(toMinor(req.Amount)),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.AddMetadata("order_id", req.OrderID.String())
	if req.Reason != "" {
		params.AddMetadata("note", req.Reason)
	}
	params.SetIdempotencyKey("order-refund-" + req.OrderID.String())

	var r *stripe.Refund
	if err := g.do(ctx, func(ctx context.Context) error {
		var err error
		r, err = g.api.CreateRefund(ctx, params)
		return err
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe refund")
	}
	return &Refund{ID: r.ID, Result: resultForRefund(r)}, nil
}

func (g *StripeGateway) do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := g.policy.Do(ctx, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && !isRetryableStripeError(err) {
			return retry.Permanent(err)
		}
		return err
	})
	return err
}

// resultForIntent maps a PaymentIntent onto the canonical payment result.
func resultForIntent(pi *stripe.PaymentIntent) enums.PaymentResult {
	if pi == nil {
		return enums.PaymentResultPending
	}
	if pi.LatestCharge != nil && pi.LatestCharge.Refunded {
		return enums.PaymentResultRefunded
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return enums.PaymentResultCaptured
	case stripe.PaymentIntentStatusRequiresCapture:
		return enums.PaymentResultAuthorized
	case stripe.PaymentIntentStatusCanceled:
		return enums.PaymentResultFailed
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if pi.LastPaymentError != nil {
			return enums.PaymentResultFailed
		}
		return enums.PaymentResultPending
	default:
		return enums.PaymentResultPending
	}
}

func resultForRefund(r *stripe.Refund) enums.PaymentResult {
	if r == nil {
		return enums.PaymentResultPending
	}
	switch r.Status {
	case stripe.RefundStatusSucceeded:
		return enums.PaymentResultRefunded
	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		return enums.PaymentResultFailed
	default:
		return enums.PaymentResultPending
	}
}

func isRetryableStripeError(err error) bool {
	var serr *stripe.Error
	if !errors.As(err, &serr) {
		return true
	}
	return serr.HTTPStatusCode >= http.StatusInternalServerError ||
		serr.HTTPStatusCode == http.StatusTooManyRequests ||
		serr.Type == stripe.ErrorTypeAPI
}

func isStripeNotFound(err error) bool {
	var serr *stripe.Error
	return errors.As(err, &serr) && serr.HTTPStatusCode == http.StatusNotFound
}

func toMinor(amount decimal.Decimal) int64 {
	return amount.Mul(minorUnits).Round(0).IntPart()
}

func fromMinor(amount int64) decimal.Decimal {
	return decimal.NewFromInt(amount).Div(minorUnits)
}
