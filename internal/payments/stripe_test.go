package payments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/retry"
)

type stubStripeAPI struct {
	createParams *stripe.PaymentIntentParams
	createResp   *stripe.PaymentIntent
	getResp      *stripe.PaymentIntent
	getErrs      []error
	getCalls     int
	refundParams *stripe.RefundParams
	refundResp   *stripe.Refund
}

func (s *stubStripeAPI) CreatePaymentIntent(_ context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	s.createParams = params
	return s.createResp, nil
}

func (s *stubStripeAPI) GetPaymentIntent(_ context.Context, _ string, _ *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	idx := s.getCalls
	s.getCalls++
	if idx < len(s.getErrs) && s.getErrs[idx] != nil {
		return nil, s.getErrs[idx]
	}
	return s.getResp, nil
}

func (s *stubStripeAPI) CreateRefund(_ context.Context, params *stripe.RefundParams) (*stripe.Refund, error) {
	s.refundParams = params
	return s.refundResp, nil
}

func newTestGateway(api stripeAPI) *StripeGateway {
	return &StripeGateway{
		api:    api,
		policy: retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaximumBackoff: time.Millisecond},
	}
}

func TestCreateIntentUsesMinorUnitsAndMetadata(t *testing.T) {
	api := &stubStripeAPI{createResp: &stripe.PaymentIntent{
		ID:           "pi_123",
		ClientSecret: "pi_123_secret",
		Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
	}}
	gw := newTestGateway(api)
	paymentID := uuid.New()

	intent, err := gw.CreateIntent(context.Background(), IntentRequest{
		PaymentID:  paymentID,
		CustomerID: uuid.New(),
		VendorID:   uuid.New(),
		Amount:     decimal.RequireFromString("175.50"),
		Currency:   "INR",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", intent.GatewayReference)
	assert.Equal(t, enums.PaymentResultPending, intent.Result)

	require.NotNil(t, api.createParams)
	assert.Equal(t, int64(17550), *api.createParams.Amount)
	assert.Equal(t, "inr", *api.createParams.Currency)
	assert.Equal(t, paymentID.String(), api.createParams.Metadata[MetadataPaymentID])
	require.NotNil(t, api.createParams.IdempotencyKey)
	assert.Equal(t, "payment-session-"+paymentID.String(), *api.createParams.IdempotencyKey)
}

func TestCreateIntentRejectsNonPositiveAmount(t *testing.T) {
	gw := newTestGateway(&stubStripeAPI{})
	_, err := gw.CreateIntent(context.Background(), IntentRequest{Amount: decimal.Zero, Currency: "inr"})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestResultForIntent(t *testing.T) {
	cases := []struct {
		name string
		pi   *stripe.PaymentIntent
		want enums.PaymentResult
	}{
		{name: "succeeded", pi: &stripe.PaymentIntent{Status: stripe.PaymentIntentStatusSucceeded}, want: enums.PaymentResultCaptured},
		{name: "requires capture", pi: &stripe.PaymentIntent{Status: stripe.PaymentIntentStatusRequiresCapture}, want: enums.PaymentResultAuthorized},
		{name: "processing", pi: &stripe.PaymentIntent{Status: stripe.PaymentIntentStatusProcessing}, want: enums.PaymentResultPending},
		{name: "requires action", pi: &stripe.PaymentIntent{Status: stripe.PaymentIntentStatusRequiresAction}, want: enums.PaymentResultPending},
		{name: "canceled", pi: &stripe.PaymentIntent{Status: stripe.PaymentIntentStatusCanceled}, want: enums.PaymentResultFailed},
		{name: "declined", pi: &stripe.PaymentIntent{
			Status:           stripe.PaymentIntentStatusRequiresPaymentMethod,
			LastPaymentError: &stripe.Error{Code: stripe.ErrorCodeCardDeclined},
		}, want: enums.PaymentResultFailed},
		{name: "awaiting method", pi: &stripe.PaymentIntent{Status: stripe.PaymentIntentStatusRequiresPaymentMethod}, want: enums.PaymentResultPending},
		{name: "refunded", pi: &stripe.PaymentIntent{
			Status:       stripe.PaymentIntentStatusSucceeded,
			LatestCharge: &stripe.Charge{Refunded: true},
		}, want: enums.PaymentResultRefunded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, resultForIntent(tc.pi))
		})
	}
}

func TestFetchOutcomeRetriesServerErrors(t *testing.T) {
	api := &stubStripeAPI{
		getErrs: []error{&stripe.Error{HTTPStatusCode: 502, Type: stripe.ErrorTypeAPI}},
		getResp: &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded, AmountReceived: 17500, Currency: "inr"},
	}
	gw := newTestGateway(api)

	out, err := gw.FetchOutcome(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.Equal(t, 2, api.getCalls)
	assert.True(t, out.Captured())
	assert.True(t, decimal.RequireFromString("175").Equal(out.Amount))
}

func TestFetchOutcomeDoesNotRetryClientErrors(t *testing.T) {
	api := &stubStripeAPI{
		getErrs: []error{&stripe.Error{HTTPStatusCode: 404, Type: stripe.ErrorTypeInvalidRequest}},
	}
	gw := newTestGateway(api)

	_, err := gw.FetchOutcome(context.Background(), "pi_missing")
	require.Error(t, err)
	assert.Equal(t, 1, api.getCalls)
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestFetchOutcomeExhaustedRetriesIsDependencyError(t *testing.T) {
	serverErr := &stripe.Error{HTTPStatusCode: 500, Type: stripe.ErrorTypeAPI}
	api := &stubStripeAPI{getErrs: []error{serverErr, serverErr, serverErr}}
	gw := newTestGateway(api)

	_, err := gw.FetchOutcome(context.Background(), "pi_1")
	require.Error(t, err)
	assert.Equal(t, 3, api.getCalls)
	require.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
}

func TestRefundParams(t *testing.T) {
	api := &stubStripeAPI{refundResp: &stripe.Refund{ID: "re_1", Status: stripe.RefundStatusSucceeded}}
	gw := newTestGateway(api)
	orderID := uuid.New()

	r, err := gw.Refund(context.Background(), RefundRequest{
		OrderID:          orderID,
		GatewayReference: "pi_1",
		Amount:           decimal.RequireFromString("105"),
		Currency:         "inr",
		Reason:           "late delivery",
	})
	require.NoError(t, err)
	assert.Equal(t, "re_1", r.ID)
	assert.Equal(t, enums.PaymentResultRefunded, r.Result)
	assert.Equal(t, int64(10500), *api.refundParams.Amount)
	assert.Equal(t, "pi_1", *api.refundParams.PaymentIntent)
	assert.Equal(t, "order-refund-"+orderID.String(), *api.refundParams.IdempotencyKey)
	assert.Equal(t, orderID.String(), api.refundParams.Metadata["order_id"])
}

func TestResultForRefund(t *testing.T) {
	assert.Equal(t, enums.PaymentResultPending, resultForRefund(&stripe.Refund{Status: stripe.RefundStatusPending}))
	assert.Equal(t, enums.PaymentResultFailed, resultForRefund(&stripe.Refund{Status: stripe.RefundStatusFailed}))
}
