package settlement

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/payments"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

type stubEngine struct {
	cmds  []orders.Command
	order *models.Order
	err   error
}

func (s *stubEngine) Apply(_ context.Context, cmd orders.Command) (*orders.Result, error) {
	s.cmds = append(s.cmds, cmd)
	if s.err != nil {
		return nil, s.err
	}
	return &orders.Result{Order: s.order, Action: cmd.Action, Actor: cmd.Actor, Outcome: enums.OrderEventOutcomeApplied}, nil
}

type stubReasons struct {
	reason *models.CancellationReason
	err    error
}

func (s stubReasons) FindCancellationReason(context.Context, uuid.UUID, enums.Actor) (*models.CancellationReason, error) {
	return s.reason, s.err
}

type stubGateway struct {
	refunds []payments.RefundRequest
	result  enums.PaymentResult
	err     error
}

func (s *stubGateway) CreateIntent(context.Context, payments.IntentRequest) (*payments.Intent, error) {
	return nil, errors.New("not used")
}

func (s *stubGateway) FetchOutcome(context.Context, string) (*payments.Outcome, error) {
	return nil, errors.New("not used")
}

func (s *stubGateway) Refund(_ context.Context, req payments.RefundRequest) (*payments.Refund, error) {
	s.refunds = append(s.refunds, req)
	if s.err != nil {
		return nil, s.err
	}
	return &payments.Refund{ID: "re_1", Result: s.result}, nil
}

func newTestService(t *testing.T, engine *stubEngine, reasons stubReasons, gateway *stubGateway) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Engine:  engine,
		Reasons: reasons,
		Gateway: gateway,
		Logger:  logger.New(logger.Options{ServiceName: "settlement-test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return svc
}

func settledOnlineOrder() *models.Order {
	ref := "pi_123"
	note := "sorry about the delay"
	return &models.Order{
		ID:                          uuid.New(),
		PaymentMethod:               enums.PaymentMethodOnline,
		PaymentStatus:               enums.PaymentStatusCaptured,
		PaymentGatewayReference:     &ref,
		Currency:                    "inr",
		OrderStatus:                 enums.OrderStatusCancelled,
		RefundStatus:                enums.RefundStatusSettled,
		RefundSettledCustomerAmount: decimal.NewNullDecimal(decimal.RequireFromString("120.50")),
		RefundNoteToCustomer:        &note,
	}
}

func TestRequestCancellationUsesCatalogReason(t *testing.T) {
	engine := &stubEngine{order: &models.Order{ID: uuid.New()}}
	reasonID := uuid.New()
	svc := newTestService(t, engine, stubReasons{reason: &models.CancellationReason{ID: reasonID, Reason: "Ordered by mistake"}}, &stubGateway{})

	customer := uuid.New()
	_, err := svc.RequestCancellation(context.Background(), CancelRequest{
		OrderID:     engine.order.ID,
		Actor:       enums.ActorCustomer,
		ActorUserID: &customer,
		ReasonID:    &reasonID,
	})
	require.NoError(t, err)
	require.Len(t, engine.cmds, 1)
	require.Equal(t, enums.ActionCancel, engine.cmds[0].Action)
	payload := engine.cmds[0].Payload.(orders.CancelPayload)
	require.Equal(t, "Ordered by mistake", payload.Reason)
	require.Equal(t, reasonID, *payload.ReasonID)
}

func TestRequestCancellationValidation(t *testing.T) {
	engine := &stubEngine{order: &models.Order{ID: uuid.New()}}

	svc := newTestService(t, engine, stubReasons{}, &stubGateway{})
	_, err := svc.RequestCancellation(context.Background(), CancelRequest{OrderID: engine.order.ID, Actor: enums.ActorCustomer})
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	reasonID := uuid.New()
	svc = newTestService(t, engine, stubReasons{err: pkgerrors.New(pkgerrors.CodeValidation, "reason not available")}, &stubGateway{})
	_, err = svc.RequestCancellation(context.Background(), CancelRequest{OrderID: engine.order.ID, Actor: enums.ActorVendor, ReasonID: &reasonID})
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
	require.Empty(t, engine.cmds)

	// vendor and admin cancels may omit the reason
	_, err = newTestService(t, engine, stubReasons{}, &stubGateway{}).
		RequestCancellation(context.Background(), CancelRequest{OrderID: engine.order.ID, Actor: enums.ActorAdmin})
	require.NoError(t, err)
}

func TestSettleRefundPassesSplit(t *testing.T) {
	engine := &stubEngine{order: settledOnlineOrder()}
	svc := newTestService(t, engine, stubReasons{}, &stubGateway{})
	admin := uuid.New()

	_, err := svc.SettleRefund(context.Background(), engine.order.ID, &admin, Split{
		CustomerAmount:     decimal.RequireFromString("120.50"),
		VendorPayoutAmount: decimal.RequireFromString("100"),
		DeliveryCharges:    decimal.RequireFromString("40"),
		NoteToVendor:       "kitchen delay",
	})
	require.NoError(t, err)
	cmd := engine.cmds[0]
	require.Equal(t, enums.ActionSettleRefund, cmd.Action)
	require.Equal(t, enums.ActorAdmin, cmd.Actor)
	payload := cmd.Payload.(orders.SettleRefundPayload)
	require.True(t, payload.Total().Equal(decimal.RequireFromString("260.50")))
	require.Equal(t, &admin, payload.SettledBy)
}

func TestMarkForRefund(t *testing.T) {
	engine := &stubEngine{order: &models.Order{ID: uuid.New()}}
	svc := newTestService(t, engine, stubReasons{}, &stubGateway{})

	_, err := svc.MarkForRefund(context.Background(), engine.order.ID, nil)
	require.NoError(t, err)
	require.Equal(t, enums.ActionMarkForRefund, engine.cmds[0].Action)

	engine.err = pkgerrors.New(pkgerrors.CodeInvalidTransition, "not allowed")
	_, err = svc.MarkForRefund(context.Background(), engine.order.ID, nil)
	require.Equal(t, pkgerrors.CodeInvalidTransition, pkgerrors.As(err).Code())
}

func TestAfterCommitRefundsCustomerShare(t *testing.T) {
	order := settledOnlineOrder()
	engine := &stubEngine{order: order}
	gateway := &stubGateway{result: enums.PaymentResultRefunded}
	svc := newTestService(t, engine, stubReasons{}, gateway)

	svc.AfterCommit(context.Background(), &orders.Result{
		Order:   order,
		Action:  enums.ActionSettleRefund,
		Outcome: enums.OrderEventOutcomeApplied,
	})

	require.Len(t, gateway.refunds, 1)
	require.Equal(t, "pi_123", gateway.refunds[0].GatewayReference)
	require.True(t, gateway.refunds[0].Amount.Equal(decimal.RequireFromString("120.50")))
	require.Equal(t, "sorry about the delay", gateway.refunds[0].Reason)

	require.Len(t, engine.cmds, 1)
	require.Equal(t, enums.ActionPaymentEvent, engine.cmds[0].Action)
	require.Equal(t, enums.ActorSystem, engine.cmds[0].Actor)
	payload := engine.cmds[0].Payload.(orders.PaymentEventPayload)
	require.Equal(t, enums.PaymentResultRefunded, payload.Result)
	require.Equal(t, "re_1", payload.GatewayReference)
}

func TestAfterCommitPendingRefundWaitsForWebhook(t *testing.T) {
	order := settledOnlineOrder()
	engine := &stubEngine{order: order}
	gateway := &stubGateway{result: enums.PaymentResultPending}
	svc := newTestService(t, engine, stubReasons{}, gateway)

	refund, err := svc.RefundCustomerShare(context.Background(), order)
	require.NoError(t, err)
	require.Equal(t, "re_1", refund.ID)
	require.Empty(t, engine.cmds)
}

func TestRefundCustomerShareSkips(t *testing.T) {
	cases := map[string]func(o *models.Order){
		"pay on delivery": func(o *models.Order) { o.PaymentMethod = enums.PaymentMethodPayOnDelivery },
		"not captured":    func(o *models.Order) { o.PaymentStatus = enums.PaymentStatusPending },
		"zero share":      func(o *models.Order) { o.RefundSettledCustomerAmount = decimal.NewNullDecimal(decimal.Zero) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			order := settledOnlineOrder()
			mutate(order)
			gateway := &stubGateway{result: enums.PaymentResultRefunded}
			svc := newTestService(t, &stubEngine{order: order}, stubReasons{}, gateway)

			refund, err := svc.RefundCustomerShare(context.Background(), order)
			require.NoError(t, err)
			require.Nil(t, refund)
			require.Empty(t, gateway.refunds)
		})
	}
}

func TestAfterCommitIgnoresOtherActions(t *testing.T) {
	gateway := &stubGateway{result: enums.PaymentResultRefunded}
	svc := newTestService(t, &stubEngine{}, stubReasons{}, gateway)

	svc.AfterCommit(context.Background(), &orders.Result{Order: settledOnlineOrder(), Action: enums.ActionCancel, Outcome: enums.OrderEventOutcomeApplied})
	svc.AfterCommit(context.Background(), &orders.Result{Order: settledOnlineOrder(), Action: enums.ActionSettleRefund, Outcome: enums.OrderEventOutcomeDropped})
	require.Empty(t, gateway.refunds)
}
