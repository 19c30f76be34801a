// Package checkout turns a customer's cart into an order: immediately for
// pay-on-delivery, and once the gateway reports a captured payment otherwise.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/payments"
	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
)

type cartReader interface {
	ActiveCart(ctx context.Context, customerID uuid.UUID) ([]models.CartItem, error)
}

type vendorReader interface {
	FindVendor(ctx context.Context, id uuid.UUID) (*models.Vendor, error)
}

type orderPlacer interface {
	Place(ctx context.Context, order *models.Order, actor *outbox.ActorRef) (*models.Order, bool, error)
}

type orderFinder interface {
	FindByPaymentID(ctx context.Context, paymentID string) (*models.Order, error)
}

// Service places orders.
type Service interface {
	InitiatePlaceOrder(ctx context.Context, customerID uuid.UUID, input PlaceOrderInput) (*PlaceOrderResult, error)
	ConfirmPayment(ctx context.Context, requester Requester, paymentID string) (*models.Order, error)
}

// PlaceOrderInput is the customer's checkout choice.
type PlaceOrderInput struct {
	IsPOD           bool
	DeliveryService *enums.DeliveryService
}

// PlaceOrderResult carries either the created order (pay on delivery) or
// the payment session the client must complete.
type PlaceOrderResult struct {
	Order        *models.Order
	PaymentID    string
	ClientSecret string
	Amount       string
	Currency     string
}

// Requester identifies who asked for a payment confirmation. The system
// actor confirms on behalf of the gateway webhook and the reconciler.
type Requester struct {
	Actor  enums.Actor
	UserID uuid.UUID
}

type ServiceParams struct {
	Cart       cartReader
	Vendors    vendorReader
	Sessions   Repository
	Orders     orderFinder
	Placer     orderPlacer
	Gateway    payments.Gateway
	Pricing    Pricing
	Delivery   config.DeliveryConfig
	SessionTTL time.Duration
	Logger     *logger.Logger
	Now        func() time.Time
}

type service struct {
	cart       cartReader
	vendors    vendorReader
	sessions   Repository
	orders     orderFinder
	placer     orderPlacer
	gateway    payments.Gateway
	pricing    Pricing
	defaultSvc enums.DeliveryService
	sessionTTL time.Duration
	logg       *logger.Logger
	now        func() time.Time
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Cart == nil {
		return nil, fmt.Errorf("cart reader required")
	}
	if params.Vendors == nil {
		return nil, fmt.Errorf("vendor reader required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("payment session repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order finder required")
	}
	if params.Placer == nil {
		return nil, fmt.Errorf("order placer required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	defaultSvc, err := enums.ParseDeliveryService(params.Delivery.DefaultService)
	if err != nil {
		return nil, fmt.Errorf("default delivery service: %w", err)
	}
	ttl := params.SessionTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		cart:       params.Cart,
		vendors:    params.Vendors,
		sessions:   params.Sessions,
		orders:     params.Orders,
		placer:     params.Placer,
		gateway:    params.Gateway,
		pricing:    params.Pricing,
		defaultSvc: defaultSvc,
		sessionTTL: ttl,
		logg:       params.Logger,
		now:        func() time.Time { return now().UTC() },
	}, nil
}

func (s *service) InitiatePlaceOrder(ctx context.Context, customerID uuid.UUID, input PlaceOrderInput) (*PlaceOrderResult, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	deliveryService := s.defaultSvc
	if input.DeliveryService != nil {
		if !input.DeliveryService.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid delivery service")
		}
		deliveryService = *input.DeliveryService
	}

	items, err := s.cart.ActiveCart(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	vendor, err := s.vendors.FindVendor(ctx, items[0].VendorID)
	if err != nil {
		return nil, err
	}
	if !vendor.IsOpen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor is not accepting orders")
	}
	snapshot, err := Quote(items, vendor, s.pricing)
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithUserID(ctx, customerID.String())
	if input.IsPOD {
		order := orderFromSnapshot(snapshot, s.pricing.Currency)
		order.CustomerID = customerID
		order.VendorID = vendor.ID
		order.PaymentMethod = enums.PaymentMethodPayOnDelivery
		order.PaymentStatus = enums.PaymentStatusPending
		order.DeliveryService = deliveryService

		placed, _, err := s.placer.Place(ctx, order, customerActor(customerID))
		if err != nil {
			return nil, err
		}
		return &PlaceOrderResult{
			Order:    placed,
			Amount:   placed.TotalAmount.StringFixed(2),
			Currency: placed.Currency,
		}, nil
	}

	sessionID := uuid.New()
	intent, err := s.gateway.CreateIntent(ctx, payments.IntentRequest{
		PaymentID:  sessionID,
		CustomerID: customerID,
		VendorID:   vendor.ID,
		Amount:     snapshot.Invoice.Total,
		Currency:   s.pricing.Currency,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := &models.PaymentSession{
		ID:               sessionID,
		CustomerID:       customerID,
		VendorID:         vendor.ID,
		Status:           enums.PaymentSessionStatusPending,
		Amount:           snapshot.Invoice.Total,
		Currency:         s.pricing.Currency,
		GatewayReference: intent.GatewayReference,
		DeliveryService:  deliveryService,
		Snapshot:         snapshot,
		ExpiresAt:        now.Add(s.sessionTTL),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment session")
	}
	s.logg.Info(s.logg.WithField(ctx, "payment_id", sessionID.String()), "payment session created")

	return &PlaceOrderResult{
		PaymentID:    session.PaymentID(),
		ClientSecret: intent.ClientSecret,
		Amount:       session.Amount.StringFixed(2),
		Currency:     session.Currency,
	}, nil
}

// ConfirmPayment materializes the order once the gateway reports the payment
// as captured. Repeated calls return the same order.
func (s *service) ConfirmPayment(ctx context.Context, requester Requester, paymentID string) (*models.Order, error) {
	id, err := uuid.Parse(strings.TrimSpace(paymentID))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment id")
	}
	ctx = s.logg.WithField(ctx, "payment_id", id.String())

	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment session")
	}
	if requester.Actor != enums.ActorSystem && requester.UserID != session.CustomerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}

	if session.OrderID != nil {
		order, err := s.orders.FindByPaymentID(ctx, session.PaymentID())
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order for payment")
		}
	}

	outcome, err := s.gateway.FetchOutcome(ctx, session.GatewayReference)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.sessions.MarkChecked(ctx, session.ID, outcome.Result, now); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "recording payment check failed")
	}
	if !outcome.Captured() {
		return nil, pkgerrors.New(pkgerrors.CodePaymentNotCaptured, "payment has not been captured").
			WithDetails(map[string]any{"payment_result": outcome.Result})
	}
	if !outcome.Amount.IsZero() && !outcome.Amount.Equal(session.Amount) {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"captured_amount": outcome.Amount.StringFixed(2),
			"session_amount":  session.Amount.StringFixed(2),
		}), "captured amount differs from checkout amount")
	}

	order := orderFromSnapshot(session.Snapshot, session.Currency)
	paymentRef := session.PaymentID()
	gatewayRef := outcome.GatewayReference
	order.CustomerID = session.CustomerID
	order.VendorID = session.VendorID
	order.PaymentMethod = enums.PaymentMethodOnline
	order.PaymentStatus = enums.PaymentStatusCaptured
	order.PaymentID = &paymentRef
	order.PaymentGatewayReference = &gatewayRef
	order.DeliveryService = session.DeliveryService

	placed, created, err := s.placer.Place(ctx, order, customerActor(session.CustomerID))
	if err != nil {
		return nil, err
	}
	if err := s.sessions.MarkCaptured(ctx, session.ID, placed.ID, now); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "linking payment session to order failed")
	}
	if !created {
		s.logg.Info(s.logg.WithOrderID(ctx, placed.ID.String()), "payment already confirmed")
	}
	return placed, nil
}

func customerActor(customerID uuid.UUID) *outbox.ActorRef {
	id := customerID
	return &outbox.ActorRef{UserID: &id, Role: string(enums.ActorCustomer)}
}
