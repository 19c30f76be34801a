package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/checkout"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/payments"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

type paymentConfirmer interface {
	ConfirmPayment(ctx context.Context, requester checkout.Requester, paymentID string) (*models.Order, error)
}

type sessionRepository interface {
	FindByGatewayReference(ctx context.Context, ref string) (*models.PaymentSession, error)
	MarkChecked(ctx context.Context, id uuid.UUID, result enums.PaymentResult, at time.Time) error
}

type transitionApplier interface {
	Apply(ctx context.Context, cmd orders.Command) (*orders.Result, error)
}

type ServiceParams struct {
	Checkout paymentConfirmer
	Sessions sessionRepository
	Engine   transitionApplier
	Logger   *logger.Logger
	Now      func() time.Time
}

// Service folds Stripe payment events into payment sessions and orders.
type Service struct {
	checkout paymentConfirmer
	sessions sessionRepository
	engine   transitionApplier
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Checkout == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout service required")
	}
	if params.Sessions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment session repo required")
	}
	if params.Engine == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transition engine required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		checkout: params.Checkout,
		sessions: params.Sessions,
		engine:   params.Engine,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// HandleEvent processes one verified Stripe event. Event types the service
// does not act on are acknowledged without effect.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"stripe_event_id": event.ID, "stripe_event_type": string(event.Type)})

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
		}
		return s.paymentSucceeded(ctx, &intent)
	case stripe.EventTypePaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
		}
		return s.paymentFailed(ctx, &intent)
	case stripe.EventTypeChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge event")
		}
		return s.chargeRefunded(ctx, &charge)
	default:
		return nil
	}
}

func (s *Service) paymentSucceeded(ctx context.Context, intent *stripe.PaymentIntent) error {
	paymentID := strings.TrimSpace(intent.Metadata[payments.MetadataPaymentID])
	if paymentID == "" {
		session, err := s.findSession(ctx, intent.ID)
		if err != nil || session == nil {
			return err
		}
		paymentID = session.PaymentID()
	}

	order, err := s.checkout.ConfirmPayment(ctx, checkout.Requester{Actor: enums.ActorSystem}, paymentID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			s.logg.Warn(s.logg.WithField(ctx, "payment_id", paymentID), "payment session not found for succeeded intent")
			return nil
		}
		return err
	}
	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "payment confirmed from webhook")
	return nil
}

func (s *Service) paymentFailed(ctx context.Context, intent *stripe.PaymentIntent) error {
	session, err := s.findSession(ctx, intent.ID)
	if err != nil || session == nil {
		return err
	}
	if err := s.sessions.MarkChecked(ctx, session.ID, enums.PaymentResultFailed, s.now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record failed payment")
	}
	return nil
}

func (s *Service) chargeRefunded(ctx context.Context, charge *stripe.Charge) error {
	if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" || charge.AmountRefunded <= 0 {
		return nil
	}
	session, err := s.findSession(ctx, charge.PaymentIntent.ID)
	if err != nil || session == nil {
		return err
	}
	if session.OrderID == nil {
		s.logg.Warn(s.logg.WithField(ctx, "payment_id", session.PaymentID()), "refund for payment without order")
		return nil
	}

	ref := charge.ID
	if charge.Refunds != nil && len(charge.Refunds.Data) > 0 && charge.Refunds.Data[0] != nil {
		ref = charge.Refunds.Data[0].ID
	}
	_, err = s.engine.Apply(ctx, orders.Command{
		OrderID: *session.OrderID,
		Actor:   enums.ActorSystem,
		Action:  enums.ActionPaymentEvent,
		Payload: orders.PaymentEventPayload{
			Result:           enums.PaymentResultRefunded,
			GatewayReference: ref,
			Amount:           decimal.NewFromInt(charge.AmountRefunded).Div(decimal.NewFromInt(100)),
		},
	})
	return err
}

// findSession returns nil without error when the intent was not created by checkout.
func (s *Service) findSession(ctx context.Context, intentID string) (*models.PaymentSession, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}
	session, err := s.sessions.FindByGatewayReference(ctx, intentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Warn(s.logg.WithField(ctx, "payment_intent", intentID), "no payment session for intent")
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment session")
	}
	return session, nil
}
