// Package settlement handles cancellation requests and the admin refund
// workflow, including the gateway refund of the customer's share.
package settlement

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/payments"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

type transitionApplier interface {
	Apply(ctx context.Context, cmd orders.Command) (*orders.Result, error)
}

type reasonReader interface {
	FindCancellationReason(ctx context.Context, id uuid.UUID, actor enums.Actor) (*models.CancellationReason, error)
}

// CancelRequest is one actor's request to cancel an order.
type CancelRequest struct {
	OrderID     uuid.UUID
	Actor       enums.Actor
	ActorUserID *uuid.UUID
	VendorID    *uuid.UUID
	ReasonID    *uuid.UUID
	ReasonText  string
}

// Split divides the charged amount between customer, vendor and delivery partner.
type Split struct {
	CustomerAmount        decimal.Decimal
	VendorPayoutAmount    decimal.Decimal
	DeliveryCharges       decimal.Decimal
	NoteToCustomer        string
	NoteToVendor          string
	NoteToDeliveryPartner string
}

type ServiceParams struct {
	Engine  transitionApplier
	Reasons reasonReader
	Gateway payments.Gateway
	Logger  *logger.Logger
}

// Service exposes cancellation and refund settlement.
type Service struct {
	engine  transitionApplier
	reasons reasonReader
	gateway payments.Gateway
	logg    *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Engine == nil {
		return nil, errors.New("transition engine is required")
	}
	if params.Reasons == nil {
		return nil, errors.New("cancellation reason reader is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		engine:  params.Engine,
		reasons: params.Reasons,
		gateway: params.Gateway,
		logg:    params.Logger,
	}, nil
}

// RequestCancellation validates the picked reason against the catalog and
// applies the cancel transition. Customers must give a reason.
func (s *Service) RequestCancellation(ctx context.Context, req CancelRequest) (*models.Order, error) {
	text := strings.TrimSpace(req.ReasonText)
	if req.ReasonID != nil {
		reason, err := s.reasons.FindCancellationReason(ctx, *req.ReasonID, req.Actor)
		if err != nil {
			return nil, err
		}
		if text == "" {
			text = reason.Reason
		}
	}
	if req.Actor == enums.ActorCustomer && req.ReasonID == nil && text == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason is required")
	}

	res, err := s.engine.Apply(ctx, orders.Command{
		OrderID:     req.OrderID,
		Actor:       req.Actor,
		ActorUserID: req.ActorUserID,
		VendorID:    req.VendorID,
		Action:      enums.ActionCancel,
		Payload:     orders.CancelPayload{ReasonID: req.ReasonID, Reason: text},
	})
	if err != nil {
		return nil, err
	}
	return res.Order, nil
}

// SettleRefund records the admin's split. The gateway refund runs from the
// engine's after-commit hook.
func (s *Service) SettleRefund(ctx context.Context, orderID uuid.UUID, adminID *uuid.UUID, split Split) (*models.Order, error) {
	res, err := s.engine.Apply(ctx, orders.Command{
		OrderID:     orderID,
		Actor:       enums.ActorAdmin,
		ActorUserID: adminID,
		Action:      enums.ActionSettleRefund,
		Payload: orders.SettleRefundPayload{
			CustomerAmount:        split.CustomerAmount,
			VendorPayoutAmount:    split.VendorPayoutAmount,
			DeliveryCharges:       split.DeliveryCharges,
			NoteToCustomer:        split.NoteToCustomer,
			NoteToVendor:          split.NoteToVendor,
			NoteToDeliveryPartner: split.NoteToDeliveryPartner,
			SettledBy:             adminID,
		},
	})
	if err != nil {
		return nil, err
	}
	return res.Order, nil
}

// MarkForRefund opens a refund on a completed order.
func (s *Service) MarkForRefund(ctx context.Context, orderID uuid.UUID, adminID *uuid.UUID) (*models.Order, error) {
	res, err := s.engine.Apply(ctx, orders.Command{
		OrderID:     orderID,
		Actor:       enums.ActorAdmin,
		ActorUserID: adminID,
		Action:      enums.ActionMarkForRefund,
	})
	if err != nil {
		return nil, err
	}
	return res.Order, nil
}

// AfterCommit refunds the customer's share at the gateway once a settlement
// is committed, then folds the refund back into the order.
func (s *Service) AfterCommit(ctx context.Context, res *orders.Result) {
	if !res.Applied() || res.Action != enums.ActionSettleRefund {
		return
	}
	if _, err := s.RefundCustomerShare(ctx, res.Order); err != nil {
		s.logg.Error(s.logg.WithOrderID(ctx, res.Order.ID.String()), "gateway refund failed", err)
	}
}

// RefundCustomerShare issues the gateway refund for a settled online order.
// Orders with nothing to refund are skipped.
func (s *Service) RefundCustomerShare(ctx context.Context, order *models.Order) (*payments.Refund, error) {
	if order == nil || s.gateway == nil {
		return nil, nil
	}
	if !order.PaymentMethod.IsPrepaid() || !order.PaymentCaptured() {
		return nil, nil
	}
	if !order.RefundSettledCustomerAmount.Valid || !order.RefundSettledCustomerAmount.Decimal.IsPositive() {
		return nil, nil
	}
	if order.PaymentGatewayReference == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order has no gateway reference")
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	note := ""
	if order.RefundNoteToCustomer != nil {
		note = *order.RefundNoteToCustomer
	}
	refund, err := s.gateway.Refund(ctx, payments.RefundRequest{
		OrderID:          order.ID,
		GatewayReference: *order.PaymentGatewayReference,
		Amount:           order.RefundSettledCustomerAmount.Decimal,
		Currency:         order.Currency,
		Reason:           note,
	})
	if err != nil {
		return nil, err
	}
	if refund.Result != enums.PaymentResultRefunded {
		s.logg.Info(s.logg.WithField(ctx, "refund_id", refund.ID), "gateway refund pending")
		return refund, nil
	}

	if _, err := s.engine.Apply(ctx, orders.Command{
		OrderID: order.ID,
		Actor:   enums.ActorSystem,
		Action:  enums.ActionPaymentEvent,
		Payload: orders.PaymentEventPayload{
			Result:           enums.PaymentResultRefunded,
			GatewayReference: refund.ID,
			Amount:           order.RefundSettledCustomerAmount.Decimal,
		},
	}); err != nil {
		return refund, err
	}
	return refund, nil
}
