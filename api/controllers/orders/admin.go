package orders

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow-backend/api/responses"
	"github.com/angelmondragon/orderflow-backend/api/validators"
	internalorders "github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/settlement"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

type refundService interface {
	SettleRefund(ctx context.Context, orderID uuid.UUID, adminID *uuid.UUID, split settlement.Split) (*models.Order, error)
	MarkForRefund(ctx context.Context, orderID uuid.UUID, adminID *uuid.UUID) (*models.Order, error)
}

type settleRefundRequest struct {
	CustomerAmount        decimal.Decimal `json:"refund_settled_customer_amount" validate:"money"`
	VendorPayoutAmount    decimal.Decimal `json:"refund_settled_vendor_payout_amount" validate:"money"`
	DeliveryCharges       decimal.Decimal `json:"refund_settled_delivery_charges" validate:"money"`
	NoteToCustomer        string          `json:"refund_settlement_note_to_customer" validate:"max=1000"`
	NoteToVendor          string          `json:"refund_settlement_note_to_vendor" validate:"max=1000"`
	NoteToDeliveryPartner string          `json:"refund_settlement_note_to_delivery_partner" validate:"max=1000"`
}

// AdminCancel cancels any live order.
func AdminCancel(svc cancellationService, reader internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return cancelHandler(svc, reader, logg, false)
}

// SettleRefund records the three-way split of a pending refund. The amounts
// must add up to the charged total; the engine enforces the tolerance.
func SettleRefund(svc refundService, reader internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || reader == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		caller, err := callerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload settleRefundRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.SettleRefund(r.Context(), orderID, caller.UserID, settlement.Split{
			CustomerAmount:        payload.CustomerAmount,
			VendorPayoutAmount:    payload.VendorPayoutAmount,
			DeliveryCharges:       payload.DeliveryCharges,
			NoteToCustomer:        validators.SanitizeString(payload.NoteToCustomer, 1000),
			NoteToVendor:          validators.SanitizeString(payload.NoteToVendor, 1000),
			NoteToDeliveryPartner: validators.SanitizeString(payload.NoteToDeliveryPartner, 1000),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reader.Describe(order, caller.viewer()))
	}
}

// MarkForRefund opens a refund on a completed order inside the eligibility window.
func MarkForRefund(svc refundService, reader internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || reader == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		caller, err := callerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.MarkForRefund(r.Context(), orderID, caller.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reader.Describe(order, caller.viewer()))
	}
}

// History lists the audit trail of an order.
func History(reader internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		caller, err := callerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		events, err := reader.History(r.Context(), orderID, caller.viewer())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"events": events})
	}
}
