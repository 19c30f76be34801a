package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/api/middleware"
	"github.com/angelmondragon/orderflow-backend/api/responses"
	"github.com/angelmondragon/orderflow-backend/api/validators"
	"github.com/angelmondragon/orderflow-backend/internal/checkout"
	internalorders "github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/settlement"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

type transitionApplier interface {
	Apply(ctx context.Context, cmd internalorders.Command) (*internalorders.Result, error)
}

type cancellationService interface {
	RequestCancellation(ctx context.Context, req settlement.CancelRequest) (*models.Order, error)
}

type placeOrderRequest struct {
	IsPOD           bool    `json:"is_pod"`
	DeliveryService *string `json:"delivery_service,omitempty" validate:"omitempty,oneof=fleet shadowfax"`
}

type paymentSessionResponse struct {
	PaymentID    string `json:"payment_id"`
	ClientSecret string `json:"client_secret,omitempty"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
}

type cancelRequest struct {
	CancellationReasonID *string `json:"cancellation_reason_id,omitempty" validate:"omitempty,uuid"`
	CancellationReason   string  `json:"cancellation_reason" validate:"max=500"`
}

type rateRequest struct {
	Rating int    `json:"rating" validate:"required,min=1,max=5"`
	Review string `json:"review" validate:"max=2000"`
}

// PlaceOrder snapshots the customer's cart. Pay-on-delivery orders are created
// immediately; online orders return the payment session to complete.
func PlaceOrder(svc checkout.Service, reader internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || reader == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		caller, err := callerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload placeOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := checkout.PlaceOrderInput{IsPOD: payload.IsPOD}
		if payload.DeliveryService != nil {
			svcName, err := enums.ParseDeliveryService(*payload.DeliveryService)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid delivery service"))
				return
			}
			input.DeliveryService = &svcName
		}

		result, err := svc.InitiatePlaceOrder(r.Context(), *caller.UserID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if result.Order != nil {
			responses.WriteSuccessStatus(w, http.StatusCreated, reader.Describe(result.Order, caller.viewer()))
			return
		}
		responses.WriteSuccess(w, paymentSessionResponse{
			PaymentID:    result.PaymentID,
			ClientSecret: result.ClientSecret,
			Amount:       result.Amount,
			Currency:     result.Currency,
		})
	}
}

// ConfirmPayment materializes the order for a captured payment. Repeated calls
// return the same order.
func ConfirmPayment(svc checkout.Service, reader internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || reader == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		caller, err := callerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		paymentID := strings.TrimSpace(chi.URLParam(r, "paymentId"))
		if paymentID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required"))
			return
		}

		order, err := svc.ConfirmPayment(r.Context(), checkout.Requester{Actor: caller.Actor, UserID: *caller.UserID}, paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reader.Describe(order, caller.viewer()))
	}
}

// Detail returns the order as seen by the caller. Orders outside the caller's
// scope read as not found.
func Detail(reader internalorders.Service, logg *logger.Logger) http.HandlerFunc {
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

		detail, err := reader.Get(r.Context(), orderID, caller.viewer())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// CustomerCancel cancels the caller's own order before it is dispatched.
func CustomerCancel(svc cancellationService, reader internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return cancelHandler(svc, reader, logg, true)
}

// Rate records the customer's rating of a completed order.
func Rate(engine transitionApplier, reader internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil || reader == nil {
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

		var payload rateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		res, err := engine.Apply(r.Context(), caller.command(orderID, enums.ActionRate, internalorders.RatePayload{
			Rating: payload.Rating,
			Review: validators.SanitizeString(payload.Review, 2000),
		}))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reader.Describe(res.Order, caller.viewer()))
	}
}

// cancelHandler is shared by the customer, vendor and admin cancel routes.
// The body is optional except for customers, who must give a reason.
func cancelHandler(svc cancellationService, reader internalorders.Service, logg *logger.Logger, bodyRequired bool) http.HandlerFunc {
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

		var payload cancelRequest
		if bodyRequired || r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		req := settlement.CancelRequest{
			OrderID:     orderID,
			Actor:       caller.Actor,
			ActorUserID: caller.UserID,
			VendorID:    caller.VendorID,
			ReasonText:  validators.SanitizeString(payload.CancellationReason, 500),
		}
		if payload.CancellationReasonID != nil {
			reasonID, err := uuid.Parse(*payload.CancellationReasonID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cancellation reason id"))
				return
			}
			req.ReasonID = &reasonID
		}

		order, err := svc.RequestCancellation(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reader.Describe(order, caller.viewer()))
	}
}

type caller struct {
	Actor    enums.Actor
	UserID   *uuid.UUID
	VendorID *uuid.UUID
}

func (c caller) viewer() internalorders.Viewer {
	return internalorders.Viewer{Actor: c.Actor, UserID: c.UserID, VendorID: c.VendorID}
}

func (c caller) command(orderID uuid.UUID, action enums.TransitionAction, payload any) internalorders.Command {
	return internalorders.Command{
		OrderID:     orderID,
		Actor:       c.Actor,
		ActorUserID: c.UserID,
		VendorID:    c.VendorID,
		Action:      action,
		Payload:     payload,
	}
}

func callerFromRequest(r *http.Request) (caller, error) {
	ctx := r.Context()
	role, err := enums.ParseActor(middleware.RoleFromContext(ctx))
	if err != nil {
		return caller{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor role missing")
	}

	rawUser := middleware.UserIDFromContext(ctx)
	if rawUser == "" {
		return caller{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(rawUser)
	if err != nil {
		return caller{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}

	out := caller{Actor: role, UserID: &userID}
	if raw := middleware.VendorIDFromContext(ctx); raw != "" {
		vendorID, err := uuid.Parse(raw)
		if err != nil {
			return caller{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid vendor id")
		}
		out.VendorID = &vendorID
	}
	if role == enums.ActorVendor && out.VendorID == nil {
		return caller{}, pkgerrors.New(pkgerrors.CodeForbidden, "vendor context required")
	}
	return out, nil
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return orderID, nil
}
