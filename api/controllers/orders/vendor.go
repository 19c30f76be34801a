package orders

import (
	"net/http"

	"github.com/angelmondragon/orderflow-backend/api/responses"
	"github.com/angelmondragon/orderflow-backend/api/validators"
	internalorders "github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

type vendorDecisionRequest struct {
	Accept          *bool  `json:"accept" validate:"required"`
	Reason          string `json:"reason" validate:"max=500"`
	PreparationTime *int   `json:"preparation_time,omitempty" validate:"omitempty,min=1,max=240"`
}

// VendorDecision accepts or rejects a placed order. The rejection reason is optional.
func VendorDecision(engine transitionApplier, reader internalorders.Service, logg *logger.Logger) http.HandlerFunc {
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

		var payload vendorDecisionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cmd := caller.command(orderID, enums.ActionAccept, internalorders.AcceptPayload{
			PreparationTimeMinutes: payload.PreparationTime,
		})
		if !*payload.Accept {
			cmd = caller.command(orderID, enums.ActionReject, internalorders.RejectPayload{
				Reason: validators.SanitizeString(payload.Reason, 500),
			})
		}

		res, err := engine.Apply(r.Context(), cmd)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reader.Describe(res.Order, caller.viewer()))
	}
}

// VendorReady marks an accepted order as ready for pickup.
func VendorReady(engine transitionApplier, reader internalorders.Service, logg *logger.Logger) http.HandlerFunc {
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

		res, err := engine.Apply(r.Context(), caller.command(orderID, enums.ActionMarkReady, nil))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reader.Describe(res.Order, caller.viewer()))
	}
}

// VendorCancel cancels an order on the vendor's behalf.
func VendorCancel(svc cancellationService, reader internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return cancelHandler(svc, reader, logg, false)
}
