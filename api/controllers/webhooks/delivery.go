package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/orderflow-backend/api/responses"
	"github.com/angelmondragon/orderflow-backend/internal/delivery"
	deliverywebhook "github.com/angelmondragon/orderflow-backend/internal/webhooks/delivery"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

type deliveryIngester interface {
	Ingest(ctx context.Context, providerName string, kind delivery.EventKind, body []byte) deliverywebhook.Result
}

type deliveryAck struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome,omitempty"`
}

// DeliveryStatus acknowledges a partner status callback.
func DeliveryStatus(svc deliveryIngester, logg *logger.Logger) http.HandlerFunc {
	return deliveryCallback(svc, delivery.EventKindStatus, logg)
}

// DeliveryLocation acknowledges a rider location ping.
func DeliveryLocation(svc deliveryIngester, logg *logger.Logger) http.HandlerFunc {
	return deliveryCallback(svc, delivery.EventKindLocation, logg)
}

// deliveryCallback always answers 200 so partners do not retry: anomalies are
// logged by the ingestion service and surfaced only as the ack outcome.
func deliveryCallback(svc deliveryIngester, kind delivery.EventKind, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		provider := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))

		if svc == nil {
			if logg != nil {
				logg.Warn(logg.WithProvider(ctx, provider), "delivery webhook service unavailable")
			}
			responses.WriteSuccess(w, deliveryAck{Received: true})
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
		if err != nil {
			if logg != nil {
				logg.Warn(logg.WithField(logg.WithProvider(ctx, provider), "error", err.Error()), "delivery webhook body unreadable")
			}
			responses.WriteSuccess(w, deliveryAck{Received: true, Outcome: string(deliverywebhook.OutcomeInvalid)})
			return
		}

		res := svc.Ingest(ctx, provider, kind, body)
		responses.WriteSuccess(w, deliveryAck{Received: true, Outcome: string(res.Outcome)})
	}
}
