package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/orderflow-backend/api/responses"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

const (
	stripeProvider     = "stripe"
	maxWebhookBodySize = 1 << 20
)

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, provider, eventKey string) (bool, error)
	Release(ctx context.Context, provider, eventKey string) error
}

type stripeVerifier interface {
	VerifyWebhook(payload []byte, signature string) (stripe.Event, error)
}

var stripeAck = map[string]bool{"received": true}

type stripeWebhook struct {
	svc      StripeWebhookService
	verifier stripeVerifier
	guard    webhookGuard
	logg     *logger.Logger
}

// StripeWebhook verifies and dispatches Stripe payment events. Each event id
// is processed once; a failed event releases its key so Stripe's redelivery
// runs again.
func StripeWebhook(svc StripeWebhookService, verifier stripeVerifier, guard webhookGuard, logg *logger.Logger) http.HandlerFunc {
	if svc == nil || verifier == nil || guard == nil {
		return func(w http.ResponseWriter, r *http.Request) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhook not configured"))
		}
	}
	h := &stripeWebhook{svc: svc, verifier: verifier, guard: guard, logg: logg}
	return h.serve
}

func (h *stripeWebhook) serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	event, err := h.verify(w, r)
	if err != nil {
		responses.WriteError(ctx, h.logg, w, err)
		return
	}
	if h.logg != nil {
		ctx = h.logg.WithFields(h.logg.WithProvider(ctx, stripeProvider), map[string]any{
			"stripe_event_id":   event.ID,
			"stripe_event_type": string(event.Type),
		})
	}

	seen, err := h.guard.CheckAndMark(ctx, stripeProvider, event.ID)
	if err != nil {
		responses.WriteError(ctx, h.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}
	if seen {
		h.info(ctx, "stripe event already processed")
		responses.WriteSuccess(w, stripeAck)
		return
	}

	if err := h.svc.HandleEvent(ctx, &event); err != nil {
		if relErr := h.guard.Release(context.WithoutCancel(ctx), stripeProvider, event.ID); relErr != nil && h.logg != nil {
			h.logg.Error(ctx, "release stripe dedupe key", relErr)
		}
		responses.WriteError(ctx, h.logg, w, err)
		return
	}
	h.info(ctx, "stripe event processed")
	responses.WriteSuccess(w, stripeAck)
}

func (h *stripeWebhook) verify(w http.ResponseWriter, r *http.Request) (stripe.Event, error) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return stripe.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "webhook body too large")
		}
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body")
	}
	event, err := h.verifier.VerifyWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid stripe signature")
	}
	return event, nil
}

func (h *stripeWebhook) info(ctx context.Context, msg string) {
	if h.logg != nil {
		h.logg.Info(ctx, msg)
	}
}
