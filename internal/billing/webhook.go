package billing

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-billing/internal/common"
)

// PaymentReconciler is the reconciliation entrypoint the webhook handler
// drives.
type PaymentReconciler interface {
	Reconcile(ctx context.Context, paymentID string) error
}

// WebhookHandler terminates gateway webhook calls. The gateway only wants an
// acknowledgement; business failures are logged and retried through later
// webhooks or aggregation runs, so the handler answers 200 regardless of the
// reconciliation outcome. Debug mode is the exception: gateway transport
// errors surface with their status so a developer tunnelling webhooks sees
// the failure.
type WebhookHandler struct {
	Reconciler PaymentReconciler
	Debug      bool
	Log        zerolog.Logger
}

// Routes mounts the gateway webhook endpoints.
func (h WebhookHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/mollie", h.Handle)
	return r
}

// Handle processes a payment status webhook. The gateway posts the payment
// id as a form field; the authoritative state is fetched back from the
// gateway rather than trusted from the request.
func (h WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeInvariant, "malformed webhook payload", nil)
		return
	}
	paymentID := strings.TrimSpace(r.PostFormValue("id"))
	if paymentID == "" {
		common.JSONError(w, http.StatusBadRequest, common.CodeInvariant, "missing payment id", nil)
		return
	}

	if err := h.Reconciler.Reconcile(r.Context(), paymentID); err != nil {
		h.Log.Error().Err(err).Str("payment_id", paymentID).Msg("webhook reconciliation failed")
		if h.Debug && common.IsCode(err, common.CodeGateway) {
			common.RenderError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}
