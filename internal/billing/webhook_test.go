package billing_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/billing"
	"github.com/noah-isme/backend-billing/internal/common"
)

type stubReconciler struct {
	calls []string
	err   error
}

func (s *stubReconciler) Reconcile(_ context.Context, paymentID string) error {
	s.calls = append(s.calls, paymentID)
	return s.err
}

func postWebhook(t *testing.T, handler billing.WebhookHandler, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/mollie", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	handler.Handle(rr, req)
	return rr
}

func TestWebhookAcknowledges(t *testing.T) {
	rec := &stubReconciler{}
	handler := billing.WebhookHandler{Reconciler: rec, Log: zerolog.Nop()}

	rr := postWebhook(t, handler, url.Values{"id": {"tr_123"}})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, []string{"tr_123"}, rec.calls)
}

func TestWebhookMissingIDRejected(t *testing.T) {
	rec := &stubReconciler{}
	handler := billing.WebhookHandler{Reconciler: rec, Log: zerolog.Nop()}

	rr := postWebhook(t, handler, url.Values{})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Empty(t, rec.calls)
}

func TestWebhookSwallowsReconciliationErrors(t *testing.T) {
	rec := &stubReconciler{err: common.GatewayError("gateway unavailable", nil)}
	handler := billing.WebhookHandler{Reconciler: rec, Log: zerolog.Nop()}

	rr := postWebhook(t, handler, url.Values{"id": {"tr_123"}})
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestWebhookDebugModeSurfacesGatewayErrors(t *testing.T) {
	rec := &stubReconciler{err: common.GatewayError("gateway unavailable", nil)}
	handler := billing.WebhookHandler{Reconciler: rec, Debug: true, Log: zerolog.Nop()}

	rr := postWebhook(t, handler, url.Values{"id": {"tr_123"}})
	require.Equal(t, http.StatusBadGateway, rr.Code)
	require.Contains(t, rr.Body.String(), common.CodeGateway)
}

func TestWebhookDebugModeStillSwallowsBusinessErrors(t *testing.T) {
	rec := &stubReconciler{err: common.InvariantError("boom")}
	handler := billing.WebhookHandler{Reconciler: rec, Debug: true, Log: zerolog.Nop()}

	rr := postWebhook(t, handler, url.Values{"id": {"tr_123"}})
	require.Equal(t, http.StatusOK, rr.Code)
}
