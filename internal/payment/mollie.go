package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/resilience"
)

// Mollie implements the Gateway interface against the Mollie v2 payments API.
type Mollie struct {
	APIKey  string
	BaseURL string
	HTTP    *resilience.HTTPClient
}

type mollieAmount struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

type molliePayment struct {
	ID          string            `json:"id"`
	Status      string            `json:"status"`
	Amount      mollieAmount      `json:"amount"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata"`
	CreatedAt   time.Time         `json:"createdAt"`
}

type mollieError struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// Create opens a payment with the gateway and returns its identifier and
// initial status.
func (m Mollie) Create(ctx context.Context, req CreateRequest) (Payment, error) {
	if req.AmountCents <= 0 {
		return Payment{}, common.InvariantError("payment amount must be positive")
	}
	payload := map[string]any{
		"amount": mollieAmount{
			Currency: strings.ToUpper(req.Currency),
			Value:    centsToValue(req.AmountCents),
		},
		"description": req.Description,
	}
	if req.WebhookURL != "" {
		payload["webhookUrl"] = req.WebhookURL
	}
	if len(req.Metadata) > 0 {
		payload["metadata"] = req.Metadata
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Payment{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint("/v2/payments"), bytes.NewReader(body))
	if err != nil {
		return Payment{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return m.roundTrip(ctx, httpReq, http.StatusCreated)
}

// Find fetches the authoritative payment resource from the gateway.
func (m Mollie) Find(ctx context.Context, id string) (Payment, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Payment{}, common.InvariantError("payment id is required")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, m.endpoint("/v2/payments/"+id), nil)
	if err != nil {
		return Payment{}, err
	}
	return m.roundTrip(ctx, httpReq, http.StatusOK)
}

func (m Mollie) roundTrip(ctx context.Context, req *http.Request, wantStatus int) (Payment, error) {
	req.Header.Set("Authorization", "Bearer "+m.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := m.client().Do(ctx, req)
	if err != nil {
		return Payment{}, common.GatewayError("mollie request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Payment{}, common.GatewayError("mollie response read failed", err)
	}
	if resp.StatusCode != wantStatus {
		var apiErr mollieError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Title != "" {
			return Payment{}, common.GatewayError(
				fmt.Sprintf("mollie: %s: %s", apiErr.Title, apiErr.Detail),
				errors.New(resp.Status))
		}
		return Payment{}, common.GatewayError("mollie: unexpected status", errors.New(resp.Status))
	}
	var mp molliePayment
	if err := json.Unmarshal(data, &mp); err != nil {
		return Payment{}, common.GatewayError("mollie: malformed payment resource", err)
	}
	return mp.toPayment(), nil
}

func (m Mollie) client() *resilience.HTTPClient {
	if m.HTTP != nil {
		return m.HTTP
	}
	return &resilience.HTTPClient{Client: http.DefaultClient, MaxAttempts: 1}
}

func (m Mollie) endpoint(path string) string {
	base := strings.TrimRight(strings.TrimSpace(m.BaseURL), "/")
	if base == "" {
		base = "https://api.mollie.com"
	}
	return base + path
}

func (mp molliePayment) toPayment() Payment {
	return Payment{
		ID:          mp.ID,
		Status:      Status(strings.ToLower(strings.TrimSpace(mp.Status))),
		AmountCents: valueToCents(mp.Amount.Value),
		Currency:    strings.ToLower(mp.Amount.Currency),
		Description: mp.Description,
		Metadata:    mp.Metadata,
		CreatedAt:   mp.CreatedAt,
	}
}

// centsToValue renders minor units as the gateway's decimal string, e.g.
// 1099 -> "10.99".
func centsToValue(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

func valueToCents(value string) int64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0
	}
	major, minor, _ := strings.Cut(trimmed, ".")
	cents, err := strconv.ParseInt(major, 10, 64)
	if err != nil {
		return 0
	}
	cents *= 100
	if minor != "" {
		if len(minor) > 2 {
			minor = minor[:2]
		}
		for len(minor) < 2 {
			minor += "0"
		}
		m, err := strconv.ParseInt(minor, 10, 64)
		if err == nil {
			if cents < 0 {
				cents -= m
			} else {
				cents += m
			}
		}
	}
	return cents
}
