package billing

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/currency"
	"github.com/noah-isme/backend-billing/internal/order"
)

// Handler wires the billing services to HTTP.
type Handler struct {
	Items      order.ItemStore
	Orders     order.Store
	Registry   *currency.Registry
	Aggregator *Aggregator
	Validate   *validator.Validate
	Log        zerolog.Logger
}

type scheduleItemRequest struct {
	OwnerID     string `json:"ownerId" validate:"required,uuid"`
	OwnerLocale string `json:"ownerLocale" validate:"omitempty,bcp47_language_tag"`
	Currency    string `json:"currency" validate:"omitempty,iso4217"`
	AmountCents int64  `json:"amountCents" validate:"required,gt=0"`
	Description string `json:"description" validate:"required,max=255"`
	ProcessAt   string `json:"processAt" validate:"omitempty"`
}

// ScheduleItem records a charge item to be billed on its process date.
func (h *Handler) ScheduleItem(w http.ResponseWriter, r *http.Request) {
	var payload scheduleItemRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
		return
	}
	if err := h.Validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", "invalid item payload", validationDetails(err))
		return
	}
	ownerID, err := uuid.Parse(payload.OwnerID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid owner id", nil)
		return
	}
	processAt := time.Now()
	if strings.TrimSpace(payload.ProcessAt) != "" {
		processAt, err = time.Parse(time.RFC3339, payload.ProcessAt)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "processAt must be RFC3339", nil)
			return
		}
	}
	code := strings.ToLower(strings.TrimSpace(payload.Currency))
	if code == "" {
		code = h.Registry.Code()
	}

	item, err := h.Items.Schedule(r.Context(), order.Item{
		Owner:       order.Owner{ID: ownerID, Locale: payload.OwnerLocale},
		Currency:    code,
		AmountCents: payload.AmountCents,
		Description: payload.Description,
		State:       order.ItemPending,
		ProcessAt:   processAt,
	})
	if err != nil {
		h.Log.Error().Err(err).Msg("schedule item")
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": h.itemResponse(item)})
}

// GetOrder returns one order with its items.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	ord, err := h.Orders.Get(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "order not found", nil)
			return
		}
		h.Log.Error().Err(err).Str("order_id", orderID.String()).Msg("load order")
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.orderResponse(ord)})
}

// ListOrders returns the authenticated owner's orders, most recent first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	subject, ok := common.Subject(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing subject", nil)
		return
	}
	ownerID, err := uuid.Parse(subject)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "subject is not an owner id", nil)
		return
	}
	orders, err := h.Orders.ListByOwner(r.Context(), ownerID)
	if err != nil {
		h.Log.Error().Err(err).Str("owner_id", ownerID.String()).Msg("list orders")
		common.RenderError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(orders))
	for _, ord := range orders {
		out = append(out, h.orderResponse(ord))
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// RunAggregation triggers an immediate aggregation sweep and reports the
// created orders. Partial failures return the orders that were created
// together with the joined error messages.
func (h *Handler) RunAggregation(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Aggregator.Run(r.Context())
	if err != nil && len(orders) == 0 {
		h.Log.Error().Err(err).Msg("aggregation sweep failed")
		common.RenderError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(orders))
	for _, ord := range orders {
		out = append(out, h.orderResponse(ord))
	}
	body := map[string]any{"data": out}
	if err != nil {
		body["errors"] = strings.Split(err.Error(), "\n")
	}
	common.JSON(w, http.StatusOK, body)
}

func (h *Handler) itemResponse(item order.Item) map[string]any {
	resp := map[string]any{
		"id":            item.ID,
		"ownerId":       item.Owner.ID,
		"currency":      item.Currency,
		"amountCents":   item.AmountCents,
		"displayAmount": h.Registry.FormatAmountIn(item.AmountCents, item.Owner.Locale),
		"description":   item.Description,
		"state":         item.State,
		"processAt":     item.ProcessAt,
		"createdAt":     item.CreatedAt,
	}
	if item.OrderID != nil {
		resp["orderId"] = *item.OrderID
	}
	return resp
}

func (h *Handler) orderResponse(ord order.Order) map[string]any {
	items := make([]map[string]any, 0, len(ord.Items))
	for _, it := range ord.Items {
		items = append(items, h.itemResponse(it))
	}
	resp := map[string]any{
		"id":           ord.ID,
		"number":       ord.Number,
		"ownerId":      ord.Owner.ID,
		"currency":     ord.Currency,
		"totalCents":   ord.TotalCents,
		"displayTotal": h.Registry.FormatAmountIn(ord.TotalCents, ord.Owner.Locale),
		"status":       ord.Status,
		"items":        items,
		"createdAt":    ord.CreatedAt,
	}
	if ord.PaymentID != "" {
		resp["paymentId"] = ord.PaymentID
	}
	return resp
}

func validationDetails(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	return details
}
