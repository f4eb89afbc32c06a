package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/app"
	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/domain"
)

// OrderReader and OrderCreator are the slices of the order service the
// handlers need.
type OrderCreator interface {
	CreateOrder(ctx context.Context, in app.CreateOrderInput) (domain.Order, error)
}

type OrderReader interface {
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
}

type OrderUpdater interface {
	UpdateOrder(ctx context.Context, orderID string, upd domain.OrderUpdate) (domain.Order, error)
}

type createOrderRequest struct {
	BuyerID        string   `json:"buyer_id"`
	UnitIDs        []string `json:"unit_ids"`
	Quantity       int      `json:"quantity"`
	ExpectedAmount string   `json:"expected_amount"`
}

type updateOrderRequest struct {
	BuyerNote *string `json:"buyer_note"`
}

type orderResponse struct {
	ID             string     `json:"id"`
	BuyerID        string     `json:"buyer_id"`
	UnitIDs        []string   `json:"unit_ids"`
	Quantity       int        `json:"quantity"`
	Status         string     `json:"status"`
	ExpectedAmount string     `json:"expected_amount"`
	PaidAmount     string     `json:"paid_amount"`
	OverpaidAmount string     `json:"overpaid_amount"`
	TxHash         string     `json:"tx_hash,omitempty"`
	Confirmations  int        `json:"confirmations"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
	ExpiresAt      time.Time  `json:"expires_at"`
	BuyerNote      string     `json:"buyer_note,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toOrderResponse(o domain.Order) orderResponse {
	return orderResponse{
		ID:             o.ID,
		BuyerID:        o.BuyerID,
		UnitIDs:        o.UnitIDs,
		Quantity:       o.Quantity,
		Status:         string(o.Status),
		ExpectedAmount: o.Payment.ExpectedAmount.String(),
		PaidAmount:     o.Payment.PaidAmount.String(),
		OverpaidAmount: o.Payment.OverpaidAmount.String(),
		TxHash:         o.Payment.TxHash,
		Confirmations:  o.Payment.Confirmations,
		PaidAt:         o.Payment.PaidAt,
		ExpiresAt:      o.Expiry.ExpiresAt,
		BuyerNote:      o.BuyerNote,
		CreatedAt:      o.CreatedAt,
	}
}

// HandleCreateOrder reserves units and opens a pending order.
func HandleCreateOrder(svc OrderCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req createOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		order, err := svc.CreateOrder(r.Context(), app.CreateOrderInput{
			BuyerID:        req.BuyerID,
			UnitIDs:        req.UnitIDs,
			Quantity:       req.Quantity,
			ExpectedAmount: req.ExpectedAmount,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(toOrderResponse(order))
	}
}

// HandleGetOrder serves a single order by id, path /orders/{id}. PATCH goes
// through the guarded update path; only the buyer note is writable here.
// Status changes, such as an operator marking an order failed, use
// OrderService.UpdateOrder directly and are not exposed on this route.
func HandleGetOrder(svc OrderReader, updater OrderUpdater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, ok := parseOrderPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		switch r.Method {
		case http.MethodGet:
			order, err := svc.GetOrder(r.Context(), orderID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(toOrderResponse(order))
		case http.MethodPatch:
			var req updateOrderRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}
			order, err := updater.UpdateOrder(r.Context(), orderID, domain.OrderUpdate{BuyerNote: req.BuyerNote})
			if err != nil {
				writeServiceError(w, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(toOrderResponse(order))
		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		}
	}
}

func parseOrderPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] != "orders" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
