package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/app"
)

// ObservationApplier is the minimal interface needed by the webhook.
type ObservationApplier interface {
	ApplyObservation(ctx context.Context, obs app.Observation) (app.ObservationResult, error)
}

type observationRequest struct {
	OrderID       string    `json:"order_id"`
	TxHash        string    `json:"tx_hash"`
	AmountUSDT    string    `json:"amount_usdt"`
	Confirmations int       `json:"confirmations"`
	ObservedAt    time.Time `json:"observed_at"`
}

type observationResponse struct {
	OrderID       string `json:"order_id"`
	Status        string `json:"status"`
	Outcome       string `json:"outcome"`
	Confirmations int    `json:"confirmations"`
	PaidAmount    string `json:"paid_amount"`
	DeedsIssued   int    `json:"deeds_issued"`
}

// HandlePaymentObservation accepts sightings from the chain watcher.
func HandlePaymentObservation(svc ObservationApplier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req observationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.ObservedAt.IsZero() {
			req.ObservedAt = time.Now().UTC()
		}

		res, err := svc.ApplyObservation(r.Context(), app.Observation{
			OrderID:       req.OrderID,
			TxHash:        req.TxHash,
			AmountUSDT:    req.AmountUSDT,
			Confirmations: req.Confirmations,
			ObservedAt:    req.ObservedAt,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(observationResponse{
			OrderID:       res.Order.ID,
			Status:        string(res.Order.Status),
			Outcome:       string(res.Outcome),
			Confirmations: res.Order.Payment.Confirmations,
			PaidAmount:    res.Order.Payment.PaidAmount.String(),
			DeedsIssued:   len(res.Issued.Issued),
		})
	}
}
