package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/app"
	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/domain"
)

type UnitImporter interface {
	ImportUnits(ctx context.Context, in app.ImportUnitInput) ([]domain.Unit, error)
}

type LatePaymentPromoter interface {
	PromoteLatePayment(ctx context.Context, orderID string) (app.ObservationResult, error)
}

type MintRetrier interface {
	RetryPending(ctx context.Context, limit int) (app.RetryResult, error)
}

type importUnitsRequest struct {
	StateCode string `json:"state_code"`
	AreaCode  string `json:"area_code"`
	Count     int    `json:"count"`
}

// HandleAdminImportUnits creates available units in a region.
func HandleAdminImportUnits(svc UnitImporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req importUnitsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		units, err := svc.ImportUnits(r.Context(), app.ImportUnitInput{
			StateCode: req.StateCode,
			AreaCode:  req.AreaCode,
			Count:     req.Count,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		out := make([]unitResponse, 0, len(units))
		for _, u := range units {
			out = append(out, unitResponse{
				ID:        u.ID,
				StateCode: u.StateCode,
				AreaCode:  u.AreaCode,
				Status:    string(u.Status),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(out)
	}
}

// HandleAdminPromoteOrder honors a parked late payment, path
// /admin/orders/{id}/promote.
func HandleAdminPromoteOrder(svc LatePaymentPromoter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		orderID, ok := parsePromotePath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		res, err := svc.PromoteLatePayment(r.Context(), orderID)
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

func parsePromotePath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 4 || parts[0] != "admin" || parts[1] != "orders" || parts[3] != "promote" {
		return "", false
	}
	if parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

type mintRetryRequest struct {
	Limit int `json:"limit"`
}

type mintRetryResponse struct {
	Minted int `json:"minted"`
	Failed int `json:"failed"`
}

// HandleAdminRetryMints re-attempts deeds whose mint never completed.
func HandleAdminRetryMints(svc MintRetrier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req mintRetryRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		res, err := svc.RetryPending(r.Context(), req.Limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(mintRetryResponse{Minted: res.Minted, Failed: res.Failed})
	}
}
