package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/app"
	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/domain"
)

type fakeApplier struct {
	result app.ObservationResult
	err    error
	got    app.Observation
}

func (f *fakeApplier) ApplyObservation(_ context.Context, obs app.Observation) (app.ObservationResult, error) {
	f.got = obs
	if f.err != nil {
		return app.ObservationResult{}, f.err
	}
	return f.result, nil
}

func TestHandlePaymentObservation(t *testing.T) {
	t.Parallel()

	t.Run("settled observation", func(t *testing.T) {
		applier := &fakeApplier{
			result: app.ObservationResult{
				Order: domain.Order{
					ID:     "order-1",
					Status: domain.OrderStatusPaid,
					Payment: domain.Payment{
						PaidAmount:    decimal.RequireFromString("200"),
						Confirmations: 3,
					},
				},
				Outcome:      app.OutcomePaid,
				Transitioned: true,
				Issued:       app.IssueResult{Issued: []domain.Deed{{ID: "deed-1"}, {ID: "deed-2"}}},
			},
		}
		handler := HandlePaymentObservation(applier)

		body := `{"order_id":"order-1","tx_hash":"0xabc","amount_usdt":"200","confirmations":3}`
		req := httptest.NewRequest(http.MethodPost, "/payments/observations", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp observationResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.Outcome != "paid" || resp.Status != "paid" {
			t.Fatalf("unexpected response %+v", resp)
		}
		if resp.DeedsIssued != 2 {
			t.Fatalf("expected 2 deeds issued, got %d", resp.DeedsIssued)
		}
		if applier.got.TxHash != "0xabc" {
			t.Fatalf("expected tx hash forwarded, got %q", applier.got.TxHash)
		}
		if applier.got.ObservedAt.IsZero() {
			t.Fatalf("expected observed_at defaulted")
		}
	})

	t.Run("duplicate payment maps to conflict", func(t *testing.T) {
		handler := HandlePaymentObservation(&fakeApplier{err: domain.ErrDuplicatePayment})

		body := `{"order_id":"order-1","tx_hash":"0xabc","amount_usdt":"200","confirmations":3}`
		req := httptest.NewRequest(http.MethodPost, "/payments/observations", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		var resp errorResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.Code != codeDuplicatePayment {
			t.Fatalf("expected code %s, got %s", codeDuplicatePayment, resp.Code)
		}
	})

	t.Run("stale observation maps to conflict", func(t *testing.T) {
		handler := HandlePaymentObservation(&fakeApplier{err: domain.ErrStaleObservation})

		body := `{"order_id":"order-1","tx_hash":"0xabc","amount_usdt":"200","confirmations":1}`
		req := httptest.NewRequest(http.MethodPost, "/payments/observations", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("invalid body", func(t *testing.T) {
		handler := HandlePaymentObservation(&fakeApplier{})

		req := httptest.NewRequest(http.MethodPost, "/payments/observations", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("get is not allowed", func(t *testing.T) {
		handler := HandlePaymentObservation(&fakeApplier{})

		req := httptest.NewRequest(http.MethodGet, "/payments/observations", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405, got %d", rec.Code)
		}
	})
}
