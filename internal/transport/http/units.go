package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/domain"
)

type UnitLister interface {
	ListUnits(ctx context.Context, stateCode, areaCode string, status domain.UnitStatus) ([]domain.Unit, error)
}

type unitResponse struct {
	ID        string     `json:"id"`
	StateCode string     `json:"state_code"`
	AreaCode  string     `json:"area_code"`
	Status    string     `json:"status"`
	OwnerID   string     `json:"owner_id,omitempty"`
	OwnedAt   *time.Time `json:"owned_at,omitempty"`
}

// HandleListUnits serves /units?state=&area=&status=.
func HandleListUnits(svc UnitLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		q := r.URL.Query()
		units, err := svc.ListUnits(r.Context(), q.Get("state"), q.Get("area"), domain.UnitStatus(q.Get("status")))
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
				OwnerID:   u.OwnerID,
				OwnedAt:   u.OwnedAt,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(out)
	}
}
