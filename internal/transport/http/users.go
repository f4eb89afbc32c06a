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

type UserRegistrar interface {
	Register(ctx context.Context, in app.RegisterInput) (domain.User, error)
}

type UserReader interface {
	GetUser(ctx context.Context, userID string) (domain.User, error)
	RefreshReferralStats(ctx context.Context, userID string) (domain.ReferralStats, error)
}

type UserProfileUpdater interface {
	UpdateProfile(ctx context.Context, userID string, upd domain.UserUpdate) (domain.User, error)
}

type registerRequest struct {
	Email          string `json:"email"`
	Name           string `json:"name"`
	Password       string `json:"password"`
	Location       string `json:"location"`
	WalletAddress  string `json:"wallet_address"`
	ReferredBy     string `json:"referred_by,omitempty"`
	CommissionRate string `json:"commission_rate,omitempty"`
}

type updateUserRequest struct {
	Name          *string `json:"name"`
	Location      *string `json:"location"`
	WalletAddress *string `json:"wallet_address"`
	Role          *string `json:"role"`
}

type userResponse struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	Location       string    `json:"location"`
	WalletAddress  string    `json:"wallet_address"`
	Role           string    `json:"role"`
	ReferralCode   string    `json:"referral_code"`
	ReferredBy     string    `json:"referred_by,omitempty"`
	CommissionRate string    `json:"commission_rate"`
	CreatedAt      time.Time `json:"created_at"`
}

type referralStatsResponse struct {
	ReferredOrders  int    `json:"referred_orders"`
	PaidOrders      int    `json:"paid_orders"`
	TotalCommission string `json:"total_commission"`
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:             u.ID,
		Email:          u.Email,
		Name:           u.Name,
		Location:       u.Location,
		WalletAddress:  u.WalletAddress,
		Role:           string(u.Role),
		ReferralCode:   u.ReferralCode,
		ReferredBy:     u.ReferredBy,
		CommissionRate: u.CommissionRate.String(),
		CreatedAt:      u.CreatedAt,
	}
}

// HandleRegisterUser creates a buyer account.
func HandleRegisterUser(svc UserRegistrar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		user, err := svc.Register(r.Context(), app.RegisterInput{
			Email:          req.Email,
			Name:           req.Name,
			Password:       req.Password,
			Location:       req.Location,
			WalletAddress:  req.WalletAddress,
			ReferredBy:     req.ReferredBy,
			CommissionRate: req.CommissionRate,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(toUserResponse(user))
	}
}

// HandleGetUser serves /users/{id} and /users/{id}/referrals. PATCH on
// /users/{id} goes through the guarded profile update, which rejects role
// elevation.
func HandleGetUser(svc UserReader, updater UserProfileUpdater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, stats, ok := parseUserPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		if r.Method == http.MethodPatch && !stats {
			var req updateUserRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}
			upd := domain.UserUpdate{
				Name:          req.Name,
				Location:      req.Location,
				WalletAddress: req.WalletAddress,
			}
			if req.Role != nil {
				role := domain.Role(*req.Role)
				upd.Role = &role
			}
			user, err := updater.UpdateProfile(r.Context(), userID, upd)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(toUserResponse(user))
			return
		}

		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		if stats {
			out, err := svc.RefreshReferralStats(r.Context(), userID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(referralStatsResponse{
				ReferredOrders:  out.ReferredOrders,
				PaidOrders:      out.PaidOrders,
				TotalCommission: out.TotalCommission.String(),
			})
			return
		}

		user, err := svc.GetUser(r.Context(), userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(toUserResponse(user))
	}
}

func parseUserPath(path string) (userID string, stats bool, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 2 && parts[0] == "users" && parts[1] != "":
		return parts[1], false, true
	case len(parts) == 3 && parts[0] == "users" && parts[1] != "" && parts[2] == "referrals":
		return parts[1], true, true
	default:
		return "", false, false
	}
}
