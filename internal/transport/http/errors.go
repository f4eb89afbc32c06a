package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/domain"
)

const (
	codeMethodNotAllowed      = "method_not_allowed"
	codeNotFound              = "not_found"
	codeInvalidRequestBody    = "invalid_request_body"
	codeInvalidID             = "invalid_id"
	codeInvalidQuantity       = "invalid_quantity"
	codeInvalidAmount         = "invalid_amount"
	codeUnitNotFound          = "unit_not_found"
	codeUnitNotAvailable      = "unit_not_available"
	codeUnitNotReserved       = "unit_not_reserved"
	codeUnitsNoLongerReserved = "units_no_longer_reserved"
	codeOrderNotFound         = "order_not_found"
	codeOrderAlreadyPaid      = "order_already_paid"
	codeOrderNotPaid          = "order_not_paid"
	codeOrderNotLate          = "order_not_late"
	codeDuplicatePayment      = "duplicate_payment"
	codeStaleObservation      = "stale_observation"
	codeDeedNotFound          = "deed_not_found"
	codeDeedImmutable         = "deed_immutable"
	codeAlreadyMinted         = "already_minted"
	codeReferralImmutable     = "referral_immutable"
	codeRoleElevation         = "role_elevation_forbidden"
	codeUserNotFound          = "user_not_found"
	codeEmailTaken            = "email_taken"
	codeExternalService       = "external_service_error"
	codeForbidden             = "forbidden"
	codeInternalError         = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeServiceError maps domain sentinels onto HTTP status and code.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidID):
		writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
	case errors.Is(err, domain.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, codeInvalidQuantity, err.Error())
	case errors.Is(err, domain.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, codeInvalidAmount, err.Error())
	case errors.Is(err, domain.ErrUnitNotFound):
		writeError(w, http.StatusNotFound, codeUnitNotFound, err.Error())
	case errors.Is(err, domain.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, codeOrderNotFound, err.Error())
	case errors.Is(err, domain.ErrDeedNotFound):
		writeError(w, http.StatusNotFound, codeDeedNotFound, err.Error())
	case errors.Is(err, domain.ErrUserNotFound):
		writeError(w, http.StatusNotFound, codeUserNotFound, err.Error())
	case errors.Is(err, domain.ErrUnitNotAvailable):
		writeError(w, http.StatusConflict, codeUnitNotAvailable, err.Error())
	case errors.Is(err, domain.ErrUnitNotReserved):
		writeError(w, http.StatusConflict, codeUnitNotReserved, err.Error())
	case errors.Is(err, domain.ErrUnitsNoLongerReserved):
		writeError(w, http.StatusConflict, codeUnitsNoLongerReserved, err.Error())
	case errors.Is(err, domain.ErrOrderAlreadyPaid):
		writeError(w, http.StatusConflict, codeOrderAlreadyPaid, err.Error())
	case errors.Is(err, domain.ErrOrderNotPaid):
		writeError(w, http.StatusConflict, codeOrderNotPaid, err.Error())
	case errors.Is(err, domain.ErrOrderNotLate):
		writeError(w, http.StatusConflict, codeOrderNotLate, err.Error())
	case errors.Is(err, domain.ErrDuplicatePayment):
		writeError(w, http.StatusConflict, codeDuplicatePayment, err.Error())
	case errors.Is(err, domain.ErrStaleObservation):
		writeError(w, http.StatusConflict, codeStaleObservation, err.Error())
	case errors.Is(err, domain.ErrDeedImmutable):
		writeError(w, http.StatusConflict, codeDeedImmutable, err.Error())
	case errors.Is(err, domain.ErrAlreadyMinted):
		writeError(w, http.StatusConflict, codeAlreadyMinted, err.Error())
	case errors.Is(err, domain.ErrReferralImmutable):
		writeError(w, http.StatusConflict, codeReferralImmutable, err.Error())
	case errors.Is(err, domain.ErrRoleElevationForbidden):
		writeError(w, http.StatusForbidden, codeRoleElevation, err.Error())
	case errors.Is(err, domain.ErrEmailTaken), errors.Is(err, domain.ErrReferralCodeTaken):
		writeError(w, http.StatusConflict, codeEmailTaken, err.Error())
	case errors.Is(err, domain.ErrExternalService):
		writeError(w, http.StatusBadGateway, codeExternalService, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}
