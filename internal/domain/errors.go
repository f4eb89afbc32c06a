package domain

import "errors"

var (
	ErrInvalidID              = errors.New("invalid id")
	ErrInvalidQuantity        = errors.New("quantity must match reserved units")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrUnitNotFound           = errors.New("unit not found")
	ErrUnitNotAvailable       = errors.New("unit not available")
	ErrUnitNotReserved        = errors.New("unit not reserved by order")
	ErrUnitsNoLongerReserved  = errors.New("units no longer reserved by order")
	ErrOrderNotFound          = errors.New("order not found")
	ErrOrderAlreadyPaid       = errors.New("order already paid")
	ErrOrderNotPaid           = errors.New("order not paid")
	ErrOrderNotLate           = errors.New("order not awaiting late payment review")
	ErrDuplicatePayment       = errors.New("transaction hash already claimed")
	ErrStaleObservation       = errors.New("stale payment observation")
	ErrDeedNotFound           = errors.New("deed not found")
	ErrDeedAlreadyIssued      = errors.New("deed already issued for unit")
	ErrDeedImmutable          = errors.New("deed fields are immutable after issuance")
	ErrAlreadyMinted          = errors.New("deed already carries a minted token")
	ErrReferralImmutable      = errors.New("referral snapshot is immutable")
	ErrReferralCodeTaken      = errors.New("referral code already taken")
	ErrRoleElevationForbidden = errors.New("role elevation requires a privileged operation")
	ErrUserNotFound           = errors.New("user not found")
	ErrEmailTaken             = errors.New("email already registered")

	// ErrExternalService marks failures of the mint and notification
	// collaborators. Always retryable, never affects settlement state.
	ErrExternalService = errors.New("external service failure")
)
