package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleBuyer Role = "buyer"
	RoleAgent Role = "agent"
	RoleAdmin Role = "admin"
)

// ReferralStats are aggregate counters recomputed from referred orders.
// They are eventually consistent with the orders table.
type ReferralStats struct {
	ReferredOrders  int
	PaidOrders      int
	TotalCommission decimal.Decimal
}

type User struct {
	ID             string
	Email          string
	Name           string
	Location       string
	WalletAddress  string
	PasswordHash   string
	Role           Role
	ReferralCode   string // generated, globally unique
	ReferredBy     string // referral code of the referring user, if any
	CommissionRate decimal.Decimal
	Stats          ReferralStats
	CreatedAt      time.Time
}

// UserUpdate is a partial update applied through the ordinary write path.
type UserUpdate struct {
	Name          *string
	Location      *string
	WalletAddress *string
	Role          *Role
}

// GuardUserUpdate rejects role elevation through the ordinary write path.
// Promotion to admin is a privileged, out-of-band operation only.
func GuardUserUpdate(current User, upd UserUpdate) error {
	if upd.Role != nil && *upd.Role == RoleAdmin && current.Role != RoleAdmin {
		return ErrRoleElevationForbidden
	}
	return nil
}
