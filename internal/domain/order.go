package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending     OrderStatus = "pending"
	OrderStatusPaid        OrderStatus = "paid"
	OrderStatusFailed      OrderStatus = "failed"
	OrderStatusExpired     OrderStatus = "expired"
	OrderStatusLatePayment OrderStatus = "late_payment"
)

// Payment tracks what has been observed on chain against an order. Amounts
// are exact decimals; they enter and leave the system as decimal strings.
type Payment struct {
	ExpectedAmount decimal.Decimal
	PaidAmount     decimal.Decimal
	OverpaidAmount decimal.Decimal
	TxHash         string // globally unique once set
	Confirmations  int    // monotonically non-decreasing per tx hash
	PaidAt         *time.Time
}

type Expiry struct {
	ExpiresAt time.Time
	ExpiredAt *time.Time
}

// Referral is the commission snapshot captured at order creation. It is
// written exactly once and frozen for the life of the order.
type Referral struct {
	ReferrerID       string
	CommissionRate   decimal.Decimal
	CommissionAmount decimal.Decimal
}

// Order reserves units against a buyer until payment settles.
type Order struct {
	ID        string
	BuyerID   string
	UnitIDs   []string
	Quantity  int
	Status    OrderStatus
	Payment   Payment
	Expiry    Expiry
	Referral  Referral
	BuyerNote string
	CreatedAt time.Time
}

// Settleable reports whether an order may still transition to paid.
func (o Order) Settleable() bool {
	switch o.Status {
	case OrderStatusPending, OrderStatusExpired, OrderStatusFailed, OrderStatusLatePayment:
		return true
	}
	return false
}

// OrderUpdate is a partial update applied through the general write path.
// Referral fields are present so the write boundary can reject them: the
// snapshot is immutable even when bundled with otherwise valid changes.
type OrderUpdate struct {
	BuyerNote *string
	Status    *OrderStatus

	ReferrerID       *string
	CommissionRate   *decimal.Decimal
	CommissionAmount *decimal.Decimal
}

// orderGuards run in order at the write boundary before any update persists.
var orderGuards = []func(current Order, upd OrderUpdate) error{
	guardReferralFrozen,
	guardPaidTerminal,
}

// GuardOrderUpdate validates a general-path order update against the
// current record. It replaces the implicit pre-save hook chain of earlier
// revisions with an explicit, testable pipeline.
func GuardOrderUpdate(current Order, upd OrderUpdate) error {
	for _, guard := range orderGuards {
		if err := guard(current, upd); err != nil {
			return err
		}
	}
	return nil
}

func guardReferralFrozen(_ Order, upd OrderUpdate) error {
	if upd.ReferrerID != nil || upd.CommissionRate != nil || upd.CommissionAmount != nil {
		return ErrReferralImmutable
	}
	return nil
}

func guardPaidTerminal(current Order, upd OrderUpdate) error {
	if current.Status == OrderStatusPaid && upd.Status != nil && *upd.Status != OrderStatusPaid {
		return ErrOrderAlreadyPaid
	}
	return nil
}
