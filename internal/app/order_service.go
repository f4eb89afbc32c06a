package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/clock"
	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/domain"
)

type OrderRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateOrder(ctx context.Context, order domain.Order) error
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	// ApplyOrderUpdate persists the mutable order fields only. Guarded
	// fields never reach this method.
	ApplyOrderUpdate(ctx context.Context, orderID string, upd domain.OrderUpdate) error
}

// ReferrerSource resolves a referral code to the referring user.
type ReferrerSource interface {
	FindByReferralCode(ctx context.Context, code string) (*domain.User, error)
	GetUser(ctx context.Context, userID string) (domain.User, error)
}

// UnitReserver is the slice of the ledger the order service needs.
type UnitReserver interface {
	Reserve(ctx context.Context, unitIDs []string, orderID string, lockDuration time.Duration) error
}

type OrderService struct {
	repo     OrderRepository
	users    ReferrerSource
	ledger   UnitReserver
	clock    clock.Clock
	orderTTL time.Duration
}

const defaultOrderTTL = 30 * time.Minute

func NewOrderService(repo OrderRepository, users ReferrerSource, ledger UnitReserver, clk clock.Clock, opts ...OrderServiceOption) *OrderService {
	svc := &OrderService{
		repo:     repo,
		users:    users,
		ledger:   ledger,
		clock:    clk,
		orderTTL: defaultOrderTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type OrderServiceOption func(*OrderService)

// WithOrderTTL overrides how long reserved units are held for payment.
func WithOrderTTL(d time.Duration) OrderServiceOption {
	return func(s *OrderService) {
		if d > 0 {
			s.orderTTL = d
		}
	}
}

type CreateOrderInput struct {
	BuyerID        string
	UnitIDs        []string
	Quantity       int
	ExpectedAmount string // decimal string, USDT
}

// CreateOrder reserves the units and records the order in one transaction.
// The referral snapshot is captured here and never written again.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (domain.Order, error) {
	if in.BuyerID == "" {
		return domain.Order{}, domain.ErrInvalidID
	}
	if in.Quantity <= 0 || in.Quantity != len(in.UnitIDs) {
		return domain.Order{}, domain.ErrInvalidQuantity
	}
	expected, err := decimal.NewFromString(in.ExpectedAmount)
	if err != nil || expected.Sign() <= 0 {
		return domain.Order{}, domain.ErrInvalidAmount
	}

	buyer, err := s.users.GetUser(ctx, in.BuyerID)
	if err != nil {
		return domain.Order{}, err
	}

	referral, err := s.snapshotReferral(ctx, buyer, expected)
	if err != nil {
		return domain.Order{}, err
	}

	now := s.clock.Now()
	order := domain.Order{
		ID:       newID(),
		BuyerID:  buyer.ID,
		UnitIDs:  in.UnitIDs,
		Quantity: in.Quantity,
		Status:   domain.OrderStatusPending,
		Payment: domain.Payment{
			ExpectedAmount: expected,
			PaidAmount:     decimal.Zero,
			OverpaidAmount: decimal.Zero,
		},
		Expiry: domain.Expiry{
			ExpiresAt: now.Add(s.orderTTL),
		},
		Referral:  referral,
		CreatedAt: now,
	}

	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.ledger.Reserve(txCtx, in.UnitIDs, order.ID, s.orderTTL); err != nil {
			return err
		}
		return s.repo.CreateOrder(txCtx, order)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (s *OrderService) snapshotReferral(ctx context.Context, buyer domain.User, expected decimal.Decimal) (domain.Referral, error) {
	if buyer.ReferredBy == "" {
		return domain.Referral{
			CommissionRate:   decimal.Zero,
			CommissionAmount: decimal.Zero,
		}, nil
	}

	referrer, err := s.users.FindByReferralCode(ctx, buyer.ReferredBy)
	if err != nil {
		return domain.Referral{}, err
	}
	if referrer == nil {
		// Dangling code: the order proceeds without commission.
		return domain.Referral{
			CommissionRate:   decimal.Zero,
			CommissionAmount: decimal.Zero,
		}, nil
	}

	rate := referrer.CommissionRate
	return domain.Referral{
		ReferrerID:       referrer.ID,
		CommissionRate:   rate,
		CommissionAmount: expected.Mul(rate).Round(6),
	}, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if orderID == "" {
		return domain.Order{}, domain.ErrInvalidID
	}
	return s.repo.GetOrder(ctx, orderID)
}

// UpdateOrder applies a general-path update after running the write-boundary
// guards. An update bundling referral fields is rejected whole.
func (s *OrderService) UpdateOrder(ctx context.Context, orderID string, upd domain.OrderUpdate) (domain.Order, error) {
	if orderID == "" {
		return domain.Order{}, domain.ErrInvalidID
	}

	var result domain.Order
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		current, err := s.repo.GetOrder(txCtx, orderID)
		if err != nil {
			return err
		}
		if err := domain.GuardOrderUpdate(current, upd); err != nil {
			return err
		}
		if err := s.repo.ApplyOrderUpdate(txCtx, orderID, upd); err != nil {
			return err
		}
		result, err = s.repo.GetOrder(txCtx, orderID)
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}
	return result, nil
}
