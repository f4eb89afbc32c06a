package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/clock"
	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/domain"
)

func TestReconcileService_ApplyObservation(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 4, 3, 12, 0, 0, 0, time.UTC)
	expiresAt := now.Add(30 * time.Minute)

	pendingOrder := func(id string) domain.Order {
		return domain.Order{
			ID:       id,
			BuyerID:  "buyer-1",
			UnitIDs:  []string{"unit-1", "unit-2"},
			Quantity: 2,
			Status:   domain.OrderStatusPending,
			Payment: domain.Payment{
				ExpectedAmount: decimal.RequireFromString("200"),
				PaidAmount:     decimal.Zero,
				OverpaidAmount: decimal.Zero,
			},
			Expiry:    domain.Expiry{ExpiresAt: expiresAt},
			CreatedAt: now,
		}
	}

	makeSvc := func(orders ...domain.Order) (*ReconcileService, *fakeReconcileRepo, *fakeReleaser, *fakeIssuer) {
		repo := newFakeReconcileRepo(orders...)
		for _, o := range orders {
			for _, unitID := range o.UnitIDs {
				repo.reserved[unitID] = o.ID
			}
		}
		releaser := &fakeReleaser{}
		issuer := &fakeIssuer{}
		svc := NewReconcileService(repo, releaser, issuer, clock.NewFixed(now), WithRequiredConfirmations(3))
		return svc, repo, releaser, issuer
	}

	t.Run("full confirmed payment settles the order", func(t *testing.T) {
		svc, repo, _, issuer := makeSvc(pendingOrder("order-1"))
		issuer.result = IssueResult{Issued: []domain.Deed{{ID: "deed-1"}, {ID: "deed-2"}}}

		res, err := svc.ApplyObservation(context.Background(), Observation{
			OrderID:       "order-1",
			TxHash:        "0xabc",
			AmountUSDT:    "200",
			Confirmations: 3,
			ObservedAt:    now,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Outcome != OutcomePaid || !res.Transitioned {
			t.Fatalf("expected paid transition, got outcome=%s transitioned=%v", res.Outcome, res.Transitioned)
		}
		if got := repo.orders["order-1"].Status; got != domain.OrderStatusPaid {
			t.Fatalf("expected paid, got %s", got)
		}
		if res.Order.Payment.PaidAt == nil || !res.Order.Payment.PaidAt.Equal(now) {
			t.Fatalf("expected paid_at %v, got %v", now, res.Order.Payment.PaidAt)
		}
		if issuer.calls != 1 {
			t.Fatalf("expected one issuance, got %d", issuer.calls)
		}
		if len(res.Issued.Issued) != 2 {
			t.Fatalf("expected 2 deeds issued, got %d", len(res.Issued.Issued))
		}
	})

	t.Run("overpayment is recorded not rejected", func(t *testing.T) {
		svc, repo, _, _ := makeSvc(pendingOrder("order-1"))

		res, err := svc.ApplyObservation(context.Background(), Observation{
			OrderID:       "order-1",
			TxHash:        "0xabc",
			AmountUSDT:    "250",
			Confirmations: 3,
			ObservedAt:    now,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Outcome != OutcomePaid {
			t.Fatalf("expected paid, got %s", res.Outcome)
		}
		if want := decimal.RequireFromString("50"); !repo.orders["order-1"].Payment.OverpaidAmount.Equal(want) {
			t.Fatalf("expected overpaid 50, got %s", repo.orders["order-1"].Payment.OverpaidAmount)
		}
	})

	t.Run("insufficient amount stays pending as partial", func(t *testing.T) {
		svc, repo, _, issuer := makeSvc(pendingOrder("order-1"))

		res, err := svc.ApplyObservation(context.Background(), Observation{
			OrderID:       "order-1",
			TxHash:        "0xabc",
			AmountUSDT:    "150",
			Confirmations: 3,
			ObservedAt:    now,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Outcome != OutcomePartial {
			t.Fatalf("expected partial, got %s", res.Outcome)
		}
		if got := repo.orders["order-1"].Status; got != domain.OrderStatusPending {
			t.Fatalf("expected pending, got %s", got)
		}
		if want := decimal.RequireFromString("150"); !repo.orders["order-1"].Payment.PaidAmount.Equal(want) {
			t.Fatalf("expected recorded paid amount 150, got %s", repo.orders["order-1"].Payment.PaidAmount)
		}
		if issuer.calls != 0 {
			t.Fatalf("expected no issuance, got %d", issuer.calls)
		}
	})

	t.Run("too few confirmations stays pending as partial", func(t *testing.T) {
		svc, repo, _, _ := makeSvc(pendingOrder("order-1"))

		res, err := svc.ApplyObservation(context.Background(), Observation{
			OrderID:       "order-1",
			TxHash:        "0xabc",
			AmountUSDT:    "200",
			Confirmations: 2,
			ObservedAt:    now,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Outcome != OutcomePartial {
			t.Fatalf("expected partial, got %s", res.Outcome)
		}
		if got := repo.orders["order-1"].Status; got != domain.OrderStatusPending {
			t.Fatalf("expected pending, got %s", got)
		}
	})

	t.Run("payment one second past expiry is parked late", func(t *testing.T) {
		svc, repo, releaser, issuer := makeSvc(pendingOrder("order-1"))

		res, err := svc.ApplyObservation(context.Background(), Observation{
			OrderID:       "order-1",
			TxHash:        "0xabc",
			AmountUSDT:    "200",
			Confirmations: 3,
			ObservedAt:    expiresAt.Add(time.Second),
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Outcome != OutcomeLatePayment {
			t.Fatalf("expected late_payment, got %s", res.Outcome)
		}
		if got := repo.orders["order-1"].Status; got != domain.OrderStatusLatePayment {
			t.Fatalf("expected late_payment status, got %s", got)
		}
		if len(releaser.released) != 0 {
			t.Fatalf("expected units kept reserved, got releases %+v", releaser.released)
		}
		if issuer.calls != 0 {
			t.Fatalf("expected no issuance for a parked payment, got %d", issuer.calls)
		}
	})

	t.Run("late payment still parks after the sweep expired the order", func(t *testing.T) {
		overdue := pendingOrder("order-1")
		overdue.Expiry.ExpiresAt = now.Add(-time.Minute)
		svc, repo, _, issuer := makeSvc(overdue)

		if _, err := svc.ExpireDue(context.Background(), 10); err != nil {
			t.Fatalf("expire sweep: %v", err)
		}
		if got := repo.orders["order-1"].Status; got != domain.OrderStatusExpired {
			t.Fatalf("expected sweep to expire the order, got %s", got)
		}

		res, err := svc.ApplyObservation(context.Background(), Observation{
			OrderID:       "order-1",
			TxHash:        "0xabc",
			AmountUSDT:    "200",
			Confirmations: 5,
			ObservedAt:    now,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Outcome != OutcomeLatePayment {
			t.Fatalf("expected late_payment, got %s", res.Outcome)
		}
		got := repo.orders["order-1"]
		if got.Status != domain.OrderStatusLatePayment {
			t.Fatalf("expected late_payment status, got %s", got.Status)
		}
		if got.Payment.TxHash != "0xabc" {
			t.Fatalf("expected tx hash recorded, got %q", got.Payment.TxHash)
		}
		if want := decimal.RequireFromString("200"); !got.Payment.PaidAmount.Equal(want) {
			t.Fatalf("expected paid amount 200, got %s", got.Payment.PaidAmount)
		}
		if issuer.calls != 0 {
			t.Fatalf("expected no issuance for a parked payment, got %d", issuer.calls)
		}
	})

	t.Run("decreasing confirmations for the same hash is rejected", func(t *testing.T) {
		svc, _, _, _ := makeSvc(pendingOrder("order-1"))

		if _, err := svc.ApplyObservation(context.Background(), Observation{
			OrderID:       "order-1",
			TxHash:        "0xabc",
			AmountUSDT:    "200",
			Confirmations: 5,
			ObservedAt:    now,
		}); err != nil {
			t.Fatalf("first observation: %v", err)
		}

		_, err := svc.ApplyObservation(context.Background(), Observation{
			OrderID:       "order-1",
			TxHash:        "0xabc",
			AmountUSDT:    "200",
			Confirmations: 3,
			ObservedAt:    now,
		})
		if err != domain.ErrStaleObservation {
			t.Fatalf("expected ErrStaleObservation, got %v", err)
		}
	})

	t.Run("hash already claimed by another order is a duplicate", func(t *testing.T) {
		claimed := pendingOrder("order-2")
		claimed.Payment.TxHash = "0xabc"
		svc, _, _, _ := makeSvc(pendingOrder("order-1"), claimed)

		_, err := svc.ApplyObservation(context.Background(), Observation{
			OrderID:       "order-1",
			TxHash:        "0xabc",
			AmountUSDT:    "200",
			Confirmations: 3,
			ObservedAt:    now,
		})
		if err != domain.ErrDuplicatePayment {
			t.Fatalf("expected ErrDuplicatePayment, got %v", err)
		}
	})

	t.Run("repeat observation after paid is a noop", func(t *testing.T) {
		svc, _, _, issuer := makeSvc(pendingOrder("order-1"))

		obs := Observation{
			OrderID:       "order-1",
			TxHash:        "0xabc",
			AmountUSDT:    "200",
			Confirmations: 3,
			ObservedAt:    now,
		}
		if _, err := svc.ApplyObservation(context.Background(), obs); err != nil {
			t.Fatalf("first observation: %v", err)
		}

		res, err := svc.ApplyObservation(context.Background(), obs)
		if err != nil {
			t.Fatalf("second observation: %v", err)
		}
		if res.Outcome != OutcomeNoop || res.Transitioned {
			t.Fatalf("expected noop, got outcome=%s transitioned=%v", res.Outcome, res.Transitioned)
		}
		if issuer.calls != 1 {
			t.Fatalf("expected exactly one issuance, got %d", issuer.calls)
		}
	})

	t.Run("different hash against a paid order is rejected", func(t *testing.T) {
		svc, _, _, _ := makeSvc(pendingOrder("order-1"))

		if _, err := svc.ApplyObservation(context.Background(), Observation{
			OrderID:       "order-1",
			TxHash:        "0xabc",
			AmountUSDT:    "200",
			Confirmations: 3,
			ObservedAt:    now,
		}); err != nil {
			t.Fatalf("first observation: %v", err)
		}

		_, err := svc.ApplyObservation(context.Background(), Observation{
			OrderID:       "order-1",
			TxHash:        "0xdef",
			AmountUSDT:    "200",
			Confirmations: 3,
			ObservedAt:    now,
		})
		if err != domain.ErrOrderAlreadyPaid {
			t.Fatalf("expected ErrOrderAlreadyPaid, got %v", err)
		}
	})

	t.Run("order resolved by tx hash when id absent", func(t *testing.T) {
		order := pendingOrder("order-1")
		order.Payment.TxHash = "0xabc"
		order.Payment.Confirmations = 1
		svc, repo, _, _ := makeSvc(order)

		res, err := svc.ApplyObservation(context.Background(), Observation{
			TxHash:        "0xabc",
			AmountUSDT:    "200",
			Confirmations: 3,
			ObservedAt:    now,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Outcome != OutcomePaid {
			t.Fatalf("expected paid, got %s", res.Outcome)
		}
		if got := repo.orders["order-1"].Status; got != domain.OrderStatusPaid {
			t.Fatalf("expected paid, got %s", got)
		}
	})

	t.Run("settling a non-pending order requires its reservation intact", func(t *testing.T) {
		expired := pendingOrder("order-1")
		expired.Status = domain.OrderStatusExpired
		svc, repo, _, _ := makeSvc(expired)
		// One of the units was resold since expiry.
		repo.reserved["unit-2"] = "order-other"

		_, err := svc.ApplyObservation(context.Background(), Observation{
			OrderID:       "order-1",
			TxHash:        "0xabc",
			AmountUSDT:    "200",
			Confirmations: 3,
			ObservedAt:    now,
		})
		if err != domain.ErrUnitsNoLongerReserved {
			t.Fatalf("expected ErrUnitsNoLongerReserved, got %v", err)
		}
	})

	t.Run("rejects unparseable amount", func(t *testing.T) {
		svc, _, _, _ := makeSvc(pendingOrder("order-1"))

		_, err := svc.ApplyObservation(context.Background(), Observation{
			OrderID:       "order-1",
			TxHash:        "0xabc",
			AmountUSDT:    "not-a-number",
			Confirmations: 3,
			ObservedAt:    now,
		})
		if err != domain.ErrInvalidAmount {
			t.Fatalf("expected ErrInvalidAmount, got %v", err)
		}
	})
}

func TestReconcileService_PromoteLatePayment(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 4, 3, 13, 0, 0, 0, time.UTC)

	lateOrder := domain.Order{
		ID:       "order-1",
		BuyerID:  "buyer-1",
		UnitIDs:  []string{"unit-1"},
		Quantity: 1,
		Status:   domain.OrderStatusLatePayment,
		Payment: domain.Payment{
			ExpectedAmount: decimal.RequireFromString("100"),
			PaidAmount:     decimal.RequireFromString("100"),
			OverpaidAmount: decimal.Zero,
			TxHash:         "0xabc",
			Confirmations:  5,
		},
		Expiry: domain.Expiry{ExpiresAt: now.Add(-time.Hour)},
	}

	t.Run("promotes a parked payment to paid", func(t *testing.T) {
		repo := newFakeReconcileRepo(lateOrder)
		repo.reserved["unit-1"] = "order-1"
		issuer := &fakeIssuer{result: IssueResult{Issued: []domain.Deed{{ID: "deed-1"}}}}
		svc := NewReconcileService(repo, &fakeReleaser{}, issuer, clock.NewFixed(now))

		res, err := svc.PromoteLatePayment(context.Background(), "order-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Outcome != OutcomePaid || !res.Transitioned {
			t.Fatalf("expected paid transition, got outcome=%s transitioned=%v", res.Outcome, res.Transitioned)
		}
		if got := repo.orders["order-1"].Status; got != domain.OrderStatusPaid {
			t.Fatalf("expected paid, got %s", got)
		}
		if issuer.calls != 1 {
			t.Fatalf("expected one issuance, got %d", issuer.calls)
		}
	})

	t.Run("fails when units were released since expiry", func(t *testing.T) {
		repo := newFakeReconcileRepo(lateOrder)
		svc := NewReconcileService(repo, &fakeReleaser{}, &fakeIssuer{}, clock.NewFixed(now))

		_, err := svc.PromoteLatePayment(context.Background(), "order-1")
		if err != domain.ErrUnitsNoLongerReserved {
			t.Fatalf("expected ErrUnitsNoLongerReserved, got %v", err)
		}
	})

	t.Run("only late_payment orders can be promoted", func(t *testing.T) {
		pending := lateOrder
		pending.Status = domain.OrderStatusPending
		repo := newFakeReconcileRepo(pending)
		svc := NewReconcileService(repo, &fakeReleaser{}, &fakeIssuer{}, clock.NewFixed(now))

		_, err := svc.PromoteLatePayment(context.Background(), "order-1")
		if err != domain.ErrOrderNotLate {
			t.Fatalf("expected ErrOrderNotLate, got %v", err)
		}
	})
}

func TestReconcileService_ExpireDue(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 4, 3, 14, 0, 0, 0, time.UTC)

	t.Run("expires overdue pending orders and releases units", func(t *testing.T) {
		due := domain.Order{
			ID:       "order-1",
			UnitIDs:  []string{"unit-1", "unit-2"},
			Quantity: 2,
			Status:   domain.OrderStatusPending,
			Expiry:   domain.Expiry{ExpiresAt: now.Add(-time.Minute)},
		}
		fresh := domain.Order{
			ID:       "order-2",
			UnitIDs:  []string{"unit-3"},
			Quantity: 1,
			Status:   domain.OrderStatusPending,
			Expiry:   domain.Expiry{ExpiresAt: now.Add(time.Hour)},
		}
		repo := newFakeReconcileRepo(due, fresh)
		releaser := &fakeReleaser{}
		svc := NewReconcileService(repo, releaser, &fakeIssuer{}, clock.NewFixed(now))

		expired, err := svc.ExpireDue(context.Background(), 10)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if expired != 1 {
			t.Fatalf("expected 1 expired, got %d", expired)
		}
		if got := repo.orders["order-1"].Status; got != domain.OrderStatusExpired {
			t.Fatalf("expected expired, got %s", got)
		}
		if got := repo.orders["order-2"].Status; got != domain.OrderStatusPending {
			t.Fatalf("expected order-2 untouched, got %s", got)
		}
		if len(releaser.released) != 1 || releaser.released[0].orderID != "order-1" {
			t.Fatalf("expected one release for order-1, got %+v", releaser.released)
		}
	})

	t.Run("a failed release does not count the order as expired", func(t *testing.T) {
		due := domain.Order{
			ID:       "order-1",
			UnitIDs:  []string{"unit-1"},
			Quantity: 1,
			Status:   domain.OrderStatusPending,
			Expiry:   domain.Expiry{ExpiresAt: now.Add(-time.Minute)},
		}
		repo := newFakeReconcileRepo(due)
		releaser := &fakeReleaser{err: errors.New("release failed")}
		svc := NewReconcileService(repo, releaser, &fakeIssuer{}, clock.NewFixed(now))

		expired, err := svc.ExpireDue(context.Background(), 10)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if expired != 0 {
			t.Fatalf("expected 0 expired on rollback, got %d", expired)
		}
		if got := repo.orders["order-1"].Status; got != domain.OrderStatusPending {
			t.Fatalf("expected order rolled back to pending, got %s", got)
		}
	})

	t.Run("skips orders that left pending since the listing", func(t *testing.T) {
		due := domain.Order{
			ID:       "order-1",
			UnitIDs:  []string{"unit-1"},
			Quantity: 1,
			Status:   domain.OrderStatusPending,
			Expiry:   domain.Expiry{ExpiresAt: now.Add(-time.Minute)},
		}
		repo := newFakeReconcileRepo(due)
		repo.beforeExpire = func() {
			o := repo.orders["order-1"]
			o.Status = domain.OrderStatusPaid
			repo.orders["order-1"] = o
		}
		releaser := &fakeReleaser{}
		svc := NewReconcileService(repo, releaser, &fakeIssuer{}, clock.NewFixed(now))

		expired, err := svc.ExpireDue(context.Background(), 10)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if expired != 0 {
			t.Fatalf("expected 0 expired, got %d", expired)
		}
		if len(releaser.released) != 0 {
			t.Fatalf("expected no releases, got %+v", releaser.released)
		}
	})
}

type fakeReconcileRepo struct {
	orders   map[string]domain.Order
	reserved map[string]string // unitID -> holding orderID

	beforeExpire func()
}

func newFakeReconcileRepo(orders ...domain.Order) *fakeReconcileRepo {
	m := make(map[string]domain.Order, len(orders))
	for _, o := range orders {
		m[o.ID] = o
	}
	return &fakeReconcileRepo{
		orders:   m,
		reserved: make(map[string]string),
	}
}

func (f *fakeReconcileRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	snapshot := make(map[string]domain.Order, len(f.orders))
	for id, o := range f.orders {
		snapshot[id] = o
	}
	if err := fn(ctx); err != nil {
		f.orders = snapshot
		return err
	}
	return nil
}

func (f *fakeReconcileRepo) GetOrderForUpdate(_ context.Context, orderID string) (domain.Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (f *fakeReconcileRepo) FindOrderByTxHash(_ context.Context, txHash string) (*domain.Order, error) {
	for _, o := range f.orders {
		if o.Payment.TxHash == txHash {
			found := o
			return &found, nil
		}
	}
	return nil, nil
}

func (f *fakeReconcileRepo) RecordPaymentProgress(_ context.Context, orderID string, p domain.Payment) error {
	o, ok := f.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.Payment.TxHash = p.TxHash
	o.Payment.Confirmations = p.Confirmations
	o.Payment.PaidAmount = p.PaidAmount
	o.Payment.OverpaidAmount = p.OverpaidAmount
	f.orders[orderID] = o
	return nil
}

func (f *fakeReconcileRepo) MarkOrderPaid(_ context.Context, orderID string, p domain.Payment, paidAt time.Time) (bool, error) {
	o, ok := f.orders[orderID]
	if !ok || !o.Settleable() {
		return false, nil
	}
	o.Status = domain.OrderStatusPaid
	o.Payment.TxHash = p.TxHash
	o.Payment.Confirmations = p.Confirmations
	o.Payment.PaidAmount = p.PaidAmount
	o.Payment.OverpaidAmount = p.OverpaidAmount
	paid := paidAt
	o.Payment.PaidAt = &paid
	f.orders[orderID] = o
	return true, nil
}

func (f *fakeReconcileRepo) MarkOrderLatePayment(_ context.Context, orderID string, p domain.Payment) (bool, error) {
	o, ok := f.orders[orderID]
	if !ok || !o.Settleable() || o.Status == domain.OrderStatusLatePayment {
		return false, nil
	}
	o.Status = domain.OrderStatusLatePayment
	o.Payment.TxHash = p.TxHash
	o.Payment.Confirmations = p.Confirmations
	o.Payment.PaidAmount = p.PaidAmount
	o.Payment.OverpaidAmount = p.OverpaidAmount
	f.orders[orderID] = o
	return true, nil
}

func (f *fakeReconcileRepo) MarkOrderExpired(_ context.Context, orderID string, expiredAt time.Time) (bool, error) {
	if f.beforeExpire != nil {
		f.beforeExpire()
	}
	o, ok := f.orders[orderID]
	if !ok || o.Status != domain.OrderStatusPending {
		return false, nil
	}
	o.Status = domain.OrderStatusExpired
	expired := expiredAt
	o.Expiry.ExpiredAt = &expired
	f.orders[orderID] = o
	return true, nil
}

func (f *fakeReconcileRepo) ListExpirable(_ context.Context, now time.Time, limit int) ([]domain.Order, error) {
	var due []domain.Order
	for _, o := range f.orders {
		if o.Status == domain.OrderStatusPending && !o.Expiry.ExpiresAt.After(now) {
			due = append(due, o)
		}
		if len(due) == limit {
			break
		}
	}
	return due, nil
}

func (f *fakeReconcileRepo) CountUnitsReservedBy(_ context.Context, unitIDs []string, orderID string) (int, error) {
	count := 0
	for _, id := range unitIDs {
		if f.reserved[id] == orderID {
			count++
		}
	}
	return count, nil
}

type release struct {
	unitIDs []string
	orderID string
}

type fakeReleaser struct {
	released []release
	err      error
}

func (f *fakeReleaser) Release(_ context.Context, unitIDs []string, orderID string) error {
	if f.err != nil {
		return f.err
	}
	f.released = append(f.released, release{unitIDs: unitIDs, orderID: orderID})
	return nil
}

type fakeIssuer struct {
	calls  int
	result IssueResult
}

func (f *fakeIssuer) IssueForOrder(_ context.Context, _ string) (IssueResult, error) {
	f.calls++
	return f.result, nil
}
