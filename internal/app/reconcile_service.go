package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/clock"
	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/domain"
	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/metrics"
)

type ReconcileRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetOrderForUpdate(ctx context.Context, orderID string) (domain.Order, error)
	FindOrderByTxHash(ctx context.Context, txHash string) (*domain.Order, error)
	// RecordPaymentProgress stores partial payment state without touching
	// the order status.
	RecordPaymentProgress(ctx context.Context, orderID string, p domain.Payment) error
	// MarkOrderPaid flips the order to paid only if it is still in a
	// settleable status. Returns false when a concurrent writer won.
	MarkOrderPaid(ctx context.Context, orderID string, p domain.Payment, paidAt time.Time) (bool, error)
	// MarkOrderLatePayment parks a valid-but-late payment for review. It
	// claims any still-settleable order, so a sweep that already expired
	// the order does not cause the payment to be dropped.
	MarkOrderLatePayment(ctx context.Context, orderID string, p domain.Payment) (bool, error)
	// MarkOrderExpired flips a pending order to expired. Returns false
	// when the order left pending in the meantime.
	MarkOrderExpired(ctx context.Context, orderID string, expiredAt time.Time) (bool, error)
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]domain.Order, error)
	CountUnitsReservedBy(ctx context.Context, unitIDs []string, orderID string) (int, error)
}

// UnitReleaser is the slice of the ledger the reconciler needs on expiry.
type UnitReleaser interface {
	Release(ctx context.Context, unitIDs []string, orderID string) error
}

// DeedIssuer is invoked exactly once per order, on the paid transition.
type DeedIssuer interface {
	IssueForOrder(ctx context.Context, orderID string) (IssueResult, error)
}

// Observation is a payment sighting produced by the chain watcher. Either
// OrderID or TxHash identifies the order.
type Observation struct {
	OrderID       string
	TxHash        string
	AmountUSDT    string // decimal string
	Confirmations int
	ObservedAt    time.Time
}

type ObservationOutcome string

const (
	OutcomePaid        ObservationOutcome = "paid"
	OutcomeLatePayment ObservationOutcome = "late_payment"
	OutcomePartial     ObservationOutcome = "partial"
	OutcomeNoop        ObservationOutcome = "noop"
)

type ObservationResult struct {
	Order        domain.Order
	Outcome      ObservationOutcome
	Transitioned bool // this call won the paid transition
	Issued       IssueResult
}

// ReconcileService drives the order state machine from payment observations
// and the expiry sweep. The paid transition is guarded by a conditional
// update so at most one observation ever wins it.
type ReconcileService struct {
	repo          ReconcileRepository
	ledger        UnitReleaser
	issuer        DeedIssuer
	clock         clock.Clock
	requiredConfs int
}

const defaultRequiredConfirmations = 3

func NewReconcileService(repo ReconcileRepository, ledger UnitReleaser, issuer DeedIssuer, clk clock.Clock, opts ...ReconcileServiceOption) *ReconcileService {
	svc := &ReconcileService{
		repo:          repo,
		ledger:        ledger,
		issuer:        issuer,
		clock:         clk,
		requiredConfs: defaultRequiredConfirmations,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type ReconcileServiceOption func(*ReconcileService)

// WithRequiredConfirmations overrides the finality threshold.
func WithRequiredConfirmations(n int) ReconcileServiceOption {
	return func(s *ReconcileService) {
		if n > 0 {
			s.requiredConfs = n
		}
	}
}

// ApplyObservation matches an observation to its order and advances the
// state machine. Settlement state changes commit atomically; deed issuance
// runs after commit and is independently resumable.
func (s *ReconcileService) ApplyObservation(ctx context.Context, obs Observation) (ObservationResult, error) {
	if obs.TxHash == "" {
		return ObservationResult{}, domain.ErrInvalidID
	}
	if obs.Confirmations < 0 {
		return ObservationResult{}, domain.ErrStaleObservation
	}
	amount, err := decimal.NewFromString(obs.AmountUSDT)
	if err != nil || amount.Sign() <= 0 {
		return ObservationResult{}, domain.ErrInvalidAmount
	}

	var result ObservationResult
	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		order, err := s.resolveOrder(txCtx, obs)
		if err != nil {
			return err
		}

		// A hash already claimed by a different order is surfaced for
		// manual review, never retried into this order.
		if claimant, err := s.repo.FindOrderByTxHash(txCtx, obs.TxHash); err != nil {
			return err
		} else if claimant != nil && claimant.ID != order.ID {
			return domain.ErrDuplicatePayment
		}

		// Confirmation counts only move forward for a given hash; a
		// decreasing count is an out-of-order signal.
		if order.Payment.TxHash == obs.TxHash && obs.Confirmations < order.Payment.Confirmations {
			return domain.ErrStaleObservation
		}

		if order.Status == domain.OrderStatusPaid {
			if order.Payment.TxHash == obs.TxHash {
				result = ObservationResult{Order: order, Outcome: OutcomeNoop}
				return nil
			}
			return domain.ErrOrderAlreadyPaid
		}

		payment := order.Payment
		payment.TxHash = obs.TxHash
		payment.Confirmations = obs.Confirmations
		payment.PaidAmount = amount
		payment.OverpaidAmount = decimal.Zero
		if over := amount.Sub(payment.ExpectedAmount); over.Sign() > 0 {
			payment.OverpaidAmount = over
		}

		sufficient := amount.Cmp(payment.ExpectedAmount) >= 0 && obs.Confirmations >= s.requiredConfs
		if !sufficient {
			if err := s.repo.RecordPaymentProgress(txCtx, order.ID, payment); err != nil {
				return err
			}
			order.Payment = payment
			result = ObservationResult{Order: order, Outcome: OutcomePartial}
			return nil
		}

		if obs.ObservedAt.After(order.Expiry.ExpiresAt) {
			return s.parkLatePayment(txCtx, order, payment, &result)
		}

		return s.settle(txCtx, order, payment, obs.ObservedAt, &result)
	})
	if err != nil {
		metrics.RecordObservation("rejected")
		return ObservationResult{}, err
	}

	metrics.RecordObservation(string(result.Outcome))
	if result.Transitioned {
		result.Issued = s.issueDeeds(ctx, result.Order.ID)
	}
	return result, nil
}

func (s *ReconcileService) resolveOrder(ctx context.Context, obs Observation) (domain.Order, error) {
	if obs.OrderID != "" {
		return s.repo.GetOrderForUpdate(ctx, obs.OrderID)
	}
	existing, err := s.repo.FindOrderByTxHash(ctx, obs.TxHash)
	if err != nil {
		return domain.Order{}, err
	}
	if existing == nil {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return s.repo.GetOrderForUpdate(ctx, existing.ID)
}

func (s *ReconcileService) parkLatePayment(ctx context.Context, order domain.Order, payment domain.Payment, result *ObservationResult) error {
	if order.Status == domain.OrderStatusLatePayment {
		if err := s.repo.RecordPaymentProgress(ctx, order.ID, payment); err != nil {
			return err
		}
		order.Payment = payment
		*result = ObservationResult{Order: order, Outcome: OutcomeLatePayment}
		return nil
	}

	moved, err := s.repo.MarkOrderLatePayment(ctx, order.ID, payment)
	if err != nil {
		return err
	}
	if !moved {
		// Lost to a concurrent paid transition; re-read and report what
		// stands.
		current, err := s.repo.GetOrderForUpdate(ctx, order.ID)
		if err != nil {
			return err
		}
		*result = ObservationResult{Order: current, Outcome: OutcomeNoop}
		return nil
	}

	order.Status = domain.OrderStatusLatePayment
	order.Payment = payment
	*result = ObservationResult{Order: order, Outcome: OutcomeLatePayment}
	return nil
}

// settle performs the one-and-only paid transition. Any error aborts the
// whole transaction: a half-applied paid order could double-spend units.
func (s *ReconcileService) settle(ctx context.Context, order domain.Order, payment domain.Payment, paidAt time.Time, result *ObservationResult) error {
	if !order.Settleable() {
		return domain.ErrOrderNotPaid
	}

	// Orders that left pending may have had their units released or
	// resold; paying them again requires the reservation to still stand.
	if order.Status != domain.OrderStatusPending {
		held, err := s.repo.CountUnitsReservedBy(ctx, order.UnitIDs, order.ID)
		if err != nil {
			return err
		}
		if held != len(order.UnitIDs) {
			return domain.ErrUnitsNoLongerReserved
		}
	}

	won, err := s.repo.MarkOrderPaid(ctx, order.ID, payment, paidAt)
	if err != nil {
		return err
	}
	if !won {
		current, err := s.repo.GetOrderForUpdate(ctx, order.ID)
		if err != nil {
			return err
		}
		if current.Status == domain.OrderStatusPaid && current.Payment.TxHash == payment.TxHash {
			*result = ObservationResult{Order: current, Outcome: OutcomeNoop}
			return nil
		}
		return domain.ErrOrderAlreadyPaid
	}

	order.Status = domain.OrderStatusPaid
	order.Payment = payment
	order.Payment.PaidAt = &paidAt
	*result = ObservationResult{Order: order, Outcome: OutcomePaid, Transitioned: true}
	return nil
}

// PromoteLatePayment honors a parked late payment. The reconciler never
// promotes on its own, an operator decides. Promotion
// fails with ErrUnitsNoLongerReserved when the units were released or
// resold since expiry.
func (s *ReconcileService) PromoteLatePayment(ctx context.Context, orderID string) (ObservationResult, error) {
	if orderID == "" {
		return ObservationResult{}, domain.ErrInvalidID
	}

	now := s.clock.Now()
	var result ObservationResult
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		order, err := s.repo.GetOrderForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderStatusLatePayment {
			return domain.ErrOrderNotLate
		}
		return s.settle(txCtx, order, order.Payment, now, &result)
	})
	if err != nil {
		return ObservationResult{}, err
	}

	if result.Transitioned {
		result.Issued = s.issueDeeds(ctx, result.Order.ID)
	}
	return result, nil
}

// ExpireDue sweeps pending orders past their deadline, releasing their
// units. Best effort: each order expires in its own transaction and a
// failure on one does not stop the sweep.
func (s *ReconcileService) ExpireDue(ctx context.Context, limit int) (int, error) {
	now := s.clock.Now()
	due, err := s.repo.ListExpirable(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, order := range due {
		moved := false
		err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
			m, err := s.repo.MarkOrderExpired(txCtx, order.ID, now)
			if err != nil {
				return err
			}
			moved = m
			if !m {
				return nil
			}
			return s.ledger.Release(txCtx, order.UnitIDs, order.ID)
		})
		if err != nil {
			log.Warn().Err(err).Str("orderID", order.ID).Msg("expire sweep: order skipped")
			continue
		}
		if moved {
			expired++
		}
	}

	metrics.RecordExpired(expired)
	return expired, nil
}

// issueDeeds runs issuance after the paid transition committed. Issuance is
// idempotent, so failures here are logged and healed by a later retry
// rather than unwinding settlement.
func (s *ReconcileService) issueDeeds(ctx context.Context, orderID string) IssueResult {
	issued, err := s.issuer.IssueForOrder(ctx, orderID)
	if err != nil {
		log.Error().Err(err).Str("orderID", orderID).Msg("deed issuance failed, will retry")
		return issued
	}
	for _, skip := range issued.Skipped {
		log.Warn().Err(skip.Err).Str("orderID", orderID).Str("unitID", skip.UnitID).Msg("deed issuance: unit skipped")
	}
	return issued
}
