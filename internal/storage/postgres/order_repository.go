package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/domain"
)

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const orderColumns = `
id, buyer_id, unit_ids, quantity, status,
expected_amount::text, paid_amount::text, overpaid_amount::text,
tx_hash, confirmations, paid_at,
expires_at, expired_at,
referrer_id, commission_rate::text, commission_amount::text,
buyer_note, created_at`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o                        domain.Order
		expected, paid, overpaid string
		rate, commission         string
		txHash, referrerID       *string
	)
	err := row.Scan(
		&o.ID, &o.BuyerID, &o.UnitIDs, &o.Quantity, &o.Status,
		&expected, &paid, &overpaid,
		&txHash, &o.Payment.Confirmations, &o.Payment.PaidAt,
		&o.Expiry.ExpiresAt, &o.Expiry.ExpiredAt,
		&referrerID, &rate, &commission,
		&o.BuyerNote, &o.CreatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	if o.Payment.ExpectedAmount, err = decimal.NewFromString(expected); err != nil {
		return domain.Order{}, fmt.Errorf("parse expected amount: %w", err)
	}
	if o.Payment.PaidAmount, err = decimal.NewFromString(paid); err != nil {
		return domain.Order{}, fmt.Errorf("parse paid amount: %w", err)
	}
	if o.Payment.OverpaidAmount, err = decimal.NewFromString(overpaid); err != nil {
		return domain.Order{}, fmt.Errorf("parse overpaid amount: %w", err)
	}
	if o.Referral.CommissionRate, err = decimal.NewFromString(rate); err != nil {
		return domain.Order{}, fmt.Errorf("parse commission rate: %w", err)
	}
	if o.Referral.CommissionAmount, err = decimal.NewFromString(commission); err != nil {
		return domain.Order{}, fmt.Errorf("parse commission amount: %w", err)
	}
	if txHash != nil {
		o.Payment.TxHash = *txHash
	}
	if referrerID != nil {
		o.Referral.ReferrerID = *referrerID
	}
	return o, nil
}

func (r *OrderRepository) CreateOrder(ctx context.Context, order domain.Order) error {
	const stmt = `
INSERT INTO orders (
	id, buyer_id, unit_ids, quantity, status,
	expected_amount, paid_amount, overpaid_amount, confirmations,
	expires_at, referrer_id, commission_rate, commission_amount, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	var referrerID *string
	if order.Referral.ReferrerID != "" {
		referrerID = &order.Referral.ReferrerID
	}

	_, err := exec(ctx, r.pool, stmt,
		order.ID,
		order.BuyerID,
		order.UnitIDs,
		order.Quantity,
		order.Status,
		order.Payment.ExpectedAmount.String(),
		order.Payment.PaidAmount.String(),
		order.Payment.OverpaidAmount.String(),
		order.Payment.Confirmations,
		order.Expiry.ExpiresAt,
		referrerID,
		order.Referral.CommissionRate.String(),
		order.Referral.CommissionAmount.String(),
		order.CreatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	o, err := scanOrder(queryRow(ctx, r.pool, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Order{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (r *OrderRepository) GetOrderForUpdate(ctx context.Context, orderID string) (domain.Order, error) {
	o, err := scanOrder(queryRow(ctx, r.pool, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Order{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("get order for update: %w", err)
	}
	return o, nil
}

func (r *OrderRepository) FindOrderByTxHash(ctx context.Context, txHash string) (*domain.Order, error) {
	o, err := scanOrder(queryRow(ctx, r.pool, `SELECT `+orderColumns+` FROM orders WHERE tx_hash = $1`, txHash))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find order by tx hash: %w", err)
	}
	return &o, nil
}

func (r *OrderRepository) RecordPaymentProgress(ctx context.Context, orderID string, p domain.Payment) error {
	const stmt = `
UPDATE orders
SET tx_hash = $2, confirmations = $3, paid_amount = $4, overpaid_amount = $5
WHERE id = $1`

	_, err := exec(ctx, r.pool, stmt, orderID, p.TxHash, p.Confirmations, p.PaidAmount.String(), p.OverpaidAmount.String())
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicatePayment
		}
		return fmt.Errorf("record payment progress: %w", err)
	}
	return nil
}

// MarkOrderPaid is the conditional paid transition: it succeeds only while
// the order is still settleable, so concurrent observers race on the row
// predicate instead of read-then-write.
func (r *OrderRepository) MarkOrderPaid(ctx context.Context, orderID string, p domain.Payment, paidAt time.Time) (bool, error) {
	const stmt = `
UPDATE orders
SET status = 'paid', tx_hash = $2, confirmations = $3,
    paid_amount = $4, overpaid_amount = $5, paid_at = $6
WHERE id = $1 AND status IN ('pending', 'late_payment', 'expired', 'failed')`

	tag, err := exec(ctx, r.pool, stmt, orderID, p.TxHash, p.Confirmations, p.PaidAmount.String(), p.OverpaidAmount.String(), paidAt)
	if err != nil {
		if isUniqueViolation(err) {
			return false, domain.ErrDuplicatePayment
		}
		return false, fmt.Errorf("mark order paid: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkOrderLatePayment claims any still-settleable order, not just pending
// ones: the expiry sweep usually runs before a late observation arrives, and
// parking must still record the payment then. expired_at is kept as audit.
func (r *OrderRepository) MarkOrderLatePayment(ctx context.Context, orderID string, p domain.Payment) (bool, error) {
	const stmt = `
UPDATE orders
SET status = 'late_payment', tx_hash = $2, confirmations = $3,
    paid_amount = $4, overpaid_amount = $5
WHERE id = $1 AND status IN ('pending', 'expired', 'failed')`

	tag, err := exec(ctx, r.pool, stmt, orderID, p.TxHash, p.Confirmations, p.PaidAmount.String(), p.OverpaidAmount.String())
	if err != nil {
		if isUniqueViolation(err) {
			return false, domain.ErrDuplicatePayment
		}
		return false, fmt.Errorf("mark order late payment: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *OrderRepository) MarkOrderExpired(ctx context.Context, orderID string, expiredAt time.Time) (bool, error) {
	const stmt = `
UPDATE orders
SET status = 'expired', expired_at = $2
WHERE id = $1 AND status = 'pending'`

	tag, err := exec(ctx, r.pool, stmt, orderID, expiredAt)
	if err != nil {
		return false, fmt.Errorf("mark order expired: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *OrderRepository) ListExpirable(ctx context.Context, now time.Time, limit int) ([]domain.Order, error) {
	q := `SELECT ` + orderColumns + `
FROM orders
WHERE status = 'pending' AND expires_at <= $1
ORDER BY expires_at
LIMIT $2`

	rows, err := query(ctx, r.pool, q, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expirable orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r *OrderRepository) ApplyOrderUpdate(ctx context.Context, orderID string, upd domain.OrderUpdate) error {
	if upd.BuyerNote != nil {
		if _, err := exec(ctx, r.pool, `UPDATE orders SET buyer_note = $2 WHERE id = $1`, orderID, *upd.BuyerNote); err != nil {
			return fmt.Errorf("update order note: %w", err)
		}
	}
	if upd.Status != nil {
		if _, err := exec(ctx, r.pool, `UPDATE orders SET status = $2 WHERE id = $1`, orderID, *upd.Status); err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
	}
	return nil
}

// CountUnitsReservedBy lives here rather than on the unit repository so the
// reconciler can check reservations inside its own transaction scope.
func (r *OrderRepository) CountUnitsReservedBy(ctx context.Context, unitIDs []string, orderID string) (int, error) {
	const q = `
SELECT COUNT(*)
FROM units
WHERE id = ANY($1) AND status = 'reserved' AND order_id = $2`

	var count int
	if err := queryRow(ctx, r.pool, q, unitIDs, orderID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count units reserved: %w", err)
	}
	return count, nil
}
