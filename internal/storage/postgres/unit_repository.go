package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/domain"
)

type UnitRepository struct {
	pool *pgxpool.Pool
}

func NewUnitRepository(pool *pgxpool.Pool) *UnitRepository {
	return &UnitRepository{pool: pool}
}

func (r *UnitRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *UnitRepository) CreateUnit(ctx context.Context, unit domain.Unit) error {
	const stmt = `
INSERT INTO units (id, state_code, area_code, status, created_at)
VALUES ($1, $2, $3, $4, $5)`

	_, err := exec(ctx, r.pool, stmt, unit.ID, unit.StateCode, unit.AreaCode, unit.Status, unit.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create unit: %w", err)
	}
	return nil
}

const unitColumns = `id, state_code, area_code, status, order_id, lock_expires_at, owner_id, owned_at, created_at`

func scanUnit(row pgx.Row) (domain.Unit, error) {
	var (
		u       domain.Unit
		orderID *string
		ownerID *string
	)
	err := row.Scan(&u.ID, &u.StateCode, &u.AreaCode, &u.Status, &orderID, &u.LockExpiresAt, &ownerID, &u.OwnedAt, &u.CreatedAt)
	if err != nil {
		return domain.Unit{}, err
	}
	if orderID != nil {
		u.OrderID = *orderID
	}
	if ownerID != nil {
		u.OwnerID = *ownerID
	}
	return u, nil
}

func (r *UnitRepository) GetUnit(ctx context.Context, unitID string) (domain.Unit, error) {
	u, err := scanUnit(queryRow(ctx, r.pool, `SELECT `+unitColumns+` FROM units WHERE id = $1`, unitID))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Unit{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Unit{}, domain.ErrUnitNotFound
		}
		return domain.Unit{}, fmt.Errorf("get unit: %w", err)
	}
	return u, nil
}

func (r *UnitRepository) ListUnits(ctx context.Context, stateCode, areaCode string, status domain.UnitStatus) ([]domain.Unit, error) {
	const q = `
SELECT ` + unitColumns + `
FROM units
WHERE ($1 = '' OR state_code = $1)
  AND ($2 = '' OR area_code = $2)
  AND ($3 = '' OR status = $3)
ORDER BY created_at, id`

	rows, err := query(ctx, r.pool, q, stateCode, areaCode, string(status))
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	defer rows.Close()

	var units []domain.Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

// ReserveUnits flips available units to reserved in one conditional
// statement. The caller compares the affected count against the batch size
// and rolls back on a shortfall, so reservation is all-or-nothing.
func (r *UnitRepository) ReserveUnits(ctx context.Context, unitIDs []string, orderID string, lockExpiresAt time.Time) (int, error) {
	const stmt = `
UPDATE units
SET status = 'reserved', order_id = $2, lock_expires_at = $3
WHERE id = ANY($1) AND status = 'available'`

	tag, err := exec(ctx, r.pool, stmt, unitIDs, orderID, lockExpiresAt)
	if err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		return 0, fmt.Errorf("reserve units: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *UnitRepository) ReleaseUnits(ctx context.Context, unitIDs []string, orderID string) error {
	const stmt = `
UPDATE units
SET status = 'available', order_id = NULL, lock_expires_at = NULL
WHERE id = ANY($1) AND status = 'reserved' AND order_id = $2`

	if _, err := exec(ctx, r.pool, stmt, unitIDs, orderID); err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("release units: %w", err)
	}
	return nil
}

// MarkUnitsSold flips units reserved by orderID to sold, clearing the
// reservation lock in the same statement.
func (r *UnitRepository) MarkUnitsSold(ctx context.Context, unitIDs []string, orderID, ownerID string, ownedAt time.Time) (int, error) {
	const stmt = `
UPDATE units
SET status = 'sold', owner_id = $3, owned_at = $4, lock_expires_at = NULL
WHERE id = ANY($1) AND status = 'reserved' AND order_id = $2`

	tag, err := exec(ctx, r.pool, stmt, unitIDs, orderID, ownerID, ownedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		return 0, fmt.Errorf("mark units sold: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *UnitRepository) CountUnitsSoldTo(ctx context.Context, unitIDs []string, orderID string) (int, error) {
	const q = `
SELECT COUNT(*)
FROM units
WHERE id = ANY($1) AND status = 'sold' AND order_id = $2`

	var count int
	if err := queryRow(ctx, r.pool, q, unitIDs, orderID).Scan(&count); err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		return 0, fmt.Errorf("count units sold: %w", err)
	}
	return count, nil
}

func (r *UnitRepository) CountUnitsReservedBy(ctx context.Context, unitIDs []string, orderID string) (int, error) {
	const q = `
SELECT COUNT(*)
FROM units
WHERE id = ANY($1) AND status = 'reserved' AND order_id = $2`

	var count int
	if err := queryRow(ctx, r.pool, q, unitIDs, orderID).Scan(&count); err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		return 0, fmt.Errorf("count units reserved: %w", err)
	}
	return count, nil
}
