package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/domain"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const userColumns = `
id, email, name, location, wallet_address, password_hash, role,
referral_code, referred_by, commission_rate::text,
referred_orders, paid_orders, total_commission::text,
created_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		u                domain.User
		referredBy       *string
		rate, commission string
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.Name, &u.Location, &u.WalletAddress, &u.PasswordHash, &u.Role,
		&u.ReferralCode, &referredBy, &rate,
		&u.Stats.ReferredOrders, &u.Stats.PaidOrders, &commission,
		&u.CreatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	if referredBy != nil {
		u.ReferredBy = *referredBy
	}
	if u.CommissionRate, err = decimal.NewFromString(rate); err != nil {
		return domain.User{}, fmt.Errorf("parse commission rate: %w", err)
	}
	if u.Stats.TotalCommission, err = decimal.NewFromString(commission); err != nil {
		return domain.User{}, fmt.Errorf("parse total commission: %w", err)
	}
	return u, nil
}

func (r *UserRepository) CreateUser(ctx context.Context, user domain.User) error {
	const stmt = `
INSERT INTO users (
	id, email, name, location, wallet_address, password_hash, role,
	referral_code, referred_by, commission_rate, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	var referredBy *string
	if user.ReferredBy != "" {
		referredBy = &user.ReferredBy
	}

	_, err := exec(ctx, r.pool, stmt,
		user.ID, user.Email, user.Name, user.Location, user.WalletAddress, user.PasswordHash, user.Role,
		user.ReferralCode, referredBy, user.CommissionRate.String(), user.CreatedAt,
	)
	if err != nil {
		switch uniqueConstraint(err) {
		case "users_referral_code_key":
			return domain.ErrReferralCodeTaken
		case "users_email_key":
			return domain.ErrEmailTaken
		}
		if isUniqueViolation(err) {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetUser(ctx context.Context, userID string) (domain.User, error) {
	u, err := scanUser(queryRow(ctx, r.pool, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.User{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *UserRepository) FindByReferralCode(ctx context.Context, code string) (*domain.User, error) {
	u, err := scanUser(queryRow(ctx, r.pool, `SELECT `+userColumns+` FROM users WHERE referral_code = $1`, code))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find user by referral code: %w", err)
	}
	return &u, nil
}

// ApplyUserUpdate writes profile fields only. Role changes go through
// SetRole and referral codes are never rewritten.
func (r *UserRepository) ApplyUserUpdate(ctx context.Context, userID string, upd domain.UserUpdate) error {
	const stmt = `
UPDATE users
SET name = COALESCE($2, name),
    location = COALESCE($3, location),
    wallet_address = COALESCE($4, wallet_address),
    role = COALESCE($5, role)
WHERE id = $1`

	var role *string
	if upd.Role != nil {
		s := string(*upd.Role)
		role = &s
	}

	tag, err := exec(ctx, r.pool, stmt, userID, upd.Name, upd.Location, upd.WalletAddress, role)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) SetRole(ctx context.Context, userID string, role domain.Role) error {
	tag, err := exec(ctx, r.pool, `UPDATE users SET role = $2 WHERE id = $1`, userID, role)
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) AggregateReferralStats(ctx context.Context, referrerID string) (domain.ReferralStats, error) {
	const q = `
SELECT
	COUNT(*),
	COUNT(*) FILTER (WHERE status = 'paid'),
	COALESCE(SUM(commission_amount) FILTER (WHERE status = 'paid'), 0)::text
FROM orders
WHERE referrer_id = $1`

	var (
		stats      domain.ReferralStats
		commission string
	)
	if err := queryRow(ctx, r.pool, q, referrerID).Scan(&stats.ReferredOrders, &stats.PaidOrders, &commission); err != nil {
		return domain.ReferralStats{}, fmt.Errorf("aggregate referral stats: %w", err)
	}
	var err error
	if stats.TotalCommission, err = decimal.NewFromString(commission); err != nil {
		return domain.ReferralStats{}, fmt.Errorf("parse total commission: %w", err)
	}
	return stats, nil
}

func (r *UserRepository) SaveReferralStats(ctx context.Context, userID string, stats domain.ReferralStats) error {
	const stmt = `
UPDATE users
SET referred_orders = $2, paid_orders = $3, total_commission = $4
WHERE id = $1`

	tag, err := exec(ctx, r.pool, stmt, userID, stats.ReferredOrders, stats.PaidOrders, stats.TotalCommission.String())
	if err != nil {
		return fmt.Errorf("save referral stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
