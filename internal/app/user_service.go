package app

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/clock"
	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/domain"
)

type UserRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateUser(ctx context.Context, user domain.User) error
	GetUser(ctx context.Context, userID string) (domain.User, error)
	FindByReferralCode(ctx context.Context, code string) (*domain.User, error)
	// ApplyUserUpdate persists profile fields only; role and referral
	// code never travel through it.
	ApplyUserUpdate(ctx context.Context, userID string, upd domain.UserUpdate) error
	// SetRole is the privileged, out-of-band path for role changes.
	SetRole(ctx context.Context, userID string, role domain.Role) error
	// AggregateReferralStats recomputes the counters from referred orders.
	AggregateReferralStats(ctx context.Context, referrerID string) (domain.ReferralStats, error)
	SaveReferralStats(ctx context.Context, userID string, stats domain.ReferralStats) error
}

type UserService struct {
	repo  UserRepository
	clock clock.Clock
}

func NewUserService(repo UserRepository, clk clock.Clock) *UserService {
	return &UserService{
		repo:  repo,
		clock: clk,
	}
}

type RegisterInput struct {
	Email          string
	Name           string
	Password       string
	Location       string
	WalletAddress  string
	ReferredBy     string // referral code of the referrer, optional
	CommissionRate string // decimal string, optional
}

const referralCodeAttempts = 5

// Register creates a buyer with a collision-checked, globally unique
// referral code.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	if in.Email == "" || in.Name == "" {
		return domain.User{}, domain.ErrInvalidID
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}

	rate := decimal.Zero
	if in.CommissionRate != "" {
		rate, err = decimal.NewFromString(in.CommissionRate)
		if err != nil || rate.Sign() < 0 || rate.Cmp(decimal.NewFromInt(1)) > 0 {
			return domain.User{}, domain.ErrInvalidAmount
		}
	}

	user := domain.User{
		ID:             newID(),
		Email:          in.Email,
		Name:           in.Name,
		Location:       in.Location,
		WalletAddress:  in.WalletAddress,
		PasswordHash:   string(hash),
		Role:           domain.RoleBuyer,
		ReferredBy:     in.ReferredBy,
		CommissionRate: rate,
		CreatedAt:      s.clock.Now(),
	}

	// The unique index arbitrates code collisions; on a hit we draw a
	// fresh code and try again.
	for attempt := 0; attempt < referralCodeAttempts; attempt++ {
		user.ReferralCode = newReferralCode()
		err := s.repo.CreateUser(ctx, user)
		if err == domain.ErrReferralCodeTaken {
			continue
		}
		if err != nil {
			return domain.User{}, err
		}
		return user, nil
	}
	return domain.User{}, domain.ErrReferralCodeTaken
}

func newReferralCode() string {
	b := make([]byte, 5)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return strings.ToUpper(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b))
}

func (s *UserService) GetUser(ctx context.Context, userID string) (domain.User, error) {
	if userID == "" {
		return domain.User{}, domain.ErrInvalidID
	}
	return s.repo.GetUser(ctx, userID)
}

func (s *UserService) FindByReferralCode(ctx context.Context, code string) (*domain.User, error) {
	if code == "" {
		return nil, domain.ErrInvalidID
	}
	return s.repo.FindByReferralCode(ctx, code)
}

// UpdateProfile applies an ordinary-path update. Role elevation is rejected
// by the write-boundary guard; PromoteToAdmin is the only way up.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, upd domain.UserUpdate) (domain.User, error) {
	if userID == "" {
		return domain.User{}, domain.ErrInvalidID
	}

	var result domain.User
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		current, err := s.repo.GetUser(txCtx, userID)
		if err != nil {
			return err
		}
		if err := domain.GuardUserUpdate(current, upd); err != nil {
			return err
		}
		if err := s.repo.ApplyUserUpdate(txCtx, userID, upd); err != nil {
			return err
		}
		result, err = s.repo.GetUser(txCtx, userID)
		return err
	})
	if err != nil {
		return domain.User{}, err
	}
	return result, nil
}

// PromoteToAdmin is the privileged out-of-band role change.
func (s *UserService) PromoteToAdmin(ctx context.Context, userID string) error {
	if userID == "" {
		return domain.ErrInvalidID
	}
	return s.repo.SetRole(ctx, userID, domain.RoleAdmin)
}

// RefreshReferralStats recomputes a referrer's counters from the orders
// that reference them. The stored counters lag until the next refresh.
func (s *UserService) RefreshReferralStats(ctx context.Context, userID string) (domain.ReferralStats, error) {
	if userID == "" {
		return domain.ReferralStats{}, domain.ErrInvalidID
	}

	stats, err := s.repo.AggregateReferralStats(ctx, userID)
	if err != nil {
		return domain.ReferralStats{}, err
	}
	if err := s.repo.SaveReferralStats(ctx, userID, stats); err != nil {
		return domain.ReferralStats{}, err
	}
	return stats, nil
}
