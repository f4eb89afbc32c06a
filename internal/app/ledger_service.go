package app

import (
	"context"
	"time"

	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/clock"
	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/domain"
)

type UnitRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateUnit(ctx context.Context, unit domain.Unit) error
	GetUnit(ctx context.Context, unitID string) (domain.Unit, error)
	ListUnits(ctx context.Context, stateCode, areaCode string, status domain.UnitStatus) ([]domain.Unit, error)
	// ReserveUnits conditionally flips available units to reserved and
	// returns how many rows actually changed.
	ReserveUnits(ctx context.Context, unitIDs []string, orderID string, lockExpiresAt time.Time) (int, error)
	// ReleaseUnits clears the reservation of units still held by orderID.
	ReleaseUnits(ctx context.Context, unitIDs []string, orderID string) error
	// MarkUnitsSold conditionally flips units reserved by orderID to sold
	// and returns how many rows changed.
	MarkUnitsSold(ctx context.Context, unitIDs []string, orderID, ownerID string, ownedAt time.Time) (int, error)
	// CountUnitsSoldTo counts units from the list already sold through orderID.
	CountUnitsSoldTo(ctx context.Context, unitIDs []string, orderID string) (int, error)
	// CountUnitsReservedBy counts units from the list still reserved by orderID.
	CountUnitsReservedBy(ctx context.Context, unitIDs []string, orderID string) (int, error)
}

// LedgerService owns unit status transitions. It is the single shared
// mutable resource across orders, so every transition is a conditional
// update: a losing concurrent writer sees a row count short of the batch
// and the whole batch rolls back.
type LedgerService struct {
	repo  UnitRepository
	clock clock.Clock
}

func NewLedgerService(repo UnitRepository, clk clock.Clock) *LedgerService {
	return &LedgerService{
		repo:  repo,
		clock: clk,
	}
}

// Reserve places an all-or-nothing hold on the units for orderID. If any
// unit is not available the whole reservation fails with ErrUnitNotAvailable
// and no unit is left partially held.
func (s *LedgerService) Reserve(ctx context.Context, unitIDs []string, orderID string, lockDuration time.Duration) error {
	if len(unitIDs) == 0 {
		return domain.ErrInvalidQuantity
	}

	lockExpiresAt := s.clock.Now().Add(lockDuration)
	return s.repo.WithTx(ctx, func(txCtx context.Context) error {
		reserved, err := s.repo.ReserveUnits(txCtx, unitIDs, orderID, lockExpiresAt)
		if err != nil {
			return err
		}
		if reserved != len(unitIDs) {
			// Rolling back the tx undoes the units that did flip.
			return domain.ErrUnitNotAvailable
		}
		return nil
	})
}

// Release returns units reserved by orderID to available. Units already
// re-reserved by another order are left alone.
func (s *LedgerService) Release(ctx context.Context, unitIDs []string, orderID string) error {
	if len(unitIDs) == 0 {
		return nil
	}
	return s.repo.ReleaseUnits(ctx, unitIDs, orderID)
}

// MarkSold transitions units reserved by orderID to sold. Safe to call
// twice with the same arguments: units already sold through the same order
// count toward the batch instead of failing it.
func (s *LedgerService) MarkSold(ctx context.Context, unitIDs []string, orderID, ownerID string, ownedAt time.Time) error {
	if len(unitIDs) == 0 {
		return nil
	}

	return s.repo.WithTx(ctx, func(txCtx context.Context) error {
		sold, err := s.repo.MarkUnitsSold(txCtx, unitIDs, orderID, ownerID, ownedAt)
		if err != nil {
			return err
		}
		if sold == len(unitIDs) {
			return nil
		}

		already, err := s.repo.CountUnitsSoldTo(txCtx, unitIDs, orderID)
		if err != nil {
			return err
		}
		if sold+already != len(unitIDs) {
			return domain.ErrUnitNotReserved
		}
		return nil
	})
}

type ImportUnitInput struct {
	StateCode string
	AreaCode  string
	Count     int
}

// ImportUnits creates a batch of available units in a region.
func (s *LedgerService) ImportUnits(ctx context.Context, in ImportUnitInput) ([]domain.Unit, error) {
	if in.StateCode == "" || in.AreaCode == "" {
		return nil, domain.ErrInvalidID
	}
	if in.Count <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	now := s.clock.Now()
	units := make([]domain.Unit, 0, in.Count)
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		for i := 0; i < in.Count; i++ {
			unit := domain.Unit{
				ID:        newID(),
				StateCode: in.StateCode,
				AreaCode:  in.AreaCode,
				Status:    domain.UnitStatusAvailable,
				CreatedAt: now,
			}
			if err := s.repo.CreateUnit(txCtx, unit); err != nil {
				return err
			}
			units = append(units, unit)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return units, nil
}

func (s *LedgerService) GetUnit(ctx context.Context, unitID string) (domain.Unit, error) {
	if unitID == "" {
		return domain.Unit{}, domain.ErrInvalidID
	}
	return s.repo.GetUnit(ctx, unitID)
}

func (s *LedgerService) ListUnits(ctx context.Context, stateCode, areaCode string, status domain.UnitStatus) ([]domain.Unit, error) {
	return s.repo.ListUnits(ctx, stateCode, areaCode, status)
}
