package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/clock"
	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/domain"
	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/metrics"
)

type DeedRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateDeed(ctx context.Context, deed domain.Deed) error
	GetDeed(ctx context.Context, deedID string) (domain.Deed, error)
	FindDeedByUnit(ctx context.Context, unitID string) (*domain.Deed, error)
	ListDeedsByOrder(ctx context.Context, orderID string) ([]domain.Deed, error)
}

// OrderSource is the read-side the issuer needs.
type OrderSource interface {
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
}

// UnitSeller flips units to sold once their deed exists.
type UnitSeller interface {
	MarkSold(ctx context.Context, unitIDs []string, orderID, ownerID string, ownedAt time.Time) error
	GetUnit(ctx context.Context, unitID string) (domain.Unit, error)
}

// OwnerSource resolves the buyer for the owner snapshot copied onto deeds.
type OwnerSource interface {
	GetUser(ctx context.Context, userID string) (domain.User, error)
}

// DeedNotifier delivers the human-readable confirmation. Fire and forget:
// its failure never affects issuance.
type DeedNotifier interface {
	DeedIssued(ctx context.Context, deed domain.Deed, owner domain.User) error
}

// UnitIssueError reports one unit the issuer had to skip.
type UnitIssueError struct {
	UnitID string
	Err    error
}

type IssueResult struct {
	Issued   []domain.Deed
	Existing int // units that already had a deed
	Skipped  []UnitIssueError
}

// DeedService issues exactly one immutable deed per unit of a paid order.
// Issuance is idempotent and resumable: a crash mid-loop, a retried
// settlement, or a unique-constraint collision all converge on the same
// final set of deeds.
type DeedService struct {
	repo     DeedRepository
	orders   OrderSource
	ledger   UnitSeller
	owners   OwnerSource
	notifier DeedNotifier
	clock    clock.Clock

	contractAddress string
	chain           string
	standard        string
}

type DeedServiceOption func(*DeedService)

// WithNFTContract sets the contract coordinates stamped on new deeds.
func WithNFTContract(address, chain, standard string) DeedServiceOption {
	return func(s *DeedService) {
		s.contractAddress = address
		s.chain = chain
		s.standard = standard
	}
}

func NewDeedService(repo DeedRepository, orders OrderSource, ledger UnitSeller, owners OwnerSource, notifier DeedNotifier, clk clock.Clock, opts ...DeedServiceOption) *DeedService {
	svc := &DeedService{
		repo:     repo,
		orders:   orders,
		ledger:   ledger,
		owners:   owners,
		notifier: notifier,
		clock:    clk,
		chain:    "polygon",
		standard: "ERC-721",
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// IssueForOrder creates the missing deeds for a paid order. Per-unit
// failures are isolated: a missing unit is reported and skipped, the rest
// of the order still settles.
func (s *DeedService) IssueForOrder(ctx context.Context, orderID string) (IssueResult, error) {
	if orderID == "" {
		return IssueResult{}, domain.ErrInvalidID
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return IssueResult{}, err
	}
	if order.Status != domain.OrderStatusPaid {
		return IssueResult{}, domain.ErrOrderNotPaid
	}

	owner, err := s.owners.GetUser(ctx, order.BuyerID)
	if err != nil {
		return IssueResult{}, err
	}

	issuedAt := s.clock.Now()
	if order.Payment.PaidAt != nil {
		// Anchoring on the payment time keeps seal numbers stable
		// across retries.
		issuedAt = *order.Payment.PaidAt
	}

	var result IssueResult
	for _, unitID := range order.UnitIDs {
		deed, outcome, err := s.issueUnit(ctx, order, owner, unitID, issuedAt)
		switch {
		case err != nil:
			result.Skipped = append(result.Skipped, UnitIssueError{UnitID: unitID, Err: err})
		case outcome == issueOutcomeExisting:
			result.Existing++
		default:
			result.Issued = append(result.Issued, deed)
			metrics.RecordDeedIssued()
			s.notify(ctx, deed, owner)
		}
	}
	return result, nil
}

type issueOutcome int

const (
	issueOutcomeCreated issueOutcome = iota
	issueOutcomeExisting
)

// issueUnit creates one deed and flips its unit to sold, in one
// transaction per unit so a crash mid-order is resumable.
func (s *DeedService) issueUnit(ctx context.Context, order domain.Order, owner domain.User, unitID string, issuedAt time.Time) (domain.Deed, issueOutcome, error) {
	existing, err := s.repo.FindDeedByUnit(ctx, unitID)
	if err != nil {
		return domain.Deed{}, 0, err
	}
	if existing != nil {
		// Re-run after a crash: make sure the unit also reached sold.
		if err := s.ledger.MarkSold(ctx, []string{unitID}, order.ID, owner.ID, issuedAt); err != nil {
			return domain.Deed{}, 0, err
		}
		return *existing, issueOutcomeExisting, nil
	}

	unit, err := s.ledger.GetUnit(ctx, unitID)
	if err != nil {
		return domain.Deed{}, 0, err
	}

	deed := domain.Deed{
		ID:            newID(),
		OrderID:       order.ID,
		UnitID:        unit.ID,
		TxHash:        order.Payment.TxHash,
		SealNo:        domain.SealNumber(unit.ID, issuedAt),
		OwnerID:       owner.ID,
		OwnerName:     owner.Name,
		OwnerLocation: owner.Location,
		IssuedAt:      issuedAt,
	}
	deed.NFT = domain.NFT{
		TokenID:         domain.PlaceholderToken(deed.ID),
		ContractAddress: s.contractAddress,
		Chain:           s.chain,
		Standard:        s.standard,
	}

	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.CreateDeed(txCtx, deed); err != nil {
			return err
		}
		return s.ledger.MarkSold(txCtx, []string{unitID}, order.ID, owner.ID, issuedAt)
	})
	if err != nil {
		if err == domain.ErrDeedAlreadyIssued {
			// Concurrent issuance won; converge on its deed.
			winner, ferr := s.repo.FindDeedByUnit(ctx, unitID)
			if ferr == nil && winner != nil {
				return *winner, issueOutcomeExisting, nil
			}
			return domain.Deed{}, issueOutcomeExisting, nil
		}
		return domain.Deed{}, 0, err
	}
	return deed, issueOutcomeCreated, nil
}

func (s *DeedService) notify(ctx context.Context, deed domain.Deed, owner domain.User) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.DeedIssued(ctx, deed, owner); err != nil {
		log.Warn().Err(err).Str("deedID", deed.ID).Msg("deed notification failed")
	}
}

func (s *DeedService) GetDeed(ctx context.Context, deedID string) (domain.Deed, error) {
	if deedID == "" {
		return domain.Deed{}, domain.ErrInvalidID
	}
	return s.repo.GetDeed(ctx, deedID)
}

func (s *DeedService) ListDeedsByOrder(ctx context.Context, orderID string) ([]domain.Deed, error) {
	if orderID == "" {
		return nil, domain.ErrInvalidID
	}
	return s.repo.ListDeedsByOrder(ctx, orderID)
}

// UpdateDeed is the general write path for deeds. Every field is frozen
// after issuance, so this only ever returns the guard's verdict; mint
// results travel through MintService.PatchMintResult instead.
func (s *DeedService) UpdateDeed(ctx context.Context, deedID string, upd domain.DeedUpdate) error {
	if deedID == "" {
		return domain.ErrInvalidID
	}
	if _, err := s.repo.GetDeed(ctx, deedID); err != nil {
		return err
	}
	return domain.GuardDeedUpdate(upd)
}
