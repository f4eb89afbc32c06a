package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/domain"
	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/metrics"
	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/nft"
)

// Minter is the external minting collaborator.
type Minter interface {
	Mint(ctx context.Context, req nft.MintRequest) (nft.MintResponse, error)
}

type MintRepository interface {
	GetDeed(ctx context.Context, deedID string) (domain.Deed, error)
	// ListDeedsAwaitingMint returns deeds still carrying a placeholder
	// token and no marketplace URL.
	ListDeedsAwaitingMint(ctx context.Context, placeholderPattern string, limit int) ([]domain.Deed, error)
	// PatchMintResult updates only the NFT sub-record. It is the single
	// path around deed immutability.
	PatchMintResult(ctx context.Context, deedID string, result domain.MintResult) error
}

// WalletSource resolves the destination wallet for a deed's owner.
type WalletSource interface {
	GetUser(ctx context.Context, userID string) (domain.User, error)
}

// MintService coordinates on-chain minting for issued deeds. A deed keeps
// its placeholder token until a mint succeeds, so a failed attempt is
// found again by the retry pass and never produces a second deed or a
// second mint.
type MintService struct {
	repo    MintRepository
	wallets WalletSource
	minter  Minter

	contractAddress string
	chain           string
	standard        string
}

type MintServiceOption func(*MintService)

// WithMintContract sets the contract coordinates recorded on mint results.
func WithMintContract(address, chain, standard string) MintServiceOption {
	return func(s *MintService) {
		s.contractAddress = address
		s.chain = chain
		s.standard = standard
	}
}

func NewMintService(repo MintRepository, wallets WalletSource, minter Minter, opts ...MintServiceOption) *MintService {
	svc := &MintService{
		repo:     repo,
		wallets:  wallets,
		minter:   minter,
		chain:    "polygon",
		standard: "ERC-721",
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// MintDeed mints the NFT for one deed and patches the result onto it. A
// deed that already carries a real token is refused: re-minting is guarded
// here, before the external call.
func (s *MintService) MintDeed(ctx context.Context, deedID string) (domain.Deed, error) {
	if deedID == "" {
		return domain.Deed{}, domain.ErrInvalidID
	}

	deed, err := s.repo.GetDeed(ctx, deedID)
	if err != nil {
		return domain.Deed{}, err
	}
	if !deed.MintPending() {
		return domain.Deed{}, domain.ErrAlreadyMinted
	}

	owner, err := s.wallets.GetUser(ctx, deed.OwnerID)
	if err != nil {
		return domain.Deed{}, err
	}

	resp, err := s.minter.Mint(ctx, s.mintRequest(deed, owner))
	if err != nil {
		metrics.RecordMint("failed")
		// Placeholder token stays in place; the retry pass picks the
		// deed up again.
		return domain.Deed{}, fmt.Errorf("mint deed %s: %w: %v", deedID, domain.ErrExternalService, err)
	}

	result := domain.MintResult{
		TokenID:         resp.TokenID,
		ContractAddress: s.contractAddress,
		Chain:           s.chain,
		Standard:        s.standard,
		MintTxHash:      resp.TransactionHash,
		MarketplaceURL:  nft.OpenSeaURL(s.chain, s.contractAddress, resp.TokenID),
	}
	if err := s.repo.PatchMintResult(ctx, deedID, result); err != nil {
		return domain.Deed{}, err
	}

	metrics.RecordMint("minted")
	deed.NFT = domain.NFT(result)
	return deed, nil
}

// mintRequest derives deterministic metadata from deed fields only, so a
// retried mint sends the identical request.
func (s *MintService) mintRequest(deed domain.Deed, owner domain.User) nft.MintRequest {
	return nft.MintRequest{
		ToAddress: owner.WalletAddress,
		Metadata: nft.MintMetadata{
			Name:        fmt.Sprintf("WorldTile Deed %s", deed.SealNo),
			Description: fmt.Sprintf("Ownership certificate for land slot %s", deed.UnitID),
			Attributes: []nft.Attribute{
				{TraitType: "Seal", Value: deed.SealNo},
				{TraitType: "Unit", Value: deed.UnitID},
				{TraitType: "Owner", Value: deed.OwnerName},
				{TraitType: "Payment", Value: deed.TxHash},
			},
		},
	}
}

type RetryResult struct {
	Minted int
	Failed int
}

// RetryPending re-attempts every deed whose mint never completed. Failures
// are isolated per deed.
func (s *MintService) RetryPending(ctx context.Context, limit int) (RetryResult, error) {
	if limit <= 0 {
		limit = 50
	}

	pending, err := s.repo.ListDeedsAwaitingMint(ctx, domain.PlaceholderTokenPrefix+"%", limit)
	if err != nil {
		return RetryResult{}, err
	}

	var result RetryResult
	for _, deed := range pending {
		if _, err := s.MintDeed(ctx, deed.ID); err != nil {
			result.Failed++
			log.Warn().Err(err).Str("deedID", deed.ID).Msg("mint retry failed")
			continue
		}
		result.Minted++
	}
	return result, nil
}
