package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/domain"
)

type DeedRepository struct {
	pool *pgxpool.Pool
}

func NewDeedRepository(pool *pgxpool.Pool) *DeedRepository {
	return &DeedRepository{pool: pool}
}

func (r *DeedRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const deedColumns = `
id, order_id, unit_id, tx_hash, seal_no,
owner_id, owner_name, owner_location,
nft_token_id, nft_contract_address, nft_chain, nft_standard, nft_mint_tx_hash, nft_marketplace_url,
issued_at`

func scanDeed(row pgx.Row) (domain.Deed, error) {
	var (
		d                       domain.Deed
		mintTxHash, marketplace *string
	)
	err := row.Scan(
		&d.ID, &d.OrderID, &d.UnitID, &d.TxHash, &d.SealNo,
		&d.OwnerID, &d.OwnerName, &d.OwnerLocation,
		&d.NFT.TokenID, &d.NFT.ContractAddress, &d.NFT.Chain, &d.NFT.Standard, &mintTxHash, &marketplace,
		&d.IssuedAt,
	)
	if err != nil {
		return domain.Deed{}, err
	}
	if mintTxHash != nil {
		d.NFT.MintTxHash = *mintTxHash
	}
	if marketplace != nil {
		d.NFT.MarketplaceURL = *marketplace
	}
	return d, nil
}

func (r *DeedRepository) CreateDeed(ctx context.Context, deed domain.Deed) error {
	const stmt = `
INSERT INTO deeds (
	id, order_id, unit_id, tx_hash, seal_no,
	owner_id, owner_name, owner_location,
	nft_token_id, nft_contract_address, nft_chain, nft_standard,
	issued_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := exec(ctx, r.pool, stmt,
		deed.ID, deed.OrderID, deed.UnitID, deed.TxHash, deed.SealNo,
		deed.OwnerID, deed.OwnerName, deed.OwnerLocation,
		deed.NFT.TokenID, deed.NFT.ContractAddress, deed.NFT.Chain, deed.NFT.Standard,
		deed.IssuedAt,
	)
	if err != nil {
		// Both the unit↔deed and the seal uniqueness mean "already
		// issued": re-running issuance converges instead of failing.
		if isUniqueViolation(err) {
			return domain.ErrDeedAlreadyIssued
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create deed: %w", err)
	}
	return nil
}

func (r *DeedRepository) GetDeed(ctx context.Context, deedID string) (domain.Deed, error) {
	d, err := scanDeed(queryRow(ctx, r.pool, `SELECT `+deedColumns+` FROM deeds WHERE id = $1`, deedID))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Deed{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Deed{}, domain.ErrDeedNotFound
		}
		return domain.Deed{}, fmt.Errorf("get deed: %w", err)
	}
	return d, nil
}

func (r *DeedRepository) FindDeedByUnit(ctx context.Context, unitID string) (*domain.Deed, error) {
	d, err := scanDeed(queryRow(ctx, r.pool, `SELECT `+deedColumns+` FROM deeds WHERE unit_id = $1`, unitID))
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find deed by unit: %w", err)
	}
	return &d, nil
}

func (r *DeedRepository) ListDeedsByOrder(ctx context.Context, orderID string) ([]domain.Deed, error) {
	rows, err := query(ctx, r.pool, `SELECT `+deedColumns+` FROM deeds WHERE order_id = $1 ORDER BY issued_at, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list deeds by order: %w", err)
	}
	defer rows.Close()

	var deeds []domain.Deed
	for rows.Next() {
		d, err := scanDeed(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deed: %w", err)
		}
		deeds = append(deeds, d)
	}
	return deeds, rows.Err()
}

func (r *DeedRepository) ListDeedsAwaitingMint(ctx context.Context, placeholderPattern string, limit int) ([]domain.Deed, error) {
	const q = `
SELECT ` + deedColumns + `
FROM deeds
WHERE nft_token_id LIKE $1 AND nft_marketplace_url IS NULL
ORDER BY issued_at
LIMIT $2`

	rows, err := query(ctx, r.pool, q, placeholderPattern, limit)
	if err != nil {
		return nil, fmt.Errorf("list deeds awaiting mint: %w", err)
	}
	defer rows.Close()

	var deeds []domain.Deed
	for rows.Next() {
		d, err := scanDeed(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deed: %w", err)
		}
		deeds = append(deeds, d)
	}
	return deeds, rows.Err()
}

// PatchMintResult updates the NFT sub-record and nothing else. Every other
// deed column is immutable after issuance; this is the one sanctioned
// bypass, used only by the minting coordinator.
func (r *DeedRepository) PatchMintResult(ctx context.Context, deedID string, result domain.MintResult) error {
	const stmt = `
UPDATE deeds
SET nft_token_id = $2, nft_contract_address = $3, nft_chain = $4,
    nft_standard = $5, nft_mint_tx_hash = $6, nft_marketplace_url = $7
WHERE id = $1`

	tag, err := exec(ctx, r.pool, stmt,
		deedID,
		result.TokenID, result.ContractAddress, result.Chain,
		result.Standard, result.MintTxHash, result.MarketplaceURL,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("patch mint result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDeedNotFound
	}
	return nil
}
