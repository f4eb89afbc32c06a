package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// PlaceholderTokenPrefix marks deeds whose on-chain mint has not completed.
const PlaceholderTokenPrefix = "pending-"

// NFT is the mutable sub-record of a deed: the minting coordinator patches
// it from placeholder to minted, everything else on the deed is frozen.
type NFT struct {
	TokenID         string
	ContractAddress string
	Chain           string
	Standard        string
	MintTxHash      string
	MarketplaceURL  string
}

// Deed is the immutable certificate of ownership for one unit. Exactly one
// deed may ever exist per unit.
type Deed struct {
	ID            string
	OrderID       string
	UnitID        string
	TxHash        string // confirmed payment transaction
	SealNo        string
	OwnerID       string
	OwnerName     string
	OwnerLocation string
	NFT           NFT
	IssuedAt      time.Time
}

// MintPending reports whether the deed still carries its placeholder token.
func (d Deed) MintPending() bool {
	return d.NFT.TokenID == "" || strings.HasPrefix(d.NFT.TokenID, PlaceholderTokenPrefix)
}

// PlaceholderToken is the synthetic token assigned at issuance, before the
// real on-chain mint completes.
func PlaceholderToken(deedID string) string {
	return PlaceholderTokenPrefix + deedID
}

// SealNumber derives the unique deed seal from the unit id and issuance
// time. The derivation is deterministic so a retried issuance produces the
// same seal and collides into the "already issued" path.
func SealNumber(unitID string, issuedAt time.Time) string {
	sum := sha256.Sum256([]byte(unitID + "|" + strconv.FormatInt(issuedAt.UTC().Unix(), 10)))
	return "WT-" + strings.ToUpper(hex.EncodeToString(sum[:5]))
}

// DeedUpdate is a general-path update attempt against a deed. Every field
// here is frozen after issuance; mint results travel through the dedicated
// PatchMintResult path instead of a carve-out on this one.
type DeedUpdate struct {
	OwnerName     *string
	OwnerLocation *string
	SealNo        *string
	TxHash        *string
}

// GuardDeedUpdate rejects any general-path mutation of an issued deed.
func GuardDeedUpdate(upd DeedUpdate) error {
	if upd.OwnerName != nil || upd.OwnerLocation != nil || upd.SealNo != nil || upd.TxHash != nil {
		return ErrDeedImmutable
	}
	return nil
}

// MintResult is what the coordinator records after a successful mint. Only
// these fields may change on a deed post-issuance.
type MintResult struct {
	TokenID         string
	ContractAddress string
	Chain           string
	Standard        string
	MintTxHash      string
	MarketplaceURL  string
}
