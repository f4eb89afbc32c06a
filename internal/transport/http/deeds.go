package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/domain"
)

type DeedReader interface {
	GetDeed(ctx context.Context, deedID string) (domain.Deed, error)
}

type deedResponse struct {
	ID            string    `json:"id"`
	OrderID       string    `json:"order_id"`
	UnitID        string    `json:"unit_id"`
	TxHash        string    `json:"tx_hash"`
	SealNo        string    `json:"seal_no"`
	OwnerName     string    `json:"owner_name"`
	OwnerLocation string    `json:"owner_location"`
	IssuedAt      time.Time `json:"issued_at"`
	NFT           nftRecord `json:"nft"`
}

type nftRecord struct {
	TokenID         string `json:"token_id"`
	ContractAddress string `json:"contract_address"`
	Chain           string `json:"chain"`
	Standard        string `json:"standard"`
	MintTxHash      string `json:"mint_tx_hash,omitempty"`
	MarketplaceURL  string `json:"marketplace_url,omitempty"`
}

// HandleGetDeed serves a single deed by id, path /deeds/{id}.
func HandleGetDeed(svc DeedReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		deedID, ok := parseDeedPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		deed, err := svc.GetDeed(r.Context(), deedID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(deedResponse{
			ID:            deed.ID,
			OrderID:       deed.OrderID,
			UnitID:        deed.UnitID,
			TxHash:        deed.TxHash,
			SealNo:        deed.SealNo,
			OwnerName:     deed.OwnerName,
			OwnerLocation: deed.OwnerLocation,
			IssuedAt:      deed.IssuedAt,
			NFT: nftRecord{
				TokenID:         deed.NFT.TokenID,
				ContractAddress: deed.NFT.ContractAddress,
				Chain:           deed.NFT.Chain,
				Standard:        deed.NFT.Standard,
				MintTxHash:      deed.NFT.MintTxHash,
				MarketplaceURL:  deed.NFT.MarketplaceURL,
			},
		})
	}
}

func parseDeedPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] != "deeds" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
