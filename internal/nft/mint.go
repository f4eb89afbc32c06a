// Package nft talks to the external minting collaborator and derives
// marketplace URLs. The client is constructed once at process start and
// injected; there is no package-level connection state.
package nft

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MintRequest carries the destination wallet and deterministic metadata.
type MintRequest struct {
	ToAddress string       `json:"toAddress"`
	Metadata  MintMetadata `json:"metadata"`
}

type MintMetadata struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Attributes  []Attribute `json:"attributes"`
}

type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// MintResponse is the collaborator's confirmation of an on-chain mint.
type MintResponse struct {
	TokenID         string `json:"tokenId"`
	TransactionHash string `json:"transactionHash"`
	ImageURL        string `json:"imageUrl"`
}

// Client calls the minting service over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// Mint requests an on-chain mint. Any failure is retryable from the
// caller's point of view; the coordinator re-attempts against deeds that
// still carry a placeholder token.
func (c *Client) Mint(ctx context.Context, req MintRequest) (MintResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return MintResponse{}, fmt.Errorf("encode mint request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mint", bytes.NewReader(body))
	if err != nil {
		return MintResponse{}, fmt.Errorf("build mint request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return MintResponse{}, fmt.Errorf("call mint service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return MintResponse{}, fmt.Errorf("mint service returned %d: %s", resp.StatusCode, msg)
	}

	var out MintResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return MintResponse{}, fmt.Errorf("decode mint response: %w", err)
	}
	if out.TokenID == "" {
		return MintResponse{}, fmt.Errorf("mint service returned empty token id")
	}
	return out, nil
}
