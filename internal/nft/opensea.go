package nft

import "fmt"

// chain name → OpenSea asset path segment
var openSeaChainSlugs = map[string]string{
	"polygon":  "matic",
	"ethereum": "ethereum",
}

// OpenSeaURL derives the marketplace URL for a minted token. The same
// inputs always produce the same URL, so the value stored on a deed can be
// reproduced from its contract address and token id.
func OpenSeaURL(chain, contractAddress, tokenID string) string {
	slug, ok := openSeaChainSlugs[chain]
	if !ok {
		slug = chain
	}
	return fmt.Sprintf("https://opensea.io/assets/%s/%s/%s", slug, contractAddress, tokenID)
}
