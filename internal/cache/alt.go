package cache

import (
	"context"

	"github.com/shai-labs/voyager/internal/solana"
)

const altBatchLimit = 100

// AccountFetcher is the chain-gateway slice AltCache needs: batch and
// single-account lookups. A real implementation delegates to
// internal/chain's gRPC/RPC-backed gateway.
type AccountFetcher interface {
	GetMultipleAccounts(ctx context.Context, keys []solana.Pubkey) ([][]byte, error)
	GetAccountData(ctx context.Context, key solana.Pubkey) ([]byte, error)
}

// AltCache caches resolved address-lookup-table accounts, keyed by
// table address. Entries never expire; stale tables are replaced via
// RefreshMany when an index misses.
type AltCache struct {
	backend *Backend[solana.LookupTable]
	fetcher AccountFetcher
}

func NewAltCache(fetcher AccountFetcher) (*AltCache, error) {
	backend, err := NewBackend[solana.LookupTable]()
	if err != nil {
		return nil, err
	}
	return &AltCache{backend: backend, fetcher: fetcher}, nil
}

// ResolveMany adapts FetchMany to engine.AltResolver.
func (c *AltCache) ResolveMany(ctx context.Context, keys []solana.Pubkey) ([]solana.LookupTable, error) {
	return c.FetchMany(ctx, keys)
}

// FetchMany returns cache hits immediately; misses batch-fetch up to
// altBatchLimit at a time, falling back to per-key fetches on batch
// error, and drop entries whose account could not be decoded.
func (c *AltCache) FetchMany(ctx context.Context, keys []solana.Pubkey) ([]solana.LookupTable, error) {
	var result []solana.LookupTable
	var missing []solana.Pubkey

	for _, key := range keys {
		if table, ok := c.backend.Get(key.String()); ok {
			result = append(result, table)
		} else {
			missing = append(missing, key)
		}
	}

	if len(missing) == 0 {
		return result, nil
	}

	fetched, err := c.RefreshMany(ctx, missing)
	if err != nil {
		return nil, err
	}
	return append(result, fetched...), nil
}

// RefreshMany ignores the cache and re-fetches, used when an index
// was found out-of-bounds against a stale cached table.
func (c *AltCache) RefreshMany(ctx context.Context, keys []solana.Pubkey) ([]solana.LookupTable, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	var collected []solana.LookupTable
	for start := 0; start < len(keys); start += altBatchLimit {
		end := start + altBatchLimit
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]

		accounts, err := c.fetcher.GetMultipleAccounts(ctx, chunk)
		if err != nil {
			for _, key := range chunk {
				data, fetchErr := c.fetcher.GetAccountData(ctx, key)
				if fetchErr != nil {
					c.backend.Remove(key.String())
					continue
				}
				if table, ok := c.decodeAndStore(key, data); ok {
					collected = append(collected, table)
				}
			}
			continue
		}

		for i, key := range chunk {
			if i >= len(accounts) || accounts[i] == nil {
				c.backend.Remove(key.String())
				continue
			}
			if table, ok := c.decodeAndStore(key, accounts[i]); ok {
				collected = append(collected, table)
			}
		}
	}

	return collected, nil
}

func (c *AltCache) decodeAndStore(key solana.Pubkey, data []byte) (solana.LookupTable, bool) {
	addrs, err := solana.DecodeLookupTableAccountAddresses(data)
	if err != nil {
		c.backend.Remove(key.String())
		return solana.LookupTable{}, false
	}
	table := solana.LookupTable{Key: key, Addresses: addrs}
	c.backend.Insert(key.String(), table, 0)
	return table, true
}
