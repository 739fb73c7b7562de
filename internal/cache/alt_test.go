package cache

import (
	"context"
	"testing"

	"github.com/shai-labs/voyager/internal/solana"
)

func fakeLookupTableAccountData(addrs ...solana.Pubkey) []byte {
	data := make([]byte, 56)
	for _, a := range addrs {
		data = append(data, a[:]...)
	}
	return data
}

type fakeAccountFetcher struct {
	data map[solana.Pubkey][]byte
	err  error
}

func (f *fakeAccountFetcher) GetMultipleAccounts(ctx context.Context, keys []solana.Pubkey) ([][]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = f.data[k]
	}
	return out, nil
}

func (f *fakeAccountFetcher) GetAccountData(ctx context.Context, key solana.Pubkey) ([]byte, error) {
	return f.data[key], nil
}

func TestAltCacheFetchManyCachesHits(t *testing.T) {
	tableKey, err := solana.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	addr, err := solana.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}

	fetcher := &fakeAccountFetcher{data: map[solana.Pubkey][]byte{
		tableKey.Public: fakeLookupTableAccountData(addr.Public),
	}}
	alt, err := NewAltCache(fetcher)
	if err != nil {
		t.Fatalf("NewAltCache: %v", err)
	}

	tables, err := alt.FetchMany(context.Background(), []solana.Pubkey{tableKey.Public})
	if err != nil {
		t.Fatalf("FetchMany: %v", err)
	}
	if len(tables) != 1 || len(tables[0].Addresses) != 1 || tables[0].Addresses[0] != addr.Public {
		t.Fatalf("unexpected tables: %+v", tables)
	}

	// Second call must be served from cache: clear the fetcher's data so
	// a miss would surface as an empty/zero result.
	fetcher.data = nil
	tables, err = alt.FetchMany(context.Background(), []solana.Pubkey{tableKey.Public})
	if err != nil {
		t.Fatalf("FetchMany (cached): %v", err)
	}
	if len(tables) != 1 || tables[0].Addresses[0] != addr.Public {
		t.Fatalf("expected cache hit, got %+v", tables)
	}
}

func TestAltCacheDropsUndecodableAccount(t *testing.T) {
	tableKey, err := solana.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	fetcher := &fakeAccountFetcher{data: map[solana.Pubkey][]byte{
		tableKey.Public: []byte{1, 2, 3}, // too short to be a valid ALT account
	}}
	alt, err := NewAltCache(fetcher)
	if err != nil {
		t.Fatalf("NewAltCache: %v", err)
	}
	tables, err := alt.FetchMany(context.Background(), []solana.Pubkey{tableKey.Public})
	if err != nil {
		t.Fatalf("FetchMany: %v", err)
	}
	if len(tables) != 0 {
		t.Fatalf("expected undecodable account to be dropped, got %+v", tables)
	}
}
