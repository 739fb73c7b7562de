package cache

import (
	"context"
	"sync"
	"time"

	"github.com/shai-labs/voyager/internal/solana"
)

// WalletTokenAccount is the value half of the wallet token-account
// cache keyed by mint.
type WalletTokenAccount struct {
	TokenAccount solana.Pubkey
	TokenProgram solana.Pubkey
	Balance      uint64
}

// TokenAccountLister lists token accounts owned by a wallet across a
// single token program; implemented by internal/chain against both the
// legacy and Token-2022 programs.
type TokenAccountLister interface {
	ListTokenAccountsByOwner(ctx context.Context, owner solana.Pubkey, tokenProgram solana.Pubkey) ([]WalletTokenAccountEntry, error)
}

// WalletTokenAccountEntry is one parsed getTokenAccountsByOwner row.
type WalletTokenAccountEntry struct {
	Mint         solana.Pubkey
	TokenAccount solana.Pubkey
	TokenProgram solana.Pubkey
	Owner        solana.Pubkey
	Balance      uint64
}

// WalletCache implements the wallet token-account cache named instance.
// It refreshes on a fixed interval and a failed refresh never tears
// down the existing entries.
type WalletCache struct {
	owner  solana.Pubkey
	lister TokenAccountLister
	tokenPrograms []solana.Pubkey

	mu      sync.RWMutex
	entries map[string]WalletTokenAccount

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWalletCache(owner solana.Pubkey, lister TokenAccountLister, tokenPrograms []solana.Pubkey) *WalletCache {
	return &WalletCache{
		owner:         owner,
		lister:        lister,
		tokenPrograms: tokenPrograms,
		entries:       make(map[string]WalletTokenAccount),
	}
}

func (w *WalletCache) Get(mint solana.Pubkey) (WalletTokenAccount, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	v, ok := w.entries[mint.String()]
	return v, ok
}

// Refresh lists token accounts across every configured token program,
// keeps only entries the wallet actually owns (not merely rows that
// mention it as a parsed field), and upserts. Errors from any program
// are logged by the caller and do not clear prior entries.
func (w *WalletCache) Refresh(ctx context.Context) error {
	next := make(map[string]WalletTokenAccount)
	var firstErr error

	for _, program := range w.tokenPrograms {
		rows, err := w.lister.ListTokenAccountsByOwner(ctx, w.owner, program)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, row := range rows {
			if row.Owner != w.owner {
				continue
			}
			next[row.Mint.String()] = WalletTokenAccount{
				TokenAccount: row.TokenAccount,
				TokenProgram: row.TokenProgram,
				Balance:      row.Balance,
			}
		}
	}

	if len(next) == 0 && firstErr != nil {
		return firstErr
	}

	w.mu.Lock()
	for k, v := range next {
		w.entries[k] = v
	}
	w.mu.Unlock()
	return firstErr
}

// StartPeriodicRefresh runs Refresh on the given interval until Stop
// is called. A failed tick is reported to onError and otherwise
// swallowed; the cache keeps serving prior entries.
func (w *WalletCache) StartPeriodicRefresh(ctx context.Context, interval time.Duration, onError func(error)) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.Refresh(ctx); err != nil && onError != nil {
					onError(err)
				}
			}
		}
	}()
}

func (w *WalletCache) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
