package guard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shai-labs/voyager/internal/solana"
)

func TestRuntimeShouldGuardOnlyConfiguredMints(t *testing.T) {
	rt := NewRuntime(true, []solana.Pubkey{wsolMint}, nil, 0, 4, nil)
	if !rt.ShouldGuard(wsolMint) {
		t.Fatal("expected wsolMint to be guarded")
	}
	other := solana.MustPubkeyFromBase58("11111111111111111111111111111112")
	if rt.ShouldGuard(other) {
		t.Fatal("expected unconfigured mint to not be guarded")
	}
}

func TestRuntimeDisabledNeverGuards(t *testing.T) {
	rt := NewRuntime(false, []solana.Pubkey{wsolMint}, nil, 0, 4, nil)
	if rt.ShouldGuard(wsolMint) {
		t.Fatal("expected disabled runtime to never guard")
	}
	if id := rt.NextMemoryID(); id != 0 {
		t.Fatalf("expected memory id 0 when disabled, got %d", id)
	}
}

func TestRuntimeNextMemoryIDRotatesAcrossConfiguredIDs(t *testing.T) {
	rt := NewRuntime(true, []solana.Pubkey{wsolMint}, []uint8{3, 1, 1, 2}, 0, 0, nil)
	var got []uint8
	for i := 0; i < 5; i++ {
		got = append(got, rt.NextMemoryID())
	}
	want := []uint8{1, 2, 3, 1, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rotation[%d] = %d, want %d (full sequence %v)", i, got[i], want[i], got)
		}
	}
}

func TestRuntimeNativeGuardAmountIsLamportsUnchanged(t *testing.T) {
	rt := NewRuntime(true, []solana.Pubkey{wsolMint}, nil, 0, 4, nil)
	amount, ok, err := rt.GuardAmountFor(context.Background(), wsolMint, 500)
	if err != nil {
		t.Fatalf("GuardAmountFor: %v", err)
	}
	if !ok || amount != 500 {
		t.Fatalf("expected native guard amount 500, got %d (ok=%v)", amount, ok)
	}
}

func TestRuntimeSolEquivalentGuardAmountUsesFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"parsed":[{"price":{"price":"15000000000","expo":-8}}]}`))
	}))
	defer srv.Close()

	feed := NewPriceFeed(srv.URL, time.Minute, srv.Client())
	rt := NewRuntime(true, []solana.Pubkey{usdcMint}, nil, 0, 4, feed)

	amount, ok, err := rt.GuardAmountFor(context.Background(), usdcMint, LamportsPerSol)
	if err != nil {
		t.Fatalf("GuardAmountFor: %v", err)
	}
	if !ok || amount != 150_000000 {
		t.Fatalf("expected 150 USDC worth of guard threshold, got %d (ok=%v)", amount, ok)
	}
}

func TestRuntimeSolEquivalentWithoutFeedIsConfigError(t *testing.T) {
	rt := NewRuntime(true, []solana.Pubkey{usdcMint}, nil, 0, 4, nil)
	_, _, err := rt.GuardAmountFor(context.Background(), usdcMint, 1)
	if err == nil {
		t.Fatal("expected an error when a SolEquivalent mint has no configured price feed")
	}
}

func TestRuntimeZeroLamportsRequiredSkipsGuard(t *testing.T) {
	rt := NewRuntime(true, []solana.Pubkey{wsolMint}, nil, 0, 4, nil)
	_, ok, err := rt.GuardAmountFor(context.Background(), wsolMint, 0)
	if err != nil {
		t.Fatalf("GuardAmountFor: %v", err)
	}
	if ok {
		t.Fatal("expected zero lamports required to produce no guard")
	}
}
