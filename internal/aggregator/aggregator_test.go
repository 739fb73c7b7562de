package aggregator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shai-labs/voyager/internal/engine"
	"github.com/shai-labs/voyager/internal/solana"
)

func testPair(t *testing.T) engine.TradePair {
	t.Helper()
	a, err := solana.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	b, err := solana.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	return engine.TradePair{InputMint: a.Pubkey(), OutputMint: b.Pubkey()}
}

func TestJupiterClientQuoteNormalises(t *testing.T) {
	pair := testPair(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"inputMint": "` + pair.InputMint.String() + `",
			"outputMint": "` + pair.OutputMint.String() + `",
			"inAmount": "1000000",
			"outAmount": "950000",
			"contextSlot": 42,
			"timeTaken": 1.5,
			"routePlan": [{}, {}]
		}`))
	}))
	defer srv.Close()

	client := NewJupiterClient(srv.URL, srv.Client(), DefaultRetryConfig(), false)
	result, err := client.Quote(context.Background(), pair, 1_000_000, engine.DirectionForward, Knobs{SlippageBps: 50})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if result.InAmount != 1_000_000 || result.OutAmount != 950_000 {
		t.Fatalf("unexpected amounts: %+v", result)
	}
	if result.ContextSlot != 42 || result.RoutePlanLen != 2 {
		t.Fatalf("unexpected slot/route: %+v", result)
	}
	if result.Kind != engine.AggregatorJupiter {
		t.Fatalf("kind = %v, want jupiter", result.Kind)
	}
}

func TestQuoteRateLimitedIsRetryableKind(t *testing.T) {
	pair := testPair(t)
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewTitanClient(srv.URL, srv.Client(), RetryConfig{MaxElapsedTime: 200 * time.Millisecond, InitialInterval: 10 * time.Millisecond})
	_, err := client.Quote(context.Background(), pair, 1000, engine.DirectionForward, Knobs{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !engine.IsKind(err, engine.KindAggregatorRateLimited) {
		t.Fatalf("expected RateLimited kind, got %v", err)
	}
	if hits < 2 {
		t.Fatalf("expected retries, only hit %d times", hits)
	}
}

func TestDecodeMalformedBodyFailsPermanently(t *testing.T) {
	pair := testPair(t)
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	client := NewDflowClient(srv.URL, srv.Client(), RetryConfig{MaxElapsedTime: 100 * time.Millisecond, InitialInterval: 10 * time.Millisecond})
	_, err := client.Quote(context.Background(), pair, 1000, engine.DirectionForward, Knobs{})
	if err == nil {
		t.Fatal("expected decode error")
	}
	if !engine.IsKind(err, engine.KindAggregatorDecode) {
		t.Fatalf("expected Decode kind, got %v", err)
	}
	if hits != 1 {
		t.Fatalf("decode errors must not be retried, got %d attempts", hits)
	}
}

func TestMergedQuoteRawRewritesRoundTrip(t *testing.T) {
	pair := testPair(t)
	forward := []byte(`{
		"inputMint": "` + pair.InputMint.String() + `",
		"outputMint": "` + pair.OutputMint.String() + `",
		"inAmount": "1000000",
		"outAmount": "950000",
		"contextSlot": 40,
		"timeTaken": 1.0,
		"priceImpactPct": "0.3",
		"routePlan": [{"leg": 1}]
	}`)
	reverse := []byte(`{"routePlan": [{"leg": 2}, {"leg": 3}]}`)

	merged := engine.MergedQuote{
		Kind:        engine.AggregatorJupiter,
		InputMint:   pair.InputMint,
		OutputMint:  pair.InputMint,
		InAmount:    1_000_000,
		OutAmount:   1_000_005,
		ContextSlot: 42,
		TimeTakenMs: 1.5,
		ForwardRaw:  forward,
		ReverseRaw:  reverse,
	}

	raw, err := mergedQuoteRaw(merged)
	if err != nil {
		t.Fatalf("mergedQuoteRaw: %v", err)
	}
	var got struct {
		OutputMint     string            `json:"outputMint"`
		OutAmount      string            `json:"outAmount"`
		ContextSlot    uint64            `json:"contextSlot"`
		PriceImpactPct string            `json:"priceImpactPct"`
		RoutePlan      []json.RawMessage `json:"routePlan"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal rewritten quote: %v", err)
	}
	if got.OutputMint != pair.InputMint.String() {
		t.Fatalf("outputMint = %s, want round-trip mint %s", got.OutputMint, pair.InputMint)
	}
	if got.OutAmount != "1000005" {
		t.Fatalf("outAmount = %s, want 1000005", got.OutAmount)
	}
	if got.ContextSlot != 42 {
		t.Fatalf("contextSlot = %d, want 42", got.ContextSlot)
	}
	if got.PriceImpactPct != "0" {
		t.Fatalf("priceImpactPct = %s, want 0", got.PriceImpactPct)
	}
	if len(got.RoutePlan) != 3 {
		t.Fatalf("routePlan length = %d, want forward+reverse = 3", len(got.RoutePlan))
	}
}

func TestStructuredBuildArtifactDecode(t *testing.T) {
	payer, err := solana.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	program, err := solana.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	data := base64.StdEncoding.EncodeToString([]byte{1, 2, 3})

	body := []byte(`{
		"computeBudgetInstructions": [],
		"setupInstructions": [],
		"swapInstruction": {"programId": "` + program.Pubkey().String() + `", "accounts": [{"pubkey": "` + payer.Pubkey().String() + `", "isSigner": true, "isWritable": true}], "data": "` + data + `"},
		"cleanupInstruction": null,
		"otherInstructions": [],
		"addressLookupTableAddresses": [],
		"prioritizationFeeLamports": 5000,
		"computeUnitLimit": 200000
	}`)

	artifact, err := decodeStructuredBuildArtifact("test", body)
	if err != nil {
		t.Fatalf("decodeStructuredBuildArtifact: %v", err)
	}
	if artifact.SwapInstruction == nil || artifact.SwapInstruction.ProgramID != program.Pubkey() {
		t.Fatalf("unexpected swap instruction: %+v", artifact.SwapInstruction)
	}
	if artifact.PrioritizationFeeLamports != 5000 || artifact.ComputeUnitLimit != 200000 {
		t.Fatalf("unexpected compute hints: %+v", artifact)
	}
}
