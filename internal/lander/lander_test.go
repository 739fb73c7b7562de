package lander

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

func testVariant(t *testing.T) engine.TxVariant {
	t.Helper()
	kp, err := solana.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	tx, err := solana.NewVersionedTransaction(kp, []solana.Instruction{solana.NewSetComputeUnitPrice(5000)}, nil, [32]byte{1, 2, 3})
	if err != nil {
		t.Fatalf("NewVersionedTransaction: %v", err)
	}
	return engine.TxVariant{ID: 0, Transaction: tx, Blockhash: [32]byte{1, 2, 3}, Slot: 42, Signer: kp, BaseTipLamports: 1000}
}

func rpcHandler(result string, status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		if status >= 200 && status < 300 {
			json.NewEncoder(w).Encode(map[string]string{"result": result})
		}
	}
}

func TestRpcLanderFirstEndpointSucceeds(t *testing.T) {
	srv := httptest.NewServer(rpcHandler("sig1", http.StatusOK))
	defer srv.Close()

	l := NewRpcLander([]string{srv.URL}, srv.Client())
	receipt, err := l.Submit(context.Background(), testVariant(t), engine.NewCycleDeadline(time.Second))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if receipt.Signature != "sig1" || receipt.Lander != "rpc" {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
}

func TestRpcLanderFallsThroughEndpoints(t *testing.T) {
	bad := httptest.NewServer(rpcHandler("", http.StatusInternalServerError))
	defer bad.Close()
	good := httptest.NewServer(rpcHandler("sig2", http.StatusOK))
	defer good.Close()

	l := NewRpcLander([]string{bad.URL, good.URL}, http.DefaultClient)
	receipt, err := l.Submit(context.Background(), testVariant(t), engine.NewCycleDeadline(time.Second))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if receipt.Signature != "sig2" {
		t.Fatalf("expected second endpoint's signature, got %+v", receipt)
	}
}

// Rpc returns HTTP 500, Bundle returns {"result":"sig"}: the stack
// should fall through to the bundle lander's receipt.
func TestStackFallsBackFromRpcToBundle(t *testing.T) {
	rpcSrv := httptest.NewServer(rpcHandler("", http.StatusInternalServerError))
	defer rpcSrv.Close()
	bundleSrv := httptest.NewServer(rpcHandler("sig", http.StatusOK))
	defer bundleSrv.Close()

	rpcLander := NewRpcLander([]string{rpcSrv.URL}, rpcSrv.Client())
	bundleLander := NewBundleLander([]string{bundleSrv.URL}, bundleSrv.Client(), 0, false)

	stack := NewStack([]Lander{rpcLander, bundleLander}, 0, nil)
	receipt, err := stack.Submit(context.Background(), testVariant(t), engine.NewCycleDeadline(2*time.Second))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if receipt.Lander != "bundle" || receipt.Signature != "sig" {
		t.Fatalf("expected bundle lander receipt, got %+v", receipt)
	}
}

func TestStackReturnsLastErrorWhenAllLandersFail(t *testing.T) {
	srv := httptest.NewServer(rpcHandler("", http.StatusServiceUnavailable))
	defer srv.Close()

	l := NewRpcLander([]string{srv.URL}, srv.Client())
	stack := NewStack([]Lander{l}, 1, nil)
	_, err := stack.Submit(context.Background(), testVariant(t), engine.NewCycleDeadline(2*time.Second))
	if err == nil {
		t.Fatal("expected error when all landers and retries fail")
	}
}

func TestStackDeadlineExpiredIsFatal(t *testing.T) {
	l := NewRpcLander([]string{"http://127.0.0.1:1"}, http.DefaultClient)
	stack := NewStack([]Lander{l}, 0, nil)
	_, err := stack.Submit(context.Background(), testVariant(t), engine.NewCycleDeadline(-time.Second))
	if !engine.IsKind(err, engine.KindLanderFatal) {
		t.Fatalf("expected LanderFatal kind, got %v", err)
	}
}

// The transaction submitted by the Rpc lander, after base64 +
// bincode-equivalent decode, must serialize identically to the
// original.
func TestRpcRoundTripDecodesIdentically(t *testing.T) {
	variant := testVariant(t)
	var captured string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Params []json.RawMessage `json:"params"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.Unmarshal(req.Params[0], &captured)
		json.NewEncoder(w).Encode(map[string]string{"result": "ok"})
	}))
	defer srv.Close()

	l := NewRpcLander([]string{srv.URL}, srv.Client())
	if _, err := l.Submit(context.Background(), variant, engine.NewCycleDeadline(time.Second)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(captured)
	if err != nil {
		t.Fatalf("base64 decode: %v", err)
	}
	decoded, err := solana.DeserializeVersionedTransaction(raw)
	if err != nil {
		t.Fatalf("DeserializeVersionedTransaction: %v", err)
	}
	if string(decoded.Serialize()) != string(variant.Transaction.Serialize()) {
		t.Fatal("round-tripped transaction does not match the original serialization")
	}
}

func TestBundleLanderStripsComputeUnitPriceAndAddsTip(t *testing.T) {
	variant := testVariant(t)
	variant.BaseTipLamports = 2000

	var captured string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Params []json.RawMessage `json:"params"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		var txs []string
		json.Unmarshal(req.Params[0], &txs)
		captured = txs[0]
		json.NewEncoder(w).Encode(map[string]string{"result": "bsig"})
	}))
	defer srv.Close()

	l := NewBundleLander([]string{srv.URL}, srv.Client(), variant.BaseTipLamports, false)
	receipt, err := l.Submit(context.Background(), variant, engine.NewCycleDeadline(time.Second))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if receipt.Signature != "bsig" {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}

	raw, err := base64.StdEncoding.DecodeString(captured)
	if err != nil {
		t.Fatalf("base64 decode: %v", err)
	}
	decoded, err := solana.DeserializeVersionedTransaction(raw)
	if err != nil {
		t.Fatalf("DeserializeVersionedTransaction: %v", err)
	}
	lifted, err := solana.LiftInstructions(decoded.Message, nil)
	if err != nil {
		t.Fatalf("LiftInstructions: %v", err)
	}
	for _, ix := range lifted {
		if solana.IsSetComputeUnitPrice(ix) {
			t.Fatal("compute-unit-price instruction should have been stripped")
		}
	}
	foundTip := false
	for _, ix := range lifted {
		if ix.ProgramID == solana.SystemProgramID && len(ix.Accounts) == 2 && ix.Accounts[0].Pubkey == variant.Signer.Pubkey() {
			if solana.IsSystemTransfer(ix, variant.Signer.Pubkey(), ix.Accounts[1].Pubkey, variant.BaseTipLamports) {
				foundTip = true
			}
		}
	}
	if !foundTip {
		t.Fatal("expected a tip transfer instruction to be appended")
	}
}
