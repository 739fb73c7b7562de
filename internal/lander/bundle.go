package lander

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/shai-labs/voyager/internal/engine"
	"github.com/shai-labs/voyager/internal/solana"
)

// tipWallets is the built-in set of Jito tip-account addresses, one of
// which is chosen uniformly at random per bundle.
var tipWallets = mustPubkeys(
	"ADuUkR4vqLUMWXxW9gh6D6L8pMSawimctcNZ5pGwDcEt",
	"DfXygSm4jCyNCybVYYK6DwvWqjKee8pbDmJGcLWNDXjh",
	"DttWaMuVvTiduZRnguLF7jNxTgiMBZ1hyAumKUiL2KRL",
	"HFqU5x63VTqvQss8hp11i4wVV8bD44PvwucfZ2bU7gRe",
	"3AVi9Tg9Uo68tJfuvoKvqKNWKkC5wPdSSdeBnizKZ6jT",
	"Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY",
	"96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5",
	"ADaUMid9yfUytqMBgopwjb2DTLSokTSzL1zt6iGPaS49",
)

func mustPubkeys(addrs ...string) []solana.Pubkey {
	out := make([]solana.Pubkey, 0, len(addrs))
	for _, a := range addrs {
		pk, err := solana.PubkeyFromBase58(a)
		if err != nil {
			continue
		}
		out = append(out, pk)
	}
	return out
}

// BundleLander strips the compute-unit-price instruction (Jito
// bundles take tip via a dedicated transfer instead), optionally
// appends a tip transfer to a randomly chosen wallet, and POSTs
// sendBundle, carrying a UUID ticket as a query parameter when
// configured.
type BundleLander struct {
	Endpoints  []string
	Client     *http.Client
	TipWallets []solana.Pubkey
	TipLamports uint64
	UUIDTicket bool
	rng        *rand.Rand
}

func NewBundleLander(endpoints []string, client *http.Client, tipLamports uint64, uuidTicket bool) *BundleLander {
	return &BundleLander{
		Endpoints:   endpoints,
		Client:      client,
		TipWallets:  tipWallets,
		TipLamports: tipLamports,
		UUIDTicket:  uuidTicket,
		rng:         rand.New(rand.NewSource(1)),
	}
}

func (l *BundleLander) Name() string { return "bundle" }

func (l *BundleLander) randomTipWallet() (solana.Pubkey, bool) {
	wallets := l.TipWallets
	if len(wallets) == 0 {
		return solana.Pubkey{}, false
	}
	return wallets[l.rng.Intn(len(wallets))], true
}

// tipRecipient honours a variant's pinned recipient when its tip
// override carries one, else draws a random built-in tip wallet.
func (l *BundleLander) tipRecipient(variant engine.TxVariant) (solana.Pubkey, bool) {
	if o := variant.TipOverride; o != nil && o.Recipient != nil {
		return *o.Recipient, true
	}
	return l.randomTipWallet()
}

// buildBundleTransaction strips any SetComputeUnitPrice instruction
// from variant's compiled message and, when the tip is nonzero,
// appends a system transfer to the recipient tipRecipient picks,
// recompiling and resigning the result.
func (l *BundleLander) buildBundleTransaction(variant engine.TxVariant) (solana.VersionedTransaction, error) {
	lifted, err := solana.LiftInstructions(variant.Transaction.Message, variant.ResolvedLookupTables)
	if err != nil {
		return solana.VersionedTransaction{}, err
	}

	stripped := make([]solana.Instruction, 0, len(lifted))
	for _, ix := range lifted {
		if solana.IsSetComputeUnitPrice(ix) {
			continue
		}
		stripped = append(stripped, ix)
	}

	tip := variant.TipLamports()
	if recipient, ok := l.tipRecipient(variant); ok && tip > 0 {
		payer := variant.Signer.Pubkey()
		stripped = append(stripped, solana.NewSystemTransfer(payer, recipient, tip))
	}

	return solana.NewVersionedTransaction(variant.Signer, stripped, variant.ResolvedLookupTables, variant.Blockhash)
}

func (l *BundleLander) Submit(ctx context.Context, variant engine.TxVariant, deadline engine.CycleDeadline) (engine.LanderReceipt, error) {
	const op = "lander.bundle.Submit"
	if deadline.Expired() {
		return engine.LanderReceipt{}, engine.NewError(engine.KindLanderFatal, op, errDeadlineExpired)
	}

	tx, err := l.buildBundleTransaction(variant)
	if err != nil {
		return engine.LanderReceipt{}, engine.NewError(engine.KindLanderFatal, op, err)
	}
	encoded := base64.StdEncoding.EncodeToString(tx.Serialize())

	var ticket string
	if l.UUIDTicket {
		ticket = uuid.NewString()
	}

	var lastErr error
	for _, ep := range l.Endpoints {
		if strings.TrimSpace(ep) == "" {
			continue
		}
		target := ep
		if ticket != "" {
			if u, perr := url.Parse(ep); perr == nil {
				q := u.Query()
				q.Set("uuid", ticket)
				u.RawQuery = q.Encode()
				target = u.String()
			}
		}
		receipt, serr := l.sendBundle(ctx, target, encoded, variant)
		if serr == nil {
			return receipt, nil
		}
		lastErr = serr
	}
	if lastErr == nil {
		lastErr = engine.NewError(engine.KindLanderFatal, op, errNoEndpoints)
	}
	return engine.LanderReceipt{}, lastErr
}

func (l *BundleLander) sendBundle(ctx context.Context, endpoint, encodedTx string, variant engine.TxVariant) (engine.LanderReceipt, error) {
	op := "lander.bundle.sendBundle"
	payload, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "sendBundle",
		"params":  []any{[]string{encodedTx}, map[string]string{"encoding": "base64"}},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return engine.LanderReceipt{}, engine.NewError(engine.KindLanderNetwork, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.Client.Do(req)
	if err != nil {
		return engine.LanderReceipt{}, engine.NewError(engine.KindLanderNetwork, op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return engine.LanderReceipt{}, engine.NewError(engine.KindLanderRejected, op, errStatus(resp.StatusCode))
	}

	var body sendTransactionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return engine.LanderReceipt{}, engine.NewError(engine.KindLanderRejected, op, err)
	}
	if body.Error != nil {
		return engine.LanderReceipt{}, engine.NewError(engine.KindLanderRejected, op, errRPC(body.Error.Message))
	}

	return engine.LanderReceipt{
		Lander:    "bundle",
		Endpoint:  endpoint,
		Slot:      variant.Slot,
		Blockhash: variant.Blockhash,
		Signature: body.Result,
		VariantID: variant.ID,
	}, nil
}
