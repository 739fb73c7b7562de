package aggregator

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/shai-labs/voyager/internal/engine"
	"github.com/shai-labs/voyager/internal/solana"
)

// JupiterClient speaks Jupiter's /quote + /swap-instructions (or
// Ultra's /order) wire protocol. Ultra's /execute is not called.
type JupiterClient struct {
	BaseURL string
	Client  *http.Client
	Retry   RetryConfig
	// Ultra selects the fully-encoded-transaction build path instead of
	// the structured labelled-lanes response. Which one a given
	// deployment uses is a per-aggregator configuration choice.
	Ultra bool
}

func NewJupiterClient(baseURL string, client *http.Client, retry RetryConfig, ultra bool) *JupiterClient {
	return &JupiterClient{BaseURL: baseURL, Client: client, Retry: retry, Ultra: ultra}
}

func (j *JupiterClient) Kind() engine.AggregatorKind { return engine.AggregatorJupiter }

func (j *JupiterClient) Quote(ctx context.Context, pair engine.TradePair, amount uint64, direction engine.Direction, knobs Knobs) (engine.QuoteResult, error) {
	const op = "aggregator.JupiterClient.Quote"
	var result engine.QuoteResult
	err := doWithRetry(ctx, j.Retry, func() error {
		r, err := fetchQuote(ctx, j.Client, op, engine.AggregatorJupiter, buildQuoteURL(j.BaseURL, pair, amount, direction, knobs))
		if err != nil {
			if !engine.Retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = r
		return nil
	})
	return result, err
}

func (j *JupiterClient) Build(ctx context.Context, merged engine.MergedQuote, user solana.Pubkey) (engine.BuildArtifact, error) {
	const op = "aggregator.JupiterClient.Build"
	body, err := newBuildRequest(merged, user)
	if err != nil {
		return engine.BuildArtifact{}, engine.NewError(engine.KindAggregatorDecode, op, err)
	}

	path := "/swap-instructions"
	if j.Ultra {
		path = "/order"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return engine.BuildArtifact{}, engine.NewError(engine.KindTransaction, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := j.Client.Do(req)
	if err != nil {
		return engine.BuildArtifact{}, engine.NewError(engine.KindTransaction, op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return engine.BuildArtifact{}, engine.NewError(engine.KindTransaction, op, classifyStatus(op, resp.StatusCode))
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return engine.BuildArtifact{}, engine.NewError(engine.KindTransaction, op, err)
	}

	if !j.Ultra {
		return decodeStructuredBuildArtifact(op, buf.Bytes())
	}
	return decodeUltraBuildArtifact(op, buf.Bytes())
}

// ultraResponse is the Ultra-style encoded-transaction response shape:
// a single base64 versioned transaction plus the payer address Jupiter
// reports, which the assembler rewrites to the local user's pubkey.
type ultraResponse struct {
	Transaction string `json:"transaction"`
	FeePayer    string `json:"feePayer"`
	PrioritizationFeeLamports uint64 `json:"prioritizationFeeLamports"`
}

func decodeUltraBuildArtifact(op string, body []byte) (engine.BuildArtifact, error) {
	var resp ultraResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return engine.BuildArtifact{}, engine.NewError(engine.KindAggregatorDecode, op, err)
	}
	txBytes, err := base64.StdEncoding.DecodeString(resp.Transaction)
	if err != nil {
		return engine.BuildArtifact{}, engine.NewError(engine.KindAggregatorDecode, op, err)
	}
	tx, err := solana.DeserializeVersionedTransaction(txBytes)
	if err != nil {
		return engine.BuildArtifact{}, engine.NewError(engine.KindAggregatorDecode, op, err)
	}
	var payer solana.Pubkey
	if resp.FeePayer != "" {
		payer, err = solana.PubkeyFromBase58(resp.FeePayer)
		if err != nil {
			return engine.BuildArtifact{}, engine.NewError(engine.KindAggregatorDecode, op, err)
		}
	} else if len(tx.Message.AccountKeys) > 0 {
		payer = tx.Message.AccountKeys[0]
	}

	msg := tx.Message
	return engine.BuildArtifact{
		CompiledMessage:           &msg,
		ReportedPayer:             payer,
		AddressLookupTableAddresses: lookupKeys(msg),
		PrioritizationFeeLamports: resp.PrioritizationFeeLamports,
	}, nil
}

func lookupKeys(msg solana.MessageV0) []solana.Pubkey {
	out := make([]solana.Pubkey, 0, len(msg.AddressTableLookups))
	for _, l := range msg.AddressTableLookups {
		out = append(out, l.AccountKey)
	}
	return out
}

