package aggregator

import (
	"bytes"
	"context"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/shai-labs/voyager/internal/engine"
	"github.com/shai-labs/voyager/internal/solana"
)

// TitanClient speaks Titan's Jupiter-compatible /quote +
// /swap-instructions protocol.
type TitanClient struct {
	BaseURL string
	Client  *http.Client
	Retry   RetryConfig
}

func NewTitanClient(baseURL string, client *http.Client, retry RetryConfig) *TitanClient {
	return &TitanClient{BaseURL: baseURL, Client: client, Retry: retry}
}

func (t *TitanClient) Kind() engine.AggregatorKind { return engine.AggregatorTitan }

func (t *TitanClient) Quote(ctx context.Context, pair engine.TradePair, amount uint64, direction engine.Direction, knobs Knobs) (engine.QuoteResult, error) {
	const op = "aggregator.TitanClient.Quote"
	var result engine.QuoteResult
	err := doWithRetry(ctx, t.Retry, func() error {
		r, err := fetchQuote(ctx, t.Client, op, engine.AggregatorTitan, buildQuoteURL(t.BaseURL, pair, amount, direction, knobs))
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

func (t *TitanClient) Build(ctx context.Context, merged engine.MergedQuote, user solana.Pubkey) (engine.BuildArtifact, error) {
	const op = "aggregator.TitanClient.Build"
	body, err := newBuildRequest(merged, user)
	if err != nil {
		return engine.BuildArtifact{}, engine.NewError(engine.KindAggregatorDecode, op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+"/swap-instructions", bytes.NewReader(body))
	if err != nil {
		return engine.BuildArtifact{}, engine.NewError(engine.KindTransaction, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
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
	return decodeStructuredBuildArtifact(op, buf.Bytes())
}
