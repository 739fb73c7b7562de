package aggregator

import (
	"bytes"
	"context"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/shai-labs/voyager/internal/engine"
	"github.com/shai-labs/voyager/internal/solana"
)

// DflowClient speaks DFlow's Jupiter-compatible /quote +
// /swap-instructions protocol.
type DflowClient struct {
	BaseURL string
	Client  *http.Client
	Retry   RetryConfig
}

func NewDflowClient(baseURL string, client *http.Client, retry RetryConfig) *DflowClient {
	return &DflowClient{BaseURL: baseURL, Client: client, Retry: retry}
}

func (d *DflowClient) Kind() engine.AggregatorKind { return engine.AggregatorDflow }

func (d *DflowClient) Quote(ctx context.Context, pair engine.TradePair, amount uint64, direction engine.Direction, knobs Knobs) (engine.QuoteResult, error) {
	const op = "aggregator.DflowClient.Quote"
	var result engine.QuoteResult
	err := doWithRetry(ctx, d.Retry, func() error {
		r, err := fetchQuote(ctx, d.Client, op, engine.AggregatorDflow, buildQuoteURL(d.BaseURL, pair, amount, direction, knobs))
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

func (d *DflowClient) Build(ctx context.Context, merged engine.MergedQuote, user solana.Pubkey) (engine.BuildArtifact, error) {
	const op = "aggregator.DflowClient.Build"
	body, err := newBuildRequest(merged, user)
	if err != nil {
		return engine.BuildArtifact{}, engine.NewError(engine.KindAggregatorDecode, op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.BaseURL+"/swap-instructions", bytes.NewReader(body))
	if err != nil {
		return engine.BuildArtifact{}, engine.NewError(engine.KindTransaction, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.Client.Do(req)
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
