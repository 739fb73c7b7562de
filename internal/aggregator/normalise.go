package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shai-labs/voyager/internal/engine"
	"github.com/shai-labs/voyager/internal/solana"
)

// quoteResponsePayload holds the fields every Jupiter-compatible
// aggregator's /quote endpoint returns that this engine actually
// consumes. Amounts travel as strings on the wire (u64 does not fit
// losslessly in JSON numbers).
type quoteResponsePayload struct {
	InputMint            string          `json:"inputMint"`
	OutputMint           string          `json:"outputMint"`
	InAmount             string          `json:"inAmount"`
	OutAmount            string          `json:"outAmount"`
	ContextSlot          uint64          `json:"contextSlot"`
	TimeTaken            float64         `json:"timeTaken"`
	RoutePlan            []json.RawMessage `json:"routePlan"`
}

// buildQuoteURL assembles a Jupiter-compatible /quote request URL from
// the recognised knobs, silently dropping anything the Knobs struct
// doesn't itself carry.
func buildQuoteURL(base string, pair engine.TradePair, amount uint64, direction engine.Direction, knobs Knobs) string {
	inputMint, outputMint := pair.InputMint, pair.OutputMint
	if direction == engine.DirectionReverse {
		inputMint, outputMint = outputMint, inputMint
	}

	q := url.Values{}
	q.Set("inputMint", inputMint.String())
	q.Set("outputMint", outputMint.String())
	q.Set("amount", strconv.FormatUint(amount, 10))
	if knobs.SlippageAuto {
		q.Set("slippageBps", "auto")
	} else {
		q.Set("slippageBps", strconv.FormatUint(uint64(knobs.SlippageBps), 10))
	}
	if knobs.DirectRoutesOnly {
		q.Set("onlyDirectRoutes", "true")
	}
	if knobs.RestrictIntermediates {
		q.Set("restrictIntermediateTokens", "true")
	}
	if knobs.MaxAccounts > 0 {
		q.Set("maxAccounts", strconv.Itoa(knobs.MaxAccounts))
	}
	if knobs.PlatformFeeBps > 0 {
		q.Set("platformFeeBps", strconv.FormatUint(uint64(knobs.PlatformFeeBps), 10))
	}
	if knobs.SwapMode != "" {
		q.Set("swapMode", string(knobs.SwapMode))
	}
	if len(knobs.DexAllowList) > 0 {
		q.Set("dexes", joinComma(knobs.DexAllowList))
	}
	if len(knobs.DexDenyList) > 0 {
		q.Set("excludeDexes", joinComma(knobs.DexDenyList))
	}
	return base + "/quote?" + q.Encode()
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

// fetchQuote performs the shared Jupiter-compatible GET /quote call
// and normalises the response into an engine.QuoteResult, retaining
// the raw body for the subsequent build call.
func fetchQuote(ctx context.Context, client *http.Client, op string, kind engine.AggregatorKind, quoteURL string) (engine.QuoteResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, quoteURL, nil)
	if err != nil {
		return engine.QuoteResult{}, engine.NewError(engine.KindAggregatorDecode, op, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return engine.QuoteResult{}, engine.NewError(engine.KindAggregatorNetwork, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return engine.QuoteResult{}, classifyStatus(op, resp.StatusCode)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return engine.QuoteResult{}, engine.NewError(engine.KindAggregatorNetwork, op, err)
	}
	raw := append([]byte(nil), buf.Bytes()...)

	var payload quoteResponsePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return engine.QuoteResult{}, engine.NewError(engine.KindAggregatorDecode, op, err)
	}

	inputMint, err := solana.PubkeyFromBase58(payload.InputMint)
	if err != nil {
		return engine.QuoteResult{}, engine.NewError(engine.KindAggregatorDecode, op, err)
	}
	outputMint, err := solana.PubkeyFromBase58(payload.OutputMint)
	if err != nil {
		return engine.QuoteResult{}, engine.NewError(engine.KindAggregatorDecode, op, err)
	}
	inAmount, err := parseU64(payload.InAmount)
	if err != nil {
		return engine.QuoteResult{}, engine.NewError(engine.KindAggregatorDecode, op, err)
	}
	outAmount, err := parseU64(payload.OutAmount)
	if err != nil {
		return engine.QuoteResult{}, engine.NewError(engine.KindAggregatorDecode, op, err)
	}

	return engine.QuoteResult{
		InputMint:    inputMint,
		OutputMint:   outputMint,
		InAmount:     inAmount,
		OutAmount:    outAmount,
		ContextSlot:  payload.ContextSlot,
		TimeTakenMs:  payload.TimeTaken,
		Kind:         kind,
		RoutePlanLen: len(payload.RoutePlan),
		Raw:          raw,
	}, nil
}

func parseU64(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("aggregator: parse amount %q: %w", s, err)
	}
	return v, nil
}

// buildRequestBody is the shared Jupiter-compatible POST /swap-instructions
// body: the merged quote payload plus the user's pubkey and optional
// compute-unit-price hint.
type buildRequestBody struct {
	QuoteResponse        json.RawMessage `json:"quoteResponse"`
	UserPublicKey        string          `json:"userPublicKey"`
	PrioritizationFeeLamports any          `json:"prioritizationFeeLamports,omitempty"`
	AsLegacyTransaction   bool            `json:"asLegacyTransaction"`
}

// mergedQuoteRaw rewrites the forward quote body so the build endpoint
// sees the full round trip: output mint and out amount replaced with
// the merged values, context slot and timing widened, price impact
// zeroed, and the reverse leg's route plan appended to the forward
// one.
func mergedQuoteRaw(merged engine.MergedQuote) (json.RawMessage, error) {
	if len(merged.ForwardRaw) == 0 {
		return nil, fmt.Errorf("aggregator: merged quote has no forward payload")
	}
	var fwd map[string]json.RawMessage
	if err := json.Unmarshal(merged.ForwardRaw, &fwd); err != nil {
		return nil, fmt.Errorf("aggregator: reparse forward quote: %w", err)
	}
	set := func(key string, v any) {
		raw, err := json.Marshal(v)
		if err == nil {
			fwd[key] = raw
		}
	}
	set("outputMint", merged.OutputMint.String())
	set("outAmount", strconv.FormatUint(merged.OutAmount, 10))
	set("otherAmountThreshold", strconv.FormatUint(merged.OutAmount, 10))
	set("contextSlot", merged.ContextSlot)
	set("timeTaken", merged.TimeTakenMs)
	set("priceImpactPct", "0")

	var route []json.RawMessage
	if raw, ok := fwd["routePlan"]; ok {
		if err := json.Unmarshal(raw, &route); err != nil {
			return nil, fmt.Errorf("aggregator: reparse forward route plan: %w", err)
		}
	}
	if len(merged.ReverseRaw) > 0 {
		var rev struct {
			RoutePlan []json.RawMessage `json:"routePlan"`
		}
		if err := json.Unmarshal(merged.ReverseRaw, &rev); err != nil {
			return nil, fmt.Errorf("aggregator: reparse reverse quote: %w", err)
		}
		route = append(route, rev.RoutePlan...)
	}
	set("routePlan", route)

	return json.Marshal(fwd)
}

func newBuildRequest(merged engine.MergedQuote, user solana.Pubkey) ([]byte, error) {
	quote, err := mergedQuoteRaw(merged)
	if err != nil {
		return nil, err
	}
	body := buildRequestBody{
		QuoteResponse: quote,
		UserPublicKey: user.String(),
	}
	return json.Marshal(body)
}
