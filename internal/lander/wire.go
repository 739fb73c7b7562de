package lander

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shai-labs/voyager/internal/engine"
)

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type sendTransactionResponse struct {
	Result string        `json:"result"`
	Error  *jsonrpcError `json:"error"`
}

// encodeTransaction bincode-encodes (via VersionedTransaction.Serialize)
// and base64-encodes a signed transaction for sendTransaction/sendBundle
// payloads.
func encodeTransaction(tx interface{ Serialize() []byte }) string {
	return base64.StdEncoding.EncodeToString(tx.Serialize())
}

func buildSendTransactionPayload(encoded string) []byte {
	body, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "sendTransaction",
		"params":  []any{encoded, map[string]string{"encoding": "base64"}},
	})
	return body
}

// sendOnce implements the wire shape Rpc and Staked share: POST
// sendTransaction, first 2xx without "error" wins.
func sendOnce(ctx context.Context, client *http.Client, landerName, endpoint string, variant engine.TxVariant) (engine.LanderReceipt, error) {
	op := "lander." + landerName + ".sendOnce"
	payload := buildSendTransactionPayload(encodeTransaction(variant.Transaction))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return engine.LanderReceipt{}, engine.NewError(engine.KindLanderNetwork, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
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
		Lander:    landerName,
		Endpoint:  endpoint,
		Slot:      variant.Slot,
		Blockhash: variant.Blockhash,
		Signature: body.Result,
		VariantID: variant.ID,
	}, nil
}

type errStatus int

func (e errStatus) Error() string { return "unexpected http status " + http.StatusText(int(e)) }

type errRPC string

func (e errRPC) Error() string { return string(e) }

// rpcStyleLander implements Rpc and Staked: POST sendTransaction to
// each configured endpoint in turn, first success wins.
type rpcStyleLander struct {
	name      string
	endpoints []string
	client    *http.Client
}

func (l *rpcStyleLander) Name() string { return l.name }

func (l *rpcStyleLander) Submit(ctx context.Context, variant engine.TxVariant, deadline engine.CycleDeadline) (engine.LanderReceipt, error) {
	op := "lander." + l.name + ".Submit"
	if deadline.Expired() {
		return engine.LanderReceipt{}, engine.NewError(engine.KindLanderFatal, op, errDeadlineExpired)
	}

	var lastErr error
	for _, ep := range l.endpoints {
		if strings.TrimSpace(ep) == "" {
			continue
		}
		receipt, err := sendOnce(ctx, l.client, l.name, ep, variant)
		if err == nil {
			return receipt, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = engine.NewError(engine.KindLanderFatal, op, errNoEndpoints)
	}
	return engine.LanderReceipt{}, lastErr
}

var errDeadlineExpired = errString("deadline expired before submission")
var errNoEndpoints = errString("no endpoints configured")

type errString string

func (e errString) Error() string { return string(e) }
