// Package chain implements the chain gateway: blockhash/slot lookup
// and account reads over JSON-RPC 2.0, plus an optional
// Yellowstone-style gRPC blockhash source.
package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/shai-labs/voyager/internal/cache"
	"github.com/shai-labs/voyager/internal/solana"
)

// RPCGateway implements engine.ChainGateway, cache.AccountFetcher, and
// cache.TokenAccountLister against a single JSON-RPC endpoint.
type RPCGateway struct {
	Endpoint string
	Client   *http.Client
}

func NewRPCGateway(endpoint string, client *http.Client) *RPCGateway {
	if client == nil {
		client = http.DefaultClient
	}
	return &RPCGateway{Endpoint: endpoint, Client: client}
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonRPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *jsonRPCError   `json:"error"`
}

func (g *RPCGateway) call(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("chain: marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("chain: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.Client.Do(req)
	if err != nil {
		return fmt.Errorf("chain: %s transport error: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chain: %s returned status %d", method, resp.StatusCode)
	}

	var rpcResp jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("chain: decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("chain: %s rpc error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("chain: unmarshal %s result: %w", method, err)
	}
	return nil
}

type blockhashValue struct {
	Value struct {
		Blockhash            string `json:"blockhash"`
		LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	} `json:"value"`
}

// GetLatestBlockhash implements engine.ChainGateway.
func (g *RPCGateway) GetLatestBlockhash(ctx context.Context) ([32]byte, uint64, error) {
	var out blockhashValue
	if err := g.call(ctx, "getLatestBlockhash", []any{}, &out); err != nil {
		return [32]byte{}, 0, err
	}
	hash, err := solana.PubkeyFromBase58(out.Value.Blockhash)
	if err != nil {
		return [32]byte{}, 0, fmt.Errorf("chain: decode blockhash: %w", err)
	}
	return [32]byte(hash), out.Value.LastValidBlockHeight, nil
}

// GetSlot implements engine.ChainGateway.
func (g *RPCGateway) GetSlot(ctx context.Context) (uint64, error) {
	var out uint64
	if err := g.call(ctx, "getSlot", []any{}, &out); err != nil {
		return 0, err
	}
	return out, nil
}

type accountValue struct {
	Value *struct {
		Data []string `json:"data"` // [base64, "base64"]
	} `json:"value"`
}

// GetAccountData implements engine.ChainGateway and cache.AccountFetcher.
func (g *RPCGateway) GetAccountData(ctx context.Context, addr solana.Pubkey) ([]byte, error) {
	var out accountValue
	params := []any{addr.String(), map[string]string{"encoding": "base64"}}
	if err := g.call(ctx, "getAccountInfo", params, &out); err != nil {
		return nil, err
	}
	if out.Value == nil || len(out.Value.Data) == 0 {
		return nil, fmt.Errorf("chain: account %s not found", addr)
	}
	return base64.StdEncoding.DecodeString(out.Value.Data[0])
}

type multipleAccountsValue struct {
	Value []*struct {
		Data []string `json:"data"`
	} `json:"value"`
}

// GetMultipleAccounts implements cache.AccountFetcher. A nil entry in
// the returned slice means the account was absent, matching
// AltCache.RefreshMany's expectation.
func (g *RPCGateway) GetMultipleAccounts(ctx context.Context, keys []solana.Pubkey) ([][]byte, error) {
	addrs := make([]string, len(keys))
	for i, k := range keys {
		addrs[i] = k.String()
	}
	var out multipleAccountsValue
	params := []any{addrs, map[string]string{"encoding": "base64"}}
	if err := g.call(ctx, "getMultipleAccounts", params, &out); err != nil {
		return nil, err
	}
	result := make([][]byte, len(keys))
	for i, v := range out.Value {
		if v == nil || len(v.Data) == 0 {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(v.Data[0])
		if err != nil {
			continue
		}
		result[i] = data
	}
	return result, nil
}

type tokenAccountsValue struct {
	Value []struct {
		Pubkey  string `json:"pubkey"`
		Account struct {
			Data struct {
				Parsed struct {
					Info struct {
						Mint        string `json:"mint"`
						Owner       string `json:"owner"`
						TokenAmount struct {
							Amount string `json:"amount"`
						} `json:"tokenAmount"`
					} `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"account"`
	} `json:"value"`
}

// ListTokenAccountsByOwner implements cache.TokenAccountLister via
// getTokenAccountsByOwner with jsonParsed encoding.
func (g *RPCGateway) ListTokenAccountsByOwner(ctx context.Context, owner solana.Pubkey, tokenProgram solana.Pubkey) ([]cache.WalletTokenAccountEntry, error) {
	var out tokenAccountsValue
	params := []any{
		owner.String(),
		map[string]string{"programId": tokenProgram.String()},
		map[string]string{"encoding": "jsonParsed"},
	}
	if err := g.call(ctx, "getTokenAccountsByOwner", params, &out); err != nil {
		return nil, err
	}

	entries := make([]cache.WalletTokenAccountEntry, 0, len(out.Value))
	for _, row := range out.Value {
		tokenAccount, err := solana.PubkeyFromBase58(row.Pubkey)
		if err != nil {
			continue
		}
		mint, err := solana.PubkeyFromBase58(row.Account.Data.Parsed.Info.Mint)
		if err != nil {
			continue
		}
		rowOwner, err := solana.PubkeyFromBase58(row.Account.Data.Parsed.Info.Owner)
		if err != nil {
			continue
		}
		balance, err := strconv.ParseUint(row.Account.Data.Parsed.Info.TokenAmount.Amount, 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, cache.WalletTokenAccountEntry{
			Mint:         mint,
			TokenAccount: tokenAccount,
			TokenProgram: tokenProgram,
			Owner:        rowOwner,
			Balance:      balance,
		})
	}
	return entries, nil
}
