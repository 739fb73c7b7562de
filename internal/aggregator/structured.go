package aggregator

import (
	"encoding/base64"
	"encoding/json"

	"github.com/shai-labs/voyager/internal/engine"
	"github.com/shai-labs/voyager/internal/solana"
)

// wireInstruction mirrors solana-sdk's Instruction JSON shape, the
// form every Jupiter-compatible swap-instructions endpoint returns.
type wireInstruction struct {
	ProgramID string            `json:"programId"`
	Accounts  []wireAccountMeta `json:"accounts"`
	Data      string            `json:"data"` // base64
}

type wireAccountMeta struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

// swapInstructionsResponse is the structured (non-Ultra) build
// response: labelled compute-budget / setup / swap / cleanup / other
// lanes.
type swapInstructionsResponse struct {
	ComputeBudgetInstructions   []wireInstruction `json:"computeBudgetInstructions"`
	SetupInstructions           []wireInstruction `json:"setupInstructions"`
	SwapInstruction             *wireInstruction  `json:"swapInstruction"`
	CleanupInstruction          *wireInstruction  `json:"cleanupInstruction"`
	OtherInstructions           []wireInstruction `json:"otherInstructions"`
	AddressLookupTableAddresses []string          `json:"addressLookupTableAddresses"`
	PrioritizationFeeLamports   uint64            `json:"prioritizationFeeLamports"`
	ComputeUnitLimit            uint32            `json:"computeUnitLimit"`
}

func (w wireInstruction) lift() (solana.Instruction, error) {
	programID, err := solana.PubkeyFromBase58(w.ProgramID)
	if err != nil {
		return solana.Instruction{}, err
	}
	data, err := base64.StdEncoding.DecodeString(w.Data)
	if err != nil {
		return solana.Instruction{}, err
	}
	accounts := make([]solana.AccountMeta, 0, len(w.Accounts))
	for _, a := range w.Accounts {
		pk, err := solana.PubkeyFromBase58(a.Pubkey)
		if err != nil {
			return solana.Instruction{}, err
		}
		accounts = append(accounts, solana.AccountMeta{Pubkey: pk, IsSigner: a.IsSigner, IsWritable: a.IsWritable})
	}
	return solana.Instruction{ProgramID: programID, Accounts: accounts, Data: data}, nil
}

func liftAll(instrs []wireInstruction) ([]solana.Instruction, error) {
	out := make([]solana.Instruction, 0, len(instrs))
	for _, w := range instrs {
		ix, err := w.lift()
		if err != nil {
			return nil, err
		}
		out = append(out, ix)
	}
	return out, nil
}

// decodeStructuredBuildArtifact parses a structured swap-instructions
// response body into an engine.BuildArtifact.
func decodeStructuredBuildArtifact(op string, body []byte) (engine.BuildArtifact, error) {
	var resp swapInstructionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return engine.BuildArtifact{}, engine.NewError(engine.KindAggregatorDecode, op, err)
	}
	if resp.SwapInstruction == nil {
		return engine.BuildArtifact{}, engine.NewError(engine.KindTransaction, op, errMissingSwapInstruction)
	}

	computeBudget, err := liftAll(resp.ComputeBudgetInstructions)
	if err != nil {
		return engine.BuildArtifact{}, engine.NewError(engine.KindAggregatorDecode, op, err)
	}
	setup, err := liftAll(resp.SetupInstructions)
	if err != nil {
		return engine.BuildArtifact{}, engine.NewError(engine.KindAggregatorDecode, op, err)
	}
	other, err := liftAll(resp.OtherInstructions)
	if err != nil {
		return engine.BuildArtifact{}, engine.NewError(engine.KindAggregatorDecode, op, err)
	}
	swapIx, err := resp.SwapInstruction.lift()
	if err != nil {
		return engine.BuildArtifact{}, engine.NewError(engine.KindAggregatorDecode, op, err)
	}
	var cleanup *solana.Instruction
	if resp.CleanupInstruction != nil {
		lifted, err := resp.CleanupInstruction.lift()
		if err != nil {
			return engine.BuildArtifact{}, engine.NewError(engine.KindAggregatorDecode, op, err)
		}
		cleanup = &lifted
	}
	lookups := make([]solana.Pubkey, 0, len(resp.AddressLookupTableAddresses))
	for _, addr := range resp.AddressLookupTableAddresses {
		pk, err := solana.PubkeyFromBase58(addr)
		if err != nil {
			return engine.BuildArtifact{}, engine.NewError(engine.KindAggregatorDecode, op, err)
		}
		lookups = append(lookups, pk)
	}

	return engine.BuildArtifact{
		ComputeBudgetInstructions:     computeBudget,
		SetupInstructions:             setup,
		SwapInstruction:               &swapIx,
		CleanupInstruction:            cleanup,
		OtherInstructions:             other,
		AddressLookupTableAddresses:   lookups,
		PrioritizationFeeLamports:     resp.PrioritizationFeeLamports,
		ComputeUnitLimit:              resp.ComputeUnitLimit,
		ComputeUnitPriceMicroLamports: 0,
	}, nil
}

type structuredDecodeError string

func (e structuredDecodeError) Error() string { return string(e) }

const errMissingSwapInstruction = structuredDecodeError("aggregator: build response missing swap instruction")
