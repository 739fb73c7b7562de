package engine

import (
	"context"

	"github.com/shai-labs/voyager/internal/solana"
)

// ChainGateway is the boundary contract onto the cluster:
// blockhash/slot lookup and account fetches for ALT resolution. A gRPC
// (Yellowstone-style) source may back GetLatestBlockhash, see
// internal/chain.
type ChainGateway interface {
	GetLatestBlockhash(ctx context.Context) (hash [32]byte, lastValidBlockHeight uint64, err error)
	GetSlot(ctx context.Context) (uint64, error)
	GetAccountData(ctx context.Context, addr solana.Pubkey) ([]byte, error)
}

// AltResolver resolves lookup-table addresses into their account
// contents, normally backed by cache.AltCache. RefreshMany bypasses
// the cache for the one forced re-fetch callers attempt before
// treating a table as unresolvable.
type AltResolver interface {
	ResolveMany(ctx context.Context, addrs []solana.Pubkey) ([]solana.LookupTable, error)
	RefreshMany(ctx context.Context, addrs []solana.Pubkey) ([]solana.LookupTable, error)
}

// BuilderConfig configures the optional memo instruction; an empty
// Memo emits nothing.
type BuilderConfig struct {
	Memo string
}

// TransactionBuilder compiles a signed v0 transaction from an
// instruction bundle and a fresh blockhash.
type TransactionBuilder struct {
	Chain  ChainGateway
	Alt    AltResolver
	Config BuilderConfig
}

func NewTransactionBuilder(chain ChainGateway, alt AltResolver, cfg BuilderConfig) *TransactionBuilder {
	return &TransactionBuilder{Chain: chain, Alt: alt, Config: cfg}
}

// Build compiles and signs the bundle's flattened instruction sequence.
func (b *TransactionBuilder) Build(ctx context.Context, signer solana.Signer, bundle InstructionBundle, tipLamports uint64) (PreparedTransaction, error) {
	return b.buildInternal(ctx, signer, bundle, nil, tipLamports)
}

// BuildWithSequence lets a caller (e.g. the flash-loan wrapper) supply
// the fully assembled instruction sequence directly, bypassing the
// bundle's own Flatten.
func (b *TransactionBuilder) BuildWithSequence(ctx context.Context, signer solana.Signer, bundle InstructionBundle, sequence []solana.Instruction, tipLamports uint64) (PreparedTransaction, error) {
	return b.buildInternal(ctx, signer, bundle, sequence, tipLamports)
}

func (b *TransactionBuilder) buildInternal(ctx context.Context, signer solana.Signer, bundle InstructionBundle, override []solana.Instruction, tipLamports uint64) (PreparedTransaction, error) {
	tables := bundle.ResolvedTables
	if len(tables) == 0 && len(bundle.LookupAddresses) > 0 {
		resolved, err := b.Alt.ResolveMany(ctx, bundle.LookupAddresses)
		if err != nil {
			// One forced refresh before giving up on the lookup set.
			resolved, err = b.Alt.RefreshMany(ctx, bundle.LookupAddresses)
		}
		if err != nil {
			return PreparedTransaction{}, NewError(KindLookupTableMissing, "engine.TransactionBuilder.Build", err)
		}
		tables = resolved
	}

	hash, _, err := b.Chain.GetLatestBlockhash(ctx)
	if err != nil {
		return PreparedTransaction{}, NewError(KindRpc, "engine.TransactionBuilder.Build", err)
	}
	slot, err := b.Chain.GetSlot(ctx)
	if err != nil {
		return PreparedTransaction{}, NewError(KindRpc, "engine.TransactionBuilder.Build", err)
	}

	ix := override
	if ix == nil {
		ix = bundle.Flatten()
	}
	if b.Config.Memo != "" {
		ix = append(ix, solana.NewMemoInstruction(b.Config.Memo))
	}

	tx, err := solana.NewVersionedTransaction(signer, ix, tables, hash)
	if err != nil {
		return PreparedTransaction{}, NewError(KindTransaction, "engine.TransactionBuilder.Build", err)
	}

	return PreparedTransaction{
		Transaction:          tx,
		Blockhash:            hash,
		Slot:                 slot,
		Signer:               signer,
		TipLamports:          tipLamports,
		ResolvedLookupTables: tables,
	}, nil
}
