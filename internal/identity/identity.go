// Package identity models the wallet boundary: production key
// storage, HSM integration, and mnemonic handling all live outside
// this engine, which only ever consumes a solana.Signer.
package identity

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shai-labs/voyager/internal/solana"
)

// Identity bundles the signer the transaction builder and flash-loan
// manager need plus the user pubkey aggregator clients build against.
type Identity struct {
	Signer solana.Signer
}

func New(signer solana.Signer) Identity {
	return Identity{Signer: signer}
}

func (i Identity) Pubkey() solana.Pubkey { return i.Signer.Pubkey() }

// Provider resolves the active Identity. Real deployments back this
// with an out-of-process key-management service; this engine's own
// tests and the dry-run probe binary use solana.Keypair directly.
type Provider interface {
	Identity() (Identity, error)
}

// StaticProvider always returns the same Identity, the shape a
// config-loaded local keypair takes in development and in the probe
// binary (cmd/voyager-probe).
type StaticProvider struct {
	identity Identity
}

func NewStaticProvider(signer solana.Signer) StaticProvider {
	return StaticProvider{identity: New(signer)}
}

func (p StaticProvider) Identity() (Identity, error) { return p.identity, nil }

// LoadKeypairFile reads a solana-keygen-style JSON byte-array keypair
// file into a local signer. This is a development/probe convenience,
// not the production key-storage path: a real deployment swaps the
// Provider for one backed by an HSM or remote signer without the
// engine noticing.
func LoadKeypairFile(path string) (*solana.Keypair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: read keypair file %q: %w", path, err)
	}
	var bytes []byte
	if err := json.Unmarshal(raw, &bytes); err != nil {
		return nil, fmt.Errorf("identity: parse keypair file %q: %w", path, err)
	}
	return solana.KeypairFromBytes(bytes)
}
