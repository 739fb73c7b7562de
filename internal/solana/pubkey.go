// Package solana models the narrow slice of Solana wire types the
// engine needs to compile and sign a versioned transaction: pubkeys,
// instructions, v0 messages, and transaction signing. It intentionally
// does not implement a full RPC client or program decoders — those are
// external boundary concerns per the engine's own scope.
package solana

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Pubkey is a 32-byte opaque account address.
type Pubkey [32]byte

var Zero Pubkey

func (p Pubkey) String() string {
	return base58.Encode(p[:])
}

func (p Pubkey) IsZero() bool {
	return p == Zero
}

// PubkeyFromBase58 decodes a base58-encoded 32-byte address.
func PubkeyFromBase58(s string) (Pubkey, error) {
	var pk Pubkey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("solana: decode pubkey %q: %w", s, err)
	}
	if len(raw) != 32 {
		return pk, fmt.Errorf("solana: pubkey %q decodes to %d bytes, want 32", s, len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

func MustPubkeyFromBase58(s string) Pubkey {
	pk, err := PubkeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// ErrSeedsTooLong mirrors the on-chain PDA derivation failure mode.
var ErrSeedsTooLong = errors.New("solana: pda seeds exceed program-derived-address limits")

// maxSeedLen and maxSeeds mirror solana-program's PDA_MARKER constraints.
const (
	maxSeedLen = 32
	maxSeeds   = 16
	pdaMarker  = "ProgramDerivedAddress"
)

// FindProgramAddress derives a PDA the same way the runtime does: it
// tries bump seeds from 255 down to 0 until the derived point is off
// the ed25519 curve. Each derivation is a value-typed (pubkey, bump)
// pair recomputed on demand; callers must never cache a PDA as a
// back-reference into the record that produced its seeds.
func FindProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, uint8, error) {
	if len(seeds) > maxSeeds {
		return Zero, 0, ErrSeedsTooLong
	}
	for _, s := range seeds {
		if len(s) > maxSeedLen {
			return Zero, 0, ErrSeedsTooLong
		}
	}
	for bump := 255; bump >= 0; bump-- {
		candidate, err := createProgramAddress(seeds, []byte{byte(bump)}, programID)
		if err != nil {
			continue
		}
		return candidate, uint8(bump), nil
	}
	return Zero, 0, fmt.Errorf("solana: unable to find a valid program address")
}

func createProgramAddress(seeds [][]byte, bumpSeed []byte, programID Pubkey) (Pubkey, error) {
	h := sha256.New()
	for _, seed := range seeds {
		h.Write(seed)
	}
	if len(bumpSeed) > 0 {
		h.Write(bumpSeed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))
	sum := h.Sum(nil)
	var out Pubkey
	copy(out[:], sum)
	if isOnCurve(out) {
		return Zero, fmt.Errorf("solana: derived address is on curve")
	}
	return out, nil
}

// isOnCurve reports whether the 32 bytes decompress to a valid
// Edwards point, the same membership test the runtime applies when
// rejecting PDA candidates.
func isOnCurve(p Pubkey) bool {
	_, err := new(edwards25519.Point).SetBytes(p[:])
	return err == nil
}

// Keypair is the minimal local signer: a keypair file loaded at boot
// or a freshly generated one for tests and the dry-run probe binary.
type Keypair struct {
	Public  Pubkey
	private ed25519.PrivateKey
}

func NewKeypair() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	var pk Pubkey
	copy(pk[:], pub)
	return &Keypair{Public: pk, private: priv}, nil
}

func (k *Keypair) Pubkey() Pubkey { return k.Public }

func (k *Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.private, msg)
}

// KeypairFromBytes builds a Keypair from a 64-byte ed25519 secret key
// (seed || public key), the layout solana-keygen writes as a JSON byte
// array — the de-facto local-keypair-file convention every Solana CLI
// tool shares.
func KeypairFromBytes(raw []byte) (*Keypair, error) {
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("solana: keypair bytes must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	priv := ed25519.PrivateKey(append([]byte(nil), raw...))
	var pk Pubkey
	copy(pk[:], priv.Public().(ed25519.PublicKey))
	return &Keypair{Public: pk, private: priv}, nil
}
