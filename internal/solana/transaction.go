package solana

import "fmt"

// Signer is the boundary contract onto wallet key management:
// production key storage, HSM integration, and mnemonic handling all
// live outside this engine. The engine only ever needs a pubkey and a
// raw-bytes signature over a message.
type Signer interface {
	Pubkey() Pubkey
	Sign(message []byte) []byte
}

// VersionedTransaction is a signed v0 message. Signature order must
// match AccountKeys[0:NumRequiredSignatures].
type VersionedTransaction struct {
	Signatures [][]byte
	Message    MessageV0
}

// NewVersionedTransaction compiles ix into a v0 message and signs it.
// This engine only ever needs a single, local, non-multisig signer
// (the bot's own wallet), so exactly one signature slot is populated.
func NewVersionedTransaction(payer Signer, ix []Instruction, tables []LookupTable, blockhash [32]byte) (VersionedTransaction, error) {
	msg, err := CompileMessageV0(payer.Pubkey(), ix, tables, blockhash)
	if err != nil {
		return VersionedTransaction{}, err
	}
	if len(msg.AccountKeys) == 0 || msg.AccountKeys[0] != payer.Pubkey() {
		return VersionedTransaction{}, fmt.Errorf("solana: payer is not the first account key")
	}
	sig := payer.Sign(msg.Serialize())
	sigs := make([][]byte, msg.NumRequiredSignatures)
	sigs[0] = sig
	return VersionedTransaction{Signatures: sigs, Message: msg}, nil
}

// Serialize produces the bincode-equivalent wire form: compact-length
// signature count, the signatures themselves, then the message bytes.
func (tx VersionedTransaction) Serialize() []byte {
	buf := appendCompactArrayLen(nil, len(tx.Signatures))
	for _, s := range tx.Signatures {
		buf = append(buf, s...)
	}
	buf = append(buf, tx.Message.Serialize()...)
	return buf
}
