// Package marginfi wraps a transaction's main leg in Marginfi's
// flash-loan begin/borrow/repay/end bookkeeping sandwich.
package marginfi

import (
	"encoding/binary"

	"github.com/shai-labs/voyager/internal/engine"
	"github.com/shai-labs/voyager/internal/solana"
)

var (
	ProgramID       = solana.MustPubkeyFromBase58("MFv2hWf31Z9kbCa1snEPYctwafyhdvnV7FZnsebVacA")
	GroupID         = solana.MustPubkeyFromBase58("4qp6Fx6tnZkY5Wropq9wUYgtFxXKwE6viZxFHg3rdAG8")
	instructionsSysvar = solana.MustPubkeyFromBase58("Sysvar1nstructions1111111111111111111111111")
)

var (
	beginDiscriminator  = [8]byte{14, 131, 33, 220, 81, 186, 180, 107}
	borrowDiscriminator = [8]byte{4, 126, 116, 53, 48, 5, 212, 31}
	repayDiscriminator  = [8]byte{79, 209, 172, 177, 222, 51, 173, 151}
	endDiscriminator    = [8]byte{105, 124, 201, 106, 153, 2, 8, 156}
)

// Asset is a base mint the flash-loan manager can borrow against,
// with its Marginfi bank and the extra accounts `end` must receive.
type Asset struct {
	Mint              solana.Pubkey
	Bank              solana.Pubkey
	TokenProgram      solana.Pubkey
	RemainingAccounts []solana.Pubkey
}

// Registry resolves a base mint to its Marginfi asset record.
type Registry struct {
	assets []Asset
}

func NewRegistry(assets []Asset) *Registry {
	return &Registry{assets: assets}
}

func (r *Registry) resolve(mint solana.Pubkey) (Asset, bool) {
	for _, a := range r.assets {
		if a.Mint == mint {
			return a, true
		}
	}
	return Asset{}, false
}

// Manager wraps instruction sequences in Marginfi flash loans on
// behalf of one marginfi account.
type Manager struct {
	Account  solana.Pubkey
	Registry *Registry
}

func NewManager(account solana.Pubkey, registry *Registry) *Manager {
	return &Manager{Account: account, Registry: registry}
}

// Wrap sandwiches body between begin/borrow and repay/end. A zero
// borrowAmount is a no-op splice of prefix and body with no metadata.
func (m *Manager) Wrap(
	user solana.Pubkey,
	baseMint solana.Pubkey,
	prefix, body []solana.Instruction,
	borrowAmount uint64,
) ([]solana.Instruction, *engine.FlashLoanMetadata, error) {
	if borrowAmount == 0 {
		out := make([]solana.Instruction, 0, len(prefix)+len(body))
		out = append(out, prefix...)
		out = append(out, body...)
		return out, nil, nil
	}

	asset, ok := m.Registry.resolve(baseMint)
	if !ok {
		return nil, nil, engine.NewError(engine.KindUnsupportedAsset, "marginfi.Manager.Wrap", unsupportedAssetError(baseMint))
	}

	destination, _, err := solana.FindAssociatedTokenAddress(user, asset.Mint, asset.TokenProgram)
	if err != nil {
		return nil, nil, engine.NewError(engine.KindTransaction, "marginfi.Manager.Wrap", err)
	}
	liquidityVault, _, err := solana.FindProgramAddress([][]byte{[]byte("liquidity_vault"), asset.Bank[:]}, ProgramID)
	if err != nil {
		return nil, nil, engine.NewError(engine.KindTransaction, "marginfi.Manager.Wrap", err)
	}
	liquidityVaultAuthority, _, err := solana.FindProgramAddress([][]byte{[]byte("liquidity_vault_auth"), asset.Bank[:]}, ProgramID)
	if err != nil {
		return nil, nil, engine.NewError(engine.KindTransaction, "marginfi.Manager.Wrap", err)
	}

	innerCount := len(body)
	startIndex := len(prefix)
	endIndex := uint64(startIndex + innerCount + 2 + 1)

	beginIx := buildBegin(m.Account, user, endIndex)
	borrowIx := buildBorrow(borrowAccounts{
		group:                   GroupID,
		marginfiAccount:         m.Account,
		authority:               user,
		bank:                    asset.Bank,
		destinationTokenAccount: destination,
		liquidityVaultAuthority: liquidityVaultAuthority,
		liquidityVault:          liquidityVault,
		tokenProgram:            asset.TokenProgram,
	}, borrowAmount)
	repayIx := buildRepay(repayAccounts{
		group:               GroupID,
		marginfiAccount:     m.Account,
		authority:           user,
		bank:                asset.Bank,
		signerTokenAccount:  destination,
		liquidityVault:      liquidityVault,
		tokenProgram:        asset.TokenProgram,
	}, borrowAmount)
	endIx := buildEnd(m.Account, user, asset.Bank, asset.RemainingAccounts)

	out := make([]solana.Instruction, 0, len(prefix)+innerCount+4)
	out = append(out, prefix...)
	out = append(out, beginIx, borrowIx)
	out = append(out, body...)
	out = append(out, repayIx, endIx)

	return out, &engine.FlashLoanMetadata{
		Protocol:              "marginfi",
		Mint:                  asset.Mint,
		BorrowAmount:          borrowAmount,
		InnerInstructionCount: innerCount,
	}, nil
}

type borrowAccounts struct {
	group, marginfiAccount, authority, bank                      solana.Pubkey
	destinationTokenAccount, liquidityVaultAuthority, liquidityVault, tokenProgram solana.Pubkey
}

type repayAccounts struct {
	group, marginfiAccount, authority, bank solana.Pubkey
	signerTokenAccount, liquidityVault, tokenProgram solana.Pubkey
}

func buildBegin(marginfiAccount, authority solana.Pubkey, endIndex uint64) solana.Instruction {
	data := make([]byte, 16)
	copy(data[:8], beginDiscriminator[:])
	binary.LittleEndian.PutUint64(data[8:], endIndex)
	return solana.Instruction{
		ProgramID: ProgramID,
		Accounts: []solana.AccountMeta{
			{Pubkey: marginfiAccount, IsWritable: true},
			{Pubkey: authority, IsSigner: true},
			{Pubkey: instructionsSysvar},
		},
		Data: data,
	}
}

func buildEnd(marginfiAccount, authority, bank solana.Pubkey, remaining []solana.Pubkey) solana.Instruction {
	accounts := make([]solana.AccountMeta, 0, len(remaining)+3)
	accounts = append(accounts,
		solana.AccountMeta{Pubkey: marginfiAccount, IsWritable: true},
		solana.AccountMeta{Pubkey: authority, IsSigner: true},
		solana.AccountMeta{Pubkey: bank, IsWritable: true},
	)
	for _, acc := range remaining {
		if !acc.IsZero() {
			accounts = append(accounts, solana.AccountMeta{Pubkey: acc})
		}
	}
	return solana.Instruction{ProgramID: ProgramID, Accounts: accounts, Data: endDiscriminator[:]}
}

func buildBorrow(a borrowAccounts, amount uint64) solana.Instruction {
	data := make([]byte, 16)
	copy(data[:8], borrowDiscriminator[:])
	binary.LittleEndian.PutUint64(data[8:], amount)
	return solana.Instruction{
		ProgramID: ProgramID,
		Accounts: []solana.AccountMeta{
			{Pubkey: a.group},
			{Pubkey: a.marginfiAccount, IsWritable: true},
			{Pubkey: a.authority, IsSigner: true},
			{Pubkey: a.bank, IsWritable: true},
			{Pubkey: a.destinationTokenAccount, IsWritable: true},
			{Pubkey: a.liquidityVaultAuthority},
			{Pubkey: a.liquidityVault, IsWritable: true},
			{Pubkey: a.tokenProgram},
		},
		Data: data,
	}
}

func buildRepay(a repayAccounts, amount uint64) solana.Instruction {
	data := make([]byte, 0, 17)
	data = append(data, repayDiscriminator[:]...)
	amountBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(amountBytes, amount)
	data = append(data, amountBytes...)
	data = append(data, 0) // repay_all = false
	return solana.Instruction{
		ProgramID: ProgramID,
		Accounts: []solana.AccountMeta{
			{Pubkey: a.group},
			{Pubkey: a.marginfiAccount, IsWritable: true},
			{Pubkey: a.authority, IsSigner: true},
			{Pubkey: a.bank, IsWritable: true},
			{Pubkey: a.signerTokenAccount, IsWritable: true},
			{Pubkey: a.liquidityVault, IsWritable: true},
			{Pubkey: a.tokenProgram},
		},
		Data: data,
	}
}

type unsupportedAssetError solana.Pubkey

func (e unsupportedAssetError) Error() string {
	return "marginfi: unsupported base mint " + solana.Pubkey(e).String()
}
