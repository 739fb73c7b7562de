package solana

// AssociatedTokenProgramID is the SPL associated-token-account program.
const AssociatedTokenProgramID = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"

// FindAssociatedTokenAddress derives the canonical ATA for (owner, mint)
// under the given token program, matching the associated-token-account
// program's own seed layout.
func FindAssociatedTokenAddress(owner, mint Pubkey, tokenProgram Pubkey) (Pubkey, uint8, error) {
	ataProgram := MustPubkeyFromBase58(AssociatedTokenProgramID)
	return FindProgramAddress([][]byte{owner[:], tokenProgram[:], mint[:]}, ataProgram)
}
