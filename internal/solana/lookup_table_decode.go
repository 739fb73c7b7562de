package solana

import "errors"

// lookupTableMetaSize is the fixed-size header solana-program's
// AddressLookupTable state carries ahead of its address list:
// 4-byte enum discriminant, deactivation_slot (u64), last_extended_slot
// (u64), last_extended_slot_start_index (u8), Option<Pubkey> authority
// (1 + 32 bytes), and 2 bytes of padding. 4+8+8+1+33+2 = 56.
const lookupTableMetaSize = 56

var ErrInvalidLookupTableAccount = errors.New("solana: invalid address lookup table account data")

// DecodeLookupTableAccountAddresses extracts the address list from a
// raw address-lookup-table account's data, skipping its fixed header.
func DecodeLookupTableAccountAddresses(data []byte) ([]Pubkey, error) {
	if len(data) < lookupTableMetaSize {
		return nil, ErrInvalidLookupTableAccount
	}
	rest := data[lookupTableMetaSize:]
	if len(rest)%32 != 0 {
		return nil, ErrInvalidLookupTableAccount
	}
	count := len(rest) / 32
	addrs := make([]Pubkey, count)
	for i := 0; i < count; i++ {
		copy(addrs[i][:], rest[i*32:(i+1)*32])
	}
	return addrs, nil
}
