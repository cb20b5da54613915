package vaults

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/mr-tron/base58"
)

// Vault account byte layout. All integers little-endian.
//
//	offset  size  field
//	0       8     anchor discriminator
//	8       32    name (zero padded)
//	40      32    manager pubkey
//	72      16    user shares (u128)
//	88      16    total shares (u128)
//	104     8     net deposits (i64, quote precision)
//	112     8     total deposits (u64, quote precision)
//	120     8     total withdraws (u64, quote precision)
//	128     8     quote equity (u64, quote precision)
const (
	vaultAccountSize = 136

	offName           = 8
	offManager        = 40
	offUserShares     = 72
	offTotalShares    = 88
	offNetDeposits    = 104
	offTotalDeposits  = 112
	offTotalWithdraws = 120
	offQuoteEquity    = 128
)

// VaultAccount is the decoded on-chain vault account state.
type VaultAccount struct {
	Name           string
	Manager        string
	UserShares     *big.Int
	TotalShares    *big.Int
	NetDeposits    *big.Int
	TotalDeposits  *big.Int
	TotalWithdraws *big.Int
	QuoteEquity    *big.Int
}

// DecodeVaultAccount parses raw vault account bytes.
func DecodeVaultAccount(data []byte) (*VaultAccount, error) {
	if len(data) < vaultAccountSize {
		return nil, fmt.Errorf("vault account is %d bytes, want at least %d", len(data), vaultAccountSize)
	}

	name := string(bytes.TrimRight(data[offName:offName+32], "\x00"))
	manager := base58.Encode(data[offManager : offManager+32])

	return &VaultAccount{
		Name:           name,
		Manager:        manager,
		UserShares:     readU128(data[offUserShares:]),
		TotalShares:    readU128(data[offTotalShares:]),
		NetDeposits:    readI64(data[offNetDeposits:]),
		TotalDeposits:  readU64(data[offTotalDeposits:]),
		TotalWithdraws: readU64(data[offTotalWithdraws:]),
		QuoteEquity:    readU64(data[offQuoteEquity:]),
	}, nil
}

// readU128 reads a little-endian u128 from the first 16 bytes of b.
func readU128(b []byte) *big.Int {
	be := make([]byte, 16)
	for i := 0; i < 16; i++ {
		be[15-i] = b[i]
	}
	return new(big.Int).SetBytes(be)
}

func readU64(b []byte) *big.Int {
	return new(big.Int).SetUint64(binary.LittleEndian.Uint64(b))
}

func readI64(b []byte) *big.Int {
	return big.NewInt(int64(binary.LittleEndian.Uint64(b)))
}
