package vaults

import (
	"bytes"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"circuit-vaults-service/internal/domain"
)

// onCurveKey is the zero public key, a valid ed25519 curve point.
const onCurveKey = "11111111111111111111111111111111"

// testAddress returns a well-formed 32-byte base58 address seeded by b. These
// are treated as PDAs, so they need not be curve points.
func testAddress(b byte) string {
	raw := make([]byte, 32)
	raw[0] = b
	return base58.Encode(raw)
}

func testVault(b byte) domain.Vault {
	return domain.Vault{
		Address:          testAddress(b),
		Name:             "Vault" + string('A'+rune(b)),
		Manager:          onCurveKey,
		MarketSymbol:     "SOL",
		BasePrecisionExp: 9,
		FeeFraction:      0.3,
	}
}

func TestNewRegistry(t *testing.T) {
	r, err := NewRegistry([]domain.Vault{testVault(1), testVault(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	v, ok := r.Get(testAddress(1))
	require.True(t, ok)
	assert.Equal(t, "VaultB", v.Name)

	_, ok = r.Get(testAddress(99))
	assert.False(t, ok)
}

func TestNewRegistry_AllSortedByName(t *testing.T) {
	r, err := NewRegistry([]domain.Vault{testVault(3), testVault(1), testVault(2)})
	require.NoError(t, err)

	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, "VaultB", all[0].Name)
	assert.Equal(t, "VaultC", all[1].Name)
	assert.Equal(t, "VaultD", all[2].Name)
}

func TestNewRegistry_InvalidAddress(t *testing.T) {
	v := testVault(1)
	v.Address = "not-base58-0OIl"
	_, err := NewRegistry([]domain.Vault{v})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid base58")

	v = testVault(1)
	v.Address = base58.Encode([]byte{1, 2, 3})
	_, err = NewRegistry([]domain.Vault{v})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want 32")
}

func TestNewRegistry_ManagerMustBeOnCurve(t *testing.T) {
	// A non-canonical y coordinate is a well-formed 32-byte key but not a
	// valid curve point; it cannot be a wallet authority.
	v := testVault(1)
	v.Manager = base58.Encode(bytes.Repeat([]byte{0xFF}, 32))
	_, err := NewRegistry([]domain.Vault{v})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not on the ed25519 curve")
}

func TestNewRegistry_FeeFractionBounds(t *testing.T) {
	v := testVault(1)
	v.FeeFraction = 1.0
	_, err := NewRegistry([]domain.Vault{v})
	require.Error(t, err)

	v.FeeFraction = -0.1
	_, err = NewRegistry([]domain.Vault{v})
	require.Error(t, err)

	v.FeeFraction = 0
	_, err = NewRegistry([]domain.Vault{v})
	assert.NoError(t, err)
}

func TestNewRegistry_NegativeBasePrecision(t *testing.T) {
	v := testVault(1)
	v.BasePrecisionExp = -1
	_, err := NewRegistry([]domain.Vault{v})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "precision exponent")
}

func TestNewRegistry_DuplicateAddress(t *testing.T) {
	a, b := testVault(1), testVault(1)
	b.Name = "Other"
	_, err := NewRegistry([]domain.Vault{a, b})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate vault address")
}
