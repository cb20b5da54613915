package vaults

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vaults.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRegistry(t *testing.T) {
	path := writeConfig(t, fmt.Sprintf(`[
		{
			"address": %q,
			"name": "Circuit SOL",
			"manager": %q,
			"marketSymbol": "SOL",
			"basePrecisionExp": 9,
			"feeFraction": 0.3
		},
		{
			"address": %q,
			"name": "Circuit USDC",
			"manager": %q,
			"marketSymbol": "USDC",
			"basePrecisionExp": 6,
			"usdPegged": true
		}
	]`, testAddress(1), onCurveKey, testAddress(2), onCurveKey))

	r, err := LoadRegistry(path)
	require.NoError(t, err)
	require.Equal(t, 2, r.Len())

	v, ok := r.Get(testAddress(1))
	require.True(t, ok)
	assert.Equal(t, "Circuit SOL", v.Name)
	assert.Equal(t, 9, v.BasePrecisionExp)
	assert.InDelta(t, 0.3, v.FeeFraction, 1e-9)
	assert.False(t, v.USDPegged)

	v, ok = r.Get(testAddress(2))
	require.True(t, ok)
	assert.True(t, v.USDPegged)
	assert.Zero(t, v.FeeFraction)
}

func TestLoadRegistry_MissingFile(t *testing.T) {
	_, err := LoadRegistry(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read vault config")
}

func TestLoadRegistry_MalformedJSON(t *testing.T) {
	path := writeConfig(t, "{not json")
	_, err := LoadRegistry(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse vault config")
}

func TestLoadRegistry_EmptyArray(t *testing.T) {
	path := writeConfig(t, "[]")
	_, err := LoadRegistry(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "holds no vaults")
}

func TestLoadRegistry_ValidationPropagates(t *testing.T) {
	path := writeConfig(t, fmt.Sprintf(`[{"address": %q, "name": "V", "manager": %q, "feeFraction": 2}]`,
		testAddress(1), onCurveKey))
	_, err := LoadRegistry(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}
