// Package memory provides in-memory implementations of the storage
// interfaces for tests and the --use-memory development mode.
package memory

import "math/big"

// bigCopy returns an independent copy of v; nil becomes zero.
func bigCopy(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
