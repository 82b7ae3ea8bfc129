// Package helpers provides common utility functions used across the codebase.
package helpers

import (
	"math/big"
	"strings"
)

// HexToBigInt converts a hex string (with or without 0x prefix) to *big.Int.
// Malformed input yields zero; vendor APIs routinely return "0x" for empty
// balances and callers treat that as zero.
func HexToBigInt(s string) *big.Int {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return big.NewInt(0)
	}
	val, ok := new(big.Int).SetString(s, 16)
	if !ok || val == nil {
		return big.NewInt(0)
	}
	return val
}

// PadLeft pads a byte slice with zeros on the left to reach the specified
// length. Used to build 32-byte ABI call arguments.
func PadLeft(b []byte, length int) []byte {
	if len(b) >= length {
		return b
	}
	result := make([]byte, length)
	copy(result[length-len(b):], b)
	return result
}
