package errmap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_Nil(t *testing.T) {
	assert.Empty(t, Classify(nil))
}

func TestClassify_SubstringRules(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"Transaction simulation failed: Blockhash not found: blockhash not found", "expired blockhash, transaction must be rebuilt"},
		{"transaction was not confirmed: block height exceeded", "transaction expired before confirmation"},
		{"Attempt to debit an account but found no record: insufficient lamports 100, need 5000", "payer has insufficient SOL for fees"},
		{"Error processing Instruction 0: insufficient funds", "insufficient token balance"},
		{"failed to query long-term storage: node is behind by 153 slots", "RPC node is behind the cluster"},
		{"HTTP status 429 Too Many Requests", "RPC rate limit hit"},
		{"dial tcp 127.0.0.1:8899: connection refused", "RPC endpoint unreachable"},
		{"Post \"https://rpc\": context deadline exceeded", "request timed out"},
		{"read tcp: i/o timeout", "request timed out"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(errors.New(tc.raw)), "raw: %s", tc.raw)
	}
}

func TestClassify_ProgramCodeBeatsSubstringRule(t *testing.T) {
	// 0x1770 = 6000. The code table must win over the generic
	// "custom program error" substring rule.
	err := errors.New("Instruction 2 failed: custom program error: 0x1770")
	assert.Equal(t, "vault is paused", Classify(err))
}

func TestClassify_DecimalProgramCode(t *testing.T) {
	err := errors.New("custom program error: 6004")
	assert.Equal(t, "withdraw request still in redemption period", Classify(err))
}

func TestClassify_UnknownProgramCodeFallsToRules(t *testing.T) {
	// Unknown code, but the substring rule still catches the shape.
	err := errors.New("custom program error: 0xffff")
	assert.Equal(t, "vault program rejected the instruction", Classify(err))
}

func TestClassify_Fallback(t *testing.T) {
	assert.Equal(t, FallbackMessage, Classify(errors.New("something entirely novel")))
}

func TestClassifyWithCode(t *testing.T) {
	msg, code := ClassifyWithCode(errors.New("custom program error: 0x1778"))
	assert.Equal(t, 6008, code)
	assert.Equal(t, "invalid vault depositor authority", msg)

	msg, code = ClassifyWithCode(errors.New("custom program error: 9999"))
	assert.Equal(t, 9999, code)
	assert.Equal(t, "unknown vault program error 9999", msg)

	msg, code = ClassifyWithCode(errors.New("connection refused"))
	assert.Equal(t, -1, code)
	assert.Equal(t, "RPC endpoint unreachable", msg)

	msg, code = ClassifyWithCode(nil)
	assert.Equal(t, -1, code)
	assert.Empty(t, msg)
}

func TestExtractProgramCode(t *testing.T) {
	code, ok := extractProgramCode("custom program error: 0x1772")
	assert.True(t, ok)
	assert.Equal(t, 6002, code)

	code, ok = extractProgramCode("custom program error: 6010")
	assert.True(t, ok)
	assert.Equal(t, 6010, code)

	_, ok = extractProgramCode("no code here")
	assert.False(t, ok)
}
