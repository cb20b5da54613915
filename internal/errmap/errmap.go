// Package errmap maps raw RPC and transaction errors to short operator-facing
// messages for logs and metrics labels.
package errmap

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// rule maps a substring of the raw error text to a message. Rules are
// evaluated in order; the first match wins, so more specific substrings must
// come before more general ones.
type rule struct {
	substr  string
	message string
}

var rules = []rule{
	{"blockhash not found", "expired blockhash, transaction must be rebuilt"},
	{"block height exceeded", "transaction expired before confirmation"},
	{"insufficient lamports", "payer has insufficient SOL for fees"},
	{"insufficient funds", "insufficient token balance"},
	{"custom program error", "vault program rejected the instruction"},
	{"AccountNotFound", "referenced account does not exist"},
	{"AccountInUse", "account locked by a concurrent transaction"},
	{"node is behind", "RPC node is behind the cluster"},
	{"rate limited", "RPC rate limit hit"},
	{"429", "RPC rate limit hit"},
	{"connection refused", "RPC endpoint unreachable"},
	{"context deadline exceeded", "request timed out"},
	{"i/o timeout", "request timed out"},
}

// programErrors maps the vault program's custom error codes to messages.
// Codes come from the program's error enum.
var programErrors = map[int]string{
	6000: "vault is paused",
	6001: "permissioned vault, depositor not whitelisted",
	6002: "deposit exceeds vault capacity",
	6003: "withdraw exceeds unlocked shares",
	6004: "withdraw request still in redemption period",
	6005: "no pending withdraw request",
	6006: "withdraw request already pending",
	6007: "zero amount",
	6008: "invalid vault depositor authority",
	6009: "arithmetic overflow in share math",
	6010: "invalid oracle account",
	6011: "stale oracle price",
	6012: "liquidation in progress",
	6013: "manager only operation",
	6014: "profit share fee out of bounds",
	6015: "vault in liquidation, deposits disabled",
}

// FallbackMessage is returned when no rule or program code matches.
const FallbackMessage = "unrecognized error, see raw message"

var customErrorCode = regexp.MustCompile(`custom program error: (0x[0-9a-fA-F]+|\d+)`)

// Classify returns a short human message for err. The raw text is checked
// against the ordered substring rules first, then against the vault program's
// numeric error-code table when the text carries a custom program error code.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	raw := err.Error()

	if code, ok := extractProgramCode(raw); ok {
		if msg, known := programErrors[code]; known {
			return msg
		}
	}

	for _, r := range rules {
		if strings.Contains(raw, r.substr) {
			return r.message
		}
	}

	return FallbackMessage
}

// ClassifyWithCode is Classify plus the extracted program error code, -1 when
// the error carries none.
func ClassifyWithCode(err error) (string, int) {
	if err == nil {
		return "", -1
	}
	code, ok := extractProgramCode(err.Error())
	if !ok {
		return Classify(err), -1
	}
	if msg, known := programErrors[code]; known {
		return msg, code
	}
	return fmt.Sprintf("unknown vault program error %d", code), code
}

// extractProgramCode pulls the numeric code out of a
// "custom program error: 0x1770" style message. Codes appear in hex or
// decimal depending on the RPC node.
func extractProgramCode(raw string) (int, bool) {
	m := customErrorCode.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}

	s := m[1]
	if strings.HasPrefix(s, "0x") {
		code, err := strconv.ParseInt(s[2:], 16, 32)
		if err != nil {
			return 0, false
		}
		return int(code), true
	}

	code, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return code, true
}
