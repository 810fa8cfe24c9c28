// Package idhash computes deterministic identifiers. Deterministic IDs
// make repeated runs over the same data idempotent: the same trade gets
// the same ID every time.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTradeID computes a deterministic trade ID.
// Formula: SHA256(symbol|strategy_id|side|mode|opened_at_ms)
// Returns hex-encoded hash (64 characters).
func ComputeTradeID(symbol, strategyID, side, mode string, openedAtMs int64) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%d", symbol, strategyID, side, mode, openedAtMs)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
