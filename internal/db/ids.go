package db

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"gatehouse/internal/constants"
)

// Row ID prefixes, one per table, so an ID in a log line names its kind.
const (
	prefixUser         = "usr"
	prefixLoginAttempt = "la"
	prefixVerification = "ev"
	prefixResetToken   = "prt"
	prefixContact      = "cs"
)

// newID returns prefix_<hex> with constants.IDRandomBytes of randomness.
func newID(prefix string) (string, error) {
	var b [constants.IDRandomBytes]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generating %s id: %w", prefix, err)
	}
	return prefix + "_" + hex.EncodeToString(b[:]), nil
}
