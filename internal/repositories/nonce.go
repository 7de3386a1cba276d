package repositories

import (
	"crypto/rand"
	"encoding/hex"
)

// NonceBytes gives 256 bits of entropy per challenge.
const NonceBytes = 32

func GenerateNonce() (string, error) {
	b := make([]byte, NonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
