package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const signatureLength = 65

var ErrMalformedSignature = errors.New("malformed signature")

// RecoverAddress returns the lowercase address that produced an EIP-191
// personal_sign signature over message. It does not compare signers; a valid
// signature by the wrong key recovers a different address.
func RecoverAddress(message string, signature string) (string, error) {
	sig, err := hexutil.Decode(strings.TrimSpace(signature))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	return RecoverAddressBytes(message, sig)
}

func RecoverAddressBytes(message string, signature []byte) (string, error) {
	if len(signature) != signatureLength {
		return "", fmt.Errorf("%w: length %d", ErrMalformedSignature, len(signature))
	}

	sig := make([]byte, signatureLength)
	copy(sig, signature)

	// Wallets emit v as 27/28; recovery expects 0/1.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return "", fmt.Errorf("%w: recovery id %d", ErrMalformedSignature, signature[crypto.RecoveryIDOffset])
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}

	return strings.ToLower(crypto.PubkeyToAddress(*pub).Hex()), nil
}
