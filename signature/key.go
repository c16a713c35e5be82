package signature

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// GenerateSecretKey returns a fresh random secp256k1 secret key as hex.
func GenerateSecretKey() (string, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return "", fmt.Errorf("signature: generate key: %w", err)
	}
	return hex.EncodeToString(priv.Serialize()), nil
}
