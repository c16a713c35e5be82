// Package signature provides BIP-340 schnorr signing and verification of
// nostr event ids over secp256k1.
package signature

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Sizes of the hex-decoded values handled by this package.
const (
	KeySize       = 32
	HashSize      = 32
	SignatureSize = schnorr.SignatureSize
)

// ErrInvalidKey is returned when a secret or public key cannot be decoded.
var ErrInvalidKey = errors.New("signature: invalid key")

// Signer signs event ids with a fixed secret key.
type Signer struct {
	priv   *btcec.PrivateKey
	pubHex string
}

// NewSigner returns a Signer for the given hex-encoded secret key.
func NewSigner(secretHex string) (*Signer, error) {
	raw, err := hex.DecodeString(secretHex)
	if err != nil || len(raw) != KeySize {
		return nil, fmt.Errorf("%w: secret key must be %d hex bytes", ErrInvalidKey, KeySize)
	}
	priv, pub := btcec.PrivKeyFromBytes(raw)
	return &Signer{
		priv:   priv,
		pubHex: hex.EncodeToString(schnorr.SerializePubKey(pub)),
	}, nil
}

// PublicKey returns the x-only public key as lowercase hex.
func (s *Signer) PublicKey() string {
	return s.pubHex
}

// Sign produces the 64-byte schnorr signature of hash as lowercase hex.
func (s *Signer) Sign(hash []byte) (string, error) {
	if len(hash) != HashSize {
		return "", fmt.Errorf("signature: hash must be %d bytes, got %d", HashSize, len(hash))
	}
	sig, err := schnorr.Sign(s.priv, hash)
	if err != nil {
		return "", fmt.Errorf("signature: sign: %w", err)
	}
	return hex.EncodeToString(sig.Serialize()), nil
}
