package signature

import (
	"encoding/hex"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// ErrBadSignature is returned when a signature does not verify.
var ErrBadSignature = errors.New("signature: verification failed")

// Verify checks a hex schnorr signature of hash against a hex x-only
// public key. Malformed keys report ErrInvalidKey; everything else that
// fails reports ErrBadSignature.
func Verify(pubkeyHex string, hash []byte, sigHex string) error {
	var pkb [KeySize]byte
	if len(pubkeyHex) != KeySize*2 {
		return ErrInvalidKey
	}
	if _, err := hex.Decode(pkb[:], []byte(pubkeyHex)); err != nil {
		return ErrInvalidKey
	}
	pub, err := schnorr.ParsePubKey(pkb[:])
	if err != nil {
		return ErrInvalidKey
	}

	var sb [SignatureSize]byte
	if len(sigHex) != SignatureSize*2 {
		return ErrBadSignature
	}
	if _, err := hex.Decode(sb[:], []byte(sigHex)); err != nil {
		return ErrBadSignature
	}
	sig, err := schnorr.ParseSignature(sb[:])
	if err != nil {
		return ErrBadSignature
	}

	if !sig.Verify(hash, pub) {
		return ErrBadSignature
	}
	return nil
}
