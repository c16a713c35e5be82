package signature_test

import (
	"crypto/sha256"
	"errors"
	"strings"
	"testing"

	"github.com/xraph/nostr-relay/signature"
)

func newSigner(t *testing.T) *signature.Signer {
	t.Helper()
	sk, err := signature.GenerateSecretKey()
	if err != nil {
		t.Fatal(err)
	}
	s, err := signature.NewSigner(sk)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSignVerify(t *testing.T) {
	s := newSigner(t)
	hash := sha256.Sum256([]byte("hello"))

	sig, err := s.Sign(hash[:])
	if err != nil {
		t.Fatal(err)
	}
	if len(sig) != 128 {
		t.Fatalf("len(sig) = %d, want 128", len(sig))
	}
	if len(s.PublicKey()) != 64 {
		t.Fatalf("len(pubkey) = %d, want 64", len(s.PublicKey()))
	}
	if err := signature.Verify(s.PublicKey(), hash[:], sig); err != nil {
		t.Fatalf("Verify() = %v, want nil", err)
	}
}

func TestVerifyWrongHash(t *testing.T) {
	s := newSigner(t)
	hash := sha256.Sum256([]byte("hello"))
	other := sha256.Sum256([]byte("world"))

	sig, err := s.Sign(hash[:])
	if err != nil {
		t.Fatal(err)
	}
	if err := signature.Verify(s.PublicKey(), other[:], sig); !errors.Is(err, signature.ErrBadSignature) {
		t.Fatalf("Verify() = %v, want ErrBadSignature", err)
	}
}

func TestVerifyWrongKey(t *testing.T) {
	a := newSigner(t)
	b := newSigner(t)
	hash := sha256.Sum256([]byte("hello"))

	sig, err := a.Sign(hash[:])
	if err != nil {
		t.Fatal(err)
	}
	if err := signature.Verify(b.PublicKey(), hash[:], sig); !errors.Is(err, signature.ErrBadSignature) {
		t.Fatalf("Verify() = %v, want ErrBadSignature", err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	s := newSigner(t)
	hash := sha256.Sum256([]byte("hello"))
	sig, _ := s.Sign(hash[:])

	tests := []struct {
		name   string
		pubkey string
		sig    string
		want   error
	}{
		{"short pubkey", "abcd", sig, signature.ErrInvalidKey},
		{"non-hex pubkey", strings.Repeat("z", 64), sig, signature.ErrInvalidKey},
		{"short sig", s.PublicKey(), "abcd", signature.ErrBadSignature},
		{"non-hex sig", s.PublicKey(), strings.Repeat("g", 128), signature.ErrBadSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := signature.Verify(tt.pubkey, hash[:], tt.sig); !errors.Is(err, tt.want) {
				t.Fatalf("Verify() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewSignerRejectsBadKey(t *testing.T) {
	if _, err := signature.NewSigner("nothex"); !errors.Is(err, signature.ErrInvalidKey) {
		t.Fatalf("NewSigner() = %v, want ErrInvalidKey", err)
	}
}

func TestSignRejectsShortHash(t *testing.T) {
	s := newSigner(t)
	if _, err := s.Sign([]byte("short")); err == nil {
		t.Fatal("expected error for short hash")
	}
}
