package event

import (
	"fmt"

	"github.com/xraph/nostr-relay/signature"
)

// Sign fills in PubKey, ID and Sig for e using s.
func Sign(s *signature.Signer, e *Event) error {
	e.PubKey = s.PublicKey()
	if e.Tags == nil {
		e.Tags = Tags{}
	}
	hash := Hash(e)
	sig, err := s.Sign(hash[:])
	if err != nil {
		return fmt.Errorf("event: sign: %w", err)
	}
	e.ID = ComputeID(e)
	e.Sig = sig
	return nil
}
