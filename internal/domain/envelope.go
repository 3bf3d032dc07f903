package domain

import (
	"encoding/json"
	"fmt"
)

// ─── Signed Envelope ────────────────────────────────────────────────────────
// The cryptographic envelope format itself is an external collaborator; the
// settlement core only needs the claimed signer and the deterministic
// canonical encoding the verifier signs over.

// SignedEnvelope wraps a submission payload with its claimed signer and
// signature.
type SignedEnvelope struct {
	Signer    Identity        `json:"signer"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// CanonicalBytes returns the deterministic encoding verified by the
// signature scheme: the envelope serialized with the signature field
// blanked. Field order is fixed by the struct definition, so the encoding
// is stable for a given payload.
func (e SignedEnvelope) CanonicalBytes() ([]byte, error) {
	blank := e
	blank.Signature = ""
	data, err := json.Marshal(blank)
	if err != nil {
		return nil, fmt.Errorf("%w: canonical encoding: %v", ErrValidation, err)
	}
	return data, nil
}
